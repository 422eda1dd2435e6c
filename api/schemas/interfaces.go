package schemas

import (
	"context"
	"time"
)

// Handle identifies one resolved element for the lifetime of the current
// page state. The engine treats it as opaque; the chromedp driver stores an
// absolute XPath, fakes store whatever they like.
type Handle struct {
	XPath string
}

// PageScope is the zero Handle, meaning "search the whole page".
var PageScope = Handle{}

// IsPage reports whether the handle is the page-wide scope.
func (h Handle) IsPage() bool { return h.XPath == "" }

// ClickOptions mirror the driver's click primitive.
type ClickOptions struct {
	Double    bool
	Right     bool
	Force     bool
	Modifiers []string
}

// FillOptions mirror the driver's fill primitive.
type FillOptions struct {
	Clear          bool
	PerCharDelayMs int
}

// StorageKind selects which browser storage a storage operation targets.
type StorageKind string

const (
	StorageLocal   StorageKind = "localStorage"
	StorageSession StorageKind = "sessionStorage"
)

// Session is the abstract browser capability set the engine executes
// against. One Session is one tab; it is exclusively owned by the template
// runner for the duration of a template run and must be closed on every
// exit path.
//
// Every method is a suspension point: it does not return until the driver
// call resolves or times out, and it honors ctx cancellation.
type Session interface {
	ID() string

	Navigate(ctx context.Context, url, waitUntil string) error
	Reload(ctx context.Context, waitUntil string) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// Count reports how many elements match sel under scope.
	Count(ctx context.Context, scope Handle, sel Selector) (int, error)
	// Resolve returns the first match of sel under scope, or
	// ErrElementNotFound.
	Resolve(ctx context.Context, scope Handle, sel Selector) (Handle, error)
	// ResolveAll returns every match of sel under scope in DOM order.
	ResolveAll(ctx context.Context, scope Handle, sel Selector) ([]Handle, error)

	IsVisible(ctx context.Context, h Handle) (bool, error)
	IsEnabled(ctx context.Context, h Handle) (bool, error)
	ScrollIntoView(ctx context.Context, h Handle) error

	Click(ctx context.Context, h Handle, opts ClickOptions) error
	Fill(ctx context.Context, h Handle, text string, opts FillOptions) error

	// Extract reads dt from the element; attr names the attribute when dt
	// is DataAttribute.
	Extract(ctx context.Context, h Handle, dt DataType, attr string) (string, error)

	// Screenshot captures the element when h is non-page, otherwise the
	// viewport (or full page). Parent directories are created as needed.
	Screenshot(ctx context.Context, h Handle, path string, fullPage bool) error
	// SavePDF renders the current page to a PDF file at path.
	SavePDF(ctx context.Context, path string) error
	// DownloadTriggeredBy clicks h and saves the download it triggers to
	// path, returning the saved path.
	DownloadTriggeredBy(ctx context.Context, h Handle, path string, timeout time.Duration) (string, error)
	// DownloadURL fetches url within the session and writes it to path.
	DownloadURL(ctx context.Context, url, path string) error

	Cookies(ctx context.Context, url string) (map[string]string, error)
	SetCookie(ctx context.Context, name, value string) error
	StorageGet(ctx context.Context, kind StorageKind, key string) (any, error)
	StorageSet(ctx context.Context, kind StorageKind, key, value string) error
	Viewport(ctx context.Context) (width, height int, err error)
	SetViewport(ctx context.Context, width, height int) error

	// Evaluate runs a JavaScript expression in page context and returns its
	// JSON-decoded result.
	Evaluate(ctx context.Context, expr string) (any, error)
	// WaitFor blocks until sel reaches state (visible, hidden, attached,
	// detached) or the timeout elapses with ErrActionTimeout.
	WaitFor(ctx context.Context, scope Handle, sel Selector, state string, timeout time.Duration) error

	PageHeight(ctx context.Context) (float64, error)
	ScrollBy(ctx context.Context, y int) error

	// OpenTab opens a new tab in the same browser and navigates it to url.
	OpenTab(ctx context.Context, url string) (Session, error)
	// CaptureTab runs trigger and returns the tab the page opened in
	// response (e.g. a modifier-click on a link).
	CaptureTab(ctx context.Context, trigger func(ctx context.Context) error) (Session, error)

	Close(ctx context.Context) error
}

// SessionFactory creates sessions. The browser manager implements it; engine
// tests substitute fakes.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}
