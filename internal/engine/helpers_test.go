// internal/engine/helpers_test.go
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lablnet/stepwright/api/schemas"
	"github.com/lablnet/stepwright/internal/config"
)

// -- Fake session --

// fakeSession is an in-memory stand-in for a browser tab. The DOM is a map
// from lookup keys to element xpaths; scoped entries use "scope::selector"
// keys so foreach sub-step resolution can be exercised.
type fakeSession struct {
	mu sync.Mutex

	id    string
	url   string
	title string

	dom     map[string][]string
	content map[string]string // "<xpath>|<dataType>|<attr>" -> value

	hidden   map[string]bool
	disabled map[string]bool

	evalFn func(expr string) (any, error)

	// Failure injection, consumed one entry per call.
	navErrs     []error
	navDelay    time.Duration
	downloadErr error

	// Recorded activity.
	navigations []string
	clicks      []string
	fills       map[string]string
	scrollBys   []int
	reloads     int

	heights   []float64
	heightIdx int

	cookies  map[string]string
	storage  map[schemas.StorageKind]map[string]string
	vpWidth  int
	vpHeight int

	openedTabs []string
	childTabs  map[string]*fakeSession
	captured   *fakeSession

	screenshots []string
	pdfs        []string
	downloads   []string

	closed bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		id:       "fake",
		url:      "https://example.test/",
		title:    "Example",
		dom:      make(map[string][]string),
		content:  make(map[string]string),
		hidden:   make(map[string]bool),
		disabled: make(map[string]bool),
		fills:    make(map[string]string),
		cookies:  make(map[string]string),
		storage: map[schemas.StorageKind]map[string]string{
			schemas.StorageLocal:   {},
			schemas.StorageSession: {},
		},
		childTabs: make(map[string]*fakeSession),
		vpWidth:   1280,
		vpHeight:  720,
	}
}

// addElement registers sel matches under the page scope.
func (f *fakeSession) addElement(sel string, xpaths ...string) {
	f.dom[sel] = append(f.dom[sel], xpaths...)
}

// addScopedElement registers sel matches visible only under scope.
func (f *fakeSession) addScopedElement(scope, sel string, xpaths ...string) {
	key := scope + "::" + sel
	f.dom[key] = append(f.dom[key], xpaths...)
}

// setText registers the text extraction result for an element.
func (f *fakeSession) setText(xpath, text string) {
	f.content[xpath+"|text|"] = text
}

func (f *fakeSession) setAttr(xpath, attr, val string) {
	f.content[xpath+"|attribute|"+attr] = val
}

func (f *fakeSession) lookup(scope schemas.Handle, sel schemas.Selector) []string {
	if xs, ok := f.dom[scope.XPath+"::"+sel.Value]; ok {
		return xs
	}
	if scope.IsPage() {
		return f.dom[sel.Value]
	}
	return nil
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Navigate(ctx context.Context, url, waitUntil string) error {
	if f.navDelay > 0 {
		select {
		case <-time.After(f.navDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	if len(f.navErrs) > 0 {
		err := f.navErrs[0]
		f.navErrs = f.navErrs[1:]
		if err != nil {
			return err
		}
	}
	f.url = url
	return nil
}

func (f *fakeSession) Reload(ctx context.Context, waitUntil string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func (f *fakeSession) URL(ctx context.Context) (string, error)   { return f.url, nil }
func (f *fakeSession) Title(ctx context.Context) (string, error) { return f.title, nil }

func (f *fakeSession) Count(ctx context.Context, scope schemas.Handle, sel schemas.Selector) (int, error) {
	return len(f.lookup(scope, sel)), nil
}

func (f *fakeSession) Resolve(ctx context.Context, scope schemas.Handle, sel schemas.Selector) (schemas.Handle, error) {
	xs := f.lookup(scope, sel)
	if len(xs) == 0 {
		return schemas.Handle{}, fmt.Errorf("%w: %s", schemas.ErrElementNotFound, sel.Value)
	}
	return schemas.Handle{XPath: xs[0]}, nil
}

func (f *fakeSession) ResolveAll(ctx context.Context, scope schemas.Handle, sel schemas.Selector) ([]schemas.Handle, error) {
	xs := f.lookup(scope, sel)
	handles := make([]schemas.Handle, 0, len(xs))
	for _, xp := range xs {
		handles = append(handles, schemas.Handle{XPath: xp})
	}
	return handles, nil
}

func (f *fakeSession) IsVisible(ctx context.Context, h schemas.Handle) (bool, error) {
	return !f.hidden[h.XPath], nil
}

func (f *fakeSession) IsEnabled(ctx context.Context, h schemas.Handle) (bool, error) {
	return !f.disabled[h.XPath], nil
}

func (f *fakeSession) ScrollIntoView(ctx context.Context, h schemas.Handle) error { return nil }

func (f *fakeSession) Click(ctx context.Context, h schemas.Handle, opts schemas.ClickOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, h.XPath)
	return nil
}

func (f *fakeSession) Fill(ctx context.Context, h schemas.Handle, text string, opts schemas.FillOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills[h.XPath] = text
	return nil
}

func (f *fakeSession) Extract(ctx context.Context, h schemas.Handle, dt schemas.DataType, attr string) (string, error) {
	return f.content[h.XPath+"|"+string(dt)+"|"+attr], nil
}

func (f *fakeSession) Screenshot(ctx context.Context, h schemas.Handle, path string, fullPage bool) error {
	f.screenshots = append(f.screenshots, path)
	return nil
}

func (f *fakeSession) SavePDF(ctx context.Context, path string) error {
	f.pdfs = append(f.pdfs, path)
	return nil
}

func (f *fakeSession) DownloadTriggeredBy(ctx context.Context, h schemas.Handle, path string, timeout time.Duration) (string, error) {
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	f.downloads = append(f.downloads, path)
	return path, nil
}

func (f *fakeSession) DownloadURL(ctx context.Context, url, path string) error {
	f.downloads = append(f.downloads, path)
	return nil
}

func (f *fakeSession) Cookies(ctx context.Context, url string) (map[string]string, error) {
	out := make(map[string]string, len(f.cookies))
	for k, v := range f.cookies {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSession) SetCookie(ctx context.Context, name, value string) error {
	f.cookies[name] = value
	return nil
}

func (f *fakeSession) StorageGet(ctx context.Context, kind schemas.StorageKind, key string) (any, error) {
	if key == "" {
		out := make(map[string]any, len(f.storage[kind]))
		for k, v := range f.storage[kind] {
			out[k] = v
		}
		return out, nil
	}
	if v, ok := f.storage[kind][key]; ok {
		return v, nil
	}
	return nil, nil
}

func (f *fakeSession) StorageSet(ctx context.Context, kind schemas.StorageKind, key, value string) error {
	f.storage[kind][key] = value
	return nil
}

func (f *fakeSession) Viewport(ctx context.Context) (int, int, error) {
	return f.vpWidth, f.vpHeight, nil
}

func (f *fakeSession) SetViewport(ctx context.Context, width, height int) error {
	f.vpWidth, f.vpHeight = width, height
	return nil
}

func (f *fakeSession) Evaluate(ctx context.Context, expr string) (any, error) {
	if f.evalFn != nil {
		return f.evalFn(expr)
	}
	return nil, nil
}

func (f *fakeSession) WaitFor(ctx context.Context, scope schemas.Handle, sel schemas.Selector, state string, timeout time.Duration) error {
	n := len(f.lookup(scope, sel))
	switch state {
	case "detached":
		if n == 0 {
			return nil
		}
	case "hidden":
		if n == 0 {
			return nil
		}
	default: // attached, visible
		if n > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: waiting for %q", schemas.ErrActionTimeout, sel.Value)
}

func (f *fakeSession) PageHeight(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heightIdx < len(f.heights) {
		h := f.heights[f.heightIdx]
		f.heightIdx++
		return h, nil
	}
	if len(f.heights) > 0 {
		return f.heights[len(f.heights)-1], nil
	}
	return 1000, nil
}

func (f *fakeSession) ScrollBy(ctx context.Context, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrollBys = append(f.scrollBys, y)
	return nil
}

func (f *fakeSession) OpenTab(ctx context.Context, url string) (schemas.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openedTabs = append(f.openedTabs, url)
	if child, ok := f.childTabs[url]; ok {
		child.url = url
		return child, nil
	}
	child := newFakeSession()
	child.url = url
	return child, nil
}

func (f *fakeSession) CaptureTab(ctx context.Context, trigger func(ctx context.Context) error) (schemas.Session, error) {
	if err := trigger(ctx); err != nil {
		return nil, err
	}
	if f.captured == nil {
		return nil, fmt.Errorf("%w: no new tab appeared", schemas.ErrActionTimeout)
	}
	return f.captured, nil
}

func (f *fakeSession) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// -- Fake factory --

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	next     []*fakeSession
	err      error
}

func (ff *fakeFactory) NewSession(ctx context.Context) (schemas.Session, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.err != nil {
		return nil, ff.err
	}
	var s *fakeSession
	if len(ff.next) > 0 {
		s = ff.next[0]
		ff.next = ff.next[1:]
	} else {
		s = newFakeSession()
	}
	ff.sessions = append(ff.sessions, s)
	return s, nil
}

// -- Run fixture --

func newTestRun(sess *fakeSession) *run {
	return &run{
		sess:       sess,
		log:        zap.NewNop(),
		sink:       &resultSink{log: zap.NewNop()},
		navTimeout: 5 * time.Second,
		settleWait: time.Millisecond,
	}
}

func newTestEngine(factory schemas.SessionFactory) *Engine {
	return New(factory, zap.NewNop(), config.EngineConfig{
		NavigationTimeout: 5 * time.Second,
		SettleWait:        time.Millisecond,
	})
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
