// File: internal/browser/artifacts.go
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"

	"github.com/lablnet/stepwright/api/schemas"
)

// Extract reads one value from the element a handle points at. A dangling
// handle or a missing attribute both come back as the empty string; the
// interpreter decides what empty means for the step at hand.
func (s *session) Extract(ctx context.Context, h schemas.Handle, dt schemas.DataType, attr string) (string, error) {
	var body string
	switch dt {
	case schemas.DataHTML:
		body = `return el.innerHTML;`
	case schemas.DataValue:
		body = `return el.value !== undefined ? String(el.value) : '';`
	case schemas.DataAttribute:
		if attr == "" {
			body = `return el.innerText !== undefined ? el.innerText : el.textContent;`
			break
		}
		attrArg, _ := jsoniter.MarshalToString(attr)
		body = fmt.Sprintf(`return el.getAttribute(%s);`, attrArg)
	default:
		body = `return el.innerText !== undefined ? el.innerText : el.textContent;`
	}

	var out any
	if err := s.eval(ctx, elementJS(h, body), &out); err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	if str, ok := out.(string); ok {
		return str, nil
	}
	return fmt.Sprintf("%v", out), nil
}

// Screenshot captures the element when h is non-page, otherwise the viewport
// or the full page.
func (s *session) Screenshot(ctx context.Context, h schemas.Handle, path string, fullPage bool) error {
	var buf []byte
	var action chromedp.Action
	switch {
	case !h.IsPage():
		action = chromedp.Screenshot(h.XPath, &buf, chromedp.BySearch)
	case fullPage:
		action = chromedp.FullScreenshot(&buf, 90)
	default:
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := s.run(ctx, action); err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return writeArtifact(path, buf)
}

// SavePDF renders the current page to a PDF file.
func (s *session) SavePDF(ctx context.Context, path string) error {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(runCtx context.Context) error {
		var err error
		buf, _, err = page.PrintToPDF().WithPrintBackground(true).Do(runCtx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("pdf render failed: %w", err)
	}
	return writeArtifact(path, buf)
}

// DownloadTriggeredBy clicks h and waits for the download it starts. The
// browser writes under the target directory with a GUID name; the file is
// renamed to path once the transfer completes.
func (s *session) DownloadTriggeredBy(ctx context.Context, h schemas.Handle, path string, timeout time.Duration) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	completed := make(chan string, 1)
	listenCtx, cancelListen := context.WithCancel(s.browserCtx)
	defer cancelListen()
	chromedp.ListenBrowser(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*cdpbrowser.EventDownloadProgress); ok && e.State == cdpbrowser.DownloadProgressStateCompleted {
			select {
			case completed <- e.GUID:
			default:
			}
		}
	})

	err := s.run(ctx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
		chromedp.ScrollIntoView(h.XPath, chromedp.BySearch),
		chromedp.Click(h.XPath, chromedp.BySearch),
	)
	if err != nil {
		return "", err
	}

	select {
	case guid := <-completed:
		tmp := filepath.Join(dir, guid)
		if err := os.Rename(tmp, path); err != nil {
			return "", fmt.Errorf("failed to move download into place: %w", err)
		}
		return path, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("%w: download did not complete", schemas.ErrActionTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

const fetchBase64JS = `(async function(u) {
	const res = await fetch(u, {credentials: 'include'});
	if (!res.ok) { throw new Error('fetch failed: ' + res.status); }
	const bytes = new Uint8Array(await res.arrayBuffer());
	let bin = '';
	const chunk = 0x8000;
	for (let i = 0; i < bytes.length; i += chunk) {
		bin += String.fromCharCode.apply(null, bytes.subarray(i, i + chunk));
	}
	return btoa(bin);
})(%s)`

// DownloadURL fetches url inside the page (so session cookies apply) and
// writes the body to path.
func (s *session) DownloadURL(ctx context.Context, url, path string) error {
	urlArg, _ := jsoniter.MarshalToString(url)
	var b64 string
	err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(fetchBase64JS, urlArg), &b64,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	if err != nil {
		return fmt.Errorf("in-page fetch failed: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("failed to decode fetched body: %w", err)
	}
	return writeArtifact(path, data)
}

// -- Cookies and storage --

func (s *session) Cookies(ctx context.Context, url string) (map[string]string, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(runCtx context.Context) error {
		var err error
		if url == "" {
			cookies, err = storage.GetCookies().Do(runCtx)
		} else {
			cookies, err = network.GetCookies().WithURLs([]string{url}).Do(runCtx)
		}
		return err
	}))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out, nil
}

func (s *session) SetCookie(ctx context.Context, name, value string) error {
	loc, err := s.URL(ctx)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.ActionFunc(func(runCtx context.Context) error {
		return network.SetCookie(name, value).WithURL(loc).Do(runCtx)
	}))
}

func (s *session) StorageGet(ctx context.Context, kind schemas.StorageKind, key string) (any, error) {
	keyArg, _ := jsoniter.MarshalToString(key)
	var expr string
	if key == "" {
		expr = fmt.Sprintf(`({...window.%s})`, kind)
	} else {
		expr = fmt.Sprintf(`window.%s.getItem(%s)`, kind, keyArg)
	}
	return s.Evaluate(ctx, expr)
}

func (s *session) StorageSet(ctx context.Context, kind schemas.StorageKind, key, value string) error {
	keyArg, _ := jsoniter.MarshalToString(key)
	valueArg, _ := jsoniter.MarshalToString(value)
	var out any
	return s.eval(ctx, fmt.Sprintf(`window.%s.setItem(%s, %s); true`, kind, keyArg, valueArg), &out)
}

func writeArtifact(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
