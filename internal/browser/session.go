// File: internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lablnet/stepwright/api/schemas"
)

var _ schemas.Session = (*session)(nil)

const (
	waitPollInterval  = 100 * time.Millisecond
	captureTabTimeout = 10 * time.Second
	closeGraceTimeout = 10 * time.Second
)

// session is one isolated browser tab driven over CDP.
type session struct {
	id     string
	logger *zap.Logger
	slowMo time.Duration

	// browserCtx is the chromedp context owning the tab. Caller contexts
	// only bound individual calls; they never own the tab.
	browserCtx context.Context
	cancel     context.CancelFunc
}

// newSession creates a tab under parent and waits until it is responsive.
func newSession(parent context.Context, logger *zap.Logger, slowMoMs int) (*session, error) {
	id := uuid.New().String()
	tabCtx, cancel := chromedp.NewContext(parent)

	s := &session{
		id:         id,
		logger:     logger.With(zap.String("session_id", id[:8])),
		slowMo:     time.Duration(slowMoMs) * time.Millisecond,
		browserCtx: tabCtx,
		cancel:     cancel,
	}

	// An empty Run forces tab allocation so failures surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	s.logger.Debug("Browser session opened.")
	return s, nil
}

func (s *session) ID() string { return s.id }

// run executes chromedp actions on the tab, bounded by the caller's ctx.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return err
	}
	if s.slowMo > 0 {
		select {
		case <-time.After(s.slowMo):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *session) eval(ctx context.Context, expr string, out any) error {
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// -- Navigation --

func (s *session) Navigate(ctx context.Context, url, waitUntil string) error {
	s.logger.Debug("Navigating", zap.String("url", url), zap.String("wait_until", waitUntil))
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitUntil != "domcontentloaded" {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	return s.run(ctx, actions...)
}

func (s *session) Reload(ctx context.Context, waitUntil string) error {
	actions := []chromedp.Action{chromedp.Reload()}
	if waitUntil != "domcontentloaded" {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	return s.run(ctx, actions...)
}

func (s *session) URL(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (s *session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, chromedp.Title(&title))
	return title, err
}

// -- Element resolution --

func (s *session) query(ctx context.Context, scope schemas.Handle, sel schemas.Selector, limit int) ([]schemas.Handle, error) {
	var xpaths []string
	if err := s.eval(ctx, buildQueryJS(scope, sel, limit), &xpaths); err != nil {
		return nil, fmt.Errorf("%w: selector query failed: %v", schemas.ErrDriver, err)
	}
	handles := make([]schemas.Handle, 0, len(xpaths))
	for _, xp := range xpaths {
		handles = append(handles, schemas.Handle{XPath: xp})
	}
	return handles, nil
}

func (s *session) Count(ctx context.Context, scope schemas.Handle, sel schemas.Selector) (int, error) {
	handles, err := s.query(ctx, scope, sel, 0)
	if err != nil {
		return 0, err
	}
	return len(handles), nil
}

func (s *session) Resolve(ctx context.Context, scope schemas.Handle, sel schemas.Selector) (schemas.Handle, error) {
	handles, err := s.query(ctx, scope, sel, 1)
	if err != nil {
		return schemas.Handle{}, err
	}
	if len(handles) == 0 {
		return schemas.Handle{}, fmt.Errorf("%w: %s=%q", schemas.ErrElementNotFound, normalizeSelectorType(sel.Type), sel.Value)
	}
	return handles[0], nil
}

func (s *session) ResolveAll(ctx context.Context, scope schemas.Handle, sel schemas.Selector) ([]schemas.Handle, error) {
	return s.query(ctx, scope, sel, 0)
}

// -- Element state --

func (s *session) IsVisible(ctx context.Context, h schemas.Handle) (bool, error) {
	var out any
	body := `var st = window.getComputedStyle(el);
		if (st.display === 'none' || st.visibility === 'hidden') { return false; }
		var r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;`
	if err := s.eval(ctx, elementJS(h, body), &out); err != nil {
		return false, err
	}
	visible, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s", schemas.ErrElementNotFound, h.XPath)
	}
	return visible, nil
}

func (s *session) IsEnabled(ctx context.Context, h schemas.Handle) (bool, error) {
	var out any
	if err := s.eval(ctx, elementJS(h, `return el.disabled !== true;`), &out); err != nil {
		return false, err
	}
	enabled, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s", schemas.ErrElementNotFound, h.XPath)
	}
	return enabled, nil
}

func (s *session) ScrollIntoView(ctx context.Context, h schemas.Handle) error {
	var out any
	body := `el.scrollIntoView({block: 'center', inline: 'nearest'}); return true;`
	if err := s.eval(ctx, elementJS(h, body), &out); err != nil {
		return err
	}
	if _, ok := out.(bool); !ok {
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, h.XPath)
	}
	return nil
}

// -- Interaction --

var keyModifiers = map[string]input.Modifier{
	"alt":   input.ModifierAlt,
	"ctrl":  input.ModifierCtrl,
	"meta":  input.ModifierMeta,
	"shift": input.ModifierShift,
}

func (s *session) Click(ctx context.Context, h schemas.Handle, opts schemas.ClickOptions) error {
	if opts.Force {
		// Bypasses hit testing for overlapped elements.
		var out any
		if err := s.eval(ctx, elementJS(h, `el.click(); return true;`), &out); err != nil {
			return err
		}
		if _, ok := out.(bool); !ok {
			return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, h.XPath)
		}
		return nil
	}

	if !opts.Right && !opts.Double && len(opts.Modifiers) == 0 {
		return s.run(ctx,
			chromedp.ScrollIntoView(h.XPath, chromedp.BySearch),
			chromedp.Click(h.XPath, chromedp.BySearch),
		)
	}

	// Anything beyond a plain left click goes through the raw mouse event.
	mouseOpts := []chromedp.MouseOption{chromedp.ButtonLeft}
	if opts.Right {
		mouseOpts = []chromedp.MouseOption{chromedp.ButtonRight}
	}
	if opts.Double {
		mouseOpts = append(mouseOpts, chromedp.ClickCount(2))
	}
	if len(opts.Modifiers) > 0 {
		var mod input.Modifier
		for _, name := range opts.Modifiers {
			if m, ok := keyModifiers[strings.ToLower(name)]; ok {
				mod |= m
			}
		}
		mouseOpts = append(mouseOpts, func(p *input.DispatchMouseEventParams) *input.DispatchMouseEventParams {
			return p.WithModifiers(mod)
		})
	}

	var nodes []*cdp.Node
	if err := s.run(ctx,
		chromedp.ScrollIntoView(h.XPath, chromedp.BySearch),
		chromedp.Nodes(h.XPath, &nodes, chromedp.BySearch, chromedp.AtLeast(0)),
	); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, h.XPath)
	}
	return s.run(ctx, chromedp.MouseClickNode(nodes[0], mouseOpts...))
}

func (s *session) Fill(ctx context.Context, h schemas.Handle, text string, opts schemas.FillOptions) error {
	actions := []chromedp.Action{}
	if opts.Clear {
		actions = append(actions, chromedp.Evaluate(elementJS(h, `el.value = ''; el.dispatchEvent(new Event('input', {bubbles: true})); return true;`), nil))
	}
	if opts.PerCharDelayMs > 0 {
		delay := time.Duration(opts.PerCharDelayMs) * time.Millisecond
		actions = append(actions, chromedp.ActionFunc(func(runCtx context.Context) error {
			for _, r := range text {
				if err := chromedp.SendKeys(h.XPath, string(r), chromedp.BySearch).Do(runCtx); err != nil {
					return err
				}
				select {
				case <-time.After(delay):
				case <-runCtx.Done():
					return runCtx.Err()
				}
			}
			return nil
		}))
	} else {
		actions = append(actions, chromedp.SendKeys(h.XPath, text, chromedp.BySearch))
	}
	return s.run(ctx, actions...)
}

// -- Scripting --

func (s *session) Evaluate(ctx context.Context, expr string) (any, error) {
	var out any
	err := s.eval(ctx, expr, &out)
	if err != nil {
		if errors.Is(err, chromedp.ErrJSUndefined) || errors.Is(err, chromedp.ErrJSNull) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (s *session) WaitFor(ctx context.Context, scope schemas.Handle, sel schemas.Selector, state string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		reached, err := s.stateReached(ctx, scope, sel, state)
		if err != nil {
			return err
		}
		if reached {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: waiting for %q to become %s", schemas.ErrActionTimeout, sel.Value, state)
		}
		select {
		case <-time.After(waitPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *session) stateReached(ctx context.Context, scope schemas.Handle, sel schemas.Selector, state string) (bool, error) {
	n, err := s.Count(ctx, scope, sel)
	if err != nil {
		return false, err
	}
	switch state {
	case "attached":
		return n > 0, nil
	case "detached":
		return n == 0, nil
	case "hidden":
		if n == 0 {
			return true, nil
		}
		h, err := s.Resolve(ctx, scope, sel)
		if err != nil {
			return false, err
		}
		visible, err := s.IsVisible(ctx, h)
		return !visible, err
	default: // visible
		if n == 0 {
			return false, nil
		}
		h, err := s.Resolve(ctx, scope, sel)
		if err != nil {
			return false, err
		}
		return s.IsVisible(ctx, h)
	}
}

// -- Page geometry --

func (s *session) PageHeight(ctx context.Context) (float64, error) {
	var height float64
	err := s.eval(ctx, `document.body ? document.body.scrollHeight : 0`, &height)
	return height, err
}

func (s *session) ScrollBy(ctx context.Context, y int) error {
	expr := fmt.Sprintf(`window.scrollBy(0, %d); true`, y)
	if y == 0 {
		expr = `window.scrollBy(0, window.innerHeight); true`
	}
	var out any
	return s.eval(ctx, expr, &out)
}

func (s *session) Viewport(ctx context.Context) (int, int, error) {
	var dims []int
	if err := s.eval(ctx, `[window.innerWidth, window.innerHeight]`, &dims); err != nil {
		return 0, 0, err
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected viewport shape", schemas.ErrDriver)
	}
	return dims[0], dims[1], nil
}

func (s *session) SetViewport(ctx context.Context, width, height int) error {
	return s.run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

// -- Tabs --

func (s *session) OpenTab(ctx context.Context, url string) (schemas.Session, error) {
	child, err := newSession(s.browserCtx, s.logger, int(s.slowMo/time.Millisecond))
	if err != nil {
		return nil, err
	}
	if err := child.Navigate(ctx, url, ""); err != nil {
		child.Close(ctx)
		return nil, err
	}
	return child, nil
}

func (s *session) CaptureTab(ctx context.Context, trigger func(ctx context.Context) error) (schemas.Session, error) {
	ch := chromedp.WaitNewTarget(s.browserCtx, func(info *target.Info) bool {
		return info.Type == "page" && info.URL != ""
	})

	if err := trigger(ctx); err != nil {
		return nil, err
	}

	var targetID target.ID
	select {
	case targetID = <-ch:
	case <-time.After(captureTabTimeout):
		return nil, fmt.Errorf("%w: no new tab appeared", schemas.ErrActionTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tabCtx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(targetID))
	child := &session{
		id:         uuid.New().String(),
		logger:     s.logger,
		slowMo:     s.slowMo,
		browserCtx: tabCtx,
		cancel:     cancel,
	}
	if err := child.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		child.Close(ctx)
		return nil, fmt.Errorf("captured tab never became ready: %w", err)
	}
	return child, nil
}

// Close terminates the tab and waits briefly for it to go away.
func (s *session) Close(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.browserCtx == nil {
		return nil
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, closeGraceTimeout)
	defer cancelWait()

	select {
	case <-s.browserCtx.Done():
		s.logger.Debug("Browser session closed gracefully.")
	case <-waitCtx.Done():
		s.logger.Warn("Deadline exceeded waiting for browser session to close.", zap.Error(waitCtx.Err()))
	}
	return nil
}
