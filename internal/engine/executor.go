// File: internal/engine/executor.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lablnet/stepwright/api/schemas"
)

const (
	defaultRetryDelay             = 1000 * time.Millisecond
	defaultWaitForSelectorTimeout = 30000 * time.Millisecond
	defaultForEachAttachWait      = 5000 * time.Millisecond
	defaultDownloadTimeout        = 10000 * time.Millisecond
	defaultScrollDelay            = 1000 * time.Millisecond
)

// executeStep runs one step end to end: conditional gating, retry loop,
// failure policy and trailing wait. depth is the foreach nesting level;
// scope bounds selector searches to one foreach element.
//
// Only errors from steps marked terminateonerror escape; everything else is
// logged and swallowed so a failing step never aborts its siblings.
func (r *run) executeStep(
	ctx context.Context,
	step *schemas.Step,
	col *Collector,
	scope schemas.Handle,
	depth int,
) error {
	log := r.log.With(zap.String("step", step.ID), zap.String("action", string(step.Action)))
	log.Debug("Executing step.")

	// Conditional gating: a skipped step is not retried and is not an error.
	if step.SkipIf != "" && r.evalCondition(ctx, step.SkipIf, col) {
		log.Debug("Skipping step (skipIf condition true).")
		return nil
	}
	if step.OnlyIf != "" && !r.evalCondition(ctx, step.OnlyIf, col) {
		log.Debug("Skipping step (onlyIf condition false).")
		return nil
	}

	if err := r.applyRandomDelay(ctx, step.RandomDelay); err != nil {
		return err
	}

	// Bounded retry with fixed delay. Retries are local to this invocation;
	// preceding siblings are never re-run.
	retryDelay := msOrDefault(step.RetryDelayMs, defaultRetryDelay)
	var err error
	for attempt := 0; attempt <= step.Retry; attempt++ {
		err = r.dispatchWithTimeout(ctx, step, col, scope, depth)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < step.Retry {
			log.Debug("Retrying step.",
				zap.Int("attempt", attempt+1), zap.Int("budget", step.Retry),
				zap.Duration("delay", retryDelay), zap.Error(err))
			if serr := sleep(ctx, retryDelay); serr != nil {
				return serr
			}
		}
	}

	if err != nil {
		// skipOnError wins over terminateonerror when both are set.
		switch {
		case step.SkipOnError:
			log.Warn("Step failed; skipping.", zap.Error(err))
			return nil
		case step.TerminateOnError:
			return schemas.NewStepError(step, err)
		default:
			log.Warn("Step failed; continuing.", zap.Error(err))
			return nil
		}
	}

	// Trailing fixed wait.
	if step.WaitMs > 0 {
		return sleep(ctx, time.Duration(step.WaitMs)*time.Millisecond)
	}
	return nil
}

// dispatchWithTimeout applies the optional step-level timeout around one
// dispatch attempt. A blown timeout is an ordinary step failure.
func (r *run) dispatchWithTimeout(
	ctx context.Context,
	step *schemas.Step,
	col *Collector,
	scope schemas.Handle,
	depth int,
) error {
	if step.TimeoutMs <= 0 {
		return r.dispatch(ctx, step, col, scope, depth)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(step.TimeoutMs)*time.Millisecond)
	defer cancel()
	err := r.dispatch(attemptCtx, step, col, scope, depth)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w after %dms: %v", schemas.ErrActionTimeout, step.TimeoutMs, err)
	}
	return err
}

// dispatch maps the step's action kind to the corresponding driver call.
// The action set is closed; template validation rejects anything else.
func (r *run) dispatch(
	ctx context.Context,
	step *schemas.Step,
	col *Collector,
	scope schemas.Handle,
	depth int,
) error {
	switch step.Action {
	case schemas.ActionNavigate:
		return r.handleNavigate(ctx, step, col)
	case schemas.ActionInput:
		return r.handleInput(ctx, step, col, scope)
	case schemas.ActionClick:
		return r.handleClick(ctx, step, scope)
	case schemas.ActionData:
		return r.handleData(ctx, step, col, scope)
	case schemas.ActionScroll:
		return r.handleScroll(ctx, step)
	case schemas.ActionForEach:
		return r.handleForEach(ctx, step, col, scope, depth)
	case schemas.ActionOpen:
		return r.handleOpen(ctx, step, col, scope, depth)
	case schemas.ActionEventDownload:
		return r.handleEventDownload(ctx, step, col, scope)
	case schemas.ActionSavePDF, schemas.ActionPrintToPDF:
		return r.handleSavePDF(ctx, step, col)
	case schemas.ActionDownloadPDF, schemas.ActionDownloadFile:
		return r.handleDownloadFile(ctx, step, col)
	case schemas.ActionReload:
		return r.handleReload(ctx, step)
	case schemas.ActionGetURL:
		return r.handleGetURL(ctx, step, col)
	case schemas.ActionGetTitle:
		return r.handleGetTitle(ctx, step, col)
	case schemas.ActionGetMeta:
		return r.handleGetMeta(ctx, step, col)
	case schemas.ActionGetCookies:
		return r.handleGetCookies(ctx, step, col)
	case schemas.ActionSetCookies:
		return r.handleSetCookies(ctx, step, col)
	case schemas.ActionGetLocalStorage:
		return r.handleStorageGet(ctx, step, col, schemas.StorageLocal)
	case schemas.ActionSetLocalStorage:
		return r.handleStorageSet(ctx, step, col, schemas.StorageLocal)
	case schemas.ActionGetSessionStorage:
		return r.handleStorageGet(ctx, step, col, schemas.StorageSession)
	case schemas.ActionSetSessionStorage:
		return r.handleStorageSet(ctx, step, col, schemas.StorageSession)
	case schemas.ActionGetViewportSize:
		return r.handleGetViewport(ctx, step, col)
	case schemas.ActionSetViewportSize:
		return r.handleSetViewport(ctx, step)
	case schemas.ActionScreenshot:
		return r.handleScreenshot(ctx, step, col)
	case schemas.ActionWaitForSelector:
		return r.handleWaitForSelector(ctx, step, col)
	case schemas.ActionEvaluate:
		return r.handleEvaluate(ctx, step, col)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

// -- Navigation and basic interaction handlers --

func (r *run) handleNavigate(ctx context.Context, step *schemas.Step, col *Collector) error {
	url := ResolvePlaceholders(step.Value, col)
	if url == "" {
		return fmt.Errorf("navigate step %q requires a target URL", step.ID)
	}
	if err := r.waitRateLimit(ctx); err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(ctx, r.navTimeout)
	defer cancel()
	return r.sess.Navigate(navCtx, url, step.WaitUntil)
}

func (r *run) handleReload(ctx context.Context, step *schemas.Step) error {
	waitUntil := step.Value
	switch waitUntil {
	case "load", "domcontentloaded", "networkidle", "commit":
	default:
		waitUntil = "load"
	}
	navCtx, cancel := context.WithTimeout(ctx, r.navTimeout)
	defer cancel()
	return r.sess.Reload(navCtx, waitUntil)
}

func (r *run) handleInput(ctx context.Context, step *schemas.Step, col *Collector, scope schemas.Handle) error {
	r.waitForConfiguredSelector(ctx, scope, step)

	h, _, err := r.resolveWithFallbacks(ctx, scope, step, step.Object)
	if err != nil {
		if step.ContinueOnEmpty != nil && !*step.ContinueOnEmpty {
			return err
		}
		r.log.Warn("Input element not found; skipping.", zap.String("selector", step.Object))
		return nil
	}

	value := ResolvePlaceholders(step.Value, col)
	opts := schemas.FillOptions{
		Clear:          step.ClearBeforeInput == nil || *step.ClearBeforeInput,
		PerCharDelayMs: step.InputDelayMs,
	}
	return r.sess.Fill(ctx, h, value, opts)
}

func (r *run) handleClick(ctx context.Context, step *schemas.Step, scope schemas.Handle) error {
	r.waitForConfiguredSelector(ctx, scope, step)

	h, sel, err := r.resolveWithFallbacks(ctx, scope, step, step.Object)
	if err != nil {
		if step.ContinueOnEmpty != nil && !*step.ContinueOnEmpty {
			return err
		}
		r.log.Warn("Click element not found; skipping.", zap.String("selector", step.Object))
		return nil
	}

	// Click defaults to requiring visibility; forceClick bypasses the check.
	if step.RequireVisible == nil || *step.RequireVisible {
		visible, verr := r.sess.IsVisible(ctx, h)
		if verr != nil {
			return verr
		}
		if !visible && !step.ForceClick {
			return fmt.Errorf("element not visible: %s", sel.Value)
		}
	}
	if step.RequireEnabled {
		enabled, eerr := r.sess.IsEnabled(ctx, h)
		if eerr != nil {
			return eerr
		}
		if !enabled {
			return fmt.Errorf("element not enabled: %s", sel.Value)
		}
	}

	return r.sess.Click(ctx, h, schemas.ClickOptions{
		Double:    step.DoubleClick,
		Right:     step.RightClick,
		Force:     step.ForceClick,
		Modifiers: step.ClickModifiers,
	})
}

func (r *run) handleScroll(ctx context.Context, step *schemas.Step) error {
	offset := 0
	if step.Value != "" {
		if n, err := strconv.Atoi(step.Value); err == nil {
			offset = n
		}
	}
	// Zero offset means one viewport height; the driver resolves it.
	return r.sess.ScrollBy(ctx, offset)
}

// -- Shared helpers --

func (r *run) applyRandomDelay(ctx context.Context, rd *schemas.RandomDelay) error {
	if rd == nil || rd.MaxMs <= rd.MinMs {
		return nil
	}
	d := rd.MinMs + rand.Intn(rd.MaxMs-rd.MinMs+1)
	return sleep(ctx, time.Duration(d)*time.Millisecond)
}

func (r *run) waitRateLimit(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

func keyOr(step *schemas.Step, fallback string) string {
	if step.Key != "" {
		return step.Key
	}
	if step.ID != "" {
		return step.ID
	}
	return fallback
}

func msOrDefault(ms int, def time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
