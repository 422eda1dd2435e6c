// File: internal/engine/foreach.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lablnet/stepwright/api/schemas"
)

// handleForEach resolves the step's selector to N elements and runs the
// child steps once per element, each against an isolated clone of the
// parent collector with the loop index bound into placeholders.
//
// A top-level foreach (depth 0) emits one record per element; a nested
// foreach merges its per-iteration records into the parent collector as a
// slice under the step's key. Zero matches yield zero records, not an error.
func (r *run) handleForEach(
	ctx context.Context,
	step *schemas.Step,
	col *Collector,
	scope schemas.Handle,
	depth int,
) error {
	if step.Object == "" {
		return fmt.Errorf("foreach step %q requires a selector", step.ID)
	}
	if len(step.SubSteps) == 0 {
		return fmt.Errorf("foreach step %q requires subSteps", step.ID)
	}

	sel := schemas.Selector{Type: step.ObjectType, Value: step.Object}

	// Give lazily rendered lists a chance to attach before counting.
	attachWait := msOrDefault(step.WaitMs, defaultForEachAttachWait)
	if err := r.sess.WaitFor(ctx, scope, sel, "attached", attachWait); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	handles, err := r.sess.ResolveAll(ctx, scope, sel)
	if err != nil {
		return err
	}
	r.log.Debug("foreach matched elements.",
		zap.String("selector", step.Object), zap.Int("count", len(handles)))

	autoScroll := step.AutoScroll == nil || *step.AutoScroll
	var nested []schemas.Record

	for idx, h := range handles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if autoScroll {
			if serr := r.sess.ScrollIntoView(ctx, h); serr != nil {
				r.log.Debug("Scroll into view failed.", zap.Int("index", idx), zap.Error(serr))
			}
		}

		// Isolated per-iteration scope: parent keys are visible, sibling
		// iterations are not.
		itemCol := col.Clone()
		for _, sub := range step.SubSteps {
			cloned := CloneStepWithIndex(sub, idx)
			if err := r.executeStep(ctx, cloned, itemCol, h, depth+1); err != nil {
				return err
			}
		}

		rec := itemCol.Snapshot()
		if depth == 0 {
			if err := r.sink.emit(ctx, rec); err != nil {
				return err
			}
		} else {
			nested = append(nested, rec)
		}
	}

	if depth > 0 {
		col.Set(keyOr(step, "items"), nested)
	}
	return nil
}

// handleOpen follows a link into a new tab, runs the step's children
// against it with the parent collector passed in, merges the results back
// and closes the tab.
func (r *run) handleOpen(
	ctx context.Context,
	step *schemas.Step,
	col *Collector,
	scope schemas.Handle,
	depth int,
) error {
	if step.Object == "" {
		return fmt.Errorf("open step %q requires a selector", step.ID)
	}
	if len(step.SubSteps) == 0 {
		return fmt.Errorf("open step %q requires subSteps", step.ID)
	}

	h, _, err := r.resolveWithFallbacks(ctx, scope, step, step.Object)
	if err != nil {
		r.log.Warn("Open target not found; skipping.", zap.String("selector", step.Object))
		return nil
	}

	href, _ := r.sess.Extract(ctx, h, schemas.DataAttribute, "href")

	var child schemas.Session
	if href != "" {
		current, uerr := r.sess.URL(ctx)
		if uerr != nil {
			return uerr
		}
		if err := r.waitRateLimit(ctx); err != nil {
			return err
		}
		child, err = r.sess.OpenTab(ctx, resolveHref(current, href))
	} else {
		// No href: let the page open the tab itself and capture it.
		child, err = r.sess.CaptureTab(ctx, func(ctx context.Context) error {
			return r.sess.Click(ctx, h, schemas.ClickOptions{Modifiers: []string{"Meta"}})
		})
	}
	if err != nil {
		return err
	}
	defer child.Close(ctx)

	childRun := r.withSession(child)
	inner := col.Clone()
	for _, sub := range step.SubSteps {
		if err := childRun.executeStep(ctx, sub.Clone(), inner, schemas.PageScope, depth); err != nil {
			return err
		}
	}
	col.Merge(inner)
	r.log.Debug("Closed child tab.", zap.String("step", step.ID))
	return nil
}
