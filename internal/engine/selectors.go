// File: internal/engine/selectors.go
package engine

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/lablnet/stepwright/api/schemas"
)

// resolveWithFallbacks returns the first selector with at least one match:
// the step's primary selector first, then its ordered fallbacks. It reports
// ErrElementNotFound when nothing matches.
func (r *run) resolveWithFallbacks(
	ctx context.Context,
	scope schemas.Handle,
	step *schemas.Step,
	object string,
) (schemas.Handle, schemas.Selector, error) {
	candidates := make([]schemas.Selector, 0, 1+len(step.FallbackSelectors))
	candidates = append(candidates, schemas.Selector{Type: step.ObjectType, Value: object})
	for _, fb := range step.FallbackSelectors {
		if fb.Object == "" {
			continue
		}
		candidates = append(candidates, schemas.Selector{Type: fb.ObjectType, Value: fb.Object})
	}

	for i, sel := range candidates {
		n, err := r.sess.Count(ctx, scope, sel)
		if err != nil {
			r.log.Debug("Selector count failed.", zap.String("selector", sel.Value), zap.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		h, err := r.sess.Resolve(ctx, scope, sel)
		if err != nil {
			continue
		}
		if i > 0 {
			r.log.Debug("Using fallback selector.",
				zap.String("type", string(sel.Type)), zap.String("selector", sel.Value))
		}
		return h, sel, nil
	}
	return schemas.Handle{}, schemas.Selector{}, fmt.Errorf("%w: %s", schemas.ErrElementNotFound, object)
}

// waitForConfiguredSelector performs the step's auxiliary pre-action wait,
// if any. A failed wait does not fail the step.
func (r *run) waitForConfiguredSelector(ctx context.Context, scope schemas.Handle, step *schemas.Step) {
	if step.WaitForSelector == "" {
		return
	}
	timeout := msOrDefault(step.WaitForSelectorTimeoutMs, defaultWaitForSelectorTimeout)
	state := step.WaitForSelectorState
	if state == "" {
		state = "visible"
	}
	sel := schemas.Selector{Type: step.ObjectType, Value: step.WaitForSelector}
	if err := r.sess.WaitFor(ctx, scope, sel, state, timeout); err != nil {
		r.log.Debug("waitForSelector wait did not complete.",
			zap.String("selector", step.WaitForSelector), zap.Error(err))
	}
}

var attrSuffixRe = regexp.MustCompile(`/@(\w+)$`)

// splitAttributeSelector strips a trailing "/@attr" from a selector used by
// attribute extraction, returning the bare selector and the attribute name.
func splitAttributeSelector(object string) (selector, attr string) {
	m := attrSuffixRe.FindStringSubmatch(object)
	if m == nil {
		return object, ""
	}
	return attrSuffixRe.ReplaceAllString(object, ""), m[1]
}
