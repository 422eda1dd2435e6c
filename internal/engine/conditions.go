// File: internal/engine/conditions.go
package engine

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// evalCondition evaluates a skipIf/onlyIf JavaScript expression in page
// context, with collector placeholders substituted first. Evaluation errors
// are treated as false and never abort the step.
func (r *run) evalCondition(ctx context.Context, expr string, col *Collector) bool {
	resolved := ResolvePlaceholders(expr, col)
	res, err := r.sess.Evaluate(ctx, "(function(){ return Boolean("+resolved+"); })()")
	if err != nil {
		r.log.Debug("Condition evaluation failed; treating as false.",
			zap.String("expression", expr), zap.Error(err))
		return false
	}
	b, _ := res.(bool)
	return b
}

// applyTransform runs a JavaScript transform expression against an extracted
// value, binding it as `value`. A failing transform leaves the value as is.
func (r *run) applyTransform(ctx context.Context, val, transform string, col *Collector) string {
	if transform == "" {
		return val
	}
	resolved := ResolvePlaceholders(transform, col)
	lit, err := jsoniter.MarshalToString(val)
	if err != nil {
		return val
	}
	js := "(function(value){ return (" + resolved + "); })(" + lit + ")"
	res, err := r.sess.Evaluate(ctx, js)
	if err != nil {
		r.log.Debug("Transform failed; keeping raw value.",
			zap.String("transform", transform), zap.Error(err))
		return val
	}
	if res == nil {
		return ""
	}
	return stringify(res)
}
