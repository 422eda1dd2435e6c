// File: internal/engine/data.go
package engine

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/lablnet/stepwright/api/schemas"
)

// handleData executes a data-extraction step: selector resolution with
// fallbacks, then the regex -> transform -> default pipeline, storing the
// final value in the collector.
func (r *run) handleData(ctx context.Context, step *schemas.Step, col *Collector, scope schemas.Handle) error {
	object, attr := step.Object, ""
	if step.DataType == schemas.DataAttribute {
		object, attr = splitAttributeSelector(step.Object)
	}

	r.waitForConfiguredSelector(ctx, scope, step)

	key := keyOr(step, "data")
	h, _, err := r.resolveWithFallbacks(ctx, scope, step, object)
	if err != nil {
		// A zero-match selector is not an error by default; it yields the
		// default value. required alone does not raise when a default exists.
		val := step.DefaultValue
		if val == "" && step.Required {
			return fmt.Errorf("%w: %s (key %q)", schemas.ErrExtractionRequired, object, key)
		}
		col.Set(key, val)
		if step.ContinueOnEmpty != nil && !*step.ContinueOnEmpty {
			return err
		}
		r.log.Debug("Data element not found; using default.",
			zap.String("selector", object), zap.String("key", key))
		return nil
	}

	dt := extractionType(step.DataType)
	if dt == schemas.DataAttribute && attr == "" {
		// An attribute step without a /@attr suffix reads the element text.
		dt = schemas.DataText
	}
	val, err := r.sess.Extract(ctx, h, dt, attr)
	if err != nil {
		if step.Required && step.DefaultValue == "" {
			return err
		}
		r.log.Warn("Data extraction failed; using default.",
			zap.String("selector", object), zap.Error(err))
		col.Set(key, step.DefaultValue)
		return nil
	}

	if val != "" && step.Regex != "" {
		val = extractRegex(val, step.Regex, step.RegexGroup)
	}
	if val != "" && step.Transform != "" {
		val = r.applyTransform(ctx, val, step.Transform, col)
	}
	if val == "" {
		val = step.DefaultValue
	}
	if val == "" && step.Required {
		return fmt.Errorf("%w: key %q", schemas.ErrExtractionRequired, key)
	}

	col.Set(key, val)
	r.log.Debug("Collected data.", zap.String("key", key))
	return nil
}

// extractionType maps the step's declared data type onto the driver's
// extraction primitive; default and empty both mean text.
func extractionType(dt schemas.DataType) schemas.DataType {
	switch dt {
	case schemas.DataHTML, schemas.DataValue, schemas.DataAttribute:
		return dt
	default:
		return schemas.DataText
	}
}

// extractRegex applies the step's regex to the raw value, returning the
// configured capture group. A non-matching or invalid pattern leaves the
// value unchanged.
func extractRegex(val, pattern string, group *int) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return val
	}
	m := re.FindStringSubmatch(val)
	if m == nil {
		return val
	}
	idx := 0
	if group != nil {
		idx = *group
	}
	if idx < 0 || idx >= len(m) {
		idx = 0
	}
	return m[idx]
}
