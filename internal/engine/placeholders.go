// File: internal/engine/placeholders.go
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lablnet/stepwright/api/schemas"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// ReplaceIndex substitutes the loop-index tokens {{i}} and {{i_plus1}} in
// text. Other tokens are left untouched for later collector resolution.
func ReplaceIndex(text string, i int) string {
	if text == "" {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		switch key := placeholderRe.FindStringSubmatch(m)[1]; key {
		case "i":
			return strconv.Itoa(i)
		case "i_plus1":
			return strconv.Itoa(i + 1)
		default:
			return m
		}
	})
}

// ResolvePlaceholders substitutes every {{key}} token from the collector.
// Unresolved tokens become the empty string. The result is never re-scanned,
// so substituted values cannot introduce further tokens.
func ResolvePlaceholders(text string, col *Collector) string {
	if text == "" || !strings.Contains(text, "{{") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := col.Get(key)
		if !ok || v == nil {
			return ""
		}
		return stringify(v)
	})
}

var pathUnsafeRe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// ResolvePathPlaceholders is ResolvePlaceholders with each substituted value
// sanitized for use inside a file path.
func ResolvePathPlaceholders(text string, col *Collector) string {
	if text == "" || !strings.Contains(text, "{{") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := col.Get(key)
		if !ok || v == nil {
			return ""
		}
		s := strings.TrimSpace(stringify(v))
		s = pathUnsafeRe.ReplaceAllString(s, "")
		return whitespaceRe.ReplaceAllString(s, "_")
	})
}

// CloneStepWithIndex deep-copies step and binds the loop index into its
// selector, value and key fields. The rebind descends through sub-steps but
// stops below any nested foreach, so a bare {{i}} always refers to its
// nearest enclosing loop.
func CloneStepWithIndex(step *schemas.Step, idx int) *schemas.Step {
	cloned := step.Clone()
	bindIndex(cloned, idx)
	return cloned
}

func bindIndex(step *schemas.Step, idx int) {
	step.Object = ReplaceIndex(step.Object, idx)
	step.Value = ReplaceIndex(step.Value, idx)
	step.Key = ReplaceIndex(step.Key, idx)
	if step.Action == schemas.ActionForEach {
		return
	}
	for _, sub := range step.SubSteps {
		bindIndex(sub, idx)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
