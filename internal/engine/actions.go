// File: internal/engine/actions.go
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/lablnet/stepwright/api/schemas"
)

// -- Page information --

func (r *run) handleGetURL(ctx context.Context, step *schemas.Step, col *Collector) error {
	url, err := r.sess.URL(ctx)
	if err != nil {
		return err
	}
	col.Set(keyOr(step, "url"), url)
	return nil
}

func (r *run) handleGetTitle(ctx context.Context, step *schemas.Step, col *Collector) error {
	title, err := r.sess.Title(ctx)
	if err != nil {
		return err
	}
	col.Set(keyOr(step, "title"), title)
	return nil
}

const metaOneJS = `(function(name) {
    const metas = document.querySelectorAll('meta');
    for (const meta of metas) {
        if (meta.getAttribute('name') === name || meta.getAttribute('property') === name) {
            return meta.getAttribute('content');
        }
    }
    return null;
})(%s)`

const metaAllJS = `(function() {
    const metas = {};
    document.querySelectorAll('meta').forEach(meta => {
        const name = meta.getAttribute('name') || meta.getAttribute('property');
        const content = meta.getAttribute('content');
        if (name && content) { metas[name] = content; }
    });
    return metas;
})()`

func (r *run) handleGetMeta(ctx context.Context, step *schemas.Step, col *Collector) error {
	key := keyOr(step, "meta")
	if step.Object != "" {
		name, err := jsoniter.MarshalToString(step.Object)
		if err != nil {
			return err
		}
		val, err := r.sess.Evaluate(ctx, fmt.Sprintf(metaOneJS, name))
		if err != nil {
			return err
		}
		col.Set(key, val)
		return nil
	}
	all, err := r.sess.Evaluate(ctx, metaAllJS)
	if err != nil {
		return err
	}
	col.Set(key, all)
	return nil
}

// -- Cookies --

func (r *run) handleGetCookies(ctx context.Context, step *schemas.Step, col *Collector) error {
	url := step.Value
	if url == "" {
		current, err := r.sess.URL(ctx)
		if err != nil {
			return err
		}
		url = current
	}
	cookies, err := r.sess.Cookies(ctx, url)
	if err != nil {
		return err
	}
	if step.Object != "" {
		col.Set(keyOr(step, "cookie"), cookies[step.Object])
		return nil
	}
	col.Set(keyOr(step, "cookies"), cookies)
	return nil
}

func (r *run) handleSetCookies(ctx context.Context, step *schemas.Step, col *Collector) error {
	if step.Object == "" {
		return fmt.Errorf("setCookies step %q requires a cookie name", step.ID)
	}
	if step.Value == "" {
		return fmt.Errorf("setCookies step %q requires a cookie value", step.ID)
	}
	name := ResolvePlaceholders(step.Object, col)
	value := ResolvePlaceholders(step.Value, col)
	return r.sess.SetCookie(ctx, name, value)
}

// -- Local and session storage --

func (r *run) handleStorageGet(ctx context.Context, step *schemas.Step, col *Collector, kind schemas.StorageKind) error {
	val, err := r.sess.StorageGet(ctx, kind, step.Object)
	if err != nil {
		return err
	}
	col.Set(keyOr(step, string(kind)), val)
	return nil
}

func (r *run) handleStorageSet(ctx context.Context, step *schemas.Step, col *Collector, kind schemas.StorageKind) error {
	if step.Object == "" {
		return fmt.Errorf("%s set step %q requires a key name", kind, step.ID)
	}
	key := ResolvePlaceholders(step.Object, col)
	value := ResolvePlaceholders(step.Value, col)
	return r.sess.StorageSet(ctx, kind, key, value)
}

// -- Viewport --

func (r *run) handleGetViewport(ctx context.Context, step *schemas.Step, col *Collector) error {
	w, h, err := r.sess.Viewport(ctx)
	if err != nil {
		return err
	}
	col.Set(keyOr(step, "viewportSize"), map[string]any{"width": w, "height": h})
	return nil
}

// handleSetViewport parses dimensions given as "1920x1080", "1920,1080" or
// "1920 1080".
func (r *run) handleSetViewport(ctx context.Context, step *schemas.Step) error {
	if step.Value == "" {
		return fmt.Errorf("setViewportSize step %q requires dimensions", step.ID)
	}
	dims := strings.NewReplacer("x", ",", " ", ",").Replace(step.Value)
	parts := strings.Split(dims, ",")
	if len(parts) != 2 {
		return fmt.Errorf("invalid viewport size %q, use \"widthxheight\"", step.Value)
	}
	w, werr := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, herr := strconv.Atoi(strings.TrimSpace(parts[1]))
	if werr != nil || herr != nil {
		return fmt.Errorf("invalid viewport size %q, use \"widthxheight\"", step.Value)
	}
	return r.sess.SetViewport(ctx, w, h)
}

// -- Screenshot --

func (r *run) handleScreenshot(ctx context.Context, step *schemas.Step, col *Collector) error {
	if step.Value == "" {
		return fmt.Errorf("screenshot step %q requires a target filepath", step.ID)
	}
	path := ResolvePathPlaceholders(step.Value, col)

	if step.Object != "" {
		sel := schemas.Selector{Type: step.ObjectType, Value: step.Object}
		h, err := r.sess.Resolve(ctx, schemas.PageScope, sel)
		if err == nil {
			if err := r.sess.Screenshot(ctx, h, path, false); err != nil {
				return err
			}
			if step.Key != "" {
				col.Set(step.Key, path)
			}
			return nil
		}
		r.log.Warn("Screenshot element not found; capturing full page.",
			zap.String("selector", step.Object))
		if err := r.sess.Screenshot(ctx, schemas.PageScope, path, true); err != nil {
			return err
		}
	} else {
		fullPage := step.DataType == "full"
		if err := r.sess.Screenshot(ctx, schemas.PageScope, path, fullPage); err != nil {
			return err
		}
	}
	if step.Key != "" {
		col.Set(step.Key, path)
	}
	return nil
}

// -- Explicit waits and script evaluation --

func (r *run) handleWaitForSelector(ctx context.Context, step *schemas.Step, col *Collector) error {
	if step.Object == "" {
		return fmt.Errorf("waitForSelector step %q requires a selector", step.ID)
	}
	state := step.Value
	switch state {
	case "visible", "hidden", "attached", "detached":
	default:
		state = "visible"
	}
	timeout := msOrDefault(step.WaitMs, defaultWaitForSelectorTimeout)
	sel := schemas.Selector{Type: step.ObjectType, Value: step.Object}

	err := r.sess.WaitFor(ctx, schemas.PageScope, sel, state, timeout)
	if step.Key != "" {
		col.Set(step.Key, err == nil)
	}
	return err
}

func (r *run) handleEvaluate(ctx context.Context, step *schemas.Step, col *Collector) error {
	if step.Value == "" {
		return fmt.Errorf("evaluate step %q requires JavaScript code", step.ID)
	}
	js := ResolvePlaceholders(step.Value, col)
	res, err := r.sess.Evaluate(ctx, js)
	if err != nil {
		if step.Key != "" {
			col.Set(step.Key, nil)
		}
		return err
	}
	if step.Key != "" {
		col.Set(step.Key, res)
	}
	return nil
}
