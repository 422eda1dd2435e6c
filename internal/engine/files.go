// File: internal/engine/files.go
package engine

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lablnet/stepwright/api/schemas"
)

// handleSavePDF renders the current page to a PDF at the step's value path.
func (r *run) handleSavePDF(ctx context.Context, step *schemas.Step, col *Collector) error {
	if step.Value == "" {
		return fmt.Errorf("savePDF step %q requires a target filepath", step.ID)
	}
	path := ResolvePathPlaceholders(step.Value, col)
	if err := r.sess.SavePDF(ctx, path); err != nil {
		return err
	}
	col.Set(keyOr(step, "file"), path)
	return nil
}

var pdfRe = regexp.MustCompile(`(?i)\.pdf`)

// fileURLDiscoveryJS looks for a document source in common viewer elements.
const fileURLDiscoveryJS = `(function() {
    const abs = (src) => {
        if (!src) return null;
        try { return new URL(src, window.location.href).toString(); } catch { return null; }
    };
    const embed = document.querySelector('embed[type="application/pdf"], embed[src]');
    if (embed) { const u = abs(embed.getAttribute('src')); if (u) return u; }
    const obj = document.querySelector('object[type="application/pdf"], object[data]');
    if (obj) { const u = abs(obj.getAttribute('data')); if (u) return u; }
    const iframe = document.querySelector('iframe[src]');
    if (iframe) { const u = abs(iframe.getAttribute('src')); if (u) return u; }
    const link = document.querySelector('a[href$=".pdf" i]');
    if (link) { const u = abs(link.getAttribute('href')); if (u) return u; }
    return null;
})()`

// handleDownloadFile fetches the document the current page is displaying.
// It resolves the direct file URL from the page URL or common viewer
// markup; when no URL can be found it falls back to printing the page.
func (r *run) handleDownloadFile(ctx context.Context, step *schemas.Step, col *Collector) error {
	if step.Value == "" {
		return fmt.Errorf("%s step %q requires a target filepath", step.Action, step.ID)
	}
	path := ResolvePathPlaceholders(step.Value, col)

	src, err := r.discoverFileURL(ctx)
	if err != nil {
		return err
	}
	if src == "" {
		r.log.Debug("No direct file URL found; printing page to PDF.")
		if err := r.sess.SavePDF(ctx, path); err != nil {
			return err
		}
		col.Set(keyOr(step, "file"), path)
		return nil
	}

	if err := r.sess.DownloadURL(ctx, src, path); err != nil {
		return err
	}
	col.Set(keyOr(step, "file"), path)
	return nil
}

// discoverFileURL resolves a direct PDF/file URL for the current page:
// a file reference in a query parameter, the page URL itself, or a source
// discovered from viewer elements.
func (r *run) discoverFileURL(ctx context.Context) (string, error) {
	current, err := r.sess.URL(ctx)
	if err != nil {
		return "", err
	}

	if parsed, perr := url.Parse(current); perr == nil {
		for _, param := range []string{"file", "src", "document", "url"} {
			v := parsed.Query().Get(param)
			if v != "" && pdfRe.MatchString(v) {
				if ref, rerr := url.Parse(v); rerr == nil {
					return parsed.ResolveReference(ref).String(), nil
				}
			}
		}
	}
	if pdfRe.MatchString(current) {
		return current, nil
	}

	res, err := r.sess.Evaluate(ctx, fileURLDiscoveryJS)
	if err != nil {
		r.log.Debug("File URL discovery script failed.", zap.Error(err))
		return "", nil
	}
	if s, ok := res.(string); ok {
		return s, nil
	}
	return "", nil
}

// handleEventDownload clicks an element and captures the download it
// triggers. The saved path (or nil on failure) is always stored under the
// step's key.
func (r *run) handleEventDownload(ctx context.Context, step *schemas.Step, col *Collector, scope schemas.Handle) error {
	if step.Value == "" {
		return fmt.Errorf("eventBaseDownload step %q requires a target filepath", step.ID)
	}
	key := keyOr(step, "file")
	path := ResolvePathPlaceholders(step.Value, col)

	h, _, err := r.resolveWithFallbacks(ctx, scope, step, step.Object)
	if err != nil {
		r.log.Warn("Download trigger not found.", zap.String("selector", step.Object))
		col.Set(key, nil)
		return nil
	}
	if visible, verr := r.sess.IsVisible(ctx, h); verr != nil || !visible {
		r.log.Warn("Download trigger not visible.", zap.String("selector", step.Object))
		col.Set(key, nil)
		return nil
	}

	saved, err := r.sess.DownloadTriggeredBy(ctx, h, path, defaultDownloadTimeout)
	if err != nil {
		r.log.Warn("Download failed.", zap.String("selector", step.Object), zap.Error(err))
		col.Set(key, nil)
		return nil
	}
	col.Set(key, saved)
	return nil
}

// resolveHref turns a possibly relative link target into an absolute URL
// against the current page.
func resolveHref(current, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(current)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
