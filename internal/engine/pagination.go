// File: internal/engine/pagination.go
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lablnet/stepwright/api/schemas"
)

// paginator repeats the per-page steps across pages under one of the three
// ordering strategies. An advance failure is a normal terminal condition,
// never a template fault.
type paginator struct {
	r     *run
	cfg   *schemas.PaginationConfig
	steps []*schemas.Step
	base  *Collector
}

func (p *paginator) run(ctx context.Context) error {
	if p.cfg != nil && p.cfg.PaginateAllFirst {
		return p.runPaginateAllFirst(ctx)
	}

	pageIdx := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.r.log.Debug("Page cycle.", zap.Int("page", pageIdx))

		// paginationFirst advances before collecting, except on the first
		// page which is already loaded.
		if p.cfg != nil && p.cfg.PaginationFirst && pageIdx > 0 {
			if !p.advance(ctx) {
				return nil
			}
		}

		if err := p.collectPage(ctx); err != nil {
			return err
		}

		if p.cfg == nil {
			return nil
		}
		pageIdx++
		if p.cfg.MaxPages > 0 && pageIdx >= p.cfg.MaxPages {
			return nil
		}
		if !p.cfg.PaginationFirst {
			if !p.advance(ctx) {
				return nil
			}
		}
	}
}

// runPaginateAllFirst advances through every page collecting nothing, then
// collects once against the final accumulated page state.
func (p *paginator) runPaginateAllFirst(ctx context.Context) error {
	pageIdx := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.cfg.MaxPages > 0 && pageIdx >= p.cfg.MaxPages {
			break
		}
		if !p.advance(ctx) {
			break
		}
		pageIdx++
	}
	p.r.log.Debug("Paginated through all pages; collecting once.", zap.Int("pages", pageIdx))
	return p.collectPage(ctx)
}

// collectPage runs the per-page steps against a fresh clone of the base
// collector. If no foreach emitted records during the cycle, the page
// collector itself becomes one record.
func (p *paginator) collectPage(ctx context.Context) error {
	if len(p.steps) == 0 {
		return nil
	}
	col := p.base.Clone()
	emittedBefore := p.r.sink.count()

	for _, step := range p.steps {
		if err := p.r.executeStep(ctx, step, col, schemas.PageScope, 0); err != nil {
			return err
		}
	}

	if p.r.sink.count() == emittedBefore {
		return p.r.sink.emit(ctx, col.Snapshot())
	}
	return nil
}

// advance attempts to move to the next page. It reports false when there is
// no further page; driver errors during the attempt mean the same thing.
func (p *paginator) advance(ctx context.Context) bool {
	if p.cfg == nil {
		return false
	}
	if err := p.r.waitRateLimit(ctx); err != nil {
		return false
	}

	switch p.cfg.Strategy {
	case schemas.PaginateNext:
		return p.advanceNext(ctx)
	case schemas.PaginateScroll:
		return p.advanceScroll(ctx)
	default:
		return false
	}
}

// advanceNext clicks the configured next button. Failure is "selector not
// found or click errored".
func (p *paginator) advanceNext(ctx context.Context) bool {
	if p.cfg.NextButton == nil {
		return false
	}
	sel := schemas.Selector{Type: p.cfg.NextButton.ObjectType, Value: p.cfg.NextButton.Object}
	h, err := p.r.sess.Resolve(ctx, schemas.PageScope, sel)
	if err != nil {
		p.r.log.Debug("Next button not found; stopping pagination.", zap.String("selector", sel.Value))
		return false
	}
	if err := p.r.sess.Click(ctx, h, schemas.ClickOptions{}); err != nil {
		p.r.log.Debug("Next button click failed; stopping pagination.", zap.Error(err))
		return false
	}

	wait := p.r.settleWait
	if p.cfg.NextButton.WaitMs > 0 {
		wait = time.Duration(p.cfg.NextButton.WaitMs) * time.Millisecond
	}
	if err := sleep(ctx, wait); err != nil {
		return false
	}
	return true
}

// advanceScroll scrolls by the configured offset and reports failure when
// the page height did not grow, meaning no further content loaded.
func (p *paginator) advanceScroll(ctx context.Context) bool {
	before, err := p.r.sess.PageHeight(ctx)
	if err != nil {
		p.r.log.Debug("Page height sample failed; stopping pagination.", zap.Error(err))
		return false
	}

	offset := 0
	delay := defaultScrollDelay
	if p.cfg.Scroll != nil {
		offset = p.cfg.Scroll.Offset
		if p.cfg.Scroll.DelayMs > 0 {
			delay = time.Duration(p.cfg.Scroll.DelayMs) * time.Millisecond
		}
	}
	if err := p.r.sess.ScrollBy(ctx, offset); err != nil {
		p.r.log.Debug("Pagination scroll failed.", zap.Error(err))
		return false
	}
	if err := sleep(ctx, delay); err != nil {
		return false
	}

	after, err := p.r.sess.PageHeight(ctx)
	if err != nil {
		return false
	}
	if after <= before {
		p.r.log.Debug("No page height growth after scroll; stopping pagination.",
			zap.Float64("height", after))
		return false
	}
	return true
}
