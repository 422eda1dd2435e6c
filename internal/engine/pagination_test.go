// internal/engine/pagination_test.go
package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lablnet/stepwright/api/schemas"
)

func titleStep() []*schemas.Step {
	return []*schemas.Step{
		{ID: "t", Action: schemas.ActionGetTitle, Key: "title"},
	}
}

func TestPaginatorNextStrategy(t *testing.T) {
	t.Parallel()

	t.Run("maxPages bounds the cycle", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.addElement(".next", "/a[1]")
		r := newTestRun(sess)

		p := &paginator{
			r: r,
			cfg: &schemas.PaginationConfig{
				Strategy:   schemas.PaginateNext,
				NextButton: &schemas.NextButtonConfig{ObjectType: schemas.SelectorClass, Object: ".next", WaitMs: 1},
				MaxPages:   3,
			},
			steps: titleStep(),
			base:  NewCollector(),
		}
		require.NoError(t, p.run(context.Background()))

		// Collect, advance, collect, advance, collect, stop.
		assert.Len(t, r.sink.records, 3)
		assert.Len(t, sess.clicks, 2)
	})

	t.Run("missing next button ends pagination", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession() // no .next in the DOM
		r := newTestRun(sess)

		p := &paginator{
			r: r,
			cfg: &schemas.PaginationConfig{
				Strategy:   schemas.PaginateNext,
				NextButton: &schemas.NextButtonConfig{Object: ".next", WaitMs: 1},
				MaxPages:   10,
			},
			steps: titleStep(),
			base:  NewCollector(),
		}
		require.NoError(t, p.run(context.Background()))
		assert.Len(t, r.sink.records, 1, "first page still collects")
		assert.Empty(t, sess.clicks)
	})

	t.Run("paginationFirst advances before collecting", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.addElement(".next", "/a[1]")
		r := newTestRun(sess)

		p := &paginator{
			r: r,
			cfg: &schemas.PaginationConfig{
				Strategy:        schemas.PaginateNext,
				NextButton:      &schemas.NextButtonConfig{ObjectType: schemas.SelectorClass, Object: ".next", WaitMs: 1},
				MaxPages:        2,
				PaginationFirst: true,
			},
			steps: titleStep(),
			base:  NewCollector(),
		}
		require.NoError(t, p.run(context.Background()))
		// Page 0 collects as loaded; page 1 advances first, then collects.
		assert.Len(t, r.sink.records, 2)
		assert.Len(t, sess.clicks, 1)
	})

	t.Run("paginateAllFirst collects exactly once", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.addElement(".next", "/a[1]")
		r := newTestRun(sess)

		p := &paginator{
			r: r,
			cfg: &schemas.PaginationConfig{
				Strategy:         schemas.PaginateNext,
				NextButton:       &schemas.NextButtonConfig{ObjectType: schemas.SelectorClass, Object: ".next", WaitMs: 1},
				MaxPages:         4,
				PaginateAllFirst: true,
			},
			steps: titleStep(),
			base:  NewCollector(),
		}
		require.NoError(t, p.run(context.Background()))
		assert.Len(t, sess.clicks, 4, "advances through every page first")
		assert.Len(t, r.sink.records, 1, "single collection against the final state")
	})
}

func TestPaginatorScrollStrategy(t *testing.T) {
	t.Parallel()

	t.Run("stops when the page height stops growing", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		// before/after samples: grows once (1000 -> 2000), then stalls.
		sess.heights = []float64{1000, 2000, 2000, 2000}
		r := newTestRun(sess)

		p := &paginator{
			r: r,
			cfg: &schemas.PaginationConfig{
				Strategy: schemas.PaginateScroll,
				Scroll:   &schemas.ScrollConfig{Offset: 800, DelayMs: 1},
				MaxPages: 10,
			},
			steps: titleStep(),
			base:  NewCollector(),
		}
		require.NoError(t, p.run(context.Background()))
		assert.Len(t, sess.scrollBys, 2)
		assert.Equal(t, []int{800, 800}, sess.scrollBys)
		assert.Len(t, r.sink.records, 2, "collects the page that grew, then the final one")
	})

	t.Run("zero offset delegates viewport height to the driver", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.heights = []float64{1000, 1000}
		r := newTestRun(sess)

		p := &paginator{
			r:     r,
			cfg:   &schemas.PaginationConfig{Strategy: schemas.PaginateScroll, Scroll: &schemas.ScrollConfig{DelayMs: 1}, MaxPages: 5},
			steps: titleStep(),
			base:  NewCollector(),
		}
		require.NoError(t, p.run(context.Background()))
		assert.Equal(t, []int{0}, sess.scrollBys)
	})
}

func TestPaginatorWithoutConfig(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	r := newTestRun(sess)
	p := &paginator{r: r, steps: titleStep(), base: NewCollector()}

	require.NoError(t, p.run(context.Background()))
	assert.Len(t, r.sink.records, 1)
	assert.Equal(t, "Example", r.sink.records[0]["title"])
}

func TestCollectPageFallbackRecord(t *testing.T) {
	t.Parallel()

	t.Run("page collector becomes the record when no foreach emitted", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.addElement("h1", "/h1[1]")
		sess.setText("/h1[1]", "Solo")
		r := newTestRun(sess)

		p := &paginator{
			r: r,
			steps: []*schemas.Step{
				{ID: "t", Action: schemas.ActionData, ObjectType: schemas.SelectorTag, Object: "h1", Key: "title"},
			},
			base: NewCollector(),
		}
		require.NoError(t, p.run(context.Background()))
		require.Len(t, r.sink.records, 1)
		assert.Equal(t, "Solo", r.sink.records[0]["title"])
	})

	t.Run("no duplicate page record after foreach emissions", func(t *testing.T) {
		t.Parallel()
		sess := bookListSession()
		r := newTestRun(sess)

		p := &paginator{
			r:     r,
			steps: []*schemas.Step{forEachBooksStep()},
			base:  NewCollector(),
		}
		require.NoError(t, p.run(context.Background()))
		assert.Len(t, r.sink.records, 3, "only the foreach records, no trailing page record")
	})
}
