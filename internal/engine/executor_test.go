// internal/engine/executor_test.go
package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lablnet/stepwright/api/schemas"
)

func TestExecuteStepRetry(t *testing.T) {
	t.Parallel()

	t.Run("retry budget yields r plus one attempts", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		boom := errors.New("boom")
		sess.navErrs = []error{boom, boom, boom, boom}
		r := newTestRun(sess)

		step := &schemas.Step{
			ID:     "nav",
			Action: schemas.ActionNavigate,
			Value:  "https://example.test/a",
			Retry:  2, RetryDelayMs: 1,
		}
		err := r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0)
		require.NoError(t, err, "default policy swallows the exhausted failure")
		assert.Len(t, sess.navigations, 3)
	})

	t.Run("stops retrying after first success", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.navErrs = []error{errors.New("transient")}
		r := newTestRun(sess)

		step := &schemas.Step{
			ID:     "nav",
			Action: schemas.ActionNavigate,
			Value:  "https://example.test/a",
			Retry:  5, RetryDelayMs: 1,
		}
		err := r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0)
		require.NoError(t, err)
		assert.Len(t, sess.navigations, 2)
	})

	t.Run("zero retry is a single attempt", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.navErrs = []error{errors.New("boom")}
		r := newTestRun(sess)

		step := &schemas.Step{ID: "nav", Action: schemas.ActionNavigate, Value: "https://x.test"}
		require.NoError(t, r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0))
		assert.Len(t, sess.navigations, 1)
	})
}

func TestExecuteStepFailurePolicy(t *testing.T) {
	t.Parallel()

	t.Run("terminateonerror surfaces a step error", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		boom := errors.New("boom")
		sess.navErrs = []error{boom}
		r := newTestRun(sess)

		step := &schemas.Step{
			ID: "nav", Action: schemas.ActionNavigate,
			Value: "https://x.test", TerminateOnError: true,
		}
		err := r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0)
		require.Error(t, err)
		var stepErr *schemas.StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, "nav", stepErr.StepID)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("skipOnError wins over terminateonerror", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.navErrs = []error{errors.New("boom")}
		r := newTestRun(sess)

		step := &schemas.Step{
			ID: "nav", Action: schemas.ActionNavigate, Value: "https://x.test",
			SkipOnError: true, TerminateOnError: true,
		}
		assert.NoError(t, r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0))
	})
}

func TestExecuteStepGating(t *testing.T) {
	t.Parallel()

	t.Run("skipIf true suppresses the action", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.evalFn = func(expr string) (any, error) { return true, nil }
		r := newTestRun(sess)

		step := &schemas.Step{
			ID: "nav", Action: schemas.ActionNavigate,
			Value: "https://x.test", SkipIf: "1 === 1",
		}
		require.NoError(t, r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0))
		assert.Empty(t, sess.navigations)
	})

	t.Run("onlyIf false suppresses the action", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.evalFn = func(expr string) (any, error) { return false, nil }
		r := newTestRun(sess)

		step := &schemas.Step{
			ID: "nav", Action: schemas.ActionNavigate,
			Value: "https://x.test", OnlyIf: "window.ready",
		}
		require.NoError(t, r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0))
		assert.Empty(t, sess.navigations)
	})

	t.Run("condition errors read as false", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.evalFn = func(expr string) (any, error) { return nil, errors.New("ReferenceError") }
		r := newTestRun(sess)

		// skipIf that fails to evaluate must not skip.
		step := &schemas.Step{
			ID: "nav", Action: schemas.ActionNavigate,
			Value: "https://x.test", SkipIf: "bogus(",
		}
		require.NoError(t, r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0))
		assert.Len(t, sess.navigations, 1)
	})

	t.Run("placeholders resolve before evaluation", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		var seen string
		sess.evalFn = func(expr string) (any, error) {
			seen = expr
			return false, nil
		}
		r := newTestRun(sess)
		col := NewCollector()
		col.Set("count", "3")

		step := &schemas.Step{
			ID: "nav", Action: schemas.ActionNavigate,
			Value: "https://x.test", SkipIf: "{{count}} > 2",
		}
		require.NoError(t, r.executeStep(context.Background(), step, col, schemas.PageScope, 0))
		assert.Contains(t, seen, "3 > 2")
	})
}

func TestExecuteStepTimeout(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	sess.navDelay = 200 * time.Millisecond
	r := newTestRun(sess)

	step := &schemas.Step{
		ID: "nav", Action: schemas.ActionNavigate, Value: "https://x.test",
		TimeoutMs: 20, TerminateOnError: true,
	}
	err := r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrActionTimeout)
}

func TestHandleInput(t *testing.T) {
	t.Parallel()

	t.Run("fills resolved value", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.addElement("search", "/html/body/input[1]")
		r := newTestRun(sess)
		col := NewCollector()
		col.Set("query", "golang")

		step := &schemas.Step{
			ID: "in", Action: schemas.ActionInput,
			ObjectType: schemas.SelectorID, Object: "search", Value: "{{query}} books",
		}
		require.NoError(t, r.executeStep(context.Background(), step, col, schemas.PageScope, 0))
		assert.Equal(t, "golang books", sess.fills["/html/body/input[1]"])
	})

	t.Run("missing element fails when continueOnEmpty is false", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		r := newTestRun(sess)

		step := &schemas.Step{
			ID: "in", Action: schemas.ActionInput,
			Object: "nope", ContinueOnEmpty: boolPtr(false), TerminateOnError: true,
		}
		err := r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0)
		assert.ErrorIs(t, err, schemas.ErrElementNotFound)
	})
}

func TestHandleClick(t *testing.T) {
	t.Parallel()

	t.Run("refuses an invisible element", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.addElement("buy", "/html/body/button[1]")
		sess.hidden["/html/body/button[1]"] = true
		r := newTestRun(sess)

		step := &schemas.Step{
			ID: "c", Action: schemas.ActionClick,
			ObjectType: schemas.SelectorID, Object: "buy", TerminateOnError: true,
		}
		err := r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "not visible"))
		assert.Empty(t, sess.clicks)
	})

	t.Run("forceClick bypasses visibility", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.addElement("buy", "/html/body/button[1]")
		sess.hidden["/html/body/button[1]"] = true
		r := newTestRun(sess)

		step := &schemas.Step{
			ID: "c", Action: schemas.ActionClick,
			ObjectType: schemas.SelectorID, Object: "buy", ForceClick: true,
		}
		require.NoError(t, r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0))
		assert.Equal(t, []string{"/html/body/button[1]"}, sess.clicks)
	})

	t.Run("requireEnabled rejects a disabled element", func(t *testing.T) {
		t.Parallel()
		sess := newFakeSession()
		sess.addElement("buy", "/html/body/button[1]")
		sess.disabled["/html/body/button[1]"] = true
		r := newTestRun(sess)

		step := &schemas.Step{
			ID: "c", Action: schemas.ActionClick,
			ObjectType: schemas.SelectorID, Object: "buy",
			RequireEnabled: true, TerminateOnError: true,
		}
		err := r.executeStep(context.Background(), step, NewCollector(), schemas.PageScope, 0)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "not enabled"))
	})
}
