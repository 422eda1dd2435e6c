// api/schemas/steps_test.go
package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepClone(t *testing.T) {
	t.Parallel()

	tru := true
	group := 2
	orig := &Step{
		ID:              "parent",
		Action:          ActionForEach,
		Object:          ".row",
		ContinueOnEmpty: &tru,
		RegexGroup:      &group,
		FallbackSelectors: []FallbackSelector{
			{ObjectType: SelectorClass, Object: ".alt"},
		},
		SubSteps: []*Step{
			{ID: "child", Action: ActionData, Key: "k"},
		},
	}

	clone := orig.Clone()
	require.NotNil(t, clone)

	// Mutating the clone must leave the original untouched.
	*clone.ContinueOnEmpty = false
	*clone.RegexGroup = 9
	clone.SubSteps[0].Key = "changed"
	clone.FallbackSelectors[0].Object = ".mutated"

	assert.True(t, *orig.ContinueOnEmpty)
	assert.Equal(t, 2, *orig.RegexGroup)
	assert.Equal(t, "k", orig.SubSteps[0].Key)
	assert.Equal(t, ".alt", orig.FallbackSelectors[0].Object)
}

func TestActionValid(t *testing.T) {
	t.Parallel()

	assert.True(t, ActionNavigate.Valid())
	assert.True(t, ActionEventDownload.Valid())
	assert.False(t, Action("teleport").Valid())
	assert.False(t, Action("").Valid())
}

func TestStepError(t *testing.T) {
	t.Parallel()

	cause := errors.New("element vanished")
	step := &Step{ID: "click-buy", Action: ActionClick}
	err := NewStepError(step, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "click-buy")

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "click-buy", stepErr.StepID)
	assert.Equal(t, ActionClick, stepErr.Action)
}
