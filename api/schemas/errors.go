package schemas

import (
	"errors"
	"fmt"
)

// Error kinds produced by the engine. Callers match them with errors.Is.
var (
	// ErrElementNotFound means the primary selector and every fallback
	// matched nothing.
	ErrElementNotFound = errors.New("element not found")

	// ErrConditionEval means a skipIf/onlyIf expression threw. The engine
	// treats it as false; it is surfaced only in logs.
	ErrConditionEval = errors.New("condition evaluation failed")

	// ErrActionTimeout means a step or wait-for-selector exceeded its bound.
	ErrActionTimeout = errors.New("action timed out")

	// ErrExtractionRequired means a required data step produced an empty
	// value after the regex/transform/default pipeline.
	ErrExtractionRequired = errors.New("required extraction produced empty value")

	// ErrAdvanceFailed means pagination could not progress. It terminates
	// pagination normally and never aborts a template.
	ErrAdvanceFailed = errors.New("pagination advance failed")

	// ErrDriver wraps failures of the underlying automation driver.
	ErrDriver = errors.New("driver error")
)

// StepError carries enough context to diagnose a failed step without
// browser introspection.
type StepError struct {
	StepID string
	Action Action
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (%s): %v", e.StepID, e.Action, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// NewStepError wraps err with the failing step's identity. A nil err
// returns nil.
func NewStepError(step *Step, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{StepID: step.ID, Action: step.Action, Err: err}
}
