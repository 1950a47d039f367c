package executor

import (
	"fmt"
	"time"
)

// StepTimeoutError indicates a step exceeded its timeout. Whatever the
// underlying collaborator eventually returns is discarded.
type StepTimeoutError struct {
	// StepID identifies the step that timed out.
	StepID string
	// Timeout is the limit that was exceeded.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s", e.StepID, e.Timeout)
}

// StepError wraps a step failure with the step that produced it.
type StepError struct {
	// StepID identifies the failed step.
	StepID string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.StepID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}
