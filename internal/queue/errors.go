package queue

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound indicates the given task ID is unknown to the queue.
var ErrTaskNotFound = errors.New("task not found")

// FullError indicates the pending queue is at capacity. The task was
// rejected, never queued.
type FullError struct {
	// Limit is the configured pending-queue capacity.
	Limit int
}

// Error implements the error interface.
func (e *FullError) Error() string {
	return fmt.Sprintf("pending queue is full (limit %d)", e.Limit)
}

// StateError indicates an operation was applied to a task in the wrong
// lifecycle state (e.g. pausing a task that is not running).
type StateError struct {
	// TaskID identifies the task.
	TaskID string
	// Op is the attempted operation.
	Op string
	// Status is the task's current status.
	Status string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s task %s in status %s", e.Op, e.TaskID, e.Status)
}
