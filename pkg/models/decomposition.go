package models

import "time"

// ExecutionMode selects how a decomposition's subtasks are dispatched.
type ExecutionMode string

const (
	// ModeSequential runs subtasks one at a time, in order.
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel runs independent subtasks concurrently.
	ModeParallel ExecutionMode = "parallel"
	// ModeHybrid runs dependency waves, each wave in parallel.
	ModeHybrid ExecutionMode = "hybrid"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeHybrid:
		return true
	default:
		return false
	}
}

// ExecutionStrategy describes how a decomposition should be executed.
type ExecutionStrategy struct {
	// Mode is the dispatch mode for the subtasks.
	Mode ExecutionMode `json:"mode"`
	// ParallelFactor bounds concurrent subtasks for parallel and hybrid modes.
	ParallelFactor int `json:"parallel_factor,omitempty"`
	// Retry names the retry policy applied to failed subtasks.
	Retry string `json:"retry,omitempty"`
}

// Subtask is one unit of a decomposed task. It inherits the parent task's
// priority and context and carries its own sibling dependencies.
type Subtask struct {
	// ID is the unique identifier for this subtask.
	ID string `json:"id"`
	// ParentID is the ID of the task this subtask was derived from.
	ParentID string `json:"parent_id"`
	// Description says what this subtask should accomplish.
	Description string `json:"description"`
	// Type labels the kind of work (research, implementation, review, ...).
	Type string `json:"type,omitempty"`
	// Capabilities lists the agent capability tags this subtask requires.
	Capabilities []string `json:"capabilities,omitempty"`
	// Complexity classifies the subtask for duration estimates.
	Complexity Complexity `json:"complexity,omitempty"`
	// DependsOn lists sibling subtask IDs that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`
	// Priority is inherited from the parent task.
	Priority Priority `json:"priority"`
	// Context is the execution context inherited from the parent.
	Context map[string]any `json:"context,omitempty"`
}

// Decomposition is the result of splitting one task into subtasks plus a
// chosen execution strategy.
type Decomposition struct {
	// TaskID references the original task.
	TaskID string `json:"task_id"`
	// Subtasks is the ordered list of generated subtasks.
	Subtasks []*Subtask `json:"subtasks"`
	// Strategy is the chosen execution strategy.
	Strategy ExecutionStrategy `json:"strategy"`
	// EstimatedDuration is the advisory total duration estimate.
	EstimatedDuration time.Duration `json:"estimated_duration"`
	// Capabilities is the union of all subtask capability requirements.
	Capabilities []string `json:"capabilities,omitempty"`
}

// Trivial returns true if the decomposition is a single subtask standing in
// for the original task.
func (d *Decomposition) Trivial() bool {
	return len(d.Subtasks) == 1
}
