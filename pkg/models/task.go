// Package models defines the shared record types used across the engine:
// tasks, steps, subtasks, agents, and their lifecycle statuses.
package models

import "time"

// Priority represents the scheduling priority of a task.
type Priority string

const (
	// PriorityUrgent is the highest priority; urgent tasks jump the queue.
	PriorityUrgent Priority = "urgent"
	// PriorityHigh is for important tasks that should run soon.
	PriorityHigh Priority = "high"
	// PriorityNormal is the default priority.
	PriorityNormal Priority = "normal"
	// PriorityLow is for background work that can wait.
	PriorityLow Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// Weight returns the numeric scheduling weight of the priority.
// Higher weights are admitted first (urgent=4 ... low=1).
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been created but not enqueued.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusQueued indicates the task is waiting for an execution slot.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusRunning indicates the task is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusPaused indicates the task is suspended and can be resumed.
	TaskStatusPaused TaskStatus = "paused"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task finished with an error.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before finishing.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusQueued, TaskStatusRunning,
		TaskStatusPaused, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a terminal state.
// A task in a terminal state is never mutated again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Complexity classifies how much work a task is expected to require.
// It drives the decomposition decision and duration estimates.
type Complexity string

const (
	// ComplexityLow tasks run directly without decomposition.
	ComplexityLow Complexity = "low"
	// ComplexityMedium tasks are decomposed into a handful of subtasks.
	ComplexityMedium Complexity = "medium"
	// ComplexityHigh tasks are decomposed and usually fanned out in parallel.
	ComplexityHigh Complexity = "high"
	// ComplexityCritical tasks get the most careful decomposition.
	ComplexityCritical Complexity = "critical"
)

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh, ComplexityCritical:
		return true
	default:
		return false
	}
}

// EstimatedDuration returns the advisory duration estimate for one unit of
// work at this complexity tier. It is never used to enforce timeouts.
func (c Complexity) EstimatedDuration() time.Duration {
	switch c {
	case ComplexityLow:
		return 30 * time.Second
	case ComplexityMedium:
		return 60 * time.Second
	case ComplexityHigh:
		return 180 * time.Second
	case ComplexityCritical:
		return 300 * time.Second
	default:
		return 60 * time.Second
	}
}

// Task represents a unit of work with ordered steps, a priority, and a
// lifecycle status. Once enqueued, the scheduler owns the task's status,
// progress, and terminal fields; the step executor owns step statuses and
// results. No other component writes these fields.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Name is the short human-readable name of the task.
	Name string `json:"name"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Priority determines the task's position in the pending queue.
	Priority Priority `json:"priority"`
	// Status is the current lifecycle state of the task.
	Status TaskStatus `json:"status"`
	// Complexity classifies the task for the decomposition decision.
	Complexity Complexity `json:"complexity,omitempty"`
	// Steps is the ordered list of steps to execute.
	Steps []*Step `json:"steps"`
	// InitialContext holds the caller-supplied starting variables.
	InitialContext map[string]any `json:"initial_context,omitempty"`
	// Variables is the mutable execution context, seeded from InitialContext.
	Variables map[string]any `json:"variables,omitempty"`
	// StepResults maps step IDs to their results as steps finish.
	StepResults map[string]*StepResult `json:"step_results,omitempty"`
	// Progress is the completion percentage (0-100). It never decreases
	// while the task is running.
	Progress int `json:"progress"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task entered an execution slot, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count,omitempty"`
	// MaxRetries is the maximum number of task-level retries allowed.
	MaxRetries int `json:"max_retries,omitempty"`
	// Source tags where the task came from (cli, api, voice, ...).
	Source string `json:"source,omitempty"`
	// Result holds the final output once the task completes.
	Result any `json:"result,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
}

// Step returns the step with the given ID, or nil if none exists.
func (t *Task) Step(id string) *Step {
	for _, s := range t.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Duration returns the wall-clock execution time of the task, or zero if the
// task has not both started and completed.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}
