// Package events defines the typed event stream emitted by the engine.
// Consumers (UI, voice, logging layers) subscribe to the stream and never
// mutate engine state through it.
package events

import (
	"time"

	"github.com/jfeld/taskforge/pkg/models"
)

// Type represents the kind of engine event.
type Type string

const (
	// TaskQueued indicates a task entered the pending queue.
	TaskQueued Type = "task:queued"
	// TaskStarted indicates a task entered an execution slot.
	TaskStarted Type = "task:started"
	// TaskProgress reports a progress change during execution.
	TaskProgress Type = "task:progress"
	// TaskStepStarted indicates a step began executing.
	TaskStepStarted Type = "task:step-started"
	// TaskStepCompleted indicates a step reached a terminal status.
	TaskStepCompleted Type = "task:step-completed"
	// TaskCompleted indicates a task reached a terminal status.
	TaskCompleted Type = "task:completed"
	// TaskPaused indicates a running task was paused.
	TaskPaused Type = "task:paused"
	// TaskResumed indicates a paused task was resumed.
	TaskResumed Type = "task:resumed"
	// TaskCancelled indicates a task was cancelled.
	TaskCancelled Type = "task:cancelled"
	// AgentTaskComplete indicates a swarm agent finished a subtask.
	AgentTaskComplete Type = "agent:task-complete"
)

// Event represents one engine event. Fields beyond Type and Timestamp are
// populated when applicable to the event kind.
type Event struct {
	// Type is the kind of event.
	Type Type `json:"type"`
	// TaskID is the ID of the related task, if applicable.
	TaskID string `json:"task_id,omitempty"`
	// StepID is the ID of the related step, if applicable.
	StepID string `json:"step_id,omitempty"`
	// AgentID is the ID of the related agent, if applicable.
	AgentID string `json:"agent_id,omitempty"`
	// Status is the task or step status carried by the event.
	Status string `json:"status,omitempty"`
	// Progress is the task's completion percentage (0-100).
	Progress int `json:"progress,omitempty"`
	// CompletedSteps counts steps in a terminal status.
	CompletedSteps int `json:"completed_steps,omitempty"`
	// TotalSteps counts all steps in the task.
	TotalSteps int `json:"total_steps,omitempty"`
	// Message provides additional context about the event.
	Message string `json:"message,omitempty"`
	// Error contains the error message for failure events.
	Error string `json:"error,omitempty"`
	// Duration is the execution time, for completion events.
	Duration time.Duration `json:"duration,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// TaskEvent builds an event snapshot for the given task.
func TaskEvent(typ Type, task *models.Task) Event {
	completed := 0
	for _, s := range task.Steps {
		if s.Status.Terminal() {
			completed++
		}
	}
	return Event{
		Type:           typ,
		TaskID:         task.ID,
		Status:         string(task.Status),
		Progress:       task.Progress,
		CompletedSteps: completed,
		TotalSteps:     len(task.Steps),
		Error:          task.Error,
		Timestamp:      time.Now(),
	}
}
