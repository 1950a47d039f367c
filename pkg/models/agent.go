package models

import "time"

// AgentStatus represents the current state of a worker agent.
type AgentStatus string

const (
	// AgentStatusInitializing indicates the agent is starting up.
	AgentStatusInitializing AgentStatus = "initializing"
	// AgentStatusIdle indicates the agent has no queued work.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusBusy indicates the agent is executing at least one subtask.
	AgentStatusBusy AgentStatus = "busy"
	// AgentStatusError indicates the agent's last execution crashed.
	AgentStatusError AgentStatus = "error"
	// AgentStatusOffline indicates the agent has been shut down.
	AgentStatusOffline AgentStatus = "offline"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusInitializing, AgentStatusIdle, AgentStatusBusy,
		AgentStatusError, AgentStatusOffline:
		return true
	default:
		return false
	}
}

// AgentInfo is a read-only snapshot of an agent's state, exposed to the
// CLI and event consumers. Consumers never mutate agent state through it.
type AgentInfo struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Name is the human-readable agent name.
	Name string `json:"name"`
	// Type labels the agent implementation (llm, tool, ...).
	Type string `json:"type"`
	// Capabilities lists the capability tags this agent declares.
	Capabilities []string `json:"capabilities"`
	// MaxConcurrent is the agent's concurrent-subtask limit.
	MaxConcurrent int `json:"max_concurrent"`
	// Status is the agent's current state.
	Status AgentStatus `json:"status"`
	// QueueDepth is the number of subtasks waiting in the agent's queue.
	QueueDepth int `json:"queue_depth"`
	// TasksExecuted is the running total of subtasks this agent has run.
	TasksExecuted int64 `json:"tasks_executed"`
	// TasksSucceeded is the running total of successful subtasks.
	TasksSucceeded int64 `json:"tasks_succeeded"`
	// StartedAt is when the agent was registered.
	StartedAt time.Time `json:"started_at"`
}
