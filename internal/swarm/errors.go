package swarm

import (
	"fmt"
	"strings"
)

// NoCapableAgentError indicates no registered agent declares every
// capability a subtask requires. Routing failures are always reported,
// never silently dropped.
type NoCapableAgentError struct {
	// SubtaskID identifies the unroutable subtask.
	SubtaskID string
	// Capabilities lists the required capability tags.
	Capabilities []string
}

// Error implements the error interface.
func (e *NoCapableAgentError) Error() string {
	return fmt.Sprintf("no agent provides capabilities [%s] for subtask %s",
		strings.Join(e.Capabilities, ", "), e.SubtaskID)
}

// SaturatedError indicates an agent's backlog is full. The subtask was
// rejected, not queued.
type SaturatedError struct {
	// AgentID identifies the saturated agent.
	AgentID string
	// Name is the agent's human-readable name.
	Name string
}

// Error implements the error interface.
func (e *SaturatedError) Error() string {
	return fmt.Sprintf("agent %s queue is full", e.Name)
}
