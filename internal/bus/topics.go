package bus

import "fmt"

// Topic patterns for pub/sub between the scheduler, agents, and observers.

// TopicAgentInbox is where one agent receives direct messages.
func TopicAgentInbox(agentID string) string {
	return fmt.Sprintf("agent.%s.inbox", agentID)
}

// TopicAgentBroadcast reaches every agent in the pool.
const TopicAgentBroadcast = "agent.broadcast"

// TopicSwarmResults carries subtask results for one decomposed task.
func TopicSwarmResults(taskID string) string {
	return fmt.Sprintf("swarm.%s.results", taskID)
}

// TopicTaskEvents carries lifecycle events for one task.
func TopicTaskEvents(taskID string) string {
	return fmt.Sprintf("events.task.%s", taskID)
}

const (
	// TopicEventsAll matches every event the process mirrors onto the bus.
	TopicEventsAll = "events.>"
	// TopicEventsTasks matches per-task event topics.
	TopicEventsTasks = "events.task.*"
)
