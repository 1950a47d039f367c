package models

import "time"

// StepResult records the outcome of one step execution.
type StepResult struct {
	// StepID identifies the step this result belongs to.
	StepID string `json:"step_id"`
	// Status is the terminal status of the step.
	Status StepStatus `json:"status"`
	// Data is the step's output payload, if any.
	Data any `json:"data,omitempty"`
	// Error contains the failure message if the step failed.
	Error string `json:"error,omitempty"`
	// Duration is how long the step ran.
	Duration time.Duration `json:"duration"`
	// CompletedAt is when the step reached its terminal status.
	CompletedAt time.Time `json:"completed_at"`
	// Attempts is how many times the step was tried (1 for no retries).
	Attempts int `json:"attempts"`
}

// Success returns true if the step completed.
func (r *StepResult) Success() bool {
	return r != nil && r.Status == StepStatusCompleted
}

// TaskResult is the outcome of one subtask as produced by an agent.
type TaskResult struct {
	// SubtaskID identifies the subtask this result belongs to.
	SubtaskID string `json:"subtask_id"`
	// AgentID identifies the agent that produced the result.
	AgentID string `json:"agent_id"`
	// Success indicates whether the subtask succeeded.
	Success bool `json:"success"`
	// Output is the textual output of the subtask.
	Output string `json:"output,omitempty"`
	// Data holds structured output, if any.
	Data map[string]any `json:"data,omitempty"`
	// Error contains the failure message if the subtask failed.
	Error string `json:"error,omitempty"`
	// Duration is how long the subtask ran.
	Duration time.Duration `json:"duration"`
	// CompletedAt is when the subtask finished.
	CompletedAt time.Time `json:"completed_at"`
}

// AggregationResult combines multiple subtask results into one outcome.
type AggregationResult struct {
	// Success indicates the aggregation met its strategy's success rule.
	Success bool `json:"success"`
	// Output is the combined textual output.
	Output string `json:"output,omitempty"`
	// Data is the combined structured output.
	Data map[string]any `json:"data,omitempty"`
	// Errors collects the failure messages of unsuccessful subtasks.
	Errors []string `json:"errors,omitempty"`
	// ConsensusScore is the fraction of subtasks agreeing, for strategies
	// that compute one (merge, vote). Zero otherwise.
	ConsensusScore float64 `json:"consensus_score,omitempty"`
	// Sources references every result that fed the aggregation.
	Sources []*TaskResult `json:"sources,omitempty"`
}
