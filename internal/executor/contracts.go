// Package executor runs a task's steps in sequence, enforcing per-step
// timeouts, dependency gating, and failure-recovery policy.
package executor

import "context"

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	// Success indicates whether the tool call succeeded.
	Success bool `json:"success"`
	// Data is the tool's output payload, if any.
	Data any `json:"data,omitempty"`
	// Error contains the failure message if the call failed.
	Error string `json:"error,omitempty"`
}

// ToolRunner is the external tool-execution contract. A returned error and
// a result with Success=false are treated identically by the executor.
type ToolRunner interface {
	Run(ctx context.Context, name string, args map[string]any) (ToolResult, error)
}

// Completer is the external language-model contract: a single completion
// call with an optional system prompt. No streaming is required.
type Completer interface {
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// InputProvider is the external user-input contract. Ask blocks until a
// human or simulated actor supplies a value.
type InputProvider interface {
	Ask(ctx context.Context, prompt, inputType string, choices []string) (string, error)
}
