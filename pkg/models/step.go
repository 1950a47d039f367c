package models

import "time"

// StepType discriminates the tagged union of step configurations.
// Exactly one of the corresponding config fields on Step is set.
type StepType string

const (
	// StepTool invokes an external tool by name with parameters.
	StepTool StepType = "tool"
	// StepLLM sends a prompt to the language-model collaborator.
	StepLLM StepType = "llm"
	// StepWait blocks until user input arrives.
	StepWait StepType = "wait"
	// StepCondition evaluates a restricted expression over the context.
	StepCondition StepType = "condition"
	// StepParallel runs a named subset of sibling steps concurrently.
	StepParallel StepType = "parallel"
	// StepLoop re-runs one designated step per item of a context array.
	StepLoop StepType = "loop"
	// StepDelay waits for a fixed duration.
	StepDelay StepType = "delay"
)

// Valid returns true if the step type is a known value.
func (t StepType) Valid() bool {
	switch t {
	case StepTool, StepLLM, StepWait, StepCondition, StepParallel, StepLoop, StepDelay:
		return true
	default:
		return false
	}
}

// StepStatus represents the lifecycle state of a single step.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started.
	StepStatusPending StepStatus = "pending"
	// StepStatusRunning indicates the step is executing.
	StepStatusRunning StepStatus = "running"
	// StepStatusCompleted indicates the step finished successfully.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusFailed indicates the step finished with an error.
	StepStatusFailed StepStatus = "failed"
	// StepStatusSkipped indicates the step was bypassed (unmet dependency
	// or skip error strategy).
	StepStatusSkipped StepStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusCompleted,
		StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the step will not run again.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// ErrorStrategy controls how a step failure is handled.
type ErrorStrategy string

const (
	// ErrorFail aborts the whole task with the step's error.
	ErrorFail ErrorStrategy = "fail"
	// ErrorSkip marks the failed step skipped and continues.
	ErrorSkip ErrorStrategy = "skip"
	// ErrorRetry re-runs the step with exponential backoff.
	ErrorRetry ErrorStrategy = "retry"
	// ErrorRollback is accepted in configuration but currently degrades
	// to ErrorFail. Rollback semantics are a known gap.
	ErrorRollback ErrorStrategy = "rollback"
)

// Valid returns true if the strategy is a known value.
func (s ErrorStrategy) Valid() bool {
	switch s {
	case ErrorFail, ErrorSkip, ErrorRetry, ErrorRollback:
		return true
	default:
		return false
	}
}

// Step is one typed operation within a task. The Type field selects which
// of the config fields is consulted; the step executor is the sole mutator
// of Status and Result.
type Step struct {
	// ID is unique within the owning task.
	ID string `json:"id"`
	// Name is the short human-readable name of the step.
	Name string `json:"name"`
	// Type selects the step kind and which config field applies.
	Type StepType `json:"type"`
	// Tool is the configuration for StepTool.
	Tool *ToolConfig `json:"tool,omitempty"`
	// LLM is the configuration for StepLLM.
	LLM *LLMConfig `json:"llm,omitempty"`
	// Wait is the configuration for StepWait.
	Wait *WaitConfig `json:"wait,omitempty"`
	// Condition is the configuration for StepCondition.
	Condition *ConditionConfig `json:"condition,omitempty"`
	// Parallel is the configuration for StepParallel.
	Parallel *ParallelConfig `json:"parallel,omitempty"`
	// Loop is the configuration for StepLoop.
	Loop *LoopConfig `json:"loop,omitempty"`
	// Delay is the configuration for StepDelay.
	Delay *DelayConfig `json:"delay,omitempty"`
	// DependsOn lists step IDs that must be completed before this step runs.
	// An unmet dependency marks this step skipped, not failed.
	DependsOn []string `json:"depends_on,omitempty"`
	// OnError selects the failure-recovery strategy for this step.
	OnError ErrorStrategy `json:"on_error,omitempty"`
	// MaxRetries bounds re-runs under the retry strategy.
	MaxRetries int `json:"max_retries,omitempty"`
	// Timeout overrides the executor's default per-step timeout.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Status is the current lifecycle state of the step.
	Status StepStatus `json:"status"`
	// Result holds the step's outcome once it is terminal.
	Result *StepResult `json:"result,omitempty"`
}

// ToolConfig configures a tool-call step. Parameter values may contain
// {{variable}} placeholders interpolated from the task context.
type ToolConfig struct {
	// Name is the tool to invoke.
	Name string `json:"name"`
	// Params are the arguments passed to the tool.
	Params map[string]any `json:"params,omitempty"`
}

// LLMConfig configures a language-model step.
type LLMConfig struct {
	// Prompt is the user prompt, with {{variable}} placeholders.
	Prompt string `json:"prompt"`
	// SystemPrompt is the optional system prompt, also interpolated.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// OutputVar names a context variable to store the raw response in.
	OutputVar string `json:"output_var,omitempty"`
}

// WaitConfig configures a wait-for-input step.
type WaitConfig struct {
	// Prompt is shown to the user.
	Prompt string `json:"prompt"`
	// InputType hints how the answer should be collected (text, choice, ...).
	InputType string `json:"input_type,omitempty"`
	// Choices restricts the answer to a fixed set, if non-empty.
	Choices []string `json:"choices,omitempty"`
}

// ConditionConfig configures a condition-evaluation step. The expression is
// evaluated by a restricted grammar; the branch step IDs are recorded in the
// step output but do not redirect control flow.
type ConditionConfig struct {
	// Expression is the comparison to evaluate, e.g. `count >= 3` or a
	// bare variable name treated as a boolean.
	Expression string `json:"expression"`
	// ThenStep is the step ID recorded if the expression is true.
	ThenStep string `json:"then_step,omitempty"`
	// ElseStep is the step ID recorded if the expression is false.
	ElseStep string `json:"else_step,omitempty"`
}

// ParallelWaitMode selects how a parallel group resolves.
type ParallelWaitMode string

const (
	// WaitAll waits for every member step to finish.
	WaitAll ParallelWaitMode = "all"
	// WaitRace resolves as soon as the first member finishes.
	WaitRace ParallelWaitMode = "race"
)

// ParallelConfig configures a parallel-group step.
type ParallelConfig struct {
	// Steps lists the sibling step IDs to run concurrently.
	Steps []string `json:"steps"`
	// WaitMode is "all" (default) or "race".
	WaitMode ParallelWaitMode `json:"wait_mode,omitempty"`
	// Required lists the member step IDs that must succeed for the group
	// to succeed. Empty means all members are required.
	Required []string `json:"required,omitempty"`
}

// LoopConfig configures a loop step.
type LoopConfig struct {
	// ItemsVar names the context variable holding the array to iterate.
	ItemsVar string `json:"items_var"`
	// ItemVar names the per-iteration variable injected into the context.
	ItemVar string `json:"item_var,omitempty"`
	// StepID is the sibling step re-run once per item.
	StepID string `json:"step_id"`
	// MaxIterations bounds the loop (default 100).
	MaxIterations int `json:"max_iterations,omitempty"`
}

// DelayConfig configures a delay step.
type DelayConfig struct {
	// Duration is how long to wait.
	Duration time.Duration `json:"duration"`
}
