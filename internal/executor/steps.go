package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jfeld/taskforge/pkg/models"
)

// runTool interpolates the configured parameters and invokes the external
// tool contract. A thrown error and an unsuccessful result are equivalent.
func (e *Executor) runTool(ctx context.Context, task *models.Task, step *models.Step) (any, error) {
	cfg := step.Tool
	if cfg == nil {
		return nil, errors.New("tool step has no tool config")
	}
	if e.tools == nil {
		return nil, errors.New("no tool runner configured")
	}

	e.mu.Lock()
	params := interpolateParams(cfg.Params, task.Variables)
	e.mu.Unlock()

	res, err := e.tools.Run(ctx, cfg.Name, params)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", cfg.Name, err)
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "tool reported failure"
		}
		return nil, fmt.Errorf("tool %s: %s", cfg.Name, msg)
	}
	return res.Data, nil
}

// runLLM interpolates the prompt and system prompt, calls the completion
// contract, and optionally stores the raw response in a context variable
// for later steps.
func (e *Executor) runLLM(ctx context.Context, task *models.Task, step *models.Step) (any, error) {
	cfg := step.LLM
	if cfg == nil {
		return nil, errors.New("llm step has no llm config")
	}
	if e.llm == nil {
		return nil, errors.New("no completer configured")
	}

	e.mu.Lock()
	prompt := interpolate(cfg.Prompt, task.Variables)
	system := interpolate(cfg.SystemPrompt, task.Variables)
	e.mu.Unlock()

	response, err := e.llm.Complete(ctx, prompt, system)
	if err != nil {
		return nil, fmt.Errorf("llm completion: %w", err)
	}

	if cfg.OutputVar != "" {
		e.setVariable(task, cfg.OutputVar, response)
	}
	return response, nil
}

// runWait blocks on the external user-input contract until a response
// arrives or the step times out.
func (e *Executor) runWait(ctx context.Context, task *models.Task, step *models.Step) (any, error) {
	cfg := step.Wait
	if cfg == nil {
		return nil, errors.New("wait step has no wait config")
	}
	if e.input == nil {
		return nil, errors.New("no input provider configured")
	}

	e.mu.Lock()
	prompt := interpolate(cfg.Prompt, task.Variables)
	e.mu.Unlock()

	inputType := cfg.InputType
	if inputType == "" {
		inputType = "text"
	}

	answer, err := e.input.Ask(ctx, prompt, inputType, cfg.Choices)
	if err != nil {
		return nil, fmt.Errorf("user input: %w", err)
	}
	return answer, nil
}

// runCondition evaluates the restricted expression and records which branch
// would be taken. The branch step IDs are informational only: the executor
// does not jump to them.
func (e *Executor) runCondition(_ context.Context, task *models.Task, step *models.Step) (any, error) {
	cfg := step.Condition
	if cfg == nil {
		return nil, errors.New("condition step has no condition config")
	}

	e.mu.Lock()
	vars := task.Variables
	results := task.StepResults
	outcome, err := evalCondition(cfg.Expression, vars, results)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("evaluate condition: %w", err)
	}

	branch := cfg.ElseStep
	if outcome {
		branch = cfg.ThenStep
	}
	return map[string]any{
		"expression": cfg.Expression,
		"result":     outcome,
		"branch":     branch,
	}, nil
}

// runDelay waits for the configured duration, honoring cancellation.
func (e *Executor) runDelay(ctx context.Context, step *models.Step) (any, error) {
	cfg := step.Delay
	if cfg == nil {
		return nil, errors.New("delay step has no delay config")
	}

	timer := time.NewTimer(cfg.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return map[string]any{"delayed": cfg.Duration.String()}, nil
}
