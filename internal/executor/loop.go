package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jfeld/taskforge/pkg/models"
)

// defaultMaxIterations bounds a loop that doesn't set its own limit.
const defaultMaxIterations = 100

// runLoop iterates a context array variable, re-running one designated
// sibling step per item. The item and the iteration index are injected
// into the context before each run. The loop stops early on the first
// failure only when the designated step's error strategy is fail.
func (e *Executor) runLoop(ctx context.Context, task *models.Task, step *models.Step) (any, error) {
	cfg := step.Loop
	if cfg == nil {
		return nil, errors.New("loop step has no loop config")
	}

	target := task.Step(cfg.StepID)
	if target == nil {
		return nil, fmt.Errorf("loop step references unknown step %q", cfg.StepID)
	}
	if target.ID == step.ID {
		return nil, fmt.Errorf("loop step %s cannot iterate itself", step.ID)
	}

	e.mu.Lock()
	raw, ok := lookupVar(cfg.ItemsVar, task.Variables)
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("loop items variable %q not found in context", cfg.ItemsVar)
	}
	items, err := toSlice(raw)
	if err != nil {
		return nil, fmt.Errorf("loop items variable %q: %w", cfg.ItemsVar, err)
	}

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	itemVar := cfg.ItemVar
	if itemVar == "" {
		itemVar = "item"
	}

	stopOnFailure := target.OnError == models.ErrorFail || target.OnError == ""

	iterations := make([]map[string]any, 0, len(items))
	for i, item := range items {
		if i >= maxIterations {
			e.logger.Log("[executor] task %s loop %s: hit max iterations (%d)", task.ID, step.ID, maxIterations)
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.mu.Lock()
		task.Variables[itemVar] = item
		task.Variables["__loopIndex"] = i
		e.mu.Unlock()

		// The designated step is reset so each item gets a fresh run.
		target.Status = models.StepStatusPending
		target.Result = nil

		res, runErr := e.runStep(ctx, task, target, 1)
		entry := map[string]any{"index": i, "success": runErr == nil}
		if runErr != nil {
			entry["error"] = runErr.Error()
			if stopOnFailure {
				return nil, fmt.Errorf("loop iteration %d: %w", i, runErr)
			}
		} else {
			entry["data"] = res.Data
		}
		iterations = append(iterations, entry)
	}

	return map[string]any{
		"iterations": len(iterations),
		"results":    iterations,
	}, nil
}

// toSlice widens the slice types JSON and YAML decoding produce to []any.
func toSlice(v any) ([]any, error) {
	if items, ok := v.([]any); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}
