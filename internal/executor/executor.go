package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jfeld/taskforge/internal/events"
	"github.com/jfeld/taskforge/internal/logging"
	"github.com/jfeld/taskforge/pkg/models"
)

// Options tunes executor-wide defaults. Zero values are replaced by the
// documented defaults in New.
type Options struct {
	// DefaultStepTimeout bounds a step that doesn't set its own (default 60s).
	DefaultStepTimeout time.Duration
	// DefaultMaxRetries bounds the retry strategy when a step doesn't set
	// its own (default 3).
	DefaultMaxRetries int
	// RetryBaseDelay is the first retry backoff delay (default 500ms).
	RetryBaseDelay time.Duration
	// MaxRetryDelay caps the exponential backoff (default 30s).
	MaxRetryDelay time.Duration
}

// Config wires an Executor's collaborators.
type Config struct {
	// Tools is the external tool-execution contract.
	Tools ToolRunner
	// LLM is the external language-model contract.
	LLM Completer
	// Input is the external user-input contract.
	Input InputProvider
	// Emitter receives step-level events. Optional.
	Emitter *events.Emitter
	// Logger receives debug output. Optional.
	Logger *logging.DebugLogger
	// Options tunes timeouts and retry backoff.
	Options Options
}

// Controls carries the per-task coordination handles owned by the scheduler.
// The executor reads them; it never owns task status or progress.
type Controls struct {
	// Pauser blocks execution at step boundaries while the task is paused.
	Pauser *PauseController
	// OnProgress reports terminal-step counts back to the scheduler, which
	// is the sole writer of task progress.
	OnProgress func(completed, total int)
}

// Executor runs one task's steps in declared order. Only parallel and loop
// steps create internal concurrency; there is no DAG scheduling across the
// whole task. The executor is the sole mutator of step statuses and results.
type Executor struct {
	tools   ToolRunner
	llm     Completer
	input   InputProvider
	emitter *events.Emitter
	logger  *logging.DebugLogger
	opts    Options

	// mu guards writes to shared task execution state (variables and the
	// step-results map) from concurrent parallel-group members.
	mu sync.Mutex
}

// New creates an Executor from the given configuration, filling in default
// options for any zero values.
func New(cfg Config) *Executor {
	opts := cfg.Options
	if opts.DefaultStepTimeout <= 0 {
		opts.DefaultStepTimeout = 60 * time.Second
	}
	if opts.DefaultMaxRetries <= 0 {
		opts.DefaultMaxRetries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if opts.MaxRetryDelay <= 0 {
		opts.MaxRetryDelay = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Executor{
		tools:   cfg.Tools,
		llm:     cfg.LLM,
		input:   cfg.Input,
		emitter: cfg.Emitter,
		logger:  logger,
		opts:    opts,
	}
}

// ExecuteTask runs the task's steps in array order and returns the output
// of the last executed step. Step failures are resolved locally per each
// step's error strategy; only fail (or exhausted retry) reaches task level.
// A panic anywhere inside execution is converted into an error so a single
// bad task cannot take down the scheduler loop.
func (e *Executor) ExecuteTask(ctx context.Context, task *models.Task, ctrl Controls) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Log("[executor] task %s panicked: %v", task.ID, r)
			err = fmt.Errorf("task execution panicked: %v", r)
		}
	}()

	e.mu.Lock()
	if task.Variables == nil {
		task.Variables = make(map[string]any, len(task.InitialContext))
		for k, v := range task.InitialContext {
			task.Variables[k] = v
		}
	}
	if task.StepResults == nil {
		task.StepResults = make(map[string]*models.StepResult)
	}
	e.mu.Unlock()

	var lastData any
	for _, step := range task.Steps {
		// Steps already consumed by a parallel group or loop are terminal.
		if step.Status.Terminal() {
			continue
		}

		if ctrl.Pauser != nil {
			if err := ctrl.Pauser.WaitIfPaused(ctx); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if unmet := unmetDependencies(task, step); len(unmet) > 0 {
			e.logger.Log("[executor] task %s step %s skipped, unmet dependencies: %v", task.ID, step.ID, unmet)
			e.skipStep(task, step, "unmet dependencies: "+strings.Join(unmet, ", "))
			e.reportProgress(task, ctrl)
			continue
		}

		res, runErr := e.runStep(ctx, task, step, 1)
		if runErr != nil {
			res, runErr = e.recoverStep(ctx, task, step, runErr)
		}
		if runErr != nil {
			e.reportProgress(task, ctrl)
			return nil, runErr
		}
		if res.Success() {
			lastData = res.Data
		}
		e.reportProgress(task, ctrl)
	}

	// The final task result is the last step's output. No tree reduction
	// of intermediate step outputs is attempted.
	return lastData, nil
}

// unmetDependencies returns the dependsOn step IDs that are not completed.
// Unknown IDs count as unmet so typos surface as skips, not hangs.
func unmetDependencies(task *models.Task, step *models.Step) []string {
	var unmet []string
	for _, depID := range step.DependsOn {
		dep := task.Step(depID)
		if dep == nil || dep.Status != models.StepStatusCompleted {
			unmet = append(unmet, depID)
		}
	}
	return unmet
}

// recoverStep resolves a step failure according to the step's error
// strategy. It returns a nil error if execution should continue.
func (e *Executor) recoverStep(ctx context.Context, task *models.Task, step *models.Step, firstErr error) (*models.StepResult, error) {
	strategy := step.OnError
	if !strategy.Valid() {
		strategy = models.ErrorFail
	}
	if strategy == models.ErrorRollback {
		// Rollback is accepted in configuration but not implemented; it
		// degrades to fail rather than being silently ignored.
		e.logger.Log("[executor] task %s step %s: rollback strategy not implemented, degrading to fail", task.ID, step.ID)
		strategy = models.ErrorFail
	}

	switch strategy {
	case models.ErrorSkip:
		e.skipStep(task, step, "failed and skipped per error strategy: "+firstErr.Error())
		return step.Result, nil
	case models.ErrorRetry:
		return e.retryStep(ctx, task, step, firstErr)
	default:
		return nil, &StepError{StepID: step.ID, Err: firstErr}
	}
}

// retryStep re-runs a failed step up to its retry limit with exponential
// backoff. This is an explicit bounded loop carrying the attempt count, so
// long retry chains cannot grow the call stack.
func (e *Executor) retryStep(ctx context.Context, task *models.Task, step *models.Step, firstErr error) (*models.StepResult, error) {
	maxAttempts := step.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = e.opts.DefaultMaxRetries
	}

	attempt := 1 // the failed initial run
	lastErr := firstErr
	for attempt < maxAttempts {
		delay := backoffDelay(e.opts.RetryBaseDelay, attempt, e.opts.MaxRetryDelay)
		e.logger.Log("[executor] task %s step %s: attempt %d failed (%v), retrying in %s", task.ID, step.ID, attempt, lastErr, delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		attempt++
		res, err := e.runStep(ctx, task, step, attempt)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}

	e.logger.Log("[executor] task %s step %s: retries exhausted after %d attempts", task.ID, step.ID, attempt)
	return nil, &StepError{StepID: step.ID, Err: lastErr}
}

// backoffDelay computes base * 2^(attempt-1), capped at max.
func backoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// runStep executes one step with a hard timeout. Exceeding the timeout
// fails the step regardless of what the collaborator eventually returns.
func (e *Executor) runStep(ctx context.Context, task *models.Task, step *models.Step, attempt int) (*models.StepResult, error) {
	step.Status = models.StepStatusRunning
	e.emit(events.Event{
		Type:   events.TaskStepStarted,
		TaskID: task.ID,
		StepID: step.ID,
		Status: string(models.StepStatusRunning),
	})

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.opts.DefaultStepTimeout
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	ch := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("step panicked: %v", r)}
			}
		}()
		data, err := e.dispatch(stepCtx, task, step)
		ch <- outcome{data: data, err: err}
	}()

	var data any
	var err error
	select {
	case o := <-ch:
		data, err = o.data, o.err
	case <-stepCtx.Done():
		// Task-level cancellation and step timeout race on the same
		// context; tell them apart by the parent.
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			err = &StepTimeoutError{StepID: step.ID, Timeout: timeout}
		}
	}

	result := &models.StepResult{
		StepID:      step.ID,
		Duration:    time.Since(start),
		CompletedAt: time.Now(),
		Attempts:    attempt,
	}

	if err != nil {
		result.Status = models.StepStatusFailed
		result.Error = err.Error()
		e.finishStep(task, step, result)
		return result, err
	}

	result.Status = models.StepStatusCompleted
	result.Data = data
	e.finishStep(task, step, result)
	return result, nil
}

// dispatch routes a step to its kind-specific runner. The switch is
// exhaustive over the step kinds; an unknown kind is an explicit error.
func (e *Executor) dispatch(ctx context.Context, task *models.Task, step *models.Step) (any, error) {
	switch step.Type {
	case models.StepTool:
		return e.runTool(ctx, task, step)
	case models.StepLLM:
		return e.runLLM(ctx, task, step)
	case models.StepWait:
		return e.runWait(ctx, task, step)
	case models.StepCondition:
		return e.runCondition(ctx, task, step)
	case models.StepParallel:
		return e.runParallel(ctx, task, step)
	case models.StepLoop:
		return e.runLoop(ctx, task, step)
	case models.StepDelay:
		return e.runDelay(ctx, step)
	default:
		return nil, fmt.Errorf("unknown step type %q", step.Type)
	}
}

// skipStep marks a step skipped with the given reason. Skips are soft:
// execution continues with the next step.
func (e *Executor) skipStep(task *models.Task, step *models.Step, reason string) {
	result := &models.StepResult{
		StepID:      step.ID,
		Status:      models.StepStatusSkipped,
		Error:       reason,
		CompletedAt: time.Now(),
	}
	e.finishStep(task, step, result)
}

// finishStep records a terminal step result and emits the completion event.
func (e *Executor) finishStep(task *models.Task, step *models.Step, result *models.StepResult) {
	step.Status = result.Status
	step.Result = result

	e.mu.Lock()
	task.StepResults[step.ID] = result
	e.mu.Unlock()

	e.emit(events.Event{
		Type:     events.TaskStepCompleted,
		TaskID:   task.ID,
		StepID:   step.ID,
		Status:   string(result.Status),
		Error:    result.Error,
		Duration: result.Duration,
	})
}

// reportProgress tells the scheduler how many steps are terminal.
func (e *Executor) reportProgress(task *models.Task, ctrl Controls) {
	if ctrl.OnProgress == nil {
		return
	}
	completed := 0
	for _, s := range task.Steps {
		if s.Status.Terminal() {
			completed++
		}
	}
	ctrl.OnProgress(completed, len(task.Steps))
}

// setVariable writes a context variable under the executor's lock.
func (e *Executor) setVariable(task *models.Task, name string, value any) {
	e.mu.Lock()
	task.Variables[name] = value
	e.mu.Unlock()
}

func (e *Executor) emit(event events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}
