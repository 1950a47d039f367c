package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jfeld/taskforge/internal/events"
	"github.com/jfeld/taskforge/internal/executor"
	"github.com/jfeld/taskforge/internal/logging"
	"github.com/jfeld/taskforge/pkg/models"
)

const (
	defaultMaxConcurrent = 3
	defaultMaxPending    = 100
	// durationWindow is how many recent completions feed the wait estimate.
	durationWindow = 20
)

// Runner executes a task to completion. *executor.Executor satisfies it.
type Runner interface {
	ExecuteTask(ctx context.Context, task *models.Task, ctrl executor.Controls) (any, error)
}

// Recorder persists finished tasks. Optional; *store.DB satisfies it.
type Recorder interface {
	RecordTask(task *models.Task) error
}

// Options tune queue capacity and concurrency.
type Options struct {
	// MaxConcurrent is the number of tasks allowed to run at once.
	MaxConcurrent int
	// MaxPending is the pending-queue capacity. Create rejects beyond it.
	MaxPending int
}

// DefaultOptions returns the standard queue limits.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent: defaultMaxConcurrent,
		MaxPending:    defaultMaxPending,
	}
}

// Config wires a Queue's collaborators.
type Config struct {
	Runner   Runner
	Emitter  *events.Emitter
	Logger   *logging.DebugLogger
	Recorder Recorder
	Options  Options
}

// execution tracks a task occupying a run slot.
type execution struct {
	task      *models.Task
	cancel    context.CancelFunc
	pauser    *executor.PauseController
	cancelled bool
}

// Queue schedules tasks by priority and runs them on a bounded set of
// slots. It is the sole writer of task status, progress, and terminal
// fields; the executor reports progress back through a callback.
type Queue struct {
	runner   Runner
	emitter  *events.Emitter
	logger   *logging.DebugLogger
	recorder Recorder
	opts     Options

	mu        sync.RWMutex
	pending   []*models.Task
	running   map[string]*execution
	tasks     map[string]*models.Task
	durations []time.Duration

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New constructs a Queue. cfg.Runner is required.
func New(cfg Config) (*Queue, error) {
	if cfg.Runner == nil {
		return nil, errors.New("queue: runner is required")
	}
	opts := cfg.Options
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = defaultMaxPending
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		runner:   cfg.Runner,
		emitter:  cfg.Emitter,
		logger:   logger,
		recorder: cfg.Recorder,
		opts:     opts,
		running:  make(map[string]*execution),
		tasks:    make(map[string]*models.Task),
		ctx:      ctx,
		stop:     cancel,
	}, nil
}

// CreateOptions describe a task to admit.
type CreateOptions struct {
	Name           string
	Description    string
	Priority       models.Priority
	Complexity     models.Complexity
	Steps          []*models.Step
	InitialContext map[string]any
	MaxRetries     int
	Source         string
}

// Create validates and registers a new task, then enqueues it. It
// returns a *FullError when the pending queue is at capacity.
func (q *Queue) Create(opts CreateOptions) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, errors.New("queue: shut down")
	}
	if len(q.pending) >= q.opts.MaxPending {
		return nil, &FullError{Limit: q.opts.MaxPending}
	}

	priority := opts.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("queue: invalid priority %q", priority)
	}
	if len(opts.Steps) == 0 {
		return nil, errors.New("queue: task has no steps")
	}

	seen := make(map[string]bool, len(opts.Steps))
	for i, step := range opts.Steps {
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i+1)
		}
		if seen[step.ID] {
			return nil, fmt.Errorf("queue: duplicate step id %q", step.ID)
		}
		seen[step.ID] = true
		if !step.Type.Valid() {
			return nil, fmt.Errorf("queue: step %s has invalid type %q", step.ID, step.Type)
		}
		if step.Status == "" {
			step.Status = models.StepStatusPending
		}
	}
	for _, step := range opts.Steps {
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				return nil, fmt.Errorf("queue: step %s depends on unknown step %q", step.ID, dep)
			}
		}
	}

	task := &models.Task{
		ID:             uuid.New().String(),
		Name:           opts.Name,
		Description:    opts.Description,
		Priority:       priority,
		Status:         models.TaskStatusPending,
		Complexity:     opts.Complexity,
		Steps:          opts.Steps,
		InitialContext: opts.InitialContext,
		MaxRetries:     opts.MaxRetries,
		Source:         opts.Source,
		CreatedAt:      time.Now(),
	}
	q.tasks[task.ID] = task
	q.enqueueLocked(task)
	return task, nil
}

// enqueueLocked inserts the task behind all pending tasks of equal or
// higher priority, marks it queued, and fills free slots.
func (q *Queue) enqueueLocked(task *models.Task) {
	task.Status = models.TaskStatusQueued
	idx := len(q.pending)
	for i, p := range q.pending {
		if p.Priority.Weight() < task.Priority.Weight() {
			idx = i
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = task

	q.emit(events.TaskEvent(events.TaskQueued, task))
	q.logger.Log("queue: task %s queued priority=%s pending=%d", task.ID, task.Priority, len(q.pending))
	q.fillSlotsLocked()
}

// fillSlotsLocked promotes pending tasks into free run slots.
func (q *Queue) fillSlotsLocked() {
	for len(q.running) < q.opts.MaxConcurrent && len(q.pending) > 0 {
		task := q.pending[0]
		q.pending = q.pending[1:]
		q.startLocked(task)
	}
}

func (q *Queue) startLocked(task *models.Task) {
	now := time.Now()
	task.Status = models.TaskStatusRunning
	task.StartedAt = &now

	taskCtx, cancel := context.WithCancel(q.ctx)
	ex := &execution{
		task:   task,
		cancel: cancel,
		pauser: executor.NewPauseController(),
	}
	q.running[task.ID] = ex

	q.emit(events.TaskEvent(events.TaskStarted, task))
	q.logger.Log("queue: task %s started running=%d", task.ID, len(q.running))

	q.wg.Add(1)
	go q.run(taskCtx, ex)
}

func (q *Queue) run(ctx context.Context, ex *execution) {
	defer q.wg.Done()

	ctrl := executor.Controls{
		Pauser: ex.pauser,
		OnProgress: func(completed, total int) {
			q.setProgress(ex.task.ID, completed, total)
		},
	}
	result, err := q.runner.ExecuteTask(ctx, ex.task, ctrl)

	status := models.TaskStatusCompleted
	if err != nil {
		status = models.TaskStatusFailed
		if errors.Is(err, context.Canceled) {
			status = models.TaskStatusCancelled
		}
	}
	q.finish(ex.task.ID, status, result, err)
}

// setProgress maps executor step counts onto the task's percentage.
// Progress never decreases.
func (q *Queue) setProgress(taskID string, completed, total int) {
	if total <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	ex, ok := q.running[taskID]
	if !ok {
		return
	}
	pct := completed * 100 / total
	if pct <= ex.task.Progress {
		return
	}
	ex.task.Progress = pct
	q.emit(events.TaskEvent(events.TaskProgress, ex.task))
}

// finish is the single exit path from a run slot. It records the
// terminal status, frees the slot, and fills it from the pending queue.
func (q *Queue) finish(taskID string, status models.TaskStatus, result any, taskErr error) {
	q.mu.Lock()

	ex, ok := q.running[taskID]
	if !ok {
		q.mu.Unlock()
		return
	}
	if ex.cancelled {
		status = models.TaskStatusCancelled
	}
	if !status.Terminal() {
		status = models.TaskStatusFailed
	}

	task := ex.task
	now := time.Now()
	task.Status = status
	task.CompletedAt = &now
	task.Result = result
	if taskErr != nil && status != models.TaskStatusCancelled {
		task.Error = taskErr.Error()
	}
	if status == models.TaskStatusCompleted {
		task.Progress = 100
	}

	if task.StartedAt != nil {
		q.durations = append(q.durations, now.Sub(*task.StartedAt))
		if len(q.durations) > durationWindow {
			q.durations = q.durations[len(q.durations)-durationWindow:]
		}
	}

	delete(q.running, taskID)
	ex.cancel()

	eventType := events.TaskCompleted
	if status == models.TaskStatusCancelled {
		eventType = events.TaskCancelled
	}
	q.emit(events.TaskEvent(eventType, task))
	q.logger.Log("queue: task %s finished status=%s duration=%s", task.ID, status, task.Duration())

	q.fillSlotsLocked()
	q.mu.Unlock()

	if q.recorder != nil {
		if err := q.recorder.RecordTask(task); err != nil {
			q.logger.Log("queue: record task %s: %v", task.ID, err)
		}
	}
}

// Pause suspends a running task. The executor blocks before its next
// step; the in-flight step finishes first.
func (q *Queue) Pause(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ex, ok := q.running[taskID]
	if !ok {
		return q.stateErrLocked(taskID, "pause")
	}
	if ex.task.Status != models.TaskStatusRunning {
		return &StateError{TaskID: taskID, Op: "pause", Status: string(ex.task.Status)}
	}
	ex.task.Status = models.TaskStatusPaused
	ex.pauser.Pause()
	q.emit(events.TaskEvent(events.TaskPaused, ex.task))
	return nil
}

// Resume releases a paused task.
func (q *Queue) Resume(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ex, ok := q.running[taskID]
	if !ok {
		return q.stateErrLocked(taskID, "resume")
	}
	if ex.task.Status != models.TaskStatusPaused {
		return &StateError{TaskID: taskID, Op: "resume", Status: string(ex.task.Status)}
	}
	ex.task.Status = models.TaskStatusRunning
	ex.pauser.Resume()
	q.emit(events.TaskEvent(events.TaskResumed, ex.task))
	return nil
}

// Cancel stops a task. A queued task is removed from the pending list
// immediately; a running or paused task has its context cancelled and
// reaches the cancelled status through the normal completion path.
func (q *Queue) Cancel(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ex, ok := q.running[taskID]; ok {
		ex.cancelled = true
		ex.pauser.Stop()
		ex.cancel()
		return nil
	}

	for i, task := range q.pending {
		if task.ID != taskID {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		now := time.Now()
		task.Status = models.TaskStatusCancelled
		task.CompletedAt = &now
		q.emit(events.TaskEvent(events.TaskCancelled, task))
		return nil
	}
	return q.stateErrLocked(taskID, "cancel")
}

func (q *Queue) stateErrLocked(taskID, op string) error {
	task, ok := q.tasks[taskID]
	if !ok {
		return fmt.Errorf("%s task %s: %w", op, taskID, ErrTaskNotFound)
	}
	return &StateError{TaskID: taskID, Op: op, Status: string(task.Status)}
}

// Get returns the task with the given ID.
func (q *Queue) Get(taskID string) (*models.Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	task, ok := q.tasks[taskID]
	return task, ok
}

// Pending returns the queued tasks in dispatch order.
func (q *Queue) Pending() []*models.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*models.Task, len(q.pending))
	copy(out, q.pending)
	return out
}

// Stats is a point-in-time census of queue state.
type Stats struct {
	Pending   int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}

// Stats counts tasks by state.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	s := Stats{Pending: len(q.pending), Running: len(q.running)}
	for _, task := range q.tasks {
		switch task.Status {
		case models.TaskStatusCompleted:
			s.Completed++
		case models.TaskStatusFailed:
			s.Failed++
		case models.TaskStatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// EstimateWait returns the advisory wait for a newly queued task: the
// rolling average completion duration scaled by how many queue rounds
// precede it. Zero when no history exists yet.
func (q *Queue) EstimateWait() time.Duration {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range q.durations {
		total += d
	}
	avg := total / time.Duration(len(q.durations))

	rounds := (len(q.pending) + q.opts.MaxConcurrent) / q.opts.MaxConcurrent
	return avg * time.Duration(rounds)
}

// Shutdown cancels all running tasks and waits for their goroutines,
// bounded by ctx.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	for _, ex := range q.running {
		ex.cancelled = true
		ex.pauser.Stop()
	}
	q.mu.Unlock()

	q.stop()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) emit(ev events.Event) {
	if q.emitter != nil {
		q.emitter.Emit(ev)
	}
}
