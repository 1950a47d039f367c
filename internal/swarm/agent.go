// Package swarm maintains a pool of capability-tagged agents and routes
// decomposed subtasks onto them.
package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jfeld/taskforge/internal/events"
	"github.com/jfeld/taskforge/internal/logging"
	"github.com/jfeld/taskforge/pkg/models"
)

// Agent executes subtasks. Each agent owns its queue and busy state; the
// controller only reads snapshots through Info.
type Agent interface {
	// ID is the agent's unique identifier.
	ID() string
	// Capabilities lists the agent's declared capability tags.
	Capabilities() []string
	// Info returns a read-only snapshot of the agent's state.
	Info() models.AgentInfo
	// Load is the number of subtasks queued or executing, used for routing.
	Load() int
	// Execute runs one subtask to completion and returns its result.
	// It returns ErrAgentSaturated without enqueueing when the agent's
	// backlog is full.
	Execute(ctx context.Context, sub *models.Subtask) (*models.TaskResult, error)
	// Close drains the agent and marks it offline.
	Close()
}

// Handler performs the actual work of one subtask.
type Handler func(ctx context.Context, sub *models.Subtask) (any, error)

// AgentConfig describes a BaseAgent to create.
type AgentConfig struct {
	// Name is the human-readable agent name.
	Name string
	// Type labels the agent implementation (llm, tool, ...).
	Type string
	// Capabilities lists the capability tags this agent declares.
	Capabilities []string
	// MaxConcurrent is the concurrent-subtask limit (default 1).
	MaxConcurrent int
	// Handler performs the work. Required.
	Handler Handler
	// Emitter receives agent events. Optional.
	Emitter *events.Emitter
	// Logger receives debug output. Optional.
	Logger *logging.DebugLogger
}

// work pairs a subtask with the channel its result is delivered on.
type work struct {
	ctx   context.Context
	sub   *models.Subtask
	reply chan *models.TaskResult
}

// BaseAgent is the standard Agent implementation: a bounded work queue
// consumed by a fixed set of worker goroutines.
type BaseAgent struct {
	id            string
	name          string
	agentType     string
	capabilities  []string
	maxConcurrent int
	handler       Handler
	emitter       *events.Emitter
	logger        *logging.DebugLogger

	queue     chan work
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu        sync.RWMutex
	status    models.AgentStatus
	active    int
	executed  int64
	succeeded int64
	startedAt time.Time
}

// NewAgent creates and starts a BaseAgent. Its work queue holds twice the
// concurrency limit; beyond that, Execute rejects instead of queueing so
// callers can route elsewhere.
func NewAgent(cfg AgentConfig) (*BaseAgent, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("agent %q has no handler", cfg.Name)
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	a := &BaseAgent{
		id:            uuid.New().String(),
		name:          cfg.Name,
		agentType:     cfg.Type,
		capabilities:  cfg.Capabilities,
		maxConcurrent: maxConcurrent,
		handler:       cfg.Handler,
		emitter:       cfg.Emitter,
		logger:        logger,
		queue:         make(chan work, 2*maxConcurrent),
		status:        models.AgentStatusIdle,
		startedAt:     time.Now(),
	}

	a.wg.Add(maxConcurrent)
	for i := 0; i < maxConcurrent; i++ {
		go a.worker()
	}
	return a, nil
}

// ID implements Agent.
func (a *BaseAgent) ID() string { return a.id }

// Capabilities implements Agent.
func (a *BaseAgent) Capabilities() []string { return a.capabilities }

// Load implements Agent.
func (a *BaseAgent) Load() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active + len(a.queue)
}

// Info implements Agent.
func (a *BaseAgent) Info() models.AgentInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return models.AgentInfo{
		ID:             a.id,
		Name:           a.name,
		Type:           a.agentType,
		Capabilities:   a.capabilities,
		MaxConcurrent:  a.maxConcurrent,
		Status:         a.status,
		QueueDepth:     len(a.queue),
		TasksExecuted:  a.executed,
		TasksSucceeded: a.succeeded,
		StartedAt:      a.startedAt,
	}
}

// Execute implements Agent. The reply channel is buffered so a worker is
// never stranded if the caller has already given up on the context.
func (a *BaseAgent) Execute(ctx context.Context, sub *models.Subtask) (*models.TaskResult, error) {
	a.mu.RLock()
	offline := a.status == models.AgentStatusOffline
	a.mu.RUnlock()
	if offline {
		return nil, fmt.Errorf("agent %s is offline", a.name)
	}

	w := work{ctx: ctx, sub: sub, reply: make(chan *models.TaskResult, 1)}
	select {
	case a.queue <- w:
	default:
		return nil, &SaturatedError{AgentID: a.id, Name: a.name}
	}

	select {
	case res := <-w.reply:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Agent.
func (a *BaseAgent) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.status = models.AgentStatusOffline
		a.mu.Unlock()
		close(a.queue)
	})
	a.wg.Wait()
}

func (a *BaseAgent) worker() {
	defer a.wg.Done()
	for w := range a.queue {
		w.reply <- a.runOne(w.ctx, w.sub)
	}
}

// runOne executes a single subtask, converting panics in the handler into
// failed results so one bad subtask cannot kill the worker.
func (a *BaseAgent) runOne(ctx context.Context, sub *models.Subtask) *models.TaskResult {
	a.mu.Lock()
	a.active++
	a.status = models.AgentStatusBusy
	a.mu.Unlock()

	start := time.Now()
	result := &models.TaskResult{
		SubtaskID: sub.ID,
		AgentID:   a.id,
	}

	output, err := a.invoke(ctx, sub)
	result.Duration = time.Since(start)
	result.CompletedAt = time.Now()

	if err != nil {
		result.Success = false
		result.Error = err.Error()
		a.logger.Log("[agent %s] subtask %s failed: %v", a.name, sub.ID, err)
	} else {
		result.Success = true
		switch v := output.(type) {
		case string:
			result.Output = v
		case map[string]any:
			result.Data = v
		default:
			result.Output = fmt.Sprintf("%v", output)
		}
	}

	a.mu.Lock()
	a.active--
	a.executed++
	if result.Success {
		a.succeeded++
	}
	if a.status != models.AgentStatusOffline {
		if a.active == 0 && len(a.queue) == 0 {
			a.status = models.AgentStatusIdle
		} else {
			a.status = models.AgentStatusBusy
		}
	}
	a.mu.Unlock()

	if a.emitter != nil {
		a.emitter.Emit(events.Event{
			Type:     events.AgentTaskComplete,
			AgentID:  a.id,
			TaskID:   sub.ParentID,
			StepID:   sub.ID,
			Status:   resultStatus(result),
			Error:    result.Error,
			Duration: result.Duration,
		})
	}
	return result
}

func (a *BaseAgent) invoke(ctx context.Context, sub *models.Subtask) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent handler panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.handler(ctx, sub)
}

func resultStatus(res *models.TaskResult) string {
	if res.Success {
		return "completed"
	}
	return "failed"
}
