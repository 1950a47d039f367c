package swarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jfeld/taskforge/internal/logging"
	"github.com/jfeld/taskforge/pkg/models"
)

// saturationRetryDelay is how long the controller waits before re-trying
// routing when every capable agent's queue is full.
const saturationRetryDelay = 50 * time.Millisecond

// Controller owns the agent pool: it registers agents, routes subtasks to
// the least-loaded capable agent, and runs whole decompositions according
// to their execution strategy.
type Controller struct {
	logger *logging.DebugLogger

	mu     sync.RWMutex
	agents map[string]Agent
}

// NewController creates an empty Controller.
func NewController(logger *logging.DebugLogger) *Controller {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Controller{
		logger: logger,
		agents: make(map[string]Agent),
	}
}

// Register adds an agent to the pool.
func (c *Controller) Register(agent Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.agents[agent.ID()]; exists {
		return fmt.Errorf("agent %s already registered", agent.ID())
	}
	c.agents[agent.ID()] = agent
	c.logger.Log("[swarm] registered agent %s caps=%v", agent.ID(), agent.Capabilities())
	return nil
}

// Unregister removes and closes an agent.
func (c *Controller) Unregister(agentID string) error {
	c.mu.Lock()
	agent, ok := c.agents[agentID]
	delete(c.agents, agentID)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent %s not registered", agentID)
	}
	agent.Close()
	return nil
}

// Agents returns snapshots of every registered agent, ordered by name.
func (c *Controller) Agents() []models.AgentInfo {
	c.mu.RLock()
	infos := make([]models.AgentInfo, 0, len(c.agents))
	for _, agent := range c.agents {
		infos = append(infos, agent.Info())
	}
	c.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// candidates returns the agents whose capability set covers the subtask's
// requirements, least-loaded first. A subtask with no requirements matches
// every agent.
func (c *Controller) candidates(sub *models.Subtask) []Agent {
	c.mu.RLock()
	var capable []Agent
	for _, agent := range c.agents {
		if covers(agent.Capabilities(), sub.Capabilities) {
			capable = append(capable, agent)
		}
	}
	c.mu.RUnlock()

	sort.Slice(capable, func(i, j int) bool {
		li, lj := capable[i].Load(), capable[j].Load()
		if li != lj {
			return li < lj
		}
		return capable[i].ID() < capable[j].ID()
	})
	return capable
}

// covers reports whether the agent capability set is a superset of the
// required tags. The wildcard capability "*" matches any requirement.
func covers(have, need []string) bool {
	if len(need) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, cap := range have {
		if cap == "*" {
			return true
		}
		set[cap] = true
	}
	for _, cap := range need {
		if !set[cap] {
			return false
		}
	}
	return true
}

// ExecuteSubtask routes one subtask to a capable agent and returns its
// result. When every capable agent is saturated it waits and re-routes;
// when no agent is capable at all it fails immediately with
// *NoCapableAgentError.
func (c *Controller) ExecuteSubtask(ctx context.Context, sub *models.Subtask) (*models.TaskResult, error) {
	for {
		capable := c.candidates(sub)
		if len(capable) == 0 {
			return nil, &NoCapableAgentError{SubtaskID: sub.ID, Capabilities: sub.Capabilities}
		}

		for _, agent := range capable {
			res, err := agent.Execute(ctx, sub)
			if err == nil {
				return res, nil
			}
			var sat *SaturatedError
			if !errors.As(err, &sat) {
				return nil, err
			}
		}

		// Every capable agent rejected the subtask; wait for backlogs to drain.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(saturationRetryDelay):
		}
	}
}

// RunDecomposition executes every subtask per the decomposition's strategy
// and returns one result per subtask, in subtask order. Subtask failures
// become failed results, not errors; only context cancellation aborts.
func (c *Controller) RunDecomposition(ctx context.Context, dec *models.Decomposition) ([]*models.TaskResult, error) {
	switch dec.Strategy.Mode {
	case models.ModeParallel:
		return c.runParallel(ctx, dec)
	case models.ModeHybrid:
		return c.runHybrid(ctx, dec)
	default:
		return c.runSequential(ctx, dec)
	}
}

// runSequential executes subtasks one at a time in declared order.
func (c *Controller) runSequential(ctx context.Context, dec *models.Decomposition) ([]*models.TaskResult, error) {
	results := make([]*models.TaskResult, len(dec.Subtasks))
	byID := make(map[string]*models.TaskResult, len(dec.Subtasks))

	for i, sub := range dec.Subtasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if failedDep := firstFailedDep(sub, byID); failedDep != "" {
			results[i] = dependencyFailure(sub, failedDep)
		} else {
			res, err := c.ExecuteSubtask(ctx, sub)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				res = routingFailure(sub, err)
			}
			results[i] = res
		}
		byID[sub.ID] = results[i]
	}
	return results, nil
}

// runParallel executes all subtasks concurrently, bounded by the
// strategy's parallel factor.
func (c *Controller) runParallel(ctx context.Context, dec *models.Decomposition) ([]*models.TaskResult, error) {
	results := make([]*models.TaskResult, len(dec.Subtasks))

	g, gctx := errgroup.WithContext(ctx)
	if dec.Strategy.ParallelFactor > 0 {
		g.SetLimit(dec.Strategy.ParallelFactor)
	}
	for i, sub := range dec.Subtasks {
		i, sub := i, sub
		g.Go(func() error {
			res, err := c.ExecuteSubtask(gctx, sub)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				res = routingFailure(sub, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runHybrid executes subtasks in dependency waves: each wave holds the
// subtasks whose dependencies are all settled, and runs in parallel.
// A subtask whose dependency failed settles as failed without executing.
func (c *Controller) runHybrid(ctx context.Context, dec *models.Decomposition) ([]*models.TaskResult, error) {
	results := make([]*models.TaskResult, len(dec.Subtasks))
	byID := make(map[string]*models.TaskResult, len(dec.Subtasks))
	var mu sync.Mutex

	remaining := make(map[int]*models.Subtask, len(dec.Subtasks))
	for i, sub := range dec.Subtasks {
		remaining[i] = sub
	}

	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var wave []int
		for i, sub := range remaining {
			if depsSettled(sub, byID) {
				wave = append(wave, i)
			}
		}
		if len(wave) == 0 {
			// Unreachable for validated decompositions; a cycle that slipped
			// through must not hang the caller.
			return nil, fmt.Errorf("decomposition %s has unsatisfiable dependencies", dec.TaskID)
		}
		sort.Ints(wave)

		// Settle members with a failed dependency before any goroutine
		// launches; results and byID must not see unguarded writes once
		// the wave is running.
		var launch []int
		for _, i := range wave {
			sub := remaining[i]
			if failedDep := firstFailedDep(sub, byID); failedDep != "" {
				results[i] = dependencyFailure(sub, failedDep)
				byID[sub.ID] = results[i]
				continue
			}
			launch = append(launch, i)
		}

		g, gctx := errgroup.WithContext(ctx)
		if dec.Strategy.ParallelFactor > 0 {
			g.SetLimit(dec.Strategy.ParallelFactor)
		}
		for _, i := range launch {
			i, sub := i, remaining[i]
			g.Go(func() error {
				res, err := c.ExecuteSubtask(gctx, sub)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					res = routingFailure(sub, err)
				}
				mu.Lock()
				results[i] = res
				byID[sub.ID] = res
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, i := range wave {
			delete(remaining, i)
		}
	}
	return results, nil
}

// Close shuts down every agent in the pool.
func (c *Controller) Close() {
	c.mu.Lock()
	agents := make([]Agent, 0, len(c.agents))
	for _, agent := range c.agents {
		agents = append(agents, agent)
	}
	c.agents = make(map[string]Agent)
	c.mu.Unlock()

	for _, agent := range agents {
		agent.Close()
	}
}

func depsSettled(sub *models.Subtask, byID map[string]*models.TaskResult) bool {
	for _, dep := range sub.DependsOn {
		if _, ok := byID[dep]; !ok {
			return false
		}
	}
	return true
}

func firstFailedDep(sub *models.Subtask, byID map[string]*models.TaskResult) string {
	for _, dep := range sub.DependsOn {
		if res, ok := byID[dep]; ok && !res.Success {
			return dep
		}
	}
	return ""
}

func dependencyFailure(sub *models.Subtask, depID string) *models.TaskResult {
	return &models.TaskResult{
		SubtaskID:   sub.ID,
		Success:     false,
		Error:       fmt.Sprintf("dependency %s failed", depID),
		CompletedAt: time.Now(),
	}
}

func routingFailure(sub *models.Subtask, err error) *models.TaskResult {
	return &models.TaskResult{
		SubtaskID:   sub.ID,
		Success:     false,
		Error:       err.Error(),
		CompletedAt: time.Now(),
	}
}
