package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jfeld/taskforge/pkg/models"
)

func newTestAgent(t *testing.T, name string, caps []string, handler Handler) *BaseAgent {
	t.Helper()
	if handler == nil {
		handler = EchoHandler()
	}
	agent, err := NewAgent(AgentConfig{
		Name:         name,
		Type:         "test",
		Capabilities: caps,
		Handler:      handler,
	})
	if err != nil {
		t.Fatalf("NewAgent(%s): %v", name, err)
	}
	t.Cleanup(agent.Close)
	return agent
}

func subtask(id string, caps ...string) *models.Subtask {
	return &models.Subtask{
		ID:           id,
		ParentID:     "parent",
		Description:  "work for " + id,
		Capabilities: caps,
	}
}

func TestAgentExecute(t *testing.T) {
	agent := newTestAgent(t, "worker", []string{"code"}, nil)

	res, err := agent.Execute(context.Background(), subtask("s1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Errorf("result not successful: %+v", res)
	}
	if res.Output != "echo: work for s1" {
		t.Errorf("output = %q", res.Output)
	}
	if res.AgentID != agent.ID() {
		t.Errorf("agent id = %s, want %s", res.AgentID, agent.ID())
	}

	info := agent.Info()
	if info.TasksExecuted != 1 || info.TasksSucceeded != 1 {
		t.Errorf("counters = %d/%d, want 1/1", info.TasksExecuted, info.TasksSucceeded)
	}
	if info.Status != models.AgentStatusIdle {
		t.Errorf("status = %s, want idle after completion", info.Status)
	}
}

func TestAgentHandlerError(t *testing.T) {
	agent := newTestAgent(t, "worker", nil, func(ctx context.Context, sub *models.Subtask) (any, error) {
		return nil, errors.New("upstream unavailable")
	})

	res, err := agent.Execute(context.Background(), subtask("s1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Error("result should not be successful")
	}
	if res.Error != "upstream unavailable" {
		t.Errorf("error = %q", res.Error)
	}
	info := agent.Info()
	if info.TasksExecuted != 1 || info.TasksSucceeded != 0 {
		t.Errorf("counters = %d/%d, want 1/0", info.TasksExecuted, info.TasksSucceeded)
	}
}

func TestAgentPanicRecovery(t *testing.T) {
	agent := newTestAgent(t, "worker", nil, func(ctx context.Context, sub *models.Subtask) (any, error) {
		panic("handler bug")
	})

	res, err := agent.Execute(context.Background(), subtask("s1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Error("panicked subtask should fail")
	}

	// The worker must survive the panic and keep serving.
	res, err = agent.Execute(context.Background(), subtask("s2"))
	if err != nil {
		t.Fatalf("Execute after panic: %v", err)
	}
	if res.SubtaskID != "s2" {
		t.Errorf("subtask id = %s, want s2", res.SubtaskID)
	}
}

func TestAgentSaturation(t *testing.T) {
	block := make(chan struct{})
	agent := newTestAgent(t, "worker", nil, func(ctx context.Context, sub *models.Subtask) (any, error) {
		<-block
		return "done", nil
	})
	defer close(block)

	// One executing plus a queue of two; further submissions are rejected.
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		go agent.Execute(ctx, subtask("held"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for agent.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	_, err := agent.Execute(ctx, subtask("rejected"))
	var sat *SaturatedError
	if !errors.As(err, &sat) {
		t.Fatalf("Execute on full queue = %v, want *SaturatedError", err)
	}
}

func TestRoutingPrefersCapableLeastLoaded(t *testing.T) {
	c := NewController(nil)

	var coderCalls, generalistCalls atomic.Int32
	coder := newTestAgent(t, "coder", []string{"code", "review"}, func(ctx context.Context, sub *models.Subtask) (any, error) {
		coderCalls.Add(1)
		return "coded", nil
	})
	generalist := newTestAgent(t, "generalist", nil, func(ctx context.Context, sub *models.Subtask) (any, error) {
		generalistCalls.Add(1)
		return "done", nil
	})
	if err := c.Register(coder); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Register(generalist); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Requires code: only the coder qualifies.
	if _, err := c.ExecuteSubtask(context.Background(), subtask("s1", "code")); err != nil {
		t.Fatalf("ExecuteSubtask: %v", err)
	}
	if coderCalls.Load() != 1 {
		t.Errorf("coder calls = %d, want 1", coderCalls.Load())
	}
	if generalistCalls.Load() != 0 {
		t.Errorf("generalist calls = %d, want 0", generalistCalls.Load())
	}
}

func TestRoutingFailureIsExplicit(t *testing.T) {
	c := NewController(nil)
	c.Register(newTestAgent(t, "worker", []string{"code"}, nil))

	_, err := c.ExecuteSubtask(context.Background(), subtask("s1", "deploy"))
	var noAgent *NoCapableAgentError
	if !errors.As(err, &noAgent) {
		t.Fatalf("ExecuteSubtask = %v, want *NoCapableAgentError", err)
	}
	if noAgent.SubtaskID != "s1" {
		t.Errorf("subtask id = %s, want s1", noAgent.SubtaskID)
	}
}

func TestWildcardAgentMatchesAnything(t *testing.T) {
	c := NewController(nil)
	c.Register(newTestAgent(t, "generalist", []string{"*"}, nil))

	res, err := c.ExecuteSubtask(context.Background(), subtask("s1", "deploy"))
	if err != nil {
		t.Fatalf("ExecuteSubtask: %v", err)
	}
	if !res.Success {
		t.Errorf("result success = false, want true")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	c := NewController(nil)
	agent := newTestAgent(t, "worker", nil, nil)
	if err := c.Register(agent); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Register(agent); err == nil {
		t.Error("expected error registering the same agent twice")
	}
}

func decomposition(mode models.ExecutionMode, factor int, subs ...*models.Subtask) *models.Decomposition {
	return &models.Decomposition{
		TaskID:   "parent",
		Subtasks: subs,
		Strategy: models.ExecutionStrategy{Mode: mode, ParallelFactor: factor},
	}
}

func TestRunSequential(t *testing.T) {
	c := NewController(nil)
	var order atomic.Int32
	c.Register(newTestAgent(t, "worker", nil, func(ctx context.Context, sub *models.Subtask) (any, error) {
		return int(order.Add(1)), nil
	}))

	dec := decomposition(models.ModeSequential, 0, subtask("a"), subtask("b"), subtask("c"))
	results, err := c.RunDecomposition(context.Background(), dec)
	if err != nil {
		t.Fatalf("RunDecomposition: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, res := range results {
		if !res.Success {
			t.Errorf("result %d failed: %s", i, res.Error)
		}
		if want := fmt.Sprintf("%d", i+1); res.Output != want {
			t.Errorf("result %d output = %q, want %q (sequential order)", i, res.Output, want)
		}
	}
}

func TestRunParallelRespectsLimit(t *testing.T) {
	c := NewController(nil)
	var active, peak atomic.Int32
	handler := func(ctx context.Context, sub *models.Subtask) (any, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return "done", nil
	}
	// Plenty of agent capacity so the strategy's factor is the only limit.
	for i := 0; i < 3; i++ {
		a, err := NewAgent(AgentConfig{Name: "w", MaxConcurrent: 4, Handler: handler})
		if err != nil {
			t.Fatalf("NewAgent: %v", err)
		}
		t.Cleanup(a.Close)
		if err := c.Register(a); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	dec := decomposition(models.ModeParallel, 2,
		subtask("a"), subtask("b"), subtask("c"), subtask("d"), subtask("e"))
	results, err := c.RunDecomposition(context.Background(), dec)
	if err != nil {
		t.Fatalf("RunDecomposition: %v", err)
	}
	for i, res := range results {
		if res == nil || !res.Success {
			t.Errorf("result %d = %+v, want success", i, res)
		}
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestRunHybridWavesAndDependencyFailure(t *testing.T) {
	c := NewController(nil)
	c.Register(newTestAgent(t, "worker", nil, func(ctx context.Context, sub *models.Subtask) (any, error) {
		if sub.ID == "b" {
			return nil, errors.New("b broke")
		}
		return "ok", nil
	}))

	a := subtask("a")
	b := subtask("b")
	cDep := subtask("c")
	cDep.DependsOn = []string{"b"}
	d := subtask("d")
	d.DependsOn = []string{"a"}

	dec := decomposition(models.ModeHybrid, 2, a, b, cDep, d)
	results, err := c.RunDecomposition(context.Background(), dec)
	if err != nil {
		t.Fatalf("RunDecomposition: %v", err)
	}

	if !results[0].Success {
		t.Errorf("a failed: %s", results[0].Error)
	}
	if results[1].Success {
		t.Error("b should have failed")
	}
	if results[2].Success {
		t.Error("c should fail without executing, its dependency failed")
	}
	if results[2].Error != "dependency b failed" {
		t.Errorf("c error = %q", results[2].Error)
	}
	if !results[3].Success {
		t.Errorf("d failed: %s", results[3].Error)
	}
}

func TestRunHybridDependencyFailureAmidConcurrentWave(t *testing.T) {
	// A wave mixing many runnable subtasks with one whose dependency
	// already failed: the failed-dependency settlement must not touch
	// the shared result maps while sibling goroutines are writing them.
	c := NewController(nil)
	agent, err := NewAgent(AgentConfig{Name: "worker", MaxConcurrent: 16, Handler: func(ctx context.Context, sub *models.Subtask) (any, error) {
		if sub.ID == "a" {
			return nil, errors.New("a broke")
		}
		return "ok", nil
	}})
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	t.Cleanup(agent.Close)
	if err := c.Register(agent); err != nil {
		t.Fatalf("Register: %v", err)
	}

	a := subtask("a")
	d := subtask("d")
	subs := []*models.Subtask{a, d}
	for i := 0; i < 8; i++ {
		s := subtask(fmt.Sprintf("c%d", i))
		s.DependsOn = []string{"d"}
		subs = append(subs, s)
	}
	b := subtask("b")
	b.DependsOn = []string{"a"}
	subs = append(subs, b)

	results, err := c.RunDecomposition(context.Background(), decomposition(models.ModeHybrid, 8, subs...))
	if err != nil {
		t.Fatalf("RunDecomposition: %v", err)
	}
	for i := 2; i < 10; i++ {
		if results[i] == nil || !results[i].Success {
			t.Errorf("result %d = %+v, want success", i, results[i])
		}
	}
	last := results[len(results)-1]
	if last.Success {
		t.Error("b should fail, its dependency failed")
	}
	if last.Error != "dependency a failed" {
		t.Errorf("b error = %q", last.Error)
	}
}

func TestRunSequentialDependencyGate(t *testing.T) {
	c := NewController(nil)
	var calls atomic.Int32
	c.Register(newTestAgent(t, "worker", nil, func(ctx context.Context, sub *models.Subtask) (any, error) {
		calls.Add(1)
		if sub.ID == "a" {
			return nil, errors.New("a broke")
		}
		return "ok", nil
	}))

	a := subtask("a")
	b := subtask("b")
	b.DependsOn = []string{"a"}

	results, err := c.RunDecomposition(context.Background(), decomposition(models.ModeSequential, 0, a, b))
	if err != nil {
		t.Fatalf("RunDecomposition: %v", err)
	}
	if results[1].Success {
		t.Error("b should fail, its dependency failed")
	}
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1 (b never executed)", calls.Load())
	}
}
