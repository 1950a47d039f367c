package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jfeld/taskforge/pkg/models"
)

// fakeTools records every invocation and routes each call through fn.
type fakeTools struct {
	mu    sync.Mutex
	calls []toolCall
	fn    func(name string, args map[string]any) (ToolResult, error)
}

type toolCall struct {
	name string
	args map[string]any
}

func (f *fakeTools) Run(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, toolCall{name: name, args: args})
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(name, args)
	}
	return ToolResult{Success: true, Data: "ok:" + name}, nil
}

func (f *fakeTools) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeInput struct {
	answer    string
	prompt    string
	inputType string
}

func (f *fakeInput) Ask(ctx context.Context, prompt, inputType string, choices []string) (string, error) {
	f.prompt = prompt
	f.inputType = inputType
	return f.answer, nil
}

func toolStep(id, tool string) *models.Step {
	return &models.Step{
		ID:   id,
		Type: models.StepTool,
		Tool: &models.ToolConfig{Name: tool},
	}
}

func newTask(steps ...*models.Step) *models.Task {
	for _, step := range steps {
		if step.Status == "" {
			step.Status = models.StepStatusPending
		}
	}
	return &models.Task{
		ID:    "task-1",
		Name:  "test task",
		Steps: steps,
	}
}

func TestSequentialExecution(t *testing.T) {
	tools := &fakeTools{}
	e := New(Config{Tools: tools})
	task := newTask(toolStep("a", "fetch"), toolStep("b", "transform"))

	result, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	if result != "ok:transform" {
		t.Errorf("result = %v, want last step's output", result)
	}
	if tools.callCount() != 2 {
		t.Errorf("tool calls = %d, want 2", tools.callCount())
	}
	for _, id := range []string{"a", "b"} {
		res, ok := task.StepResults[id]
		if !ok || res.Status != models.StepStatusCompleted {
			t.Errorf("step %s result missing or not completed: %+v", id, res)
		}
	}
}

func TestParamInterpolation(t *testing.T) {
	tools := &fakeTools{}
	e := New(Config{Tools: tools})
	task := newTask(&models.Step{
		ID:   "a",
		Type: models.StepTool,
		Tool: &models.ToolConfig{
			Name:   "notify",
			Params: map[string]any{"message": "hello {{user.name}}, count={{count}}"},
		},
	})
	task.InitialContext = map[string]any{
		"user":  map[string]any{"name": "ada"},
		"count": 3.0,
	}

	if _, err := e.ExecuteTask(context.Background(), task, Controls{}); err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	got := tools.calls[0].args["message"]
	if got != "hello ada, count=3" {
		t.Errorf("interpolated message = %q", got)
	}
}

func TestDependencyGatingSkips(t *testing.T) {
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		if name == "broken" {
			return ToolResult{Success: false, Error: "boom"}, nil
		}
		return ToolResult{Success: true, Data: "ok:" + name}, nil
	}}
	e := New(Config{Tools: tools})

	failing := toolStep("a", "broken")
	failing.OnError = models.ErrorSkip
	dependent := toolStep("b", "after")
	dependent.DependsOn = []string{"a"}
	independent := toolStep("c", "final")

	task := newTask(failing, dependent, independent)
	result, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}

	if failing.Status != models.StepStatusSkipped {
		t.Errorf("failing step status = %s, want skipped", failing.Status)
	}
	if dependent.Status != models.StepStatusSkipped {
		t.Errorf("dependent step status = %s, want skipped", dependent.Status)
	}
	if res := task.StepResults["b"]; res == nil || !strings.Contains(res.Error, "unmet dependencies") {
		t.Errorf("dependent step result = %+v, want unmet-dependencies reason", res)
	}
	if independent.Status != models.StepStatusCompleted {
		t.Errorf("independent step status = %s, want completed", independent.Status)
	}
	if result != "ok:final" {
		t.Errorf("result = %v, want output of the step that ran", result)
	}
}

func TestFailStrategyAbortsTask(t *testing.T) {
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		if name == "broken" {
			return ToolResult{}, errors.New("boom")
		}
		return ToolResult{Success: true}, nil
	}}
	e := New(Config{Tools: tools})
	task := newTask(toolStep("a", "broken"), toolStep("b", "never"))

	_, err := e.ExecuteTask(context.Background(), task, Controls{})
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("ExecuteTask error = %v, want *StepError", err)
	}
	if stepErr.StepID != "a" {
		t.Errorf("failed step = %s, want a", stepErr.StepID)
	}
	if task.Steps[1].Status != models.StepStatusPending {
		t.Errorf("later step status = %s, want pending (never ran)", task.Steps[1].Status)
	}
}

func TestRetryExhaustion(t *testing.T) {
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		return ToolResult{Success: false, Error: "transient"}, nil
	}}
	e := New(Config{
		Tools: tools,
		Options: Options{
			RetryBaseDelay: 100 * time.Millisecond,
			MaxRetryDelay:  time.Second,
		},
	})

	step := toolStep("a", "flaky")
	step.OnError = models.ErrorRetry
	step.MaxRetries = 3
	task := newTask(step)

	start := time.Now()
	_, err := e.ExecuteTask(context.Background(), task, Controls{})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if tools.callCount() != 3 {
		t.Errorf("attempts = %d, want 3", tools.callCount())
	}
	// Backoff between attempts: 100ms then 200ms.
	if elapsed < 300*time.Millisecond {
		t.Errorf("elapsed = %s, want >= 300ms of backoff", elapsed)
	}
	if res := task.StepResults["a"]; res == nil || res.Attempts != 3 {
		t.Errorf("final result attempts = %+v, want 3", res)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	attempts := 0
	var mu sync.Mutex
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return ToolResult{Success: false, Error: "transient"}, nil
		}
		return ToolResult{Success: true, Data: "recovered"}, nil
	}}
	e := New(Config{Tools: tools, Options: Options{RetryBaseDelay: time.Millisecond}})

	step := toolStep("a", "flaky")
	step.OnError = models.ErrorRetry
	step.MaxRetries = 5
	task := newTask(step)

	result, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	if result != "recovered" {
		t.Errorf("result = %v, want recovered", result)
	}
	if tools.callCount() != 3 {
		t.Errorf("attempts = %d, want 3", tools.callCount())
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second}, // capped
	}
	for _, tt := range tests {
		got := backoffDelay(100*time.Millisecond, tt.attempt, time.Second)
		if got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestStepTimeout(t *testing.T) {
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		time.Sleep(500 * time.Millisecond)
		return ToolResult{Success: true}, nil
	}}
	e := New(Config{Tools: tools})

	step := toolStep("a", "slow")
	step.Timeout = 50 * time.Millisecond
	task := newTask(step)

	_, err := e.ExecuteTask(context.Background(), task, Controls{})
	var timeoutErr *StepTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("ExecuteTask error = %v, want *StepTimeoutError", err)
	}
	if timeoutErr.StepID != "a" {
		t.Errorf("timed-out step = %s, want a", timeoutErr.StepID)
	}
	if step.Status != models.StepStatusFailed {
		t.Errorf("step status = %s, want failed", step.Status)
	}
}

func TestRollbackDegradesToFail(t *testing.T) {
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		return ToolResult{Success: false, Error: "boom"}, nil
	}}
	e := New(Config{Tools: tools})

	step := toolStep("a", "broken")
	step.OnError = models.ErrorRollback
	task := newTask(step)

	if _, err := e.ExecuteTask(context.Background(), task, Controls{}); err == nil {
		t.Fatal("rollback strategy should fail the task, not succeed")
	}
	if tools.callCount() != 1 {
		t.Errorf("tool calls = %d, want 1 (no retries under rollback)", tools.callCount())
	}
}

func TestUnknownStepType(t *testing.T) {
	e := New(Config{})
	task := newTask(&models.Step{ID: "a", Type: models.StepType("teleport")})

	_, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err == nil || !strings.Contains(err.Error(), "unknown step type") {
		t.Errorf("ExecuteTask error = %v, want unknown step type", err)
	}
}

func TestLLMStepStoresOutputVar(t *testing.T) {
	tools := &fakeTools{}
	e := New(Config{Tools: tools, LLM: &fakeLLM{response: "a summary"}})

	task := newTask(
		&models.Step{
			ID:   "a",
			Type: models.StepLLM,
			LLM:  &models.LLMConfig{Prompt: "summarize {{topic}}", OutputVar: "summary"},
		},
		&models.Step{
			ID:   "b",
			Type: models.StepTool,
			Tool: &models.ToolConfig{Name: "save", Params: map[string]any{"body": "{{summary}}"}},
		},
	)
	task.InitialContext = map[string]any{"topic": "go"}

	if _, err := e.ExecuteTask(context.Background(), task, Controls{}); err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	if task.Variables["summary"] != "a summary" {
		t.Errorf("summary variable = %v", task.Variables["summary"])
	}
	if got := tools.calls[0].args["body"]; got != "a summary" {
		t.Errorf("interpolated body = %v", got)
	}
}

func TestWaitStepDefaultsToText(t *testing.T) {
	input := &fakeInput{answer: "yes"}
	e := New(Config{Input: input})

	task := newTask(&models.Step{
		ID:   "a",
		Type: models.StepWait,
		Wait: &models.WaitConfig{Prompt: "continue?"},
	})

	result, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	if result != "yes" {
		t.Errorf("result = %v, want yes", result)
	}
	if input.inputType != "text" {
		t.Errorf("inputType = %q, want text", input.inputType)
	}
}

func TestConditionStepIsInformational(t *testing.T) {
	e := New(Config{})
	task := newTask(&models.Step{
		ID:   "check",
		Type: models.StepCondition,
		Condition: &models.ConditionConfig{
			Expression: "count >= 3",
			ThenStep:   "high",
			ElseStep:   "low",
		},
	})
	task.InitialContext = map[string]any{"count": 5}

	result, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	out, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want map", result)
	}
	if out["result"] != true {
		t.Errorf("condition result = %v, want true", out["result"])
	}
	if out["branch"] != "high" {
		t.Errorf("branch = %v, want high", out["branch"])
	}
}

func TestDelayStep(t *testing.T) {
	e := New(Config{})
	task := newTask(&models.Step{
		ID:    "a",
		Type:  models.StepDelay,
		Delay: &models.DelayConfig{Duration: 20 * time.Millisecond},
	})

	start := time.Now()
	if _, err := e.ExecuteTask(context.Background(), task, Controls{}); err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("elapsed = %s, want >= 20ms", elapsed)
	}
}

func TestPanicConvertedToError(t *testing.T) {
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		panic("tool went sideways")
	}}
	e := New(Config{Tools: tools})
	task := newTask(toolStep("a", "bomb"))

	_, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Errorf("ExecuteTask error = %v, want panic converted to error", err)
	}
}

func TestCancellationStopsExecution(t *testing.T) {
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		time.Sleep(10 * time.Millisecond)
		return ToolResult{Success: true}, nil
	}}
	e := New(Config{Tools: tools})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task := newTask(toolStep("a", "x"), toolStep("b", "y"))

	_, err := e.ExecuteTask(ctx, task, Controls{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ExecuteTask error = %v, want context.Canceled", err)
	}
	if tools.callCount() != 0 {
		t.Errorf("tool calls = %d, want 0 after pre-cancelled context", tools.callCount())
	}
}

func TestParallelAll(t *testing.T) {
	tools := &fakeTools{}
	e := New(Config{Tools: tools})

	group := &models.Step{
		ID:       "group",
		Type:     models.StepParallel,
		Parallel: &models.ParallelConfig{Steps: []string{"m1", "m2"}},
	}
	task := newTask(group, toolStep("m1", "left"), toolStep("m2", "right"))

	result, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	data, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want map of member outputs", result)
	}
	if data["m1"] != "ok:left" || data["m2"] != "ok:right" {
		t.Errorf("member data = %v", data)
	}
	// The main loop must not re-run consumed members.
	if tools.callCount() != 2 {
		t.Errorf("tool calls = %d, want 2", tools.callCount())
	}
}

func TestParallelRequiredFailure(t *testing.T) {
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		if name == "broken" {
			return ToolResult{Success: false, Error: "boom"}, nil
		}
		return ToolResult{Success: true, Data: "ok"}, nil
	}}

	makeTask := func(required []string) *models.Task {
		group := &models.Step{
			ID:   "group",
			Type: models.StepParallel,
			Parallel: &models.ParallelConfig{
				Steps:    []string{"m1", "m2"},
				Required: required,
			},
		}
		return newTask(group, toolStep("m1", "fine"), toolStep("m2", "broken"))
	}

	e := New(Config{Tools: tools})

	// All members required by default: the broken one fails the group.
	if _, err := e.ExecuteTask(context.Background(), makeTask(nil), Controls{}); err == nil {
		t.Error("expected group failure when a required member fails")
	}

	// Only m1 required: m2's failure is tolerated.
	result, err := e.ExecuteTask(context.Background(), makeTask([]string{"m1"}), Controls{})
	if err != nil {
		t.Fatalf("ExecuteTask with optional failure: %v", err)
	}
	data := result.(map[string]any)
	if _, ok := data["m2"]; ok {
		t.Error("failed optional member should not contribute data")
	}
	if data["m1"] != "ok" {
		t.Errorf("m1 data = %v", data["m1"])
	}
}

func TestParallelRace(t *testing.T) {
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		if name == "slow" {
			time.Sleep(200 * time.Millisecond)
		}
		return ToolResult{Success: true, Data: name}, nil
	}}
	e := New(Config{Tools: tools})

	group := &models.Step{
		ID:   "group",
		Type: models.StepParallel,
		Parallel: &models.ParallelConfig{
			Steps:    []string{"m1", "m2"},
			WaitMode: models.WaitRace,
		},
	}
	task := newTask(group, toolStep("m1", "fast"), toolStep("m2", "slow"))

	result, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	out := result.(map[string]any)
	if out["winner"] != "m1" {
		t.Errorf("winner = %v, want m1", out["winner"])
	}
	if out["data"] != "fast" {
		t.Errorf("data = %v, want fast", out["data"])
	}
}

func TestParallelRaceSettlesLosers(t *testing.T) {
	var slowCalls atomic.Int32
	tools := &fakeTools{fn: func(name string, args map[string]any) (ToolResult, error) {
		if name == "slow" {
			slowCalls.Add(1)
			time.Sleep(150 * time.Millisecond)
		}
		return ToolResult{Success: true, Data: "ok:" + name}, nil
	}}
	e := New(Config{Tools: tools})

	group := &models.Step{
		ID:   "group",
		Type: models.StepParallel,
		Parallel: &models.ParallelConfig{
			Steps:    []string{"m1", "m2"},
			WaitMode: models.WaitRace,
		},
	}
	task := newTask(group, toolStep("m1", "fast"), toolStep("m2", "slow"), toolStep("tail", "wrap"))

	result, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	if result != "ok:wrap" {
		t.Errorf("result = %v, want the tail step's output", result)
	}
	// The race settles the losing member itself; the main loop must not
	// run it a second time.
	if n := slowCalls.Load(); n != 1 {
		t.Errorf("slow tool invocations = %d, want 1", n)
	}
	if !task.Steps[2].Status.Terminal() {
		t.Errorf("losing member status = %s, want terminal", task.Steps[2].Status)
	}
}

func TestParallelValidation(t *testing.T) {
	e := New(Config{})

	self := &models.Step{
		ID:       "group",
		Type:     models.StepParallel,
		Parallel: &models.ParallelConfig{Steps: []string{"group"}},
	}
	if _, err := e.ExecuteTask(context.Background(), newTask(self), Controls{}); err == nil {
		t.Error("expected error for self-referencing parallel group")
	}

	unknown := &models.Step{
		ID:       "group",
		Type:     models.StepParallel,
		Parallel: &models.ParallelConfig{Steps: []string{"ghost"}},
	}
	if _, err := e.ExecuteTask(context.Background(), newTask(unknown), Controls{}); err == nil {
		t.Error("expected error for unknown parallel member")
	}
}

func TestLoopIteratesItems(t *testing.T) {
	tools := &fakeTools{}
	e := New(Config{Tools: tools})

	loop := &models.Step{
		ID:   "loop",
		Type: models.StepLoop,
		Loop: &models.LoopConfig{ItemsVar: "files", StepID: "process"},
	}
	target := &models.Step{
		ID:   "process",
		Type: models.StepTool,
		Tool: &models.ToolConfig{Name: "handle", Params: map[string]any{"file": "{{item}}"}},
	}
	task := newTask(loop, target)
	task.InitialContext = map[string]any{"files": []any{"a.txt", "b.txt", "c.txt"}}

	result, err := e.ExecuteTask(context.Background(), task, Controls{})
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	out := result.(map[string]any)
	if out["iterations"] != 3 {
		t.Errorf("iterations = %v, want 3", out["iterations"])
	}

	var got []string
	tools.mu.Lock()
	for _, c := range tools.calls {
		got = append(got, fmt.Sprintf("%v", c.args["file"]))
	}
	tools.mu.Unlock()
	want := []string{"a.txt", "b.txt", "c.txt"}
	if len(got) != len(want) {
		t.Fatalf("tool calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d file = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestProgressReporting(t *testing.T) {
	tools := &fakeTools{}
	e := New(Config{Tools: tools})
	task := newTask(toolStep("a", "x"), toolStep("b", "y"))

	var reports [][2]int
	ctrl := Controls{OnProgress: func(completed, total int) {
		reports = append(reports, [2]int{completed, total})
	}}

	if _, err := e.ExecuteTask(context.Background(), task, ctrl); err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	want := [][2]int{{1, 2}, {2, 2}}
	if len(reports) != len(want) {
		t.Fatalf("progress reports = %v, want %v", reports, want)
	}
	for i := range want {
		if reports[i] != want[i] {
			t.Errorf("report %d = %v, want %v", i, reports[i], want[i])
		}
	}
}
