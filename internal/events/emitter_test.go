package events

import (
	"testing"
	"time"

	"github.com/jfeld/taskforge/pkg/models"
)

func TestEmitterDeliversEvents(t *testing.T) {
	e := NewEmitter(4)

	e.Emit(Event{Type: TaskQueued, TaskID: "t1"})
	e.Emit(Event{Type: TaskStarted, TaskID: "t1"})

	got := <-e.Events()
	if got.Type != TaskQueued || got.TaskID != "t1" {
		t.Errorf("unexpected first event: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected emitter to stamp the event timestamp")
	}

	got = <-e.Events()
	if got.Type != TaskStarted {
		t.Errorf("expected task:started, got %s", got.Type)
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEmitter(1)

	e.Emit(Event{Type: TaskQueued})
	// Second emit has no receiver; after the grace period it must be
	// dropped rather than blocking forever.
	done := make(chan struct{})
	go func() {
		e.Emit(Event{Type: TaskStarted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked instead of dropping")
	}

	if e.DroppedCount() != 1 {
		t.Errorf("expected 1 dropped event, got %d", e.DroppedCount())
	}
}

func TestTaskEventSnapshot(t *testing.T) {
	task := &models.Task{
		ID:       "t1",
		Status:   models.TaskStatusRunning,
		Progress: 50,
		Steps: []*models.Step{
			{ID: "s1", Status: models.StepStatusCompleted},
			{ID: "s2", Status: models.StepStatusSkipped},
			{ID: "s3", Status: models.StepStatusPending},
		},
	}

	ev := TaskEvent(TaskProgress, task)
	if ev.TaskID != "t1" || ev.Progress != 50 {
		t.Errorf("unexpected snapshot: %+v", ev)
	}
	if ev.CompletedSteps != 2 || ev.TotalSteps != 3 {
		t.Errorf("expected 2/3 steps, got %d/%d", ev.CompletedSteps, ev.TotalSteps)
	}
}
