package signal

import (
	"sync"
	"testing"
	"time"
)

type recordedCall struct {
	op     string
	taskID string
}

type fakeActions struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeActions) record(op, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{op, taskID})
	return nil
}

func (f *fakeActions) Pause(taskID string) error  { return f.record("pause", taskID) }
func (f *fakeActions) Resume(taskID string) error { return f.record("resume", taskID) }
func (f *fakeActions) Cancel(taskID string) error { return f.record("cancel", taskID) }

func (f *fakeActions) snapshot() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func waitForCalls(t *testing.T, f *fakeActions, n int) []recordedCall {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := f.snapshot(); len(calls) >= n {
			return calls
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d signal calls, got %v", n, f.snapshot())
	return nil
}

func TestWatcherAppliesSignalFiles(t *testing.T) {
	dir := t.TempDir()
	actions := &fakeActions{}

	w, err := New(dir, actions, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	if err := Send(dir, "pause", "task-1"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	calls := waitForCalls(t, actions, 1)
	if calls[0].op != "pause" || calls[0].taskID != "task-1" {
		t.Errorf("got call %+v, want pause task-1", calls[0])
	}
}

func TestWatcherConsumesPreexistingFiles(t *testing.T) {
	dir := t.TempDir()
	actions := &fakeActions{}

	// Signal dropped before the watcher exists.
	if err := Send(dir, "cancel", "task-9"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	w, err := New(dir, actions, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	calls := waitForCalls(t, actions, 1)
	if calls[0].op != "cancel" || calls[0].taskID != "task-9" {
		t.Errorf("got call %+v, want cancel task-9", calls[0])
	}
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	actions := &fakeActions{}

	w := &Watcher{dir: dir, actions: actions, done: make(chan struct{})}

	if err := Send(dir, "resume", "task-2"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := Send(dir, "cancel", "task-3"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	w.Sweep()

	calls := actions.snapshot()
	if len(calls) != 2 {
		t.Fatalf("Sweep applied %d signals, want 2", len(calls))
	}

	// Files must be consumed so a second sweep is a no-op.
	w.Sweep()
	if got := len(actions.snapshot()); got != 2 {
		t.Errorf("second Sweep reapplied signals, total calls = %d", got)
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name   string
		op     string
		taskID string
		ok     bool
	}{
		{"pause.task-1", "pause", "task-1", true},
		{"resume.abc", "resume", "abc", true},
		{"cancel.id.with.dots", "cancel", "id.with.dots", true},
		{"kill.task-1", "", "", false},
		{"pause", "", "", false},
		{"pause.", "", "", false},
		{".hidden", "", "", false},
	}
	for _, tt := range tests {
		op, taskID, ok := parseName(tt.name)
		if op != tt.op || taskID != tt.taskID || ok != tt.ok {
			t.Errorf("parseName(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.name, op, taskID, ok, tt.op, tt.taskID, tt.ok)
		}
	}
}

func TestSendRejectsUnknownOp(t *testing.T) {
	if err := Send(t.TempDir(), "kill", "task-1"); err == nil {
		t.Error("Send() with unknown op should fail")
	}
}
