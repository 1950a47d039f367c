// Package signal watches a control directory for out-of-band task commands.
// Dropping a file named pause.<taskID>, resume.<taskID>, or cancel.<taskID>
// into the directory applies that operation to the running queue. The files
// are consumed (removed) once acted on.
package signal

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jfeld/taskforge/internal/logging"
)

// Actions is the set of queue operations a signal file can trigger.
// *queue.Queue satisfies it.
type Actions interface {
	Pause(taskID string) error
	Resume(taskID string) error
	Cancel(taskID string) error
}

// Watcher monitors a control directory and applies signal files.
type Watcher struct {
	dir     string
	actions Actions
	logger  *logging.DebugLogger

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// New creates a watcher for the given control directory, creating it if
// needed. If the filesystem watcher cannot be set up the Watcher still
// works through explicit Sweep calls.
func New(dir string, actions Actions, logger *logging.DebugLogger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:     dir,
		actions: actions,
		logger:  logger,
		done:    make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Log("signal: no fs watcher, sweep-only mode: %v", err)
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		logger.Log("signal: cannot watch %s, sweep-only mode: %v", dir, err)
		return w, nil
	}
	w.watcher = fsw

	// Consume anything dropped before the watcher started.
	w.Sweep()
	go w.watch()

	return w, nil
}

// Dir returns the control directory being watched.
func (w *Watcher) Dir() string {
	return w.dir
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0 {
				w.apply(event.Name)
			}
		case <-w.watcher.Errors:
			// Keep watching; Sweep covers missed events.
		}
	}
}

// Sweep scans the control directory and applies any pending signal files.
// It backs up the filesystem watcher and can be called periodically when
// no watcher is available.
func (w *Watcher) Sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.apply(filepath.Join(w.dir, entry.Name()))
	}
}

// apply parses one signal file, performs its operation, and removes it.
func (w *Watcher) apply(path string) {
	op, taskID, ok := parseName(filepath.Base(path))
	if !ok {
		return
	}

	var err error
	switch op {
	case "pause":
		err = w.actions.Pause(taskID)
	case "resume":
		err = w.actions.Resume(taskID)
	case "cancel":
		err = w.actions.Cancel(taskID)
	}
	if err != nil {
		w.logger.Log("signal: %s %s: %v", op, taskID, err)
	} else {
		w.logger.Log("signal: applied %s to %s", op, taskID)
	}

	os.Remove(path)
}

// parseName splits a signal file name into operation and task ID.
func parseName(name string) (op, taskID string, ok bool) {
	op, taskID, found := strings.Cut(name, ".")
	if !found || taskID == "" {
		return "", "", false
	}
	switch op {
	case "pause", "resume", "cancel":
		return op, taskID, true
	default:
		return "", "", false
	}
}

// Send writes a signal file into the control directory. The running
// watcher on the other side picks it up and applies the operation.
func Send(dir, op, taskID string) error {
	if _, _, ok := parseName(op + "." + taskID); !ok {
		return &BadSignalError{Op: op, TaskID: taskID}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, op+"."+taskID)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// BadSignalError reports a signal that the watcher would not recognize.
type BadSignalError struct {
	Op     string
	TaskID string
}

func (e *BadSignalError) Error() string {
	return "invalid signal " + e.Op + " for task " + e.TaskID
}

// Close stops the watcher. Pending signal files remain on disk.
func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}
