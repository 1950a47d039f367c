package executor

import (
	"context"
	"fmt"
	"sync"
)

// PauseController manages pause/resume/stop state for one running task.
// It provides a condition-variable wait so a resume is observed immediately
// rather than on a poll interval.
type PauseController struct {
	// paused indicates whether execution is paused.
	paused bool
	// stopped indicates whether execution has been stopped for good.
	stopped bool
	// mu protects all fields.
	mu sync.RWMutex
	// cond signals waiters when execution is unpaused or stopped.
	cond *sync.Cond
}

// NewPauseController creates a new PauseController.
func NewPauseController() *PauseController {
	p := &PauseController{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pause suspends execution. The executor blocks at its next step boundary.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume releases a paused execution.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		p.cond.Broadcast()
	}
}

// Stop signals a permanent stop. This unblocks any WaitIfPaused calls.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
}

// IsPaused returns whether execution is currently paused.
func (p *PauseController) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// IsStopped returns whether the controller has been stopped.
func (p *PauseController) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}

// WaitIfPaused blocks until execution is unpaused or stopped.
// Returns an error if the context is cancelled or the controller is stopped.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	if p.paused && !p.stopped {
		// One goroutine wakes the condition if the context is cancelled.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-done:
			}
		}()

		for p.paused && !p.stopped {
			p.cond.Wait()
			if ctx.Err() != nil {
				close(done)
				p.mu.Unlock()
				return ctx.Err()
			}
		}
		close(done)
	}
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("execution stopped")
	}
	p.mu.Unlock()
	return nil
}
