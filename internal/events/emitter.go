package events

import (
	"log"
	"sync/atomic"
	"time"
)

// Emitter provides a thread-safe event channel for subscribers.
// Emission never blocks the engine indefinitely: if the buffer stays full
// past a short grace period the event is dropped and counted.
type Emitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the channel. If the channel is full it retries
// with a timeout before dropping the event.
func (e *Emitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Try immediate send first.
	select {
	case e.events <- event:
		return
	default:
	}

	// Give the receiver 100ms to drain before dropping.
	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[events] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events for subscribers.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Close closes the event channel. Call only after all emitting components
// have stopped.
func (e *Emitter) Close() {
	close(e.events)
}
