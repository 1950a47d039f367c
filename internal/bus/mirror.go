package bus

import (
	"context"

	"github.com/jfeld/taskforge/internal/events"
	"github.com/jfeld/taskforge/internal/logging"
)

// MirrorEvents copies emitter events onto the bus so external observers
// can follow task lifecycles over NATS. It blocks until the channel closes
// or the context is cancelled; run it in its own goroutine.
func MirrorEvents(ctx context.Context, client *Client, ch <-chan events.Event, logger *logging.DebugLogger) {
	if logger == nil {
		logger = logging.Nop()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			topic := TopicTaskEvents(ev.TaskID)
			if ev.TaskID == "" {
				topic = "events.system"
			}
			if err := client.PublishJSON(topic, ev); err != nil {
				logger.Log("[bus] mirror %s: %v", string(ev.Type), err)
			}
		}
	}
}
