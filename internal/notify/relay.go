package notify

import (
	"context"
	"encoding/json"
)

// Relay forwards every event published on topic to sink as an info
// notification until ctx is done. The event type becomes the notification op
// and the JSON-encoded data its message.
func Relay(ctx context.Context, b EventBroker, topic string, sink Sink) {
	ch := b.Subscribe(topic)
	defer b.Unsubscribe(topic, ch)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			msg, _ := json.Marshal(evt.Data)
			Info(ctx, sink, evt.Type, string(msg))
		}
	}
}
