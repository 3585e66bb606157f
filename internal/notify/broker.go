package notify

import (
	"context"
	"sync"
)

// Event is a topic message fanned out to subscribers (SSE streams, UI listeners).
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type EventBroker interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
}

// Broker is the in-process EventBroker. Slow subscribers miss events rather than block publishers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

func (b *Broker) Publish(topic string, evt Event) {
	b.mu.Lock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}

// BrokerSink publishes notifications on a broker topic as "notification.<level>" events.
type BrokerSink struct {
	Broker EventBroker
	Topic  string
}

func (s *BrokerSink) Notify(_ context.Context, n Notification) {
	data := map[string]any{"id": n.ID, "op": n.Op, "message": n.Message, "ts": n.TS}
	if n.Err != "" {
		data["error"] = n.Err
	}
	s.Broker.Publish(s.Topic, Event{Type: "notification." + string(n.Level), Data: data})
}
