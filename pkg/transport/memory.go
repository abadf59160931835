package transport

import (
	"context"
	"sync"
)

// MemoryBus is an in-process broker with retained-message semantics. It runs
// the simulator and analyzer in one process and backs the tests.
type MemoryBus struct {
	mu        sync.Mutex
	connected bool
	retained  map[string][]byte
	subs      []*memorySub
}

type memorySub struct {
	filter  string
	handler Handler
	mu      sync.Mutex // keeps deliveries to one subscription ordered
}

// NewMemoryBus creates an empty in-process broker
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{retained: make(map[string][]byte)}
}

// Connect marks the bus usable
func (b *MemoryBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

// IsConnected reports whether Connect has been called
func (b *MemoryBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Close disconnects the bus
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.subs = nil
	return nil
}

// Publish delivers the payload synchronously to every matching subscription.
// A retained payload replaces the topic's last known value; an empty retained
// payload clears it, as with MQTT.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return ErrNotConnected
	}
	data := append([]byte(nil), payload...)
	if retained {
		if len(data) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = data
		}
	}
	targets := make([]*memorySub, 0, len(b.subs))
	for _, s := range b.subs {
		if Match(s.filter, topic) {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.deliver(Message{Topic: topic, Payload: data})
	}
	return nil
}

// Subscribe registers h and replays the retained values matching filter
// before returning
func (b *MemoryBus) Subscribe(ctx context.Context, filter string, h Handler) error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return ErrNotConnected
	}
	sub := &memorySub{filter: filter, handler: h}
	b.subs = append(b.subs, sub)

	var replay []Message
	for topic, data := range b.retained {
		if Match(filter, topic) {
			replay = append(replay, Message{Topic: topic, Payload: data, Retained: true})
		}
	}
	b.mu.Unlock()

	for _, msg := range replay {
		sub.deliver(msg)
	}
	return nil
}

// Retained returns the last retained payload of a topic
func (b *MemoryBus) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.retained[topic]
	return data, ok
}

func (s *memorySub) deliver(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler(msg)
}
