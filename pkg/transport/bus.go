// Package transport connects the agents to the city publish/subscribe bus
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetryDelay is the fixed pause between connection attempts
const DefaultRetryDelay = 5 * time.Second

// ErrNotConnected is returned when the bus is used before Connect succeeds
var ErrNotConnected = errors.New("transport not connected")

// Message is a delivery from the bus. Retained is set when the broker replays
// the last known value of the topic to a new subscription.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Handler processes a delivered message. Deliveries for one subscription are
// made in order from a single goroutine.
type Handler func(msg Message)

// Instrument turns an error-returning handler into a Handler, recording the
// outcome under msgType
type Instrument func(msgType string, h func(Message) error) Handler

// Wrap applies i, or drops the error when i is nil
func (i Instrument) Wrap(msgType string, h func(Message) error) Handler {
	if i != nil {
		return i(msgType, h)
	}
	return func(msg Message) { _ = h(msg) }
}

// Publisher sends payloads to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
}

// Bus is a topic-addressed publish/subscribe connection. Topics use MQTT
// syntax: '/' separated levels, '+' and '#' wildcards in filters.
type Bus interface {
	Publisher
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, filter string, h Handler) error
	IsConnected() bool
	Close() error
}

// PublishJSON marshals v and publishes it
func PublishJSON(ctx context.Context, pub Publisher, topic string, v interface{}, retained bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}
	return pub.Publish(ctx, topic, data, retained)
}

// ConnectWithRetry calls Connect until it succeeds, waiting delay between
// attempts. It only gives up when ctx is cancelled.
func ConnectWithRetry(ctx context.Context, bus Bus, delay time.Duration, logger zerolog.Logger) error {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	for attempt := 1; ; attempt++ {
		err := bus.Connect(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Connected to message bus")
			}
			return nil
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Message bus unavailable, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Match reports whether topic matches an MQTT subscription filter
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, level := range f {
		if level == "#" {
			return i == len(f)-1
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
