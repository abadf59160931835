package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	natsutil "github.com/mattpat48/se4iot-se4as/pkg/nats"
)

// NATSBus is a Bus backed by NATS. Retained publishes go through JetStream
// into a last-per-subject stream; subscriptions on control subjects replay
// that stream, everything else is plain core NATS.
type NATSBus struct {
	url    string
	name   string
	logger zerolog.Logger

	mu       sync.Mutex
	nc       *nats.Conn
	js       jetstream.JetStream
	subs     []*nats.Subscription
	consumes []jetstream.ConsumeContext
}

// NewNATSBus creates an unconnected NATS bus
func NewNATSBus(url, name string, logger zerolog.Logger) *NATSBus {
	return &NATSBus{
		url:    url,
		name:   name,
		logger: logger.With().Str("component", "nats").Logger(),
	}
}

// Connect dials the server and makes sure the control stream exists
func (b *NATSBus) Connect(ctx context.Context) error {
	b.logger.Info().Str("url", b.url).Msg("Connecting to NATS")

	nc, err := nats.Connect(b.url,
		nats.Name(b.name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := natsutil.SetupStreams(ctx, js); err != nil {
		nc.Close()
		return fmt.Errorf("failed to setup streams: %w", err)
	}

	b.mu.Lock()
	b.nc = nc
	b.js = js
	b.mu.Unlock()

	b.logger.Info().Msg("Connected to NATS with JetStream")
	return nil
}

func (b *NATSBus) conn() (*nats.Conn, jetstream.JetStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nc == nil {
		return nil, nil, ErrNotConnected
	}
	return b.nc, b.js, nil
}

// Publish sends a payload. Retained payloads on control subjects are stored
// in JetStream.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	nc, js, err := b.conn()
	if err != nil {
		return err
	}

	subject := natsutil.SubjectFromTopic(topic)
	if _, stored := natsutil.StreamFor(subject); retained && stored {
		if _, err := js.Publish(ctx, subject, payload); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
		return nil
	}

	if err := nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers h for filter. Control filters get an ordered consumer
// that first delivers the last message per subject; those deliveries are
// flagged Retained.
func (b *NATSBus) Subscribe(ctx context.Context, filter string, h Handler) error {
	nc, js, err := b.conn()
	if err != nil {
		return err
	}

	subject := natsutil.SubjectFromTopic(filter)
	if streamName, ok := natsutil.StreamFor(subject); ok {
		return b.subscribeStream(ctx, js, streamName, subject, h)
	}

	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		h(Message{Topic: natsutil.TopicFromSubject(m.Subject), Payload: m.Data})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.logger.Info().Str("subject", subject).Msg("Subscribed to NATS subject")
	return nil
}

func (b *NATSBus) subscribeStream(ctx context.Context, js jetstream.JetStream, streamName, subject string, h Handler) error {
	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		return fmt.Errorf("stream %s not found: %w", streamName, err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stream %s info: %w", streamName, err)
	}
	// Anything already stored when we subscribe is a replay of the last known value
	replayUpTo := info.State.LastSeq

	consumer, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer on %s: %w", subject, err)
	}

	cc, err := consumer.Consume(func(m jetstream.Msg) {
		retained := false
		if meta, err := m.Metadata(); err == nil {
			retained = meta.Sequence.Stream <= replayUpTo
		}
		h(Message{Topic: natsutil.TopicFromSubject(m.Subject()), Payload: m.Data(), Retained: retained})
	})
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", subject, err)
	}

	b.mu.Lock()
	b.consumes = append(b.consumes, cc)
	b.mu.Unlock()

	b.logger.Info().Str("subject", subject).Str("stream", streamName).Msg("Subscribed to retained subject")
	return nil
}

// IsConnected reports the connection state
func (b *NATSBus) IsConnected() bool {
	nc, _, err := b.conn()
	return err == nil && nc.IsConnected()
}

// Close stops consumers and closes the connection
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, cc := range b.consumes {
		cc.Stop()
	}
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.consumes = nil
	b.subs = nil

	if b.nc != nil {
		b.nc.Close()
		b.nc = nil
	}
	return nil
}
