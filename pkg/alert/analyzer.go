package alert

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mattpat48/se4iot-se4as/pkg/messages"
	"github.com/mattpat48/se4iot-se4as/pkg/transport"
)

// Analyzer connects an Engine to the bus: it consumes readings and threshold
// updates and publishes the resulting alert events
type Analyzer struct {
	engine     *Engine
	dispatcher *Dispatcher
	pub        transport.Publisher
	logger     zerolog.Logger
	metrics    *Metrics
	restore    bool
	workers    int
	wrap       transport.Instrument
}

// AnalyzerOption configures an Analyzer
type AnalyzerOption func(*Analyzer)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = l }
}

// WithMetrics sets the collectors
func WithMetrics(m *Metrics) AnalyzerOption {
	return func(a *Analyzer) { a.metrics = m }
}

// WithRestore sets whether retained threshold updates are honoured
func WithRestore(restore bool) AnalyzerOption {
	return func(a *Analyzer) { a.restore = restore }
}

// WithWorkers sets the number of dispatcher shards
func WithWorkers(n int) AnalyzerOption {
	return func(a *Analyzer) { a.workers = n }
}

// WithInstrument wraps the bus handlers, typically with BaseAgent.Instrument
func WithInstrument(wrap transport.Instrument) AnalyzerOption {
	return func(a *Analyzer) { a.wrap = wrap }
}

// NewAnalyzer creates an analyzer publishing its events on pub
func NewAnalyzer(engine *Engine, pub transport.Publisher, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		engine:  engine,
		pub:     pub,
		logger:  zerolog.Nop(),
		restore: true,
		workers: DefaultWorkers,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.dispatcher = NewDispatcher(a.workers, a.evaluate)
	return a
}

// Engine returns the underlying alert engine
func (a *Analyzer) Engine() *Engine {
	return a.engine
}

// Subscribe registers the reading and threshold handlers on bus
func (a *Analyzer) Subscribe(ctx context.Context, bus transport.Bus) error {
	if err := bus.Subscribe(ctx, messages.TopicThresholds, a.wrap.Wrap("thresholds", a.HandleThresholds)); err != nil {
		return err
	}
	return bus.Subscribe(ctx, messages.TopicDataFilter, a.wrap.Wrap("reading", func(msg transport.Message) error {
		return a.HandleReading(ctx, msg)
	}))
}

// Run evaluates queued readings until ctx is cancelled
func (a *Analyzer) Run(ctx context.Context) error {
	a.logger.Info().
		Int("workers", a.dispatcher.Workers()).
		Int("thresholds", len(a.engine.Thresholds())).
		Msg("Starting alert analyzer")
	return a.dispatcher.Run(ctx)
}

// HandleReading decodes a telemetry message and queues it for evaluation.
// The location is taken from the topic.
func (a *Analyzer) HandleReading(ctx context.Context, msg transport.Message) error {
	location, _, ok := messages.ParseDataTopic(msg.Topic)
	if !ok {
		a.metrics.reading("invalid_topic")
		return fmt.Errorf("%w: not a data topic: %s", messages.ErrInvalidValue, msg.Topic)
	}

	r, err := messages.DecodeReading(msg.Payload)
	if err != nil {
		a.metrics.reading("malformed")
		a.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("Discarding malformed reading")
		return err
	}

	a.metrics.reading("received")
	return a.dispatcher.Submit(ctx, Job{Location: location, Reading: *r})
}

// HandleThresholds merges a threshold update into the engine
func (a *Analyzer) HandleThresholds(msg transport.Message) error {
	if msg.Retained && !a.restore {
		a.logger.Debug().Str("topic", msg.Topic).Msg("Discarding retained control message")
		return nil
	}

	u, err := messages.DecodeThresholds(msg.Payload)
	if err != nil {
		a.metrics.rejected(msg.Topic)
		a.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("Rejected control message")
		return err
	}

	a.engine.ApplyThresholds(u.Thresholds)
	a.metrics.applied(msg.Topic)
	a.logger.Info().
		Interface("thresholds", u.Thresholds).
		Bool("retained", msg.Retained).
		Msg("Thresholds updated")
	return nil
}

// evaluate runs one reading through the engine and publishes any transition
func (a *Analyzer) evaluate(ctx context.Context, job Job) {
	ev, ok := a.engine.Process(job.Location, job.Reading)
	if !ok {
		return
	}

	a.metrics.alert(ev.Kind, ev.Type)
	logEvent := a.logger.Info()
	if ev.Kind == messages.AlertKindAlert {
		logEvent = a.logger.Warn()
	}
	logEvent.
		Int("sensor_id", ev.SensorID).
		Str("type", ev.Type).
		Str("location", ev.Location).
		Float64("value", ev.Value).
		Float64("threshold", ev.Threshold).
		Msg(ev.Message)

	if err := transport.PublishJSON(ctx, a.pub, ev.Topic(), ev, false); err != nil {
		a.logger.Error().Err(err).Int("sensor_id", ev.SensorID).Msg("Failed to publish alert")
	}
}
