package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mattpat48/se4iot-se4as/pkg/config"
	"github.com/mattpat48/se4iot-se4as/pkg/fleet"
	"github.com/mattpat48/se4iot-se4as/pkg/messages"
	"github.com/mattpat48/se4iot-se4as/pkg/transport"
)

// Default timings of the simulation loop
const (
	DefaultTickInterval = 10 * time.Second

	// RestoreWait gives the broker time to replay retained control messages
	// before the first tick
	RestoreWait = 500 * time.Millisecond
)

// Emission is one reading produced by a tick
type Emission struct {
	Topic      string
	Location   string
	Reading    messages.Reading
	Overridden bool
}

// Simulator owns the live configuration and the fleet built from it.
//
// Control messages are applied under ctrlMu, so a mutation and the rebuild it
// triggers are one unit. The fleet pointer is swapped under fleetMu; a tick
// reads it once and works on that generation only. tickMu guards the values
// of the instances and is always taken before fleetMu.
type Simulator struct {
	id      string
	store   *config.Store
	rng     fleet.Rand
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time
	restore bool
	changed func(config.Snapshot)
	wrap    transport.Instrument

	ctrlMu sync.Mutex

	fleetMu    sync.RWMutex
	fleet      *fleet.Fleet
	generation uint64

	tickMu sync.Mutex
}

// Option configures a Simulator
type Option func(*Simulator)

// WithRand sets the randomness source
func WithRand(r fleet.Rand) Option {
	return func(s *Simulator) { s.rng = r }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// WithMetrics sets the collectors
func WithMetrics(m *Metrics) Option {
	return func(s *Simulator) { s.metrics = m }
}

// WithClock sets the time source used for reading timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithRestore sets whether retained control messages are honoured
func WithRestore(restore bool) Option {
	return func(s *Simulator) { s.restore = restore }
}

// WithChangeHook registers a callback run after every applied control message.
// Calls are serialized and see strictly increasing snapshot versions.
func WithChangeHook(fn func(config.Snapshot)) Option {
	return func(s *Simulator) { s.changed = fn }
}

// WithInstrument wraps the bus handlers, typically with BaseAgent.Instrument
func WithInstrument(wrap transport.Instrument) Option {
	return func(s *Simulator) { s.wrap = wrap }
}

// NewSimulator creates a simulator over store and builds the first fleet
func NewSimulator(id string, store *config.Store, opts ...Option) *Simulator {
	s := &Simulator{
		id:      id,
		store:   store,
		logger:  zerolog.Nop(),
		now:     time.Now,
		restore: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = fleet.NewTimeSeededRand()
	}

	s.ctrlMu.Lock()
	s.rebuildLocked()
	s.ctrlMu.Unlock()
	return s
}

// Restore replaces the configuration with a saved snapshot and rebuilds the
// fleet. An oversized snapshot is refused and the configuration kept.
func (s *Simulator) Restore(snap config.Snapshot) error {
	if err := checkSize(snap.Fleet); err != nil {
		return err
	}

	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	s.store.Restore(snap)
	s.metrics.emergency(snap.Emergency.Active)
	s.rebuildLocked()
	s.logger.Info().
		Int("locations", len(snap.Fleet.Locations)).
		Int("sensor_types", len(snap.Fleet.SensorParams)).
		Msg("Restored configuration from snapshot")
	return nil
}

// Subscribe registers the control handler on bus. When restore is enabled it
// then waits RestoreWait so retained values land before the first tick.
func (s *Simulator) Subscribe(ctx context.Context, bus transport.Bus) error {
	handle := s.wrap.Wrap("control", s.HandleMessage)
	for _, filter := range []string{messages.TopicUpdateFilter, messages.TopicEmergency} {
		if err := bus.Subscribe(ctx, filter, handle); err != nil {
			return err
		}
	}

	if !s.restore {
		return nil
	}
	timer := time.NewTimer(RestoreWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HandleMessage applies one control message. Invalid payloads are logged,
// counted and discarded without touching the configuration.
func (s *Simulator) HandleMessage(msg transport.Message) error {
	if msg.Retained && !s.restore {
		s.logger.Debug().Str("topic", msg.Topic).Msg("Discarding retained control message")
		return nil
	}
	if !messages.IsControlTopic(msg.Topic) {
		return nil
	}

	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	structural, err := s.applyLocked(msg)
	if err != nil {
		s.metrics.rejected(msg.Topic)
		s.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("Rejected control message")
		return err
	}
	if structural {
		s.rebuildLocked()
	}

	s.metrics.applied(msg.Topic)
	s.logger.Info().
		Str("topic", msg.Topic).
		Bool("retained", msg.Retained).
		Bool("rebuilt", structural).
		Msg("Applied control message")

	// the hook runs under ctrlMu so snapshots reach it in version order
	if s.changed != nil {
		s.changed(s.store.Snapshot())
	}
	return nil
}

// applyLocked decodes and applies a control payload (must hold ctrlMu)
func (s *Simulator) applyLocked(msg transport.Message) (bool, error) {
	switch msg.Topic {
	case messages.TopicLocations:
		u, err := messages.DecodeLocations(msg.Payload)
		if err != nil {
			return false, err
		}
		next := s.store.Fleet()
		next.Locations = u.Locations
		if err := checkSize(next); err != nil {
			return false, err
		}
		return s.store.ApplyLocations(u.Locations, u.LocationCoords), nil

	case messages.TopicSensorConfig:
		u, err := messages.DecodeSensorConfig(msg.Payload)
		if err != nil {
			return false, err
		}
		next := s.store.Fleet()
		if u.SensorParams != nil {
			next.SensorParams = u.SensorParams
		}
		if u.SensorsPerType != nil {
			next.Density = *u.SensorsPerType
		}
		if err := checkSize(next); err != nil {
			return false, err
		}
		return s.store.ApplySensorConfig(u.SensorParams, u.SensorsPerType), nil

	case messages.TopicEmergency:
		u, err := messages.DecodeEmergency(msg.Payload)
		if err != nil {
			return false, err
		}
		state := config.EmergencyFromUpdate(u)
		s.store.ApplyEmergency(state)
		s.metrics.emergency(state.Active)
		if state.Active {
			s.logger.Warn().
				Str("scenario", state.Type).
				Str("location", state.Location).
				Str("severity", state.Severity).
				Msg("Emergency started")
		} else {
			s.logger.Info().Msg("Emergency cleared")
		}
		return false, nil

	case messages.TopicThresholds:
		u, err := messages.DecodeThresholds(msg.Payload)
		if err != nil {
			return false, err
		}
		s.store.ApplyThresholds(u.Thresholds)
		return false, nil
	}
	return false, fmt.Errorf("%w: unhandled control topic %s", messages.ErrInvalidValue, msg.Topic)
}

// checkSize rejects configurations whose fleet would exceed config.MaxInstances
func checkSize(next config.FleetConfig) error {
	if n := next.Size(); n > config.MaxInstances {
		return fmt.Errorf("%w: configuration yields %d instances, limit is %d",
			messages.ErrInvalidValue, n, config.MaxInstances)
	}
	return nil
}

// rebuildLocked regenerates the fleet from the store and swaps it in (must hold ctrlMu)
func (s *Simulator) rebuildLocked() {
	cfg := s.store.Fleet()
	instances := fleet.Regenerate(cfg, s.rng)

	s.fleetMu.Lock()
	s.generation++
	s.fleet = &fleet.Fleet{
		Generation: s.generation,
		BuiltAt:    s.now(),
		Instances:  instances,
	}
	s.fleetMu.Unlock()

	s.metrics.rebuilt(len(instances))
	s.logger.Info().
		Uint64("generation", s.generation).
		Int("instances", len(instances)).
		Int("locations", len(cfg.Locations)).
		Int("sensor_types", len(cfg.SensorParams)).
		Int("sensors_per_type", cfg.Density).
		Msg("Fleet regenerated")
}

func (s *Simulator) current() *fleet.Fleet {
	s.fleetMu.RLock()
	defer s.fleetMu.RUnlock()
	return s.fleet
}

// Tick advances every instance of the current fleet once and returns the
// readings to publish
func (s *Simulator) Tick() []Emission {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	f := s.current()
	em := s.store.Emergency()
	ts := messages.FormatTimestamp(s.now())

	out := make([]Emission, 0, f.Len())
	for _, inst := range f.Instances {
		Step(inst, s.rng)
		value, overridden := Overlay(inst, em, s.rng)
		out = append(out, Emission{
			Topic:      messages.DataTopic(inst.Location, inst.Type),
			Location:   inst.Location,
			Overridden: overridden,
			Reading: messages.Reading{
				SensorID:  inst.SensorID,
				Value:     value,
				Timestamp: ts,
				Type:      inst.Type,
				Unit:      inst.Unit,
				Lat:       inst.Coords.Lat,
				Lon:       inst.Coords.Lon,
			},
		})
	}
	return out
}

// Run ticks immediately and then every interval until ctx is cancelled
func (s *Simulator) Run(ctx context.Context, pub transport.Publisher, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	s.logger.Info().
		Dur("interval", interval).
		Int("instances", s.current().Len()).
		Bool("restore", s.restore).
		Msg("Starting sensor simulation")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.publish(ctx, pub, s.Tick())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// publish sends a tick's readings. A failed reading is logged and skipped.
func (s *Simulator) publish(ctx context.Context, pub transport.Publisher, emissions []Emission) {
	for _, e := range emissions {
		if err := transport.PublishJSON(ctx, pub, e.Topic, e.Reading, false); err != nil {
			s.metrics.reading("failed", e.Reading.Type)
			s.logger.Error().Err(err).Int("sensor_id", e.Reading.SensorID).Msg("Failed to publish reading")
			continue
		}
		s.metrics.reading("success", e.Reading.Type)
	}
	s.logger.Debug().Int("readings", len(emissions)).Msg("Tick published")
}

// Fleet returns a copy of the current fleet with its latest values
func (s *Simulator) Fleet() *fleet.Fleet {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	f := s.current()
	out := &fleet.Fleet{
		Generation: f.Generation,
		BuiltAt:    f.BuiltAt,
		Instances:  make([]*fleet.Instance, len(f.Instances)),
	}
	for i, inst := range f.Instances {
		cp := *inst
		out.Instances[i] = &cp
	}
	return out
}

// Snapshot returns the live configuration
func (s *Simulator) Snapshot() config.Snapshot {
	return s.store.Snapshot()
}

// Restoring reports whether retained control messages are honoured
func (s *Simulator) Restoring() bool {
	return s.restore
}

// ID returns the simulator's agent ID
func (s *Simulator) ID() string {
	return s.id
}
