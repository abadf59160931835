// Package config holds the live simulator configuration
package config

import (
	"reflect"
	"sync"

	"github.com/mattpat48/se4iot-se4as/pkg/messages"
)

// FleetConfig is the structural part of the configuration. Any change to it
// rebuilds the fleet.
type FleetConfig struct {
	Locations      []string                        `json:"locations"`
	LocationCoords map[string]messages.Coordinates `json:"location_coords"`
	SensorParams   []messages.SensorParam          `json:"sensor_params"`
	Density        int                             `json:"sensors_per_type"`
}

// MaxInstances bounds the fleet size a configuration may produce
const MaxInstances = 100000

// Size returns the number of instances the configuration generates
func (c FleetConfig) Size() int {
	if c.Density <= 0 {
		return 0
	}
	return len(c.Locations) * len(c.SensorParams) * c.Density
}

// Coords returns the coordinates of a location, zero if unknown
func (c FleetConfig) Coords(location string) messages.Coordinates {
	return c.LocationCoords[location]
}

// Clone returns a deep copy
func (c FleetConfig) Clone() FleetConfig {
	out := FleetConfig{
		Locations:      append([]string(nil), c.Locations...),
		LocationCoords: make(map[string]messages.Coordinates, len(c.LocationCoords)),
		SensorParams:   append([]messages.SensorParam(nil), c.SensorParams...),
		Density:        c.Density,
	}
	for k, v := range c.LocationCoords {
		out.LocationCoords[k] = v
	}
	return out
}

// EmergencyState is the currently simulated emergency. The zero value is an
// inactive emergency.
type EmergencyState struct {
	Active    bool               `json:"active"`
	Type      string             `json:"type"`
	Location  string             `json:"location"`
	Severity  string             `json:"severity"`
	Effects   map[string]float64 `json:"effects"`
	Timestamp string             `json:"timestamp"`
}

// Effect returns the target value forced on a location/type pair
func (e EmergencyState) Effect(location, sensorType string) (float64, bool) {
	if !e.Active || e.Location != location {
		return 0, false
	}
	v, ok := e.Effects[sensorType]
	return v, ok
}

// Clone returns a deep copy
func (e EmergencyState) Clone() EmergencyState {
	out := e
	if e.Effects != nil {
		out.Effects = make(map[string]float64, len(e.Effects))
		for k, v := range e.Effects {
			out.Effects[k] = v
		}
	}
	return out
}

// EmergencyFromUpdate converts a control payload. Inactive payloads clear the state.
func EmergencyFromUpdate(u *messages.EmergencyUpdate) EmergencyState {
	if !u.IsActive() {
		return EmergencyState{}
	}
	return EmergencyState{
		Active:    true,
		Type:      u.Type,
		Location:  u.Location,
		Severity:  u.Severity,
		Effects:   u.Effects,
		Timestamp: u.Timestamp,
	}.Clone()
}

// Snapshot is a consistent copy of the whole configuration
type Snapshot struct {
	Fleet      FleetConfig        `json:"fleet"`
	Thresholds map[string]float64 `json:"thresholds"`
	Emergency  EmergencyState     `json:"emergency"`
	Version    uint64             `json:"version"`
}

// Store holds the live configuration behind a single lock. Every mutation
// replaces its fields wholesale, except thresholds which merge.
type Store struct {
	mu sync.RWMutex

	fleet      FleetConfig
	thresholds map[string]float64
	emergency  EmergencyState
	version    uint64
}

// NewStore creates a store seeded with the given configuration
func NewStore(fleet FleetConfig, thresholds map[string]float64) *Store {
	s := &Store{
		fleet:      fleet.Clone(),
		thresholds: make(map[string]float64, len(thresholds)),
	}
	for k, v := range thresholds {
		s.thresholds[k] = v
	}
	return s
}

// NewDefaultStore creates a store seeded with the built-in city configuration
func NewDefaultStore() *Store {
	return NewStore(DefaultFleetConfig(), DefaultThresholds())
}

// ApplyLocations replaces the location list, and the coordinates when given.
// It reports whether the fleet structure changed.
func (s *Store) ApplyLocations(locations []string, coords map[string]messages.Coordinates) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.fleet.Clone()
	next.Locations = append([]string(nil), locations...)
	if coords != nil {
		next.LocationCoords = make(map[string]messages.Coordinates, len(coords))
		for k, v := range coords {
			next.LocationCoords[k] = v
		}
	}
	return s.swapFleetLocked(next)
}

// ApplySensorConfig replaces the sensor types and/or the density.
// It reports whether the fleet structure changed.
func (s *Store) ApplySensorConfig(params []messages.SensorParam, density *int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.fleet.Clone()
	if params != nil {
		next.SensorParams = append([]messages.SensorParam(nil), params...)
	}
	if density != nil {
		next.Density = *density
	}
	return s.swapFleetLocked(next)
}

func (s *Store) swapFleetLocked(next FleetConfig) bool {
	if reflect.DeepEqual(normalize(s.fleet), normalize(next)) {
		return false
	}
	s.fleet = next
	s.version++
	return true
}

// normalize makes nil and empty collections compare equal
func normalize(c FleetConfig) FleetConfig {
	if c.Locations == nil {
		c.Locations = []string{}
	}
	if c.LocationCoords == nil {
		c.LocationCoords = map[string]messages.Coordinates{}
	}
	if c.SensorParams == nil {
		c.SensorParams = []messages.SensorParam{}
	}
	return c
}

// ApplyEmergency replaces the emergency state
func (s *Store) ApplyEmergency(state EmergencyState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !state.Active {
		state = EmergencyState{}
	}
	s.emergency = state.Clone()
	s.version++
}

// ApplyThresholds merges the given thresholds into the table
func (s *Store) ApplyThresholds(partial map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range partial {
		s.thresholds[k] = v
	}
	s.version++
}

// Restore replaces the whole configuration with a previously saved snapshot
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fleet = snap.Fleet.Clone()
	s.thresholds = make(map[string]float64, len(snap.Thresholds))
	for k, v := range snap.Thresholds {
		s.thresholds[k] = v
	}
	s.emergency = snap.Emergency.Clone()
	s.version++
}

// Fleet returns a copy of the structural configuration
func (s *Store) Fleet() FleetConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fleet.Clone()
}

// Emergency returns a copy of the emergency state
func (s *Store) Emergency() EmergencyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emergency.Clone()
}

// Snapshot returns a consistent copy of the whole configuration
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	th := make(map[string]float64, len(s.thresholds))
	for k, v := range s.thresholds {
		th[k] = v
	}
	return Snapshot{
		Fleet:      s.fleet.Clone(),
		Thresholds: th,
		Emergency:  s.emergency.Clone(),
		Version:    s.version,
	}
}
