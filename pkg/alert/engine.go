// Package alert turns sensor readings into edge-triggered threshold alerts
package alert

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mattpat48/se4iot-se4as/pkg/messages"
)

// State is the hysteresis state of one sensor
type State string

const (
	StateNormal   State = "NORMAL"
	StateAlerting State = "ALERTING"
)

// SensorState is the last known state of a sensor, as reported by States
type SensorState struct {
	SensorID  int     `json:"sensor_id"`
	Type      string  `json:"type"`
	Location  string  `json:"location"`
	State     State   `json:"state"`
	LastValue float64 `json:"last_value"`
	UpdatedAt string  `json:"updated_at"`
	// Episode links an ALERT to its RECOVERY through the envelope correlation ID
	Episode string `json:"episode,omitempty"`
}

// Engine holds the threshold table and the per-sensor state table.
// Entries are keyed by sensor_id and survive fleet rebuilds.
type Engine struct {
	source string

	mu         sync.Mutex
	thresholds map[string]float64
	states     map[int]*SensorState
}

// NewEngine creates an engine with an initial threshold table
func NewEngine(source string, thresholds map[string]float64) *Engine {
	e := &Engine{
		source:     source,
		thresholds: make(map[string]float64, len(thresholds)),
		states:     make(map[int]*SensorState),
	}
	for k, v := range thresholds {
		e.thresholds[k] = v
	}
	return e
}

// ApplyThresholds merges partial into the threshold table. Types not named
// keep their threshold.
func (e *Engine) ApplyThresholds(partial map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range partial {
		e.thresholds[k] = v
	}
}

// Thresholds returns a copy of the threshold table
func (e *Engine) Thresholds() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.thresholds))
	for k, v := range e.thresholds {
		out[k] = v
	}
	return out
}

// Process evaluates a reading. It returns an event only on a NORMAL to
// ALERTING or ALERTING to NORMAL transition. Readings of a type without a
// threshold are ignored.
func (e *Engine) Process(location string, r messages.Reading) (*messages.AlertEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	threshold, ok := e.thresholds[r.Type]
	if !ok {
		return nil, false
	}

	st, ok := e.states[r.SensorID]
	if !ok {
		st = &SensorState{SensorID: r.SensorID, State: StateNormal}
		e.states[r.SensorID] = st
	}
	st.Type = r.Type
	st.Location = location
	st.LastValue = r.Value
	st.UpdatedAt = r.Timestamp

	switch {
	case st.State == StateNormal && r.Value > threshold:
		st.State = StateAlerting
		st.Episode = uuid.New().String()
		ev := messages.NewAlertEvent(e.source, messages.AlertKindAlert, location, r, threshold)
		ev.Envelope = ev.Envelope.WithCorrelation(st.Episode)
		return ev, true

	case st.State == StateAlerting && r.Value <= threshold:
		st.State = StateNormal
		ev := messages.NewAlertEvent(e.source, messages.AlertKindRecovery, location, r, threshold)
		ev.Envelope = ev.Envelope.WithCorrelation(st.Episode)
		st.Episode = ""
		return ev, true
	}
	return nil, false
}

// States returns every tracked sensor ordered by sensor_id. Sensors that no
// longer exist in the fleet are still listed with their last state.
func (e *Engine) States() []SensorState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]SensorState, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

// Reset forgets the state of a sensor. It reports whether the sensor was tracked.
func (e *Engine) Reset(sensorID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.states[sensorID]
	delete(e.states, sensorID)
	return ok
}
