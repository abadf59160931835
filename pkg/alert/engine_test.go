package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattpat48/se4iot-se4as/pkg/messages"
)

func reading(id int, sensorType string, value float64) messages.Reading {
	return messages.Reading{SensorID: id, Type: sensorType, Value: value, Unit: "°C"}
}

// TestHysteresis tests that only edges produce events
func TestHysteresis(t *testing.T) {
	e := NewEngine("analyzer-test", map[string]float64{"temperature": 30})

	values := []float64{28, 31, 32, 29}
	var events []*messages.AlertEvent
	for _, v := range values {
		if ev, ok := e.Process("Park", reading(1, "temperature", v)); ok {
			events = append(events, ev)
		}
	}

	require.Len(t, events, 2)

	assert.Equal(t, messages.AlertKindAlert, events[0].Kind)
	assert.Equal(t, 31.0, events[0].Value)
	assert.Equal(t, 30.0, events[0].Threshold)
	assert.Equal(t, "City/alerts/Park/temperature", events[0].Topic())

	assert.Equal(t, messages.AlertKindRecovery, events[1].Kind)
	assert.Equal(t, 29.0, events[1].Value)

	assert.NotEmpty(t, events[0].Envelope.CorrelationID)
	assert.Equal(t, events[0].Envelope.CorrelationID, events[1].Envelope.CorrelationID,
		"an alert and its recovery share a correlation ID")
}

// TestHysteresisBoundary tests that a value equal to the threshold is not an alert
func TestHysteresisBoundary(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		kinds  []messages.AlertKind
	}{
		{name: "equal stays normal", values: []float64{30, 30}},
		{name: "equal recovers", values: []float64{30.5, 30}, kinds: []messages.AlertKind{messages.AlertKindAlert, messages.AlertKindRecovery}},
		{name: "first reading above alerts", values: []float64{40}, kinds: []messages.AlertKind{messages.AlertKindAlert}},
		{name: "repeated crossings", values: []float64{31, 29, 31, 29}, kinds: []messages.AlertKind{
			messages.AlertKindAlert, messages.AlertKindRecovery, messages.AlertKindAlert, messages.AlertKindRecovery,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine("analyzer-test", map[string]float64{"temperature": 30})

			var kinds []messages.AlertKind
			for _, v := range tt.values {
				if ev, ok := e.Process("Park", reading(1, "temperature", v)); ok {
					kinds = append(kinds, ev.Kind)
				}
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

// TestMissingThreshold tests that types without a threshold are skipped
func TestMissingThreshold(t *testing.T) {
	e := NewEngine("analyzer-test", map[string]float64{"temperature": 30})

	ev, ok := e.Process("Park", reading(1, "radiation", 1000))
	assert.False(t, ok)
	assert.Nil(t, ev)
	assert.Empty(t, e.States(), "skipped readings are not tracked")
}

// TestSensorsIndependent tests that state is kept per sensor
func TestSensorsIndependent(t *testing.T) {
	e := NewEngine("analyzer-test", map[string]float64{"temperature": 30})

	_, ok := e.Process("Park", reading(1, "temperature", 35))
	assert.True(t, ok)
	_, ok = e.Process("Park", reading(2, "temperature", 35))
	assert.True(t, ok, "second sensor alerts on its own")
	_, ok = e.Process("Park", reading(1, "temperature", 36))
	assert.False(t, ok)
}

// TestApplyThresholds tests merging threshold updates
func TestApplyThresholds(t *testing.T) {
	e := NewEngine("analyzer-test", map[string]float64{"temperature": 30, "co2": 1000})

	e.ApplyThresholds(map[string]float64{"temperature": 40, "noise_level": 80})

	th := e.Thresholds()
	assert.Equal(t, map[string]float64{"temperature": 40, "co2": 1000, "noise_level": 80}, th)

	th["co2"] = 0
	assert.Equal(t, 1000.0, e.Thresholds()["co2"], "Thresholds returns a copy")

	_, ok := e.Process("Park", reading(1, "temperature", 35))
	assert.False(t, ok, "raised threshold applies to new readings")
}

// TestThresholdChangeWhileAlerting tests recovery after the threshold is raised
func TestThresholdChangeWhileAlerting(t *testing.T) {
	e := NewEngine("analyzer-test", map[string]float64{"temperature": 30})

	_, ok := e.Process("Park", reading(1, "temperature", 35))
	require.True(t, ok)

	e.ApplyThresholds(map[string]float64{"temperature": 40})

	ev, ok := e.Process("Park", reading(1, "temperature", 35))
	require.True(t, ok)
	assert.Equal(t, messages.AlertKindRecovery, ev.Kind)
}

// TestStatesAndReset tests listing and resetting sensor state
func TestStatesAndReset(t *testing.T) {
	e := NewEngine("analyzer-test", map[string]float64{"temperature": 30})

	e.Process("Square", reading(5, "temperature", 20))
	e.Process("Park", reading(2, "temperature", 35))

	states := e.States()
	require.Len(t, states, 2)
	assert.Equal(t, 2, states[0].SensorID)
	assert.Equal(t, StateAlerting, states[0].State)
	assert.Equal(t, "Park", states[0].Location)
	assert.NotEmpty(t, states[0].Episode)
	assert.Equal(t, 5, states[1].SensorID)
	assert.Equal(t, StateNormal, states[1].State)
	assert.Empty(t, states[1].Episode)

	assert.True(t, e.Reset(2))
	assert.False(t, e.Reset(2))
	assert.Len(t, e.States(), 1)

	// A reset sensor starts again from NORMAL
	ev, ok := e.Process("Park", reading(2, "temperature", 35))
	require.True(t, ok)
	assert.Equal(t, messages.AlertKindAlert, ev.Kind)
}
