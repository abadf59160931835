package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mattpat48/se4iot-se4as/pkg/config"
	"github.com/mattpat48/se4iot-se4as/pkg/fleet"
)

// constRand always returns the same draw
type constRand float64

func (r constRand) Float64() float64 { return float64(r) }

// TestStrategyFor tests strategy selection by type
func TestStrategyFor(t *testing.T) {
	s := State{Current: 5, MinV: 0, MaxV: 10, Volatility: 1}

	// A draw of 0.0 picks the major seismic band and the lowest generic delta
	assert.InDelta(t, 4.0, StrategyFor("seismic")(s, constRand(0)), 1e-9)
	assert.InDelta(t, 2.0, StrategyFor("temperature")(s, constRand(0)), 1e-9)
}

// TestGenericStaysInRange tests the bounded random walk
func TestGenericStaysInRange(t *testing.T) {
	rng := fleet.NewLockedRand(1)
	inst := &fleet.Instance{Type: "temperature", MinV: -10, MaxV: 45, Volatility: 0.5, CurrentValue: 20}

	for i := 0; i < 10000; i++ {
		v := Step(inst, rng)
		assert.GreaterOrEqual(t, v, -10.0)
		assert.LessOrEqual(t, v, 45.0)
	}
}

// TestGenericClamps tests clamping at both bounds
func TestGenericClamps(t *testing.T) {
	low := State{Current: 0, MinV: 0, MaxV: 10, Volatility: 1}
	assert.Equal(t, 0.0, Generic(low, constRand(0)))

	high := State{Current: 10, MinV: 0, MaxV: 10, Volatility: 1}
	assert.Equal(t, 10.0, Generic(high, constRand(0.99)))
}

// TestRainLevelReverts tests the pull toward the floor
func TestRainLevelReverts(t *testing.T) {
	rng := fleet.NewLockedRand(5)
	inst := &fleet.Instance{Type: "rain_level", MinV: 0, MaxV: 200, Volatility: 1, CurrentValue: 150}

	for i := 0; i < 50; i++ {
		Step(inst, rng)
	}
	assert.Less(t, inst.CurrentValue, 20.0)
	assert.GreaterOrEqual(t, inst.CurrentValue, 0.0)
}

// TestSeismicRange tests that magnitudes stay within [0, 7]
func TestSeismicRange(t *testing.T) {
	rng := fleet.NewLockedRand(9)
	inst := &fleet.Instance{Type: "seismic", MinV: 0, MaxV: 10, Volatility: 0.1}

	background := 0
	for i := 0; i < 20000; i++ {
		v := Step(inst, rng)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 7.0)
		if v < 0.5 {
			background++
		}
	}
	assert.Greater(t, background, 15000, "most ticks should be background noise")
}

// TestOverlay tests the emergency overlay
func TestOverlay(t *testing.T) {
	em := config.EmergencyState{
		Active:   true,
		Location: "Park",
		Effects:  map[string]float64{"temperature": 75, "traffic_speed": 0},
	}
	rng := fleet.NewLockedRand(11)

	t.Run("forced value near target", func(t *testing.T) {
		inst := &fleet.Instance{Location: "Park", Type: "temperature", MinV: -10, MaxV: 45, CurrentValue: 20}
		for i := 0; i < 1000; i++ {
			v, ok := Overlay(inst, em, rng)
			assert.True(t, ok)
			assert.GreaterOrEqual(t, v, 73.0)
			assert.LessOrEqual(t, v, 77.0)
		}
		assert.Equal(t, 20.0, inst.CurrentValue, "overlay never changes the simulated value")
	})

	t.Run("other location unaffected", func(t *testing.T) {
		inst := &fleet.Instance{Location: "Square", Type: "temperature", MinV: -10, MaxV: 45, CurrentValue: 20}
		v, ok := Overlay(inst, em, rng)
		assert.False(t, ok)
		assert.Equal(t, 20.0, v)
	})

	t.Run("type without effect unaffected", func(t *testing.T) {
		inst := &fleet.Instance{Location: "Park", Type: "humidity", MinV: 0, MaxV: 100, CurrentValue: 50}
		v, ok := Overlay(inst, em, rng)
		assert.False(t, ok)
		assert.Equal(t, 50.0, v)
	})

	t.Run("floored at min_v", func(t *testing.T) {
		inst := &fleet.Instance{Location: "Park", Type: "traffic_speed", MinV: 0, MaxV: 90, CurrentValue: 40}
		for i := 0; i < 1000; i++ {
			v, ok := Overlay(inst, em, rng)
			assert.True(t, ok)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 2.0)
		}
	})

	t.Run("inactive emergency", func(t *testing.T) {
		inst := &fleet.Instance{Location: "Park", Type: "temperature", MinV: -10, MaxV: 45, CurrentValue: 20}
		_, ok := Overlay(inst, config.EmergencyState{}, rng)
		assert.False(t, ok)
	})
}
