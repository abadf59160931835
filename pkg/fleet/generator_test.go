package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattpat48/se4iot-se4as/pkg/config"
	"github.com/mattpat48/se4iot-se4as/pkg/messages"
)

// TestRegenerateOrdering tests that IDs follow location, type, replica order
func TestRegenerateOrdering(t *testing.T) {
	cfg := config.FleetConfig{
		Locations: []string{"A", "B"},
		LocationCoords: map[string]messages.Coordinates{
			"A": {Lat: 1, Lon: 1},
		},
		SensorParams: []messages.SensorParam{
			{Type: "x", Unit: "u", MinV: 0, MaxV: 10, Volatility: 1},
		},
		Density: 2,
	}

	instances := Regenerate(cfg, NewLockedRand(1))
	require.Len(t, instances, 4)

	want := []struct {
		id  int
		loc string
	}{
		{1, "A"}, {2, "A"}, {3, "B"}, {4, "B"},
	}
	for i, w := range want {
		assert.Equal(t, w.id, instances[i].SensorID)
		assert.Equal(t, w.loc, instances[i].Location)
		assert.Equal(t, "x", instances[i].Type)
	}

	assert.Equal(t, messages.Coordinates{Lat: 1, Lon: 1}, instances[0].Coords)
	assert.Equal(t, messages.Coordinates{}, instances[2].Coords, "unknown coordinates resolve to zero")
}

// TestRegenerateDefaultFleet tests the size of the built-in fleet
func TestRegenerateDefaultFleet(t *testing.T) {
	instances := Regenerate(config.DefaultFleetConfig(), NewLockedRand(42))
	assert.Len(t, instances, 3*7*2)

	for i, inst := range instances {
		assert.Equal(t, i+1, inst.SensorID)
	}
}

// TestRegenerateEmpty tests degenerate configurations
func TestRegenerateEmpty(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.FleetConfig
	}{
		{name: "no locations", cfg: config.FleetConfig{SensorParams: config.DefaultFleetConfig().SensorParams, Density: 2}},
		{name: "no types", cfg: config.FleetConfig{Locations: []string{"A"}, Density: 2}},
		{name: "zero density", cfg: config.FleetConfig{Locations: []string{"A"}, SensorParams: config.DefaultFleetConfig().SensorParams}},
		{name: "negative density", cfg: config.FleetConfig{Locations: []string{"A"}, SensorParams: config.DefaultFleetConfig().SensorParams, Density: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Regenerate(tt.cfg, NewLockedRand(1)))
		})
	}
}

// TestSeedRanges tests initial values of generic and near-zero types
func TestSeedRanges(t *testing.T) {
	rng := NewLockedRand(7)

	generic := messages.SensorParam{Type: "temperature", MinV: -10, MaxV: 45, Volatility: 0.5}
	seismic := messages.SensorParam{Type: "seismic", MinV: 0, MaxV: 10, Volatility: 0.1}
	rain := messages.SensorParam{Type: "rain_level", MinV: 0, MaxV: 200, Volatility: 1}

	for i := 0; i < 1000; i++ {
		v := seed(generic, rng)
		assert.GreaterOrEqual(t, v, -10.0)
		assert.Less(t, v, 17.5, "generic types seed in the lower half")

		v = seed(seismic, rng)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 0.5)

		v = seed(rain, rng)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 5.0)
	}
}

// TestFleetLen tests Len on nil and populated fleets
func TestFleetLen(t *testing.T) {
	var f *Fleet
	assert.Equal(t, 0, f.Len())

	f = &Fleet{Instances: Regenerate(config.DefaultFleetConfig(), NewLockedRand(1))}
	assert.Equal(t, 42, f.Len())
}

// TestUniform tests the bounds of Uniform
func TestUniform(t *testing.T) {
	rng := NewLockedRand(3)
	for i := 0; i < 1000; i++ {
		v := Uniform(rng, 2, 4)
		assert.GreaterOrEqual(t, v, 2.0)
		assert.Less(t, v, 4.0)
	}
}
