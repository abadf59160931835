// Package engine evolves sensor values and produces the readings of each tick
package engine

import (
	"math"

	"github.com/mattpat48/se4iot-se4as/pkg/fleet"
)

// Random-walk parameters, in volatility units
const (
	anomalyProbability = 0.10
	anomalySpan        = 3.0
	normalSpan         = 0.2

	// rainReversion pulls rain back toward its floor each tick
	rainReversion = 0.3
)

// seismicBand assigns Uniform(lo, hi) when the draw falls below limit
type seismicBand struct {
	limit, lo, hi float64
}

var seismicBands = []seismicBand{
	{limit: 0.005, lo: 4.0, hi: 7.0}, // major event
	{limit: 0.02, lo: 2.0, hi: 4.0},  // moderate
	{limit: 0.08, lo: 0.5, hi: 2.0},  // minor
}

var seismicBackground = seismicBand{limit: 1, lo: 0.0, hi: 0.5}

// State is the part of an instance a strategy reads
type State struct {
	Current    float64
	MinV       float64
	MaxV       float64
	Volatility float64
}

// StateOf extracts the strategy state of an instance
func StateOf(inst *fleet.Instance) State {
	return State{
		Current:    inst.CurrentValue,
		MinV:       inst.MinV,
		MaxV:       inst.MaxV,
		Volatility: inst.Volatility,
	}
}

// Strategy computes the next raw value of a sensor
type Strategy func(s State, r fleet.Rand) float64

// strategies maps sensor types with dedicated behaviour. Everything else is generic.
var strategies = map[string]Strategy{
	"rain":       RainLevel,
	"rain_level": RainLevel,
	"seismic":    Seismic,
}

// StrategyFor returns the strategy used for a sensor type
func StrategyFor(sensorType string) Strategy {
	if s, ok := strategies[sensorType]; ok {
		return s
	}
	return Generic
}

// Step advances an instance by one tick
func Step(inst *fleet.Instance, r fleet.Rand) float64 {
	inst.CurrentValue = StrategyFor(inst.Type)(StateOf(inst), r)
	return inst.CurrentValue
}

// Generic is a bounded random walk with occasional large jumps
func Generic(s State, r fleet.Rand) float64 {
	return clamp(s.Current+walkDelta(s.Volatility, r), s.MinV, s.MaxV)
}

// RainLevel is the generic walk plus a pull back toward the floor
func RainLevel(s State, r fleet.Rand) float64 {
	delta := walkDelta(s.Volatility, r)
	delta += (s.MinV - s.Current) * rainReversion
	return clamp(s.Current+delta, s.MinV, s.MaxV)
}

// Seismic ignores the previous value and draws a magnitude band each tick
func Seismic(_ State, r fleet.Rand) float64 {
	draw := r.Float64()
	for _, b := range seismicBands {
		if draw < b.limit {
			return fleet.Uniform(r, b.lo, b.hi)
		}
	}
	return fleet.Uniform(r, seismicBackground.lo, seismicBackground.hi)
}

func walkDelta(volatility float64, r fleet.Rand) float64 {
	span := normalSpan
	if r.Float64() < anomalyProbability {
		span = anomalySpan
	}
	return fleet.Uniform(r, -span*volatility, span*volatility)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
