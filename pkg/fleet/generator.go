// Package fleet builds the population of simulated sensors from a configuration
package fleet

import (
	"math"
	"time"

	"github.com/mattpat48/se4iot-se4as/pkg/config"
	"github.com/mattpat48/se4iot-se4as/pkg/messages"
)

// nearZeroSpan is the seed window, in volatility units, of near-zero types
const nearZeroSpan = 5.0

// NearZeroTypes rest at their floor most of the time and are seeded close to it
var NearZeroTypes = map[string]bool{
	"seismic":    true,
	"rain":       true,
	"rain_level": true,
}

// Instance is one simulated sensor. CurrentValue is owned by the value engine.
type Instance struct {
	SensorID     int                  `json:"sensor_id"`
	Location     string               `json:"location"`
	Type         string               `json:"type"`
	Unit         string               `json:"unit"`
	MinV         float64              `json:"min_v"`
	MaxV         float64              `json:"max_v"`
	Volatility   float64              `json:"volatility"`
	Coords       messages.Coordinates `json:"coordinates"`
	CurrentValue float64              `json:"current_value"`
}

// Fleet is one generation of instances. It is never modified after it has
// been handed to the simulator; a rebuild produces a new Fleet.
type Fleet struct {
	Generation uint64      `json:"generation"`
	BuiltAt    time.Time   `json:"built_at"`
	Instances  []*Instance `json:"instances"`
}

// Len returns the number of instances
func (f *Fleet) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Instances)
}

// Regenerate builds the instance list for cfg: locations outermost, sensor
// types next, density replicas innermost. Sensor IDs are the 1-based position
// in that order.
func Regenerate(cfg config.FleetConfig, rng Rand) []*Instance {
	density := cfg.Density
	if density < 0 {
		density = 0
	}

	out := make([]*Instance, 0, len(cfg.Locations)*len(cfg.SensorParams)*density)
	id := 0
	for _, loc := range cfg.Locations {
		coords := cfg.Coords(loc)
		for _, p := range cfg.SensorParams {
			for i := 0; i < density; i++ {
				id++
				out = append(out, &Instance{
					SensorID:     id,
					Location:     loc,
					Type:         p.Type,
					Unit:         p.Unit,
					MinV:         p.MinV,
					MaxV:         p.MaxV,
					Volatility:   p.Volatility,
					Coords:       coords,
					CurrentValue: seed(p, rng),
				})
			}
		}
	}
	return out
}

// seed picks the initial value of a new instance
func seed(p messages.SensorParam, rng Rand) float64 {
	hi := p.MinV + 0.5*(p.MaxV-p.MinV)
	if NearZeroTypes[p.Type] {
		hi = p.MinV + nearZeroSpan*p.Volatility
	}
	return Uniform(rng, p.MinV, math.Min(hi, p.MaxV))
}
