package engine

import (
	"math"

	"github.com/mattpat48/se4iot-se4as/pkg/config"
	"github.com/mattpat48/se4iot-se4as/pkg/fleet"
)

// emergencyJitter is the half-width of the noise added to forced values
const emergencyJitter = 2.0

// Overlay returns the value to emit for an instance. An active emergency at the
// instance's location that names its type replaces the simulated value with the
// target plus jitter, floored at min_v. There is no ceiling: forced values may
// exceed max_v. CurrentValue is never touched.
func Overlay(inst *fleet.Instance, em config.EmergencyState, r fleet.Rand) (float64, bool) {
	target, ok := em.Effect(inst.Location, inst.Type)
	if !ok {
		return inst.CurrentValue, false
	}
	v := target + fleet.Uniform(r, -emergencyJitter, emergencyJitter)
	return math.Max(inst.MinV, v), true
}
