package telemetry

import (
	"math"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// Step advances the telemetry of one vehicle by one tick. It is pure: the
// same vehicle, generator and config always give the same result. Vehicles
// that are not moving come back untouched and the status never changes.
func Step(v model.Vehicle, rng RNG, c Config) (model.Vehicle, RNG) {
	switch v.Status {
	case model.VehicleActive:
		var roll float64
		roll, rng = rng.Float64()
		if roll < c.Stationary() {
			v.Speed = 0
			v.StandbyMinutes++
		} else {
			v.Speed, rng = rng.Range(c.ActiveSpeedMin, c.ActiveSpeedMax)
			v.StandbyMinutes = 0
		}
		v.Position, rng = perturb(v.Position, rng, c.MaxPositionDelta)
	case model.VehicleOnMission:
		v.Speed, rng = rng.Range(c.MissionSpeedMin, c.MissionSpeedMax)
		v.StandbyMinutes = 0
		v.Position, rng = perturb(v.Position, rng, c.MaxPositionDelta)
		v.ETAMinutes = math.Max(v.ETAMinutes-c.ETAStepMinutes, 0)
	}
	return v, rng
}

func perturb(p model.Position, rng RNG, delta float64) (model.Position, RNG) {
	var dx, dy float64
	dx, rng = rng.Range(-delta, delta)
	dy, rng = rng.Range(-delta, delta)
	return model.Position{X: p.X + dx, Y: p.Y + dy}.Clamp(), rng
}
