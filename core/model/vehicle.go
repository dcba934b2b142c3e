package model

import (
	"fmt"
	"math"
)

// VehicleStatus is the operational state of a vehicle.
type VehicleStatus int

const (
	VehicleActive VehicleStatus = iota + 1
	VehicleOnMission
	VehicleMaintenance
	VehicleOutOfService
)

var vehicleStatusNames = []string{"ACTIVE", "ON_MISSION", "MAINTENANCE", "OUT_OF_SERVICE"}

// VehicleStatuses lists every vehicle status in declaration order.
var VehicleStatuses = []VehicleStatus{VehicleActive, VehicleOnMission, VehicleMaintenance, VehicleOutOfService}

func (s VehicleStatus) String() string { return enumName(s, vehicleStatusNames) }

// ParseVehicleStatus converts the text form back to a VehicleStatus.
func ParseVehicleStatus(s string) (VehicleStatus, error) {
	return parseEnum[VehicleStatus]("vehicle status", s, vehicleStatusNames)
}

func (s VehicleStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *VehicleStatus) UnmarshalText(b []byte) error {
	v, err := ParseVehicleStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Bounds of the simulated operating area on both axes.
const (
	GridMin = 0.0
	GridMax = 100.0
)

// Position is a point inside the operating area.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Clamp returns p with both axes forced into [GridMin, GridMax].
func (p Position) Clamp() Position {
	return Position{X: clamp(p.X, GridMin, GridMax), Y: clamp(p.Y, GridMin, GridMax)}
}

// Distance is the euclidean distance between two positions.
func (p Position) Distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Vehicle is a fleet vehicle together with its latest simulated telemetry.
type Vehicle struct {
	ID       string        `json:"id" yaml:"id"`
	Label    string        `json:"label,omitempty" yaml:"label"`
	Status   VehicleStatus `json:"status" yaml:"status"`
	Position Position      `json:"position" yaml:"position"`
	Speed    float64       `json:"speed" yaml:"speed"`         // km/h, never negative
	Fuel     float64       `json:"fuel_level" yaml:"fuel"`     // percentage 0-100
	DriverID string        `json:"driver_id,omitempty" yaml:"driver_id"`
	// StandbyMinutes accumulates the time spent stationary while ACTIVE.
	StandbyMinutes float64 `json:"standby_minutes" yaml:"standby_minutes"`
	// ETAMinutes is the remaining time of the current mission. It only
	// increases when a new trip is assigned.
	ETAMinutes float64 `json:"eta_minutes" yaml:"eta_minutes"`
}

// Validate checks the static bounds of the record.
func (v Vehicle) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id is required")
	}
	if v.Status < VehicleActive || v.Status > VehicleOutOfService {
		return fmt.Errorf("vehicle %s: invalid status %d", v.ID, v.Status)
	}
	if v.Speed < 0 {
		return fmt.Errorf("vehicle %s: negative speed", v.ID)
	}
	if v.Fuel < 0 || v.Fuel > 100 {
		return fmt.Errorf("vehicle %s: fuel level %.1f out of range", v.ID, v.Fuel)
	}
	if v.Position != v.Position.Clamp() {
		return fmt.Errorf("vehicle %s: position out of bounds", v.ID)
	}
	return nil
}

// Available reports whether the vehicle can accept a new assignment.
func (v Vehicle) Available() bool { return v.Status == VehicleActive }

// Moving reports whether the telemetry step should touch this vehicle.
func (v Vehicle) Moving() bool {
	return v.Status == VehicleActive || v.Status == VehicleOnMission
}
