package events

import (
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// TelemetryEvent carries the vehicles updated by one simulator tick.
type TelemetryEvent struct {
	Tick     uint64
	At       time.Time
	Vehicles []model.Vehicle
}
