package events

import "github.com/kilianp07/fleetdispatch/core/model"

// CommitEvent is published after an operation changed the store and the
// ledger. Entries are in ledger order.
type CommitEvent struct {
	Operation string
	ActorID   string
	Version   uint64
	Entries   []model.AuditEntry
}

// SafetyOverrideEvent is published when a critical incident forces a
// vehicle out of service. TripID is set when a trip was in flight.
type SafetyOverrideEvent struct {
	VehicleID  string
	IncidentID string
	TripID     string
	Previous   model.VehicleStatus
}
