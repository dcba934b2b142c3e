package metrics

import (
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// Operation outcomes used as metric labels.
const (
	OutcomeOK              = "ok"
	OutcomeNotFound        = "not_found"
	OutcomeIllegal         = "illegal_transition"
	OutcomeUnavailable     = "unavailable"
	OutcomeAlreadyResolved = "already_resolved"
	OutcomeInvalid         = "invalid_input"
	OutcomeError           = "error"
)

// OperationEvent describes one coordinator command.
type OperationEvent struct {
	Operation string
	ActorID   string
	Outcome   string
	Entries   int
	Duration  time.Duration
	Time      time.Time
}

// MetricsSink records coordinator operations for observability purposes.
type MetricsSink interface {
	RecordOperation(ev OperationEvent) error
}

// AuditRecorder records appended ledger entries.
type AuditRecorder interface {
	RecordAuditEntries(entries []model.AuditEntry) error
}

// VehicleStateEvent is a snapshot of a vehicle.
type VehicleStateEvent struct {
	Vehicle   model.Vehicle
	Context   string
	Component string
	Time      time.Time
}

// VehicleStateRecorder records vehicle state snapshots.
type VehicleStateRecorder interface {
	RecordVehicleState(ev VehicleStateEvent) error
}

// TelemetryTickEvent summarises one simulator tick.
type TelemetryTickEvent struct {
	Tick     uint64
	Vehicles int
	Duration time.Duration
	Time     time.Time
}

// TelemetryRecorder records simulator ticks.
type TelemetryRecorder interface {
	RecordTelemetryTick(ev TelemetryTickEvent) error
}

// FleetStatusEvent counts records per status after a commit.
type FleetStatusEvent struct {
	Vehicles        map[model.VehicleStatus]int
	Drivers         map[model.DriverStatus]int
	ActiveTrips     int
	PendingRequests int
	OpenIncidents   int
	Time            time.Time
}

// FleetStatusRecorder records fleet status counts.
type FleetStatusRecorder interface {
	RecordFleetStatus(ev FleetStatusEvent) error
}

// SafetyOverrideEvent reports a vehicle locked out by a critical incident.
type SafetyOverrideEvent struct {
	VehicleID  string
	IncidentID string
	TripID     string
	Time       time.Time
}

// SafetyOverrideRecorder records safety overrides.
type SafetyOverrideRecorder interface {
	RecordSafetyOverride(ev SafetyOverrideEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordOperation(OperationEvent) error           { return nil }
func (NopSink) RecordAuditEntries([]model.AuditEntry) error    { return nil }
func (NopSink) RecordVehicleState(VehicleStateEvent) error     { return nil }
func (NopSink) RecordTelemetryTick(TelemetryTickEvent) error   { return nil }
func (NopSink) RecordFleetStatus(FleetStatusEvent) error       { return nil }
func (NopSink) RecordSafetyOverride(SafetyOverrideEvent) error { return nil }
