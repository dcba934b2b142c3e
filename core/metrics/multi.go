package metrics

import (
	"errors"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// MultiSink fans events out to multiple sinks. Optional recorder interfaces
// are forwarded only to sinks implementing them. Every sink is tried; the
// errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordOperation forwards the operation to all sinks.
func (m *MultiSink) RecordOperation(ev OperationEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordOperation(ev))
	}
	return errors.Join(errs...)
}

// RecordAuditEntries forwards ledger entries.
func (m *MultiSink) RecordAuditEntries(entries []model.AuditEntry) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(AuditRecorder); ok {
			errs = append(errs, rec.RecordAuditEntries(entries))
		}
	}
	return errors.Join(errs...)
}

// RecordVehicleState forwards vehicle snapshots.
func (m *MultiSink) RecordVehicleState(ev VehicleStateEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(VehicleStateRecorder); ok {
			errs = append(errs, rec.RecordVehicleState(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordTelemetryTick forwards tick summaries.
func (m *MultiSink) RecordTelemetryTick(ev TelemetryTickEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(TelemetryRecorder); ok {
			errs = append(errs, rec.RecordTelemetryTick(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordFleetStatus forwards status counts.
func (m *MultiSink) RecordFleetStatus(ev FleetStatusEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(FleetStatusRecorder); ok {
			errs = append(errs, rec.RecordFleetStatus(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordSafetyOverride forwards safety overrides.
func (m *MultiSink) RecordSafetyOverride(ev SafetyOverrideEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(SafetyOverrideRecorder); ok {
			errs = append(errs, rec.RecordSafetyOverride(ev))
		}
	}
	return errors.Join(errs...)
}
