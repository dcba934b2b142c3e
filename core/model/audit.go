package model

import (
	"encoding/json"
	"time"
)

// EntityKind names the record type an operation touches.
type EntityKind int

const (
	KindVehicle EntityKind = iota + 1
	KindDriver
	KindTrip
	KindIncident
	KindRequest
)

var entityKindNames = []string{"VEHICLE", "DRIVER", "TRIP", "INCIDENT", "REQUEST"}

func (k EntityKind) String() string { return enumName(k, entityKindNames) }

// ParseEntityKind converts the text form back to an EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	return parseEnum[EntityKind]("entity kind", s, entityKindNames)
}

func (k EntityKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *EntityKind) UnmarshalText(b []byte) error {
	v, err := ParseEntityKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// AuditAction enumerates every state-changing operation.
type AuditAction int

const (
	ActionDispatchCreated AuditAction = iota + 1
	ActionTripDispatched
	ActionTripAdvanced
	ActionTripCompleted
	ActionTripCancelled
	ActionTripRescheduled
	ActionTripUpdated
	ActionIncidentReported
	ActionCriticalAlert
	ActionIncidentAcknowledged
	ActionIncidentAssigned
	ActionIncidentResolved
	ActionRequestSubmitted
	ActionRequestApproved
	ActionRequestRejected
	ActionMaintenanceStarted
	ActionMaintenanceCompleted
	ActionDriverStatusChanged
)

var auditActionNames = []string{
	"DISPATCH_CREATED", "TRIP_DISPATCHED", "TRIP_ADVANCED", "TRIP_COMPLETED",
	"TRIP_CANCELLED", "TRIP_RESCHEDULED", "TRIP_UPDATED", "INCIDENT_REPORTED",
	"CRITICAL_ALERT", "INCIDENT_ACKNOWLEDGED", "INCIDENT_ASSIGNED",
	"INCIDENT_RESOLVED", "REQUEST_SUBMITTED", "REQUEST_APPROVED",
	"REQUEST_REJECTED", "MAINTENANCE_STARTED", "MAINTENANCE_COMPLETED",
	"DRIVER_STATUS_CHANGED",
}

func (a AuditAction) String() string { return enumName(a, auditActionNames) }

// ParseAuditAction converts the text form back to an AuditAction.
func ParseAuditAction(s string) (AuditAction, error) {
	return parseEnum[AuditAction]("audit action", s, auditActionNames)
}

func (a AuditAction) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AuditAction) UnmarshalText(b []byte) error {
	v, err := ParseAuditAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// AuditEntry is one immutable record of the audit ledger.
//
// Hash covers every other field plus PrevHash, chaining each entry to the
// one before it.
type AuditEntry struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Timestamp  time.Time       `json:"timestamp"`
	ActorID    string          `json:"actor_id"`
	Action     AuditAction     `json:"action"`
	EntityKind EntityKind      `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Details    string          `json:"details"`
	Severity   Severity        `json:"severity,omitempty"`
	Previous   json.RawMessage `json:"previous,omitempty"`
	Current    json.RawMessage `json:"current,omitempty"`
	PrevHash   string          `json:"prev_hash"`
	Hash       string          `json:"hash"`
}

// SeverityName renders the severity, empty when unset.
func (e AuditEntry) SeverityName() string {
	if e.Severity == 0 {
		return ""
	}
	return e.Severity.String()
}
