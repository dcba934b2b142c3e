package model

import "time"

// Severity grades incidents and audit entries.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

func (s Severity) String() string { return enumName(s, severityNames) }

// ParseSeverity converts the text form back to a Severity.
func ParseSeverity(s string) (Severity, error) {
	return parseEnum[Severity]("severity", s, severityNames)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// IncidentStatus is the handling state of an incident.
type IncidentStatus int

const (
	IncidentOpen IncidentStatus = iota + 1
	IncidentAcknowledged
	IncidentInvestigating
	IncidentResolved
)

var incidentStatusNames = []string{"OPEN", "ACKNOWLEDGED", "INVESTIGATING", "RESOLVED"}

func (s IncidentStatus) String() string { return enumName(s, incidentStatusNames) }

// ParseIncidentStatus converts the text form back to an IncidentStatus.
func ParseIncidentStatus(s string) (IncidentStatus, error) {
	return parseEnum[IncidentStatus]("incident status", s, incidentStatusNames)
}

func (s IncidentStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *IncidentStatus) UnmarshalText(b []byte) error {
	v, err := ParseIncidentStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Incident is a reported safety or operational event.
type Incident struct {
	ID           string         `json:"id"`
	VehicleID    string         `json:"vehicle_id"`
	DriverID     string         `json:"driver_id,omitempty"`
	TripID       string         `json:"trip_id,omitempty"`
	Severity     Severity       `json:"severity"`
	Category     string         `json:"category"`
	Description  string         `json:"description"`
	Status       IncidentStatus `json:"status"`
	AssignedToID string         `json:"assigned_to_id,omitempty"`
	Resolution   string         `json:"resolution,omitempty"`
	ReportedBy   string         `json:"reported_by"`
	ReportedAt   time.Time      `json:"reported_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Blocking reports whether the incident keeps its vehicle locked out.
func (i Incident) Blocking() bool {
	return i.Severity == SeverityCritical && i.Status != IncidentResolved
}
