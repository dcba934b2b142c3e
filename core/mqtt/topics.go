package mqtt

import "strings"

// DefaultPrefix is the root of every fleet topic.
const DefaultPrefix = "fleet"

// Topics builds the fleet topic tree under a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Telemetry is where the state of one vehicle is published, retained.
func (t Topics) Telemetry(vehicleID string) string {
	return t.root() + "/vehicle/" + vehicleID + "/telemetry"
}

// Audit is where ledger entries of an action are published.
func (t Topics) Audit(action string) string {
	return t.root() + "/audit/" + strings.ToLower(action)
}

// SafetyAlert receives safety overrides.
func (t Topics) SafetyAlert() string { return t.root() + "/alerts/safety" }

// IncidentReports matches incident reports sent by vehicles.
func (t Topics) IncidentReports() string { return t.root() + "/vehicle/+/incident" }

// VehicleFromTopic extracts the vehicle id of a per-vehicle topic.
func (t Topics) VehicleFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.root()+"/vehicle/")
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, "/")
	return id, ok && id != ""
}
