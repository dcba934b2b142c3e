package dispatch

import (
	"fmt"
	"strings"

	"github.com/kilianp07/fleetdispatch/core/audit"
	"github.com/kilianp07/fleetdispatch/core/events"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/validator"
)

// IncidentInput describes a reported incident. TripID defaults to the
// vehicle's running trip.
type IncidentInput struct {
	VehicleID   string         `json:"vehicle_id"`
	DriverID    string         `json:"driver_id,omitempty"`
	TripID      string         `json:"trip_id,omitempty"`
	Severity    model.Severity `json:"severity"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
}

// ReportIncident records an incident. Reports are never refused for the
// state of the fleet: a CRITICAL one forces the vehicle OUT_OF_SERVICE in
// the same operation, whatever it was doing.
func (c *Coordinator) ReportIncident(actor string, in IncidentInput) (string, error) {
	var id string
	err := c.run("reportIncident", actor, func(o *op) error {
		if in.Severity < model.SeverityLow || in.Severity > model.SeverityCritical {
			return model.InvalidInput("unknown severity %d", in.Severity)
		}
		if strings.TrimSpace(in.Category) == "" {
			return model.InvalidInput("category is required")
		}
		v, err := o.vehicle(in.VehicleID)
		if err != nil {
			return err
		}
		if in.DriverID != "" {
			if _, err := o.driver(in.DriverID); err != nil {
				return err
			}
		}
		if in.TripID != "" {
			if _, err := o.trip(in.TripID); err != nil {
				return err
			}
		} else if running := o.tx.ActiveTrips(v.ID, ""); len(running) > 0 {
			in.TripID = running[0].ID
		}

		inc := model.Incident{
			ID:          c.newID(),
			VehicleID:   v.ID,
			DriverID:    in.DriverID,
			TripID:      in.TripID,
			Severity:    in.Severity,
			Category:    in.Category,
			Description: in.Description,
			Status:      model.IncidentOpen,
			ReportedBy:  o.actor,
			ReportedAt:  o.now,
			UpdatedAt:   o.now,
		}
		o.tx.PutIncident(inc)
		o.record(audit.Record{
			Action:   model.ActionIncidentReported,
			Kind:     model.KindIncident,
			EntityID: inc.ID,
			Details:  fmt.Sprintf("%s %s incident on vehicle %s: %s", inc.Severity, inc.Category, v.ID, inc.Description),
			Severity: inc.Severity,
			Current:  inc,
		})
		id = inc.ID
		if inc.Severity == model.SeverityCritical {
			return c.override(o, v, inc)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// override forces v OUT_OF_SERVICE for the critical incident inc. Running
// trips and their drivers are left as they are.
func (c *Coordinator) override(o *op, v model.Vehicle, inc model.Incident) error {
	prev := v
	details := fmt.Sprintf("critical incident %s: vehicle %s taken out of service", inc.ID, v.ID)
	if v.Status != model.VehicleOutOfService {
		if err := validator.Vehicle(v.Status, model.VehicleOutOfService, validator.Context{SafetyOverride: true}); err != nil {
			return fmt.Errorf("safety override of vehicle %s: %w", v.ID, err)
		}
		v.Status = model.VehicleOutOfService
		v.Speed = 0
		o.tx.PutVehicle(v)
		o.publish(events.SafetyOverrideEvent{VehicleID: v.ID, IncidentID: inc.ID, TripID: inc.TripID, Previous: prev.Status})
	} else {
		details = fmt.Sprintf("critical incident %s: vehicle %s already out of service", inc.ID, v.ID)
	}
	if inc.TripID != "" {
		details += ", trip " + inc.TripID + " in flight"
	}
	o.record(audit.Record{
		Action:   model.ActionCriticalAlert,
		Kind:     model.KindVehicle,
		EntityID: v.ID,
		Details:  details,
		Severity: model.SeverityCritical,
		Previous: prev,
		Current:  v,
	})
	return nil
}

// AcknowledgeIncident marks an OPEN incident as seen.
func (c *Coordinator) AcknowledgeIncident(actor, incidentID string) error {
	return c.run("acknowledgeIncident", actor, func(o *op) error {
		inc, err := o.incident(incidentID)
		if err != nil {
			return err
		}
		prev := inc
		if err := validator.Incident(inc.Status, model.IncidentAcknowledged); err != nil {
			return err
		}
		inc.Status = model.IncidentAcknowledged
		inc.UpdatedAt = o.now
		o.tx.PutIncident(inc)
		o.record(audit.Record{Action: model.ActionIncidentAcknowledged, Kind: model.KindIncident, EntityID: inc.ID,
			Details: "incident acknowledged", Severity: inc.Severity, Previous: prev, Current: inc})
		return nil
	})
}

// AssignIncident hands the incident to an agent and moves it to
// INVESTIGATING. An incident already under investigation is reassigned.
func (c *Coordinator) AssignIncident(actor, incidentID, agentID string) error {
	return c.run("assignIncident", actor, func(o *op) error {
		if agentID == "" {
			return model.InvalidInput("agent id is required")
		}
		inc, err := o.incident(incidentID)
		if err != nil {
			return err
		}
		prev := inc
		if inc.Status != model.IncidentInvestigating {
			if err := validator.Incident(inc.Status, model.IncidentInvestigating); err != nil {
				return err
			}
		}
		inc.Status = model.IncidentInvestigating
		inc.AssignedToID = agentID
		inc.UpdatedAt = o.now
		o.tx.PutIncident(inc)
		details := "incident assigned to " + agentID
		if prev.AssignedToID != "" && prev.AssignedToID != agentID {
			details = fmt.Sprintf("incident reassigned from %s to %s", prev.AssignedToID, agentID)
		}
		o.record(audit.Record{Action: model.ActionIncidentAssigned, Kind: model.KindIncident, EntityID: inc.ID,
			Details: details, Severity: inc.Severity, Previous: prev, Current: inc})
		return nil
	})
}

// ResolveIncident closes the incident. The vehicle stays OUT_OF_SERVICE
// until maintenance is completed.
func (c *Coordinator) ResolveIncident(actor, incidentID, resolution string) error {
	return c.run("resolveIncident", actor, func(o *op) error {
		inc, err := o.incident(incidentID)
		if err != nil {
			return err
		}
		prev := inc
		if err := validator.Incident(inc.Status, model.IncidentResolved); err != nil {
			return err
		}
		inc.Status = model.IncidentResolved
		inc.Resolution = resolution
		inc.UpdatedAt = o.now
		o.tx.PutIncident(inc)
		o.record(audit.Record{Action: model.ActionIncidentResolved, Kind: model.KindIncident, EntityID: inc.ID,
			Details: withReason("incident resolved", resolution), Severity: inc.Severity, Previous: prev, Current: inc})
		return nil
	})
}
