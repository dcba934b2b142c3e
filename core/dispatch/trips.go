package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/kilianp07/fleetdispatch/core/audit"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/validator"
)

// TripInput describes a trip to create. VehicleID and DriverID are either
// both set, which dispatches the trip immediately, or both empty.
type TripInput struct {
	Passenger            model.Passenger `json:"passenger"`
	Pickup               model.Location  `json:"pickup"`
	Dropoff              model.Location  `json:"dropoff"`
	Priority             model.Priority  `json:"priority"`
	EstimatedDurationMin float64         `json:"estimated_duration_min"`
	Notes                string          `json:"notes,omitempty"`
	VehicleID            string          `json:"vehicle_id,omitempty"`
	DriverID             string          `json:"driver_id,omitempty"`
}

// TripPatch lists the editable trip fields. Nil fields are left untouched.
type TripPatch struct {
	Passenger            *model.Passenger  `json:"passenger,omitempty"`
	Pickup               *model.Location   `json:"pickup,omitempty"`
	Dropoff              *model.Location   `json:"dropoff,omitempty"`
	Priority             *model.Priority   `json:"priority,omitempty"`
	EstimatedDurationMin *float64          `json:"estimated_duration_min,omitempty"`
	Notes                *string           `json:"notes,omitempty"`
	Status               *model.TripStatus `json:"status,omitempty"`
}

func checkRoute(pickup, dropoff model.Location) error {
	for _, l := range []model.Location{pickup, dropoff} {
		if l.Position != l.Position.Clamp() {
			return model.InvalidInput("position %.1f,%.1f outside the operating area", l.Position.X, l.Position.Y)
		}
	}
	return nil
}

func checkRide(p model.Passenger, pickup, dropoff model.Location, prio *model.Priority, duration float64) error {
	if strings.TrimSpace(p.Name) == "" {
		return model.InvalidInput("passenger name is required")
	}
	if *prio == 0 {
		*prio = model.PriorityStandard
	}
	if *prio < model.PriorityStandard || *prio > model.PriorityVIP {
		return model.InvalidInput("unknown priority %d", *prio)
	}
	if duration < 0 {
		return model.InvalidInput("negative estimated duration")
	}
	return checkRoute(pickup, dropoff)
}

// CreateTrip records a new trip. With a vehicle and a driver the trip is
// dispatched at once and both resources go through admission control.
func (c *Coordinator) CreateTrip(actor string, in TripInput) (string, error) {
	var id string
	err := c.run("createTrip", actor, func(o *op) error {
		if err := checkRide(in.Passenger, in.Pickup, in.Dropoff, &in.Priority, in.EstimatedDurationMin); err != nil {
			return err
		}
		if (in.VehicleID == "") != (in.DriverID == "") {
			return model.InvalidInput("vehicle and driver are assigned together")
		}
		t := model.Trip{
			ID:                   c.newID(),
			Passenger:            in.Passenger,
			Pickup:               in.Pickup,
			Dropoff:              in.Dropoff,
			Priority:             in.Priority,
			Status:               model.TripScheduled,
			EstimatedDurationMin: in.EstimatedDurationMin,
			Notes:                in.Notes,
			CreatedAt:            o.now,
			UpdatedAt:            o.now,
		}
		details := fmt.Sprintf("%s trip for %s scheduled", t.Priority, t.Passenger.Name)
		if in.VehicleID != "" {
			if err := c.assign(o, &t, in.VehicleID, in.DriverID); err != nil {
				return err
			}
			details = fmt.Sprintf("%s trip for %s dispatched to vehicle %s with driver %s", t.Priority, t.Passenger.Name, t.VehicleID, t.DriverID)
		}
		o.tx.PutTrip(t)
		o.record(audit.Record{Action: model.ActionDispatchCreated, Kind: model.KindTrip, EntityID: t.ID, Details: details, Current: t})
		id = t.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// DispatchTrip assigns a vehicle and a driver to a SCHEDULED trip.
func (c *Coordinator) DispatchTrip(actor, tripID, vehicleID, driverID string) error {
	return c.run("dispatchTrip", actor, func(o *op) error {
		if vehicleID == "" || driverID == "" {
			return model.InvalidInput("vehicle and driver are required")
		}
		t, err := o.trip(tripID)
		if err != nil {
			return err
		}
		prev := t
		if err := c.assign(o, &t, vehicleID, driverID); err != nil {
			return err
		}
		o.tx.PutTrip(t)
		o.record(audit.Record{
			Action:   model.ActionTripDispatched,
			Kind:     model.KindTrip,
			EntityID: t.ID,
			Details:  fmt.Sprintf("vehicle %s and driver %s assigned", vehicleID, driverID),
			Previous: prev,
			Current:  t,
		})
		return nil
	})
}

// AutoDispatch asks the recommender for a pair and dispatches the trip with
// it. The suggestion goes through the same admission control as a manual
// dispatch.
func (c *Coordinator) AutoDispatch(ctx context.Context, actor, tripID string) (Suggestion, error) {
	snap := c.Snapshot()
	t, ok := snap.Trip(tripID)
	if !ok {
		return Suggestion{}, &model.NotFoundError{Kind: model.KindTrip, ID: tripID}
	}
	if err := validator.Trip(t.Status, model.TripDispatched); err != nil {
		return Suggestion{}, err
	}
	s, err := c.recommender.Recommend(ctx, t, snap)
	if err != nil {
		return Suggestion{}, fmt.Errorf("recommend trip %s: %w", tripID, err)
	}
	if err := c.DispatchTrip(actor, tripID, s.VehicleID, s.DriverID); err != nil {
		return s, err
	}
	return s, nil
}

// assign applies admission control and moves t, its vehicle and its driver
// to their dispatched states.
func (c *Coordinator) assign(o *op, t *model.Trip, vehicleID, driverID string) error {
	v, err := o.vehicle(vehicleID)
	if err != nil {
		return err
	}
	d, err := o.driver(driverID)
	if err != nil {
		return err
	}
	if err := validator.Trip(t.Status, model.TripDispatched); err != nil {
		return err
	}
	if !v.Available() || len(o.tx.ActiveTrips(v.ID, "")) > 0 {
		return &model.UnavailableError{Kind: model.KindVehicle, ID: v.ID, Status: v.Status.String()}
	}
	if v.Fuel < c.cfg.MinFuelLevel {
		return &model.UnavailableError{Kind: model.KindVehicle, ID: v.ID, Status: fmt.Sprintf("fuel %.0f%% below %.0f%%", v.Fuel, c.cfg.MinFuelLevel)}
	}
	if !d.Available() || len(o.tx.ActiveTrips("", d.ID)) > 0 {
		return &model.UnavailableError{Kind: model.KindDriver, ID: d.ID, Status: d.Status.String()}
	}
	ctx := validator.Context{Assignment: true}
	if err := validator.Vehicle(v.Status, model.VehicleOnMission, ctx); err != nil {
		return err
	}
	if err := validator.Driver(d.Status, model.DriverBusy, ctx); err != nil {
		return err
	}

	eta := t.EstimatedDurationMin
	if eta <= 0 {
		eta = c.cfg.DefaultETAMinutes
	}
	v.Status = model.VehicleOnMission
	v.ETAMinutes = eta
	v.StandbyMinutes = 0
	v.DriverID = d.ID
	d.Status = model.DriverBusy
	d.VehicleID = v.ID
	t.Status = model.TripDispatched
	t.VehicleID = v.ID
	t.DriverID = d.ID
	t.UpdatedAt = o.now
	o.tx.PutVehicle(v)
	o.tx.PutDriver(d)
	return nil
}

// AdvanceTrip moves the trip one step along the forward sequence and returns
// the new status. Reaching COMPLETED releases the resources.
func (c *Coordinator) AdvanceTrip(actor, tripID string) (model.TripStatus, error) {
	var next model.TripStatus
	err := c.run("advanceTrip", actor, func(o *op) error {
		t, err := o.trip(tripID)
		if err != nil {
			return err
		}
		if next, err = validator.NextTripStatus(t.Status); err != nil {
			return err
		}
		prev := t
		if next == model.TripCompleted {
			notes, err := c.close(o, &t, model.TripCompleted)
			if err != nil {
				return err
			}
			o.record(audit.Record{Action: model.ActionTripCompleted, Kind: model.KindTrip, EntityID: t.ID,
				Details: joinDetails("trip completed", notes), Previous: prev, Current: t})
			return nil
		}
		if err := validator.Trip(t.Status, next); err != nil {
			return err
		}
		t.Status = next
		t.UpdatedAt = o.now
		o.tx.PutTrip(t)
		o.record(audit.Record{Action: model.ActionTripAdvanced, Kind: model.KindTrip, EntityID: t.ID,
			Details: fmt.Sprintf("%s -> %s", prev.Status, next), Previous: prev, Current: t})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// CompleteTrip closes the trip with optional passenger feedback.
func (c *Coordinator) CompleteTrip(actor, tripID string, fb *model.Feedback) error {
	return c.run("completeTrip", actor, func(o *op) error {
		if fb != nil {
			if err := fb.Validate(); err != nil {
				return model.InvalidInput("%v", err)
			}
		}
		t, err := o.trip(tripID)
		if err != nil {
			return err
		}
		prev := t
		notes, err := c.close(o, &t, model.TripCompleted)
		if err != nil {
			return err
		}
		details := "trip completed"
		if fb != nil {
			t.Feedback = fb
			o.tx.PutTrip(t)
			details += ", feedback " + fb.Summary()
		}
		o.record(audit.Record{Action: model.ActionTripCompleted, Kind: model.KindTrip, EntityID: t.ID,
			Details: joinDetails(details, notes), Previous: prev, Current: t})
		return nil
	})
}

// CancelTrip cancels a trip that has not finished yet.
func (c *Coordinator) CancelTrip(actor, tripID, reason string) error {
	return c.run("cancelTrip", actor, func(o *op) error {
		t, err := o.trip(tripID)
		if err != nil {
			return err
		}
		prev := t
		notes, err := c.close(o, &t, model.TripCancelled)
		if err != nil {
			return err
		}
		o.record(audit.Record{Action: model.ActionTripCancelled, Kind: model.KindTrip, EntityID: t.ID,
			Details: joinDetails(withReason("trip cancelled", reason), notes), Previous: prev, Current: t})
		return nil
	})
}

// RescheduleTrip retires a SCHEDULED or DISPATCHED trip as RESCHEDULED.
func (c *Coordinator) RescheduleTrip(actor, tripID, reason string) error {
	return c.run("rescheduleTrip", actor, func(o *op) error {
		t, err := o.trip(tripID)
		if err != nil {
			return err
		}
		prev := t
		notes, err := c.close(o, &t, model.TripRescheduled)
		if err != nil {
			return err
		}
		o.record(audit.Record{Action: model.ActionTripRescheduled, Kind: model.KindTrip, EntityID: t.ID,
			Details: joinDetails(withReason("trip rescheduled", reason), notes), Previous: prev, Current: t})
		return nil
	})
}

// EditTrip patches a non-terminal trip. A status in the patch follows the
// same rules as the dedicated commands, except that assignment only happens
// through DispatchTrip.
func (c *Coordinator) EditTrip(actor, tripID string, p TripPatch) (model.Trip, error) {
	var out model.Trip
	err := c.run("editTrip", actor, func(o *op) error {
		t, err := o.trip(tripID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return &model.TransitionError{Kind: model.KindTrip, From: t.Status.String(), To: t.Status.String(), Reason: "trip is terminal"}
		}
		prev := t
		var changed []string
		if p.Passenger != nil {
			t.Passenger = *p.Passenger
			changed = append(changed, "passenger")
		}
		if p.Pickup != nil {
			t.Pickup = *p.Pickup
			changed = append(changed, "pickup")
		}
		if p.Dropoff != nil {
			t.Dropoff = *p.Dropoff
			changed = append(changed, "dropoff")
		}
		if p.Priority != nil {
			t.Priority = *p.Priority
			changed = append(changed, "priority")
		}
		if p.EstimatedDurationMin != nil {
			t.EstimatedDurationMin = *p.EstimatedDurationMin
			changed = append(changed, "estimated duration")
		}
		if p.Notes != nil {
			t.Notes = *p.Notes
			changed = append(changed, "notes")
		}
		if err := checkRide(t.Passenger, t.Pickup, t.Dropoff, &t.Priority, t.EstimatedDurationMin); err != nil {
			return err
		}
		t.UpdatedAt = o.now

		var notes []string
		if p.Status != nil && *p.Status != t.Status {
			to := *p.Status
			if to == model.TripDispatched {
				return &model.TransitionError{Kind: model.KindTrip, From: t.Status.String(), To: to.String(), Reason: "assignment goes through dispatch"}
			}
			switch {
			case to.Terminal():
				if notes, err = c.close(o, &t, to); err != nil {
					return err
				}
			default:
				if err := validator.Trip(t.Status, to); err != nil {
					return err
				}
				t.Status = to
				o.tx.PutTrip(t)
			}
			changed = append(changed, fmt.Sprintf("status %s -> %s", prev.Status, to))
		} else {
			o.tx.PutTrip(t)
		}
		if len(changed) == 0 {
			return model.InvalidInput("empty patch")
		}
		o.record(audit.Record{Action: model.ActionTripUpdated, Kind: model.KindTrip, EntityID: t.ID,
			Details: joinDetails("updated "+strings.Join(changed, ", "), notes), Previous: prev, Current: t})
		out = t
		return nil
	})
	return out, err
}

// close moves t to a terminal status and releases its vehicle and driver
// when the trip held them. It returns notes for the audit details.
func (c *Coordinator) close(o *op, t *model.Trip, to model.TripStatus) ([]string, error) {
	if err := validator.Trip(t.Status, to); err != nil {
		return nil, err
	}
	held := t.Status.Active()
	t.Status = to
	t.UpdatedAt = o.now
	t.ClosedAt = o.now
	o.tx.PutTrip(*t)
	if !held {
		return nil, nil
	}
	return c.release(o, *t)
}

// release frees the resources of a terminal trip. A vehicle that left
// ON_MISSION meanwhile (safety override or maintenance) keeps its status.
func (c *Coordinator) release(o *op, t model.Trip) ([]string, error) {
	var notes []string
	done := validator.Context{TripTerminal: true}
	if v, ok := o.tx.Vehicle(t.VehicleID); ok && len(o.tx.ActiveTrips(v.ID, "")) == 0 {
		v.ETAMinutes = 0
		if v.Status == model.VehicleOnMission {
			if err := validator.Vehicle(v.Status, model.VehicleActive, done); err != nil {
				return nil, err
			}
			v.Status = model.VehicleActive
			v.StandbyMinutes = 0
		} else {
			notes = append(notes, fmt.Sprintf("vehicle %s stays %s", v.ID, v.Status))
		}
		o.tx.PutVehicle(v)
	}
	if d, ok := o.tx.Driver(t.DriverID); ok && d.Status == model.DriverBusy && len(o.tx.ActiveTrips("", d.ID)) == 0 {
		if err := validator.Driver(d.Status, model.DriverOnline, done); err != nil {
			return nil, err
		}
		d.Status = model.DriverOnline
		o.tx.PutDriver(d)
	}
	return notes, nil
}

func withReason(s, reason string) string {
	if reason == "" {
		return s
	}
	return s + ": " + reason
}

func joinDetails(s string, notes []string) string {
	if len(notes) == 0 {
		return s
	}
	return s + "; " + strings.Join(notes, "; ")
}
