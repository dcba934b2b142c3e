package dispatch

import (
	"fmt"

	"github.com/kilianp07/fleetdispatch/core/audit"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/validator"
)

// SendToMaintenance takes an ACTIVE vehicle off the road.
func (c *Coordinator) SendToMaintenance(actor, vehicleID, reason string) error {
	return c.run("sendToMaintenance", actor, func(o *op) error {
		v, err := o.vehicle(vehicleID)
		if err != nil {
			return err
		}
		prev := v
		if err := validator.Vehicle(v.Status, model.VehicleMaintenance, validator.Context{}); err != nil {
			return err
		}
		v.Status = model.VehicleMaintenance
		v.Speed = 0
		o.tx.PutVehicle(v)
		o.record(audit.Record{Action: model.ActionMaintenanceStarted, Kind: model.KindVehicle, EntityID: v.ID,
			Details: withReason("maintenance started", reason), Previous: prev, Current: v})
		return nil
	})
}

// CompleteMaintenance returns a vehicle in MAINTENANCE or OUT_OF_SERVICE to
// ACTIVE. It is refused while an unresolved critical incident or a running
// trip still references the vehicle.
func (c *Coordinator) CompleteMaintenance(actor, vehicleID string) error {
	return c.run("completeMaintenance", actor, func(o *op) error {
		v, err := o.vehicle(vehicleID)
		if err != nil {
			return err
		}
		fail := func(reason string) error {
			return &model.TransitionError{Kind: model.KindVehicle, From: v.Status.String(), To: model.VehicleActive.String(), Reason: reason}
		}
		if v.Status != model.VehicleMaintenance && v.Status != model.VehicleOutOfService {
			return fail("vehicle is not in maintenance")
		}
		if blocking := o.tx.BlockingIncidents(v.ID); len(blocking) > 0 {
			return fail(fmt.Sprintf("critical incident %s unresolved", blocking[0].ID))
		}
		if running := o.tx.ActiveTrips(v.ID, ""); len(running) > 0 {
			return fail(fmt.Sprintf("trip %s still %s", running[0].ID, running[0].Status))
		}
		if err := validator.Vehicle(v.Status, model.VehicleActive, validator.Context{MaintenanceComplete: true}); err != nil {
			return err
		}
		prev := v
		v.Status = model.VehicleActive
		v.ETAMinutes = 0
		v.StandbyMinutes = 0
		o.tx.PutVehicle(v)
		o.record(audit.Record{Action: model.ActionMaintenanceCompleted, Kind: model.KindVehicle, EntityID: v.ID,
			Details: fmt.Sprintf("vehicle back in service after %s", prev.Status), Previous: prev, Current: v})
		return nil
	})
}

// SetDriverStatus changes the duty status of a driver. BUSY is reserved to
// dispatch and a driver holding a running trip cannot leave it.
func (c *Coordinator) SetDriverStatus(actor, driverID string, status model.DriverStatus) error {
	return c.run("setDriverStatus", actor, func(o *op) error {
		d, err := o.driver(driverID)
		if err != nil {
			return err
		}
		if status < model.DriverOnline || status > model.DriverOnLeave {
			return model.InvalidInput("unknown driver status %d", status)
		}
		prev := d
		ctx := validator.Context{TripTerminal: len(o.tx.ActiveTrips("", d.ID)) == 0}
		if err := validator.Driver(d.Status, status, ctx); err != nil {
			return err
		}
		d.Status = status
		o.tx.PutDriver(d)
		o.record(audit.Record{Action: model.ActionDriverStatusChanged, Kind: model.KindDriver, EntityID: d.ID,
			Details: fmt.Sprintf("%s -> %s", prev.Status, status), Previous: prev, Current: d})
		return nil
	})
}

// UpdateTelemetry applies one simulator step to the current record of the
// vehicle. Vehicles that are not moving are left alone and reported as not
// applied. The step may not change the status, and an ON_MISSION vehicle's
// ETA may not grow. Telemetry is not audited.
func (c *Coordinator) UpdateTelemetry(vehicleID string, step func(model.Vehicle) model.Vehicle) (model.Vehicle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, applied, err := c.updateTelemetry(vehicleID, step)
	operationsTotal.WithLabelValues("updateTelemetry", Outcome(err)).Inc()
	if err != nil {
		c.logger.Warnf("telemetry for vehicle %s rejected: %v", vehicleID, err)
	}
	return v, applied, err
}

func (c *Coordinator) updateTelemetry(vehicleID string, step func(model.Vehicle) model.Vehicle) (model.Vehicle, bool, error) {
	tx := c.store.Begin()
	v, ok := tx.Vehicle(vehicleID)
	if !ok {
		return v, false, &model.NotFoundError{Kind: model.KindVehicle, ID: vehicleID}
	}
	if !v.Moving() {
		return v, false, nil
	}
	next := step(v)
	if next.ID != v.ID || next.Status != v.Status {
		return v, false, &model.TransitionError{Kind: model.KindVehicle, From: v.Status.String(), To: next.Status.String(), Reason: "telemetry cannot change status"}
	}
	if v.Status == model.VehicleOnMission && next.ETAMinutes > v.ETAMinutes {
		return v, false, &model.TransitionError{Kind: model.KindVehicle, From: v.Status.String(), To: next.Status.String(), Reason: "eta only grows on assignment"}
	}
	if err := next.Validate(); err != nil {
		return v, false, model.InvalidInput("%v", err)
	}
	tx.PutVehicle(next)
	if _, err := c.store.Commit(tx); err != nil {
		return v, false, fmt.Errorf("commit telemetry: %w", err)
	}
	return next, true, nil
}
