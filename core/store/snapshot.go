package store

import (
	"errors"
	"fmt"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// Snapshot is an immutable view of every record at one commit.
type Snapshot struct {
	version   uint64
	vehicles  map[string]model.Vehicle
	drivers   map[string]model.Driver
	trips     map[string]model.Trip
	incidents map[string]model.Incident
	requests  map[string]model.IncomingRequest
}

// Version increases by one on every commit that changed something.
func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) Vehicle(id string) (model.Vehicle, bool) {
	v, ok := s.vehicles[id]
	return v, ok
}

func (s *Snapshot) Driver(id string) (model.Driver, bool) {
	d, ok := s.drivers[id]
	return d, ok
}

func (s *Snapshot) Trip(id string) (model.Trip, bool) {
	t, ok := s.trips[id]
	return t, ok
}

func (s *Snapshot) Incident(id string) (model.Incident, bool) {
	i, ok := s.incidents[id]
	return i, ok
}

func (s *Snapshot) Request(id string) (model.IncomingRequest, bool) {
	r, ok := s.requests[id]
	return r, ok
}

// VehicleFilter selects vehicles. Zero fields match everything.
type VehicleFilter struct {
	Status   model.VehicleStatus
	DriverID string
}

func (f VehicleFilter) match(v model.Vehicle) bool {
	if f.Status != 0 && v.Status != f.Status {
		return false
	}
	if f.DriverID != "" && v.DriverID != f.DriverID {
		return false
	}
	return true
}

// Vehicles lists matching vehicles ordered by id.
func (s *Snapshot) Vehicles(f VehicleFilter) []model.Vehicle {
	return sortedValues(s.vehicles, f.match)
}

// DriverFilter selects drivers.
type DriverFilter struct {
	Status model.DriverStatus
}

// Drivers lists matching drivers ordered by id.
func (s *Snapshot) Drivers(f DriverFilter) []model.Driver {
	return sortedValues(s.drivers, func(d model.Driver) bool {
		return f.Status == 0 || d.Status == f.Status
	})
}

// TripFilter selects trips.
type TripFilter struct {
	Status    model.TripStatus
	Priority  model.Priority
	VehicleID string
	DriverID  string
	// ActiveOnly keeps trips holding a vehicle (DISPATCHED to IN_PROGRESS).
	ActiveOnly bool
}

func (f TripFilter) match(t model.Trip) bool {
	switch {
	case f.Status != 0 && t.Status != f.Status:
		return false
	case f.Priority != 0 && t.Priority != f.Priority:
		return false
	case f.VehicleID != "" && t.VehicleID != f.VehicleID:
		return false
	case f.DriverID != "" && t.DriverID != f.DriverID:
		return false
	case f.ActiveOnly && !t.Status.Active():
		return false
	}
	return true
}

// Trips lists matching trips ordered by id.
func (s *Snapshot) Trips(f TripFilter) []model.Trip {
	return sortedValues(s.trips, f.match)
}

// IncidentFilter selects incidents.
type IncidentFilter struct {
	VehicleID  string
	Status     model.IncidentStatus
	Severity   model.Severity
	Unresolved bool
}

func (f IncidentFilter) match(i model.Incident) bool {
	switch {
	case f.VehicleID != "" && i.VehicleID != f.VehicleID:
		return false
	case f.Status != 0 && i.Status != f.Status:
		return false
	case f.Severity != 0 && i.Severity != f.Severity:
		return false
	case f.Unresolved && i.Status == model.IncidentResolved:
		return false
	}
	return true
}

// Incidents lists matching incidents ordered by id.
func (s *Snapshot) Incidents(f IncidentFilter) []model.Incident {
	return sortedValues(s.incidents, f.match)
}

// Requests lists requests with the given status, all of them when zero.
func (s *Snapshot) Requests(status model.RequestStatus) []model.IncomingRequest {
	return sortedValues(s.requests, func(r model.IncomingRequest) bool {
		return status == 0 || r.Status == status
	})
}

// PendingRequests is the review queue.
func (s *Snapshot) PendingRequests() []model.IncomingRequest {
	return s.Requests(model.RequestPending)
}

// Data exports the snapshot in its serialisable form.
func (s *Snapshot) Data() Data {
	return Data{
		Version:   s.version,
		Vehicles:  sortedValues(s.vehicles, nil),
		Drivers:   sortedValues(s.drivers, nil),
		Trips:     sortedValues(s.trips, nil),
		Incidents: sortedValues(s.incidents, nil),
		Requests:  sortedValues(s.requests, nil),
	}
}

// CheckConsistency verifies the cross-record invariants: a vehicle is
// ON_MISSION, and a driver BUSY, exactly when one active trip holds it.
func (s *Snapshot) CheckConsistency() error {
	vehicleTrips := map[string]int{}
	driverTrips := map[string]int{}
	var errs []error
	for _, t := range s.trips {
		if !t.Status.Active() {
			continue
		}
		if _, ok := s.vehicles[t.VehicleID]; !ok {
			errs = append(errs, fmt.Errorf("trip %s: unknown vehicle %q", t.ID, t.VehicleID))
		}
		if _, ok := s.drivers[t.DriverID]; !ok {
			errs = append(errs, fmt.Errorf("trip %s: unknown driver %q", t.ID, t.DriverID))
		}
		vehicleTrips[t.VehicleID]++
		driverTrips[t.DriverID]++
	}
	for id, v := range s.vehicles {
		n := vehicleTrips[id]
		if n > 1 {
			errs = append(errs, fmt.Errorf("vehicle %s: held by %d active trips", id, n))
		}
		// A critical lockout may freeze a vehicle mid-trip.
		if v.Status == model.VehicleOutOfService {
			continue
		}
		if (v.Status == model.VehicleOnMission) != (n == 1) {
			errs = append(errs, fmt.Errorf("vehicle %s: status %s with %d active trips", id, v.Status, n))
		}
	}
	for id, d := range s.drivers {
		n := driverTrips[id]
		if (d.Status == model.DriverBusy) != (n == 1) {
			errs = append(errs, fmt.Errorf("driver %s: status %s with %d active trips", id, d.Status, n))
		}
	}
	return errors.Join(errs...)
}
