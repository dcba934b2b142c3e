// Package validator decides whether a requested state change is legal.
//
// Every function is pure: it reads its arguments and returns nil or a
// *model.TransitionError (*model.ResolvedError for requests). Pairs absent
// from a table are illegal.
package validator

import (
	"fmt"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// Context carries the facts a transition may depend on.
type Context struct {
	// TripTerminal is true when the trip holding the vehicle or driver has
	// reached a terminal state, or when no trip holds it at all.
	TripTerminal bool
	// Assignment marks the dispatch path, the only way into ON_MISSION/BUSY.
	Assignment bool
	// SafetyOverride marks a CRITICAL incident lockout.
	SafetyOverride bool
	// MaintenanceComplete marks the explicit maintenance-complete command.
	MaintenanceComplete bool
}

type tripEdge struct{ from, to model.TripStatus }

var tripEdges = map[tripEdge]bool{
	{model.TripScheduled, model.TripDispatched}:        true,
	{model.TripScheduled, model.TripCancelled}:         true,
	{model.TripScheduled, model.TripRescheduled}:       true,
	{model.TripDispatched, model.TripEnRoutePickup}:    true,
	{model.TripDispatched, model.TripCancelled}:        true,
	{model.TripDispatched, model.TripRescheduled}:      true,
	{model.TripEnRoutePickup, model.TripArrivedPickup}: true,
	{model.TripEnRoutePickup, model.TripCancelled}:     true,
	{model.TripArrivedPickup, model.TripInProgress}:    true,
	{model.TripArrivedPickup, model.TripCancelled}:     true,
	{model.TripInProgress, model.TripCompleted}:        true,
	{model.TripInProgress, model.TripCancelled}:        true,
}

var tripForward = map[model.TripStatus]model.TripStatus{
	model.TripDispatched:    model.TripEnRoutePickup,
	model.TripEnRoutePickup: model.TripArrivedPickup,
	model.TripArrivedPickup: model.TripInProgress,
	model.TripInProgress:    model.TripCompleted,
}

// NextTripStatus returns the forward successor of s. SCHEDULED has none:
// a trip leaves it only by being dispatched.
func NextTripStatus(s model.TripStatus) (model.TripStatus, error) {
	next, ok := tripForward[s]
	if !ok {
		reason := "no forward state"
		switch {
		case s == model.TripScheduled:
			reason = "trip must be dispatched first"
		case s.Terminal():
			reason = "trip is terminal"
		}
		return 0, &model.TransitionError{Kind: model.KindTrip, From: s.String(), To: "NEXT", Reason: reason}
	}
	return next, nil
}

// Trip checks a trip status change.
func Trip(from, to model.TripStatus) error {
	if tripEdges[tripEdge{from, to}] {
		return nil
	}
	reason := ""
	if from.Terminal() {
		reason = "trip is terminal"
	}
	return &model.TransitionError{Kind: model.KindTrip, From: from.String(), To: to.String(), Reason: reason}
}

// Vehicle checks a vehicle status change.
func Vehicle(from, to model.VehicleStatus, ctx Context) error {
	fail := func(reason string) error {
		return &model.TransitionError{Kind: model.KindVehicle, From: from.String(), To: to.String(), Reason: reason}
	}
	if from == model.VehicleOutOfService {
		if !ctx.MaintenanceComplete {
			return fail("out of service until maintenance is completed")
		}
		if to == model.VehicleActive || to == model.VehicleMaintenance {
			return nil
		}
		return fail("")
	}
	switch to {
	case model.VehicleOutOfService:
		if !ctx.SafetyOverride {
			return fail("only a critical incident forces a vehicle out of service")
		}
		if from == model.VehicleActive || from == model.VehicleOnMission || from == model.VehicleMaintenance {
			return nil
		}
	case model.VehicleOnMission:
		if from != model.VehicleActive {
			return fail("vehicle is not available")
		}
		if !ctx.Assignment {
			return fail("missions start only through dispatch")
		}
		return nil
	case model.VehicleActive:
		switch from {
		case model.VehicleOnMission:
			if !ctx.TripTerminal {
				return fail("mission still running")
			}
			return nil
		case model.VehicleMaintenance:
			if !ctx.MaintenanceComplete {
				return fail("maintenance not completed")
			}
			return nil
		}
	case model.VehicleMaintenance:
		if from == model.VehicleActive {
			return nil
		}
	}
	return fail("")
}

// Driver checks a driver status change.
func Driver(from, to model.DriverStatus, ctx Context) error {
	fail := func(reason string) error {
		return &model.TransitionError{Kind: model.KindDriver, From: from.String(), To: to.String(), Reason: reason}
	}
	if from == to {
		return fail("status unchanged")
	}
	switch from {
	case model.DriverBusy:
		if to == model.DriverOnline || to == model.DriverOffline {
			if !ctx.TripTerminal {
				return fail("trip still running")
			}
			return nil
		}
		return fail("")
	case model.DriverOnline:
		if to == model.DriverBusy {
			if !ctx.Assignment {
				return fail("drivers become busy only through dispatch")
			}
			return nil
		}
		if to == model.DriverOffline || to == model.DriverOnLeave {
			return nil
		}
	case model.DriverOffline, model.DriverOnLeave:
		if to == model.DriverOnline || to == model.DriverOffline || to == model.DriverOnLeave {
			return nil
		}
		return fail("driver must be online to be assigned")
	}
	return fail("")
}

type incidentEdge struct{ from, to model.IncidentStatus }

var incidentEdges = map[incidentEdge]bool{
	{model.IncidentOpen, model.IncidentAcknowledged}:          true,
	{model.IncidentOpen, model.IncidentInvestigating}:         true,
	{model.IncidentAcknowledged, model.IncidentInvestigating}: true,
	{model.IncidentAcknowledged, model.IncidentResolved}:      true,
	{model.IncidentInvestigating, model.IncidentResolved}:     true,
}

// Incident checks an incident status change.
func Incident(from, to model.IncidentStatus) error {
	if incidentEdges[incidentEdge{from, to}] {
		return nil
	}
	return &model.TransitionError{Kind: model.KindIncident, From: from.String(), To: to.String()}
}

// Request checks a request review. Anything but PENDING is already resolved.
func Request(id string, from, to model.RequestStatus) error {
	if from != model.RequestPending {
		return &model.ResolvedError{ID: id, Status: from}
	}
	if to == model.RequestApproved || to == model.RequestRejected {
		return nil
	}
	return &model.TransitionError{Kind: model.KindRequest, From: from.String(), To: to.String()}
}

// CanTransition is the text boundary over the typed checks, used by callers
// that only know state names.
func CanTransition(kind model.EntityKind, from, to string, ctx Context) error {
	switch kind {
	case model.KindTrip:
		f, t, err := parsePair(model.ParseTripStatus, from, to)
		if err != nil {
			return err
		}
		return Trip(f, t)
	case model.KindVehicle:
		f, t, err := parsePair(model.ParseVehicleStatus, from, to)
		if err != nil {
			return err
		}
		return Vehicle(f, t, ctx)
	case model.KindDriver:
		f, t, err := parsePair(model.ParseDriverStatus, from, to)
		if err != nil {
			return err
		}
		return Driver(f, t, ctx)
	case model.KindIncident:
		f, t, err := parsePair(model.ParseIncidentStatus, from, to)
		if err != nil {
			return err
		}
		return Incident(f, t)
	case model.KindRequest:
		f, t, err := parsePair(model.ParseRequestStatus, from, to)
		if err != nil {
			return err
		}
		return Request("", f, t)
	}
	return &model.TransitionError{Kind: kind, From: from, To: to, Reason: fmt.Sprintf("unknown entity kind %d", kind)}
}

func parsePair[T any](parse func(string) (T, error), from, to string) (T, T, error) {
	var zero T
	f, err := parse(from)
	if err != nil {
		return zero, zero, model.InvalidInput("%v", err)
	}
	t, err := parse(to)
	if err != nil {
		return zero, zero, model.InvalidInput("%v", err)
	}
	return f, t, nil
}
