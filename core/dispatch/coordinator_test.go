package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/kilianp07/fleetdispatch/core/audit"
	"github.com/kilianp07/fleetdispatch/core/events"
	"github.com/kilianp07/fleetdispatch/core/factory"
	"github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/store"
	"github.com/kilianp07/fleetdispatch/internal/eventbus"
)

func fleetData() store.Data {
	return store.Data{
		Vehicles: []model.Vehicle{
			{ID: "v1", Status: model.VehicleOnMission, Position: model.Position{X: 10, Y: 10}, Speed: 40, Fuel: 80, DriverID: "d2", ETAMinutes: 20},
			{ID: "v2", Status: model.VehicleActive, Position: model.Position{X: 50, Y: 50}, Fuel: 60},
			{ID: "v3", Status: model.VehicleActive, Position: model.Position{X: 44, Y: 44}, Fuel: 5},
			{ID: "v4", Status: model.VehicleMaintenance, Position: model.Position{X: 90, Y: 90}, Fuel: 90},
			{ID: "v5", Status: model.VehicleActive, Position: model.Position{X: 95, Y: 95}, Fuel: 70},
		},
		Drivers: []model.Driver{
			{ID: "d1", Name: "Ana", Status: model.DriverOnline},
			{ID: "d2", Name: "Ben", Status: model.DriverBusy, VehicleID: "v1"},
			{ID: "d3", Name: "Cho", Status: model.DriverOffline},
			{ID: "d4", Name: "Dev", Status: model.DriverOnline},
		},
		Trips: []model.Trip{
			{ID: "t1", Passenger: model.Passenger{Name: "Eve"}, Priority: model.PriorityUrgent, Status: model.TripInProgress,
				VehicleID: "v1", DriverID: "d2", EstimatedDurationMin: 20},
		},
		Requests: []model.IncomingRequest{
			{ID: "req-3", Passenger: model.Passenger{Name: "Fay"}, Pickup: model.Location{Address: "Dock 3", Position: model.Position{X: 48, Y: 52}},
				Dropoff: model.Location{Address: "Airport", Position: model.Position{X: 80, Y: 10}}, Priority: model.PriorityStandard,
				EstimatedDurationMin: 25, Status: model.RequestPending},
		},
	}
}

type env struct {
	c     *Coordinator
	store *store.Store
	bus   *eventbus.Bus
	clock *clockz.FakeClock
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	st, err := store.New(fleetData())
	require.NoError(t, err)
	require.NoError(t, st.Snapshot().CheckConsistency())
	clock := clockz.NewFakeClock()
	bus := eventbus.NewWithBuffer(256)
	t.Cleanup(bus.Close)
	var n atomic.Int64
	ids := func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
	base := []Option{
		WithConfig(Config{MinFuelLevel: 10}),
		WithClock(clock),
		WithIDGenerator(ids),
		WithBus(bus),
	}
	c, err := New(st, audit.NewLedger(audit.WithClock(clock)), append(base, opts...)...)
	require.NoError(t, err)
	return &env{c: c, store: st, bus: bus, clock: clock}
}

func ride(name string) TripInput {
	return TripInput{
		Passenger:            model.Passenger{Name: name},
		Pickup:               model.Location{Address: "Main St 1", Position: model.Position{X: 45, Y: 45}},
		Dropoff:              model.Location{Address: "Station", Position: model.Position{X: 60, Y: 70}},
		Priority:             model.PriorityStandard,
		EstimatedDurationMin: 12,
	}
}

func assigned(name, vehicleID, driverID string) TripInput {
	in := ride(name)
	in.VehicleID = vehicleID
	in.DriverID = driverID
	return in
}

func (e *env) vehicle(t *testing.T, id string) model.Vehicle {
	t.Helper()
	v, ok := e.c.Snapshot().Vehicle(id)
	require.True(t, ok)
	return v
}

func (e *env) driver(t *testing.T, id string) model.Driver {
	t.Helper()
	d, ok := e.c.Snapshot().Driver(id)
	require.True(t, ok)
	return d
}

func (e *env) trip(t *testing.T, id string) model.Trip {
	t.Helper()
	tr, ok := e.c.Snapshot().Trip(id)
	require.True(t, ok)
	return tr
}

func (e *env) actions() []model.AuditAction {
	var out []model.AuditAction
	for _, en := range e.c.Ledger().Entries() {
		out = append(out, en.Action)
	}
	return out
}

// unchanged asserts that a rejected command left no trace.
func (e *env) unchanged(t *testing.T, before *store.Snapshot, ledgerLen int) {
	t.Helper()
	assert.Same(t, before, e.c.Snapshot(), "store must not move")
	assert.Equal(t, ledgerLen, e.c.Ledger().Len(), "no audit entry on failure")
}

func TestCreateTripDispatchesAvailablePair(t *testing.T) {
	e := newEnv(t)
	id, err := e.c.CreateTrip("op1", assigned("Gil", "v2", "d1"))
	require.NoError(t, err)

	tr := e.trip(t, id)
	assert.Equal(t, model.TripDispatched, tr.Status)
	assert.Equal(t, "v2", tr.VehicleID)
	v2 := e.vehicle(t, "v2")
	assert.Equal(t, model.VehicleOnMission, v2.Status)
	assert.Equal(t, 12.0, v2.ETAMinutes)
	assert.Equal(t, model.DriverBusy, e.driver(t, "d1").Status)

	entries := e.c.Ledger().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionDispatchCreated, entries[0].Action)
	assert.Equal(t, "op1", entries[0].ActorID)
	assert.Equal(t, id, entries[0].EntityID)
	assert.NoError(t, e.c.Snapshot().CheckConsistency())
}

func TestCreateTripRejectsVehicleOnMission(t *testing.T) {
	e := newEnv(t)
	_, err := e.c.CreateTrip("op1", assigned("Gil", "v2", "d1"))
	require.NoError(t, err)
	before, n := e.c.Snapshot(), e.c.Ledger().Len()

	_, err = e.c.CreateTrip("op1", assigned("Hal", "v2", "d4"))
	assert.ErrorIs(t, err, model.ErrResourceUnavailable)
	e.unchanged(t, before, n)
	assert.Len(t, e.c.Snapshot().Trips(store.TripFilter{}), 2)
	assert.Equal(t, model.DriverOnline, e.driver(t, "d4").Status)
}

func TestCreateTripAdmissionFailures(t *testing.T) {
	outside := ride("Ivy")
	outside.Pickup.Position.X = 140
	cases := []struct {
		name  string
		actor string
		in    TripInput
		want  error
	}{
		{"vehicle in maintenance", "op", assigned("Ivy", "v4", "d1"), model.ErrResourceUnavailable},
		{"fuel below threshold", "op", assigned("Ivy", "v3", "d1"), model.ErrResourceUnavailable},
		{"driver offline", "op", assigned("Ivy", "v2", "d3"), model.ErrResourceUnavailable},
		{"driver busy", "op", assigned("Ivy", "v2", "d2"), model.ErrResourceUnavailable},
		{"unknown vehicle", "op", assigned("Ivy", "v9", "d1"), model.ErrNotFound},
		{"unknown driver", "op", assigned("Ivy", "v2", "d9"), model.ErrNotFound},
		{"vehicle without driver", "op", assigned("Ivy", "v2", ""), model.ErrInvalidInput},
		{"missing actor", "", ride("Ivy"), model.ErrInvalidInput},
		{"missing passenger", "op", ride(" "), model.ErrInvalidInput},
		{"pickup outside grid", "op", outside, model.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			before, n := e.c.Snapshot(), e.c.Ledger().Len()
			id, err := e.c.CreateTrip(tc.actor, tc.in)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, id)
			e.unchanged(t, before, n)
		})
	}
}

func TestCreateTripUnassignedIsScheduled(t *testing.T) {
	e := newEnv(t)
	in := ride("Jo")
	in.Priority = 0
	id, err := e.c.CreateTrip("op1", in)
	require.NoError(t, err)
	tr := e.trip(t, id)
	assert.Equal(t, model.TripScheduled, tr.Status)
	assert.Equal(t, model.PriorityStandard, tr.Priority)
	assert.Empty(t, tr.VehicleID)
	assert.Equal(t, e.clock.Now().UTC(), tr.CreatedAt)
}

func TestCriticalIncidentOverridesMission(t *testing.T) {
	e := newEnv(t)
	sub := e.bus.Subscribe()

	id, err := e.c.ReportIncident("driver:d2", IncidentInput{VehicleID: "v1", DriverID: "d2", Severity: model.SeverityCritical,
		Category: "collision", Description: "rear ended at junction"})
	require.NoError(t, err)

	v1 := e.vehicle(t, "v1")
	assert.Equal(t, model.VehicleOutOfService, v1.Status)
	assert.Zero(t, v1.Speed)
	inc, ok := e.c.Snapshot().Incident(id)
	require.True(t, ok)
	assert.Equal(t, "t1", inc.TripID, "running trip is linked")
	assert.Equal(t, model.TripInProgress, e.trip(t, "t1").Status)
	assert.Equal(t, model.DriverBusy, e.driver(t, "d2").Status)

	entries := e.c.Ledger().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActionIncidentReported, entries[0].Action)
	assert.Equal(t, model.ActionCriticalAlert, entries[1].Action)
	assert.Equal(t, model.SeverityCritical, entries[1].Severity)
	assert.Equal(t, "v1", entries[1].EntityID)

	var sawCommit, sawOverride bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub:
			switch ev := ev.(type) {
			case events.CommitEvent:
				sawCommit = len(ev.Entries) == 2
			case events.SafetyOverrideEvent:
				sawOverride = ev.VehicleID == "v1" && ev.TripID == "t1" && ev.Previous == model.VehicleOnMission
			}
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	assert.True(t, sawCommit)
	assert.True(t, sawOverride)

	// The lockout survives the end of the trip.
	require.NoError(t, e.c.CompleteTrip("driver:d2", "t1", nil))
	v1 = e.vehicle(t, "v1")
	assert.Equal(t, model.VehicleOutOfService, v1.Status)
	assert.Zero(t, v1.ETAMinutes)
	assert.Equal(t, model.DriverOnline, e.driver(t, "d2").Status)
	last := e.c.Ledger().Tail()
	assert.Contains(t, last.Details, "stays OUT_OF_SERVICE")
	assert.NoError(t, e.c.Snapshot().CheckConsistency())
}

func TestAuditFailureRollsBackCommand(t *testing.T) {
	e := newEnv(t)
	sub := e.bus.Subscribe()
	diskFull := errors.New("disk full")
	e.c.appendBatch = func(*audit.Batch) error { return diskFull }

	before, n := e.c.Snapshot(), e.c.Ledger().Len()
	_, err := e.c.ReportIncident("driver:d2", IncidentInput{VehicleID: "v1", Severity: model.SeverityCritical,
		Category: "collision", Description: "rear ended"})
	require.ErrorIs(t, err, diskFull)
	assert.Equal(t, metrics.OutcomeError, Outcome(err))
	e.unchanged(t, before, n)
	assert.Equal(t, model.VehicleOnMission, e.vehicle(t, "v1").Status, "no lockout without its audit entries")
	assert.Empty(t, e.c.Snapshot().Incidents(store.IncidentFilter{}))
	select {
	case ev := <-sub:
		t.Fatalf("unexpected event %T", ev)
	default:
	}

	// the coordinator keeps working once the ledger accepts writes again
	e.c.appendBatch = e.c.Ledger().Append
	_, err = e.c.CreateTrip("op1", assigned("Gil", "v2", "d1"))
	require.NoError(t, err)
	assert.Equal(t, n+1, e.c.Ledger().Len())
	assert.NoError(t, e.c.Ledger().Verify())
}

func TestAuditStaleTailRollsBack(t *testing.T) {
	e := newEnv(t)
	led := e.c.Ledger()
	// another writer moves the tail between staging and appending
	e.c.appendBatch = func(b *audit.Batch) error {
		_, err := led.Record(audit.Record{ActorID: "intruder", Action: model.ActionTripUpdated, EntityID: "t1"})
		require.NoError(t, err)
		return led.Append(b)
	}

	before, n := e.c.Snapshot(), led.Len()
	_, err := e.c.CreateTrip("op1", assigned("Gil", "v2", "d1"))
	require.ErrorIs(t, err, audit.ErrStaleBatch)
	assert.Same(t, before, e.c.Snapshot())
	assert.Equal(t, n+1, led.Len(), "only the foreign entry landed")
	assert.Equal(t, "intruder", led.Tail().ActorID)
	assert.Equal(t, model.VehicleActive, e.vehicle(t, "v2").Status)
	assert.Equal(t, model.DriverOnline, e.driver(t, "d1").Status)
}

func TestNonCriticalIncidentKeepsVehicle(t *testing.T) {
	e := newEnv(t)
	_, err := e.c.ReportIncident("op", IncidentInput{VehicleID: "v2", Severity: model.SeverityHigh, Category: "tyre"})
	require.NoError(t, err)
	assert.Equal(t, model.VehicleActive, e.vehicle(t, "v2").Status)
	assert.Equal(t, []model.AuditAction{model.ActionIncidentReported}, e.actions())
}

func TestCriticalIncidentOnLockedVehicle(t *testing.T) {
	e := newEnv(t)
	in := IncidentInput{VehicleID: "v2", Severity: model.SeverityCritical, Category: "fire"}
	_, err := e.c.ReportIncident("op", in)
	require.NoError(t, err)
	locked := e.c.Snapshot()

	_, err = e.c.ReportIncident("op", in)
	require.NoError(t, err)
	assert.Equal(t, model.VehicleOutOfService, e.vehicle(t, "v2").Status)
	assert.Equal(t, locked.Version()+1, e.c.Snapshot().Version())
	assert.Equal(t, 4, e.c.Ledger().Len())
	assert.Contains(t, e.c.Ledger().Tail().Details, "already out of service")
}

func TestReportIncidentRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	before, n := e.c.Snapshot(), e.c.Ledger().Len()
	_, err := e.c.ReportIncident("op", IncidentInput{VehicleID: "v9", Severity: model.SeverityLow, Category: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = e.c.ReportIncident("op", IncidentInput{VehicleID: "v2", Category: "x"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = e.c.ReportIncident("op", IncidentInput{VehicleID: "v2", DriverID: "d9", Severity: model.SeverityLow, Category: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)
	e.unchanged(t, before, n)
}

func TestApproveThenRejectRequest(t *testing.T) {
	e := newEnv(t)
	tripID, err := e.c.ApproveRequest("op1", "req-3")
	require.NoError(t, err)

	tr := e.trip(t, tripID)
	assert.Equal(t, model.TripScheduled, tr.Status)
	assert.Empty(t, tr.VehicleID)
	assert.Empty(t, tr.DriverID)
	assert.Equal(t, "req-3", tr.RequestID)
	assert.Equal(t, "Fay", tr.Passenger.Name)
	assert.Empty(t, e.c.Snapshot().PendingRequests())

	before, n := e.c.Snapshot(), e.c.Ledger().Len()
	err = e.c.RejectRequest("op2", "req-3", "duplicate")
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)
	_, err = e.c.ApproveRequest("op2", "req-3")
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)
	e.unchanged(t, before, n)

	_, err = e.c.ApproveRequest("op2", "req-404")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSubmitAndRejectRequest(t *testing.T) {
	e := newEnv(t)
	id, err := e.c.SubmitRequest("portal", RequestInput{Passenger: model.Passenger{Name: "Kim"},
		Pickup: model.Location{Position: model.Position{X: 1, Y: 1}}, Dropoff: model.Location{Position: model.Position{X: 2, Y: 2}}})
	require.NoError(t, err)
	assert.Len(t, e.c.Snapshot().PendingRequests(), 2)

	require.NoError(t, e.c.RejectRequest("op", id, "out of area"))
	r, _ := e.c.Snapshot().Request(id)
	assert.Equal(t, model.RequestRejected, r.Status)
	assert.Equal(t, []model.AuditAction{model.ActionRequestSubmitted, model.ActionRequestRejected}, e.actions())
}

func TestTripLifecycleReleasesResources(t *testing.T) {
	e := newEnv(t)
	id, err := e.c.CreateTrip("op", assigned("Lee", "v2", "d1"))
	require.NoError(t, err)

	for _, want := range []model.TripStatus{model.TripEnRoutePickup, model.TripArrivedPickup, model.TripInProgress} {
		got, err := e.c.AdvanceTrip("driver:d1", id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, model.VehicleOnMission, e.vehicle(t, "v2").Status)
		assert.NoError(t, e.c.Snapshot().CheckConsistency())
	}
	got, err := e.c.AdvanceTrip("driver:d1", id)
	require.NoError(t, err)
	assert.Equal(t, model.TripCompleted, got)
	assert.Equal(t, model.VehicleActive, e.vehicle(t, "v2").Status)
	assert.Zero(t, e.vehicle(t, "v2").ETAMinutes)
	assert.Equal(t, model.DriverOnline, e.driver(t, "d1").Status)

	before, n := e.c.Snapshot(), e.c.Ledger().Len()
	_, err = e.c.AdvanceTrip("driver:d1", id)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	e.unchanged(t, before, n)

	assert.Equal(t, []model.AuditAction{
		model.ActionDispatchCreated, model.ActionTripAdvanced, model.ActionTripAdvanced,
		model.ActionTripAdvanced, model.ActionTripCompleted,
	}, e.actions())
	assert.NoError(t, e.c.Ledger().Verify())
}

func TestAdvanceScheduledTripNeedsDispatch(t *testing.T) {
	e := newEnv(t)
	id, err := e.c.CreateTrip("op", ride("Max"))
	require.NoError(t, err)
	_, err = e.c.AdvanceTrip("op", id)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	_, err = e.c.AdvanceTrip("op", "t404")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSecondCompleteTripIsRejected(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.c.CompleteTrip("driver:d2", "t1", &model.Feedback{Rating: 5, Comment: "smooth"}))
	assert.Contains(t, e.c.Ledger().Tail().Details, "rating 5/5: smooth")
	tr := e.trip(t, "t1")
	require.NotNil(t, tr.Feedback)
	assert.Equal(t, e.clock.Now().UTC(), tr.ClosedAt)

	before, n := e.c.Snapshot(), e.c.Ledger().Len()
	err := e.c.CompleteTrip("driver:d2", "t1", nil)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	e.unchanged(t, before, n)
	assert.Equal(t, model.VehicleActive, e.vehicle(t, "v1").Status)
}

func TestCompleteTripRejectsBadFeedback(t *testing.T) {
	e := newEnv(t)
	before, n := e.c.Snapshot(), e.c.Ledger().Len()
	err := e.c.CompleteTrip("op", "t1", &model.Feedback{Rating: 9})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	e.unchanged(t, before, n)
}

func TestCancelAndReschedule(t *testing.T) {
	e := newEnv(t)
	dispatched, err := e.c.CreateTrip("op", assigned("Ned", "v2", "d1"))
	require.NoError(t, err)
	scheduled, err := e.c.CreateTrip("op", ride("Oli"))
	require.NoError(t, err)

	require.NoError(t, e.c.CancelTrip("op", dispatched, "passenger no-show"))
	assert.Equal(t, model.TripCancelled, e.trip(t, dispatched).Status)
	assert.Equal(t, model.VehicleActive, e.vehicle(t, "v2").Status)
	assert.Equal(t, model.DriverOnline, e.driver(t, "d1").Status)
	assert.Contains(t, e.c.Ledger().Tail().Details, "passenger no-show")

	require.NoError(t, e.c.RescheduleTrip("op", scheduled, "tomorrow"))
	assert.Equal(t, model.TripRescheduled, e.trip(t, scheduled).Status)

	err = e.c.CancelTrip("op", scheduled, "")
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	err = e.c.RescheduleTrip("op", "t1", "")
	assert.ErrorIs(t, err, model.ErrIllegalTransition, "in-progress trips cannot be rescheduled")
	assert.NoError(t, e.c.Snapshot().CheckConsistency())
}

func TestEditTrip(t *testing.T) {
	e := newEnv(t)
	id, err := e.c.CreateTrip("op", assigned("Pia", "v2", "d1"))
	require.NoError(t, err)

	notes, prio := "wheelchair", model.PriorityVIP
	tr, err := e.c.EditTrip("op", id, TripPatch{Notes: &notes, Priority: &prio})
	require.NoError(t, err)
	assert.Equal(t, "wheelchair", tr.Notes)
	assert.Equal(t, model.PriorityVIP, tr.Priority)
	assert.Equal(t, model.TripDispatched, tr.Status)
	assert.Equal(t, model.ActionTripUpdated, e.c.Ledger().Tail().Action)

	next := model.TripEnRoutePickup
	tr, err = e.c.EditTrip("op", id, TripPatch{Status: &next})
	require.NoError(t, err)
	assert.Equal(t, model.TripEnRoutePickup, tr.Status)

	before, n := e.c.Snapshot(), e.c.Ledger().Len()
	skip := model.TripInProgress
	_, err = e.c.EditTrip("op", id, TripPatch{Status: &skip})
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	back := model.TripDispatched
	_, err = e.c.EditTrip("op", id, TripPatch{Status: &back})
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	_, err = e.c.EditTrip("op", id, TripPatch{})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	e.unchanged(t, before, n)

	cancel := model.TripCancelled
	_, err = e.c.EditTrip("op", id, TripPatch{Status: &cancel})
	require.NoError(t, err)
	assert.Equal(t, model.VehicleActive, e.vehicle(t, "v2").Status)
	assert.Equal(t, model.DriverOnline, e.driver(t, "d1").Status)

	_, err = e.c.EditTrip("op", id, TripPatch{Notes: &notes})
	assert.ErrorIs(t, err, model.ErrIllegalTransition, "terminal trips are frozen")
}

func TestEditTripKeepsETA(t *testing.T) {
	e := newEnv(t)
	longer := 90.0
	_, err := e.c.EditTrip("op", "t1", TripPatch{EstimatedDurationMin: &longer})
	require.NoError(t, err)
	assert.Equal(t, 20.0, e.vehicle(t, "v1").ETAMinutes)
}

func TestDispatchTrip(t *testing.T) {
	e := newEnv(t)
	id, err := e.c.CreateTrip("op", ride("Quinn"))
	require.NoError(t, err)

	err = e.c.DispatchTrip("op", id, "v1", "d1")
	assert.ErrorIs(t, err, model.ErrResourceUnavailable)
	require.NoError(t, e.c.DispatchTrip("op", id, "v5", "d4"))
	assert.Equal(t, model.TripDispatched, e.trip(t, id).Status)
	assert.Equal(t, model.VehicleOnMission, e.vehicle(t, "v5").Status)
	assert.Equal(t, 12.0, e.vehicle(t, "v5").ETAMinutes)

	err = e.c.DispatchTrip("op", id, "v2", "d1")
	assert.ErrorIs(t, err, model.ErrIllegalTransition, "already dispatched")
}

func TestAutoDispatchPicksNearestEligibleVehicle(t *testing.T) {
	e := newEnv(t)
	id, err := e.c.CreateTrip("op", ride("Rae"))
	require.NoError(t, err)

	s, err := e.c.AutoDispatch(context.Background(), ActorAutoDispatch, id)
	require.NoError(t, err)
	// v3 is closer but below the fuel threshold.
	assert.Equal(t, "v2", s.VehicleID)
	assert.Equal(t, "d1", s.DriverID)
	assert.Equal(t, model.TripDispatched, e.trip(t, id).Status)
	assert.Equal(t, ActorAutoDispatch, e.c.Ledger().Tail().ActorID)

	_, err = e.c.AutoDispatch(context.Background(), ActorAutoDispatch, id)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
}

func TestAutoDispatchSuggestionIsChecked(t *testing.T) {
	busy := RecommenderFunc(func(context.Context, model.Trip, *store.Snapshot) (Suggestion, error) {
		return Suggestion{VehicleID: "v1", DriverID: "d2"}, nil
	})
	e := newEnv(t, WithRecommender(busy))
	id, err := e.c.CreateTrip("op", ride("Sam"))
	require.NoError(t, err)
	before, n := e.c.Snapshot(), e.c.Ledger().Len()

	_, err = e.c.AutoDispatch(context.Background(), ActorAutoDispatch, id)
	assert.ErrorIs(t, err, model.ErrResourceUnavailable)
	e.unchanged(t, before, n)
}

func TestIncidentWorkflow(t *testing.T) {
	e := newEnv(t)
	id, err := e.c.ReportIncident("op", IncidentInput{VehicleID: "v2", Severity: model.SeverityMedium, Category: "mirror"})
	require.NoError(t, err)

	require.NoError(t, e.c.AcknowledgeIncident("op", id))
	require.NoError(t, e.c.AssignIncident("op", id, "agent-1"))
	require.NoError(t, e.c.AssignIncident("op", id, "agent-2"))
	assert.Contains(t, e.c.Ledger().Tail().Details, "reassigned from agent-1 to agent-2")
	require.NoError(t, e.c.ResolveIncident("op", id, "replaced"))

	inc, _ := e.c.Snapshot().Incident(id)
	assert.Equal(t, model.IncidentResolved, inc.Status)
	assert.Equal(t, "agent-2", inc.AssignedToID)
	assert.Equal(t, "replaced", inc.Resolution)

	before, n := e.c.Snapshot(), e.c.Ledger().Len()
	assert.ErrorIs(t, e.c.AcknowledgeIncident("op", id), model.ErrIllegalTransition)
	assert.ErrorIs(t, e.c.AssignIncident("op", id, "agent-3"), model.ErrIllegalTransition)
	assert.ErrorIs(t, e.c.AssignIncident("op", id, ""), model.ErrInvalidInput)
	assert.ErrorIs(t, e.c.ResolveIncident("op", "i404", ""), model.ErrNotFound)
	e.unchanged(t, before, n)
}

func TestMaintenanceCycle(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.c.SendToMaintenance("op", "v2", "brakes"))
	assert.Equal(t, model.VehicleMaintenance, e.vehicle(t, "v2").Status)
	_, err := e.c.CreateTrip("op", assigned("Tom", "v2", "d1"))
	assert.ErrorIs(t, err, model.ErrResourceUnavailable)

	require.NoError(t, e.c.CompleteMaintenance("op", "v2"))
	assert.Equal(t, model.VehicleActive, e.vehicle(t, "v2").Status)
	assert.ErrorIs(t, e.c.CompleteMaintenance("op", "v2"), model.ErrIllegalTransition)
	assert.ErrorIs(t, e.c.SendToMaintenance("op", "v1", ""), model.ErrIllegalTransition, "vehicle on mission")
}

func TestCompleteMaintenanceWaitsForIncidentAndTrip(t *testing.T) {
	e := newEnv(t)
	inc, err := e.c.ReportIncident("op", IncidentInput{VehicleID: "v1", Severity: model.SeverityCritical, Category: "engine"})
	require.NoError(t, err)

	err = e.c.CompleteMaintenance("op", "v1")
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	assert.Contains(t, err.Error(), "critical incident")

	require.NoError(t, e.c.AcknowledgeIncident("op", inc))
	require.NoError(t, e.c.ResolveIncident("op", inc, "engine swapped"))
	assert.Equal(t, model.VehicleOutOfService, e.vehicle(t, "v1").Status, "resolution alone does not reactivate")

	err = e.c.CompleteMaintenance("op", "v1")
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	assert.Contains(t, err.Error(), "trip t1")

	require.NoError(t, e.c.CancelTrip("op", "t1", "vehicle lost"))
	require.NoError(t, e.c.CompleteMaintenance("op", "v1"))
	assert.Equal(t, model.VehicleActive, e.vehicle(t, "v1").Status)
	assert.NoError(t, e.c.Snapshot().CheckConsistency())
}

func TestSetDriverStatus(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.c.SetDriverStatus("op", "d1", model.DriverOnLeave))
	assert.Equal(t, model.DriverOnLeave, e.driver(t, "d1").Status)
	require.NoError(t, e.c.SetDriverStatus("op", "d3", model.DriverOnline))

	before, n := e.c.Snapshot(), e.c.Ledger().Len()
	assert.ErrorIs(t, e.c.SetDriverStatus("op", "d4", model.DriverBusy), model.ErrIllegalTransition)
	assert.ErrorIs(t, e.c.SetDriverStatus("op", "d2", model.DriverOffline), model.ErrIllegalTransition)
	assert.ErrorIs(t, e.c.SetDriverStatus("op", "d9", model.DriverOffline), model.ErrNotFound)
	assert.ErrorIs(t, e.c.SetDriverStatus("op", "d4", model.DriverStatus(42)), model.ErrInvalidInput)
	e.unchanged(t, before, n)
}

func TestUpdateTelemetry(t *testing.T) {
	e := newEnv(t)
	move := func(v model.Vehicle) model.Vehicle {
		v.Position.X++
		v.Speed = 30
		v.ETAMinutes = max(v.ETAMinutes-0.5, 0)
		return v
	}
	v, applied, err := e.c.UpdateTelemetry("v1", move)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 19.5, v.ETAMinutes)
	assert.Equal(t, 11.0, e.vehicle(t, "v1").Position.X)

	_, applied, err = e.c.UpdateTelemetry("v4", move)
	require.NoError(t, err)
	assert.False(t, applied, "maintenance vehicles are not simulated")

	before := e.c.Snapshot()
	_, _, err = e.c.UpdateTelemetry("v2", func(v model.Vehicle) model.Vehicle {
		v.Status = model.VehicleOutOfService
		return v
	})
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	_, _, err = e.c.UpdateTelemetry("v1", func(v model.Vehicle) model.Vehicle {
		v.ETAMinutes += 5
		return v
	})
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	_, _, err = e.c.UpdateTelemetry("v2", func(v model.Vehicle) model.Vehicle {
		v.Position.Y = -3
		return v
	})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, _, err = e.c.UpdateTelemetry("v9", move)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Same(t, before, e.c.Snapshot())
	assert.Zero(t, e.c.Ledger().Len(), "telemetry is not audited")
}

func TestConcurrentCreateTripSameVehicle(t *testing.T) {
	e := newEnv(t)
	const n = 16
	var wg sync.WaitGroup
	var wins, unavailable atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			driver := "d1"
			if i%2 == 1 {
				driver = "d4"
			}
			_, err := e.c.CreateTrip(fmt.Sprintf("op%d", i), assigned("Race", "v2", driver))
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, model.ErrResourceUnavailable):
				unavailable.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), unavailable.Load())
	assert.Equal(t, 1, e.c.Ledger().Len())
	assert.NoError(t, e.c.Snapshot().CheckConsistency())
}

func TestConcurrentCommandsKeepInvariants(t *testing.T) {
	e := newEnv(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vehicle, driver := "v2", "d1"
			if i%2 == 1 {
				vehicle, driver = "v5", "d4"
			}
			for j := 0; j < 20; j++ {
				id, err := e.c.CreateTrip("op", assigned("Loop", vehicle, driver))
				if err != nil {
					continue
				}
				for {
					if st, err := e.c.AdvanceTrip("op", id); err != nil || st == model.TripCompleted {
						break
					}
				}
			}
		}(i)
	}
	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
				assert.NoError(t, e.c.Snapshot().CheckConsistency())
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-readerDone
	assert.NoError(t, e.c.Snapshot().CheckConsistency())
	assert.NoError(t, e.c.Ledger().Verify())
}

type recordingMetrics struct {
	mu    sync.Mutex
	ops   []metrics.OperationEvent
	fleet []metrics.FleetStatusEvent
}

func (r *recordingMetrics) RecordOperation(ev metrics.OperationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, ev)
	return nil
}

func (r *recordingMetrics) RecordFleetStatus(ev metrics.FleetStatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fleet = append(r.fleet, ev)
	return nil
}

func TestOperationsAreMeasured(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	rec := &recordingMetrics{}
	e := newEnv(t, WithMetrics(rec))

	_, err := e.c.CreateTrip("op", assigned("Uma", "v2", "d1"))
	require.NoError(t, err)
	_, err = e.c.CreateTrip("op", assigned("Vic", "v2", "d4"))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(operationsTotal.WithLabelValues("createTrip", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(operationsTotal.WithLabelValues("createTrip", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(auditEntriesTotal.WithLabelValues("DISPATCH_CREATED")))

	require.Len(t, rec.ops, 2)
	assert.Equal(t, metrics.OutcomeOK, rec.ops[0].Outcome)
	assert.Equal(t, 1, rec.ops[0].Entries)
	assert.Equal(t, metrics.OutcomeUnavailable, rec.ops[1].Outcome)
	require.Len(t, rec.fleet, 1)
	assert.Equal(t, 2, rec.fleet[0].Vehicles[model.VehicleOnMission])
	assert.Equal(t, 2, rec.fleet[0].ActiveTrips)
	assert.Equal(t, 1, rec.fleet[0].PendingRequests)
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(nil, audit.NewLedger())
	assert.Error(t, err)
	_, err = New(store.NewEmpty(), audit.NewLedger(), WithConfig(Config{MinFuelLevel: 120}))
	assert.Error(t, err)
	_, err = New(store.NewEmpty(), audit.NewLedger(), WithConfig(Config{Recommender: factory.ModuleConfig{Type: "psychic"}}))
	assert.Error(t, err)
}
