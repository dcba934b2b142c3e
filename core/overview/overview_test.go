package overview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/store"
)

func TestCompute(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	st, err := store.New(store.Data{
		Version: 7,
		Vehicles: []model.Vehicle{
			{ID: "v1", Status: model.VehicleOnMission, Fuel: 80},
			{ID: "v2", Status: model.VehicleActive, Fuel: 60, StandbyMinutes: 4},
			{ID: "v3", Status: model.VehicleActive, Fuel: 5, StandbyMinutes: 2},
			{ID: "v4", Status: model.VehicleMaintenance, Fuel: 15},
		},
		Drivers: []model.Driver{
			{ID: "d1", Status: model.DriverBusy},
			{ID: "d2", Status: model.DriverOnline},
		},
		Trips: []model.Trip{
			{ID: "t1", Status: model.TripInProgress, VehicleID: "v1", DriverID: "d1", CreatedAt: t0},
			{ID: "t2", Status: model.TripCompleted, CreatedAt: t0, ClosedAt: t0.Add(10 * time.Minute)},
			{ID: "t3", Status: model.TripCompleted, CreatedAt: t0, ClosedAt: t0.Add(30 * time.Minute)},
			{ID: "t4", Status: model.TripCompleted, CreatedAt: t0, ClosedAt: t0.Add(20 * time.Minute)},
			{ID: "t5", Status: model.TripCancelled, CreatedAt: t0, ClosedAt: t0.Add(time.Minute)},
		},
		Incidents: []model.Incident{
			{ID: "i1", VehicleID: "v4", Severity: model.SeverityLow, Status: model.IncidentOpen},
			{ID: "i2", VehicleID: "v4", Severity: model.SeverityLow, Status: model.IncidentResolved},
		},
		Requests: []model.IncomingRequest{
			{ID: "r1", Status: model.RequestPending, ReceivedAt: t0},
			{ID: "r2", Status: model.RequestPending, ReceivedAt: t0.Add(5 * time.Minute)},
		},
	})
	require.NoError(t, err)
	snap := st.Snapshot()

	o := Compute(snap, 20)
	assert.Equal(t, uint64(7), o.Version)
	assert.Equal(t, 2, o.Vehicles["ACTIVE"])
	assert.Equal(t, 1, o.Drivers["BUSY"])
	assert.Equal(t, 3, o.Trips["COMPLETED"])
	assert.InDelta(t, 1.0/3.0, o.Utilisation, 1e-9)
	assert.InDelta(t, 40, o.FuelMean, 1e-9)
	assert.Greater(t, o.FuelStdDev, 0.0)
	assert.Equal(t, []string{"v3", "v4"}, o.LowFuel)
	assert.InDelta(t, 3, o.StandbyMean, 1e-9)
	assert.InDelta(t, 20, o.TripMedianMin, 1e-9)
	assert.InDelta(t, 0.75, o.CompletionRatio, 1e-9)
	assert.Equal(t, 2, o.PendingRequests)
	assert.Equal(t, 1, o.OpenIncidents)

	assert.Equal(t, 15*time.Minute, Age(snap, t0.Add(15*time.Minute)))
}

func TestComputeEmpty(t *testing.T) {
	o := Compute(store.NewEmpty().Snapshot(), 20)
	assert.Zero(t, o.Utilisation)
	assert.Zero(t, o.FuelMean)
	assert.Empty(t, o.LowFuel)
	assert.Zero(t, Age(store.NewEmpty().Snapshot(), time.Now()))
}
