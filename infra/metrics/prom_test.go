package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/core/factory"
	coremetrics "github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordFleetStatus(coremetrics.FleetStatusEvent{
		Vehicles:        map[model.VehicleStatus]int{model.VehicleActive: 2, model.VehicleOnMission: 1},
		Drivers:         map[model.DriverStatus]int{model.DriverBusy: 1},
		ActiveTrips:     1,
		PendingRequests: 4,
		OpenIncidents:   2,
	}))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.vehicles.WithLabelValues("ACTIVE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.vehicles.WithLabelValues("MAINTENANCE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.drivers.WithLabelValues("BUSY")))
	assert.Equal(t, 4.0, testutil.ToFloat64(sink.requests))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.incidents))

	at := time.Unix(1_700_000_000, 0)
	require.NoError(t, sink.RecordOperation(coremetrics.OperationEvent{Operation: "createTrip", Outcome: coremetrics.OutcomeOK, Time: at}))
	require.NoError(t, sink.RecordOperation(coremetrics.OperationEvent{Operation: "cancelTrip", Outcome: coremetrics.OutcomeIllegal, Time: at}))
	assert.Equal(t, 1_700_000_000.0, testutil.ToFloat64(sink.lastOp.WithLabelValues("createTrip")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.lastOp), "rejected operations are not stamped")

	require.NoError(t, sink.RecordAuditEntries([]model.AuditEntry{{Severity: model.SeverityCritical}, {}}))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.alerts))

	require.NoError(t, sink.RecordVehicleState(coremetrics.VehicleStateEvent{Vehicle: model.Vehicle{ID: "v1", Speed: 33, Fuel: 71}}))
	assert.Equal(t, 33.0, testutil.ToFloat64(sink.speed.WithLabelValues("v1")))
	assert.Equal(t, 71.0, testutil.ToFloat64(sink.fuel.WithLabelValues("v1")))

	require.NoError(t, sink.RecordTelemetryTick(coremetrics.TelemetryTickEvent{Vehicles: 5}))
	assert.Equal(t, 5.0, testutil.ToFloat64(sink.lastTick))
	require.NoError(t, sink.RecordSafetyOverride(coremetrics.SafetyOverrideEvent{VehicleID: "v1"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.overrides))
}

func TestPromSinkReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)
	require.NoError(t, a.RecordTelemetryTick(coremetrics.TelemetryTickEvent{Vehicles: 3}))
	assert.Equal(t, 3.0, testutil.ToFloat64(b.lastTick))
}

func TestFactoryRegistrations(t *testing.T) {
	s, err := coremetrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, s)

	s, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, &coremetrics.MultiSink{}, s)

	_, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "statsd"}})
	assert.Error(t, err)
}
