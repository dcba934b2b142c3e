package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/infra/logger"
)

// InfluxSink writes fleet events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(points ...*write.Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordOperation writes one fleet_operation point per command.
func (s *InfluxSink) RecordOperation(ev coremetrics.OperationEvent) error {
	p := write.NewPointWithMeasurement("fleet_operation").
		AddTag("operation", ev.Operation).
		AddTag("outcome", ev.Outcome).
		AddTag("actor_id", ev.ActorID).
		AddField("entries", ev.Entries).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordVehicleState writes a vehicle_telemetry point.
func (s *InfluxSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	v := ev.Vehicle
	p := write.NewPointWithMeasurement("vehicle_telemetry").
		AddTag("vehicle_id", v.ID)
	if ev.Component != "" {
		p = p.AddTag("component", ev.Component)
	}
	p = p.AddTag("context", ev.Context).
		AddField("status", v.Status.String()).
		AddField("x", round3(v.Position.X)).
		AddField("y", round3(v.Position.Y)).
		AddField("speed", round3(v.Speed)).
		AddField("fuel", round3(v.Fuel)).
		AddField("eta_minutes", round3(v.ETAMinutes)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAuditEntries writes one audit_entry point per ledger entry.
func (s *InfluxSink) RecordAuditEntries(entries []model.AuditEntry) error {
	points := make([]*write.Point, 0, len(entries))
	for _, e := range entries {
		p := write.NewPointWithMeasurement("audit_entry").
			AddTag("action", e.Action.String()).
			AddTag("entity_kind", e.EntityKind.String()).
			AddTag("actor_id", e.ActorID)
		if sev := e.SeverityName(); sev != "" {
			p = p.AddTag("severity", sev)
		}
		points = append(points, p.
			AddField("entity_id", e.EntityID).
			AddField("seq", int64(e.Seq)).
			SetTime(e.Timestamp))
	}
	return s.write(points...)
}

// RecordTelemetryTick writes a telemetry_tick point.
func (s *InfluxSink) RecordTelemetryTick(ev coremetrics.TelemetryTickEvent) error {
	p := write.NewPointWithMeasurement("telemetry_tick").
		AddField("tick", int64(ev.Tick)).
		AddField("vehicles", ev.Vehicles).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordFleetStatus writes a fleet_status point.
func (s *InfluxSink) RecordFleetStatus(ev coremetrics.FleetStatusEvent) error {
	p := write.NewPointWithMeasurement("fleet_status")
	for _, st := range model.VehicleStatuses {
		p = p.AddField("vehicles_"+strings.ToLower(st.String()), ev.Vehicles[st])
	}
	p = p.AddField("active_trips", ev.ActiveTrips).
		AddField("pending_requests", ev.PendingRequests).
		AddField("open_incidents", ev.OpenIncidents).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordSafetyOverride writes a safety_override point.
func (s *InfluxSink) RecordSafetyOverride(ev coremetrics.SafetyOverrideEvent) error {
	p := write.NewPointWithMeasurement("safety_override").
		AddTag("vehicle_id", ev.VehicleID).
		AddField("incident_id", ev.IncidentID).
		AddField("trip_id", ev.TripID).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
