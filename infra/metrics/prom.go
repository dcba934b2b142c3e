package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
)

// PromSink exposes fleet status and telemetry as Prometheus gauges.
type PromSink struct {
	vehicles  *prometheus.GaugeVec
	drivers   *prometheus.GaugeVec
	trips     prometheus.Gauge
	requests  prometheus.Gauge
	incidents prometheus.Gauge
	lastOp    *prometheus.GaugeVec
	speed     *prometheus.GaugeVec
	fuel      *prometheus.GaugeVec
	alerts    prometheus.Counter
	overrides prometheus.Counter
	lastTick  prometheus.Gauge
}

// NewPromSink registers fleet metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		vehicles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_vehicles",
			Help: "Vehicles per status",
		}, []string{"status"}),
		drivers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_drivers",
			Help: "Drivers per status",
		}, []string{"status"}),
		trips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_active_trips",
			Help: "Trips holding a vehicle and a driver",
		}),
		requests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_pending_requests",
			Help: "Requests awaiting review",
		}),
		incidents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_open_incidents",
			Help: "Incidents not yet resolved",
		}),
		lastOp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_last_operation_timestamp_seconds",
			Help: "Unix time of the last successful operation",
		}, []string{"operation"}),
		speed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_vehicle_speed_kmh",
			Help: "Last reported vehicle speed",
		}, []string{"vehicle_id"}),
		fuel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_vehicle_fuel_percent",
			Help: "Last reported vehicle fuel level",
		}, []string{"vehicle_id"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_critical_alerts_total",
			Help: "Audit entries written with CRITICAL severity",
		}),
		overrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_safety_overrides_total",
			Help: "Vehicles locked out by a critical incident",
		}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_telemetry_last_tick_vehicles",
			Help: "Vehicles moved by the last telemetry tick",
		}),
	}
	var err error
	if s.vehicles, err = register(reg, s.vehicles); err != nil {
		return nil, err
	}
	if s.drivers, err = register(reg, s.drivers); err != nil {
		return nil, err
	}
	if s.trips, err = register(reg, s.trips); err != nil {
		return nil, err
	}
	if s.requests, err = register(reg, s.requests); err != nil {
		return nil, err
	}
	if s.incidents, err = register(reg, s.incidents); err != nil {
		return nil, err
	}
	if s.lastOp, err = register(reg, s.lastOp); err != nil {
		return nil, err
	}
	if s.speed, err = register(reg, s.speed); err != nil {
		return nil, err
	}
	if s.fuel, err = register(reg, s.fuel); err != nil {
		return nil, err
	}
	if s.alerts, err = register(reg, s.alerts); err != nil {
		return nil, err
	}
	if s.overrides, err = register(reg, s.overrides); err != nil {
		return nil, err
	}
	if s.lastTick, err = register(reg, s.lastTick); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordOperation stamps the last successful run of the operation.
func (s *PromSink) RecordOperation(ev coremetrics.OperationEvent) error {
	if ev.Outcome == coremetrics.OutcomeOK {
		s.lastOp.WithLabelValues(ev.Operation).Set(float64(ev.Time.Unix()))
	}
	return nil
}

// RecordAuditEntries counts critical alerts.
func (s *PromSink) RecordAuditEntries(entries []model.AuditEntry) error {
	for _, e := range entries {
		if e.Severity == model.SeverityCritical {
			s.alerts.Inc()
		}
	}
	return nil
}

// RecordFleetStatus sets the status gauges.
func (s *PromSink) RecordFleetStatus(ev coremetrics.FleetStatusEvent) error {
	for _, st := range model.VehicleStatuses {
		s.vehicles.WithLabelValues(st.String()).Set(float64(ev.Vehicles[st]))
	}
	for _, st := range model.DriverStatuses {
		s.drivers.WithLabelValues(st.String()).Set(float64(ev.Drivers[st]))
	}
	s.trips.Set(float64(ev.ActiveTrips))
	s.requests.Set(float64(ev.PendingRequests))
	s.incidents.Set(float64(ev.OpenIncidents))
	return nil
}

// RecordVehicleState sets the per-vehicle gauges.
func (s *PromSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	s.speed.WithLabelValues(ev.Vehicle.ID).Set(ev.Vehicle.Speed)
	s.fuel.WithLabelValues(ev.Vehicle.ID).Set(ev.Vehicle.Fuel)
	return nil
}

// RecordTelemetryTick records how many vehicles the tick moved.
func (s *PromSink) RecordTelemetryTick(ev coremetrics.TelemetryTickEvent) error {
	s.lastTick.Set(float64(ev.Vehicles))
	return nil
}

// RecordSafetyOverride counts lockouts.
func (s *PromSink) RecordSafetyOverride(coremetrics.SafetyOverrideEvent) error {
	s.overrides.Inc()
	return nil
}
