package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ticksTotal      prometheus.Counter
	tickLatency     prometheus.Histogram
	vehiclesUpdated prometheus.Gauge
	updateFailures  prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, prometheus.Histogram, prometheus.Gauge, prometheus.Counter) {
	ticks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_telemetry_ticks_total",
		Help: "Number of telemetry ticks executed",
	})
	lat := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleet_telemetry_tick_seconds",
		Help:    "Duration of a telemetry tick",
		Buckets: prometheus.DefBuckets,
	})
	upd := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_telemetry_vehicles_updated",
		Help: "Vehicles updated by the last tick",
	})
	fail := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_telemetry_update_failures_total",
		Help: "Number of rejected per-vehicle telemetry updates",
	})
	return ticks, lat, upd, fail
}

func init() {
	ticksTotal, tickLatency, vehiclesUpdated, updateFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers telemetry metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(ticksTotal, tickLatency, vehiclesUpdated, updateFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	ticksTotal, tickLatency, vehiclesUpdated, updateFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
