package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationsTotal   *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	auditEntriesTotal *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.CounterVec) {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_operations_total",
			Help: "Number of coordinator operations by outcome",
		},
		[]string{"operation", "outcome"},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_operation_duration_seconds",
			Help:    "Time spent executing coordinator operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	audit := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_audit_entries_total",
			Help: "Number of audit entries appended",
		},
		[]string{"action"},
	)
	return ops, lat, audit
}

func init() {
	operationsTotal, operationLatency, auditEntriesTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(operationsTotal, operationLatency, auditEntriesTotal)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	operationsTotal, operationLatency, auditEntriesTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
