// Package metrics defines the sink interfaces used to observe the fleet
// coordinator and the telemetry simulator. A sink implements MetricsSink and
// any of the optional recorder interfaces it supports; MultiSink forwards
// each event only to the sinks that understand it.
package metrics
