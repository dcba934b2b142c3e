// Package infra groups the adapters that bind the fleet core to third-party
// systems: zerolog, Prometheus and InfluxDB, MQTT, Kafka, SQLite and Redis
// snapshot storage, and Sentry.
package infra
