// Package events defines the fleet events emitted on the event bus.
//
// Available event types:
//   - CommitEvent: a coordinator operation committed, with its audit entries
//   - SafetyOverrideEvent: a critical incident locked a vehicle out
//   - TelemetryEvent: a simulator tick moved vehicles
package events
