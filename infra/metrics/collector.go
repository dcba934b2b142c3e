package metrics

import (
	"context"
	"encoding/json"

	"github.com/zoobzio/clockz"

	"github.com/kilianp07/fleetdispatch/core/events"
	coremetrics "github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records vehicle
// changes made by commits and safety overrides. It stops when the context
// is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink, clock clockz.Clock) {
	if bus == nil || sink == nil {
		return
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.CommitEvent:
					if r, ok := sink.(coremetrics.VehicleStateRecorder); ok {
						for _, v := range committedVehicles(e) {
							_ = r.RecordVehicleState(coremetrics.VehicleStateEvent{
								Vehicle:   v,
								Context:   e.Operation,
								Component: "dispatch",
								Time:      clock.Now(),
							})
						}
					}
				case events.SafetyOverrideEvent:
					if r, ok := sink.(coremetrics.SafetyOverrideRecorder); ok {
						_ = r.RecordSafetyOverride(coremetrics.SafetyOverrideEvent{
							VehicleID:  e.VehicleID,
							IncidentID: e.IncidentID,
							TripID:     e.TripID,
							Time:       clock.Now(),
						})
					}
				}
			}
		}
	}()
}

// committedVehicles decodes the vehicle records written by a commit.
func committedVehicles(e events.CommitEvent) []model.Vehicle {
	var out []model.Vehicle
	for _, entry := range e.Entries {
		if entry.EntityKind != model.KindVehicle || len(entry.Current) == 0 {
			continue
		}
		var v model.Vehicle
		if err := json.Unmarshal(entry.Current, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
