package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/kilianp07/fleetdispatch/core/events"
	coremetrics "github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/internal/eventbus"
)

type busSink struct {
	coremetrics.NopSink
	mu        sync.Mutex
	states    []coremetrics.VehicleStateEvent
	overrides []coremetrics.SafetyOverrideEvent
}

func (s *busSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, ev)
	return nil
}

func (s *busSink) RecordSafetyOverride(ev coremetrics.SafetyOverrideEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = append(s.overrides, ev)
	return nil
}

func (s *busSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states), len(s.overrides)
}

func TestEventCollector(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &busSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockz.NewFakeClock()
	StartEventCollector(ctx, bus, sink, clock)

	cur, err := json.Marshal(model.Vehicle{ID: "v1", Status: model.VehicleOutOfService})
	require.NoError(t, err)
	bus.Publish(events.CommitEvent{Operation: "reportIncident", Entries: []model.AuditEntry{
		{EntityKind: model.KindIncident, EntityID: "i1", Current: json.RawMessage(`{"id":"i1"}`)},
		{EntityKind: model.KindVehicle, EntityID: "v1", Current: cur},
	}})
	bus.Publish(events.SafetyOverrideEvent{VehicleID: "v1", IncidentID: "i1"})
	bus.Publish("unrelated")

	require.Eventually(t, func() bool {
		s, o := sink.counts()
		return s == 1 && o == 1
	}, time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, model.VehicleOutOfService, sink.states[0].Vehicle.Status)
	assert.Equal(t, "reportIncident", sink.states[0].Context)
	assert.Equal(t, "i1", sink.overrides[0].IncidentID)
}

func TestEventCollectorNilInputs(t *testing.T) {
	StartEventCollector(context.Background(), nil, &busSink{}, nil)
	StartEventCollector(context.Background(), eventbus.New(), nil, nil)
}
