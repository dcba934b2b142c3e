package mqtt

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kilianp07/fleetdispatch/core/dispatch"
	"github.com/kilianp07/fleetdispatch/core/events"
	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/monitoring"
	coremqtt "github.com/kilianp07/fleetdispatch/core/mqtt"
	"github.com/kilianp07/fleetdispatch/internal/eventbus"
)

// Broadcaster republishes bus events on MQTT: vehicle telemetry (retained),
// committed audit entries and safety alerts.
type Broadcaster struct {
	pub    coremqtt.Publisher
	topics coremqtt.Topics
	log    logger.Logger
}

// NewBroadcaster creates a broadcaster publishing under prefix.
func NewBroadcaster(pub coremqtt.Publisher, prefix string, log logger.Logger) *Broadcaster {
	return &Broadcaster{pub: pub, topics: coremqtt.Topics{Prefix: prefix}, log: logger.OrNop(log)}
}

// Run forwards events until ctx is done or the bus is closed.
func (b *Broadcaster) Run(ctx context.Context, bus eventbus.EventBus) {
	defer monitoring.Recover()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := b.Handle(ev); err != nil {
				b.log.Warnf("mqtt broadcast: %v", err)
			}
		}
	}
}

type safetyAlert struct {
	VehicleID  string `json:"vehicle_id"`
	IncidentID string `json:"incident_id"`
	TripID     string `json:"trip_id,omitempty"`
	Previous   string `json:"previous_status"`
}

// Handle publishes one event. Unknown events are ignored.
func (b *Broadcaster) Handle(ev eventbus.Event) error {
	var errs []error
	switch e := ev.(type) {
	case events.TelemetryEvent:
		for _, v := range e.Vehicles {
			errs = append(errs, b.publish("telemetry", b.topics.Telemetry(v.ID), true, v))
		}
	case events.CommitEvent:
		for _, entry := range e.Entries {
			errs = append(errs, b.publish("audit", b.topics.Audit(entry.Action.String()), false, entry))
		}
	case events.SafetyOverrideEvent:
		alert := safetyAlert{VehicleID: e.VehicleID, IncidentID: e.IncidentID, TripID: e.TripID, Previous: e.Previous.String()}
		errs = append(errs, b.publish("alert", b.topics.SafetyAlert(), false, alert))
	}
	return errors.Join(errs...)
}

func (b *Broadcaster) publish(kind, topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.pub.Publish(kind, topic, retained, payload)
}

// IncidentReporter is the coordinator command used by the listener.
type IncidentReporter interface {
	ReportIncident(actor string, in dispatch.IncidentInput) (string, error)
}

// IncidentListener turns incident reports published by vehicles into
// coordinator commands. The vehicle id is taken from the topic.
type IncidentListener struct {
	reporter IncidentReporter
	topics   coremqtt.Topics
	log      logger.Logger
}

// NewIncidentListener creates a listener for reports under prefix.
func NewIncidentListener(r IncidentReporter, prefix string, log logger.Logger) *IncidentListener {
	return &IncidentListener{reporter: r, topics: coremqtt.Topics{Prefix: prefix}, log: logger.OrNop(log)}
}

// Subscribe registers the listener on sub.
func (l *IncidentListener) Subscribe(sub coremqtt.Subscriber) error {
	return sub.Subscribe("alert", l.topics.IncidentReports(), l.onReport)
}

func (l *IncidentListener) onReport(topic string, payload []byte) {
	vehicleID, ok := l.topics.VehicleFromTopic(topic)
	if !ok {
		l.log.Warnf("incident report on unexpected topic %s", topic)
		return
	}
	var in dispatch.IncidentInput
	if err := json.Unmarshal(payload, &in); err != nil {
		l.log.Errorf("failed to decode incident report: %v", err)
		return
	}
	in.VehicleID = vehicleID
	actor := "vehicle:" + vehicleID
	if in.DriverID != "" {
		actor = "driver:" + in.DriverID
	}
	id, err := l.reporter.ReportIncident(actor, in)
	if err != nil {
		l.log.Warnf("incident report from %s refused: %v", vehicleID, err)
		return
	}
	l.log.Infof("incident %s reported by %s", id, actor)
}
