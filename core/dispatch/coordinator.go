package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/kilianp07/fleetdispatch/core/audit"
	"github.com/kilianp07/fleetdispatch/core/events"
	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/monitoring"
	"github.com/kilianp07/fleetdispatch/core/store"
	"github.com/kilianp07/fleetdispatch/internal/eventbus"
)

// Actors used by automated callers.
const (
	ActorTelemetry    = "system:telemetry"
	ActorAutoDispatch = "system:auto-dispatch"
)

// Coordinator is the single writer of the fleet. Every command runs under
// one exclusive section: it stages entity changes in a store transaction,
// stages the audit records, then publishes both or neither.
type Coordinator struct {
	mu          sync.Mutex
	store       *store.Store
	ledger      *audit.Ledger
	cfg         Config
	clock       clockz.Clock
	newID       func() string
	logger      logger.Logger
	metrics     metrics.MetricsSink
	bus         eventbus.EventBus
	recommender Recommender
	// appendBatch publishes staged audit entries; ledger.Append outside tests.
	appendBatch func(*audit.Batch) error
}

// Option customises a Coordinator.
type Option func(*Coordinator)

func WithConfig(cfg Config) Option             { return func(c *Coordinator) { c.cfg = cfg } }
func WithClock(clock clockz.Clock) Option      { return func(c *Coordinator) { c.clock = clock } }
func WithIDGenerator(f func() string) Option   { return func(c *Coordinator) { c.newID = f } }
func WithLogger(l logger.Logger) Option        { return func(c *Coordinator) { c.logger = logger.OrNop(l) } }
func WithMetrics(m metrics.MetricsSink) Option { return func(c *Coordinator) { c.metrics = m } }
func WithBus(bus eventbus.EventBus) Option     { return func(c *Coordinator) { c.bus = bus } }
func WithRecommender(r Recommender) Option     { return func(c *Coordinator) { c.recommender = r } }

// New creates a coordinator owning st and led.
func New(st *store.Store, led *audit.Ledger, opts ...Option) (*Coordinator, error) {
	if st == nil || led == nil {
		return nil, fmt.Errorf("dispatch: store and ledger are required")
	}
	c := &Coordinator{
		store:   st,
		ledger:  led,
		clock:   clockz.RealClock,
		newID:   uuid.NewString,
		logger:  logger.NopLogger{},
		metrics: metrics.NopSink{},
	}
	c.appendBatch = led.Append
	for _, o := range opts {
		o(c)
	}
	c.cfg.SetDefaults()
	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dispatch config: %w", err)
	}
	if c.recommender == nil {
		r, err := NewRecommender(c.cfg.Recommender, c.cfg.MinFuelLevel)
		if err != nil {
			return nil, err
		}
		c.recommender = r
	}
	return c, nil
}

// Snapshot returns the latest committed state. It never blocks.
func (c *Coordinator) Snapshot() *store.Snapshot { return c.store.Snapshot() }

// Checkpoint returns the current state stamped with the last audit
// sequence number it reflects. It waits for a running command so that both
// come from the same point.
func (c *Coordinator) Checkpoint() store.Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.store.Snapshot().Data()
	d.AuditSeq = c.ledger.Tail().Seq
	return d
}

// Ledger exposes the audit ledger for read access.
func (c *Coordinator) Ledger() *audit.Ledger { return c.ledger }

// op collects the staged effects of one command.
type op struct {
	name    string
	actor   string
	now     time.Time
	tx      *store.Tx
	records []audit.Record
	events  []any
}

func (o *op) record(r audit.Record) {
	r.ActorID = o.actor
	o.records = append(o.records, r)
}

func (o *op) publish(ev any) { o.events = append(o.events, ev) }

// run executes fn as one atomic command and reports its outcome.
func (c *Coordinator) run(name, actor string, fn func(*op) error) error {
	start := time.Now()
	entries, err := c.execute(name, actor, fn)
	c.observe(name, actor, entries, err, time.Since(start))
	return err
}

func (c *Coordinator) execute(name, actor string, fn func(*op) error) ([]model.AuditEntry, error) {
	if actor == "" {
		return nil, model.InvalidInput("actor id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	o := &op{name: name, actor: actor, now: c.clock.Now().UTC(), tx: c.store.Begin()}
	if err := fn(o); err != nil {
		return nil, err
	}
	if len(o.records) == 0 {
		return nil, fmt.Errorf("%s: no audit record staged", name)
	}
	batch, err := c.ledger.Stage(o.records...)
	if err != nil {
		return nil, fmt.Errorf("%s: stage audit: %w", name, err)
	}
	next, err := c.store.Commit(o.tx)
	if err != nil {
		return nil, fmt.Errorf("%s: commit: %w", name, err)
	}
	if err := c.appendBatch(batch); err != nil {
		if !c.store.Rollback(next, o.tx.Base()) {
			c.logger.Errorf("%s: rollback lost a race after audit failure", name)
		}
		return nil, fmt.Errorf("%s: append audit: %w", name, err)
	}
	entries := batch.Entries()
	if c.bus != nil {
		c.bus.Publish(events.CommitEvent{Operation: name, ActorID: actor, Version: next.Version(), Entries: entries})
		for _, ev := range o.events {
			c.bus.Publish(ev)
		}
	}
	return entries, nil
}

func (c *Coordinator) observe(name, actor string, entries []model.AuditEntry, err error, d time.Duration) {
	outcome := Outcome(err)
	operationsTotal.WithLabelValues(name, outcome).Inc()
	operationLatency.WithLabelValues(name).Observe(d.Seconds())
	for _, e := range entries {
		auditEntriesTotal.WithLabelValues(e.Action.String()).Inc()
	}

	ev := metrics.OperationEvent{Operation: name, ActorID: actor, Outcome: outcome, Entries: len(entries), Duration: d, Time: c.clock.Now()}
	if merr := c.metrics.RecordOperation(ev); merr != nil {
		c.logger.Warnf("record operation metrics: %v", merr)
	}

	switch outcome {
	case metrics.OutcomeOK:
		c.logger.Infof("%s by %s committed %d audit entries", name, actor, len(entries))
		if rec, ok := c.metrics.(metrics.AuditRecorder); ok {
			if merr := rec.RecordAuditEntries(entries); merr != nil {
				c.logger.Warnf("record audit metrics: %v", merr)
			}
		}
		if rec, ok := c.metrics.(metrics.FleetStatusRecorder); ok {
			if merr := rec.RecordFleetStatus(FleetStatus(c.store.Snapshot(), c.clock.Now())); merr != nil {
				c.logger.Warnf("record fleet metrics: %v", merr)
			}
		}
	case metrics.OutcomeError:
		c.logger.Errorf("%s by %s failed: %v", name, actor, err)
		monitoring.CaptureException(err, map[string]string{"module": "dispatch", "operation": name})
	default:
		c.logger.Debugf("%s by %s rejected: %v", name, actor, err)
	}
}

// Outcome maps an operation error to its metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, model.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, model.ErrIllegalTransition):
		return metrics.OutcomeIllegal
	case errors.Is(err, model.ErrResourceUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, model.ErrAlreadyResolved):
		return metrics.OutcomeAlreadyResolved
	case errors.Is(err, model.ErrInvalidInput):
		return metrics.OutcomeInvalid
	}
	return metrics.OutcomeError
}

// FleetStatus counts the records of snap per status.
func FleetStatus(snap *store.Snapshot, at time.Time) metrics.FleetStatusEvent {
	ev := metrics.FleetStatusEvent{
		Vehicles: make(map[model.VehicleStatus]int, len(model.VehicleStatuses)),
		Drivers:  make(map[model.DriverStatus]int, len(model.DriverStatuses)),
		Time:     at,
	}
	for _, s := range model.VehicleStatuses {
		ev.Vehicles[s] = 0
	}
	for _, s := range model.DriverStatuses {
		ev.Drivers[s] = 0
	}
	for _, v := range snap.Vehicles(store.VehicleFilter{}) {
		ev.Vehicles[v.Status]++
	}
	for _, d := range snap.Drivers(store.DriverFilter{}) {
		ev.Drivers[d.Status]++
	}
	ev.ActiveTrips = len(snap.Trips(store.TripFilter{ActiveOnly: true}))
	ev.PendingRequests = len(snap.PendingRequests())
	ev.OpenIncidents = len(snap.Incidents(store.IncidentFilter{Unresolved: true}))
	return ev
}

func (o *op) vehicle(id string) (model.Vehicle, error) {
	v, ok := o.tx.Vehicle(id)
	if !ok {
		return v, &model.NotFoundError{Kind: model.KindVehicle, ID: id}
	}
	return v, nil
}

func (o *op) driver(id string) (model.Driver, error) {
	d, ok := o.tx.Driver(id)
	if !ok {
		return d, &model.NotFoundError{Kind: model.KindDriver, ID: id}
	}
	return d, nil
}

func (o *op) trip(id string) (model.Trip, error) {
	t, ok := o.tx.Trip(id)
	if !ok {
		return t, &model.NotFoundError{Kind: model.KindTrip, ID: id}
	}
	return t, nil
}

func (o *op) incident(id string) (model.Incident, error) {
	i, ok := o.tx.Incident(id)
	if !ok {
		return i, &model.NotFoundError{Kind: model.KindIncident, ID: id}
	}
	return i, nil
}

func (o *op) request(id string) (model.IncomingRequest, error) {
	r, ok := o.tx.Request(id)
	if !ok {
		return r, &model.NotFoundError{Kind: model.KindRequest, ID: id}
	}
	return r, nil
}
