package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/kilianp07/fleetdispatch/core/events"
	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/monitoring"
	"github.com/kilianp07/fleetdispatch/core/store"
	"github.com/kilianp07/fleetdispatch/internal/eventbus"
)

// ErrTickInProgress is returned when Tick is called while another tick runs.
var ErrTickInProgress = errors.New("telemetry: tick already in progress")

// Updater is the mutation path of the dispatch coordinator.
type Updater interface {
	Snapshot() *store.Snapshot
	UpdateTelemetry(vehicleID string, step func(model.Vehicle) model.Vehicle) (model.Vehicle, bool, error)
}

// Simulator advances vehicle telemetry one tick at a time through the
// coordinator. It owns the generator state.
type Simulator struct {
	cfg     Config
	updater Updater
	clock   clockz.Clock
	log     logger.Logger
	bus     eventbus.EventBus
	sink    metrics.MetricsSink

	running atomic.Bool
	mu      sync.Mutex
	rng     RNG
	tick    uint64
}

// Option customises a Simulator.
type Option func(*Simulator)

func WithClock(c clockz.Clock) Option          { return func(s *Simulator) { s.clock = c } }
func WithLogger(l logger.Logger) Option        { return func(s *Simulator) { s.log = logger.OrNop(l) } }
func WithBus(b eventbus.EventBus) Option       { return func(s *Simulator) { s.bus = b } }
func WithMetrics(m metrics.MetricsSink) Option { return func(s *Simulator) { s.sink = m } }

// NewSimulator creates a simulator driving u.
func NewSimulator(cfg Config, u Updater, opts ...Option) (*Simulator, error) {
	if u == nil {
		return nil, fmt.Errorf("telemetry: updater is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("telemetry config: %w", err)
	}
	s := &Simulator{
		cfg:     cfg,
		updater: u,
		clock:   clockz.RealClock,
		log:     logger.NopLogger{},
		sink:    metrics.NopSink{},
	}
	for _, o := range opts {
		o(s)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(s.clock.Now().UnixNano())
	}
	s.rng = NewRNG(seed)
	return s, nil
}

// Tick updates every moving vehicle once, in id order, and returns the
// updated records. Calls never overlap: a concurrent call fails with
// ErrTickInProgress.
func (s *Simulator) Tick(ctx context.Context) ([]model.Vehicle, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrTickInProgress
	}
	defer s.running.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.tick++
	var updated []model.Vehicle
	var errs []error
	for _, v := range s.updater.Snapshot().Vehicles(store.VehicleFilter{}) {
		if !v.Moving() {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		next, applied, err := s.updater.UpdateTelemetry(v.ID, func(cur model.Vehicle) model.Vehicle {
			var out model.Vehicle
			out, s.rng = Step(cur, s.rng, s.cfg)
			return out
		})
		if err != nil {
			updateFailures.Inc()
			errs = append(errs, fmt.Errorf("vehicle %s: %w", v.ID, err))
			continue
		}
		if applied {
			updated = append(updated, next)
		}
	}
	d := time.Since(start)
	now := s.clock.Now()

	ticksTotal.Inc()
	tickLatency.Observe(d.Seconds())
	vehiclesUpdated.Set(float64(len(updated)))
	s.record(updated, d, now)
	if s.bus != nil && len(updated) > 0 {
		s.bus.Publish(events.TelemetryEvent{Tick: s.tick, At: now, Vehicles: updated})
	}
	return updated, errors.Join(errs...)
}

func (s *Simulator) record(updated []model.Vehicle, d time.Duration, now time.Time) {
	if rec, ok := s.sink.(metrics.TelemetryRecorder); ok {
		ev := metrics.TelemetryTickEvent{Tick: s.tick, Vehicles: len(updated), Duration: d, Time: now}
		if err := rec.RecordTelemetryTick(ev); err != nil {
			s.log.Warnf("record tick metrics: %v", err)
		}
	}
	if rec, ok := s.sink.(metrics.VehicleStateRecorder); ok {
		for _, v := range updated {
			ev := metrics.VehicleStateEvent{Vehicle: v, Context: "tick", Component: "telemetry", Time: now}
			if err := rec.RecordVehicleState(ev); err != nil {
				s.log.Warnf("record vehicle state: %v", err)
				break
			}
		}
	}
}

// Run ticks every configured interval until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	defer monitoring.Recover()
	interval := s.cfg.Interval()
	s.log.Infof("telemetry simulator started, interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Infof("telemetry simulator stopped")
			return
		case <-s.clock.After(interval):
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.log.Errorf("telemetry tick: %v", err)
				monitoring.CaptureException(err, map[string]string{"module": "telemetry"})
			}
		}
	}
}

// Ticks returns how many ticks ran.
func (s *Simulator) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}
