package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	fleetapi "github.com/kilianp07/fleetdispatch/api/fleet"
	"github.com/kilianp07/fleetdispatch/config"
	"github.com/kilianp07/fleetdispatch/core/audit"
	"github.com/kilianp07/fleetdispatch/core/dispatch"
	coremetrics "github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/monitoring"
	"github.com/kilianp07/fleetdispatch/core/seed"
	"github.com/kilianp07/fleetdispatch/core/store"
	"github.com/kilianp07/fleetdispatch/core/telemetry"
	"github.com/kilianp07/fleetdispatch/infra/kvstore"
	"github.com/kilianp07/fleetdispatch/infra/logger"
	"github.com/kilianp07/fleetdispatch/infra/metrics"
	"github.com/kilianp07/fleetdispatch/infra/mqtt"
	"github.com/kilianp07/fleetdispatch/internal/eventbus"

	_ "github.com/kilianp07/fleetdispatch/infra/kafka"
)

// Service wires the coordinator with its stores, simulator and outer
// surfaces.
type Service struct {
	Coordinator *dispatch.Coordinator
	Simulator   *telemetry.Simulator

	cfg          *config.Config
	bus          *eventbus.Bus
	mirror       *audit.Mirror
	sink         coremetrics.MetricsSink
	persister    store.Persister
	checkpointer *store.Checkpointer
	mqtt         *mqtt.PahoClient
	handler      http.Handler
	log          logger.Logger
}

// New creates a Service from the configuration. The store is restored from
// the configured persister when it holds a snapshot, otherwise seeded.
func New(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	s := &Service{cfg: cfg, bus: eventbus.New(), log: logger.New("service")}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	st := store.NewEmpty()
	restored := false
	if s.persister, err = kvstore.New(ctx, cfg.Store); err != nil {
		return nil, fmt.Errorf("store backend: %w", err)
	}
	if s.persister != nil {
		s.checkpointer = store.NewCheckpointer(st, s.persister, cfg.Store.Interval(), nil, logger.New("checkpoint"))
		if restored, err = s.checkpointer.Restore(ctx); err != nil {
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
	}
	if !restored {
		data, err := seed.Load(cfg.SeedFile, time.Now())
		if err != nil {
			return nil, fmt.Errorf("seed fleet: %w", err)
		}
		if err := st.Replace(data); err != nil {
			return nil, fmt.Errorf("seed fleet: %w", err)
		}
		s.log.Infof("seeded %d vehicles and %d drivers", len(data.Vehicles), len(data.Drivers))
	}

	sinks, err := audit.NewSinks(cfg.Audit.Sinks)
	if err != nil {
		return nil, err
	}
	s.mirror = audit.NewMirror(logger.New("audit"), sinks...)
	led := audit.NewLedger(audit.WithObserver(s.mirror))
	durable, err := s.openLedger(ctx, led, sinks, restored && cfg.Audit.Restore)
	if err != nil {
		return nil, err
	}
	if restored && durable {
		if gap := auditGap(led.Tail().Seq, s.checkpointer.AuditSeq()); gap != nil {
			s.log.Warnf("%v", gap)
			monitoring.CaptureException(gap, map[string]string{"component": "restore"})
		}
	}

	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	s.Coordinator, err = dispatch.New(st, led,
		dispatch.WithConfig(cfg.Dispatch),
		dispatch.WithLogger(logger.New("dispatch")),
		dispatch.WithMetrics(s.sink),
		dispatch.WithBus(s.bus),
	)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	if s.checkpointer != nil {
		s.checkpointer.SetSource(s.Coordinator.Checkpoint)
	}

	if cfg.Telemetry.Enabled {
		s.Simulator, err = telemetry.NewSimulator(cfg.Telemetry, s.Coordinator,
			telemetry.WithLogger(logger.New("telemetry")),
			telemetry.WithBus(s.bus),
			telemetry.WithMetrics(s.sink),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry simulator: %w", err)
		}
	}

	if cfg.MQTT.Enabled {
		if s.mqtt, err = mqtt.NewPahoClient(cfg.MQTT); err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
	}

	s.handler = fleetapi.NewRouter(s.Coordinator, fleetapi.Options{
		Token:   cfg.HTTP.Token,
		LowFuel: cfg.HTTP.LowFuelPercent,
		Logger:  logger.New("api"),
	})
	return s, nil
}

// openLedger continues the chain held by the first queryable sink so that
// a restart never starts a second chain in durable storage. With full set
// the whole history is loaded and verified; otherwise only the tail is read.
// It reports whether a queryable sink was found.
func (s *Service) openLedger(ctx context.Context, led *audit.Ledger, sinks []audit.Sink, full bool) (bool, error) {
	for _, sk := range sinks {
		q, ok := sk.(audit.QueryableSink)
		if !ok {
			continue
		}
		if full {
			entries, err := q.Query(ctx, audit.Filter{})
			if err != nil {
				return true, fmt.Errorf("read audit sink: %w", err)
			}
			if err := led.Restore(entries); err != nil {
				return true, fmt.Errorf("restore ledger: %w", err)
			}
			s.log.Infof("restored %d audit entries", led.Len())
			return true, nil
		}
		tail, err := q.Query(ctx, audit.Filter{Limit: 1})
		if err != nil {
			return true, fmt.Errorf("read audit sink: %w", err)
		}
		if len(tail) == 0 {
			return true, nil
		}
		if err := led.Resume(tail[0]); err != nil {
			return true, fmt.Errorf("resume ledger: %w", err)
		}
		s.log.Infof("audit chain continues after seq %d", tail[0].Seq)
		return true, nil
	}
	if full {
		return false, errors.New("audit restore requested but no queryable sink is configured")
	}
	return false, nil
}

// auditGap reports a restored snapshot that does not match the audit chain.
// Checkpoints are periodic, so after a crash the chain may record commands
// the snapshot lost; an async mirror may also lag behind the snapshot.
func auditGap(ledgerSeq, snapshotSeq uint64) error {
	switch {
	case ledgerSeq > snapshotSeq:
		return fmt.Errorf("restored snapshot reflects audit seq %d but the chain reaches %d: %d entries describe changes that were lost",
			snapshotSeq, ledgerSeq, ledgerSeq-snapshotSeq)
	case ledgerSeq < snapshotSeq:
		return fmt.Errorf("restored snapshot reflects audit seq %d but the chain stops at %d: audit sink is missing entries",
			snapshotSeq, ledgerSeq)
	}
	return nil
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler { return s.handler }

func (s *Service) promEnabled() bool {
	if s.cfg.Metrics.PrometheusPort == "" {
		return false
	}
	for _, m := range s.cfg.Metrics.Sinks {
		if m.Type == "prometheus" {
			return true
		}
	}
	return false
}

// Run starts the background loops and the HTTP server, and blocks until
// the context is cancelled. Background loops have stopped when it returns.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	metrics.StartEventCollector(ctx, s.bus, s.sink, nil)
	if s.Simulator != nil {
		monitoring.Go(&wg, "telemetry", func() { s.Simulator.Run(ctx) })
	}
	if s.checkpointer != nil {
		monitoring.Go(&wg, "checkpoint", func() { s.checkpointer.Run(ctx) })
	}
	if s.promEnabled() {
		monitoring.Go(&wg, "prometheus", func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort, nil); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		})
	}
	if s.mqtt != nil {
		b := mqtt.NewBroadcaster(s.mqtt, s.cfg.MQTT.TopicPrefix, logger.New("mqtt"))
		monitoring.Go(&wg, "mqtt", func() { b.Run(ctx, s.bus) })
		l := mqtt.NewIncidentListener(s.Coordinator, s.cfg.MQTT.TopicPrefix, logger.New("mqtt"))
		if err := l.Subscribe(s.mqtt); err != nil {
			s.log.Errorf("mqtt incident listener: %v", err)
		}
	}

	srv := &http.Server{Addr: s.cfg.HTTP.Address, Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	monitoring.Go(&wg, "http", func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("http shutdown: %v", err)
		}
	})
	s.log.Infof("api listening on %s", s.cfg.HTTP.Address)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	cancel()
	wg.Wait()
	return err
}

// Close releases resources held by the service. The audit mirror is
// drained before its sinks close.
func (s *Service) Close() error {
	var errs []error
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if s.mirror != nil {
		errs = append(errs, s.mirror.Close())
	}
	if s.persister != nil {
		errs = append(errs, s.persister.Close())
	}
	coremetrics.Close(s.sink)
	s.bus.Close()
	return errors.Join(errs...)
}
