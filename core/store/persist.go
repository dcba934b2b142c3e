package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/monitoring"
)

// Persister saves and restores whole snapshots. Implementations live in
// infra/kvstore.
type Persister interface {
	Save(ctx context.Context, d Data) error
	// Load returns false when nothing was saved yet.
	Load(ctx context.Context) (Data, bool, error)
	Close() error
}

// Checkpointer writes the latest snapshot to a Persister whenever its
// version moved since the previous save. Saving happens outside any writer
// critical section: it only reads published snapshots.
type Checkpointer struct {
	store    *Store
	p        Persister
	interval time.Duration
	clock    clockz.Clock
	log      logger.Logger
	source   func() Data
	saved    uint64
	hasSaved bool
	auditSeq uint64
}

// NewCheckpointer builds a checkpointer saving every interval.
func NewCheckpointer(s *Store, p Persister, interval time.Duration, clock clockz.Clock, log logger.Logger) *Checkpointer {
	if clock == nil {
		clock = clockz.RealClock
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &Checkpointer{store: s, p: p, interval: interval, clock: clock, log: logger.OrNop(log)}
	c.source = func() Data { return s.Snapshot().Data() }
	return c
}

// SetSource replaces the function producing the saved Data. The writer
// uses it to stamp checkpoints with the audit sequence they reflect.
func (c *Checkpointer) SetSource(f func() Data) {
	if f != nil {
		c.source = f
	}
}

// AuditSeq returns the audit sequence stamped on the restored snapshot.
func (c *Checkpointer) AuditSeq() uint64 { return c.auditSeq }

// Restore loads the persisted snapshot into the store, if any. A snapshot
// breaking the cross-record invariants is refused and the store is left
// untouched.
func (c *Checkpointer) Restore(ctx context.Context) (bool, error) {
	d, ok, err := c.p.Load(ctx)
	if err != nil || !ok {
		return false, err
	}
	snap, err := fromData(d)
	if err != nil {
		return false, err
	}
	if err := snap.CheckConsistency(); err != nil {
		return false, fmt.Errorf("inconsistent snapshot version %d: %w", d.Version, err)
	}
	c.store.cur.Store(snap)
	c.saved, c.hasSaved, c.auditSeq = d.Version, true, d.AuditSeq
	c.log.Infof("restored snapshot version %d", d.Version)
	return true, nil
}

// Flush saves the current snapshot when it changed.
func (c *Checkpointer) Flush(ctx context.Context) error {
	snap := c.store.Snapshot()
	if c.hasSaved && snap.Version() == c.saved {
		return nil
	}
	d := c.source()
	if err := c.p.Save(ctx, d); err != nil {
		return err
	}
	c.saved, c.hasSaved = d.Version, true
	c.log.Debugf("checkpoint saved at version %d, audit seq %d", d.Version, d.AuditSeq)
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (c *Checkpointer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.Flush(final); err != nil {
				c.log.Errorf("final checkpoint failed: %v", err)
				monitoring.CaptureException(err, map[string]string{"component": "checkpoint"})
			}
			cancel()
			return
		case <-c.clock.After(c.interval):
			if err := c.Flush(ctx); err != nil {
				c.log.Errorf("checkpoint failed: %v", err)
				monitoring.CaptureException(err, map[string]string{"component": "checkpoint"})
			}
		}
	}
}
