package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/monitoring"
)

// Sink persists ledger entries outside the process.
type Sink interface {
	Write(ctx context.Context, entries []model.AuditEntry) error
	Close() error
}

// QueryableSink can read entries back, e.g. to restore the ledger.
type QueryableSink interface {
	Sink
	Query(ctx context.Context, f Filter) ([]model.AuditEntry, error)
}

type mirrorItem struct {
	entries []model.AuditEntry
	flushed chan struct{}
}

// Mirror forwards appended entries to sinks from its own goroutine, keeping
// ledger order. Observe never blocks, so the writer critical section does
// no I/O.
type Mirror struct {
	sinks   []Sink
	log     logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []mirrorItem
	closed bool
	done   chan struct{}
}

// NewMirror starts a mirror over sinks.
func NewMirror(log logger.Logger, sinks ...Sink) *Mirror {
	m := &Mirror{sinks: sinks, log: logger.OrNop(log), timeout: 5 * time.Second, done: make(chan struct{})}
	m.cond = sync.NewCond(&m.mu)
	go m.run()
	return m
}

// Observe implements Observer.
func (m *Mirror) Observe(entries []model.AuditEntry) {
	m.push(mirrorItem{entries: entries})
}

func (m *Mirror) push(it mirrorItem) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, it)
	m.cond.Signal()
	return true
}

// Flush waits until everything observed so far reached the sinks.
func (m *Mirror) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	if !m.push(mirrorItem{flushed: ch}) {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and closes every sink.
func (m *Mirror) Close() error {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
	<-m.done
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func (m *Mirror) run() {
	defer close(m.done)
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		it := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		if it.flushed != nil {
			close(it.flushed)
			continue
		}
		m.write(it.entries)
	}
}

func (m *Mirror) write(entries []model.AuditEntry) {
	for _, s := range m.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err := s.Write(ctx, entries)
		cancel()
		if err != nil {
			m.log.Errorf("audit sink write failed (%d entries from seq %d): %v", len(entries), entries[0].Seq, err)
			monitoring.CaptureException(err, map[string]string{"component": "audit_mirror"})
		}
	}
}
