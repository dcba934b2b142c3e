// Package audit implements the append-only, hash-chained audit ledger and
// the sinks that mirror it to durable storage.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// ErrStaleBatch is returned when a batch was staged against a tail that is
// no longer the ledger's tail.
var ErrStaleBatch = errors.New("audit: batch staged against an old tail")

// Record is the input for one ledger entry.
type Record struct {
	ActorID  string
	Action   model.AuditAction
	Kind     model.EntityKind
	EntityID string
	Details  string
	Severity model.Severity
	// Previous and Current are optional value snapshots, stored as JSON.
	Previous any
	Current  any
}

// Observer is notified after entries are appended, in ledger order. It is
// called with the ledger's write path held and must not block.
type Observer interface {
	Observe(entries []model.AuditEntry)
}

// Ledger is the in-memory audit chain. Appends are expected to be
// serialised by the caller; reads may run concurrently.
type Ledger struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
	// anchor is the persisted entry the in-memory chain continues from
	// after Resume; zero for a chain that starts here.
	anchor    model.AuditEntry
	clock     clockz.Clock
	newID     func() string
	observers []Observer
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source used for entry timestamps.
func WithClock(c clockz.Clock) Option { return func(l *Ledger) { l.clock = c } }

// WithIDGenerator replaces uuid based entry ids.
func WithIDGenerator(f func() string) Option { return func(l *Ledger) { l.newID = f } }

// WithObserver registers an observer for appended entries.
func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observers = append(l.observers, o) }
}

// NewLedger returns an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{clock: clockz.RealClock, newID: uuid.NewString}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Batch holds entries staged against a known tail. It is appended as a
// whole or dropped.
type Batch struct {
	tail    string
	entries []model.AuditEntry
}

// Entries returns the staged entries.
func (b *Batch) Entries() []model.AuditEntry { return b.entries }

// Stage builds hashed entries for recs without appending them. Marshalling
// errors surface here, before the caller commits anything else.
func (l *Ledger) Stage(recs ...Record) (*Batch, error) {
	l.mu.RLock()
	prev := l.tailLocked()
	l.mu.RUnlock()

	b := &Batch{tail: prev.Hash}
	for _, r := range recs {
		e := model.AuditEntry{
			ID:         l.newID(),
			Seq:        prev.Seq + 1,
			Timestamp:  nextTimestamp(l.clock.Now(), prev.Timestamp),
			ActorID:    r.ActorID,
			Action:     r.Action,
			EntityKind: r.Kind,
			EntityID:   r.EntityID,
			Details:    r.Details,
			Severity:   r.Severity,
			PrevHash:   prev.Hash,
		}
		var err error
		if e.Previous, err = rawJSON(r.Previous); err != nil {
			return nil, fmt.Errorf("audit: previous value of %s: %w", r.EntityID, err)
		}
		if e.Current, err = rawJSON(r.Current); err != nil {
			return nil, fmt.Errorf("audit: current value of %s: %w", r.EntityID, err)
		}
		if e.Hash, err = Hash(e); err != nil {
			return nil, err
		}
		b.entries = append(b.entries, e)
		prev = e
	}
	return b, nil
}

// Append adds a staged batch to the chain and notifies observers.
func (l *Ledger) Append(b *Batch) error {
	l.mu.Lock()
	if l.tailLocked().Hash != b.tail {
		l.mu.Unlock()
		return ErrStaleBatch
	}
	l.entries = append(l.entries, b.entries...)
	l.mu.Unlock()
	for _, o := range l.observers {
		o.Observe(b.entries)
	}
	return nil
}

// Record stages and appends in one step.
func (l *Ledger) Record(recs ...Record) ([]model.AuditEntry, error) {
	b, err := l.Stage(recs...)
	if err != nil {
		return nil, err
	}
	if err := l.Append(b); err != nil {
		return nil, err
	}
	return b.entries, nil
}

// Restore replaces the content with a previously exported chain after
// verifying it. Observers are not notified.
func (l *Ledger) Restore(entries []model.AuditEntry) error {
	if err := VerifyChain(entries); err != nil {
		return err
	}
	l.mu.Lock()
	l.entries = append([]model.AuditEntry(nil), entries...)
	l.anchor = model.AuditEntry{}
	l.mu.Unlock()
	return nil
}

// Resume continues the chain after tail, the last entry of a persisted
// chain, without loading its history. The next entry gets tail.Seq+1 and
// links to tail.Hash. It only applies to an empty ledger.
func (l *Ledger) Resume(tail model.AuditEntry) error {
	h, err := Hash(tail)
	if err != nil {
		return err
	}
	if tail.Seq == 0 || h != tail.Hash {
		return fmt.Errorf("audit: resume from entry %s: hash mismatch", tail.ID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) > 0 {
		return fmt.Errorf("audit: resume on a ledger holding %d entries", len(l.entries))
	}
	l.anchor = tail
	return nil
}

// Len returns the number of entries held in memory. After Resume it does
// not count the persisted history.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Tail returns the last entry, the resume anchor when nothing was appended
// since, zero when empty.
func (l *Ledger) Tail() model.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tailLocked()
}

// Entries returns a copy of the whole chain.
func (l *Ledger) Entries() []model.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.AuditEntry(nil), l.entries...)
}

// Query returns matching entries in ledger order.
func (l *Ledger) Query(f Filter) []model.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []model.AuditEntry
	for _, e := range l.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return f.limit(out)
}

// Verify checks the in-memory chain, linked to the resume anchor if any.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return verifyFrom(l.anchor, l.entries)
}

func (l *Ledger) tailLocked() model.AuditEntry {
	if len(l.entries) == 0 {
		return l.anchor
	}
	return l.entries[len(l.entries)-1]
}

// nextTimestamp keeps timestamps strictly increasing even when the clock
// stalls or steps back.
func nextTimestamp(now, last time.Time) time.Time {
	now = now.UTC()
	if !last.IsZero() && !now.After(last) {
		return last.Add(time.Nanosecond)
	}
	return now
}

func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Hash computes the chain hash of e: SHA-256 over its JSON form with the
// Hash field cleared.
func Hash(e model.AuditEntry) (string, error) {
	e.Hash = ""
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("audit: hash entry %s: %w", e.ID, err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain checks sequence numbers, hash links, entry hashes and
// timestamp ordering of an exported chain.
func VerifyChain(entries []model.AuditEntry) error {
	return verifyFrom(model.AuditEntry{}, entries)
}

func verifyFrom(prev model.AuditEntry, entries []model.AuditEntry) error {
	for i, e := range entries {
		if e.Seq != prev.Seq+1 {
			return fmt.Errorf("audit: entry %d: sequence %d follows %d", i, e.Seq, prev.Seq)
		}
		if e.PrevHash != prev.Hash {
			return fmt.Errorf("audit: entry %d (%s): broken link", i, e.ID)
		}
		if !prev.Timestamp.IsZero() && !e.Timestamp.After(prev.Timestamp) {
			return fmt.Errorf("audit: entry %d (%s): timestamp not increasing", i, e.ID)
		}
		h, err := Hash(e)
		if err != nil {
			return err
		}
		if h != e.Hash {
			return fmt.Errorf("audit: entry %d (%s): hash mismatch", i, e.ID)
		}
		prev = e
	}
	return nil
}
