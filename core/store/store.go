// Package store holds the current fleet records.
//
// Readers get an immutable *Snapshot through Store.Snapshot and never take a
// lock. Writers stage changes in a Tx and publish them with Commit, which
// swaps the snapshot pointer. The store knows nothing about transitions;
// serialising writers is the caller's job.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// ErrStaleTx is returned when a Tx is committed over a snapshot other than
// the one it started from.
var ErrStaleTx = errors.New("store: transaction based on stale snapshot")

// Data is the plain, serialisable form of a snapshot.
type Data struct {
	Version   uint64                  `json:"version" yaml:"version"`
	Vehicles  []model.Vehicle         `json:"vehicles" yaml:"vehicles"`
	Drivers   []model.Driver          `json:"drivers" yaml:"drivers"`
	Trips     []model.Trip            `json:"trips,omitempty" yaml:"trips"`
	Incidents []model.Incident        `json:"incidents,omitempty" yaml:"incidents"`
	Requests  []model.IncomingRequest `json:"requests,omitempty" yaml:"requests"`
	// AuditSeq is the last audit sequence number reflected by the records.
	// Set on checkpoints only.
	AuditSeq uint64 `json:"audit_seq,omitempty" yaml:"-"`
}

// Store publishes snapshots.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// New builds a store from d after checking every record.
func New(d Data) (*Store, error) {
	snap, err := fromData(d)
	if err != nil {
		return nil, err
	}
	s := &Store{}
	s.cur.Store(snap)
	return s, nil
}

// NewEmpty returns a store without records.
func NewEmpty() *Store {
	s, _ := New(Data{})
	return s
}

// Snapshot returns the latest committed snapshot.
func (s *Store) Snapshot() *Snapshot { return s.cur.Load() }

// Begin starts a transaction on the latest snapshot.
func (s *Store) Begin() *Tx { return newTx(s.cur.Load()) }

// Commit publishes the staged changes of tx. A tx without changes is a
// no-op and keeps the current version.
func (s *Store) Commit(tx *Tx) (*Snapshot, error) {
	base := tx.base
	if !tx.Dirty() {
		return base, nil
	}
	next := tx.apply()
	if !s.cur.CompareAndSwap(base, next) {
		return nil, ErrStaleTx
	}
	return next, nil
}

// Rollback puts base back when next is still the published snapshot. It
// undoes a commit whose companion step failed and reports whether it did.
func (s *Store) Rollback(next, base *Snapshot) bool {
	return s.cur.CompareAndSwap(next, base)
}

// Replace swaps the whole content, used when restoring a checkpoint.
func (s *Store) Replace(d Data) error {
	snap, err := fromData(d)
	if err != nil {
		return err
	}
	s.cur.Store(snap)
	return nil
}

func fromData(d Data) (*Snapshot, error) {
	snap := &Snapshot{
		version:   d.Version,
		vehicles:  make(map[string]model.Vehicle, len(d.Vehicles)),
		drivers:   make(map[string]model.Driver, len(d.Drivers)),
		trips:     make(map[string]model.Trip, len(d.Trips)),
		incidents: make(map[string]model.Incident, len(d.Incidents)),
		requests:  make(map[string]model.IncomingRequest, len(d.Requests)),
	}
	for _, v := range d.Vehicles {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if err := insert(snap.vehicles, v.ID, v, model.KindVehicle); err != nil {
			return nil, err
		}
	}
	for _, dr := range d.Drivers {
		if err := dr.Validate(); err != nil {
			return nil, err
		}
		if err := insert(snap.drivers, dr.ID, dr, model.KindDriver); err != nil {
			return nil, err
		}
	}
	for _, t := range d.Trips {
		if t.ID == "" || t.Status == 0 {
			return nil, fmt.Errorf("trip %q: id and status are required", t.ID)
		}
		if err := insert(snap.trips, t.ID, t, model.KindTrip); err != nil {
			return nil, err
		}
	}
	for _, i := range d.Incidents {
		if i.ID == "" || i.Status == 0 || i.Severity == 0 {
			return nil, fmt.Errorf("incident %q: id, status and severity are required", i.ID)
		}
		if err := insert(snap.incidents, i.ID, i, model.KindIncident); err != nil {
			return nil, err
		}
	}
	for _, r := range d.Requests {
		if r.ID == "" || r.Status == 0 {
			return nil, fmt.Errorf("request %q: id and status are required", r.ID)
		}
		if err := insert(snap.requests, r.ID, r, model.KindRequest); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func insert[T any](m map[string]T, id string, v T, kind model.EntityKind) error {
	if _, ok := m[id]; ok {
		return fmt.Errorf("duplicate %s id %q", kind, id)
	}
	m[id] = v
	return nil
}

func sortedValues[T any](m map[string]T, keep func(T) bool) []T {
	ids := make([]string, 0, len(m))
	for id, v := range m {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}
