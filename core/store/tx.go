package store

import "github.com/kilianp07/fleetdispatch/core/model"

// table overlays staged writes on an immutable base map.
type table[T any] struct {
	base  map[string]T
	dirty map[string]T
}

func (t *table[T]) get(id string) (T, bool) {
	if v, ok := t.dirty[id]; ok {
		return v, true
	}
	v, ok := t.base[id]
	return v, ok
}

func (t *table[T]) put(id string, v T) {
	if t.dirty == nil {
		t.dirty = make(map[string]T)
	}
	t.dirty[id] = v
}

func (t *table[T]) each(fn func(T)) {
	for id, v := range t.base {
		if _, ok := t.dirty[id]; !ok {
			fn(v)
		}
	}
	for _, v := range t.dirty {
		fn(v)
	}
}

// merged returns the base itself when nothing was staged so untouched maps
// are shared between snapshots.
func (t *table[T]) merged() map[string]T {
	if len(t.dirty) == 0 {
		return t.base
	}
	out := make(map[string]T, len(t.base)+len(t.dirty))
	for id, v := range t.base {
		out[id] = v
	}
	for id, v := range t.dirty {
		out[id] = v
	}
	return out
}

// Tx stages writes over a snapshot. Reads see the staged values. A Tx is
// not safe for concurrent use and is discarded by simply dropping it.
type Tx struct {
	base      *Snapshot
	vehicles  table[model.Vehicle]
	drivers   table[model.Driver]
	trips     table[model.Trip]
	incidents table[model.Incident]
	requests  table[model.IncomingRequest]
}

func newTx(base *Snapshot) *Tx {
	return &Tx{
		base:      base,
		vehicles:  table[model.Vehicle]{base: base.vehicles},
		drivers:   table[model.Driver]{base: base.drivers},
		trips:     table[model.Trip]{base: base.trips},
		incidents: table[model.Incident]{base: base.incidents},
		requests:  table[model.IncomingRequest]{base: base.requests},
	}
}

// Base is the snapshot the transaction started from.
func (tx *Tx) Base() *Snapshot { return tx.base }

// Dirty reports whether anything was staged.
func (tx *Tx) Dirty() bool {
	return len(tx.vehicles.dirty)+len(tx.drivers.dirty)+len(tx.trips.dirty)+
		len(tx.incidents.dirty)+len(tx.requests.dirty) > 0
}

func (tx *Tx) Vehicle(id string) (model.Vehicle, bool)         { return tx.vehicles.get(id) }
func (tx *Tx) Driver(id string) (model.Driver, bool)           { return tx.drivers.get(id) }
func (tx *Tx) Trip(id string) (model.Trip, bool)               { return tx.trips.get(id) }
func (tx *Tx) Incident(id string) (model.Incident, bool)       { return tx.incidents.get(id) }
func (tx *Tx) Request(id string) (model.IncomingRequest, bool) { return tx.requests.get(id) }

func (tx *Tx) PutVehicle(v model.Vehicle)         { tx.vehicles.put(v.ID, v) }
func (tx *Tx) PutDriver(d model.Driver)           { tx.drivers.put(d.ID, d) }
func (tx *Tx) PutTrip(t model.Trip)               { tx.trips.put(t.ID, t) }
func (tx *Tx) PutIncident(i model.Incident)       { tx.incidents.put(i.ID, i) }
func (tx *Tx) PutRequest(r model.IncomingRequest) { tx.requests.put(r.ID, r) }

// ActiveTrips returns the staged view of trips holding the given vehicle or
// driver. Empty ids are ignored.
func (tx *Tx) ActiveTrips(vehicleID, driverID string) []model.Trip {
	var out []model.Trip
	tx.trips.each(func(t model.Trip) {
		if !t.Status.Active() {
			return
		}
		if (vehicleID != "" && t.VehicleID == vehicleID) || (driverID != "" && t.DriverID == driverID) {
			out = append(out, t)
		}
	})
	return out
}

// BlockingIncidents returns unresolved CRITICAL incidents for the vehicle.
func (tx *Tx) BlockingIncidents(vehicleID string) []model.Incident {
	var out []model.Incident
	tx.incidents.each(func(i model.Incident) {
		if i.VehicleID == vehicleID && i.Blocking() {
			out = append(out, i)
		}
	})
	return out
}

func (tx *Tx) apply() *Snapshot {
	return &Snapshot{
		version:   tx.base.version + 1,
		vehicles:  tx.vehicles.merged(),
		drivers:   tx.drivers.merged(),
		trips:     tx.trips.merged(),
		incidents: tx.incidents.merged(),
		requests:  tx.requests.merged(),
	}
}
