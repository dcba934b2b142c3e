package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/core/model"
)

func testData() Data {
	return Data{
		Vehicles: []model.Vehicle{
			{ID: "v2", Status: model.VehicleActive, Fuel: 80},
			{ID: "v1", Status: model.VehicleMaintenance, Fuel: 40},
		},
		Drivers: []model.Driver{
			{ID: "d1", Status: model.DriverOnline},
			{ID: "d2", Status: model.DriverOffline},
		},
		Requests: []model.IncomingRequest{
			{ID: "req-1", Status: model.RequestPending},
			{ID: "req-2", Status: model.RequestRejected},
		},
	}
}

func TestNewRejectsDuplicatesAndInvalid(t *testing.T) {
	d := testData()
	d.Vehicles = append(d.Vehicles, model.Vehicle{ID: "v1", Status: model.VehicleActive})
	_, err := New(d)
	assert.Error(t, err)

	d = testData()
	d.Vehicles[0].Fuel = 150
	_, err = New(d)
	assert.Error(t, err)
}

func TestSnapshotQueriesAreSorted(t *testing.T) {
	s, err := New(testData())
	require.NoError(t, err)
	snap := s.Snapshot()

	vs := snap.Vehicles(VehicleFilter{})
	require.Len(t, vs, 2)
	assert.Equal(t, "v1", vs[0].ID)

	active := snap.Vehicles(VehicleFilter{Status: model.VehicleActive})
	require.Len(t, active, 1)
	assert.Equal(t, "v2", active[0].ID)

	pending := snap.PendingRequests()
	require.Len(t, pending, 1)
	assert.Equal(t, "req-1", pending[0].ID)
	assert.Len(t, snap.Requests(0), 2)
}

func TestTxIsolationAndCommit(t *testing.T) {
	s, err := New(testData())
	require.NoError(t, err)
	before := s.Snapshot()

	tx := s.Begin()
	v, ok := tx.Vehicle("v2")
	require.True(t, ok)
	v.Status = model.VehicleOnMission
	tx.PutVehicle(v)
	tx.PutTrip(model.Trip{ID: "t1", Status: model.TripDispatched, VehicleID: "v2", DriverID: "d1"})

	staged, _ := tx.Vehicle("v2")
	assert.Equal(t, model.VehicleOnMission, staged.Status)
	published, _ := s.Snapshot().Vehicle("v2")
	assert.Equal(t, model.VehicleActive, published.Status, "staged writes must stay invisible")
	assert.Len(t, tx.ActiveTrips("v2", ""), 1)

	after, err := s.Commit(tx)
	require.NoError(t, err)
	assert.Equal(t, before.Version()+1, after.Version())
	got, _ := s.Snapshot().Vehicle("v2")
	assert.Equal(t, model.VehicleOnMission, got.Status)

	old, _ := before.Vehicle("v2")
	assert.Equal(t, model.VehicleActive, old.Status, "published snapshots are immutable")
}

func TestDroppedTxLeavesNoTrace(t *testing.T) {
	s, err := New(testData())
	require.NoError(t, err)
	tx := s.Begin()
	tx.PutDriver(model.Driver{ID: "d1", Status: model.DriverBusy})
	d, _ := s.Snapshot().Driver("d1")
	assert.Equal(t, model.DriverOnline, d.Status)
}

func TestCommitRejectsStaleTx(t *testing.T) {
	s, err := New(testData())
	require.NoError(t, err)
	a := s.Begin()
	b := s.Begin()
	a.PutDriver(model.Driver{ID: "d2", Status: model.DriverOnline})
	b.PutDriver(model.Driver{ID: "d2", Status: model.DriverOnLeave})
	_, err = s.Commit(a)
	require.NoError(t, err)
	_, err = s.Commit(b)
	assert.True(t, errors.Is(err, ErrStaleTx))
}

func TestRollbackRestoresBase(t *testing.T) {
	s, err := New(testData())
	require.NoError(t, err)
	tx := s.Begin()
	tx.PutDriver(model.Driver{ID: "d2", Status: model.DriverOnline})
	next, err := s.Commit(tx)
	require.NoError(t, err)

	assert.True(t, s.Rollback(next, tx.Base()))
	assert.Same(t, tx.Base(), s.Snapshot())
	d, _ := s.Snapshot().Driver("d2")
	assert.Equal(t, model.DriverOffline, d.Status)
	assert.False(t, s.Rollback(next, tx.Base()), "next is no longer published")
}

func TestEmptyCommitKeepsVersion(t *testing.T) {
	s := NewEmpty()
	snap, err := s.Commit(s.Begin())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), snap.Version())
}

func TestConcurrentReadersDuringCommits(t *testing.T) {
	s, err := New(testData())
	require.NoError(t, err)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					snap := s.Snapshot()
					_ = snap.Vehicles(VehicleFilter{})
					_ = snap.Data()
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		tx := s.Begin()
		v, _ := tx.Vehicle("v2")
		v.Speed = float64(i)
		tx.PutVehicle(v)
		_, err := s.Commit(tx)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, uint64(200), s.Snapshot().Version())
}

func TestCheckConsistency(t *testing.T) {
	d := testData()
	d.Vehicles[0].Status = model.VehicleOnMission
	s, err := New(d)
	require.NoError(t, err)
	assert.Error(t, s.Snapshot().CheckConsistency(), "on mission without a trip")

	d.Drivers[0].Status = model.DriverBusy
	d.Trips = []model.Trip{{ID: "t1", Status: model.TripInProgress, VehicleID: "v2", DriverID: "d1"}}
	s, err = New(d)
	require.NoError(t, err)
	assert.NoError(t, s.Snapshot().CheckConsistency())

	d.Vehicles[0].Status = model.VehicleOutOfService
	s, err = New(d)
	require.NoError(t, err)
	assert.NoError(t, s.Snapshot().CheckConsistency(), "a lockout may hold an active trip")
}

type memPersister struct {
	data  Data
	saved bool
	saves int
}

func (m *memPersister) Save(_ context.Context, d Data) error {
	m.data, m.saved = d, true
	m.saves++
	return nil
}

func (m *memPersister) Load(context.Context) (Data, bool, error) { return m.data, m.saved, nil }
func (m *memPersister) Close() error                             { return nil }

func TestCheckpointerFlushAndRestore(t *testing.T) {
	s, err := New(testData())
	require.NoError(t, err)
	p := &memPersister{}
	c := NewCheckpointer(s, p, 0, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.Flush(ctx))
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 1, p.saves, "unchanged snapshot is not saved twice")

	tx := s.Begin()
	tx.PutDriver(model.Driver{ID: "d3", Status: model.DriverOnline})
	_, err = s.Commit(tx)
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 2, p.saves)

	fresh := NewEmpty()
	ok, err := NewCheckpointer(fresh, p, 0, nil, nil).Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_, found := fresh.Snapshot().Driver("d3")
	assert.True(t, found)
	assert.Equal(t, uint64(1), fresh.Snapshot().Version())
}

func TestCheckpointerRefusesInconsistentSnapshot(t *testing.T) {
	d := testData()
	d.Vehicles[0].Status = model.VehicleOnMission
	p := &memPersister{data: d, saved: true}

	st := NewEmpty()
	before := st.Snapshot()
	ok, err := NewCheckpointer(st, p, 0, nil, nil).Restore(context.Background())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "inconsistent snapshot")
	assert.Same(t, before, st.Snapshot(), "store untouched")
}

func TestCheckpointerStampsAuditSeq(t *testing.T) {
	s, err := New(testData())
	require.NoError(t, err)
	p := &memPersister{}
	c := NewCheckpointer(s, p, 0, nil, nil)
	c.SetSource(func() Data {
		d := s.Snapshot().Data()
		d.AuditSeq = 42
		return d
	})
	ctx := context.Background()
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, uint64(42), p.data.AuditSeq)

	restored := NewCheckpointer(NewEmpty(), p, 0, nil, nil)
	ok, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(42), restored.AuditSeq())
}
