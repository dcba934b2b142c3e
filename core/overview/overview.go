// Package overview computes fleet KPIs from a snapshot.
package overview

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/store"
)

// Overview summarises one snapshot.
type Overview struct {
	Version         uint64         `json:"version"`
	Vehicles        map[string]int `json:"vehicles"`
	Drivers         map[string]int `json:"drivers"`
	Trips           map[string]int `json:"trips"`
	PendingRequests int            `json:"pending_requests"`
	OpenIncidents   int            `json:"open_incidents"`
	// Utilisation is the share of drivable vehicles currently on a mission.
	Utilisation     float64  `json:"utilisation"`
	FuelMean        float64  `json:"fuel_mean"`
	FuelStdDev      float64  `json:"fuel_stddev"`
	LowFuel         []string `json:"low_fuel,omitempty"`
	StandbyMean     float64  `json:"standby_mean_minutes"`
	TripMedianMin   float64  `json:"trip_median_minutes"`
	CompletionRatio float64  `json:"completion_ratio"`
}

// Compute builds the overview of snap. Vehicles whose fuel is under
// lowFuel are listed.
func Compute(snap *store.Snapshot, lowFuel float64) Overview {
	o := Overview{
		Version:  snap.Version(),
		Vehicles: map[string]int{},
		Drivers:  map[string]int{},
		Trips:    map[string]int{},
	}

	vehicles := snap.Vehicles(store.VehicleFilter{})
	var fuel, standby []float64
	var drivable, onMission int
	for _, v := range vehicles {
		o.Vehicles[v.Status.String()]++
		fuel = append(fuel, v.Fuel)
		if v.Fuel < lowFuel {
			o.LowFuel = append(o.LowFuel, v.ID)
		}
		if v.Moving() {
			drivable++
		}
		switch v.Status {
		case model.VehicleOnMission:
			onMission++
		case model.VehicleActive:
			standby = append(standby, v.StandbyMinutes)
		}
	}
	if len(fuel) > 0 {
		o.FuelMean, o.FuelStdDev = stat.MeanStdDev(fuel, nil)
		if len(fuel) == 1 {
			o.FuelStdDev = 0
		}
	}
	if len(standby) > 0 {
		o.StandbyMean = stat.Mean(standby, nil)
	}
	if drivable > 0 {
		o.Utilisation = float64(onMission) / float64(drivable)
	}

	for _, d := range snap.Drivers(store.DriverFilter{}) {
		o.Drivers[d.Status.String()]++
	}

	var durations []float64
	var completed, closed int
	for _, t := range snap.Trips(store.TripFilter{}) {
		o.Trips[t.Status.String()]++
		if !t.Status.Terminal() {
			continue
		}
		closed++
		if t.Status == model.TripCompleted {
			completed++
			if !t.ClosedAt.IsZero() {
				durations = append(durations, t.ClosedAt.Sub(t.CreatedAt).Minutes())
			}
		}
	}
	if len(durations) > 0 {
		sort.Float64s(durations)
		o.TripMedianMin = stat.Quantile(0.5, stat.Empirical, durations, nil)
	}
	if closed > 0 {
		o.CompletionRatio = float64(completed) / float64(closed)
	}

	o.PendingRequests = len(snap.PendingRequests())
	o.OpenIncidents = len(snap.Incidents(store.IncidentFilter{Unresolved: true}))
	return o
}

// Age reports how long ago the oldest pending request arrived.
func Age(snap *store.Snapshot, now time.Time) time.Duration {
	var oldest time.Time
	for _, r := range snap.PendingRequests() {
		if oldest.IsZero() || r.ReceivedAt.Before(oldest) {
			oldest = r.ReceivedAt
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return now.Sub(oldest)
}
