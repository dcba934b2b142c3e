package dispatch

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/fleetdispatch/core/factory"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/store"
)

// Suggestion is a proposed vehicle and driver pair for a trip. It carries no
// authority: the coordinator re-checks admission when applying it.
type Suggestion struct {
	VehicleID string  `json:"vehicle_id"`
	DriverID  string  `json:"driver_id"`
	Distance  float64 `json:"distance"`
	Reason    string  `json:"reason,omitempty"`
}

// Recommender proposes resources for a SCHEDULED trip from a read-only
// snapshot. Implementations may call external services.
type Recommender interface {
	Recommend(ctx context.Context, trip model.Trip, snap *store.Snapshot) (Suggestion, error)
}

// RecommenderFunc adapts a function to the Recommender interface.
type RecommenderFunc func(ctx context.Context, trip model.Trip, snap *store.Snapshot) (Suggestion, error)

func (f RecommenderFunc) Recommend(ctx context.Context, trip model.Trip, snap *store.Snapshot) (Suggestion, error) {
	return f(ctx, trip, snap)
}

// NearestRecommender picks the available vehicle closest to the pickup and
// prefers the driver already paired with it.
type NearestRecommender struct {
	MinFuel float64
}

// Recommend implements Recommender.
func (r NearestRecommender) Recommend(ctx context.Context, trip model.Trip, snap *store.Snapshot) (Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return Suggestion{}, err
	}
	var candidates []model.Vehicle
	for _, v := range snap.Vehicles(store.VehicleFilter{Status: model.VehicleActive}) {
		if v.Fuel >= r.MinFuel {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return Suggestion{}, &model.UnavailableError{Kind: model.KindVehicle, ID: "*", Status: "no available vehicle"}
	}
	drivers := snap.Drivers(store.DriverFilter{Status: model.DriverOnline})
	if len(drivers) == 0 {
		return Suggestion{}, &model.UnavailableError{Kind: model.KindDriver, ID: "*", Status: "no online driver"}
	}

	pickup := []float64{trip.Pickup.Position.X, trip.Pickup.Position.Y}
	dist := make([]float64, len(candidates))
	for i, v := range candidates {
		dist[i] = floats.Distance([]float64{v.Position.X, v.Position.Y}, pickup, 2)
	}
	best := candidates[floats.MinIdx(dist)]

	s := Suggestion{VehicleID: best.ID, Distance: floats.Min(dist)}
	for _, d := range drivers {
		if d.ID == best.DriverID || d.VehicleID == best.ID {
			s.DriverID = d.ID
			s.Reason = "nearest vehicle with its paired driver"
			return s, nil
		}
	}
	for _, d := range drivers {
		if d.VehicleID == "" {
			s.DriverID = d.ID
			s.Reason = "nearest vehicle with an unpaired driver"
			return s, nil
		}
	}
	s.DriverID = drivers[0].ID
	s.Reason = "nearest vehicle"
	return s, nil
}

var recommenderRegistry = factory.NewRegistry[Recommender]()

// RegisterRecommender adds a recommender factory identified by name.
func RegisterRecommender(name string, f factory.Factory[Recommender]) error {
	return recommenderRegistry.Register(name, f)
}

// NewRecommender creates the configured recommender. minFuel is passed to
// factories that do not set their own threshold.
func NewRecommender(cfg factory.ModuleConfig, minFuel float64) (Recommender, error) {
	conf := map[string]any{"min_fuel": minFuel}
	for k, v := range cfg.Conf {
		conf[k] = v
	}
	r, err := recommenderRegistry.Create(factory.ModuleConfig{Type: cfg.Type, Conf: conf})
	if err != nil {
		return nil, fmt.Errorf("recommender %s: %w", cfg.Type, err)
	}
	return r, nil
}

func init() {
	_ = RegisterRecommender("nearest", func(conf map[string]any) (Recommender, error) {
		var c struct {
			MinFuel float64 `json:"min_fuel"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NearestRecommender{MinFuel: c.MinFuel}, nil
	})
}
