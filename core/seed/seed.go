// Package seed loads the initial fleet from a YAML or JSON file.
package seed

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/store"
)

//go:embed demo.yaml
var demoFleet []byte

type VehicleDef struct {
	ID       string              `yaml:"id" json:"id"`
	Label    string              `yaml:"label,omitempty" json:"label,omitempty"`
	Status   model.VehicleStatus `yaml:"status" json:"status"`
	X        float64             `yaml:"x" json:"x"`
	Y        float64             `yaml:"y" json:"y"`
	Fuel     float64             `yaml:"fuel" json:"fuel"`
	DriverID string              `yaml:"driver_id,omitempty" json:"driver_id,omitempty"`
}

func (v VehicleDef) ToModel() model.Vehicle {
	st := v.Status
	if st == 0 {
		st = model.VehicleActive
	}
	return model.Vehicle{
		ID:       v.ID,
		Label:    v.Label,
		Status:   st,
		Position: model.Position{X: v.X, Y: v.Y},
		Fuel:     v.Fuel,
		DriverID: v.DriverID,
	}
}

type DriverDef struct {
	ID        string             `yaml:"id" json:"id"`
	Name      string             `yaml:"name" json:"name"`
	Status    model.DriverStatus `yaml:"status" json:"status"`
	VehicleID string             `yaml:"vehicle_id,omitempty" json:"vehicle_id,omitempty"`
}

func (d DriverDef) ToModel() model.Driver {
	st := d.Status
	if st == 0 {
		st = model.DriverOffline
	}
	return model.Driver{ID: d.ID, Name: d.Name, Status: st, VehicleID: d.VehicleID}
}

type RequestDef struct {
	ID                   string          `yaml:"id" json:"id"`
	Passenger            model.Passenger `yaml:"passenger" json:"passenger"`
	Pickup               model.Location  `yaml:"pickup" json:"pickup"`
	Dropoff              model.Location  `yaml:"dropoff" json:"dropoff"`
	Priority             model.Priority  `yaml:"priority" json:"priority"`
	EstimatedDurationMin float64         `yaml:"estimated_duration_min" json:"estimated_duration_min"`
}

// ToModel returns a PENDING request received at now.
func (r RequestDef) ToModel(now time.Time) model.IncomingRequest {
	p := r.Priority
	if p == 0 {
		p = model.PriorityStandard
	}
	return model.IncomingRequest{
		ID:                   r.ID,
		Passenger:            r.Passenger,
		Pickup:               r.Pickup,
		Dropoff:              r.Dropoff,
		Priority:             p,
		EstimatedDurationMin: r.EstimatedDurationMin,
		Status:               model.RequestPending,
		ReceivedAt:           now,
	}
}

// Fleet is the content of a seed file. Trips and incidents are never
// seeded: they only come into being through the coordinator.
type Fleet struct {
	Name     string       `yaml:"name" json:"name"`
	Vehicles []VehicleDef `yaml:"vehicles" json:"vehicles"`
	Drivers  []DriverDef  `yaml:"drivers" json:"drivers"`
	Requests []RequestDef `yaml:"requests,omitempty" json:"requests,omitempty"`
}

// Data converts the fleet to store records and checks them.
func (f Fleet) Data(now time.Time) (store.Data, error) {
	var d store.Data
	for _, v := range f.Vehicles {
		d.Vehicles = append(d.Vehicles, v.ToModel())
	}
	for _, dr := range f.Drivers {
		d.Drivers = append(d.Drivers, dr.ToModel())
	}
	for _, r := range f.Requests {
		if r.ID == "" {
			return store.Data{}, fmt.Errorf("request without id")
		}
		d.Requests = append(d.Requests, r.ToModel(now))
	}
	if err := Check(d); err != nil {
		return store.Data{}, err
	}
	return d, nil
}

// Check builds a throwaway store from d and verifies the cross-record
// invariants: with no trips, nothing may be ON_MISSION or BUSY.
func Check(d store.Data) error {
	s, err := store.New(d)
	if err != nil {
		return err
	}
	return s.Snapshot().CheckConsistency()
}

// Parse decodes a seed document. JSON is used when format is "json", YAML
// otherwise.
func Parse(b []byte, format string) (Fleet, error) {
	var f Fleet
	var err error
	if format == "json" {
		err = json.Unmarshal(b, &f)
	} else {
		err = yaml.Unmarshal(b, &f)
	}
	if err != nil {
		return Fleet{}, fmt.Errorf("decode seed: %w", err)
	}
	return f, nil
}

// LoadFile reads a seed file. The format follows the extension.
func LoadFile(path string) (Fleet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Fleet{}, err
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return Parse(b, format)
}

// Demo returns the built-in demo fleet.
func Demo() Fleet {
	f, err := Parse(demoFleet, "yaml")
	if err != nil {
		panic(err)
	}
	return f
}

// Load returns the store records for path, or for the demo fleet when path
// is empty.
func Load(path string, now time.Time) (store.Data, error) {
	f := Demo()
	if path != "" {
		var err error
		if f, err = LoadFile(path); err != nil {
			return store.Data{}, err
		}
	}
	return f.Data(now)
}
