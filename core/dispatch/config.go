package dispatch

import (
	"fmt"

	"github.com/kilianp07/fleetdispatch/core/factory"
)

// Config defines dispatch-related settings.
type Config struct {
	// DefaultETAMinutes is used when a trip carries no estimated duration.
	DefaultETAMinutes float64 `json:"default_eta_minutes"`
	// MinFuelLevel is the admission threshold for new assignments.
	MinFuelLevel float64 `json:"min_fuel_level"`
	// Recommender selects the auto-dispatch strategy.
	Recommender factory.ModuleConfig `json:"recommender"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.DefaultETAMinutes <= 0 {
		c.DefaultETAMinutes = 15
	}
	if c.Recommender.Type == "" {
		c.Recommender.Type = "nearest"
	}
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	if c.DefaultETAMinutes <= 0 {
		return fmt.Errorf("default_eta_minutes must be positive")
	}
	if c.MinFuelLevel < 0 || c.MinFuelLevel > 100 {
		return fmt.Errorf("min_fuel_level %.1f out of range 0-100", c.MinFuelLevel)
	}
	return nil
}
