package telemetry

import (
	"fmt"
	"time"
)

// Config holds the simulator settings.
type Config struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
	// Seed makes runs reproducible. Zero seeds from the clock.
	Seed uint64 `json:"seed"`
	// StationaryProbability is the chance an ACTIVE vehicle stands still
	// during a tick. Unset means DefaultStationaryProbability; 0 is kept.
	StationaryProbability *float64 `json:"stationary_probability"`
	ActiveSpeedMin        float64  `json:"active_speed_min"`
	ActiveSpeedMax        float64  `json:"active_speed_max"`
	MissionSpeedMin       float64  `json:"mission_speed_min"`
	MissionSpeedMax       float64  `json:"mission_speed_max"`
	// MaxPositionDelta bounds the move on each axis per tick.
	MaxPositionDelta float64 `json:"max_position_delta"`
	// ETAStepMinutes is removed from the ETA of vehicles on mission each tick.
	ETAStepMinutes float64 `json:"eta_step_minutes"`
}

// DefaultStationaryProbability applies when stationary_probability is unset.
const DefaultStationaryProbability = 0.3

// Probability returns a pointer to p, for StationaryProbability literals.
func Probability(p float64) *float64 { return &p }

// Stationary returns the effective stationary probability.
func (c Config) Stationary() float64 {
	if c.StationaryProbability == nil {
		return DefaultStationaryProbability
	}
	return *c.StationaryProbability
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 3
	}
	if c.StationaryProbability == nil {
		c.StationaryProbability = Probability(DefaultStationaryProbability)
	}
	if c.ActiveSpeedMax == 0 {
		c.ActiveSpeedMin, c.ActiveSpeedMax = 5, 40
	}
	if c.MissionSpeedMax == 0 {
		c.MissionSpeedMin, c.MissionSpeedMax = 30, 80
	}
	if c.MaxPositionDelta == 0 {
		c.MaxPositionDelta = 1.5
	}
	if c.ETAStepMinutes == 0 {
		c.ETAStepMinutes = 0.05
	}
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be positive")
	}
	if p := c.Stationary(); p < 0 || p > 1 {
		return fmt.Errorf("stationary_probability %.2f out of range 0-1", p)
	}
	if c.ActiveSpeedMin < 0 || c.ActiveSpeedMin > c.ActiveSpeedMax {
		return fmt.Errorf("invalid active speed range %.1f-%.1f", c.ActiveSpeedMin, c.ActiveSpeedMax)
	}
	if c.MissionSpeedMin < 0 || c.MissionSpeedMin > c.MissionSpeedMax {
		return fmt.Errorf("invalid mission speed range %.1f-%.1f", c.MissionSpeedMin, c.MissionSpeedMax)
	}
	if c.MaxPositionDelta < 0 {
		return fmt.Errorf("max_position_delta must not be negative")
	}
	if c.ETAStepMinutes <= 0 {
		return fmt.Errorf("eta_step_minutes must be positive")
	}
	return nil
}

// Interval is the tick period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
