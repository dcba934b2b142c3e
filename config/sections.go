package config

import (
	"fmt"

	"github.com/kilianp07/fleetdispatch/core/factory"
)

// AuditConfig lists the sinks mirroring the ledger.
type AuditConfig struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// Restore reloads the ledger from the first queryable sink at startup
	// when a snapshot was restored.
	Restore bool `json:"restore"`
}

// SetDefaults applies sane defaults.
func (c *AuditConfig) SetDefaults() {}

// Validate checks mandatory fields.
func (c AuditConfig) Validate() error {
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("sink %d: type is required", i)
		}
	}
	return nil
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Address string `json:"address"`
	// Token enables bearer authentication when set.
	Token          string  `json:"token"`
	LowFuelPercent float64 `json:"low_fuel_percent"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.LowFuelPercent <= 0 {
		c.LowFuelPercent = 20
	}
}

// Validate checks mandatory fields.
func (c HTTPConfig) Validate() error {
	if c.LowFuelPercent > 100 {
		return fmt.Errorf("low_fuel_percent %.1f out of range", c.LowFuelPercent)
	}
	return nil
}

func defaultMetricsSink() factory.ModuleConfig {
	return factory.ModuleConfig{Type: "nop"}
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Release          string  `json:"release"`
}

func (c *SentryConfig) SetDefaults() {
	if c.Environment == "" {
		c.Environment = "production"
	}
}

func (c SentryConfig) Validate() error {
	if c.TracesSampleRate < 0 || c.TracesSampleRate > 1 {
		return fmt.Errorf("traces_sample_rate %.2f not in [0,1]", c.TracesSampleRate)
	}
	return nil
}
