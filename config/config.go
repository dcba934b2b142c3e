package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/fleetdispatch/core/dispatch"
	"github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/telemetry"
	"github.com/kilianp07/fleetdispatch/infra/kvstore"
	"github.com/kilianp07/fleetdispatch/infra/mqtt"
)

type Config struct {
	// SeedFile is the initial fleet; empty loads the demo fleet.
	SeedFile  string           `json:"seed_file"`
	Telemetry telemetry.Config `json:"telemetry"`
	Dispatch  dispatch.Config  `json:"dispatch"`
	Audit     AuditConfig      `json:"audit"`
	Store     kvstore.Config   `json:"store"`
	Metrics   metrics.Config   `json:"metrics"`
	MQTT      mqtt.Config      `json:"mqtt"`
	HTTP      HTTPConfig       `json:"http"`
	Sentry    SentryConfig     `json:"sentry"`
}

// Load reads path (yaml or json) then applies K_ environment overrides,
// e.g. K_HTTP__ADDRESS. An empty path loads the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if !k.Exists("telemetry.enabled") {
		cfg.Telemetry.Enabled = true
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Telemetry.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Audit.SetDefaults()
	c.Store.SetDefaults()
	c.HTTP.SetDefaults()
	c.MQTT.SetDefaults()
	c.Sentry.SetDefaults()
	if len(c.Metrics.Sinks) == 0 {
		c.Metrics.Sinks = append(c.Metrics.Sinks, defaultMetricsSink())
	}
}

// Validate checks every section and names the failing one.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"telemetry", c.Telemetry.Validate},
		{"dispatch", c.Dispatch.Validate},
		{"audit", c.Audit.Validate},
		{"store", c.Store.Validate},
		{"http", c.HTTP.Validate},
		{"mqtt", c.MQTT.Validate},
		{"sentry", c.Sentry.Validate},
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.name, err)
		}
	}
	return nil
}
