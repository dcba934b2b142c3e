package audit

import (
	"fmt"

	"github.com/kilianp07/fleetdispatch/core/factory"
)

var sinkRegistry = factory.NewRegistry[Sink]()

// RegisterSink adds an audit sink factory identified by name.
func RegisterSink(name string, f factory.Factory[Sink]) error {
	return sinkRegistry.Register(name, f)
}

// FileConfig configures the file based sinks.
type FileConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// NewSinks creates one sink per configuration. Sinks created before a
// failure are closed.
func NewSinks(cfgs []factory.ModuleConfig) ([]Sink, error) {
	sinks := make([]Sink, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			for _, done := range sinks {
				_ = done.Close()
			}
			return nil, fmt.Errorf("audit sink %s: %w", c.Type, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func decodeFile(conf map[string]any) (FileConfig, error) {
	var c FileConfig
	if err := factory.Decode(conf, &c); err != nil {
		return c, err
	}
	if c.Path == "" {
		return c, fmt.Errorf("path is required")
	}
	return c, nil
}

// init registers the built-in sinks.
func init() {
	_ = RegisterSink("jsonl", func(conf map[string]any) (Sink, error) {
		c, err := decodeFile(conf)
		if err != nil {
			return nil, err
		}
		return NewJSONLSink(c.Path)
	})
	_ = RegisterSink("rotating", func(conf map[string]any) (Sink, error) {
		c, err := decodeFile(conf)
		if err != nil {
			return nil, err
		}
		if c.MaxSizeMB <= 0 {
			c.MaxSizeMB = 50
		}
		return NewRotatingJSONLSink(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	_ = RegisterSink("sqlite", func(conf map[string]any) (Sink, error) {
		c, err := decodeFile(conf)
		if err != nil {
			return nil, err
		}
		return NewSQLiteSink(c.Path)
	})
}
