// Package kvstore provides the snapshot persisters used for checkpoints.
package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/fleetdispatch/core/store"
)

// Config selects and configures the persister.
type Config struct {
	// Backend is "none", "sqlite" or "redis".
	Backend           string `json:"backend"`
	Path              string `json:"path"`
	RedisAddr         string `json:"redis_addr"`
	RedisPassword     string `json:"redis_password"`
	RedisDB           int    `json:"redis_db"`
	RedisKey          string `json:"redis_key"`
	CheckpointSeconds int    `json:"checkpoint_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "fleet.db"
	}
	if c.CheckpointSeconds <= 0 {
		c.CheckpointSeconds = 30
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "none", "sqlite":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required")
		}
	default:
		return fmt.Errorf("unknown store backend %s", c.Backend)
	}
	return nil
}

// Interval is the checkpoint period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.CheckpointSeconds) * time.Second
}

// New opens the configured persister. Backend "none" returns nil.
func New(ctx context.Context, c Config) (store.Persister, error) {
	switch c.Backend {
	case "", "none":
		return nil, nil
	case "sqlite":
		return NewSQLitePersister(c.Path)
	case "redis":
		return DialRedis(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB, c.RedisKey)
	}
	return nil, fmt.Errorf("unknown store backend %s", c.Backend)
}
