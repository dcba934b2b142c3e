package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/fleetdispatch/core/store"
)

// DefaultRedisKey is the key holding the snapshot.
const DefaultRedisKey = "fleetdispatch:snapshot"

// RedisPersister keeps the latest snapshot under a single Redis key, with
// its version mirrored in a companion key for cheap inspection.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister wraps an existing client.
func NewRedisPersister(client *redis.Client, key string) *RedisPersister {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisPersister{client: client, key: key}
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr, password string, db int, key string) (*RedisPersister, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisPersister(client, key), nil
}

func (r *RedisPersister) versionKey() string { return r.key + ":version" }

// Save writes the snapshot and its version in one transaction.
func (r *RedisPersister) Save(ctx context.Context, d store.Data) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key, b, 0)
	pipe.Set(ctx, r.versionKey(), d.Version, 0)
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns the stored snapshot, false when the key is absent.
func (r *RedisPersister) Load(ctx context.Context) (store.Data, bool, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Data{}, false, nil
	}
	if err != nil {
		return store.Data{}, false, err
	}
	var d store.Data
	if err := json.Unmarshal(b, &d); err != nil {
		return store.Data{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return d, true, nil
}

// Close closes the client.
func (r *RedisPersister) Close() error { return r.client.Close() }
