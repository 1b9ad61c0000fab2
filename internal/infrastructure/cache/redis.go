// Package cache stores baseline snapshots in Redis so repeated analyses of
// the same dataset skip the baseline computation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/adpulse/adpulse/internal/application"
)

const keyPrefix = "adpulse:baseline:"

// RedisCache implements the pipeline's snapshot cache on Redis.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", addr).Msg("Redis baseline cache ready")
	return &RedisCache{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing client, primarily for tests.
func NewWithClient(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get fetches the snapshot for a dataset key. A miss is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (application.BaselineSnapshot, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return application.BaselineSnapshot{}, false, nil
	}
	if err != nil {
		return application.BaselineSnapshot{}, false, fmt.Errorf("failed to get snapshot %s: %w", key, err)
	}

	var snap application.BaselineSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		// A corrupt entry behaves like a miss; the pipeline recomputes and
		// overwrites it.
		log.Warn().Err(err).Str("key", key).Msg("Discarding corrupt baseline snapshot")
		return application.BaselineSnapshot{}, false, nil
	}
	return snap, true, nil
}

// Set stores the snapshot under the dataset key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, snap application.BaselineSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", key, err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", key, err)
	}
	return nil
}
