// Package rediscache provides the optional Redis-backed session-cost cache
// described in SPEC_FULL.md §4.10: horizontally-scaled hosts share a live
// per-session running total without each one re-aggregating the full
// CostLedger on startup. Grounded on itsneelabh-gomind's
// ui/session_redis.go (redis.ParseURL + NewClient + a startup Ping).
package rediscache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "runengine:session-cost:"

// Cache is a thin Redis-backed store for a session's running cost total.
// Values are written with a TTL so a crashed host's stale cache entries
// don't linger forever and diverge from the ledger's ground truth.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New parses redisURL (e.g. "redis://host:6379/0"), connects, and verifies
// reachability with a bounded Ping before returning.
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Get returns the cached running total for sessionID, and whether it was
// present. A miss is not an error: the caller falls back to the ledger.
func (c *Cache) Get(ctx context.Context, sessionID string) (float64, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+sessionID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	total, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, err
	}
	return total, true, nil
}

// Set stores sessionID's running total, refreshing its TTL.
func (c *Cache) Set(ctx context.Context, sessionID string, total float64) error {
	return c.client.Set(ctx, keyPrefix+sessionID, strconv.FormatFloat(total, 'f', -1, 64), c.ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
