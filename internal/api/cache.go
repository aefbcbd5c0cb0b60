package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache is an optional Redis-backed cache for read-heavy endpoints. All
// methods degrade to no-ops on Redis errors; the database stays the source
// of truth.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCache wraps a Redis client with a TTL for cached responses.
func NewCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, log: logger}
}

// availabilityKey derives the cache key from the calendar date in the
// instant's own location. Callers pass instants already localized to the
// operating timezone; a UTC instant can land on a different calendar day.
func availabilityKey(date time.Time) string {
	return fmt.Sprintf("availability:%s", date.Format("2006-01-02"))
}

// ReadAvailability loads a cached availability response into out. Returns
// false on miss or any Redis failure.
func (c *Cache) ReadAvailability(ctx context.Context, date time.Time, out any) bool {
	if c == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.client.Get(ctx, availabilityKey(date)).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

// WriteAvailability stores an availability response.
func (c *Cache) WriteAvailability(ctx context.Context, date time.Time, val any) {
	if c == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, availabilityKey(date), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("cache write failed")
	}
}

// InvalidateDay drops the cached availability for the day a reservation
// touches. Called after any booking state change; date must already be in
// the operating timezone.
func (c *Cache) InvalidateDay(ctx context.Context, date time.Time) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, availabilityKey(date)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("cache invalidation failed")
	}
}

// Ping checks connectivity, for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
