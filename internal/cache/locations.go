package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/weather-archive/internal/database"
)

// LocationCache is a Redis-backed read-through cache for by-id location
// lookups. Cache failures are logged and treated as misses; the registry
// never depends on Redis being up.
type LocationCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewLocationCache creates a LocationCache. A ttl of 0 falls back to 1 hour.
func NewLocationCache(redisClient *redis.Client, ttl time.Duration) *LocationCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LocationCache{redis: redisClient, ttl: ttl}
}

func locationKey(id int64) string {
	return fmt.Sprintf("location:%d", id)
}

// GetLocation returns the cached location and whether it was present.
func (c *LocationCache) GetLocation(ctx context.Context, id int64) (*database.Location, bool) {
	data, err := c.redis.Get(ctx, locationKey(id)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("location cache: get %d failed: %v", id, err)
		return nil, false
	}

	var loc database.Location
	if err := json.Unmarshal([]byte(data), &loc); err != nil {
		log.Printf("location cache: bad entry for %d: %v", id, err)
		return nil, false
	}
	return &loc, true
}

// SetLocation stores a location with the configured expiration.
func (c *LocationCache) SetLocation(ctx context.Context, loc *database.Location) {
	data, err := json.Marshal(loc)
	if err != nil {
		log.Printf("location cache: marshal %d failed: %v", loc.ID, err)
		return
	}

	if err := c.redis.Set(ctx, locationKey(loc.ID), data, c.ttl).Err(); err != nil {
		log.Printf("location cache: set %d failed: %v", loc.ID, err)
	}
}

// InvalidateLocation drops the cached entry after a correction.
func (c *LocationCache) InvalidateLocation(ctx context.Context, id int64) {
	if err := c.redis.Del(ctx, locationKey(id)).Err(); err != nil {
		log.Printf("location cache: invalidate %d failed: %v", id, err)
	}
}
