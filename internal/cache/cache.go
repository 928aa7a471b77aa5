// Package cache is a generic read-through accelerator in front of Redis.
// It never becomes a source of truth: a nil or unreachable client degrades to
// always-miss and every consumer must stay correct with caching disabled.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatrelay/internal/observability"
)

const DefaultTTL = time.Hour

type Cache struct {
	client    redis.UniversalClient
	log       *zap.Logger
	service   string
	connected atomic.Bool
	hits      atomic.Int64
	misses    atomic.Int64
}

// New pings the client once to decide connectivity. A failed ping (or a nil
// client) leaves the cache in fallback mode where every read is a miss and
// every write is a no-op.
func New(client redis.UniversalClient, serviceName string, log *zap.Logger) *Cache {
	c := &Cache{client: client, service: serviceName, log: log}

	if client == nil {
		log.Warn("cache disabled, operating in fallback mode")
		return c
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis connection failed, cache operating in fallback mode", zap.Error(err))
		return c
	}

	c.connected.Store(true)
	log.Info("cache initialized")
	return c
}

// Key builds a namespaced cache key from its parts, e.g. Key("user", "id", uid).
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// GetCached deserializes the entry at key into dest and reports whether it was
// a hit. Underlying-store errors are absorbed and counted as misses.
func (c *Cache) GetCached(ctx context.Context, key string, dest any) bool {
	if !c.connected.Load() {
		c.miss()
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.miss()
		if err != redis.Nil {
			c.log.Error("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.miss()
		c.log.Error("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}

	c.hit()
	return true
}

// SetCache serializes value and stores it with the given expiry. Failures are
// logged, never surfaced.
func (c *Cache) SetCache(ctx context.Context, key string, value any, ttl time.Duration) {
	if !c.connected.Load() {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.log.Error("cache serialize failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Error("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes a single key, or every key matching a glob-style pattern
// when keyOrPattern contains a wildcard.
func (c *Cache) Invalidate(ctx context.Context, keyOrPattern string) {
	if !c.connected.Load() {
		return
	}

	if !strings.ContainsAny(keyOrPattern, "*?[") {
		if err := c.client.Del(ctx, keyOrPattern).Err(); err != nil {
			c.log.Error("cache delete failed", zap.String("key", keyOrPattern), zap.Error(err))
		}
		return
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyOrPattern, 100).Result()
		if err != nil {
			c.log.Error("cache scan failed", zap.String("pattern", keyOrPattern), zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.log.Error("cache delete failed", zap.String("pattern", keyOrPattern), zap.Error(err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (c *Cache) Connected() bool {
	return c.connected.Load()
}

func (c *Cache) hit() {
	c.hits.Add(1)
	observability.CacheHitsTotal.WithLabelValues(c.service).Inc()
}

func (c *Cache) miss() {
	c.misses.Add(1)
	observability.CacheMissesTotal.WithLabelValues(c.service).Inc()
}

// Stats is a process-lifetime snapshot of cache effectiveness; counters are
// cumulative and never reset.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Total     int64   `json:"total_requests"`
	HitRate   float64 `json:"hit_rate"`
	Connected bool    `json:"connected"`
}

func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := Stats{
		Hits:      hits,
		Misses:    misses,
		Total:     hits + misses,
		Connected: c.connected.Load(),
	}
	if s.Total > 0 {
		s.HitRate = float64(hits) / float64(s.Total)
	}
	return s
}
