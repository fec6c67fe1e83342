// Package cache provides a fail-open Redis cache for query results and
// schema metadata. Cache unavailability is never an error: every operation
// degrades to a miss, so the caller always computes and stores as fallback.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key metadata injected into every cached payload.
const (
	metaCacheHit = "_cache_hit"
	metaCacheKey = "_cache_key"
	metaCachedAt = "_cached_at"
	metaCacheTTL = "_cache_ttl"
)

// Natural keys longer than this are collapsed to a hash to respect
// backing-store key-size limits.
const maxKeyLength = 100

// QueryCache is a TTL key/value store over Redis. A failed Connect
// disables the cache until the next explicit Connect; no automatic
// retry loop hammers a down dependency.
type QueryCache struct {
	client     *redis.Client
	url        string
	defaultTTL time.Duration
	healthy    bool
	logger     *slog.Logger
}

func NewQueryCache(url string, defaultTTL time.Duration, logger *slog.Logger) *QueryCache {
	return &QueryCache{url: url, defaultTTL: defaultTTL, logger: logger}
}

// Connect reaches the backing store with a short timeout. Returns false
// (never an error) on failure, leaving the cache disabled.
func (c *QueryCache) Connect(ctx context.Context) bool {
	opts, err := redis.ParseURL(c.url)
	if err != nil {
		c.logger.Warn("invalid cache url, caching disabled", slog.String("error", err.Error()))
		return false
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn("cache unreachable, caching disabled", slog.String("error", err.Error()))
		_ = client.Close()
		c.healthy = false
		return false
	}

	c.client = client
	c.healthy = true
	c.logger.Info("connected to cache", slog.String("url", c.url))
	return true
}

func (c *QueryCache) Disconnect() {
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}
	c.healthy = false
}

// Healthy reports whether the backing store was reachable at connect time.
func (c *QueryCache) Healthy() bool {
	return c.healthy && c.client != nil
}

// BuildKey derives a deterministic key from the operation kind, the
// identifier, and extra parameters sorted by name. Keys over the length
// bound collapse to kind:hash:<16 hex chars of sha256>.
func (c *QueryCache) BuildKey(kind, identifier string, params map[string]string) string {
	key := kind + ":" + identifier

	if len(params) > 0 {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)

		pairs := make([]string, 0, len(names))
		for _, name := range names {
			pairs = append(pairs, name+"="+params[name])
		}
		key += ":" + strings.Join(pairs, "&")
	}

	if len(key) > maxKeyLength {
		sum := sha256.Sum256([]byte(key))
		key = kind + ":hash:" + hex.EncodeToString(sum[:])[:16]
	}
	return key
}

// Get returns the cached payload tagged with hit metadata, or nil on a
// miss or any backend/deserialization error.
func (c *QueryCache) Get(ctx context.Context, key string) map[string]any {
	if !c.Healthy() {
		return nil
	}

	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache retrieval error",
				slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.logger.Warn("cache deserialization error",
			slog.String("key", key), slog.String("error", err.Error()))
		return nil
	}

	payload[metaCacheHit] = true
	payload[metaCacheKey] = key
	return payload
}

// Put stores value with the given TTL (the default when ttl <= 0),
// injecting cached-at and TTL metadata. Returns false, never an error,
// on any failure.
func (c *QueryCache) Put(ctx context.Context, key string, value map[string]any, ttl time.Duration) bool {
	if !c.Healthy() {
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	payload := make(map[string]any, len(value)+2)
	for k, v := range value {
		payload[k] = v
	}
	payload[metaCachedAt] = time.Now().Format(time.RFC3339)
	payload[metaCacheTTL] = int(ttl.Seconds())

	raw, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("cache serialization error",
			slog.String("key", key), slog.String("error", err.Error()))
		return false
	}

	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Warn("cache storage error",
			slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	return true
}

// InvalidateKey deletes one key; returns the number deleted (0 on error
// or when disabled).
func (c *QueryCache) InvalidateKey(ctx context.Context, key string) int {
	if !c.Healthy() {
		return 0
	}
	n, err := c.client.Del(ctx, key).Result()
	if err != nil {
		c.logger.Warn("cache invalidation error", slog.String("error", err.Error()))
		return 0
	}
	return int(n)
}

// Invalidate deletes all keys matching a glob-style pattern. Keys are
// gathered with SCAN so a large keyspace never blocks the server the
// way KEYS would.
func (c *QueryCache) Invalidate(ctx context.Context, pattern string) int {
	if !c.Healthy() {
		return 0
	}

	deleted := 0
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			deleted += c.deleteKeys(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache invalidation error", slog.String("error", err.Error()))
		return deleted
	}
	if len(batch) > 0 {
		deleted += c.deleteKeys(ctx, batch)
	}
	return deleted
}

func (c *QueryCache) deleteKeys(ctx context.Context, keys []string) int {
	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("cache invalidation error", slog.String("error", err.Error()))
		return 0
	}
	return int(n)
}

// Stats reports backing-store health and hit-rate counters.
func (c *QueryCache) Stats(ctx context.Context) map[string]any {
	if !c.Healthy() {
		return map[string]any{"status": "disconnected", "connection_healthy": false}
	}

	info, err := c.client.Info(ctx, "stats").Result()
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error(), "connection_healthy": false}
	}

	hits, misses := parseKeyspaceCounters(info)
	stats := map[string]any{
		"status":             "connected",
		"connection_healthy": true,
		"keyspace_hits":      hits,
		"keyspace_misses":    misses,
	}
	if total := hits + misses; total > 0 {
		stats["hit_rate"] = float64(hits) / float64(total) * 100
	}
	return stats
}

func parseKeyspaceCounters(info string) (hits, misses int64) {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "keyspace_hits:"); ok {
			fmt.Sscanf(v, "%d", &hits)
		}
		if v, ok := strings.CutPrefix(line, "keyspace_misses:"); ok {
			fmt.Sscanf(v, "%d", &misses)
		}
	}
	return hits, misses
}
