// Package cache stores pipeline results in Redis. Keys embed the corpus
// snapshot version, so a rebuild makes every earlier entry unreachable even
// before Invalidate runs.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/redis"
)

const keyPrefix = "rag:"

// Key identifies one cached result.
type Key struct {
	// Kind separates result shapes, e.g. "answer" and "retrieve".
	Kind     string
	Snapshot uint64
	Query    string
	// Params distinguishes calls with different knobs, e.g. "k=5".
	Params string
}

type Cache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache writing entries with the given TTL. m may be nil.
func New(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "retrieval-cache"),
	}
}

// get decodes the entry at key into dst. Redis and decoding errors count as
// misses.
func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	found, err := c.client.GetJSON(ctx, key, dst)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if err != nil || !found {
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		return false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, v any) {
	if err := c.client.SetJSON(ctx, key, v, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached value for key, or runs compute once per
// key across concurrent callers and stores its result when keep reports
// true (a nil keep stores every result). hit reports whether the value came
// from Redis.
func GetOrCompute[T any](ctx context.Context, c *Cache, key Key, compute func() (T, error), keep func(T) bool) (value T, hit bool, err error) {
	k := key.String()
	if c.get(ctx, k, &value) {
		return value, true, nil
	}
	val, err, _ := c.group.Do(k, func() (any, error) {
		var cached T
		if c.get(ctx, k, &cached) {
			return cached, nil
		}
		result, err := compute()
		if err != nil {
			return result, err
		}
		if keep == nil || keep(result) {
			c.set(ctx, k, result)
		}
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

// Invalidate deletes every entry written by this package.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// String renders the Redis key: the kind and snapshot stay readable so
// entries can be inspected, the query part is hashed.
func (k Key) String() string {
	raw := normalizeQuery(k.Query) + "|" + k.Params
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:v%d:%x", keyPrefix, k.Kind, k.Snapshot, hash[:16])
}

// normalizeQuery makes keys insensitive to case and whitespace.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
