// Package cache is the analysis result cache: a best-effort Redis-backed
// cache keyed by content fingerprint, with single-flight coalescing so
// concurrent requests for the same fingerprint compute the analysis
// exactly once.
package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "analysis"

// DefaultTTL is the cache entry lifetime absent an explicit override.
const DefaultTTL = 24 * time.Hour

// Cache wraps a Redis client with best-effort semantics: any backend
// failure is logged and treated as a miss rather than surfaced to the
// caller.
type Cache struct {
	client *redis.Client
	group  singleflight.Group
	ttl    time.Duration
	log    *zap.SugaredLogger
}

// New builds the cache client. ttl <= 0 falls back to DefaultTTL.
func New(addr string, tlsEnabled bool, ttl time.Duration, log *zap.SugaredLogger) *Cache {
	opts := &redis.Options{Addr: addr}
	if tlsEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(opts)
	return &Cache{client: client, ttl: ttl, log: log}
}

func key(fingerprint string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, fingerprint)
}

// Get fetches a cached analysis. A Redis error or miss both return ok=false;
// only the log line distinguishes them.
func (c *Cache) Get(ctx context.Context, fingerprint string, out interface{}) bool {
	data, err := c.client.Get(ctx, key(fingerprint)).Bytes()
	if err != nil {
		if err != redis.Nil && c.log != nil {
			c.log.Warnw("cache get failed, falling through to compute", "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		if c.log != nil {
			c.log.Warnw("cache value corrupt, discarding", "error", err)
		}
		return false
	}
	return true
}

// Put stores an analysis with the given TTL, best-effort.
func (c *Cache) Put(ctx context.Context, fingerprint string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		if c.log != nil {
			c.log.Warnw("cache marshal failed", "error", err)
		}
		return
	}
	if err := c.client.Set(ctx, key(fingerprint), data, ttl).Err(); err != nil {
		if c.log != nil {
			c.log.Warnw("cache put failed", "error", err)
		}
	}
}

// ComputeOrLoad returns the cached value for fingerprint if present;
// otherwise it invokes computeFn exactly once across all concurrent
// callers sharing that fingerprint, caches the result and returns it
// alongside whether it was served from cache. ttl <= 0 uses the cache's
// configured default.
func (c *Cache) ComputeOrLoad(ctx context.Context, fingerprint string, ttl time.Duration, out interface{}, computeFn func() (interface{}, error)) (bool, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if c.Get(ctx, fingerprint, out) {
		return true, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		return computeFn()
	})
	if err != nil {
		return false, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("cache: marshal computed value: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("cache: round-trip computed value: %w", err)
	}

	c.Put(ctx, fingerprint, v, ttl)
	return false, nil
}

// Health reports whether the cache backend is reachable.
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
