// Package shm is a process-wide shared-memory backend over patrickmn/go-cache:
// native expiry, a janitor goroutine and atomic integer counters. Values are
// stored as-is, no encoding. Safe for concurrent use.
package shm

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/internal/obs"
)

type Config struct {
	// CleanupInterval runs the expiry janitor. 0 => 10m, negative disables it
	// (Clean still evicts on demand).
	CleanupInterval time.Duration

	// Store shares an existing go-cache between backends. nil creates one.
	Store *gocache.Cache

	Logger tiercache.Logger // if nil, NopLogger is used
	Hooks  tiercache.Hooks  // if nil, NopHooks is used
}

type Cache[V any] struct {
	c   *gocache.Cache
	rep obs.Reporter
}

var (
	_ tiercache.Backend[string] = (*Cache[string])(nil)
	_ tiercache.AtomicCounter   = (*Cache[string])(nil)
)

func New[V any](cfg Config) *Cache[V] {
	store := cfg.Store
	if store == nil {
		interval := cfg.CleanupInterval
		switch {
		case interval == 0:
			interval = 10 * time.Minute
		case interval < 0:
			interval = 0
		}
		store = gocache.New(gocache.NoExpiration, interval)
	}
	return &Cache[V]{c: store, rep: obs.New("shm", cfg.Logger, cfg.Hooks)}
}

func (c *Cache[V]) Name() string { return c.rep.Name() }

func (c *Cache[V]) Capabilities() tiercache.Capability {
	return tiercache.CapBasic | tiercache.CapCounter
}

// expiration maps NoExpiry to go-cache's NoExpiration (-1); go-cache reads 0
// as "use the default".
func expiration(ttl time.Duration) time.Duration {
	if ttl == tiercache.NoExpiry {
		return gocache.NoExpiration
	}
	return ttl
}

func (c *Cache[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	raw, ok := c.c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) bool {
	if ttl < 0 || tiercache.IsNil(value) {
		c.c.Delete(key)
		return true
	}
	c.c.Set(key, value, expiration(ttl))
	return true
}

func (c *Cache[V]) Delete(_ context.Context, key string) bool {
	c.c.Delete(key)
	return true
}

func (c *Cache[V]) Has(_ context.Context, key string) bool {
	_, ok := c.c.Get(key)
	return ok
}

func (c *Cache[V]) Clean(context.Context) bool {
	c.c.DeleteExpired()
	return true
}

func (c *Cache[V]) Flush(context.Context) bool {
	c.c.Flush()
	return true
}

func (c *Cache[V]) GetMultiple(ctx context.Context, keys []string) map[string]V {
	return tiercache.GetMultipleSeq[V](ctx, c, keys)
}

func (c *Cache[V]) SetMultiple(ctx context.Context, values map[string]V, ttl time.Duration) bool {
	return tiercache.SetMultipleSeq[V](ctx, c, values, ttl)
}

func (c *Cache[V]) DeleteMultiple(ctx context.Context, keys []string) bool {
	return tiercache.DeleteMultipleSeq[V](ctx, c, keys)
}

func (c *Cache[V]) Increment(_ context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	return c.count("increment", key, step, ttl)
}

func (c *Cache[V]) Decrement(_ context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	return c.count("decrement", key, -step, ttl)
}

// count adds an int64 zero (ignored if the key exists) and then steps it
// under go-cache's lock. A key holding a non-int64 value fails.
func (c *Cache[V]) count(op, key string, delta int64, ttl time.Duration) (int64, bool) {
	if ttl < 0 {
		return 0, false
	}
	// Add fails when the key is live; that is the normal path for an
	// existing counter, and any other state surfaces from IncrementInt64.
	_ = c.c.Add(key, int64(0), expiration(ttl))
	n, err := c.c.IncrementInt64(key, delta)
	if err != nil {
		return 0, c.rep.Fail(op, key, err)
	}
	return n, true
}

// Store exposes the underlying go-cache, e.g. for ItemCount.
func (c *Cache[V]) Store() *gocache.Cache { return c.c }
