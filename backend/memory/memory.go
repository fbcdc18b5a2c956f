// Package memory is an in-process map backend.
//
// A Cache is NOT safe for concurrent use: it belongs to a single goroutine
// (or to callers that serialize access themselves). That is also what makes
// its counters atomic. Use backend/shm or backend/ristretto for shared
// in-process caching.
package memory

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/internal/util"
)

type entry struct {
	expiresAt int64 // unix nanos, 0 = never
	value     any
}

type Cache[V any] struct {
	m   map[string]entry
	now func() time.Time
}

var (
	_ tiercache.Backend[string] = (*Cache[string])(nil)
	_ tiercache.AtomicCounter   = (*Cache[string])(nil)
)

type Config struct {
	// Now overrides the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

func New[V any](cfg Config) *Cache[V] {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{m: make(map[string]entry), now: now}
}

func (c *Cache[V]) Name() string { return "memory" }

func (c *Cache[V]) Capabilities() tiercache.Capability {
	return tiercache.CapBasic | tiercache.CapCounter
}

// lookup returns the live entry for key, dropping it if expired.
func (c *Cache[V]) lookup(key string) (entry, bool) {
	e, ok := c.m[key]
	if !ok {
		return entry{}, false
	}
	if tiercache.Expired(e.expiresAt, c.now()) {
		delete(c.m, key)
		return entry{}, false
	}
	return e, true
}

// Get misses when the stored value is not a V (e.g. a counter read through
// a Cache[string]).
func (c *Cache[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	e, ok := c.lookup(key)
	if !ok {
		return zero, false
	}
	v, ok := e.value.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) bool {
	if tiercache.IsNil(value) {
		delete(c.m, key)
		return true
	}
	c.m[key] = entry{expiresAt: tiercache.ExpiresAt(c.now(), ttl), value: value}
	return true
}

func (c *Cache[V]) Delete(_ context.Context, key string) bool {
	delete(c.m, key)
	return true
}

func (c *Cache[V]) Has(_ context.Context, key string) bool {
	_, ok := c.lookup(key)
	return ok
}

func (c *Cache[V]) Clean(context.Context) bool {
	now := c.now()
	for k, e := range c.m {
		if tiercache.Expired(e.expiresAt, now) {
			delete(c.m, k)
		}
	}
	return true
}

func (c *Cache[V]) Flush(context.Context) bool {
	clear(c.m)
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

// Increment reads the current number (0 if absent or not numeric), adds step
// and writes it back, keeping the existing expiry. ttl applies only when the
// key is created. Negative ttl is rejected.
func (c *Cache[V]) Increment(_ context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	if ttl < 0 {
		return 0, false
	}
	e, ok := c.lookup(key)
	if !ok {
		e = entry{expiresAt: tiercache.ExpiresAt(c.now(), ttl)}
	}
	n, _ := util.ToInt64(e.value)
	n += step
	e.value = n
	c.m[key] = e
	return n, true
}

func (c *Cache[V]) Decrement(ctx context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	return c.Increment(ctx, key, -step, ttl)
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int { return len(c.m) }
