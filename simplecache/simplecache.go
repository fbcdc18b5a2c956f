// Package simplecache is the loosely typed front door to a Backend: keys,
// key lists, TTLs and counter steps arrive as `any` and are normalized
// before the backend sees them.
//
// Invalid input is an error and never reaches the backend. Operational
// failures stay booleans, exactly as the backend reported them.
package simplecache

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/tiercache"
)

type Options struct {
	// Clock resolves Interval TTLs. nil => tiercache.SystemClock.
	Clock tiercache.Clock
}

type Cache[V any] struct {
	b   tiercache.Backend[V]
	ttl tiercache.TTLResolver
}

func New[V any](b tiercache.Backend[V], opts Options) (*Cache[V], error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil backend", tiercache.ErrInvalidArgument)
	}
	return &Cache[V]{b: b, ttl: tiercache.TTLResolver{Clock: opts.Clock}}, nil
}

// Backend returns the wrapped backend.
func (c *Cache[V]) Backend() tiercache.Backend[V] { return c.b }

// Get returns the cached value or def on a miss.
func (c *Cache[V]) Get(ctx context.Context, key any, def V) (V, error) {
	k, err := tiercache.NormalizeKey(key)
	if err != nil {
		return def, err
	}
	return tiercache.GetOr(ctx, c.b, k, def), nil
}

// Set stores value. ttl is anything tiercache.TTLResolver accepts.
func (c *Cache[V]) Set(ctx context.Context, key any, value V, ttl any) (bool, error) {
	k, err := tiercache.NormalizeKey(key)
	if err != nil {
		return false, err
	}
	d, err := c.ttl.Resolve(ttl)
	if err != nil {
		return false, err
	}
	return c.b.Set(ctx, k, value, d), nil
}

func (c *Cache[V]) Delete(ctx context.Context, key any) (bool, error) {
	k, err := tiercache.NormalizeKey(key)
	if err != nil {
		return false, err
	}
	return c.b.Delete(ctx, k), nil
}

func (c *Cache[V]) Has(ctx context.Context, key any) (bool, error) {
	k, err := tiercache.NormalizeKey(key)
	if err != nil {
		return false, err
	}
	return c.b.Has(ctx, k), nil
}

// Clear removes every entry (the backend's Flush).
func (c *Cache[V]) Clear(ctx context.Context) bool { return c.b.Flush(ctx) }

// GetMultiple returns a value for every requested key, def where the cache missed.
func (c *Cache[V]) GetMultiple(ctx context.Context, keys any, def V) (map[string]V, error) {
	ks, err := tiercache.NormalizeKeys(keys)
	if err != nil {
		return nil, err
	}
	return tiercache.GetMultipleOr(ctx, c.b, ks, def), nil
}

// SetMultiple accepts a map or a key/value iterator.
func (c *Cache[V]) SetMultiple(ctx context.Context, values any, ttl any) (bool, error) {
	vs, err := tiercache.NormalizeValues[V](values)
	if err != nil {
		return false, err
	}
	d, err := c.ttl.Resolve(ttl)
	if err != nil {
		return false, err
	}
	return c.b.SetMultiple(ctx, vs, d), nil
}

func (c *Cache[V]) DeleteMultiple(ctx context.Context, keys any) (bool, error) {
	ks, err := tiercache.NormalizeKeys(keys)
	if err != nil {
		return false, err
	}
	return c.b.DeleteMultiple(ctx, ks), nil
}

// Increment fails with a *tiercache.CapabilityError when the backend has no
// atomic counters.
func (c *Cache[V]) Increment(ctx context.Context, key, step, ttl any) (int64, bool, error) {
	return c.count(ctx, key, step, ttl, false)
}

func (c *Cache[V]) Decrement(ctx context.Context, key, step, ttl any) (int64, bool, error) {
	return c.count(ctx, key, step, ttl, true)
}

func (c *Cache[V]) count(ctx context.Context, key, step, ttl any, down bool) (int64, bool, error) {
	counter, err := tiercache.AsCounter(c.b)
	if err != nil {
		return 0, false, err
	}
	k, err := tiercache.NormalizeKey(key)
	if err != nil {
		return 0, false, err
	}
	if step == nil {
		step = 1
	}
	n, err := tiercache.ResolveStep(step)
	if err != nil {
		return 0, false, err
	}
	d, err := c.ttl.Resolve(ttl)
	if err != nil {
		return 0, false, err
	}

	var v int64
	var ok bool
	if down {
		v, ok = counter.Decrement(ctx, k, n, d)
	} else {
		v, ok = counter.Increment(ctx, k, n, d)
	}
	return v, ok, nil
}
