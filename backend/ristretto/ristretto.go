// Package ristretto is an in-process, bounded, admission-controlled backend.
// Values are stored as-is. Writes are applied before Set returns, but the
// admission policy may still reject them, in which case Set reports false.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/internal/obs"
)

var (
	ErrInvalidConfig = errors.New("ristretto: invalid config")
	errRejected      = errors.New("ristretto: write rejected by admission policy")
)

type Config[V any] struct {
	NumCounters int64 // 0 => 1e5
	MaxCost     int64 // 0 => 1<<26
	BufferItems int64 // 0 => 64
	Metrics     bool

	// Cost weighs a value against MaxCost. nil => every entry costs 1.
	Cost func(V) int64

	Logger tiercache.Logger // if nil, NopLogger is used
	Hooks  tiercache.Hooks  // if nil, NopHooks is used
}

type Cache[V any] struct {
	c    *rc.Cache
	cost func(V) int64
	rep  obs.Reporter
}

var _ tiercache.Backend[string] = (*Cache[string])(nil)

func New[V any](cfg Config[V]) (*Cache[V], error) {
	if cfg.NumCounters < 0 || cfg.MaxCost < 0 || cfg.BufferItems < 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.NumCounters == 0 {
		cfg.NumCounters = 1e5
	}
	if cfg.MaxCost == 0 {
		cfg.MaxCost = 1 << 26
	}
	if cfg.BufferItems == 0 {
		cfg.BufferItems = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	cost := cfg.Cost
	if cost == nil {
		cost = func(V) int64 { return 1 }
	}
	return &Cache[V]{c: c, cost: cost, rep: obs.New("ristretto", cfg.Logger, cfg.Hooks)}, nil
}

func (c *Cache[V]) Name() string { return c.rep.Name() }

func (c *Cache[V]) Capabilities() tiercache.Capability { return tiercache.CapBasic }

func (c *Cache[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	raw, ok := c.c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		// drop unexpected entry shape
		c.c.Del(key)
		c.rep.SelfHeal(key, "type")
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) bool {
	if ttl < 0 || tiercache.IsNil(value) {
		return c.Delete(ctx, key)
	}
	if !c.c.SetWithTTL(key, value, c.cost(value), ttl) {
		return c.rep.Fail("set", key, errRejected)
	}
	c.c.Wait()
	return true
}

func (c *Cache[V]) Delete(_ context.Context, key string) bool {
	c.c.Del(key)
	c.c.Wait()
	return true
}

func (c *Cache[V]) Has(ctx context.Context, key string) bool {
	_, ok := c.Get(ctx, key)
	return ok
}

// Clean is a no-op: expired entries are invisible to Get and reclaimed by
// ristretto's own bucket cleanup.
func (c *Cache[V]) Clean(context.Context) bool { return true }

func (c *Cache[V]) Flush(context.Context) bool {
	c.c.Clear()
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

// Metrics is nil unless Config.Metrics was set.
func (c *Cache[V]) Metrics() *rc.Metrics { return c.c.Metrics }

func (c *Cache[V]) Close(context.Context) error {
	c.c.Wait()
	c.c.Close()
	return nil
}
