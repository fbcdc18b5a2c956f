// Package memcache is a backend over bradfitz/gomemcache.
//
// Expiry and counters are native. A counter is created with ADD "0" and then
// stepped with INCR/DECR; memcached clamps decrements at zero.
// Flush issues flush_all and so clears the whole server, prefix or not.
package memcache

import (
	"context"
	"errors"
	"math"
	"time"

	mc "github.com/bradfitz/gomemcache/memcache"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/obs"
	"github.com/unkn0wn-root/tiercache/internal/util"
)

// relativeLimit is the largest expiration memcached reads as relative seconds;
// larger values are unix timestamps.
const relativeLimit = 60 * 60 * 24 * 30

var (
	ErrNilClient = errors.New("memcache backend: nil client")
	ErrNilCodec  = errors.New("memcache backend: nil codec")
)

// Client is the subset of *mc.Client the backend uses.
type Client interface {
	Get(key string) (*mc.Item, error)
	GetMulti(keys []string) (map[string]*mc.Item, error)
	Set(item *mc.Item) error
	Add(item *mc.Item) error
	Delete(key string) error
	Increment(key string, delta uint64) (uint64, error)
	Decrement(key string, delta uint64) (uint64, error)
	FlushAll() error
}

var _ Client = (*mc.Client)(nil)

type Config[V any] struct {
	Client Client
	Codec  codec.Codec[V]
	Prefix string

	Logger tiercache.Logger // if nil, NopLogger is used
	Hooks  tiercache.Hooks  // if nil, NopHooks is used
	Now    func() time.Time // used for expirations beyond 30 days; defaults to time.Now
}

type Cache[V any] struct {
	mc     Client
	codec  codec.Codec[V]
	prefix string
	now    func() time.Time
	rep    obs.Reporter
}

var (
	_ tiercache.Backend[string] = (*Cache[string])(nil)
	_ tiercache.AtomicCounter   = (*Cache[string])(nil)
)

func New[V any](cfg Config[V]) (*Cache[V], error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Codec == nil {
		return nil, ErrNilCodec
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		mc:     cfg.Client,
		codec:  cfg.Codec,
		prefix: cfg.Prefix,
		now:    now,
		rep:    obs.New("memcache", cfg.Logger, cfg.Hooks),
	}, nil
}

func (c *Cache[V]) Name() string { return c.rep.Name() }

func (c *Cache[V]) Capabilities() tiercache.Capability {
	return tiercache.CapBasic | tiercache.CapBatch | tiercache.CapCounter
}

func (c *Cache[V]) key(k string) string { return c.prefix + k }

// expiration converts a non-negative ttl to memcached's int32 field.
// Timestamps past 2038 are clamped to math.MaxInt32 rather than wrapping
// into the past.
func (c *Cache[V]) expiration(ttl time.Duration) int32 {
	s := tiercache.TTLSeconds(ttl)
	if s > relativeLimit {
		s += c.now().Unix()
	}
	return int32(min(s, math.MaxInt32))
}

func (c *Cache[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	k := c.key(key)
	it, err := c.mc.Get(k)
	if errors.Is(err, mc.ErrCacheMiss) {
		return zero, false
	}
	if err != nil {
		return zero, c.rep.Fail("get", k, err)
	}
	v, err := c.codec.Decode(it.Value)
	if err != nil {
		c.rep.Heal(k, "value_decode", c.drop(k))
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) bool {
	if ttl < 0 || tiercache.IsNil(value) {
		return c.Delete(ctx, key)
	}
	k := c.key(key)
	b, err := c.codec.Encode(value)
	if err != nil {
		return c.rep.Fail("set", k, err)
	}
	if err := c.mc.Set(&mc.Item{Key: k, Value: b, Expiration: c.expiration(ttl)}); err != nil {
		return c.rep.Fail("set", k, err)
	}
	return true
}

func (c *Cache[V]) Delete(_ context.Context, key string) bool {
	k := c.key(key)
	if err := c.drop(k); err != nil {
		return c.rep.Fail("delete", k, err)
	}
	return true
}

// drop deletes a full key; a missing key is not an error.
func (c *Cache[V]) drop(k string) error {
	if err := c.mc.Delete(k); err != nil && !errors.Is(err, mc.ErrCacheMiss) {
		return err
	}
	return nil
}

func (c *Cache[V]) Has(_ context.Context, key string) bool {
	k := c.key(key)
	_, err := c.mc.Get(k)
	if errors.Is(err, mc.ErrCacheMiss) {
		return false
	}
	if err != nil {
		return c.rep.Fail("has", k, err)
	}
	return true
}

// Clean is a no-op: memcached expires items itself.
func (c *Cache[V]) Clean(context.Context) bool { return true }

func (c *Cache[V]) Flush(context.Context) bool {
	if err := c.mc.FlushAll(); err != nil {
		return c.rep.Fail("flush", "", err)
	}
	return true
}

// GetMultiple uses one get-many round trip per server.
func (c *Cache[V]) GetMultiple(_ context.Context, keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	if len(keys) == 0 {
		return out
	}
	items, err := c.mc.GetMulti(util.Prefixed(c.prefix, keys))
	if err != nil {
		c.rep.Fail("get_multiple", "", err)
		return out
	}
	for _, k := range keys {
		it, ok := items[c.key(k)]
		if !ok {
			continue
		}
		v, err := c.codec.Decode(it.Value)
		if err != nil {
			c.rep.Heal(it.Key, "value_decode", c.drop(it.Key))
			continue
		}
		out[k] = v
	}
	return out
}

func (c *Cache[V]) SetMultiple(ctx context.Context, values map[string]V, ttl time.Duration) bool {
	return tiercache.SetMultipleSeq[V](ctx, c, values, ttl)
}

func (c *Cache[V]) DeleteMultiple(ctx context.Context, keys []string) bool {
	return tiercache.DeleteMultipleSeq[V](ctx, c, keys)
}

func (c *Cache[V]) Increment(_ context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	return c.count("increment", key, step >= 0, step, ttl)
}

func (c *Cache[V]) Decrement(_ context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	return c.count("decrement", key, step < 0, step, ttl)
}

// count creates the key at "0" (a no-op if it exists) and applies |step| with
// INCR when up is set, DECR otherwise. ADD then INCR is not one atomic unit,
// but ADD is idempotent and INCR/DECR are atomic, so no update is lost.
func (c *Cache[V]) count(op, key string, up bool, step int64, ttl time.Duration) (int64, bool) {
	if ttl < 0 {
		return 0, false
	}
	k := c.key(key)
	err := c.mc.Add(&mc.Item{Key: k, Value: util.FormatCount(0), Expiration: c.expiration(ttl)})
	if err != nil && !errors.Is(err, mc.ErrNotStored) {
		return 0, c.rep.Fail(op, k, err)
	}

	var n uint64
	if up {
		n, err = c.mc.Increment(k, magnitude(step))
	} else {
		n, err = c.mc.Decrement(k, magnitude(step))
	}
	if err != nil {
		return 0, c.rep.Fail(op, k, err)
	}
	return int64(n), true
}

// magnitude is |n| as a uint64; math.MinInt64 maps to 1<<63.
func magnitude(n int64) uint64 {
	if n < 0 {
		return uint64(-(n + 1)) + 1
	}
	return uint64(n)
}
