// Package bigcache stores framed, encoded entries in allegro/bigcache.
//
// bigcache only knows one global eviction window, so each entry carries its
// own expiry in the frame and is dropped lazily on read or by Clean.
// LifeWindow still caps every entry's lifetime.
package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/obs"
	"github.com/unkn0wn-root/tiercache/internal/wire"
)

var ErrNilCodec = errors.New("bigcache: nil codec")

type Config[V any] struct {
	Codec codec.Codec[V]

	LifeWindow         time.Duration // 0 => 24h
	CleanWindow        time.Duration // 0 => no background cleanup
	Shards             int           // power of two; 0 => 64
	MaxEntriesInWindow int           // sizing hint; 0 => 10k
	MaxEntrySize       int           // sizing hint in bytes; 0 => 512
	HardMaxCacheSizeMB int           // 0 => unlimited

	Logger tiercache.Logger // if nil, NopLogger is used
	Hooks  tiercache.Hooks  // if nil, NopHooks is used
	Now    func() time.Time // defaults to time.Now
}

type Cache[V any] struct {
	c     *bc.BigCache
	codec codec.Codec[V]
	now   func() time.Time
	rep   obs.Reporter
}

var _ tiercache.Backend[string] = (*Cache[string])(nil)

func New[V any](ctx context.Context, cfg Config[V]) (*Cache[V], error) {
	if cfg.Codec == nil {
		return nil, ErrNilCodec
	}
	life := cfg.LifeWindow
	if life <= 0 {
		life = 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = cfg.CleanWindow
	conf.Shards = 64
	conf.MaxEntriesInWindow = 10_000
	conf.MaxEntrySize = 512
	conf.Verbose = false
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}

	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{c: c, codec: cfg.Codec, now: now, rep: obs.New("bigcache", cfg.Logger, cfg.Hooks)}, nil
}

func (c *Cache[V]) Name() string { return c.rep.Name() }

func (c *Cache[V]) Capabilities() tiercache.Capability { return tiercache.CapBasic }

func (c *Cache[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	payload, ok := c.read(key, "get")
	if !ok {
		return zero, false
	}
	v, err := c.codec.Decode(payload)
	if err != nil {
		c.rep.Heal(key, "value_decode", c.drop(key))
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) read(key, op string) ([]byte, bool) {
	raw, err := c.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false
	}
	if err != nil {
		return nil, c.rep.Fail(op, key, err)
	}
	exp, payload, err := wire.Decode(raw)
	if err != nil {
		c.rep.Heal(key, "corrupt", c.drop(key))
		return nil, false
	}
	if tiercache.Expired(exp, c.now()) {
		c.drop(key)
		return nil, false
	}
	return payload, true
}

// drop deletes key; a missing entry is not an error.
func (c *Cache[V]) drop(key string) error {
	if err := c.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) bool {
	if ttl < 0 || tiercache.IsNil(value) {
		return c.Delete(ctx, key)
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return c.rep.Fail("set", key, err)
	}
	if err := c.c.Set(key, wire.Encode(tiercache.ExpiresAt(c.now(), ttl), payload)); err != nil {
		return c.rep.Fail("set", key, err)
	}
	return true
}

func (c *Cache[V]) Delete(_ context.Context, key string) bool {
	if err := c.drop(key); err != nil {
		return c.rep.Fail("delete", key, err)
	}
	return true
}

func (c *Cache[V]) Has(_ context.Context, key string) bool {
	_, ok := c.read(key, "has")
	return ok
}

// Clean walks every shard and deletes expired and unreadable entries.
func (c *Cache[V]) Clean(context.Context) bool {
	now := c.now()
	var stale []string
	it := c.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			continue
		}
		exp, _, err := wire.Decode(e.Value())
		if err != nil || tiercache.Expired(exp, now) {
			stale = append(stale, e.Key())
		}
	}
	for _, k := range stale {
		c.drop(k)
	}
	return true
}

func (c *Cache[V]) Flush(context.Context) bool {
	if err := c.c.Reset(); err != nil {
		return c.rep.Fail("flush", "", err)
	}
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

// Len is the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int { return c.c.Len() }

func (c *Cache[V]) Close(context.Context) error { return c.c.Close() }
