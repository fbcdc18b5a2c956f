// Package redis is a backend over go-redis. Expiry, batching and counters are
// native: counters run SET NX + INCRBY/DECRBY inside MULTI/EXEC.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/obs"
	"github.com/unkn0wn-root/tiercache/internal/util"
)

var (
	ErrNilClient = errors.New("redis backend: nil client")
	ErrNilCodec  = errors.New("redis backend: nil codec")
)

// Client is the subset of goredis.UniversalClient the backend uses.
// *goredis.Client, *goredis.ClusterClient and *goredis.Ring satisfy it.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	MGet(ctx context.Context, keys ...string) *goredis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
	FlushDB(ctx context.Context) *goredis.StatusCmd
	TxPipelined(ctx context.Context, fn func(goredis.Pipeliner) error) ([]goredis.Cmder, error)
	Close() error
}

var _ Client = (goredis.UniversalClient)(nil)

type Config[V any] struct {
	Client Client
	Codec  codec.Codec[V]
	// Prefix namespaces every key. With a prefix, Flush deletes only
	// prefixed keys (SCAN + DEL); without one it issues FLUSHDB.
	Prefix      string
	CloseClient bool // set true only if this backend exclusively owns the client
	ScanCount   int64

	Logger tiercache.Logger // if nil, NopLogger is used
	Hooks  tiercache.Hooks  // if nil, NopHooks is used
}

type Cache[V any] struct {
	rdb         Client
	codec       codec.Codec[V]
	prefix      string
	closeClient bool
	scanCount   int64
	rep         obs.Reporter
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
	scan := cfg.ScanCount
	if scan <= 0 {
		scan = 500
	}
	return &Cache[V]{
		rdb:         cfg.Client,
		codec:       cfg.Codec,
		prefix:      cfg.Prefix,
		closeClient: cfg.CloseClient,
		scanCount:   scan,
		rep:         obs.New("redis", cfg.Logger, cfg.Hooks),
	}, nil
}

func (c *Cache[V]) Name() string { return c.rep.Name() }

func (c *Cache[V]) Capabilities() tiercache.Capability {
	return tiercache.CapBasic | tiercache.CapBatch | tiercache.CapCounter
}

func (c *Cache[V]) key(k string) string { return c.prefix + k }

// expiration maps a ttl to go-redis' argument. Negative ttls are handled by
// the callers (they delete instead of writing).
func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	k := c.key(key)
	b, err := c.rdb.Get(ctx, k).Bytes()
	if err == goredis.Nil {
		return zero, false
	}
	if err != nil {
		return zero, c.rep.Fail("get", k, err)
	}
	v, err := c.codec.Decode(b)
	if err != nil {
		c.rep.Heal(k, "value_decode", c.rdb.Del(ctx, k).Err())
		return zero, false
	}
	return v, true
}

// Set with a negative ttl deletes the key: the entry is already expired.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) bool {
	if ttl < 0 || tiercache.IsNil(value) {
		return c.Delete(ctx, key)
	}
	k := c.key(key)
	b, err := c.codec.Encode(value)
	if err != nil {
		return c.rep.Fail("set", k, err)
	}
	if err := c.rdb.Set(ctx, k, b, expiration(ttl)).Err(); err != nil {
		return c.rep.Fail("set", k, err)
	}
	return true
}

func (c *Cache[V]) Delete(ctx context.Context, key string) bool {
	k := c.key(key)
	if err := c.rdb.Del(ctx, k).Err(); err != nil {
		return c.rep.Fail("delete", k, err)
	}
	return true
}

func (c *Cache[V]) Has(ctx context.Context, key string) bool {
	k := c.key(key)
	n, err := c.rdb.Exists(ctx, k).Result()
	if err != nil {
		return c.rep.Fail("has", k, err)
	}
	return n > 0
}

// Clean is a no-op: Redis expires keys itself.
func (c *Cache[V]) Clean(context.Context) bool { return true }

func (c *Cache[V]) Flush(ctx context.Context) bool {
	if c.prefix == "" {
		if err := c.rdb.FlushDB(ctx).Err(); err != nil {
			return c.rep.Fail("flush", "", err)
		}
		return true
	}

	match := util.GlobEscape(c.prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, match, c.scanCount).Result()
		if err != nil {
			return c.rep.Fail("flush", "", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return c.rep.Fail("flush", "", err)
			}
		}
		if next == 0 {
			return true
		}
		cursor = next
	}
}

// GetMultiple uses one MGET.
func (c *Cache[V]) GetMultiple(ctx context.Context, keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	if len(keys) == 0 {
		return out
	}
	vals, err := c.rdb.MGet(ctx, util.Prefixed(c.prefix, keys)...).Result()
	if err != nil {
		c.rep.Fail("get_multiple", "", err)
		return out
	}
	for i, raw := range vals {
		s, ok := raw.(string)
		if !ok {
			continue // nil: miss
		}
		v, err := c.codec.Decode([]byte(s))
		if err != nil {
			k := c.key(keys[i])
			c.rep.Heal(k, "value_decode", c.rdb.Del(ctx, k).Err())
			continue
		}
		out[keys[i]] = v
	}
	return out
}

// SetMultiple writes the batch in one MULTI/EXEC.
func (c *Cache[V]) SetMultiple(ctx context.Context, values map[string]V, ttl time.Duration) bool {
	if len(values) == 0 {
		return true
	}
	if ttl < 0 {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		return c.DeleteMultiple(ctx, keys)
	}

	encoded := make(map[string][]byte, len(values))
	var drop []string
	for k, v := range values {
		if tiercache.IsNil(v) {
			drop = append(drop, c.key(k))
			continue
		}
		b, err := c.codec.Encode(v)
		if err != nil {
			return c.rep.Fail("set_multiple", c.key(k), err)
		}
		encoded[c.key(k)] = b
	}

	_, err := c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for k, b := range encoded {
			p.Set(ctx, k, b, expiration(ttl))
		}
		if len(drop) > 0 {
			p.Del(ctx, drop...)
		}
		return nil
	})
	if err != nil {
		return c.rep.Fail("set_multiple", "", err)
	}
	return true
}

func (c *Cache[V]) DeleteMultiple(ctx context.Context, keys []string) bool {
	if len(keys) == 0 {
		return true
	}
	if err := c.rdb.Del(ctx, util.Prefixed(c.prefix, keys)...).Err(); err != nil {
		return c.rep.Fail("delete_multiple", "", err)
	}
	return true
}

func (c *Cache[V]) Increment(ctx context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	return c.count(ctx, "increment", key, step, ttl)
}

func (c *Cache[V]) Decrement(ctx context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	return c.count(ctx, "decrement", key, step, ttl)
}

// count runs, in one transaction:
//
//	SET key 0 NX [PX ttl]
//	INCRBY|DECRBY key step
//
// The new value is the second reply. Any failed command fails the call.
func (c *Cache[V]) count(ctx context.Context, op, key string, step int64, ttl time.Duration) (int64, bool) {
	if ttl < 0 {
		return 0, false
	}
	k := c.key(key)
	var res *goredis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.SetNX(ctx, k, 0, expiration(ttl))
		if op == "decrement" {
			res = p.DecrBy(ctx, k, step)
		} else {
			res = p.IncrBy(ctx, k, step)
		}
		return nil
	})
	if err != nil {
		return 0, c.rep.Fail(op, k, err)
	}
	return res.Val(), true
}

// Close releases the client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (c *Cache[V]) Close(context.Context) error {
	if c.closeClient {
		if err := c.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
