// Package logcache decorates a Backend with one log line per operation.
//
// Sizes are estimated by msgpack-encoding the value. The backend may store
// it differently, so treat size as an order of magnitude.
package logcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/tiercache"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Cache logs every call and forwards it unchanged. It never offers counters;
// Wrap returns a *CountingCache when the inner backend has them.
type Cache[V any] struct {
	inner tiercache.Backend[V]
	emit  func(msg string, f tiercache.Fields)
	field tiercache.Fields
}

// CountingCache is a Cache whose inner backend is an AtomicCounter.
type CountingCache[V any] struct {
	*Cache[V]
	counter tiercache.AtomicCounter
}

var (
	_ tiercache.Backend[string] = (*Cache[string])(nil)
	_ tiercache.AtomicCounter   = (*CountingCache[string])(nil)
)

// New wraps b. An empty level means debug; a nil logger drops every line.
func New[V any](b tiercache.Backend[V], log tiercache.Logger, level Level) (*Cache[V], error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil backend", tiercache.ErrInvalidArgument)
	}
	if log == nil {
		log = tiercache.NopLogger{}
	}
	var emit func(string, tiercache.Fields)
	switch level {
	case LevelDebug, "":
		emit = log.Debug
	case LevelInfo:
		emit = log.Info
	case LevelWarn:
		emit = log.Warn
	case LevelError:
		emit = log.Error
	default:
		return nil, fmt.Errorf("%w: incompatible log level %q", tiercache.ErrInvalidArgument, level)
	}
	return &Cache[V]{inner: b, emit: emit, field: tiercache.Fields{"backend": b.Name()}}, nil
}

// Wrap is New that keeps the counter capability of b when it has one.
func Wrap[V any](b tiercache.Backend[V], log tiercache.Logger, level Level) (tiercache.Backend[V], error) {
	c, err := New(b, log, level)
	if err != nil {
		return nil, err
	}
	if counter, err := tiercache.AsCounter(b); err == nil {
		return &CountingCache[V]{Cache: c, counter: counter}, nil
	}
	return c, nil
}

func (c *Cache[V]) log(format string, args ...any) {
	c.emit(fmt.Sprintf(format, args...), c.field)
}

// Unwrap returns the decorated backend.
func (c *Cache[V]) Unwrap() tiercache.Backend[V] { return c.inner }

func (c *Cache[V]) Name() string { return c.inner.Name() }

func (c *Cache[V]) Capabilities() tiercache.Capability {
	return c.inner.Capabilities() &^ tiercache.CapCounter
}

func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	v, ok := c.inner.Get(ctx, key)
	if !ok {
		c.log("get %s MISS", key)
		return v, false
	}
	c.log("get %s HIT size=%d", key, size(v))
	return v, true
}

func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) bool {
	ok := c.inner.Set(ctx, key, value, ttl)
	c.log("set %s %s ttl=%s, type=%T, size=%d", key, outcome(ok), ttlString(ttl), value, size(value))
	return ok
}

func (c *Cache[V]) Delete(ctx context.Context, key string) bool {
	ok := c.inner.Delete(ctx, key)
	c.log("delete %s %s", key, outcome(ok))
	return ok
}

func (c *Cache[V]) Has(ctx context.Context, key string) bool {
	ok := c.inner.Has(ctx, key)
	c.log("has %s %t", key, ok)
	return ok
}

func (c *Cache[V]) Clean(ctx context.Context) bool {
	ok := c.inner.Clean(ctx)
	c.log("clean %s", outcome(ok))
	return ok
}

func (c *Cache[V]) Flush(ctx context.Context) bool {
	ok := c.inner.Flush(ctx)
	c.log("flush %s", outcome(ok))
	return ok
}

func (c *Cache[V]) GetMultiple(ctx context.Context, keys []string) map[string]V {
	hits := c.inner.GetMultiple(ctx, keys)
	c.log("getMultiple [%s] count=%d", strings.Join(keys, ", "), len(hits))
	return hits
}

func (c *Cache[V]) SetMultiple(ctx context.Context, values map[string]V, ttl time.Duration) bool {
	ok := c.inner.SetMultiple(ctx, values, ttl)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	c.log("setMultiple [%s] %s ttl=%s", strings.Join(keys, ", "), outcome(ok), ttlString(ttl))
	return ok
}

func (c *Cache[V]) DeleteMultiple(ctx context.Context, keys []string) bool {
	ok := c.inner.DeleteMultiple(ctx, keys)
	c.log("deleteMultiple [%s] %s", strings.Join(keys, ", "), outcome(ok))
	return ok
}

func (c *CountingCache[V]) Capabilities() tiercache.Capability { return c.inner.Capabilities() }

func (c *CountingCache[V]) Increment(ctx context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	n, ok := c.counter.Increment(ctx, key, step, ttl)
	c.log("increment %s by %d %s, value=%d", key, step, outcome(ok), n)
	return n, ok
}

func (c *CountingCache[V]) Decrement(ctx context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	n, ok := c.counter.Decrement(ctx, key, step, ttl)
	c.log("decrement %s by %d %s, value=%d", key, step, outcome(ok), n)
	return n, ok
}

func outcome(ok bool) string {
	if ok {
		return "SUCCESS"
	}
	return "FAILURE"
}

func ttlString(ttl time.Duration) string {
	if ttl == tiercache.NoExpiry {
		return "none"
	}
	return ttl.String()
}

// size is the length of strings and byte slices, otherwise of their msgpack
// encoding. Unencodable values report 0.
func size(v any) int {
	switch x := v.(type) {
	case string:
		return len(x)
	case []byte:
		return len(x)
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
