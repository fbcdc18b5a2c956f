package tiercache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the value for a key on a cache miss.
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

// Fetch returns the cached value for key or calls load and caches its result
// with ttl. Load errors are returned and nothing is cached; a nil result is
// returned but not cached. A failed cache write is not an error.
func Fetch[V any](ctx context.Context, b Backend[V], key string, ttl time.Duration, load LoadFunc[V]) (V, error) {
	if v, ok := b.Get(ctx, key); ok {
		return v, nil
	}
	v, err := load(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	if !IsNil(v) {
		b.Set(ctx, key, v, ttl)
	}
	return v, nil
}

// Loader is Fetch with per-key deduplication: concurrent misses for the same
// key share one load call.
type Loader[V any] struct {
	b    Backend[V]
	ttl  time.Duration
	load LoadFunc[V]
	log  Logger
	sf   singleflight.Group
}

// NewLoader binds a backend, a ttl for loaded values and a load function.
// A nil logger disables logging.
func NewLoader[V any](b Backend[V], ttl time.Duration, load LoadFunc[V], log Logger) *Loader[V] {
	if log == nil {
		log = NopLogger{}
	}
	return &Loader[V]{b: b, ttl: ttl, load: load, log: log}
}

func (l *Loader[V]) Get(ctx context.Context, key string) (V, error) {
	if v, ok := l.b.Get(ctx, key); ok {
		return v, nil
	}

	res, err, shared := l.sf.Do(key, func() (any, error) {
		// another caller may have filled the key while we waited
		if v, ok := l.b.Get(ctx, key); ok {
			return v, nil
		}
		v, err := l.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if !IsNil(v) && !l.b.Set(ctx, key, v, l.ttl) {
			l.log.Debug("loaded value not cached", Fields{"key": key, "backend": l.b.Name()})
		}
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	if shared {
		l.log.Debug("load shared", Fields{"key": key})
	}
	v, _ := res.(V)
	return v, nil
}

// Forget drops an in-flight load for key so the next Get starts a new one.
func (l *Loader[V]) Forget(key string) { l.sf.Forget(key) }
