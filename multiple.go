package tiercache

import (
	"context"
	"time"
)

// Single is the single-key subset of Backend. Backends without native batch
// primitives build their batch methods from it with the *Seq helpers.
type Single[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
}

// GetMultipleSeq looks keys up one by one and returns the hits.
func GetMultipleSeq[V any](ctx context.Context, b Single[V], keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	for _, k := range keys {
		if v, ok := b.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out
}

// SetMultipleSeq writes every value and reports whether all writes succeeded.
// A failed write does not stop the remaining ones.
func SetMultipleSeq[V any](ctx context.Context, b Single[V], values map[string]V, ttl time.Duration) bool {
	ok := true
	for k, v := range values {
		ok = b.Set(ctx, k, v, ttl) && ok
	}
	return ok
}

// DeleteMultipleSeq deletes every key and reports whether all deletes succeeded.
func DeleteMultipleSeq[V any](ctx context.Context, b Single[V], keys []string) bool {
	ok := true
	for _, k := range keys {
		ok = b.Delete(ctx, k) && ok
	}
	return ok
}

// FillDefaults adds def for every key in keys missing from hits. hits is modified
// in place and returned; a nil hits map is allocated.
func FillDefaults[V any](keys []string, hits map[string]V, def V) map[string]V {
	if hits == nil {
		hits = make(map[string]V, len(keys))
	}
	for _, k := range keys {
		if _, ok := hits[k]; !ok {
			hits[k] = def
		}
	}
	return hits
}

// GetOr returns the cached value for key, or def on a miss.
func GetOr[V any](ctx context.Context, b Backend[V], key string, def V) V {
	if v, ok := b.Get(ctx, key); ok {
		return v
	}
	return def
}

// GetMultipleOr returns a value for every key, def where the cache missed.
func GetMultipleOr[V any](ctx context.Context, b Backend[V], keys []string, def V) map[string]V {
	return FillDefaults(keys, b.GetMultiple(ctx, keys), def)
}
