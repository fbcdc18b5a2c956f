package tiercache

import (
	"context"
	"time"
)

// TieredOptions configure a TieredCache. Only Tiers is required.
type TieredOptions[V any] struct {
	// Tiers in priority order. Index 0 is read first and written first.
	Tiers []Backend[V]

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// Promote copies a lower-tier hit into every tier above it.
	// Off by default: reads never write.
	Promote    bool
	PromoteTTL time.Duration // ttl for promoted entries; 0 => NoExpiry
}

// TieredCache chains backends into one waterfall cache. It holds no state of
// its own beyond the fixed tier list and adds no locking: it is exactly as
// safe for concurrent use as its least safe tier.
type TieredCache[V any] struct {
	tiers      []Backend[V]
	log        Logger
	hooks      Hooks
	promote    bool
	promoteTTL time.Duration
}

var _ Backend[struct{}] = (*TieredCache[struct{}])(nil)

// New builds a TieredCache from tiers in priority order with default options.
func New[V any](tiers ...Backend[V]) (*TieredCache[V], error) {
	return NewTiered(TieredOptions[V]{Tiers: tiers})
}

// NewTiered validates opts and builds a TieredCache. A nil tier fails with an
// *InvalidArgumentError carrying its index.
func NewTiered[V any](opts TieredOptions[V]) (*TieredCache[V], error) {
	if len(opts.Tiers) == 0 {
		return nil, ErrNoTiers
	}
	tiers := make([]Backend[V], len(opts.Tiers))
	for i, b := range opts.Tiers {
		if isNilBackend(b) {
			return nil, &InvalidArgumentError{Index: i, Reason: "tier is not a Backend"}
		}
		tiers[i] = b
	}

	var log Logger = NopLogger{}
	if opts.Logger != nil {
		log = opts.Logger
	}
	var hooks Hooks = NopHooks{}
	if opts.Hooks != nil {
		hooks = opts.Hooks
	}

	return &TieredCache[V]{
		tiers:      tiers,
		log:        log,
		hooks:      hooks,
		promote:    opts.Promote,
		promoteTTL: coalesce(opts.PromoteTTL, NoExpiry),
	}, nil
}

func (t *TieredCache[V]) Name() string { return "tiered" }

// Tiers returns a copy of the tier list.
func (t *TieredCache[V]) Tiers() []Backend[V] {
	return append([]Backend[V](nil), t.tiers...)
}

// Capabilities is the intersection of the tiers' capabilities.
// Counters are never offered: there is no cross-tier atomicity.
func (t *TieredCache[V]) Capabilities() Capability {
	c := t.tiers[0].Capabilities()
	for _, b := range t.tiers[1:] {
		c &= b.Capabilities()
	}
	return c &^ CapCounter
}

func (t *TieredCache[V]) Get(ctx context.Context, key string) (V, bool) {
	for i, b := range t.tiers {
		if v, ok := b.Get(ctx, key); ok {
			if t.promote && i > 0 {
				t.promoteTo(ctx, i, map[string]V{key: v})
			}
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (t *TieredCache[V]) Has(ctx context.Context, key string) bool {
	_, ok := t.Get(ctx, key)
	return ok
}

// Set writes to every tier and succeeds if any tier accepted the write.
func (t *TieredCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) bool {
	return t.any("set", func(b Backend[V]) bool { return b.Set(ctx, key, value, ttl) })
}

// SetMultiple sends the whole batch to every tier; any tier accepting it is success.
func (t *TieredCache[V]) SetMultiple(ctx context.Context, values map[string]V, ttl time.Duration) bool {
	return t.any("set_multiple", func(b Backend[V]) bool { return b.SetMultiple(ctx, values, ttl) })
}

// Delete succeeds only if every tier deleted the key.
func (t *TieredCache[V]) Delete(ctx context.Context, key string) bool {
	return t.all("delete", func(b Backend[V]) bool { return b.Delete(ctx, key) })
}

func (t *TieredCache[V]) DeleteMultiple(ctx context.Context, keys []string) bool {
	return t.all("delete_multiple", func(b Backend[V]) bool { return b.DeleteMultiple(ctx, keys) })
}

func (t *TieredCache[V]) Clean(ctx context.Context) bool {
	return t.all("clean", func(b Backend[V]) bool { return b.Clean(ctx) })
}

func (t *TieredCache[V]) Flush(ctx context.Context) bool {
	return t.all("flush", func(b Backend[V]) bool { return b.Flush(ctx) })
}

// GetMultiple asks each tier only for the keys still missing and stops once
// every key is found. Only hits are returned.
func (t *TieredCache[V]) GetMultiple(ctx context.Context, keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	needed := dedupe(keys)

	for i, b := range t.tiers {
		if len(needed) == 0 {
			break
		}
		hits := b.GetMultiple(ctx, needed)
		if len(hits) == 0 {
			continue
		}

		var found map[string]V
		if t.promote && i > 0 {
			found = make(map[string]V, len(hits))
		}
		rest := needed[:0]
		for _, k := range needed {
			v, ok := hits[k]
			if !ok {
				rest = append(rest, k)
				continue
			}
			out[k] = v
			if found != nil {
				found[k] = v
			}
		}
		needed = rest

		if len(found) > 0 {
			t.promoteTo(ctx, i, found)
		}
	}
	return out
}

func (t *TieredCache[V]) promoteTo(ctx context.Context, from int, values map[string]V) {
	for i := 0; i < from; i++ {
		if !t.tiers[i].SetMultiple(ctx, values, t.promoteTTL) {
			t.failed(i, "promote")
		}
	}
	t.hooks.Promoted(from, len(values))
}

func (t *TieredCache[V]) any(op string, f func(Backend[V]) bool) bool {
	ok := false
	for i, b := range t.tiers {
		if f(b) {
			ok = true
		} else {
			t.failed(i, op)
		}
	}
	return ok
}

func (t *TieredCache[V]) all(op string, f func(Backend[V]) bool) bool {
	ok := true
	for i, b := range t.tiers {
		if !f(b) {
			ok = false
			t.failed(i, op)
		}
	}
	return ok
}

func (t *TieredCache[V]) failed(i int, op string) {
	name := t.tiers[i].Name()
	t.log.Debug("tier operation failed", Fields{"tier": i, "backend": name, "op": op})
	t.hooks.TierFailed(i, name, op)
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
