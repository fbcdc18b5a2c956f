// Package backendtest is the behaviour suite every backend runs in its tests.
package backendtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
)

// Harness is one fresh backend plus control over its clock.
type Harness struct {
	Backend tiercache.Backend[string]

	// Advance moves the backend's notion of time forward by at least d.
	// nil sleeps for d.
	Advance func(d time.Duration)

	// TTL is the short expiry used by expiry tests. 0 => 2s, which suits
	// stores with second granularity and a controllable clock.
	TTL time.Duration

	// CountersReadable is true when Get on a counter key returns its decimal
	// text (byte backends using codec.String).
	CountersReadable bool

	// Concurrent is true when counters may be stepped from many goroutines
	// at once. Single-owner stores leave it false.
	Concurrent bool
}

func (h Harness) advance(d time.Duration) {
	if h.Advance != nil {
		h.Advance(d)
		return
	}
	time.Sleep(d)
}

func (h Harness) ttl() time.Duration {
	if h.TTL > 0 {
		return h.TTL
	}
	return 2 * time.Second
}

// Run executes the suite. newHarness is called once per subtest.
func Run(t *testing.T, newHarness func(t *testing.T) Harness) {
	ctx := context.Background()

	t.Run("Get", func(t *testing.T) {
		t.Run("Miss", func(t *testing.T) {
			b := newHarness(t).Backend
			v, ok := b.Get(ctx, "missing")
			assert.False(t, ok)
			assert.Empty(t, v)
			assert.Equal(t, "dflt", tiercache.GetOr(ctx, b, "missing", "dflt"))
		})

		t.Run("Hit", func(t *testing.T) {
			b := newHarness(t).Backend
			require.True(t, b.Set(ctx, "k1", "v1", time.Minute))
			v, ok := b.Get(ctx, "k1")
			assert.True(t, ok)
			assert.Equal(t, "v1", v)
		})

		t.Run("RoundTrip", func(t *testing.T) {
			b := newHarness(t).Backend
			values := map[string]string{
				"empty":    "",
				"unicode":  "zażółć gęślą jaźń",
				"binary":   "\x00\x01\xff",
				"123":      "numeric key",
				"ключ:1/ü": "non-ascii key",
			}
			for k, v := range values {
				require.True(t, b.Set(ctx, k, v, tiercache.NoExpiry), k)
			}
			for k, want := range values {
				got, ok := b.Get(ctx, k)
				assert.True(t, ok, k)
				assert.Equal(t, want, got, k)
			}
		})
	})

	t.Run("Set", func(t *testing.T) {
		t.Run("Overwrite", func(t *testing.T) {
			b := newHarness(t).Backend
			require.True(t, b.Set(ctx, "k", "old", time.Minute))
			require.True(t, b.Set(ctx, "k", "new", time.Minute))
			v, ok := b.Get(ctx, "k")
			assert.True(t, ok)
			assert.Equal(t, "new", v)
		})

		t.Run("NegativeTTLIsExpired", func(t *testing.T) {
			b := newHarness(t).Backend
			b.Set(ctx, "neg", "v", -time.Second)
			_, ok := b.Get(ctx, "neg")
			assert.False(t, ok)
			assert.Equal(t, "dflt", tiercache.GetOr(ctx, b, "neg", "dflt"))
		})

		t.Run("ExpiresAfterTTL", func(t *testing.T) {
			h := newHarness(t)
			require.True(t, h.Backend.Set(ctx, "short", "v", h.ttl()))
			_, ok := h.Backend.Get(ctx, "short")
			require.True(t, ok)

			h.advance(2 * h.ttl())
			_, ok = h.Backend.Get(ctx, "short")
			assert.False(t, ok)
			assert.False(t, h.Backend.Has(ctx, "short"))
		})

		t.Run("NoExpiryPersists", func(t *testing.T) {
			h := newHarness(t)
			require.True(t, h.Backend.Set(ctx, "forever", "v", tiercache.NoExpiry))
			h.advance(2 * h.ttl())
			v, ok := h.Backend.Get(ctx, "forever")
			assert.True(t, ok)
			assert.Equal(t, "v", v)
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("Idempotent", func(t *testing.T) {
			b := newHarness(t).Backend
			require.True(t, b.Set(ctx, "k", "v", time.Minute))
			assert.True(t, b.Delete(ctx, "k"))
			assert.True(t, b.Delete(ctx, "k"))
			assert.True(t, b.Delete(ctx, "never-set"))
			_, ok := b.Get(ctx, "k")
			assert.False(t, ok)
		})
	})

	t.Run("Has", func(t *testing.T) {
		b := newHarness(t).Backend
		assert.False(t, b.Has(ctx, "k"))
		require.True(t, b.Set(ctx, "k", "v", time.Minute))
		assert.True(t, b.Has(ctx, "k"))
	})

	t.Run("Multiple", func(t *testing.T) {
		t.Run("SetGetDelete", func(t *testing.T) {
			b := newHarness(t).Backend
			require.True(t, b.SetMultiple(ctx, map[string]string{"a": "1", "b": "2", "c": "3"}, time.Minute))

			got := b.GetMultiple(ctx, []string{"a", "b", "missing"})
			assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)

			assert.True(t, b.DeleteMultiple(ctx, []string{"a", "b", "missing"}))
			got = b.GetMultiple(ctx, []string{"a", "b", "c"})
			assert.Equal(t, map[string]string{"c": "3"}, got)
		})

		t.Run("DefaultFill", func(t *testing.T) {
			b := newHarness(t).Backend
			got := tiercache.GetMultipleOr(ctx, b, []string{"a", "b"}, "dflt")
			assert.Equal(t, map[string]string{"a": "dflt", "b": "dflt"}, got)

			require.True(t, b.Set(ctx, "a", "va", time.Minute))
			got = tiercache.GetMultipleOr(ctx, b, []string{"a", "b"}, "dflt")
			assert.Equal(t, map[string]string{"a": "va", "b": "dflt"}, got)
		})

		t.Run("Empty", func(t *testing.T) {
			b := newHarness(t).Backend
			assert.Empty(t, b.GetMultiple(ctx, nil))
			assert.True(t, b.SetMultiple(ctx, map[string]string{}, time.Minute))
			assert.True(t, b.DeleteMultiple(ctx, nil))
		})
	})

	t.Run("Clean", func(t *testing.T) {
		h := newHarness(t)
		require.True(t, h.Backend.Set(ctx, "old", "v", h.ttl()))
		require.True(t, h.Backend.Set(ctx, "live", "v", tiercache.NoExpiry))
		h.advance(2 * h.ttl())

		assert.True(t, h.Backend.Clean(ctx))
		_, ok := h.Backend.Get(ctx, "old")
		assert.False(t, ok)
		_, ok = h.Backend.Get(ctx, "live")
		assert.True(t, ok)
	})

	t.Run("Flush", func(t *testing.T) {
		b := newHarness(t).Backend
		require.True(t, b.SetMultiple(ctx, map[string]string{"a": "1", "b": "2"}, tiercache.NoExpiry))
		assert.True(t, b.Flush(ctx))
		assert.Empty(t, b.GetMultiple(ctx, []string{"a", "b"}))
		assert.True(t, b.Flush(ctx), "flushing an empty cache")
	})

	t.Run("Capabilities", func(t *testing.T) {
		b := newHarness(t).Backend
		caps := b.Capabilities()
		assert.True(t, caps.Has(tiercache.CapRead|tiercache.CapWrite|tiercache.CapDelete))
		assert.Equal(t, caps, b.Capabilities())
		assert.NotEmpty(t, b.Name())
	})

	t.Run("Counter", func(t *testing.T) {
		h := newHarness(t)
		if !h.Backend.Capabilities().Has(tiercache.CapCounter) {
			_, err := tiercache.AsCounter(h.Backend)
			var ce *tiercache.CapabilityError
			require.True(t, errors.As(err, &ce), "want CapabilityError, got %v", err)
			assert.Equal(t, tiercache.CapCounter, ce.Missing)
			return
		}
		runCounter(t, newHarness)
	})
}

func runCounter(t *testing.T, newHarness func(t *testing.T) Harness) {
	ctx := context.Background()

	counter := func(t *testing.T, h Harness) tiercache.AtomicCounter {
		c, err := tiercache.AsCounter(h.Backend)
		require.NoError(t, err)
		return c
	}

	t.Run("CreateOnFirstUse", func(t *testing.T) {
		h := newHarness(t)
		c := counter(t, h)

		n, ok := c.Increment(ctx, "hits", 1, tiercache.NoExpiry)
		require.True(t, ok)
		assert.Equal(t, int64(1), n)

		n, ok = c.Increment(ctx, "hits", 5, tiercache.NoExpiry)
		require.True(t, ok)
		assert.Equal(t, int64(6), n)

		n, ok = c.Decrement(ctx, "hits", 2, tiercache.NoExpiry)
		require.True(t, ok)
		assert.Equal(t, int64(4), n)

		if h.CountersReadable {
			v, ok := h.Backend.Get(ctx, "hits")
			assert.True(t, ok)
			assert.Equal(t, "4", v)
		}
	})

	t.Run("TTLFixedAtCreation", func(t *testing.T) {
		h := newHarness(t)
		c := counter(t, h)

		n, ok := c.Increment(ctx, "window", 3, h.ttl())
		require.True(t, ok)
		assert.Equal(t, int64(3), n)

		// a later ttl must not extend the first one
		n, ok = c.Increment(ctx, "window", 1, time.Hour)
		require.True(t, ok)
		assert.Equal(t, int64(4), n)

		h.advance(2 * h.ttl())
		n, ok = c.Increment(ctx, "window", 1, tiercache.NoExpiry)
		require.True(t, ok)
		assert.Equal(t, int64(1), n, "counter should have expired with its first ttl")
	})

	t.Run("Concurrent", func(t *testing.T) {
		h := newHarness(t)
		if !h.Concurrent {
			t.Skip("backend is not safe for concurrent callers")
		}
		c := counter(t, h)

		const workers, rounds = 8, 50
		var (
			wg   sync.WaitGroup
			done atomic.Int64
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range rounds {
					if _, ok := c.Increment(ctx, "shared", 1, tiercache.NoExpiry); ok {
						done.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		require.Positive(t, done.Load())
		n, ok := c.Increment(ctx, "shared", 0, tiercache.NoExpiry)
		require.True(t, ok)
		assert.Equal(t, done.Load(), n, "every successful increment must be counted")
	})

	t.Run("IndependentKeys", func(t *testing.T) {
		h := newHarness(t)
		c := counter(t, h)
		_, ok := c.Increment(ctx, "a", 10, tiercache.NoExpiry)
		require.True(t, ok)
		n, ok := c.Increment(ctx, "b", 1, tiercache.NoExpiry)
		require.True(t, ok)
		assert.Equal(t, int64(1), n)
	})
}
