package bigcache

import (
	"context"
	"testing"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/backendtest"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type healHooks struct {
	tiercache.NopHooks
	reasons []string
}

func (h *healHooks) SelfHeal(_, _, reason string) { h.reasons = append(h.reasons, reason) }

func newCache[V any](t *testing.T, cfg Config[V]) *Cache[V] {
	t.Helper()
	cfg.Shards = 8
	cfg.MaxEntriesInWindow = 64
	cfg.MaxEntrySize = 64
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestBigcache(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backendtest.Harness {
		clk := &clock{t: time.Unix(1_700_000_000, 0)}
		return backendtest.Harness{
			Backend: newCache(t, Config[string]{Codec: codec.String{}, Now: clk.now}),
			Advance: clk.advance,
		}
	})
}

func TestNilCodec(t *testing.T) {
	_, err := New(context.Background(), Config[string]{})
	assert.ErrorIs(t, err, ErrNilCodec)
}

func TestCleanRemovesExpired(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := newCache(t, Config[string]{Codec: codec.String{}, Now: clk.now})

	require.True(t, c.Set(ctx, "short", "a", time.Second))
	require.True(t, c.Set(ctx, "long", "b", time.Hour))
	require.True(t, c.Set(ctx, "forever", "c", tiercache.NoExpiry))
	clk.advance(time.Minute)

	require.True(t, c.Clean(ctx))
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Has(ctx, "long"))
	assert.True(t, c.Has(ctx, "forever"))
}

func TestSelfHeal(t *testing.T) {
	ctx := context.Background()
	hooks := &healHooks{}
	c := newCache(t, Config[int64]{Codec: codec.Int64{}, Hooks: hooks})

	require.NoError(t, c.c.Set("raw", []byte("not a frame")))
	_, ok := c.Get(ctx, "raw")
	assert.False(t, ok)

	sc := newCache(t, Config[string]{Codec: codec.String{}})
	require.True(t, sc.Set(ctx, "text", "abc", tiercache.NoExpiry))
	frame, err := sc.c.Get("text")
	require.NoError(t, err)
	require.NoError(t, c.c.Set("text", frame))
	_, ok = c.Get(ctx, "text")
	assert.False(t, ok)

	assert.Equal(t, []string{"corrupt", "value_decode"}, hooks.reasons)
	_, err = c.c.Get("raw")
	assert.ErrorIs(t, err, bc.ErrEntryNotFound)
	assert.Equal(t, 0, c.Len())
}
