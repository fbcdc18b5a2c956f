package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/backendtest"
)

type errHooks struct {
	tiercache.NopHooks
	ops []string
}

func (h *errHooks) BackendError(_, op string, _ error) { h.ops = append(h.ops, op) }

func setup(t *testing.T, prefix string, hooks tiercache.Hooks) (*miniredis.Miniredis, *Cache[string]) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	c, err := New(Config[string]{
		Client:      rdb,
		Codec:       codec.String{},
		Prefix:      prefix,
		CloseClient: true,
		Hooks:       hooks,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(context.Background()) })
	return mr, c
}

func TestRedis(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backendtest.Harness {
		mr, c := setup(t, "app:", nil)
		return backendtest.Harness{
			Backend:          c,
			Advance:          mr.FastForward,
			CountersReadable: true,
			Concurrent:       true,
		}
	})
}

func TestRedisWithoutPrefix(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backendtest.Harness {
		mr, c := setup(t, "", nil)
		return backendtest.Harness{Backend: c, Advance: mr.FastForward, CountersReadable: true}
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config[string]{Codec: codec.String{}})
	assert.ErrorIs(t, err, ErrNilClient)

	mr := miniredis.RunT(t)
	_, err = New(Config[string]{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})})
	assert.ErrorIs(t, err, ErrNilCodec)
}

func TestKeysArePrefixed(t *testing.T) {
	ctx := context.Background()
	mr, c := setup(t, "app:", nil)

	require.True(t, c.Set(ctx, "user:1", "ann", time.Minute))
	got, err := mr.Get("app:user:1")
	require.NoError(t, err)
	assert.Equal(t, "ann", got)
	assert.Equal(t, time.Minute, mr.TTL("app:user:1"))
}

func TestNoExpiryHasNoTTL(t *testing.T) {
	mr, c := setup(t, "", nil)
	require.True(t, c.Set(context.Background(), "k", "v", tiercache.NoExpiry))
	assert.Equal(t, time.Duration(0), mr.TTL("k"))
}

func TestFlushWithPrefixKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr, c := setup(t, "app:", nil)
	require.NoError(t, mr.Set("other:k", "x"))
	require.NoError(t, mr.Set("app*literal", "x"))
	require.True(t, c.SetMultiple(ctx, map[string]string{"a": "1", "b": "2"}, tiercache.NoExpiry))

	assert.True(t, c.Flush(ctx))
	assert.False(t, mr.Exists("app:a"))
	assert.False(t, mr.Exists("app:b"))
	assert.True(t, mr.Exists("other:k"))
	assert.True(t, mr.Exists("app*literal"))
}

func TestCounterTTLSetOnCreateOnly(t *testing.T) {
	ctx := context.Background()
	mr, c := setup(t, "", nil)

	n, ok := c.Increment(ctx, "rate", 1, 10*time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 10*time.Second, mr.TTL("rate"))

	mr.FastForward(4 * time.Second)
	n, ok = c.Increment(ctx, "rate", 1, time.Hour)
	require.True(t, ok)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 6*time.Second, mr.TTL("rate"))
}

func TestCounterOnNonNumericFails(t *testing.T) {
	ctx := context.Background()
	hooks := &errHooks{}
	_, c := setup(t, "", hooks)
	require.True(t, c.Set(ctx, "k", "text", tiercache.NoExpiry))

	_, ok := c.Increment(ctx, "k", 1, tiercache.NoExpiry)
	assert.False(t, ok)
	assert.Equal(t, []string{"increment"}, hooks.ops)
}

func TestServerErrorsBecomeFalse(t *testing.T) {
	ctx := context.Background()
	hooks := &errHooks{}
	mr, c := setup(t, "", hooks)
	require.True(t, c.Set(ctx, "k", "v", tiercache.NoExpiry))

	mr.SetError("LOADING redis is loading the dataset in memory")
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, c.Set(ctx, "k", "v2", tiercache.NoExpiry))
	assert.False(t, c.Delete(ctx, "k"))
	assert.Empty(t, c.GetMultiple(ctx, []string{"k"}))
	_, ok = c.Increment(ctx, "n", 1, tiercache.NoExpiry)
	assert.False(t, ok)
	assert.Equal(t, []string{"get", "set", "delete", "get_multiple", "increment"}, hooks.ops)

	mr.SetError("")
	v, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestUndecodableValueIsDropped(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c, err := New(Config[int64]{Client: rdb, Codec: codec.Int64{}})
	require.NoError(t, err)
	require.NoError(t, mr.Set("n", "not-a-number"))

	_, ok := c.Get(ctx, "n")
	assert.False(t, ok)
	assert.False(t, mr.Exists("n"))
}
