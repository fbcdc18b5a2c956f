package memcache

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	mc "github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/backendtest"
)

type fakeItem struct {
	value     []byte
	expiresAt int64 // unix seconds, 0 = never
}

// fakeClient mimics memcached semantics on top of a map and a manual clock.
type fakeClient struct {
	mu     sync.Mutex
	now    int64
	data   map[string]fakeItem
	err    error
	delErr error // fails Delete only
}

func newFakeClient() *fakeClient {
	return &fakeClient{now: 1_700_000_000, data: map[string]fakeItem{}}
}

func (f *fakeClient) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += int64(d / time.Second)
}

func (f *fakeClient) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Unix(f.now, 0)
}

func (f *fakeClient) live(key string) (fakeItem, bool) {
	it, ok := f.data[key]
	if !ok {
		return fakeItem{}, false
	}
	if it.expiresAt != 0 && it.expiresAt <= f.now {
		delete(f.data, key)
		return fakeItem{}, false
	}
	return it, true
}

func (f *fakeClient) abs(exp int32) int64 {
	switch {
	case exp == 0:
		return 0
	case exp > relativeLimit:
		return int64(exp)
	default:
		return f.now + int64(exp)
	}
}

func (f *fakeClient) Get(key string) (*mc.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	it, ok := f.live(key)
	if !ok {
		return nil, mc.ErrCacheMiss
	}
	return &mc.Item{Key: key, Value: append([]byte(nil), it.value...)}, nil
}

func (f *fakeClient) GetMulti(keys []string) (map[string]*mc.Item, error) {
	out := map[string]*mc.Item{}
	for _, k := range keys {
		it, err := f.Get(k)
		if errors.Is(err, mc.ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = it
	}
	return out, nil
}

func (f *fakeClient) Set(item *mc.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.data[item.Key] = fakeItem{value: append([]byte(nil), item.Value...), expiresAt: f.abs(item.Expiration)}
	return nil
}

func (f *fakeClient) Add(item *mc.Item) error {
	f.mu.Lock()
	if _, ok := f.live(item.Key); ok {
		f.mu.Unlock()
		return mc.ErrNotStored
	}
	f.mu.Unlock()
	return f.Set(item)
}

func (f *fakeClient) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.delErr != nil {
		return f.delErr
	}
	if _, ok := f.live(key); !ok {
		return mc.ErrCacheMiss
	}
	delete(f.data, key)
	return nil
}

func (f *fakeClient) step(key string, delta uint64, down bool) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	it, ok := f.live(key)
	if !ok {
		return 0, mc.ErrCacheMiss
	}
	n, err := strconv.ParseUint(string(it.value), 10, 64)
	if err != nil {
		return 0, errors.New("memcache: client error: cannot increment or decrement non-numeric value")
	}
	switch {
	case !down:
		n += delta
	case delta > n:
		n = 0
	default:
		n -= delta
	}
	it.value = []byte(strconv.FormatUint(n, 10))
	f.data[key] = it
	return n, nil
}

func (f *fakeClient) Increment(key string, delta uint64) (uint64, error) { return f.step(key, delta, false) }
func (f *fakeClient) Decrement(key string, delta uint64) (uint64, error) { return f.step(key, delta, true) }

func (f *fakeClient) FlushAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	clear(f.data)
	return nil
}

func newCache(t *testing.T, f *fakeClient, prefix string) *Cache[string] {
	t.Helper()
	c, err := New(Config[string]{Client: f, Codec: codec.String{}, Prefix: prefix, Now: f.clock})
	require.NoError(t, err)
	return c
}

func TestMemcache(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backendtest.Harness {
		f := newFakeClient()
		return backendtest.Harness{
			Backend:          newCache(t, f, "app:"),
			Advance:          f.advance,
			CountersReadable: true,
			Concurrent:       true,
		}
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config[string]{Codec: codec.String{}})
	assert.ErrorIs(t, err, ErrNilClient)
	_, err = New(Config[string]{Client: newFakeClient()})
	assert.ErrorIs(t, err, ErrNilCodec)
}

func TestLongTTLBecomesTimestamp(t *testing.T) {
	f := newFakeClient()
	c := newCache(t, f, "")

	assert.Equal(t, int32(60), c.expiration(time.Minute))
	assert.Equal(t, int32(relativeLimit), c.expiration(relativeLimit*time.Second))
	assert.Equal(t, int32(f.now+relativeLimit+1), c.expiration((relativeLimit+1)*time.Second))
	assert.Equal(t, int32(0), c.expiration(tiercache.NoExpiry))
}

func TestExpirationPast2038IsClamped(t *testing.T) {
	ctx := context.Background()
	f := newFakeClient()
	c := newCache(t, f, "")
	twentyYears := 20 * 365 * 24 * time.Hour

	assert.Equal(t, int32(math.MaxInt32), c.expiration(twentyYears))

	require.True(t, c.Set(ctx, "k", "v", twentyYears))
	v, ok := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestDecrementClampsAtZero(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, newFakeClient(), "")

	n, ok := c.Decrement(ctx, "k", 5, tiercache.NoExpiry)
	require.True(t, ok)
	assert.Equal(t, int64(0), n)
}

func TestNegativeIncrementUsesDecrement(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, newFakeClient(), "")

	c.Increment(ctx, "k", 10, tiercache.NoExpiry)
	n, ok := c.Increment(ctx, "k", -3, tiercache.NoExpiry)
	require.True(t, ok)
	assert.Equal(t, int64(7), n)
}

func TestMinInt64StepKeepsDirection(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, newFakeClient(), "")

	n, ok := c.Decrement(ctx, "k", math.MinInt64, tiercache.NoExpiry)
	require.True(t, ok)
	assert.Equal(t, int64(math.MinInt64), n, "decrementing by MinInt64 adds 1<<63")

	n, ok = c.Increment(ctx, "z", math.MinInt64, tiercache.NoExpiry)
	require.True(t, ok)
	assert.Equal(t, int64(0), n, "incrementing by MinInt64 decrements and clamps")
}

type healHooks struct {
	tiercache.NopHooks
	ops     []string
	reasons []string
}

func (h *healHooks) BackendError(_, op string, _ error) { h.ops = append(h.ops, op) }
func (h *healHooks) SelfHeal(_, _, reason string) { h.reasons = append(h.reasons, reason) }

func TestUndecodableValueIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFakeClient()
	hooks := &healHooks{}
	c, err := New(Config[int64]{Client: f, Codec: codec.Int64{}, Hooks: hooks, Now: f.clock})
	require.NoError(t, err)

	f.data["bad"] = fakeItem{value: []byte("not a number")}
	_, ok := c.Get(ctx, "bad")
	assert.False(t, ok)
	assert.NotContains(t, f.data, "bad")
	assert.Equal(t, []string{"value_decode"}, hooks.reasons)
	assert.Empty(t, hooks.ops)
}

func TestFailedSelfHealDeleteIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFakeClient()
	hooks := &healHooks{}
	c, err := New(Config[int64]{Client: f, Codec: codec.Int64{}, Hooks: hooks, Now: f.clock})
	require.NoError(t, err)

	f.data["bad"] = fakeItem{value: []byte("not a number")}
	f.delErr = errors.New("server is read-only")

	_, ok := c.Get(ctx, "bad")
	assert.False(t, ok)
	assert.Empty(t, c.GetMultiple(ctx, []string{"bad"}))
	assert.Equal(t, []string{"self_heal", "self_heal"}, hooks.ops)
	assert.Empty(t, hooks.reasons)
	assert.Contains(t, f.data, "bad")
}

func TestClientErrorsBecomeFalse(t *testing.T) {
	ctx := context.Background()
	f := newFakeClient()
	c := newCache(t, f, "")
	f.err = errors.New("dial tcp: connection refused")

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, c.Set(ctx, "k", "v", time.Minute))
	assert.False(t, c.Delete(ctx, "k"))
	assert.False(t, c.Flush(ctx))
	_, ok = c.Increment(ctx, "k", 1, tiercache.NoExpiry)
	assert.False(t, ok)
}
