package logcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/backend/memory"
	"github.com/unkn0wn-root/tiercache/backend/null"
)

type line struct {
	level string
	msg   string
}

type fakeLogger struct{ lines []line }

func (l *fakeLogger) Debug(msg string, _ tiercache.Fields) { l.lines = append(l.lines, line{"debug", msg}) }
func (l *fakeLogger) Info(msg string, _ tiercache.Fields)  { l.lines = append(l.lines, line{"info", msg}) }
func (l *fakeLogger) Warn(msg string, _ tiercache.Fields)  { l.lines = append(l.lines, line{"warn", msg}) }
func (l *fakeLogger) Error(msg string, _ tiercache.Fields) { l.lines = append(l.lines, line{"error", msg}) }

func (l *fakeLogger) msgs() []string {
	out := make([]string, len(l.lines))
	for i, ln := range l.lines {
		out[i] = ln.msg
	}
	return out
}

func TestInvalidLevel(t *testing.T) {
	_, err := New[string](memory.New[string](memory.Config{}), nil, "loud")
	assert.ErrorIs(t, err, tiercache.ErrInvalidArgument)
}

func TestLogsEveryOperation(t *testing.T) {
	ctx := context.Background()
	log := &fakeLogger{}
	c, err := New[string](memory.New[string](memory.Config{}), log, LevelInfo)
	require.NoError(t, err)

	c.Get(ctx, "k")
	c.Set(ctx, "k", "hello", time.Minute)
	c.Get(ctx, "k")
	c.Has(ctx, "k")
	c.GetMultiple(ctx, []string{"k", "x"})
	c.SetMultiple(ctx, map[string]string{"b": "2", "a": "1"}, tiercache.NoExpiry)
	c.DeleteMultiple(ctx, []string{"a", "b"})
	c.Delete(ctx, "k")
	c.Clean(ctx)
	c.Flush(ctx)

	assert.Equal(t, []string{
		"get k MISS",
		"set k SUCCESS ttl=1m0s, type=string, size=5",
		"get k HIT size=5",
		"has k true",
		"getMultiple [k, x] count=1",
		"setMultiple [a, b] SUCCESS ttl=none",
		"deleteMultiple [a, b] SUCCESS",
		"delete k SUCCESS",
		"clean SUCCESS",
		"flush SUCCESS",
	}, log.msgs())
	for _, ln := range log.lines {
		assert.Equal(t, "info", ln.level)
	}
}

func TestFailuresLogged(t *testing.T) {
	ctx := context.Background()
	log := &fakeLogger{}
	c, err := New[string](null.New[string](), log, "")
	require.NoError(t, err)

	assert.False(t, c.Set(ctx, "k", "v", tiercache.NoExpiry))
	assert.False(t, c.Delete(ctx, "k"))
	assert.Equal(t, []string{
		"set k FAILURE ttl=none, type=string, size=1",
		"delete k FAILURE",
	}, log.msgs())
	assert.Equal(t, "debug", log.lines[0].level)
}

func TestWrapKeepsCounters(t *testing.T) {
	ctx := context.Background()
	log := &fakeLogger{}

	b, err := Wrap[string](memory.New[string](memory.Config{}), log, LevelDebug)
	require.NoError(t, err)
	assert.True(t, b.Capabilities().Has(tiercache.CapCounter))

	counter, err := tiercache.AsCounter(b)
	require.NoError(t, err)
	n, ok := counter.Increment(ctx, "n", 3, tiercache.NoExpiry)
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)
	counter.Decrement(ctx, "n", 1, tiercache.NoExpiry)
	assert.Equal(t, []string{"increment n by 3 SUCCESS, value=3", "decrement n by 1 SUCCESS, value=2"}, log.msgs())

	plain, err := Wrap[string](null.New[string](), log, LevelDebug)
	require.NoError(t, err)
	_, err = tiercache.AsCounter(plain)
	assert.Error(t, err)
}

func TestSizeEstimate(t *testing.T) {
	assert.Equal(t, 3, size("abc"))
	assert.Equal(t, 2, size([]byte{1, 2}))
	assert.Positive(t, size(map[string]int{"a": 1}))
	assert.Equal(t, 0, size(func() {}))
}
