package slog

import (
	"bytes"
	stdslog "log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unkn0wn-root/tiercache"
)

func TestSlog(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{
		Level: stdslog.LevelInfo,
		ReplaceAttr: func(_ []string, a stdslog.Attr) stdslog.Attr {
			if a.Key == stdslog.TimeKey {
				return stdslog.Attr{}
			}
			return a
		},
	})
	l := New(stdslog.New(h))

	l.Debug("hidden", nil)
	l.Warn("cache operation failed", tiercache.Fields{"op": "get", "backend": "memcache"})

	assert.Equal(t, "level=WARN msg=\"cache operation failed\" backend=memcache op=get\n", buf.String())
}
