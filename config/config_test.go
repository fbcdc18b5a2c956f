package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/logcache"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: debug
promote: true
promote_ttl: 5m
tiers:
  - type: memory
  - type: shm
    cleanup: 30
  - type: redis
    addr: localhost:6379
    prefix: "app:"
`))
	require.NoError(t, err)
	assert.True(t, cfg.Promote)
	assert.Equal(t, Duration(5*time.Minute), cfg.PromoteTTL)
	require.Len(t, cfg.Tiers, 3)
	assert.Equal(t, Duration(30*time.Second), cfg.Tiers[1].Cleanup)
	assert.Equal(t, "app:", cfg.Tiers[2].Prefix)
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"no tiers":       "tiers: []",
		"unknown type":   "tiers: [{type: mongo}]",
		"unknown field":  "tiers: [{type: memory, colour: red}]",
		"redis addr":     "tiers: [{type: redis}]",
		"memcache addrs": "tiers: [{type: memcache}]",
		"sqlite dsn":     "tiers: [{type: sqlite}]",
		"log level":      "log: {level: chatty}\ntiers: [{type: memory}]",
		"bad duration":   "promote_ttl: soon\ntiers: [{type: memory}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(p, []byte("tiers: [{type: 'null'}]\n"), 0o600))
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "null", cfg.Tiers[0].Type)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildEveryLocalTier(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	cfg, err := Parse([]byte(fmt.Sprintf(`
promote: true
tiers:
  - type: memory
    log_level: debug
  - type: shm
  - type: ristretto
  - type: bigcache
  - type: tempfile
    dir: %s
  - type: sqlite
    dsn: %s
  - type: redis
    addr: %s
    prefix: "t:"
`, filepath.Join(dir, "files"), filepath.Join(dir, "cache.db"), mr.Addr())))
	require.NoError(t, err)

	s, err := Build(ctx, cfg, codec.String{}, Options{Logger: tiercache.NopLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close(ctx)) })

	tiers := s.Cache.Tiers()
	require.Len(t, tiers, 7)
	_, wrapped := tiers[0].(*logcache.CountingCache[string])
	assert.True(t, wrapped, "memory tier should be wrapped with its counter kept")

	require.True(t, s.Cache.Set(ctx, "k", "v", time.Minute))
	for i, b := range tiers {
		v, ok := b.Get(ctx, "k")
		assert.True(t, ok, "tier %d (%s)", i, b.Name())
		assert.Equal(t, "v", v, "tier %d (%s)", i, b.Name())
	}
	assert.True(t, mr.Exists("t:k"))

	// wipe the top tiers; a read from the bottom promotes back up
	for _, b := range tiers[:6] {
		require.True(t, b.Delete(ctx, "k"))
	}
	v, ok := s.Cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	v, ok = tiers[0].Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	assert.True(t, s.Cache.Delete(ctx, "k"))
	assert.False(t, s.Cache.Has(ctx, "k"))
}

func TestBuildDefaultLogger(t *testing.T) {
	ctx := context.Background()
	cfg, err := Parse([]byte("log: {level: error}\ntiers: [{type: memory}, {type: 'null'}]\n"))
	require.NoError(t, err)

	s, err := Build(ctx, cfg, codec.String{}, Options{})
	require.NoError(t, err)
	defer s.Close(ctx)
	assert.True(t, s.Cache.Set(ctx, "k", "v", tiercache.NoExpiry))
}

func TestBuildBadLogLevelClosesEarlierTiers(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Tiers: []Tier{{Type: "ristretto"}, {Type: "memory", LogLevel: "chatty"}}}
	_, err := Build(ctx, cfg, codec.String{}, Options{Logger: tiercache.NopLogger{}})
	assert.ErrorIs(t, err, tiercache.ErrInvalidArgument)
}
