// Package config builds a TieredCache from a YAML description of its tiers.
//
//	log:
//	  level: info
//	promote: true
//	promote_ttl: 5m
//	tiers:
//	  - type: memory
//	  - type: redis
//	    addr: localhost:6379
//	    prefix: "app:"
//	  - type: sqlite
//	    dsn: /var/cache/app.db
package config

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	mc "github.com/bradfitz/gomemcache/memcache"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/backend/bigcache"
	"github.com/unkn0wn-root/tiercache/backend/memcache"
	"github.com/unkn0wn-root/tiercache/backend/memory"
	"github.com/unkn0wn-root/tiercache/backend/null"
	"github.com/unkn0wn-root/tiercache/backend/redis"
	"github.com/unkn0wn-root/tiercache/backend/ristretto"
	"github.com/unkn0wn-root/tiercache/backend/shm"
	"github.com/unkn0wn-root/tiercache/backend/sqlstore"
	"github.com/unkn0wn-root/tiercache/backend/tempfile"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/logcache"
	zaplog "github.com/unkn0wn-root/tiercache/log/zap"
)

var ErrConfig = errors.New("config: invalid configuration")

// Duration reads Go duration strings ("90s", "1h30m") or plain seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: duration must be a scalar", ErrConfig, n.Line)
	}
	if v, err := time.ParseDuration(n.Value); err == nil {
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := n.Decode(&secs); err != nil {
		return fmt.Errorf("%w: line %d: %q is not a duration", ErrConfig, n.Line, n.Value)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

type Config struct {
	Log        Log      `yaml:"log"`
	Promote    bool     `yaml:"promote"`
	PromoteTTL Duration `yaml:"promote_ttl"`
	Tiers      []Tier   `yaml:"tiers"`
}

type Log struct {
	// Level of the default zap logger: debug, info, warn, error. Empty => info.
	Level string `yaml:"level"`
}

// Tier describes one backend. Only the fields of its Type are read.
type Tier struct {
	Type string `yaml:"type"`

	// LogLevel wraps the tier in a logcache decorator at this level.
	LogLevel string `yaml:"log_level"`

	Prefix  string   `yaml:"prefix"`   // redis, memcache
	Addr    string   `yaml:"addr"`     // redis
	DB      int      `yaml:"db"`       // redis
	Addrs   []string `yaml:"addrs"`    // memcache
	Dir     string   `yaml:"dir"`      // tempfile
	DSN     string   `yaml:"dsn"`      // sqlite
	Table   string   `yaml:"table"`    // sqlite
	MaxMB   int      `yaml:"max_mb"`   // bigcache
	MaxCost int64    `yaml:"max_cost"` // ristretto
	Cleanup Duration `yaml:"cleanup"`  // shm janitor, bigcache clean window
}

var tierTypes = map[string]bool{
	"memory": true, "shm": true, "ristretto": true, "bigcache": true,
	"tempfile": true, "sqlite": true, "redis": true, "memcache": true, "null": true,
}

// Load reads and validates a YAML file.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Parse is Decode over a byte slice.
func Parse(b []byte) (Config, error) { return Decode(bytes.NewReader(b)) }

// Decode reads YAML from r. Unknown fields are rejected.
func Decode(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrConfig)
	}
	if _, err := level(c.Log.Level); err != nil {
		return err
	}
	for i, t := range c.Tiers {
		if !tierTypes[t.Type] {
			return fmt.Errorf("%w: tier %d: unknown type %q", ErrConfig, i, t.Type)
		}
		switch {
		case t.Type == "redis" && t.Addr == "":
			return fmt.Errorf("%w: tier %d: redis needs addr", ErrConfig, i)
		case t.Type == "memcache" && len(t.Addrs) == 0:
			return fmt.Errorf("%w: tier %d: memcache needs addrs", ErrConfig, i)
		case t.Type == "sqlite" && t.DSN == "":
			return fmt.Errorf("%w: tier %d: sqlite needs dsn", ErrConfig, i)
		}
	}
	return nil
}

func level(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	l, err := zapcore.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("%w: log level: %v", ErrConfig, err)
	}
	return l, nil
}

// Options override what Build would otherwise create.
type Options struct {
	Logger tiercache.Logger // nil => zap production logger at Config.Log.Level
	Hooks  tiercache.Hooks
}

// Stack is a built TieredCache plus the resources it owns.
type Stack[V any] struct {
	Cache   *tiercache.TieredCache[V]
	closers []func(context.Context) error
}

// Close releases owned clients, databases and background goroutines.
func (s *Stack[V]) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Build constructs every tier with c for the byte-oriented backends.
// On error everything built so far is closed.
func Build[V any](ctx context.Context, cfg Config, c codec.Codec[V], opts Options) (*Stack[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: nil codec", ErrConfig)
	}
	log := opts.Logger
	if log == nil {
		lvl, _ := level(cfg.Log.Level)
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(lvl)
		zl, err := zc.Build()
		if err != nil {
			return nil, err
		}
		log = zaplog.New(zl)
	}

	s := &Stack[V]{}
	tiers := make([]tiercache.Backend[V], 0, len(cfg.Tiers))
	for i, t := range cfg.Tiers {
		b, err := buildTier(ctx, s, t, c, log, opts.Hooks)
		if err == nil && t.LogLevel != "" {
			b, err = logcache.Wrap(b, log, logcache.Level(t.LogLevel))
		}
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("config: tier %d (%s): %w", i, t.Type, err)
		}
		tiers = append(tiers, b)
	}

	tc, err := tiercache.NewTiered(tiercache.TieredOptions[V]{
		Tiers:      tiers,
		Logger:     log,
		Hooks:      opts.Hooks,
		Promote:    cfg.Promote,
		PromoteTTL: time.Duration(cfg.PromoteTTL),
	})
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.Cache = tc
	return s, nil
}

func buildTier[V any](ctx context.Context, s *Stack[V], t Tier, c codec.Codec[V], log tiercache.Logger, hooks tiercache.Hooks) (tiercache.Backend[V], error) {
	switch t.Type {
	case "memory":
		return memory.New[V](memory.Config{}), nil

	case "null":
		return null.New[V](), nil

	case "shm":
		cleanup := time.Duration(t.Cleanup)
		return shm.New[V](shm.Config{CleanupInterval: cleanup, Logger: log, Hooks: hooks}), nil

	case "ristretto":
		r, err := ristretto.New(ristretto.Config[V]{MaxCost: t.MaxCost, Logger: log, Hooks: hooks})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, r.Close)
		return r, nil

	case "bigcache":
		b, err := bigcache.New(ctx, bigcache.Config[V]{
			Codec:              c,
			CleanWindow:        time.Duration(t.Cleanup),
			HardMaxCacheSizeMB: t.MaxMB,
			Logger:             log,
			Hooks:              hooks,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, b.Close)
		return b, nil

	case "tempfile":
		return tempfile.New(tempfile.Config[V]{Dir: t.Dir, Codec: c, Logger: log, Hooks: hooks})

	case "sqlite":
		db, err := sql.Open("sqlite", t.DSN)
		if err != nil {
			return nil, err
		}
		// one writer; sqlite serializes anyway
		db.SetMaxOpenConns(1)
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })
		st, err := sqlstore.New(sqlstore.Config[V]{DB: db, Table: t.Table, Codec: c, Logger: log, Hooks: hooks})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return st.Close() })
		if err := st.CreateTable(ctx); err != nil {
			return nil, err
		}
		return st, nil

	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: t.Addr, DB: t.DB})
		r, err := redis.New(redis.Config[V]{Client: rdb, Codec: c, Prefix: t.Prefix, CloseClient: true, Logger: log, Hooks: hooks})
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		s.closers = append(s.closers, r.Close)
		return r, nil

	case "memcache":
		return memcache.New(memcache.Config[V]{Client: mc.New(t.Addrs...), Codec: c, Prefix: t.Prefix, Logger: log, Hooks: hooks})
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrConfig, t.Type)
}
