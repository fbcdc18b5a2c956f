// Package sqlstore keeps cache entries in a relational table through database/sql.
//
// Expected table (see CreateTable):
//
//	CREATE TABLE cache (
//	    entry   VARCHAR(255) PRIMARY KEY NOT NULL,
//	    value   BLOB,
//	    expires BIGINT NOT NULL
//	);
//
// expires is a unix timestamp in seconds; entries without a TTL use 2^32-1.
// Statements use '?' placeholders (SQLite, MySQL).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/obs"
	"github.com/unkn0wn-root/tiercache/internal/util"
)

// NeverExpires is the expires value stored for NoExpiry entries.
const NeverExpires int64 = 1<<32 - 1

var (
	ErrNilDB    = errors.New("sqlstore: nil db")
	ErrNilCodec = errors.New("sqlstore: nil codec")
	ErrTable    = errors.New("sqlstore: invalid table name")

	tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type Config[V any] struct {
	DB    *sql.DB
	Table string // default "cache"
	Codec codec.Codec[V]

	Logger tiercache.Logger // if nil, NopLogger is used
	Hooks  tiercache.Hooks  // if nil, NopHooks is used
	Now    func() time.Time // defaults to time.Now
}

type Cache[V any] struct {
	db    *sql.DB
	codec codec.Codec[V]
	now   func() time.Time
	rep   obs.Reporter
	q     queries

	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

var (
	_ tiercache.Backend[string] = (*Cache[string])(nil)
	_ tiercache.AtomicCounter   = (*Cache[string])(nil)
)

type queries struct {
	get, set, update, updateValue, del, delStale, clean, flush, create string
	table                                                          string
}

func newQueries(t string) queries {
	return queries{
		table:       t,
		get:         "SELECT value FROM " + t + " WHERE entry=? AND expires>=?",
		set:         "INSERT INTO " + t + " (entry,value,expires) VALUES(?,?,?)",
		update:      "UPDATE " + t + " SET value=?, expires=? WHERE entry=?",
		updateValue: "UPDATE " + t + " SET value=? WHERE entry=?",
		del:         "DELETE FROM " + t + " WHERE entry=?",
		delStale:    "DELETE FROM " + t + " WHERE entry=? AND expires<?",
		clean:       "DELETE FROM " + t + " WHERE expires<?",
		flush:       "DELETE FROM " + t,
		create: "CREATE TABLE IF NOT EXISTS " + t + " (" +
			"entry VARCHAR(255) PRIMARY KEY NOT NULL, " +
			"value BLOB, " +
			"expires BIGINT NOT NULL)",
	}
}

func New[V any](cfg Config[V]) (*Cache[V], error) {
	if cfg.DB == nil {
		return nil, ErrNilDB
	}
	if cfg.Codec == nil {
		return nil, ErrNilCodec
	}
	table := cfg.Table
	if table == "" {
		table = "cache"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrTable, table)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		db:    cfg.DB,
		codec: cfg.Codec,
		now:   now,
		rep:   obs.New("sql", cfg.Logger, cfg.Hooks),
		q:     newQueries(table),
		stmts: make(map[string]*sql.Stmt),
	}, nil
}

// CreateTable creates the cache table if it does not exist.
func (c *Cache[V]) CreateTable(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, c.q.create); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS "+c.q.table+"_expires ON "+c.q.table+" (expires)")
	return err
}

// Close releases the prepared statements. The *sql.DB is left open.
func (c *Cache[V]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for k, s := range c.stmts {
		errs = append(errs, s.Close())
		delete(c.stmts, k)
	}
	return errors.Join(errs...)
}

func (c *Cache[V]) Name() string { return c.rep.Name() }

func (c *Cache[V]) Capabilities() tiercache.Capability {
	return tiercache.CapBasic | tiercache.CapBatch | tiercache.CapCounter
}

// stmt prepares query once and reuses it.
func (c *Cache[V]) stmt(ctx context.Context, query string) (*sql.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stmts[query]; ok {
		return s, nil
	}
	s, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	c.stmts[query] = s
	return s, nil
}

func (c *Cache[V]) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s, err := c.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.ExecContext(ctx, args...)
}

func (c *Cache[V]) expires(ttl time.Duration) int64 {
	if ttl == tiercache.NoExpiry {
		return NeverExpires
	}
	return c.now().Unix() + tiercache.TTLSeconds(ttl)
}

func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	raw, ok := c.getRaw(ctx, key, "get")
	if !ok {
		return zero, false
	}
	v, err := c.codec.Decode(raw)
	if err != nil {
		_, err = c.exec(ctx, c.q.del, key)
		c.rep.Heal(key, "value_decode", err)
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) getRaw(ctx context.Context, key, op string) ([]byte, bool) {
	s, err := c.stmt(ctx, c.q.get)
	if err != nil {
		return nil, c.rep.Fail(op, key, err)
	}
	var raw []byte
	err = s.QueryRowContext(ctx, key, c.now().Unix()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		return nil, c.rep.Fail(op, key, err)
	}
	return raw, true
}

func (c *Cache[V]) Has(ctx context.Context, key string) bool {
	_, ok := c.getRaw(ctx, key, "has")
	return ok
}

// Set inserts the entry and falls back to an update when the row exists.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) bool {
	if tiercache.IsNil(value) {
		return c.Delete(ctx, key)
	}
	raw, err := c.codec.Encode(value)
	if err != nil {
		return c.rep.Fail("set", key, err)
	}
	return c.setRaw(ctx, key, raw, c.expires(ttl))
}

func (c *Cache[V]) setRaw(ctx context.Context, key string, raw []byte, expires int64) bool {
	if _, err := c.exec(ctx, c.q.set, key, raw, expires); err == nil {
		return true
	}
	if _, err := c.exec(ctx, c.q.update, raw, expires, key); err != nil {
		return c.rep.Fail("set", key, err)
	}
	return true
}

func (c *Cache[V]) Delete(ctx context.Context, key string) bool {
	if _, err := c.exec(ctx, c.q.del, key); err != nil {
		return c.rep.Fail("delete", key, err)
	}
	return true
}

func (c *Cache[V]) Clean(ctx context.Context) bool {
	if _, err := c.db.ExecContext(ctx, c.q.clean, c.now().Unix()); err != nil {
		return c.rep.Fail("clean", "", err)
	}
	return true
}

func (c *Cache[V]) Flush(ctx context.Context) bool {
	if _, err := c.db.ExecContext(ctx, c.q.flush); err != nil {
		return c.rep.Fail("flush", "", err)
	}
	return true
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// GetMultiple reads all keys with one IN query.
func (c *Cache[V]) GetMultiple(ctx context.Context, keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	if len(keys) == 0 {
		return out
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, c.now().Unix())
	for _, k := range keys {
		args = append(args, k)
	}
	query := "SELECT entry, value FROM " + c.q.table + " WHERE expires>=? AND entry IN (" + placeholders(len(keys)) + ")"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		c.rep.Fail("get_multiple", "", err)
		return out
	}
	defer rows.Close()

	var bad []string
	for rows.Next() {
		var k string
		var raw []byte
		if err := rows.Scan(&k, &raw); err != nil {
			c.rep.Fail("get_multiple", k, err)
			continue
		}
		v, err := c.codec.Decode(raw)
		if err != nil {
			bad = append(bad, k)
			continue
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		c.rep.Fail("get_multiple", "", err)
	}
	rows.Close()

	for _, k := range bad {
		_, err := c.exec(ctx, c.q.del, k)
		c.rep.Heal(k, "value_decode", err)
	}
	return out
}

func (c *Cache[V]) SetMultiple(ctx context.Context, values map[string]V, ttl time.Duration) bool {
	return tiercache.SetMultipleSeq[V](ctx, c, values, ttl)
}

// DeleteMultiple removes all keys with one IN statement.
func (c *Cache[V]) DeleteMultiple(ctx context.Context, keys []string) bool {
	if len(keys) == 0 {
		return true
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := "DELETE FROM " + c.q.table + " WHERE entry IN (" + placeholders(len(keys)) + ")"
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return c.rep.Fail("delete_multiple", "", err)
	}
	return true
}

func (c *Cache[V]) Increment(ctx context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	return c.step(ctx, "increment", key, step, ttl)
}

func (c *Cache[V]) Decrement(ctx context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	return c.step(ctx, "decrement", key, -step, ttl)
}

// step runs read-modify-write in one transaction. A missing row is created
// with ttl; an existing row only has its value updated, and the update must
// touch exactly one row. Any failure rolls back and reports false.
func (c *Cache[V]) step(ctx context.Context, op, key string, delta int64, ttl time.Duration) (int64, bool) {
	if ttl < 0 {
		return 0, false
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, c.rep.Fail(op, key, err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	now := c.now().Unix()
	var raw []byte
	err = tx.QueryRowContext(ctx, c.q.get, key, now).Scan(&raw)
	var next int64
	switch {
	case errors.Is(err, sql.ErrNoRows):
		next = delta
		// an expired row may still occupy the key
		if _, err := tx.ExecContext(ctx, c.q.delStale, key, now); err != nil {
			return 0, c.rep.Fail(op, key, err)
		}
		if _, err := tx.ExecContext(ctx, c.q.set, key, util.FormatCount(next), c.expires(ttl)); err != nil {
			return 0, c.rep.Fail(op, key, err)
		}
	case err != nil:
		return 0, c.rep.Fail(op, key, err)
	default:
		cur, _ := util.ParseCount(raw)
		next = cur + delta
		res, err := tx.ExecContext(ctx, c.q.updateValue, util.FormatCount(next), key)
		if err != nil {
			return 0, c.rep.Fail(op, key, err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			if err == nil {
				err = fmt.Errorf("sqlstore: counter update affected %d rows", n)
			}
			return 0, c.rep.Fail(op, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, c.rep.Fail(op, key, err)
	}
	committed = true
	return next, true
}
