// Package tempfile stores one file per key in a private directory.
//
// File names are the sha224 of the key plus an extension, writes go through a
// temp file and rename so readers never see a partial entry. Entries carry
// their own expiry and are removed lazily on read or eagerly by Clean.
// Counters are not supported.
package tempfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/internal/obs"
	"github.com/unkn0wn-root/tiercache/internal/util"
	"github.com/unkn0wn-root/tiercache/internal/wire"
)

const (
	DefaultDir       = "TempFileCache"
	DefaultExtension = ".tempcache"
	dirPerm          = 0o700
	filePerm         = 0o600
)

var ErrNilCodec = errors.New("tempfile: nil codec")

type Config[V any] struct {
	// Dir: empty => $TMPDIR/TempFileCache, relative => under $TMPDIR,
	// absolute => used as is. Created with 0700 if missing.
	Dir string
	// Extension identifies cache files in Dir. Empty => ".tempcache".
	Extension string
	Codec     codec.Codec[V]

	Logger tiercache.Logger // if nil, NopLogger is used
	Hooks  tiercache.Hooks  // if nil, NopHooks is used
	Now    func() time.Time // defaults to time.Now
}

type Cache[V any] struct {
	dir   string
	ext   string
	codec codec.Codec[V]
	now   func() time.Time
	rep   obs.Reporter
}

var _ tiercache.Backend[string] = (*Cache[string])(nil)

func New[V any](cfg Config[V]) (*Cache[V], error) {
	if cfg.Codec == nil {
		return nil, ErrNilCodec
	}
	dir, err := prepareDir(resolveDir(cfg.Dir))
	if err != nil {
		return nil, err
	}
	ext := cfg.Extension
	if ext == "" {
		ext = DefaultExtension
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		dir:   dir,
		ext:   ext,
		codec: cfg.Codec,
		now:   now,
		rep:   obs.New("tempfile", cfg.Logger, cfg.Hooks),
	}, nil
}

func resolveDir(dir string) string {
	switch {
	case dir == "":
		return filepath.Join(os.TempDir(), DefaultDir)
	case !filepath.IsAbs(dir):
		return filepath.Join(os.TempDir(), dir)
	default:
		return dir
	}
}

// prepareDir creates dir if needed, checks that it is a writable directory
// and returns its resolved path.
func prepareDir(dir string) (string, error) {
	fi, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return "", fmt.Errorf("tempfile: directory does not exist and could not be created: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("tempfile: %w", err)
	case !fi.IsDir():
		return "", fmt.Errorf("tempfile: not a directory: %s", dir)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return "", fmt.Errorf("tempfile: directory is not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("tempfile: %w", err)
	}
	return resolved, nil
}

func (c *Cache[V]) Name() string { return c.rep.Name() }

// Dir is the resolved cache directory.
func (c *Cache[V]) Dir() string { return c.dir }

func (c *Cache[V]) Capabilities() tiercache.Capability { return tiercache.CapBasic }

func (c *Cache[V]) path(key string) string {
	return filepath.Join(c.dir, util.HashName(key)+c.ext)
}

func (c *Cache[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	p := c.path(key)
	payload, ok := c.read(p, key, "get")
	if !ok {
		return zero, false
	}
	v, err := c.codec.Decode(payload)
	if err != nil {
		c.rep.Heal(key, "value_decode", c.remove(p))
		return zero, false
	}
	return v, true
}

// read returns the live payload stored at p. Corrupt or expired files are removed.
func (c *Cache[V]) read(p, key, op string) ([]byte, bool) {
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		return nil, c.rep.Fail(op, key, err)
	}
	exp, payload, err := wire.Decode(raw)
	if err != nil {
		c.rep.Heal(key, "corrupt", c.remove(p))
		return nil, false
	}
	if tiercache.Expired(exp, c.now()) {
		c.remove(p)
		return nil, false
	}
	return payload, true
}

func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) bool {
	if tiercache.IsNil(value) {
		return c.Delete(ctx, key)
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return c.rep.Fail("set", key, err)
	}
	if err := c.writeAtomic(c.path(key), wire.Encode(tiercache.ExpiresAt(c.now(), ttl), payload)); err != nil {
		return c.rep.Fail("set", key, err)
	}
	return true
}

func (c *Cache[V]) writeAtomic(p string, data []byte) error {
	f, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Chmod(filePerm); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (c *Cache[V]) Delete(_ context.Context, key string) bool {
	if err := c.remove(c.path(key)); err != nil {
		return c.rep.Fail("delete", key, err)
	}
	return true
}

// remove deletes p; a missing file is not an error.
func (c *Cache[V]) remove(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c *Cache[V]) Has(_ context.Context, key string) bool {
	_, ok := c.read(c.path(key), key, "has")
	return ok
}

// Clean reads every cache file and removes the expired and unreadable ones.
func (c *Cache[V]) Clean(context.Context) bool {
	files, err := c.files()
	if err != nil {
		return c.rep.Fail("clean", "", err)
	}
	now := c.now()
	for _, p := range files {
		raw, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		exp, _, err := wire.Decode(raw)
		if err != nil || tiercache.Expired(exp, now) {
			c.remove(p)
		}
	}
	return true
}

// Flush removes every cache file. Other files in the directory are left alone.
func (c *Cache[V]) Flush(context.Context) bool {
	files, err := c.files()
	if err != nil {
		return c.rep.Fail("flush", "", err)
	}
	ok := true
	for _, p := range files {
		if err := c.remove(p); err != nil {
			ok = c.rep.Fail("flush", "", err)
		}
	}
	return ok
}

// Destroy flushes the cache and removes its directory. The Cache must not be
// used afterwards.
func (c *Cache[V]) Destroy(ctx context.Context) bool {
	if !c.Flush(ctx) {
		return false
	}
	if err := os.Remove(c.dir); err != nil {
		return c.rep.Fail("destroy", "", err)
	}
	return true
}

func (c *Cache[V]) files() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), c.ext) {
			out = append(out, filepath.Join(c.dir, e.Name()))
		}
	}
	return out, nil
}

func (c *Cache[V]) GetMultiple(ctx context.Context, keys []string) map[string]V {
	return tiercache.GetMultipleSeq[V](ctx, c, keys)
}

func (c *Cache[V]) SetMultiple(ctx context.Context, values map[string]V, ttl time.Duration) bool {
	return tiercache.SetMultipleSeq[V](ctx, c, values, ttl)
}

func (c *Cache[V]) DeleteMultiple(ctx context.Context, keys []string) bool {
	return tiercache.DeleteMultipleSeq[V](ctx, c, keys)
}
