package tiercache

import (
	"context"
	"strings"
	"time"
)

// Backend is one storage engine behind the uniform cache contract.
// V is the caller's value type. Byte-oriented stores take a codec.Codec[V].
//
// Operational failures (I/O, network, SQL) never surface as errors: they are
// logged through the backend's Logger and reported as a false/miss result.
type Backend[V any] interface {
	// Get returns (value, true) on hit; (zero, false) on miss, expiry or failure.
	Get(ctx context.Context, key string) (V, bool)

	// Set overwrites or creates key. A nil value (nil pointer, map, slice or
	// interface) deletes the key instead of storing it.
	// ttl: NoExpiry never expires; negative is already expired.
	Set(ctx context.Context, key string, value V, ttl time.Duration) bool

	// Delete is idempotent: a missing key still reports true.
	Delete(ctx context.Context, key string) bool

	// Has is a point-in-time check. Never use it for synchronization.
	Has(ctx context.Context, key string) bool

	// Clean evicts expired entries now. Stores with native expiry return true.
	Clean(ctx context.Context) bool

	// Flush removes every entry owned by this instance.
	Flush(ctx context.Context) bool

	// Batch. GetMultiple returns hits only; see GetMultipleOr for defaults.
	GetMultiple(ctx context.Context, keys []string) map[string]V
	SetMultiple(ctx context.Context, values map[string]V, ttl time.Duration) bool
	DeleteMultiple(ctx context.Context, keys []string) bool

	Capabilities() Capability
	Name() string
}

// AtomicCounter is implemented by backends that can increment and decrement
// without lost updates. A key that does not hold a number is created at 0
// (with ttl) before the step is applied. ttl is ignored once the key exists.
// Use AsCounter to discover it.
type AtomicCounter interface {
	Increment(ctx context.Context, key string, step int64, ttl time.Duration) (int64, bool)
	Decrement(ctx context.Context, key string, step int64, ttl time.Duration) (int64, bool)
}

// Capability is the fixed set of operations a backend supports.
type Capability uint8

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapDelete
	CapBatch   // native multi-key primitives (otherwise sequential fallback)
	CapCounter // AtomicCounter
	CapClean
)

// CapBasic is what every backend in this module advertises.
const CapBasic = CapRead | CapWrite | CapDelete | CapClean

func (c Capability) Has(want Capability) bool { return c&want == want }

var capNames = [...]string{"read", "write", "delete", "batch", "counter", "clean"}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for i, n := range capNames {
		if c&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}
