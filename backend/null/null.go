// Package null is a backend that stores nothing. Every write and delete
// fails and every read misses, which makes it a stand-in for a disabled tier
// and a fixture for failure paths.
package null

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tiercache"
)

type Cache[V any] struct{}

var _ tiercache.Backend[string] = Cache[string]{}

func New[V any]() Cache[V] { return Cache[V]{} }

func (Cache[V]) Name() string { return "null" }

func (Cache[V]) Capabilities() tiercache.Capability { return tiercache.CapBasic | tiercache.CapBatch }

func (Cache[V]) Get(context.Context, string) (V, bool) {
	var zero V
	return zero, false
}

func (Cache[V]) Set(context.Context, string, V, time.Duration) bool { return false }
func (Cache[V]) Delete(context.Context, string) bool               { return false }
func (Cache[V]) Has(context.Context, string) bool                  { return false }
func (Cache[V]) Clean(context.Context) bool                        { return false }
func (Cache[V]) Flush(context.Context) bool                        { return false }

func (Cache[V]) GetMultiple(context.Context, []string) map[string]V { return map[string]V{} }

func (Cache[V]) SetMultiple(context.Context, map[string]V, time.Duration) bool { return false }
func (Cache[V]) DeleteMultiple(context.Context, []string) bool                 { return false }
