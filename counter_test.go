package tiercache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingTier struct {
	*memTier
	n int64
}

func (c *countingTier) Increment(_ context.Context, _ string, step int64, _ time.Duration) (int64, bool) {
	c.n += step
	return c.n, true
}

func (c *countingTier) Decrement(ctx context.Context, key string, step int64, ttl time.Duration) (int64, bool) {
	return c.Increment(ctx, key, -step, ttl)
}

func TestAsCounter(t *testing.T) {
	ct := &countingTier{memTier: newMemTier("counting")}
	c, err := AsCounter(ct)
	if err != nil {
		t.Fatalf("AsCounter: %v", err)
	}
	if n, ok := c.Increment(context.Background(), "k", 5, NoExpiry); !ok || n != 5 {
		t.Fatalf("Increment = %d,%v", n, ok)
	}
}

func TestAsCounterRequiresCapability(t *testing.T) {
	ct := &countingTier{memTier: newMemTier("quiet")}
	ct.caps = CapBasic

	_, err := AsCounter(ct)
	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want *CapabilityError", err)
	}
	if capErr.Backend != "quiet" || capErr.Missing != CapCounter {
		t.Fatalf("CapabilityError = %+v", capErr)
	}
	if capErr.Error() != `tiercache: backend "quiet" does not support counter` {
		t.Fatalf("Error() = %q", capErr.Error())
	}
}

func TestAsCounterWithoutMethods(t *testing.T) {
	// memTier advertises CapCounter but has no counter methods
	if _, err := AsCounter(newMemTier("m")); err == nil {
		t.Fatalf("expected an error for a backend without counter methods")
	}
}
