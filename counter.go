package tiercache

import "fmt"

// AsCounter returns b's AtomicCounter, or a *CapabilityError when b has none.
// A backend that implements the methods but does not advertise CapCounter
// is treated as having none.
func AsCounter(b any) (AtomicCounter, error) {
	c, ok := b.(AtomicCounter)
	if ok {
		if cb, has := b.(interface{ Capabilities() Capability }); has && !cb.Capabilities().Has(CapCounter) {
			ok = false
		}
	}
	if !ok {
		return nil, &CapabilityError{Backend: nameOf(b), Missing: CapCounter}
	}
	return c, nil
}

func nameOf(b any) string {
	if n, ok := b.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", b)
}
