package tiercache

import (
	"errors"
	"fmt"
)

// Input errors. They are returned before any backend is touched and are
// never converted into a false result.
var (
	ErrInvalidKey      = errors.New("tiercache: key is not a legal value")
	ErrInvalidKeys     = errors.New("tiercache: keys must be provided as a slice, array or iterator")
	ErrInvalidValues   = errors.New("tiercache: values must be provided as a map or a key/value iterator")
	ErrInvalidTTL      = errors.New("tiercache: ttl must be nil, a non-negative number, a time.Duration or an Interval")
	ErrClock           = errors.New("tiercache: could not read the current time")
	ErrInvalidStep     = errors.New("tiercache: step must be an integer")
	ErrInvalidArgument = errors.New("tiercache: invalid argument")
	ErrNoTiers         = fmt.Errorf("%w: at least one tier is required", ErrInvalidArgument)
)

// CapabilityError is returned when an operation is requested from a backend
// that does not advertise it.
type CapabilityError struct {
	Backend string
	Missing Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("tiercache: backend %q does not support %s", e.Backend, e.Missing)
}

// InvalidArgumentError names the offending position in a constructor argument list.
type InvalidArgumentError struct {
	Index  int
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("tiercache: argument %d: %s", e.Index, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }
