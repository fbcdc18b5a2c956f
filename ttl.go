package tiercache

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// NoExpiry stores an entry that never expires.
const NoExpiry time.Duration = 0

// Interval is a calendar-aware relative duration. Years, months and days are
// applied with time.AddDate, so their length depends on the moment they are
// resolved at.
type Interval struct {
	Years, Months, Days int
	Duration            time.Duration
}

// AddTo returns t moved forward by the interval.
func (iv Interval) AddTo(t time.Time) time.Time {
	return t.AddDate(iv.Years, iv.Months, iv.Days).Add(iv.Duration)
}

// Clock reads the current time. It may fail (e.g. a remote time source).
type Clock func() (time.Time, error)

// SystemClock is the default Clock.
func SystemClock() (time.Time, error) { return time.Now(), nil }

// TTLResolver converts loosely typed TTL arguments into a time.Duration.
// The zero value uses SystemClock.
type TTLResolver struct {
	Clock Clock
}

// ResolveTTL is TTLResolver{}.Resolve.
func ResolveTTL(t any) (time.Duration, error) { return TTLResolver{}.Resolve(t) }

// Resolve accepts:
//
//	nil                        NoExpiry
//	time.Duration              itself
//	integers, floats, strings  seconds (0 => NoExpiry)
//	json.Number                seconds
//	Interval / *Interval       (now + interval) - now, one clock read
//
// Negative values fail with ErrInvalidTTL; a failing Clock with ErrClock.
func (r TTLResolver) Resolve(t any) (time.Duration, error) {
	switch v := t.(type) {
	case nil:
		return NoExpiry, nil
	case time.Duration:
		if v < 0 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidTTL, v)
		}
		return v, nil
	case Interval:
		return r.interval(v)
	case *Interval:
		if v == nil {
			return NoExpiry, nil
		}
		return r.interval(*v)
	case json.Number:
		return secondsFromString(string(v))
	}

	rv := reflect.ValueOf(t)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return seconds(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return seconds(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return seconds(rv.Float())
	case reflect.String:
		return secondsFromString(rv.String())
	}
	return 0, fmt.Errorf("%w: got %T", ErrInvalidTTL, t)
}

func (r TTLResolver) interval(iv Interval) (time.Duration, error) {
	clock := r.Clock
	if clock == nil {
		clock = SystemClock
	}
	now, err := clock()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrClock, err)
	}
	// now is read once so the subtraction is exact.
	d := iv.AddTo(now).Sub(now)
	if d < 0 {
		return 0, fmt.Errorf("%w: interval resolves to %s", ErrInvalidTTL, d)
	}
	return d, nil
}

func secondsFromString(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidTTL, s)
	}
	return seconds(f)
}

func seconds(f float64) (time.Duration, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTTL, f)
	}
	if f > float64(math.MaxInt64)/float64(time.Second) {
		return 0, fmt.Errorf("%w: %v seconds overflows", ErrInvalidTTL, f)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// TTLSeconds converts ttl to whole seconds for stores with second
// granularity. Positive values round up so a short TTL never becomes
// NoExpiry; negative values round down so they stay expired.
func TTLSeconds(ttl time.Duration) int64 {
	switch {
	case ttl == NoExpiry:
		return 0
	case ttl > 0:
		return int64((ttl + time.Second - 1) / time.Second)
	default:
		return -int64((-ttl + time.Second - 1) / time.Second)
	}
}

// ExpiresAt returns the absolute expiry in unix nanoseconds, or 0 for NoExpiry.
func ExpiresAt(now time.Time, ttl time.Duration) int64 {
	if ttl == NoExpiry {
		return 0
	}
	exp := now.Add(ttl).UnixNano()
	if exp == 0 {
		exp = -1
	}
	return exp
}

// Expired reports whether an absolute expiry produced by ExpiresAt has passed.
func Expired(expiresAt int64, now time.Time) bool {
	return expiresAt != 0 && expiresAt < now.UnixNano()
}
