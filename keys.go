package tiercache

import (
	"fmt"
	"iter"
	"math"
	"reflect"
	"strconv"
)

// NormalizeKey converts a caller key into its canonical string form.
// Strings pass through; integers and finite floats use their shortest decimal
// form (1.0 => "1"). Anything else fails with ErrInvalidKey.
func NormalizeKey(k any) (string, error) {
	switch v := k.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}

	rv := reflect.ValueOf(k)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("%w: %v", ErrInvalidKey, f)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("%w: %T", ErrInvalidKey, k)
}

// NormalizeKeys applies NormalizeKey to every element of a slice, an array,
// an iter.Seq[string] or an iter.Seq[any]. A bare value (including a single
// string) fails with ErrInvalidKeys.
func NormalizeKeys(ks any) ([]string, error) {
	switch v := ks.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case iter.Seq[string]:
		var out []string
		for k := range v {
			out = append(out, k)
		}
		return out, nil
	case iter.Seq[any]:
		var out []string
		for k := range v {
			s, err := NormalizeKey(k)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}

	rv := reflect.ValueOf(ks)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidKeys, ks)
	}

	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		s, err := NormalizeKey(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// NormalizeValues turns a map (any key type NormalizeKey accepts) or a
// key/value iterator into map[string]V. Map elements must be assignable to V.
func NormalizeValues[V any](vs any) (map[string]V, error) {
	switch v := vs.(type) {
	case map[string]V:
		out := make(map[string]V, len(v))
		for k, x := range v {
			out[k] = x
		}
		return out, nil
	case iter.Seq2[string, V]:
		out := make(map[string]V)
		for k, x := range v {
			out[k] = x
		}
		return out, nil
	case iter.Seq2[any, V]:
		out := make(map[string]V)
		for k, x := range v {
			s, err := NormalizeKey(k)
			if err != nil {
				return nil, err
			}
			out[s] = x
		}
		return out, nil
	}

	rv := reflect.ValueOf(vs)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidValues, vs)
	}
	want := reflect.TypeFor[V]()
	if !rv.Type().Elem().AssignableTo(want) {
		return nil, fmt.Errorf("%w: element type %s is not %s", ErrInvalidValues, rv.Type().Elem(), want)
	}

	out := make(map[string]V, rv.Len())
	it := rv.MapRange()
	for it.Next() {
		s, err := NormalizeKey(it.Key().Interface())
		if err != nil {
			return nil, err
		}
		var x V
		reflect.ValueOf(&x).Elem().Set(it.Value())
		out[s] = x
	}
	return out, nil
}

// ResolveStep validates an increment/decrement magnitude. Only integer kinds
// are accepted; unsigned values must fit in int64.
func ResolveStep(s any) (int64, error) {
	rv := reflect.ValueOf(s)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrInvalidStep, u)
		}
		return int64(u), nil
	}
	return 0, fmt.Errorf("%w: got %T", ErrInvalidStep, s)
}
