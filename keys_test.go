package tiercache

import (
	"errors"
	"maps"
	"math"
	"slices"
	"testing"
)

func TestNormalizeKey(t *testing.T) {
	type id string
	cases := []struct {
		in   any
		want string
	}{
		{"user:1", "user:1"},
		{"", ""},
		{id("x"), "x"},
		{42, "42"},
		{int8(-3), "-3"},
		{uint64(math.MaxUint64), "18446744073709551615"},
		{1.0, "1"},
		{2.5, "2.5"},
		{float32(0.5), "0.5"},
	}
	for _, tc := range cases {
		got, err := NormalizeKey(tc.in)
		if err != nil {
			t.Fatalf("NormalizeKey(%#v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeKey(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}

	for _, in := range []any{nil, true, math.NaN(), math.Inf(-1), struct{}{}, []byte("k")} {
		if _, err := NormalizeKey(in); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("NormalizeKey(%#v) err = %v, want ErrInvalidKey", in, err)
		}
	}
}

func TestNormalizeKeys(t *testing.T) {
	got, err := NormalizeKeys([]any{1, "b", 2.0})
	if err != nil || !slices.Equal(got, []string{"1", "b", "2"}) {
		t.Fatalf("slice: %v %v", got, err)
	}
	got, err = NormalizeKeys([2]int{7, 8})
	if err != nil || !slices.Equal(got, []string{"7", "8"}) {
		t.Fatalf("array: %v %v", got, err)
	}
	got, err = NormalizeKeys(slices.Values([]string{"x", "y"}))
	if err != nil || !slices.Equal(got, []string{"x", "y"}) {
		t.Fatalf("iterator: %v %v", got, err)
	}

	if _, err := NormalizeKeys("abc"); !errors.Is(err, ErrInvalidKeys) {
		t.Fatalf("bare string err = %v, want ErrInvalidKeys", err)
	}
	if _, err := NormalizeKeys(5); !errors.Is(err, ErrInvalidKeys) {
		t.Fatalf("scalar err = %v, want ErrInvalidKeys", err)
	}
	if _, err := NormalizeKeys([]any{"ok", true}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("bad element err = %v, want ErrInvalidKey", err)
	}
}

func TestNormalizeValues(t *testing.T) {
	got, err := NormalizeValues[string](map[int]string{1: "a", 2: "b"})
	if err != nil || !maps.Equal(got, map[string]string{"1": "a", "2": "b"}) {
		t.Fatalf("int keys: %v %v", got, err)
	}

	src := map[string]string{"k": "v"}
	got, err = NormalizeValues[string](src)
	if err != nil || got["k"] != "v" {
		t.Fatalf("string keys: %v %v", got, err)
	}
	got["k"] = "changed"
	if src["k"] != "v" {
		t.Fatalf("NormalizeValues must copy its input")
	}

	got, err = NormalizeValues[string](maps.All(map[string]string{"i": "1"}))
	if err != nil || got["i"] != "1" {
		t.Fatalf("iterator: %v %v", got, err)
	}

	if _, err := NormalizeValues[string](map[string]int{"k": 1}); !errors.Is(err, ErrInvalidValues) {
		t.Fatalf("wrong element type err = %v", err)
	}
	if _, err := NormalizeValues[string]([]string{"a"}); !errors.Is(err, ErrInvalidValues) {
		t.Fatalf("slice err = %v", err)
	}
	if _, err := NormalizeValues[string](map[bool]string{true: "x"}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("bad key err = %v", err)
	}
}

func TestResolveStep(t *testing.T) {
	if n, err := ResolveStep(3); err != nil || n != 3 {
		t.Fatalf("ResolveStep(3) = %d, %v", n, err)
	}
	if n, err := ResolveStep(uint8(200)); err != nil || n != 200 {
		t.Fatalf("ResolveStep(uint8) = %d, %v", n, err)
	}
	for _, in := range []any{uint64(math.MaxUint64), 1.5, "1", nil} {
		if _, err := ResolveStep(in); !errors.Is(err, ErrInvalidStep) {
			t.Fatalf("ResolveStep(%#v) err = %v", in, err)
		}
	}
}

func TestCapabilityString(t *testing.T) {
	if got := Capability(0).String(); got != "none" {
		t.Fatalf("zero = %q", got)
	}
	if got := (CapRead | CapCounter).String(); got != "read|counter" {
		t.Fatalf("read|counter = %q", got)
	}
	if !CapBasic.Has(CapRead|CapClean) || CapBasic.Has(CapBatch) {
		t.Fatalf("CapBasic = %s", CapBasic)
	}
}
