package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// HashName returns the sha224 hex digest of key. It is safe as a file name
// whatever bytes the key contains.
func HashName(key string) string {
	sum := sha256.Sum224([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Prefixed returns each key with prefix prepended. The input is not modified.
func Prefixed(prefix string, keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = prefix + k
	}
	return out
}

// GlobEscape escapes Redis MATCH metacharacters in s.
func GlobEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatCount is the stored form of a counter: decimal text, the same
// representation Redis and memcached use natively.
func FormatCount(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}

// ParseCount reads a counter written by FormatCount (or by the store itself).
func ParseCount(b []byte) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	return n, err == nil
}

// ToInt64 extracts a counter from a value held by an in-process store.
// Non-numeric values report false.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case string:
		return ParseCount([]byte(n))
	case []byte:
		return ParseCount(n)
	}
	return 0, false
}
