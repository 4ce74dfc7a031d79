package shared

import (
	"strings"
	"time"

	"hookwatch/internal/payload"
)

func NonEmpty(a, b string) string {
	a = strings.TrimSpace(a)
	if a != "" {
		return a
	}
	return strings.TrimSpace(b)
}

func ParseTimeOr(v string, now func() time.Time) time.Time {
	if t, ok := payload.ParseTime(v); ok {
		return t
	}
	return now().UTC()
}

func NormalizeEventType(in string) string {
	return strings.TrimSpace(strings.ToLower(in))
}

// Truncate returns at most n leading runes of s.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
