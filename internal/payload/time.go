package payload

import (
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// ParseTime reads an ISO-8601 timestamp. Values without a zone are UTC.
func ParseTime(in string) (time.Time, bool) {
	in = strings.TrimSpace(in)
	if in == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, in); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
