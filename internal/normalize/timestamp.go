package normalize

import (
	"strconv"
	"strings"
	"time"
)

// timestampLayouts covers the string formats the platform scrapers emit.
// The X API uses the ruby-style layout; web feeds use RFC layouts.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Mon Jan 02 15:04:05 -0700 2006",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp parses a source timestamp into UTC. It accepts ISO-8601
// variants, the X created_at layout, RFC 1123 feed dates, and numeric epochs
// in seconds or milliseconds.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return epochToTime(n), true
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

// epochToTime treats values that are too large for seconds as milliseconds.
func epochToTime(n int64) time.Time {
	const msThreshold = 1e12
	if n >= msThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
