package timeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/masa-finance/timeline-worker/api/types"
)

// Layouts tried, in order, when parsing upstream timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RubyDate, // Twitter v1.1 style: "Mon Jan 02 15:04:05 -0700 2006"
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp makes a best-effort attempt at turning an upstream timestamp
// into a time. Unix seconds and milliseconds are accepted as well.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

// Normalize clamps engagement counts to non-negative values and fills in the
// parsed timestamp.
func Normalize(r types.Record) types.Record {
	r.LikeCount = max(r.LikeCount, 0)
	r.RetweetCount = max(r.RetweetCount, 0)
	r.CommentCount = max(r.CommentCount, 0)
	if t, ok := ParseTimestamp(r.RawTimestamp); ok {
		r.Timestamp = t
	} else {
		r.Timestamp = time.Time{}
	}
	return r
}

// NormalizeTarget turns "@handle" and " handle " into "handle".
func NormalizeTarget(target string) string {
	return strings.TrimPrefix(strings.TrimSpace(target), "@")
}
