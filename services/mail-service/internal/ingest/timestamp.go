package ingest

import (
	"math"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e10

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp converts a provider timestamp into UTC. Numbers are epoch
// seconds or milliseconds; strings may be ISO 8601, numeric, or an RFC 5322
// Date header. Unparseable values yield fallback.
func ParseTimestamp(v any, fallback time.Time) time.Time {
	switch x := v.(type) {
	case float64:
		return fromEpoch(x)
	case int64:
		return fromEpoch(float64(x))
	case int:
		return fromEpoch(float64(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			break
		}
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
		if t, err := mail.ParseDate(s); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}

func fromEpoch(f float64) time.Time {
	if f > epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
