package adapter

import (
	"time"
)

// unixMillisThreshold separates Unix-seconds from Unix-milliseconds
// timestamps by magnitude (1e12 seconds is past the year 33000).
const unixMillisThreshold = 1e12

// ParseTimestamp normalizes the timestamp representations seen across raw
// sources: Unix seconds, Unix milliseconds, and ISO-8601 with or without a
// trailing Z. A value that cannot be parsed yields the current time rather
// than failing the record.
func ParseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case nil:
		return time.Now().UTC()
	case float64:
		return fromUnix(t)
	case int64:
		return fromUnix(float64(t))
	case int:
		return fromUnix(float64(t))
	case string:
		if t == "" {
			return time.Now().UTC()
		}
		for _, layout := range []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05.999999999",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
		} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC()
			}
		}
		return time.Now().UTC()
	default:
		return time.Now().UTC()
	}
}

func fromUnix(f float64) time.Time {
	if f > unixMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Unix(int64(f), 0).UTC()
}
