package query

import (
	"strconv"
	"strings"
	"time"
)

// absoluteDateLen is the length of a date without a time-of-day part.
// Plain values at or under this length are widened to cover the day.
const absoluteDateLen = 10

// TimeRange is an inclusive range of unix timestamps in seconds.
// A nil bound is unbounded on that side.
type TimeRange struct {
	Min *uint64
	Max *uint64
}

// TimeAtLeast returns a range with only a lower bound.
func TimeAtLeast(min uint64) TimeRange { return TimeRange{Min: &min} }

// TimeAtMost returns a range with only an upper bound.
func TimeAtMost(max uint64) TimeRange { return TimeRange{Max: &max} }

// TimeBetween returns a range bounded on both sides.
func TimeBetween(min, max uint64) TimeRange { return TimeRange{Min: &min, Max: &max} }

// Contains reports whether ts falls inside the range.
func (r TimeRange) Contains(ts uint64) bool {
	if r.Min != nil && ts < *r.Min {
		return false
	}
	if r.Max != nil && ts > *r.Max {
		return false
	}
	return true
}

// ParseTimeRange parses a time specification with optional operators.
//
// Supported forms:
//
//	>1d              more recent than 1 day ago
//	<1d              older than 1 day ago
//	>=2024-01-15     on or after a date
//	<=2024-01-15     on or before a date
//	=1704067200      exact timestamp
//	1d..1w           between two points
//	..1w  1d..       half-open ranges
//	2024-01-15       the whole day
func ParseTimeRange(value string, span Span) (TimeRange, *ValidationError) {
	value = strings.TrimSpace(value)
	if value == "" {
		return TimeRange{}, emptyValueErr(span)
	}

	if left, right, ok := strings.Cut(value, ".."); ok {
		var out TimeRange
		if s := strings.TrimSpace(left); s != "" {
			ts, err := parseTimeValue(s, span)
			if err != nil {
				return TimeRange{}, err
			}
			out.Min = &ts
		}
		if s := strings.TrimSpace(right); s != "" {
			ts, err := parseTimeValue(s, span)
			if err != nil {
				return TimeRange{}, err
			}
			out.Max = &ts
		}
		if out.Min != nil && out.Max != nil && *out.Min > *out.Max {
			return TimeRange{}, invalidRangeErr(span, "minimum time is after maximum time")
		}
		return out, nil
	}

	switch {
	case strings.HasPrefix(value, ">="):
		ts, err := parseTimeValue(strings.TrimSpace(value[2:]), span)
		if err != nil {
			return TimeRange{}, err
		}
		return TimeAtLeast(ts), nil
	case strings.HasPrefix(value, "<="):
		ts, err := parseTimeValue(strings.TrimSpace(value[2:]), span)
		if err != nil {
			return TimeRange{}, err
		}
		return TimeAtMost(ts), nil
	case strings.HasPrefix(value, ">"):
		ts, err := parseTimeValue(strings.TrimSpace(value[1:]), span)
		if err != nil {
			return TimeRange{}, err
		}
		return TimeAtLeast(saturatingAdd(ts, 1)), nil
	case strings.HasPrefix(value, "<"):
		ts, err := parseTimeValue(strings.TrimSpace(value[1:]), span)
		if err != nil {
			return TimeRange{}, err
		}
		return TimeAtMost(saturatingSub(ts, 1)), nil
	case strings.HasPrefix(value, "="):
		ts, err := parseTimeValue(strings.TrimSpace(value[1:]), span)
		if err != nil {
			return TimeRange{}, err
		}
		return TimeBetween(ts, ts), nil
	}

	ts, err := parseTimeValue(value, span)
	if err != nil {
		return TimeRange{}, err
	}
	// A bare date matches the whole day; anything longer is a point.
	if len(value) <= absoluteDateLen {
		return TimeBetween(ts, saturatingAdd(ts, 86399)), nil
	}
	return TimeBetween(ts, ts), nil
}

func parseTimeValue(s string, span Span) (uint64, *ValidationError) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, invalidTimeErr(span, s, "empty time specification")
	}
	if ts, err := strconv.ParseUint(s, 10, 64); err == nil {
		return ts, nil
	}
	if ts, ok := parseRelativeTime(s); ok {
		return ts, nil
	}
	if ts, ok := parseAbsoluteTime(s); ok {
		return ts, nil
	}
	return 0, invalidTimeErr(span, s,
		"unrecognized time format. Expected: relative (1d, 2h, 1w), absolute (2024-01-15), or unix timestamp")
}

// parseRelativeTime turns "1d", "2h", "30min" into now minus that
// duration.
func parseRelativeTime(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	digitEnd := 0
	for digitEnd < len(s) && s[digitEnd] >= '0' && s[digitEnd] <= '9' {
		digitEnd++
	}
	if digitEnd == 0 || digitEnd == len(s) {
		return 0, false
	}
	num, err := strconv.ParseUint(s[:digitEnd], 10, 64)
	if err != nil {
		return 0, false
	}

	var unit uint64
	switch strings.ToLower(strings.TrimSpace(s[digitEnd:])) {
	case "s", "sec", "secs", "second", "seconds":
		unit = 1
	case "m", "min", "mins", "minute", "minutes":
		unit = 60
	case "h", "hr", "hrs", "hour", "hours":
		unit = 3600
	case "d", "day", "days":
		unit = 86400
	case "w", "wk", "wks", "week", "weeks":
		unit = 604800
	case "mo", "mon", "month", "months":
		unit = 2592000 // 30 days
	case "y", "yr", "yrs", "year", "years":
		unit = 31536000 // 365 days
	default:
		return 0, false
	}

	seconds := num * unit
	if unit != 0 && seconds/unit != num {
		return 0, false
	}
	now := uint64(time.Now().Unix())
	return saturatingSub(now, seconds), true
}

var (
	dateLayouts = []string{"2006-01-02", "2006/01/02", "2006.01.02"}
	timeLayouts = []string{"15:04:05", "15:04"}
)

// parseAbsoluteTime parses dates and datetimes in the local timezone.
func parseAbsoluteTime(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if len(s) > absoluteDateLen {
		for _, d := range dateLayouts {
			for _, t := range timeLayouts {
				for _, sep := range []string{"T", " "} {
					if ts, err := time.ParseInLocation(d+sep+t, s, time.Local); err == nil {
						return clampUnix(ts.Unix()), true
					}
				}
			}
		}
		return 0, false
	}
	for _, d := range dateLayouts {
		if ts, err := time.ParseInLocation(d, s, time.Local); err == nil {
			return clampUnix(ts.Unix()), true
		}
	}
	return 0, false
}

func clampUnix(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func saturatingAdd(a, b uint64) uint64 {
	if a > ^uint64(0)-b {
		return ^uint64(0)
	}
	return a + b
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
