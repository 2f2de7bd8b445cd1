package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SizeRange is an inclusive range of byte sizes. A nil bound is
// unbounded on that side.
type SizeRange struct {
	Min *uint64
	Max *uint64
}

// SizeAtLeast returns a range with only a lower bound.
func SizeAtLeast(min uint64) SizeRange { return SizeRange{Min: &min} }

// SizeAtMost returns a range with only an upper bound.
func SizeAtMost(max uint64) SizeRange { return SizeRange{Max: &max} }

// SizeBetween returns a range bounded on both sides.
func SizeBetween(min, max uint64) SizeRange { return SizeRange{Min: &min, Max: &max} }

// SizeExactly returns a range containing a single size.
func SizeExactly(size uint64) SizeRange { return SizeBetween(size, size) }

// Contains reports whether size falls inside the range.
func (r SizeRange) Contains(size uint64) bool {
	if r.Min != nil && size < *r.Min {
		return false
	}
	if r.Max != nil && size > *r.Max {
		return false
	}
	return true
}

// ParseSizeRange parses a size specification with optional operators.
//
// Supported forms:
//
//	>1MB     larger than 1MB
//	<100KB   smaller than 100KB
//	>=1GiB   at least 1GiB
//	<=500MB  at most 500MB
//	=1024    exactly 1024 bytes
//	1MB..10MB  ..1GB  100MB..
func ParseSizeRange(value string, span Span) (SizeRange, *ValidationError) {
	value = strings.TrimSpace(value)
	if value == "" {
		return SizeRange{}, emptyValueErr(span)
	}

	if left, right, ok := strings.Cut(value, ".."); ok {
		var out SizeRange
		if s := strings.TrimSpace(left); s != "" {
			size, err := parseSizeValue(s, span)
			if err != nil {
				return SizeRange{}, err
			}
			out.Min = &size
		}
		if s := strings.TrimSpace(right); s != "" {
			size, err := parseSizeValue(s, span)
			if err != nil {
				return SizeRange{}, err
			}
			out.Max = &size
		}
		if out.Min != nil && out.Max != nil && *out.Min > *out.Max {
			return SizeRange{}, invalidRangeErr(span, fmt.Sprintf(
				"minimum size (%d) is greater than maximum size (%d)", *out.Min, *out.Max))
		}
		return out, nil
	}

	switch {
	case strings.HasPrefix(value, ">="):
		size, err := parseSizeValue(strings.TrimSpace(value[2:]), span)
		if err != nil {
			return SizeRange{}, err
		}
		return SizeAtLeast(size), nil
	case strings.HasPrefix(value, "<="):
		size, err := parseSizeValue(strings.TrimSpace(value[2:]), span)
		if err != nil {
			return SizeRange{}, err
		}
		return SizeAtMost(size), nil
	case strings.HasPrefix(value, ">"):
		size, err := parseSizeValue(strings.TrimSpace(value[1:]), span)
		if err != nil {
			return SizeRange{}, err
		}
		return SizeAtLeast(saturatingAdd(size, 1)), nil
	case strings.HasPrefix(value, "<"):
		size, err := parseSizeValue(strings.TrimSpace(value[1:]), span)
		if err != nil {
			return SizeRange{}, err
		}
		return SizeAtMost(saturatingSub(size, 1)), nil
	case strings.HasPrefix(value, "="):
		size, err := parseSizeValue(strings.TrimSpace(value[1:]), span)
		if err != nil {
			return SizeRange{}, err
		}
		return SizeExactly(size), nil
	}

	size, err := parseSizeValue(value, span)
	if err != nil {
		return SizeRange{}, err
	}
	return SizeExactly(size), nil
}

func parseSizeValue(s string, span Span) (uint64, *ValidationError) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, emptyValueErr(span)
	}

	numEnd := len(s)
	for i := 0; i < len(s); i++ {
		if c := s[i]; (c < '0' || c > '9') && c != '.' {
			numEnd = i
			break
		}
	}
	if numEnd == 0 {
		return 0, invalidSizeErr(span, s, "missing numeric value")
	}

	num, err := strconv.ParseFloat(s[:numEnd], 64)
	if err != nil {
		return 0, invalidSizeErr(span, s, fmt.Sprintf("invalid number '%s'", s[:numEnd]))
	}

	var multiplier uint64
	unit := strings.TrimSpace(s[numEnd:])
	switch strings.ToLower(unit) {
	case "":
		multiplier = 1
	case "b", "byte", "bytes":
		multiplier = 1
	// Decimal (SI) units.
	case "k", "kb":
		multiplier = 1_000
	case "m", "mb":
		multiplier = 1_000_000
	case "g", "gb":
		multiplier = 1_000_000_000
	case "t", "tb":
		multiplier = 1_000_000_000_000
	// Binary (IEC) units.
	case "ki", "kib":
		multiplier = 1 << 10
	case "mi", "mib":
		multiplier = 1 << 20
	case "gi", "gib":
		multiplier = 1 << 30
	case "ti", "tib":
		multiplier = 1 << 40
	default:
		return 0, invalidSizeErr(span, s, fmt.Sprintf(
			"unknown unit '%s'. Supported: B, KB, MB, GB, TB, KiB, MiB, GiB, TiB", unit))
	}

	return uint64(math.Round(num * float64(multiplier))), nil
}
