package query

import (
	"testing"
	"time"
)

var noSpan = Span{}

func TestTimeRangeContains(t *testing.T) {
	tests := []struct {
		name  string
		r     TimeRange
		in    []uint64
		out   []uint64
	}{
		{"at least", TimeAtLeast(100), []uint64{100, 200}, []uint64{99}},
		{"at most", TimeAtMost(100), []uint64{100, 50}, []uint64{101}},
		{"between", TimeBetween(50, 100), []uint64{50, 75, 100}, []uint64{49, 101}},
		{"unbounded", TimeRange{}, []uint64{0, ^uint64(0)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range tt.in {
				if !tt.r.Contains(v) {
					t.Errorf("Contains(%d) = false, want true", v)
				}
			}
			for _, v := range tt.out {
				if tt.r.Contains(v) {
					t.Errorf("Contains(%d) = true, want false", v)
				}
			}
		})
	}
}

func TestParseRelativeTime(t *testing.T) {
	valid := []string{"1s", "30min", "2h", "7d", "2w", "1mo", "1y"}
	for _, input := range valid {
		if _, ok := parseRelativeTime(input); !ok {
			t.Errorf("parseRelativeTime(%q) failed, want success", input)
		}
	}
	invalid := []string{"abc", "1", "d", "", "1x"}
	for _, input := range invalid {
		if _, ok := parseRelativeTime(input); ok {
			t.Errorf("parseRelativeTime(%q) succeeded, want failure", input)
		}
	}
}

func TestParseRelativeTimeUnits(t *testing.T) {
	now := uint64(time.Now().Unix())
	tests := []struct {
		input   string
		seconds uint64
	}{
		{"10s", 10},
		{"2m", 120},
		{"1h", 3600},
		{"1d", 86400},
		{"1w", 604800},
		{"1mo", 2592000},
		{"1y", 31536000},
	}
	for _, tt := range tests {
		got, ok := parseRelativeTime(tt.input)
		if !ok {
			t.Fatalf("parseRelativeTime(%q) failed", tt.input)
		}
		want := now - tt.seconds
		// Allow a little clock drift between the two Now calls.
		if got < want-2 || got > want+2 {
			t.Errorf("parseRelativeTime(%q) = %d, want about %d", tt.input, got, want)
		}
	}
}

func TestParseAbsoluteTime(t *testing.T) {
	valid := []string{
		"2024-01-15",
		"2024/01/15",
		"2024.01.15",
		"2024-01-15T10:30:00",
		"2024-01-15 10:30:00",
		"2024-01-15T10:30",
	}
	for _, input := range valid {
		if _, ok := parseAbsoluteTime(input); !ok {
			t.Errorf("parseAbsoluteTime(%q) failed, want success", input)
		}
	}
	invalid := []string{"invalid", "2024-13-01", "not-a-date"}
	for _, input := range invalid {
		if _, ok := parseAbsoluteTime(input); ok {
			t.Errorf("parseAbsoluteTime(%q) succeeded, want failure", input)
		}
	}
}

func TestParseTimeRangeOperators(t *testing.T) {
	for _, input := range []string{">1d", ">=1d", "<1w", "<=2024-01-15", "=1704067200"} {
		if _, err := ParseTimeRange(input, noSpan); err != nil {
			t.Errorf("ParseTimeRange(%q) error: %v", input, err)
		}
	}
}

// > and < move the bound by one second off the parsed point.
func TestParseTimeRangeExclusiveBounds(t *testing.T) {
	gt, err := ParseTimeRange(">1704067200", noSpan)
	if err != nil {
		t.Fatalf("ParseTimeRange error: %v", err)
	}
	if gt.Min == nil || *gt.Min != 1704067201 {
		t.Errorf("min = %v, want 1704067201", gt.Min)
	}

	lt, err := ParseTimeRange("<1704067200", noSpan)
	if err != nil {
		t.Fatalf("ParseTimeRange error: %v", err)
	}
	if lt.Max == nil || *lt.Max != 1704067199 {
		t.Errorf("max = %v, want 1704067199", lt.Max)
	}
}

func TestParseTimeRangeBounded(t *testing.T) {
	r, err := ParseTimeRange("2024-01-01..2024-12-31", noSpan)
	if err != nil {
		t.Fatalf("ParseTimeRange error: %v", err)
	}
	if r.Min == nil || r.Max == nil {
		t.Fatalf("range = %+v, want both bounds", r)
	}
}

func TestParseTimeRangeOpenEnds(t *testing.T) {
	tests := []struct {
		input  string
		hasMin bool
		hasMax bool
	}{
		{"2024-01-01..", true, false},
		{"..2024-12-31", false, true},
	}
	for _, tt := range tests {
		r, err := ParseTimeRange(tt.input, noSpan)
		if err != nil {
			t.Fatalf("ParseTimeRange(%q) error: %v", tt.input, err)
		}
		if (r.Min != nil) != tt.hasMin || (r.Max != nil) != tt.hasMax {
			t.Errorf("ParseTimeRange(%q) = %+v, want min=%v max=%v",
				tt.input, r, tt.hasMin, tt.hasMax)
		}
	}
}

// A bare date covers the whole day.
func TestParseTimeRangeWholeDay(t *testing.T) {
	r, err := ParseTimeRange("2024-01-01", noSpan)
	if err != nil {
		t.Fatalf("ParseTimeRange error: %v", err)
	}
	if r.Min == nil || r.Max == nil {
		t.Fatalf("range = %+v, want both bounds", r)
	}
	if *r.Max-*r.Min != 86399 {
		t.Errorf("day width = %d, want 86399", *r.Max-*r.Min)
	}
}

func TestParseTimeRangeInverted(t *testing.T) {
	_, err := ParseTimeRange("1d..1y", noSpan)
	if err == nil {
		t.Fatal("inverted range accepted, want error")
	}
	if err.Kind != InvalidRange {
		t.Errorf("kind = %v, want InvalidRange", err.Kind)
	}
}

func TestParseTimeRangeBadInput(t *testing.T) {
	for _, input := range []string{"", ">bogus", "soon", "1q"} {
		if _, err := ParseTimeRange(input, noSpan); err == nil {
			t.Errorf("ParseTimeRange(%q) succeeded, want error", input)
		}
	}
}
