package query

import "testing"

func TestSizeRangeContains(t *testing.T) {
	tests := []struct {
		name string
		r    SizeRange
		in   []uint64
		out  []uint64
	}{
		{"at least", SizeAtLeast(1024), []uint64{1024, 2048}, []uint64{1023}},
		{"at most", SizeAtMost(1024), []uint64{1024, 512}, []uint64{1025}},
		{"between", SizeBetween(100, 200), []uint64{100, 150, 200}, []uint64{99, 201}},
		{"exactly", SizeExactly(1024), []uint64{1024}, []uint64{1023, 1025}},
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

func TestParseSizeValue(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
	}{
		{"1024", 1024},
		{"0", 0},
		{"1KB", 1_000},
		{"1KiB", 1_024},
		{"1MB", 1_000_000},
		{"1MiB", 1_048_576},
		{"1GB", 1_000_000_000},
		{"1GiB", 1_073_741_824},
		{"1TB", 1_000_000_000_000},
		{"1TiB", 1_099_511_627_776},
		{"1.5MB", 1_500_000},
		{"1 GB", 1_000_000_000},
		{"2b", 2},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSizeValue(tt.input, noSpan)
			if err != nil {
				t.Fatalf("parseSizeValue(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseSizeValue(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSizeValueErrors(t *testing.T) {
	tests := []struct {
		input string
		kind  ValidationErrorKind
	}{
		{"", EmptyValue},
		{"MB", InvalidSizeSpec},
		{"1XB", InvalidSizeSpec},
		{"1.2.3KB", InvalidSizeSpec},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := parseSizeValue(tt.input, noSpan)
			if err == nil {
				t.Fatalf("parseSizeValue(%q) succeeded, want error", tt.input)
			}
			if err.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", err.Kind, tt.kind)
			}
		})
	}
}

func TestParseSizeRangeOperators(t *testing.T) {
	uptr := func(v uint64) *uint64 { return &v }
	tests := []struct {
		input string
		min   *uint64
		max   *uint64
	}{
		{">1MB", uptr(1_000_001), nil},
		{">=1MB", uptr(1_000_000), nil},
		{"<1KB", nil, uptr(999)},
		{"<=1KB", nil, uptr(1_000)},
		{"=1024", uptr(1024), uptr(1024)},
		{"1024", uptr(1024), uptr(1024)},
		{"1MB..10MB", uptr(1_000_000), uptr(10_000_000)},
		{"..1GB", nil, uptr(1_000_000_000)},
		{"100MB..", uptr(100_000_000), nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r, err := ParseSizeRange(tt.input, noSpan)
			if err != nil {
				t.Fatalf("ParseSizeRange(%q) error: %v", tt.input, err)
			}
			if !uint64PtrEq(r.Min, tt.min) {
				t.Errorf("min = %v, want %v", fmtPtr(r.Min), fmtPtr(tt.min))
			}
			if !uint64PtrEq(r.Max, tt.max) {
				t.Errorf("max = %v, want %v", fmtPtr(r.Max), fmtPtr(tt.max))
			}
		})
	}
}

func TestParseSizeRangeInverted(t *testing.T) {
	for _, input := range []string{"10MB..1MB", "1GB..1MB"} {
		_, err := ParseSizeRange(input, noSpan)
		if err == nil {
			t.Fatalf("ParseSizeRange(%q) succeeded, want error", input)
		}
		if err.Kind != InvalidRange {
			t.Errorf("kind = %v, want InvalidRange", err.Kind)
		}
	}
}

func uint64PtrEq(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtPtr(p *uint64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
