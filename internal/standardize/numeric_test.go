package standardize

import "testing"

func TestParseNumberGrouping(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  float64
		ok    bool
	}{
		{"us grouping", "1,234", 1234, true},
		{"us grouping with decimal", "1,234.5", 1234.5, true},
		{"european decimal comma", "1.234,5", 1234.5, true},
		{"space grouping with decimal comma", "1 234,5", 1234.5, true},
		{"multi group thousands", "1,234,567", 1234567, true},
		{"plain integer", "42", 42, true},
		{"negative", "-17.5", -17.5, true},
		{"scientific notation", "1.2e3", 1200, true},
		{"empty", "", 0, false},
		{"garbage", "abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseNumber(tt.raw)
			if ok != tt.ok {
				t.Fatalf("parseNumber(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("parseNumber(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
