package standardize

import (
	"strconv"
	"strings"
)

// parseNumber parses a numeric token accepting US (1,234.5), European
// (1.234,5 / 1 234,5) grouping and scientific notation (1.2e3). The
// heuristic: the last
// comma or period before any trailing digits is treated as the decimal
// point and anything before it is a grouping separator and is stripped;
// spaces are always grouping, and a last comma followed by exactly three
// digits is read as thousands grouping.
func parseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	// Scientific notation passes straight through to strconv once any
	// grouping spaces are removed.
	if hasExponent(s) {
		clean := strings.ReplaceAll(s, " ", "")
		clean = strings.ReplaceAll(clean, ",", "")
		v, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0, false
		}
		if neg {
			v = -v
		}
		return v, true
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	lastSpace := strings.LastIndexByte(s, ' ')

	decimalIdx := -1
	var decimalSep byte
	for _, cand := range []struct {
		idx int
		sep byte
	}{{lastComma, ','}, {lastDot, '.'}, {lastSpace, ' '}} {
		if cand.idx > decimalIdx {
			decimalIdx = cand.idx
			decimalSep = cand.sep
		}
	}

	if decimalIdx == -1 {
		clean := strings.ReplaceAll(s, ",", "")
		v, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0, false
		}
		if neg {
			v = -v
		}
		return v, true
	}

	// A space cannot be the decimal point (no fractional-space notation in
	// any locale this parses) — it is always a grouping separator. Only
	// promote it to "decimal" above to find the rightmost separator; if it
	// wins, spaces and commas are stripped as grouping and any period left
	// acts as the decimal point.
	if decimalSep == ' ' {
		clean := strings.ReplaceAll(s, " ", "")
		clean = strings.ReplaceAll(clean, ",", "")
		v, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0, false
		}
		if neg {
			v = -v
		}
		return v, true
	}

	fractionalLen := len(s) - decimalIdx - 1
	// A trailing comma-group of exactly 3 digits is ambiguous with a
	// decimal separator (e.g. "1,234" or "1,234,567"); "1,234" reads as
	// 1234, i.e. thousands grouping rather than a decimal point.
	// Generalize to any
	// number of comma groups, since "1,234,567" is unambiguously grouped.
	if decimalSep == ',' && fractionalLen == 3 {
		clean := strings.ReplaceAll(s, ",", "")
		v, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0, false
		}
		if neg {
			v = -v
		}
		return v, true
	}

	integerPart := s[:decimalIdx]
	fractionalPart := s[decimalIdx+1:]
	integerPart = strings.Map(func(r rune) rune {
		if r == ',' || r == '.' || r == ' ' {
			return -1
		}
		return r
	}, integerPart)

	combined := integerPart
	if fractionalPart != "" {
		combined += "." + fractionalPart
	}
	v, err := strconv.ParseFloat(combined, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

func hasExponent(s string) bool {
	for i, r := range s {
		if (r == 'e' || r == 'E') && i > 0 && i < len(s)-1 {
			return true
		}
	}
	return false
}
