// Package standardize is the metric extractor and standardizer: it
// recovers numeric values from prose, converts them to canonical units,
// assigns a confidence score and cross-maps them against the framework
// catalog's metric patterns.
package standardize

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/hannah-ric/esg-scraper/internal/catalog"
)

// ExtractedMetric is the standardized output for one recovered candidate.
type ExtractedMetric struct {
	Name              string   `json:"name"`
	RawValue          string   `json:"raw_value"`
	RawUnit           string   `json:"raw_unit"`
	NormalizedValue   float64  `json:"normalized_value"`
	NormalizedUnit    string   `json:"normalized_unit"`
	Confidence        float64  `json:"confidence"`
	SourceSnippet     string   `json:"source_snippet"`
	FrameworkMappings []string `json:"framework_mappings"`
}

// Candidate is a raw (value, unit, context) tuple recovered from text
// before standardization, e.g. by a regex scan over the disclosure body.
type Candidate struct {
	Name     string
	RawValue string
	RawUnit  string
	// MatchStart/MatchEnd locate the candidate within Text for snippet
	// extraction.
	MatchStart int
	MatchEnd   int
	Text       string
}

// Diagnostics tallies per-candidate failures so a bad candidate never halts
// the pipeline.
type Diagnostics struct {
	Dropped int
}

// Standardizer converts candidates into ExtractedMetrics and cross-maps them
// to catalog requirements.
type Standardizer struct {
	cat *catalog.Catalog
}

func New(cat *catalog.Catalog) *Standardizer {
	return &Standardizer{cat: cat}
}

// Standardize converts a batch of candidates, dropping unparseable ones into
// diag rather than failing the whole batch.
func (s *Standardizer) Standardize(candidates []Candidate, frameworks []catalog.Framework) ([]ExtractedMetric, Diagnostics) {
	var diag Diagnostics
	out := make([]ExtractedMetric, 0, len(candidates))

	for _, c := range candidates {
		m, ok := s.standardizeOne(c)
		if !ok {
			diag.Dropped++
			continue
		}
		m.FrameworkMappings = s.mapToRequirements(m, frameworks)
		out = append(out, m)
	}
	return out, diag
}

func (s *Standardizer) standardizeOne(c Candidate) (ExtractedMetric, bool) {
	value, parsed := parseNumber(c.RawValue)
	snippet := extractSnippet(c.Text, c.MatchStart, c.MatchEnd)

	m := ExtractedMetric{
		Name:          c.Name,
		RawValue:      c.RawValue,
		RawUnit:       c.RawUnit,
		SourceSnippet: snippet,
	}

	if !parsed {
		// Value cannot be parsed at all: confidence 0, dropped by caller
		// policy.
		return m, false
	}

	entry, unitOK := lookupUnit(c.RawUnit)
	if c.RawUnit == "" {
		// No unit captured at all — treat as a dimensionless/percent-like
		// reading inferred from context keywords in Name.
		entry, unitOK = inferFromContext(c.Name, snippet)
	}

	switch {
	case isCurrencyCode(c.RawUnit):
		m.NormalizedValue = value
		m.NormalizedUnit = "USD:" + strings.ToUpper(strings.TrimSpace(c.RawUnit))
		m.Confidence = 1.0
	case unitOK:
		normalized := value * entry.factor
		if entry.dimension == DimPercentage {
			normalized, m.Confidence = clampPercentage(normalized)
		} else if entry.dimension == DimEmissions && normalized < 0 {
			return m, false // negative emissions are always bogus
		} else {
			m.Confidence = 1.0
			if entry.synonym {
				m.Confidence = 0.8
			}
		}
		m.NormalizedValue = normalized
		m.NormalizedUnit = CanonicalUnit[entry.dimension]
	case c.RawUnit == "":
		// Value present, no unit token and nothing inferable from context.
		m.NormalizedValue = value
		m.NormalizedUnit = ""
		m.Confidence = 0.3
	default:
		// Unit text present but unrecognized.
		m.NormalizedValue = value
		m.NormalizedUnit = strings.TrimSpace(c.RawUnit)
		m.Confidence = 0.3
	}

	if math.IsNaN(m.NormalizedValue) || math.IsInf(m.NormalizedValue, 0) {
		return m, false
	}

	return m, true
}

// clampPercentage applies out-of-range validation: reject (by
// signalling confidence 0, which the caller still keeps but downstream
// scoring should treat as unreliable) values beyond 1000, clamp to [0,100]
// otherwise with a confidence penalty when clamping actually changed the
// value.
func clampPercentage(v float64) (float64, float64) {
	if v > 1000 || v < 0 && v < -1000 {
		return 0, 0
	}
	if v < 0 {
		return 0, 0.5
	}
	if v > 100 {
		return 100, 0.5
	}
	return v, 1.0
}

var contextInferenceHints = map[string]unitEntry{
	"percent":    {DimPercentage, 1, false},
	"percentage": {DimPercentage, 1, false},
	"employees":  {DimCount, 1, false},
	"workforce":  {DimCount, 1, false},
	"incidents":  {DimCount, 1, false},
}

// inferFromContext handles the inferred-from-nearby-context confidence
// tier: when no explicit unit token was captured, look at the metric name
// and surrounding snippet for a dimension hint.
func inferFromContext(name, text string) (unitEntry, bool) {
	lname := strings.ToLower(name)
	ltext := strings.ToLower(text)
	for hint, entry := range contextInferenceHints {
		if strings.Contains(lname, hint) || strings.Contains(ltext, hint) {
			e := entry
			e.synonym = false
			return unitEntry{dimension: e.dimension, factor: e.factor, synonym: true}, true
		}
	}
	if strings.Contains(lname, "%") || strings.HasSuffix(strings.TrimSpace(name), "%") {
		return unitEntry{dimension: DimPercentage, factor: 1, synonym: true}, true
	}
	return unitEntry{}, false
}

// extractSnippet returns up to 80 chars before and after [start,end),
// trimmed to a word boundary.
func extractSnippet(text string, start, end int) string {
	if text == "" || start < 0 || end > len(text) || start >= end {
		return ""
	}
	lo := start - 80
	if lo < 0 {
		lo = 0
	}
	hi := end + 80
	if hi > len(text) {
		hi = len(text)
	}
	snippet := text[lo:hi]
	snippet = trimToWordBoundary(snippet)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return strings.TrimSpace(snippet)
}

func trimToWordBoundary(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	// Trim leading partial word.
	i := 0
	for i < len(runes) && !unicode.IsSpace(runes[i]) && i < 20 {
		i++
	}
	if i < len(runes) && i > 0 && !unicode.IsSpace(runes[0]) {
		runes = runes[i:]
	}
	// Trim trailing partial word.
	j := len(runes)
	k := j
	for k > 0 && !unicode.IsSpace(runes[k-1]) && j-k < 20 {
		k--
	}
	if k > 0 && k < j {
		runes = runes[:k]
	}
	return strings.TrimSpace(string(runes))
}

// mapToRequirements cross-matches a standardized metric against every
// requested framework's metric patterns.
func (s *Standardizer) mapToRequirements(m ExtractedMetric, frameworks []catalog.Framework) []string {
	if s.cat == nil || m.Confidence < 0.5 {
		return nil
	}
	var ids []string
	for _, fw := range frameworks {
		for _, req := range s.cat.Requirements(fw) {
			for _, mp := range req.MetricPatterns {
				re, err := regexp.Compile("(?i)" + mp.Pattern)
				if err != nil {
					continue
				}
				haystack := m.SourceSnippet + " " + m.RawValue + " " + m.RawUnit
				if re.MatchString(haystack) {
					ids = append(ids, req.ID)
					break
				}
			}
		}
	}
	return ids
}
