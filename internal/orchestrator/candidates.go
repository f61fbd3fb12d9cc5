package orchestrator

import (
	"regexp"
	"strings"

	"github.com/hannah-ric/esg-scraper/internal/standardize"
)

// candidatePattern finds a number optionally followed by a unit token, used
// to seed the standardizer with raw (value, unit, context) tuples before
// confidence scoring and canonicalization.
var candidatePattern = regexp.MustCompile(
	`([+-]?[\d][\d.,\s]*)\s*(tCO2e|ktCO2e|MtCO2e|kg\s?CO2e?|tons?\s?CO2e?|MWh|GWh|TWh|kWh|GJ|TJ|` +
		`m3|m³|cubic meters?|million m[3³]|liters|litres|gallons(?:\s\(US\))?|%|percent|USD|EUR|GBP|\$)?`)

// metricNameRule classifies a candidate's surrounding window into a stable
// snake_case metric identifier such as "emissions_reduction" or
// "board_diversity". Keywords are substrings of the lowercased window; all
// must be present for the rule to fire. Checked in order, first match wins.
type metricNameRule struct {
	canonical string
	keywords  []string
}

var metricNameRules = []metricNameRule{
	{"emissions_reduction", []string{"emission", "reduc"}},
	{"board_diversity", []string{"board", "divers"}},
	{"board_independence", []string{"board", "independ"}},
	{"scope_1_emissions", []string{"scope 1"}},
	{"scope_2_emissions", []string{"scope 2"}},
	{"scope_3_emissions", []string{"scope 3"}},
	{"net_zero_target", []string{"net zero"}},
	{"renewable_energy_share", []string{"renewable", "energy"}},
	{"energy_consumption", []string{"energy"}},
	{"water_consumption", []string{"water"}},
	{"waste_generated", []string{"waste"}},
	{"gender_pay_gap", []string{"gender", "pay"}},
	{"employee_turnover", []string{"turnover"}},
	{"workplace_injury", []string{"injur"}},
	{"workplace_incidents", []string{"incident"}},
	{"workforce_size", []string{"workforce"}},
	{"workforce_size", []string{"employees"}},
}

// scan extracts candidates from text, classifying each into a canonical
// metric name from the window of text surrounding the match.
func scan(text string) []standardize.Candidate {
	var out []standardize.Candidate
	matches := candidatePattern.FindAllStringSubmatchIndex(text, -1)
	for _, m := range matches {
		if m[2] < 0 || m[3] < 0 {
			continue
		}
		value := text[m[2]:m[3]]
		unit := ""
		if m[4] >= 0 && m[5] >= 0 {
			unit = text[m[4]:m[5]]
		}
		window := contextWindow(text, m[0], m[1])
		out = append(out, standardize.Candidate{
			Name:       classifyMetricName(window),
			RawValue:   value,
			RawUnit:    unit,
			MatchStart: m[0],
			MatchEnd:   m[1],
			Text:       text,
		})
	}
	return out
}

// classifyMetricName maps a context window to a canonical metric identifier
// via metricNameRules, falling back to a sanitized snake_case slug of the
// window itself so Name is always a stable identifier rather than raw prose.
func classifyMetricName(window string) string {
	lower := strings.ToLower(window)
	for _, rule := range metricNameRules {
		matched := true
		for _, kw := range rule.keywords {
			if !strings.Contains(lower, kw) {
				matched = false
				break
			}
		}
		if matched {
			return rule.canonical
		}
	}
	return sanitizeMetricName(lower)
}

var nonIdentRunRE = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeMetricName is the fallback when no rule matches: collapse
// non-alphanumeric runs to a single underscore and trim to a reasonable
// identifier length.
func sanitizeMetricName(lower string) string {
	slug := strings.Trim(nonIdentRunRE.ReplaceAllString(lower, "_"), "_")
	if slug == "" {
		return "metric_value"
	}
	const maxLen = 40
	if len(slug) > maxLen {
		slug = strings.Trim(slug[len(slug)-maxLen:], "_")
	}
	return slug
}

// contextWindow returns up to 40 chars before and 30 chars after the match
// span, the window classifyMetricName scans for a canonical metric name.
func contextWindow(text string, start, end int) string {
	lo := start - 40
	if lo < 0 {
		lo = 0
	}
	hi := end + 30
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}
