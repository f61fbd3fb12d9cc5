// Package compliance implements the framework compliance engine: it scans
// a disclosure against one or more catalog frameworks, reports
// per-requirement findings, aggregates per-framework coverage and derives
// a severity-ranked gap list with templated recommendations.
package compliance

import (
	"sort"
	"strings"

	"github.com/hannah-ric/esg-scraper/internal/catalog"
	"github.com/hannah-ric/esg-scraper/internal/scoring"
	"github.com/hannah-ric/esg-scraper/internal/standardize"
)

// Severity ranks a Gap's urgency.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// Finding is the outcome of scanning one requirement.
type Finding struct {
	Framework     catalog.Framework `json:"framework"`
	RequirementID string            `json:"requirement_id"`
	Found         bool              `json:"found"`
	MatchReason   string            `json:"match_reason,omitempty"`
	Evidence      string            `json:"evidence,omitempty"`
	Confidence    float64           `json:"confidence,omitempty"`
}

// FrameworkCoverage summarizes how much of one framework's requirements a
// disclosure satisfies. MandatoryMet <= MandatoryTotal <=
// TotalRequirements always holds.
type FrameworkCoverage struct {
	Framework         catalog.Framework `json:"framework"`
	TotalRequirements int               `json:"total_requirements"`
	Found             int               `json:"found"`
	MandatoryTotal    int               `json:"mandatory_total"`
	MandatoryMet      int               `json:"mandatory_met"`
	CoveragePercent   float64           `json:"coverage_percent"`
}

// Gap is one unmet (or partially met) requirement surfaced to the caller.
type Gap struct {
	Framework      catalog.Framework `json:"framework"`
	RequirementID  string            `json:"requirement_id"`
	Category       string            `json:"category"`
	Description    string            `json:"description"`
	Severity       Severity          `json:"severity"`
	Recommendation string            `json:"recommendation"`
}

// Report bundles every output of one compliance scan.
type Report struct {
	Findings []Finding           `json:"findings"`
	Coverage []FrameworkCoverage `json:"coverage"`
	Gaps     []Gap               `json:"gaps"`
}

// Engine scans disclosures against the shared catalog.
type Engine struct {
	cat *catalog.Catalog
}

func New(cat *catalog.Catalog) *Engine {
	return &Engine{cat: cat}
}

// Scan evaluates every requested framework's requirements against the
// normalized text and the already-standardized metrics extracted from it.
// industrySector selects SASB's industry-critical bump.
func (e *Engine) Scan(text string, metrics []standardize.ExtractedMetric, frameworks []catalog.Framework, industrySector string) Report {
	normalized := scoring.Normalize(text)
	metricByReq := indexMetricsByRequirement(metrics)

	var report Report
	for _, fw := range frameworks {
		reqs := e.cat.Requirements(fw)
		found, mandatoryTotal, mandatoryMet := 0, 0, 0
		for _, req := range reqs {
			if req.IsMandatory {
				mandatoryTotal++
			}
			finding := evaluateRequirement(fw, req, normalized, metricByReq[req.ID])
			if finding.Found {
				found++
				if req.IsMandatory {
					mandatoryMet++
				}
			} else {
				report.Gaps = append(report.Gaps, buildGap(req, fw, industrySector, metricByReq[req.ID]))
			}
			report.Findings = append(report.Findings, finding)
		}
		total := len(reqs)
		pct := 0.0
		if total > 0 {
			pct = round1(100 * float64(found) / float64(total))
		}
		report.Coverage = append(report.Coverage, FrameworkCoverage{
			Framework:         fw,
			TotalRequirements: total,
			Found:             found,
			MandatoryTotal:    mandatoryTotal,
			MandatoryMet:      mandatoryMet,
			CoveragePercent:   pct,
		})
	}

	sort.SliceStable(report.Gaps, func(i, j int) bool {
		a, b := report.Gaps[i], report.Gaps[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		if a.Framework != b.Framework {
			return a.Framework < b.Framework
		}
		return a.RequirementID < b.RequirementID
	})

	return report
}

func indexMetricsByRequirement(metrics []standardize.ExtractedMetric) map[string]standardize.ExtractedMetric {
	out := make(map[string]standardize.ExtractedMetric)
	for _, m := range metrics {
		for _, reqID := range m.FrameworkMappings {
			// Keep the highest-confidence metric per requirement.
			if existing, ok := out[reqID]; !ok || m.Confidence > existing.Confidence {
				out[reqID] = m
			}
		}
	}
	return out
}

// evaluateRequirement marks a requirement found on >=1 keyword match OR
// >=1 metric-pattern match with confidence >= 0.5, preferring the metric
// finding when both apply.
func evaluateRequirement(fw catalog.Framework, req catalog.Requirement, normalized string, metric standardize.ExtractedMetric) Finding {
	f := Finding{Framework: fw, RequirementID: req.ID}

	if metric.Confidence >= 0.5 {
		f.Found = true
		f.MatchReason = "metric_pattern"
		f.Evidence = metric.SourceSnippet
		f.Confidence = metric.Confidence
		return f
	}

	for _, kw := range req.Keywords {
		if idx := strings.Index(normalized, strings.ToLower(kw)); idx >= 0 {
			f.Found = true
			f.MatchReason = "keyword"
			f.Confidence = 0.6
			f.Evidence = snippetAround(normalized, idx, len(kw))
			return f
		}
	}

	return f
}

func snippetAround(text string, idx, matchLen int) string {
	lo := idx - 60
	if lo < 0 {
		lo = 0
	}
	hi := idx + matchLen + 60
	if hi > len(text) {
		hi = len(text)
	}
	return strings.TrimSpace(text[lo:hi])
}

// buildGap derives severity from the policy table below and templates a
// recommendation from the requirement's category and severity. Partial
// evidence near the requirement (a metric match below the found-confidence
// threshold) downgrades the severity to low.
func buildGap(req catalog.Requirement, fw catalog.Framework, industrySector string, metric standardize.ExtractedMetric) Gap {
	sev := severityFor(req, industrySector)
	if metric.Confidence > 0 && metric.Confidence < 0.5 {
		sev = SeverityLow
	}
	return Gap{
		Framework:      fw,
		RequirementID:  req.ID,
		Category:       req.Category,
		Description:    req.Description,
		Severity:       sev,
		Recommendation: recommendationFor(req, sev),
	}
}

// severityFor maps a requirement to its gap severity:
//   - mandatory + critical category -> critical
//   - mandatory otherwise -> high
//   - optional + industry-critical -> high
//   - optional otherwise -> medium
func severityFor(req catalog.Requirement, industrySector string) Severity {
	switch {
	case req.IsMandatory && req.CriticalCategory:
		return SeverityCritical
	case req.IsMandatory:
		return SeverityHigh
	case isIndustryCritical(req, industrySector):
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func isIndustryCritical(req catalog.Requirement, industrySector string) bool {
	if industrySector == "" {
		return false
	}
	for _, s := range req.IndustryCritical {
		if strings.EqualFold(s, industrySector) {
			return true
		}
	}
	return false
}

func recommendationFor(req catalog.Requirement, sev Severity) string {
	switch sev {
	case SeverityCritical:
		return "Disclose " + strings.ToLower(req.Category) + " metric data for " + req.ID + " immediately; this is a mandatory, high-scrutiny requirement."
	case SeverityHigh:
		return "Add a dedicated section addressing " + req.Description + " (" + req.ID + ") to meet mandatory disclosure obligations."
	case SeverityMedium:
		return "Consider disclosing " + req.Description + " (" + req.ID + ") given its relevance to your industry."
	default:
		return "Optionally expand coverage of " + req.Description + " (" + req.ID + ") to strengthen voluntary disclosure."
	}
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
