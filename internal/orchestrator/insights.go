package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hannah-ric/esg-scraper/internal/compliance"
	"github.com/hannah-ric/esg-scraper/internal/scoring"
	"github.com/hannah-ric/esg-scraper/internal/standardize"
)

// maxInsights bounds the narrative list on a response.
const maxInsights = 8

// buildInsights derives the human-readable narrative from the pillar
// scores, the strongest keyword signals and the most severe gaps. The
// ordering is deterministic: pillar statements first, then the
// strongest-phrase line, then coverage, then gap callouts, truncated at
// maxInsights.
func buildInsights(score scoring.Result, report compliance.Report) []string {
	var out []string

	out = append(out, pillarStatement("Environmental", score.Environmental))
	out = append(out, pillarStatement("Social", score.Social))
	out = append(out, pillarStatement("Governance", score.Governance))

	if phrase := topPhrase(score); phrase != "" {
		out = append(out, fmt.Sprintf("Disclosure language is strongest around %q.", phrase))
	}

	for _, cov := range report.Coverage {
		if cov.TotalRequirements == 0 {
			continue
		}
		if cov.MandatoryTotal > 0 && cov.MandatoryMet < cov.MandatoryTotal {
			out = append(out, fmt.Sprintf(
				"%s: %d of %d mandatory requirements are unmet (%.1f%% overall coverage).",
				cov.Framework, cov.MandatoryTotal-cov.MandatoryMet, cov.MandatoryTotal, cov.CoveragePercent))
		} else {
			out = append(out, fmt.Sprintf("%s coverage is %.1f%%.", cov.Framework, cov.CoveragePercent))
		}
	}

	if n := countSeverity(report.Gaps, compliance.SeverityCritical); n > 0 {
		out = append(out, fmt.Sprintf("%d critical gap(s) require immediate disclosure attention.", n))
	}

	if len(out) > maxInsights {
		out = out[:maxInsights]
	}
	return out
}

func pillarStatement(name string, score float64) string {
	switch {
	case score >= 70:
		return fmt.Sprintf("%s disclosure is strong (%.1f/100).", name, score)
	case score >= 30:
		return fmt.Sprintf("%s disclosure is moderate (%.1f/100).", name, score)
	case score > 0:
		return fmt.Sprintf("%s disclosure is weak (%.1f/100); expand coverage of this pillar.", name, score)
	default:
		return fmt.Sprintf("No %s disclosure signal was detected.", strings.ToLower(name))
	}
}

// topPhrase returns the highest-impact keyword phrase across all pillars,
// ranked by weight x capped occurrences with the phrase text as tie-break
// so the choice is stable across runs.
func topPhrase(score scoring.Result) string {
	var best scoring.PhraseCount
	var bestImpact float64
	for _, pillar := range []scoring.Pillar{scoring.PillarEnvironmental, scoring.PillarSocial, scoring.PillarGovernance} {
		for _, pc := range score.Hits[pillar] {
			impact := pc.Weight * float64(pc.Count)
			if impact > bestImpact || (impact == bestImpact && pc.Phrase < best.Phrase) {
				best = pc
				bestImpact = impact
			}
		}
	}
	return best.Phrase
}

func countSeverity(gaps []compliance.Gap, sev compliance.Severity) int {
	n := 0
	for _, g := range gaps {
		if g.Severity == sev {
			n++
		}
	}
	return n
}

// keywordList flattens the scorer's per-pillar hits into one deduplicated
// phrase list ordered by impact (weight x capped count) descending, phrase
// ascending on ties.
func keywordList(score scoring.Result) []string {
	type ranked struct {
		phrase string
		impact float64
	}
	var all []ranked
	seen := make(map[string]bool)
	for _, hits := range score.Hits {
		for _, pc := range hits {
			if seen[pc.Phrase] {
				continue
			}
			seen[pc.Phrase] = true
			all = append(all, ranked{phrase: pc.Phrase, impact: pc.Weight * float64(pc.Count)})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].impact != all[j].impact {
			return all[i].impact > all[j].impact
		}
		return all[i].phrase < all[j].phrase
	})
	out := make([]string, len(all))
	for i, r := range all {
		out[i] = r.phrase
	}
	return out
}

// analysisConfidence aggregates the confidence of everything the pipeline
// found: matched requirement findings and standardized metrics. With no
// evidence at all the analysis itself carries a neutral 0.5.
func analysisConfidence(findings []compliance.Finding, metrics []standardize.ExtractedMetric) float64 {
	var sum float64
	var n int
	for _, f := range findings {
		if f.Found {
			sum += f.Confidence
			n++
		}
	}
	for _, m := range metrics {
		sum += m.Confidence
		n++
	}
	if n == 0 {
		return 0.5
	}
	c := sum / float64(n)
	return float64(int(c*100+0.5)) / 100
}
