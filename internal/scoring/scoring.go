// Package scoring implements the keyword-weighted ESG pillar scorer: it
// normalizes disclosure text, tallies weighted keyword hits
// per pillar and produces Environmental/Social/Governance sub-scores plus an
// overall blended score.
package scoring

import (
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// caser performs locale-aware lowercasing ahead of keyword matching, so
// accented characters in non-English disclosures fold the same way a
// reader would expect instead of relying on strings.ToLower's byte-wise
// ASCII folding.
var caser = cases.Lower(language.Und)

// Pillar names one of the three ESG dimensions.
type Pillar string

const (
	PillarEnvironmental Pillar = "environmental"
	PillarSocial        Pillar = "social"
	PillarGovernance    Pillar = "governance"
)

// pillarCap is the raw weighted-hit total that maps to a 100 score for that
// pillar.
var pillarCap = map[Pillar]float64{
	PillarEnvironmental: 40,
	PillarSocial:        35,
	PillarGovernance:    30,
}

// maxOccurrencesPerPhrase caps how many times a single keyword phrase can
// contribute to a pillar's raw score, so one repeated buzzword cannot
// dominate the result.
const maxOccurrencesPerPhrase = 5

// keywordWeight is either 1.0 (default) or 2.0 for domain-critical
// phrases such as "net zero" or "board diversity".
type keywordWeight struct {
	phrase string
	weight float64
}

var pillarKeywords = map[Pillar][]keywordWeight{
	PillarEnvironmental: {
		{"net zero", 2.0},
		{"scope 1", 2.0},
		{"scope 2", 2.0},
		{"scope 3", 2.0},
		{"carbon neutral", 2.0},
		{"emissions", 1.0},
		{"renewable energy", 1.0},
		{"energy efficiency", 1.0},
		{"climate risk", 1.0},
		{"water consumption", 1.0},
		{"waste management", 1.0},
		{"biodiversity", 1.0},
		{"deforestation", 1.0},
		{"circular economy", 1.0},
		{"pollution", 1.0},
	},
	PillarSocial: {
		{"human rights", 2.0},
		{"living wage", 2.0},
		{"employee wellbeing", 1.0},
		{"health and safety", 1.0},
		{"diversity and inclusion", 1.0},
		{"gender pay gap", 1.0},
		{"labor practices", 1.0},
		{"supply chain labor", 1.0},
		{"community engagement", 1.0},
		{"training and development", 1.0},
		{"employee turnover", 1.0},
		{"collective bargaining", 1.0},
		{"child labor", 1.0},
		{"workplace injury", 1.0},
	},
	PillarGovernance: {
		{"board diversity", 2.0},
		{"board independence", 2.0},
		{"anti-corruption", 2.0},
		{"executive compensation", 1.0},
		{"shareholder rights", 1.0},
		{"audit committee", 1.0},
		{"code of conduct", 1.0},
		{"whistleblower", 1.0},
		{"data privacy", 1.0},
		{"risk management", 1.0},
		{"business ethics", 1.0},
		{"conflicts of interest", 1.0},
		{"regulatory compliance", 1.0},
		{"bribery", 1.0},
		{"transparency", 1.0},
	},
}

// Result is the output of scoring one disclosure.
type Result struct {
	Environmental float64                  `json:"environmental"`
	Social        float64                  `json:"social"`
	Governance    float64                  `json:"governance"`
	Overall       float64                  `json:"overall"`
	Hits          map[Pillar][]PhraseCount `json:"-"`
}

// PhraseCount records how many times a keyword phrase matched, capped at
// maxOccurrencesPerPhrase, for explainability/debugging.
type PhraseCount struct {
	Phrase string
	Count  int
	Weight float64
}

var whitespaceRE = regexp.MustCompile(`\s+`)
var punctuationRE = regexp.MustCompile(`[^\p{L}\p{N}\s.%-]`)

// Normalize lowercases, strips punctuation other than ".", "%", "-" and
// collapses whitespace.
func Normalize(text string) string {
	lower := caser.String(text)
	stripped := punctuationRE.ReplaceAllString(lower, " ")
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(stripped, " "))
}

// Score computes pillar and overall scores for normalized text. sentiment is
// an optional confidence-weighted adjustment in [-1,1]; pass 0 to skip it.
func Score(text string, sentiment float64) Result {
	normalized := Normalize(text)
	res := Result{Hits: make(map[Pillar][]PhraseCount)}

	raw := make(map[Pillar]float64)
	for pillar, keywords := range pillarKeywords {
		var total float64
		var hits []PhraseCount
		for _, kw := range keywords {
			count := strings.Count(normalized, kw.phrase)
			if count == 0 {
				continue
			}
			if count > maxOccurrencesPerPhrase {
				count = maxOccurrencesPerPhrase
			}
			total += float64(count) * kw.weight
			hits = append(hits, PhraseCount{Phrase: kw.phrase, Count: count, Weight: kw.weight})
		}
		raw[pillar] = total
		res.Hits[pillar] = hits
	}

	res.Environmental = adjustPillar(pillarScore(raw[PillarEnvironmental], pillarCap[PillarEnvironmental]), sentiment)
	res.Social = adjustPillar(pillarScore(raw[PillarSocial], pillarCap[PillarSocial]), sentiment)
	res.Governance = adjustPillar(pillarScore(raw[PillarGovernance], pillarCap[PillarGovernance]), sentiment)

	overall := (res.Environmental + res.Social + res.Governance) / 3
	res.Overall = round1(clamp(overall, 0, 100))

	return res
}

// adjustPillar applies the sentiment hook to a single pillar score before
// overall is derived from the adjusted pillars: each pillar moves by
// min(5, 10*confidence), up for positive sentiment, down for negative.
// sentiment is a signed, confidence-weighted value in [-1,1]; 0 skips it.
func adjustPillar(score, sentiment float64) float64 {
	if sentiment == 0 {
		return score
	}
	adj := sentiment * 10
	if adj > 5 {
		adj = 5
	}
	if adj < -5 {
		adj = -5
	}
	return round1(clamp(score+adj, 0, 100))
}

func pillarScore(raw, cap float64) float64 {
	if cap <= 0 {
		return 0
	}
	score := 100 * raw / cap
	return round1(clamp(score, 0, 100))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
