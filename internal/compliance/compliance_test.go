package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannah-ric/esg-scraper/internal/catalog"
	"github.com/hannah-ric/esg-scraper/internal/standardize"
)

func TestScanFindsKeywordMatch(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)

	engine := New(cat)
	text := "We have strong board oversight of climate governance matters."
	report := engine.Scan(text, nil, []catalog.Framework{catalog.TCFD}, "")

	found := false
	for _, f := range report.Findings {
		if f.RequirementID == "TCFD-GOV-1" && f.Found {
			found = true
			assert.Equal(t, "keyword", f.MatchReason)
		}
	}
	assert.True(t, found, "expected TCFD-GOV-1 to be found via keyword match")
}

func TestScanProducesGapsForUnmatchedMandatoryRequirements(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)

	engine := New(cat)
	report := engine.Scan("completely unrelated text about nothing in particular", nil, []catalog.Framework{catalog.CSRD}, "")

	require.NotEmpty(t, report.Gaps)
	for _, g := range report.Gaps {
		assert.NotEmpty(t, g.Severity)
		assert.NotEmpty(t, g.Recommendation)
	}
}

func TestSeverityCriticalForMandatoryCriticalCategory(t *testing.T) {
	req := catalog.Requirement{
		ID: "X-1", IsMandatory: true, CriticalCategory: true, Category: "Environmental",
	}
	assert.Equal(t, SeverityCritical, severityFor(req, ""))
}

func TestSeverityHighForMandatoryOnly(t *testing.T) {
	req := catalog.Requirement{ID: "X-2", IsMandatory: true}
	assert.Equal(t, SeverityHigh, severityFor(req, ""))
}

func TestSeverityHighForIndustryCritical(t *testing.T) {
	req := catalog.Requirement{ID: "X-3", IndustryCritical: []string{"Oil & Gas"}}
	assert.Equal(t, SeverityHigh, severityFor(req, "Oil & Gas"))
}

func TestSeverityMediumForOptionalDefault(t *testing.T) {
	req := catalog.Requirement{ID: "X-4"}
	assert.Equal(t, SeverityMedium, severityFor(req, ""))
}

func TestMetricMatchTakesPriorityOverKeyword(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)
	engine := New(cat)

	metrics := []standardize.ExtractedMetric{
		{Name: "scope 1", Confidence: 0.9, FrameworkMappings: []string{"TCFD-MT-2"}, SourceSnippet: "1,200 tCO2e scope 1"},
	}
	report := engine.Scan("no relevant keywords here", metrics, []catalog.Framework{catalog.TCFD}, "")

	for _, f := range report.Findings {
		if f.RequirementID == "TCFD-MT-2" {
			assert.True(t, f.Found)
			assert.Equal(t, "metric_pattern", f.MatchReason)
		}
	}
}
