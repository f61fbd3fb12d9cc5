package query

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannah-ric/esg-scraper/internal/compliance"
	"github.com/hannah-ric/esg-scraper/internal/store"
)

// fakeDB is a minimal in-memory store.Database stand-in for exercising the
// query layer's own logic without a live Postgres/SQLite connection.
type fakeDB struct {
	store.Database
	analysesByID    map[string]*store.Analysis
	byCompany       map[string][]*store.Analysis
	byUser          []*store.Analysis
	benchmarkPoints []store.BenchmarkPoint
}

func (f *fakeDB) ListAnalysesByUser(ctx context.Context, userID string, limit, offset int) ([]*store.Analysis, error) {
	return f.byUser, nil
}

func (f *fakeDB) GetAnalysisByID(ctx context.Context, id, requestingUserID string) (*store.Analysis, error) {
	a, ok := f.analysesByID[id]
	if !ok {
		return nil, assertNotFound{}
	}
	return a, nil
}

func (f *fakeDB) ListByCompany(ctx context.Context, companyName string, limit, offset int) ([]*store.Analysis, error) {
	return f.byCompany[companyName], nil
}

func (f *fakeDB) AggregateBenchmark(ctx context.Context, industrySector string, limit int) ([]store.BenchmarkPoint, error) {
	return f.benchmarkPoints, nil
}

func (f *fakeDB) ListByCompanySince(ctx context.Context, companyName string, since time.Time) ([]*store.Analysis, error) {
	var out []*store.Analysis
	for _, a := range f.byCompany[companyName] {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

func newAnalysisAt(score float64, when time.Time) *store.Analysis {
	return &store.Analysis{OverallScore: score, CreatedAt: when}
}

func TestTrendFromHistoryStableWithFewerThanTwoPoints(t *testing.T) {
	assert.Equal(t, TrendStable, trendFromHistory(nil))
	assert.Equal(t, TrendStable, trendFromHistory([]*store.Analysis{newAnalysisAt(80, time.Time{})}))
}

func TestTrendFromHistoryImprovingWhenLatestHigher(t *testing.T) {
	now := time.Now()
	// most-recent-first ordering, as ListByCompany returns.
	history := []*store.Analysis{
		newAnalysisAt(90, now),
		newAnalysisAt(80, now.Add(-time.Hour)),
		newAnalysisAt(85, now.Add(-2*time.Hour)),
	}
	assert.Equal(t, TrendImproving, trendFromHistory(history))
}

func TestTrendFromHistoryDecliningWhenLatestLower(t *testing.T) {
	now := time.Now()
	history := []*store.Analysis{
		newAnalysisAt(70, now),
		newAnalysisAt(80, now.Add(-time.Hour)),
		newAnalysisAt(90, now.Add(-2*time.Hour)),
	}
	assert.Equal(t, TrendDeclining, trendFromHistory(history))
}

func TestTrendFromHistoryStableWithinBand(t *testing.T) {
	now := time.Now()
	history := []*store.Analysis{
		newAnalysisAt(81, now),
		newAnalysisAt(80, now.Add(-time.Hour)),
	}
	assert.Equal(t, TrendStable, trendFromHistory(history))
}

func TestGapsSortsBySeverityThenFrameworkThenRequirementID(t *testing.T) {
	gaps := []compliance.Gap{
		{Framework: "GRI", RequirementID: "GRI-2", Severity: compliance.SeverityLow},
		{Framework: "TCFD", RequirementID: "TCFD-1", Severity: compliance.SeverityCritical},
		{Framework: "CSRD", RequirementID: "CSRD-1", Severity: compliance.SeverityCritical},
		{Framework: "GRI", RequirementID: "GRI-1", Severity: compliance.SeverityHigh},
	}
	encoded, err := json.Marshal(gaps)
	require.NoError(t, err)

	fake := &fakeDB{analysesByID: map[string]*store.Analysis{
		"a1": {ID: "a1", Gaps: encoded},
	}}
	svc := New(fake)

	sorted, err := svc.Gaps(context.Background(), "a1", "user-1")
	require.NoError(t, err)
	require.Len(t, sorted, 4)

	assert.Equal(t, "CSRD-1", sorted[0].RequirementID) // critical, CSRD < TCFD
	assert.Equal(t, "TCFD-1", sorted[1].RequirementID)
	assert.Equal(t, "GRI-1", sorted[2].RequirementID) // high
	assert.Equal(t, "GRI-2", sorted[3].RequirementID) // low
}

func TestBenchmarkIsStableWhenCompanyHasNoHistory(t *testing.T) {
	fake := &fakeDB{byCompany: map[string][]*store.Analysis{}}
	svc := New(fake)

	points, trend, err := svc.Benchmark(context.Background(), "Energy", "Acme Corp", 10)
	require.NoError(t, err)
	assert.Nil(t, points)
	assert.Equal(t, TrendStable, trend)
}

func TestCompareReturnsLatestScoresTrendAndBaseline(t *testing.T) {
	now := time.Now()
	fake := &fakeDB{
		byCompany: map[string][]*store.Analysis{
			"Acme Corp": {
				{CompanyName: "Acme Corp", IndustrySector: "Energy", OverallScore: 90, CreatedAt: now},
				{CompanyName: "Acme Corp", IndustrySector: "Energy", OverallScore: 80, CreatedAt: now.Add(-time.Hour)},
			},
		},
		benchmarkPoints: []store.BenchmarkPoint{
			{CompanyName: "A", OverallScore: 60},
			{CompanyName: "B", OverallScore: 70},
			{CompanyName: "C", OverallScore: 80},
		},
	}
	svc := New(fake)

	results, err := svc.Compare(context.Background(), []string{"Acme Corp", "Unknown Co"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Acme Corp", results[0].CompanyName)
	assert.True(t, results[0].HasAnalysis)
	assert.Equal(t, 90.0, results[0].Overall)
	assert.Equal(t, TrendImproving, results[0].Trend)
	assert.Equal(t, 70.0, results[0].BenchmarkBaseline) // median of [60,70,80]

	assert.Equal(t, "Unknown Co", results[1].CompanyName)
	assert.False(t, results[1].HasAnalysis)
}

func TestCompanyHistoryFiltersBySince(t *testing.T) {
	now := time.Now()
	fake := &fakeDB{
		byCompany: map[string][]*store.Analysis{
			"Acme Corp": {
				newAnalysisAt(90, now),
				newAnalysisAt(70, now.AddDate(0, 0, -200)),
			},
		},
	}
	svc := New(fake)

	points, err := svc.CompanyHistory(context.Background(), "Acme Corp", 30)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 90.0, points[0].Overall)
}

func TestExportJSONDecodesResultBlobs(t *testing.T) {
	db := &fakeDB{byUser: []*store.Analysis{{
		ID:           "a1",
		CompanyName:  "Acme",
		OverallScore: 71.2,
		Frameworks:   []string{"CSRD"},
		Metrics:      []byte(`[{"name":"emissions_reduction","normalized_value":35,"normalized_unit":"%"}]`),
		Coverage:     []byte(`[{"framework":"CSRD","total_requirements":13,"found":4,"coverage_percent":30.8}]`),
		Gaps:         []byte(`[{"framework":"CSRD","requirement_id":"E1","severity":"critical"}]`),
		Insights:     []byte(`["Environmental disclosure is moderate (42.0/100)."]`),
	}}}
	s := New(db)

	var buf strings.Builder
	require.NoError(t, s.ExportJSON(context.Background(), "u1", &buf))

	var records []ExportAnalysis
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &records))
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, "a1", got.ID)
	require.Len(t, got.Metrics, 1)
	assert.Equal(t, "emissions_reduction", got.Metrics[0].Name)
	require.Len(t, got.Coverage, 1)
	assert.InDelta(t, 30.8, got.Coverage[0].CoveragePercent, 1e-9)
	require.Len(t, got.Gaps, 1)
	assert.Equal(t, compliance.SeverityCritical, got.Gaps[0].Severity)
	require.Len(t, got.Insights, 1)
}
