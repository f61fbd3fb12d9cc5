// Package query answers the read-side endpoints: per-company analysis
// history, gap listings sorted by severity, benchmark aggregation with a
// trend tag, and fixed-column JSON/CSV export.
package query

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hannah-ric/esg-scraper/internal/compliance"
	"github.com/hannah-ric/esg-scraper/internal/standardize"
	"github.com/hannah-ric/esg-scraper/internal/store"
)

// Trend classifies a company's score movement across its last analyses.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Service answers history, gap and benchmark queries against the store.
type Service struct {
	db store.Database
}

func New(db store.Database) *Service {
	return &Service{db: db}
}

// History returns a user's analyses, most recent first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]*store.Analysis, error) {
	return s.db.ListAnalysesByUser(ctx, userID, limit, offset)
}

// Gaps decodes and sorts one analysis's gap list by severity, then
// framework, then requirement ID.
func (s *Service) Gaps(ctx context.Context, analysisID, userID string) ([]compliance.Gap, error) {
	a, err := s.db.GetAnalysisByID(ctx, analysisID, userID)
	if err != nil {
		return nil, err
	}
	var gaps []compliance.Gap
	if err := json.Unmarshal(a.Gaps, &gaps); err != nil {
		return nil, fmt.Errorf("query: decode gaps: %w", err)
	}
	rank := map[compliance.Severity]int{
		compliance.SeverityCritical: 0,
		compliance.SeverityHigh:     1,
		compliance.SeverityMedium:   2,
		compliance.SeverityLow:      3,
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		a, b := gaps[i], gaps[j]
		if rank[a.Severity] != rank[b.Severity] {
			return rank[a.Severity] < rank[b.Severity]
		}
		if a.Framework != b.Framework {
			return a.Framework < b.Framework
		}
		return a.RequirementID < b.RequirementID
	})
	return gaps, nil
}

// Benchmark aggregates the top scores for an industry sector and tags the
// requesting company's trend from its last 3 analyses
// (delta >= +2 improving, <= -2 declining, otherwise stable).
func (s *Service) Benchmark(ctx context.Context, industrySector, companyName string, limit int) ([]store.BenchmarkPoint, Trend, error) {
	points, err := s.db.AggregateBenchmark(ctx, industrySector, limit)
	if err != nil {
		return nil, "", err
	}

	history, err := s.db.ListByCompany(ctx, companyName, 3, 0)
	if err != nil {
		return points, TrendStable, nil
	}
	return points, trendFromHistory(history), nil
}

// CompanyHistoryPoint is one timestamped entry in a company's score
// history.
type CompanyHistoryPoint struct {
	CreatedAt     time.Time          `json:"created_at"`
	Overall       float64            `json:"overall_score"`
	Environmental float64            `json:"environmental_score"`
	Social        float64            `json:"social_score"`
	Governance    float64            `json:"governance_score"`
	Coverage      map[string]float64 `json:"coverage_percentages,omitempty"`
}

// CompanyHistory returns a company's scores over the last `days` days,
// oldest first.
func (s *Service) CompanyHistory(ctx context.Context, companyName string, days int) ([]CompanyHistoryPoint, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	analyses, err := s.db.ListByCompanySince(ctx, companyName, since)
	if err != nil {
		return nil, err
	}
	points := make([]CompanyHistoryPoint, 0, len(analyses))
	for _, a := range analyses {
		points = append(points, CompanyHistoryPoint{
			CreatedAt:     a.CreatedAt,
			Overall:       a.OverallScore,
			Environmental: a.Environmental,
			Social:        a.Social,
			Governance:    a.Governance,
			Coverage:      coveragePercentages(a.Coverage),
		})
	}
	return points, nil
}

// coveragePercentages flattens a persisted coverage blob into a
// framework -> coverage percentage map; a missing or corrupt blob yields
// nil rather than failing the history listing.
func coveragePercentages(blob []byte) map[string]float64 {
	var coverage []compliance.FrameworkCoverage
	if len(blob) == 0 || json.Unmarshal(blob, &coverage) != nil {
		return nil
	}
	out := make(map[string]float64, len(coverage))
	for _, c := range coverage {
		out[string(c.Framework)] = c.CoveragePercent
	}
	return out
}

// CompareResult is one company's entry in a POST /compare
// response: its latest scores, a 3-point trend tag, and a benchmark
// baseline (median overall score of its sector, or globally if it has none
// on record).
type CompareResult struct {
	CompanyName       string  `json:"company_name"`
	Overall           float64 `json:"overall_score"`
	Environmental     float64 `json:"environmental_score"`
	Social            float64 `json:"social_score"`
	Governance        float64 `json:"governance_score"`
	Trend             Trend   `json:"trend"`
	BenchmarkBaseline float64 `json:"benchmark_baseline"`
	HasAnalysis       bool    `json:"has_analysis"`
}

// Compare answers POST /v1/compare: for each requested company, its latest
// analysis scores, trend, and a sector-or-global median baseline.
func (s *Service) Compare(ctx context.Context, companies []string) ([]CompareResult, error) {
	results := make([]CompareResult, 0, len(companies))
	for _, name := range companies {
		history, err := s.db.ListByCompany(ctx, name, 3, 0)
		if err != nil {
			return nil, err
		}
		result := CompareResult{CompanyName: name, Trend: TrendStable}
		if len(history) == 0 {
			results = append(results, result)
			continue
		}

		latest := history[0]
		result.HasAnalysis = true
		result.Overall = latest.OverallScore
		result.Environmental = latest.Environmental
		result.Social = latest.Social
		result.Governance = latest.Governance
		result.Trend = trendFromHistory(history)

		sector := latest.IndustrySector
		baselinePoints, err := s.db.AggregateBenchmark(ctx, sector, 1000)
		if err != nil {
			return nil, err
		}
		result.BenchmarkBaseline = medianOverallScore(baselinePoints)
		results = append(results, result)
	}
	return results, nil
}

func medianOverallScore(points []store.BenchmarkPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	scores := make([]float64, len(points))
	for i, p := range points {
		scores[i] = p.OverallScore
	}
	sort.Float64s(scores)
	mid := len(scores) / 2
	if len(scores)%2 == 0 {
		return (scores[mid-1] + scores[mid]) / 2
	}
	return scores[mid]
}

func trendFromHistory(history []*store.Analysis) Trend {
	if len(history) < 2 {
		return TrendStable
	}
	// history is ordered most-recent-first.
	latest := history[0].OverallScore
	oldest := history[len(history)-1].OverallScore
	delta := latest - oldest
	switch {
	case delta >= 2:
		return TrendImproving
	case delta <= -2:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// exportColumns is the fixed export column order; downstream importers
// depend on this exact sequence.
var exportColumns = []string{
	"analysis_id", "created_at", "company_name", "industry_sector",
	"reporting_period", "environmental", "social", "governance", "overall",
	"frameworks", "coverage_avg",
}

// exportLimit caps a single export; SQL LIMIT 0 returns zero rows in both
// backends, so "all analyses" is expressed as a generous cap instead.
const exportLimit = 100000

// ExportAnalysis is the JSON export form of one analysis: the persisted
// scalar columns plus the result blobs decoded back into their typed
// shapes, so the export round-trips the full result graph rather than
// just the scores.
type ExportAnalysis struct {
	ID              string                         `json:"analysis_id"`
	CompanyName     string                         `json:"company_name"`
	IndustrySector  string                         `json:"industry_sector"`
	ReportingPeriod string                         `json:"reporting_period"`
	Kind            string                         `json:"kind"`
	URL             string                         `json:"url,omitempty"`
	Environmental   float64                        `json:"environmental_score"`
	Social          float64                        `json:"social_score"`
	Governance      float64                        `json:"governance_score"`
	Overall         float64                        `json:"overall_score"`
	Frameworks      []string                       `json:"frameworks"`
	Confidence      float64                        `json:"confidence"`
	Metrics         []standardize.ExtractedMetric  `json:"extracted_metrics,omitempty"`
	Coverage        []compliance.FrameworkCoverage `json:"coverage,omitempty"`
	Gaps            []compliance.Gap               `json:"gaps,omitempty"`
	Findings        []compliance.Finding           `json:"requirement_findings,omitempty"`
	Insights        []string                       `json:"insights,omitempty"`
	CreatedAt       time.Time                      `json:"created_at"`
}

func toExportAnalysis(a *store.Analysis) ExportAnalysis {
	out := ExportAnalysis{
		ID:              a.ID,
		CompanyName:     a.CompanyName,
		IndustrySector:  a.IndustrySector,
		ReportingPeriod: a.ReportingPeriod,
		Kind:            a.Kind,
		URL:             a.URL,
		Environmental:   a.Environmental,
		Social:          a.Social,
		Governance:      a.Governance,
		Overall:         a.OverallScore,
		Frameworks:      a.Frameworks,
		Confidence:      a.Confidence,
		CreatedAt:       a.CreatedAt,
	}
	// A corrupt blob drops that section rather than failing the export.
	if len(a.Metrics) > 0 {
		_ = json.Unmarshal(a.Metrics, &out.Metrics)
	}
	if len(a.Coverage) > 0 {
		_ = json.Unmarshal(a.Coverage, &out.Coverage)
	}
	if len(a.Gaps) > 0 {
		_ = json.Unmarshal(a.Gaps, &out.Gaps)
	}
	if len(a.Findings) > 0 {
		_ = json.Unmarshal(a.Findings, &out.Findings)
	}
	if len(a.Insights) > 0 {
		_ = json.Unmarshal(a.Insights, &out.Insights)
	}
	return out
}

// ExportJSON writes a user's analyses as a JSON array carrying the full
// result graph of each analysis.
func (s *Service) ExportJSON(ctx context.Context, userID string, w io.Writer) error {
	analyses, err := s.db.ListAnalysesByUser(ctx, userID, exportLimit, 0)
	if err != nil {
		return err
	}
	records := make([]ExportAnalysis, 0, len(analyses))
	for _, a := range analyses {
		records = append(records, toExportAnalysis(a))
	}
	return json.NewEncoder(w).Encode(records)
}

// ExportCSV writes a user's analyses as CSV with the fixed column order.
func (s *Service) ExportCSV(ctx context.Context, userID string, w io.Writer) error {
	analyses, err := s.db.ListAnalysesByUser(ctx, userID, exportLimit, 0)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(exportColumns); err != nil {
		return err
	}
	for _, a := range analyses {
		row := []string{
			a.ID,
			a.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			a.CompanyName,
			a.IndustrySector,
			a.ReportingPeriod,
			fmt.Sprintf("%.1f", a.Environmental),
			fmt.Sprintf("%.1f", a.Social),
			fmt.Sprintf("%.1f", a.Governance),
			fmt.Sprintf("%.1f", a.OverallScore),
			strings.Join(a.Frameworks, ";"),
			fmt.Sprintf("%.1f", coverageAverage(a.Coverage)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// coverageAverage decodes a persisted coverage blob and returns the mean
// coverage percentage across frameworks, for the export's coverage_avg
// column.
func coverageAverage(raw []byte) float64 {
	if len(raw) == 0 {
		return 0
	}
	var coverage []compliance.FrameworkCoverage
	if err := json.Unmarshal(raw, &coverage); err != nil || len(coverage) == 0 {
		return 0
	}
	var sum float64
	for _, c := range coverage {
		sum += c.CoveragePercent
	}
	return sum / float64(len(coverage))
}
