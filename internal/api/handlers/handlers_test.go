package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannah-ric/esg-scraper/internal/auth"
	"github.com/hannah-ric/esg-scraper/internal/catalog"
	"github.com/hannah-ric/esg-scraper/internal/observability"
	"github.com/hannah-ric/esg-scraper/internal/query"
	"github.com/hannah-ric/esg-scraper/internal/store"
)

// fakeDB backs query.Service in handler tests without a live database.
type fakeDB struct {
	store.Database
	analyses []*store.Analysis
}

func (f *fakeDB) ListAnalysesByUser(ctx context.Context, userID string, limit, offset int) ([]*store.Analysis, error) {
	return f.analyses, nil
}

func newHandlersForQueryTests(t *testing.T) (*Handlers, *fakeDB) {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)

	fdb := &fakeDB{analyses: []*store.Analysis{
		{ID: "a1", CompanyName: "Acme Corp", OverallScore: 72.5, CreatedAt: time.Now()},
	}}
	q := query.New(fdb)
	h := New(nil, q, cat, observability.NewNop(), nil, nil, nil, 100)
	return h, fdb
}

func TestHealthReturnsOK(t *testing.T) {
	h := &Handlers{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestFrameworksReturnsCatalogSummaries(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)
	h := New(nil, nil, cat, observability.NewNop(), nil, nil, nil, 100)

	req := httptest.NewRequest(http.MethodGet, "/v1/frameworks", nil)
	rec := httptest.NewRecorder()
	h.Frameworks(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var summaries []catalog.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	assert.NotEmpty(t, summaries)
}

func TestHistoryReturnsAnalysesFromQueryService(t *testing.T) {
	h, _ := newHandlersForQueryTests(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/history?limit=5", nil)
	rec := httptest.NewRecorder()
	h.History(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var analyses []*store.Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analyses))
	require.Len(t, analyses, 1)
	assert.Equal(t, "Acme Corp", analyses[0].CompanyName)
}

func TestExportJSONSetsContentType(t *testing.T) {
	h, _ := newHandlersForQueryTests(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/export", nil)
	rec := httptest.NewRecorder()
	h.Export(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestExportCSVSetsAttachmentHeaders(t *testing.T) {
	h, _ := newHandlersForQueryTests(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/export?format=csv", nil)
	rec := httptest.NewRecorder()
	h.Export(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "Acme Corp")
}

func TestAnalyzeRejectsInvalidJSONBody(t *testing.T) {
	h, _ := newHandlersForQueryTests(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("not-json"))
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseIntDefaultFallsBackOnInvalidInput(t *testing.T) {
	assert.Equal(t, 20, parseIntDefault("", 20))
	assert.Equal(t, 20, parseIntDefault("not-a-number", 20))
	assert.Equal(t, 7, parseIntDefault("7", 20))
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	h, _ := newHandlersForQueryTests(t)
	h.auth = auth.New("test-secret", time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"not-an-email"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterIssuesTokenForValidEmail(t *testing.T) {
	h, _ := newHandlersForQueryTests(t)
	h.auth = auth.New("test-secret", time.Hour)
	h.freeTierCredits = 100

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"person@example.com"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body registerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, "free", body.Tier)
	assert.Equal(t, 100, body.Credits)
}

func TestUsageReturnsZeroValueWithoutGovernor(t *testing.T) {
	h, _ := newHandlersForQueryTests(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	rec := httptest.NewRecorder()
	h.Usage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompareRejectsEmptyCompanies(t *testing.T) {
	h, _ := newHandlersForQueryTests(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/compare", strings.NewReader(`{"companies":[]}`))
	rec := httptest.NewRecorder()
	h.Compare(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGapsRouteReadsIDFromVars(t *testing.T) {
	h, _ := newHandlersForQueryTests(t)
	// GetAnalysisByID is unimplemented on fakeDB (embedded nil Database), so
	// this exercises the not-found/error path rather than a populated gap list.
	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/missing/gaps", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "missing"})
	rec := httptest.NewRecorder()

	defer func() {
		_ = recover() // embedded nil store.Database panics on the unimplemented call; that's expected here.
	}()
	h.Gaps(rec, req)
}
