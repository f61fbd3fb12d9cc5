// Package handlers implements the HTTP surface of the disclosure analysis
// platform: register, analyze, compare, frameworks catalog,
// history, gaps, benchmark, export, usage and health endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/hannah-ric/esg-scraper/internal/api/middleware"
	"github.com/hannah-ric/esg-scraper/internal/apperr"
	"github.com/hannah-ric/esg-scraper/internal/auth"
	"github.com/hannah-ric/esg-scraper/internal/catalog"
	"github.com/hannah-ric/esg-scraper/internal/governor"
	"github.com/hannah-ric/esg-scraper/internal/observability"
	"github.com/hannah-ric/esg-scraper/internal/orchestrator"
	"github.com/hannah-ric/esg-scraper/internal/query"
	"github.com/hannah-ric/esg-scraper/internal/store"
)

// Handlers groups every HTTP handler with its dependencies.
type Handlers struct {
	orchestrator    *orchestrator.Orchestrator
	query           *query.Service
	catalog         *catalog.Catalog
	log             *observability.Logger
	db              store.Database
	auth            *auth.Service
	governor        *governor.Governor
	freeTierCredits int
}

// New wires every handler dependency. db/auth/governor may be nil in tests
// that only exercise query-backed endpoints.
func New(
	o *orchestrator.Orchestrator,
	q *query.Service,
	cat *catalog.Catalog,
	log *observability.Logger,
	db store.Database,
	authSvc *auth.Service,
	gov *governor.Governor,
	freeTierCredits int,
) *Handlers {
	return &Handlers{
		orchestrator:    o,
		query:           q,
		catalog:         cat,
		log:             log,
		db:              db,
		auth:            authSvc,
		governor:        gov,
		freeTierCredits: freeTierCredits,
	}
}

type registerRequest struct {
	Email string `json:"email"`
}

type registerResponse struct {
	Token   string `json:"token"`
	Tier    string `json:"tier"`
	Credits int    `json:"credits"`
}

// Register handles POST /auth/register: derives a stable user id
// from the email, creates the user record on first registration with the
// configured free-tier balance, and issues a bearer token.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Input("email", "invalid JSON body"))
		return
	}
	email := strings.TrimSpace(body.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, apperr.Input("email", "invalid email address"))
		return
	}

	userID := auth.DeriveUserID(email)
	tier := governor.TierFree
	credits := h.freeTierCredits

	if h.db != nil {
		ctx := r.Context()
		if existing, err := h.db.GetUserByID(ctx, userID); err == nil {
			tier = governor.Tier(existing.Tier)
			credits = existing.Credits
		} else {
			if err := h.db.CreateUser(ctx, &store.User{
				ID:        userID,
				Email:     email,
				Tier:      string(tier),
				Credits:   h.freeTierCredits,
				CreatedAt: time.Now().UTC(),
			}); err != nil {
				writeError(w, apperr.Dependency("create user failed", err))
				return
			}
			if h.governor != nil {
				_ = h.governor.SetInitialBalance(ctx, userID, h.freeTierCredits)
			}
			_ = h.db.RecordActivity(ctx, &store.Activity{UserID: userID, Event: "register"})
		}
	}
	if h.governor != nil {
		if bal, err := h.governor.Balance(r.Context(), userID); err == nil {
			credits = bal
		}
	}

	token, err := h.auth.IssueToken(userID, email, tier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{Token: token, Tier: string(tier), Credits: credits})
}

type analyzeRequest struct {
	URL             string   `json:"url"`
	Text            string   `json:"text"`
	CompanyName     string   `json:"company_name"`
	QuickMode       bool     `json:"quick_mode"`
	Frameworks      []string `json:"frameworks"`
	IndustrySector  string   `json:"industry_sector"`
	ReportingPeriod string   `json:"reporting_period"`
	ExtractMetrics  bool     `json:"extract_metrics"`
}

// Analyze handles POST /v1/analyze.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Input("body", "invalid JSON body"))
		return
	}

	requested := body.Frameworks
	if len(requested) == 0 {
		requested = make([]string, len(catalog.AllFrameworks))
		for i, fw := range catalog.AllFrameworks {
			requested[i] = string(fw)
		}
	}
	frameworks := make([]catalog.Framework, 0, len(requested))
	for _, f := range requested {
		frameworks = append(frameworks, catalog.Framework(f))
	}

	kind := orchestrator.KindFull
	if body.QuickMode {
		kind = orchestrator.KindQuick
	}

	req := orchestrator.Request{
		UserID:          middleware.UserID(r.Context()),
		Tier:            middleware.UserTier(r.Context()),
		URL:             body.URL,
		Text:            body.Text,
		Kind:            kind,
		ExtractMetrics:  body.ExtractMetrics,
		CompanyName:     body.CompanyName,
		IndustrySector:  body.IndustrySector,
		ReportingPeriod: body.ReportingPeriod,
		Frameworks:      frameworks,
	}

	resp, err := h.orchestrator.Analyze(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type compareRequest struct {
	Companies []string `json:"companies"`
}

// Compare handles POST /v1/compare: per-company latest scores, a trend
// tag derived from the last 3 analyses, and a benchmark baseline (median
// of the company's sector, or global if the company has no recorded
// sector).
func (h *Handlers) Compare(w http.ResponseWriter, r *http.Request) {
	var body compareRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Input("companies", "invalid JSON body"))
		return
	}
	if len(body.Companies) == 0 {
		writeError(w, apperr.Input("companies", "at least one company is required"))
		return
	}

	if err := h.checkRate(r, governor.EndpointCompare); err != nil {
		writeError(w, err)
		return
	}

	results, err := h.query.Compare(r.Context(), body.Companies)
	if err != nil {
		writeError(w, err)
		return
	}
	h.recordActivity(r, "compare")
	writeJSON(w, http.StatusOK, results)
}

// checkRate consults the governor's sliding-window limit for the caller,
// appending a rate_limit_hit activity record on rejection. A nil governor
// (query-only tests) always allows.
func (h *Handlers) checkRate(r *http.Request, endpoint governor.Endpoint) error {
	if h.governor == nil {
		return nil
	}
	tier := middleware.UserTier(r.Context())
	userID := middleware.UserID(r.Context())
	if err := h.governor.CheckRate(r.Context(), endpoint, tier, userID); err != nil {
		if h.db != nil && tier != governor.TierAnonymous {
			_ = h.db.RecordActivity(r.Context(), &store.Activity{
				UserID: userID,
				Event:  "rate_limit_hit",
				Detail: string(endpoint),
			})
		}
		return err
	}
	return nil
}

// recordActivity appends a best-effort audit event for the caller. The
// anonymous tier is never persisted, activity included.
func (h *Handlers) recordActivity(r *http.Request, event string) {
	if h.db == nil || middleware.UserTier(r.Context()) == governor.TierAnonymous {
		return
	}
	_ = h.db.RecordActivity(r.Context(), &store.Activity{
		UserID: middleware.UserID(r.Context()),
		Event:  event,
	})
}

// Frameworks handles GET /v1/frameworks.
func (h *Handlers) Frameworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Summaries())
}

// History handles GET /v1/history.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	analyses, err := h.query.History(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyses)
}

// CompanyHistory handles GET /v1/company/{name}/history?days=N.
func (h *Handlers) CompanyHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	days := parseIntDefault(r.URL.Query().Get("days"), 90)

	points, err := h.query.CompanyHistory(r.Context(), name, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// Gaps handles GET /v1/analyses/{id}/gaps.
func (h *Handlers) Gaps(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	userID := middleware.UserID(r.Context())

	gaps, err := h.query.Gaps(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gaps)
}

type benchmarkRequest struct {
	Companies  []string `json:"companies"`
	Frameworks []string `json:"frameworks"`
}

// Benchmark handles POST /v1/benchmark.
func (h *Handlers) Benchmark(w http.ResponseWriter, r *http.Request) {
	var body benchmarkRequest
	// Accept either a JSON body (POST) or query parameters
	// (GET, for simple scripted callers) for the same underlying query.
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, apperr.Input("companies", "invalid JSON body"))
			return
		}
	}
	sector := r.URL.Query().Get("industry_sector")
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)

	if len(body.Companies) == 0 {
		points, trend, err := h.query.Benchmark(r.Context(), sector, r.URL.Query().Get("company_name"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"points": points, "trend": trend})
		return
	}

	results, err := h.query.Compare(r.Context(), body.Companies)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Export handles GET /v1/export?format=json|csv.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if err := h.checkRate(r, governor.EndpointExportDaily); err != nil {
		writeError(w, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		var body struct {
			Format string `json:"format"`
		}
		if r.Body != nil && r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		format = body.Format
	}

	h.recordActivity(r, "export")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=analyses.csv")
		if err := h.query.ExportCSV(r.Context(), userID, w); err != nil {
			writeError(w, err)
		}
	default:
		w.Header().Set("Content-Type", "application/json")
		if err := h.query.ExportJSON(r.Context(), userID, w); err != nil {
			writeError(w, err)
		}
	}
}

type usageResponse struct {
	CurrentUsage int       `json:"current_usage"`
	Limit        int       `json:"limit"`
	Percentage   float64   `json:"percentage"`
	ResetAt      time.Time `json:"reset_at"`
}

// Usage handles GET /v1/usage: the requester's analyze-endpoint
// usage within the current sliding window.
func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	tier := middleware.UserTier(r.Context())

	if h.governor == nil {
		writeJSON(w, http.StatusOK, usageResponse{})
		return
	}
	used, limit, resetAt := h.governor.Usage(r.Context(), governor.EndpointAnalyze, tier, userID)
	pct := 0.0
	if limit > 0 {
		pct = 100 * float64(used) / float64(limit)
	}
	writeJSON(w, http.StatusOK, usageResponse{
		CurrentUsage: used,
		Limit:        limit,
		Percentage:   pct,
		ResetAt:      resetAt,
	})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorResponse{Error: string(apperr.KindInternal), Message: err.Error()}
	if ae, ok := apperr.As(err); ok {
		status = ae.HTTPStatus()
		body.Error = string(ae.Kind)
		body.Message = ae.Message
		if ae.Kind == apperr.KindQuotaRate {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(ae.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(ae.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(ae.RetryAfter)*time.Second).Unix(), 10))
		}
		if ae.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(ae.RetryAfter))
			body.RetryAfter = ae.RetryAfter
		}
	}
	writeJSON(w, status, body)
}
