// Package orchestrator runs the end-to-end pipeline from a disclosure URL
// or inline text to a scored, gap-analyzed AnalysisResponse, bounding
// per-user concurrency and fanning the compute stage out across goroutines
// joined with multierr.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/hannah-ric/esg-scraper/internal/acquire"
	"github.com/hannah-ric/esg-scraper/internal/apperr"
	"github.com/hannah-ric/esg-scraper/internal/cache"
	"github.com/hannah-ric/esg-scraper/internal/catalog"
	"github.com/hannah-ric/esg-scraper/internal/compliance"
	"github.com/hannah-ric/esg-scraper/internal/governor"
	"github.com/hannah-ric/esg-scraper/internal/observability"
	"github.com/hannah-ric/esg-scraper/internal/scoring"
	"github.com/hannah-ric/esg-scraper/internal/standardize"
	"github.com/hannah-ric/esg-scraper/internal/store"
)

// defaultMaxConcurrentPerUser bounds in-flight analyses per subject.
const defaultMaxConcurrentPerUser = 4

// Kind distinguishes a quick keyword-only pass from a full analysis that
// also extracts metrics.
type Kind string

const (
	KindQuick Kind = "quick"
	KindFull  Kind = "full"
)

// Credit cost policy: quick=1, full=5, +2 if the content came from a URL
// fetch rather than inline text. A cache hit debits only baseQuickCost
// regardless of kind or fetch.
const (
	baseQuickCost = 1
	baseFullCost  = 5
	urlFetchCost  = 2
)

// Request is the validated input to one analysis.
type Request struct {
	UserID          string
	Tier            governor.Tier
	URL             string
	Text            string
	Kind            Kind
	ExtractMetrics  bool
	CompanyName     string
	IndustrySector  string
	ReportingPeriod string
	Frameworks      []catalog.Framework
}

// Response is the assembled output handed back to the API layer.
type Response struct {
	ID               string                         `json:"id"`
	CompanyName      string                         `json:"company_name"`
	URL              string                         `json:"url"`
	OverallScore     float64                        `json:"overall_score"`
	Environmental    float64                        `json:"environmental_score"`
	Social           float64                        `json:"social_score"`
	Governance       float64                        `json:"governance_score"`
	Keywords         []string                       `json:"keywords,omitempty"`
	Insights         []string                       `json:"insights,omitempty"`
	Metrics          []standardize.ExtractedMetric  `json:"extracted_metrics,omitempty"`
	Coverage         []compliance.FrameworkCoverage `json:"coverage"`
	Gaps             []compliance.Gap               `json:"gaps"`
	Findings         []compliance.Finding           `json:"requirement_findings,omitempty"`
	Sentiment        *scoring.Sentiment             `json:"sentiment,omitempty"`
	Confidence       float64                        `json:"confidence"`
	CachedResult     bool                           `json:"cache_hit"`
	CreditsUsed      int                            `json:"credits_used"`
	CreditsRemaining int                            `json:"credits_remaining"`
	CreatedAt        time.Time                      `json:"created_at"`
}

// Orchestrator wires every component into the single Analyze operation.
type Orchestrator struct {
	acquirer     *acquire.Acquirer
	standardizer *standardize.Standardizer
	compliance   *compliance.Engine
	cache        *cache.Cache
	governor     *governor.Governor
	db           store.Database
	sentiment    scoring.SentimentProvider
	log          *observability.Logger
	metrics      *observability.Metrics

	mu         sync.Mutex
	inFlight   map[string]int
	maxPerUser int
}

// New wires the orchestrator's collaborators. sentiment may be nil, in
// which case scoring runs unadjusted.
func New(
	acquirer *acquire.Acquirer,
	standardizer *standardize.Standardizer,
	complianceEngine *compliance.Engine,
	c *cache.Cache,
	g *governor.Governor,
	db store.Database,
	sentiment scoring.SentimentProvider,
	log *observability.Logger,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		acquirer:     acquirer,
		standardizer: standardizer,
		compliance:   complianceEngine,
		cache:        c,
		governor:     g,
		db:           db,
		sentiment:    sentiment,
		log:          log,
		metrics:      metrics,
		inFlight:     make(map[string]int),
		maxPerUser:   defaultMaxConcurrentPerUser,
	}
}

// Analyze runs the pipeline: validate, rate check, cost/credit check,
// fetch-or-inline-text, fingerprint, cache lookup, concurrent compute,
// persist, and response assembly.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*Response, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	if err := o.acquireSlot(req.UserID); err != nil {
		return nil, err
	}
	defer o.releaseSlot(req.UserID)

	if err := o.governor.CheckRate(ctx, governor.EndpointAnalyze, req.Tier, req.UserID); err != nil {
		if o.metrics != nil {
			o.metrics.RateLimitHitsTotal.WithLabelValues(string(governor.EndpointAnalyze), string(req.Tier)).Inc()
		}
		if o.db != nil && req.Tier != governor.TierAnonymous {
			_ = o.db.RecordActivity(ctx, &store.Activity{
				UserID: req.UserID,
				Event:  "rate_limit_hit",
				Detail: string(governor.EndpointAnalyze),
			})
		}
		return nil, err
	}

	viaURL := req.URL != ""
	fullCost := creditCost(req.Kind, viaURL)

	remaining, err := o.governor.CheckAndDebitCredits(ctx, req.Tier, req.UserID, fullCost)
	if err != nil {
		if o.metrics != nil {
			o.metrics.CreditDebitsTotal.WithLabelValues("denied").Inc()
		}
		if o.db != nil && req.Tier != governor.TierAnonymous {
			_ = o.db.RecordActivity(ctx, &store.Activity{
				UserID: req.UserID,
				Event:  "credit_denied",
				Detail: err.Error(),
			})
		}
		return nil, err
	}
	if o.metrics != nil && req.Tier != governor.TierAnonymous {
		o.metrics.CreditDebitsTotal.WithLabelValues("success").Inc()
	}
	o.mirrorCredits(ctx, req.Tier, req.UserID, -fullCost)
	// The anonymous tier has no balance: the governor's debit was a no-op,
	// so the response must not claim credits were consumed.
	debited := fullCost
	if req.Tier == governor.TierAnonymous {
		debited = 0
	}
	refundIfNeeded := func() {
		if debited > 0 {
			_, _ = o.governor.RefundCredits(ctx, req.Tier, req.UserID, debited)
			o.mirrorCredits(ctx, req.Tier, req.UserID, debited)
			if o.db != nil && req.Tier != governor.TierAnonymous {
				_ = o.db.RecordActivity(ctx, &store.Activity{
					UserID: req.UserID,
					Event:  "credit_refund",
					Detail: "analysis failed after debit",
				})
			}
		}
	}

	var doc acquire.Result
	if viaURL {
		ctx2, span := observability.StartSpan(ctx, "acquire")
		d, err := o.acquirer.Fetch(ctx2, req.URL)
		span.End()
		if err != nil {
			refundIfNeeded()
			return nil, err
		}
		doc = d
	} else {
		doc = acquire.Result{Text: req.Text}
	}

	fingerprint := fingerprintFor(req, doc)

	var resp Response
	hit, err := o.cache.ComputeOrLoad(ctx, fingerprint, 0, &resp, func() (interface{}, error) {
		computed, err := o.compute(ctx, req, doc)
		if err != nil {
			return nil, err
		}
		// Persist before the cache write that follows this callback, so a
		// reader can never see a cached analysis that was not durably
		// stored. A persistence failure aborts the request and the
		// refundIfNeeded call on the error path below refunds the debit.
		if err := o.persist(ctx, req, doc, *computed, fingerprint); err != nil {
			return nil, err
		}
		return computed, nil
	})
	if o.metrics != nil {
		outcome := "miss"
		if hit {
			outcome = "hit"
		}
		if err != nil {
			outcome = "error"
		}
		o.metrics.CacheOperationsTotal.WithLabelValues("compute_or_load", outcome).Inc()
	}
	if err != nil {
		refundIfNeeded()
		return nil, err
	}
	resp.CachedResult = hit

	if hit && debited > governor.CacheHitCost {
		// Cache hit only charges the baseline cost; refund the gap between
		// the provisional full-cost debit above and that baseline.
		refund := fullCost - governor.CacheHitCost
		r, err := o.governor.RefundCredits(ctx, req.Tier, req.UserID, refund)
		if err == nil {
			remaining = r
		}
		o.mirrorCredits(ctx, req.Tier, req.UserID, refund)
		debited = governor.CacheHitCost
	}
	resp.CreditsUsed = debited
	resp.CreditsRemaining = remaining

	if o.metrics != nil {
		for _, fw := range req.Frameworks {
			o.metrics.AnalysisByFramework.WithLabelValues(string(fw), string(req.Tier)).Inc()
		}
		o.metrics.MetricsExtractedCount.Observe(float64(len(resp.Metrics)))
	}

	return &resp, nil
}

func (o *Orchestrator) validate(req Request) error {
	if req.URL == "" && strings.TrimSpace(req.Text) == "" {
		return apperr.Input("url", "at least one of url or text is required")
	}
	if req.UserID == "" {
		return apperr.Input("user_id", "user_id is required")
	}
	if req.Kind != KindQuick && req.Kind != KindFull {
		return apperr.Input("kind", "kind must be quick or full")
	}
	if len(req.Frameworks) == 0 {
		return apperr.Input("frameworks", "at least one framework is required")
	}
	return nil
}

// creditCost prices one analysis: quick=1, full=5, +2 when the content
// comes from a URL fetch.
func creditCost(kind Kind, viaURL bool) int {
	cost := baseQuickCost
	if kind == KindFull {
		cost = baseFullCost
	}
	if viaURL {
		cost += urlFetchCost
	}
	return cost
}

// fingerprintFor computes the cache key: for a URL request it hashes the
// canonicalized final URL plus kind/frameworks/industry; for inline text
// it hashes SHA-256(text) wrapped again with the same parameters, so two
// requests against identical content with different frameworks never
// collide in the cache.
func fingerprintFor(req Request, doc acquire.Result) string {
	params := fingerprintParams(req)
	if req.URL != "" {
		canonical := canonicalizeURL(doc.FinalURL)
		if canonical == "" {
			canonical = canonicalizeURL(req.URL)
		}
		return sha256Hex(canonical + params)
	}
	textDigest := sha256Hex(req.Text)
	return sha256Hex(textDigest + params)
}

func fingerprintParams(req Request) string {
	frameworks := make([]string, len(req.Frameworks))
	for i, fw := range req.Frameworks {
		frameworks[i] = string(fw)
	}
	sort.Strings(frameworks)
	return string(req.Kind) + "|" + strings.Join(frameworks, ",") + "|" + req.IndustrySector
}

func canonicalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// mirrorCredits keeps the store's users.credits column in sync with the
// governor's authoritative Redis balance. The governor remains the sole
// decision-maker; this is a best-effort read-side mirror, not a second
// source of truth. Anonymous requests never
// reach here with a non-zero delta since the governor short-circuits
// credit checks for that tier.
func (o *Orchestrator) mirrorCredits(ctx context.Context, tier governor.Tier, userID string, delta int) {
	if o.db == nil || delta == 0 || tier == governor.TierAnonymous {
		return
	}
	_, _ = o.db.UpdateUserCredits(ctx, userID, delta)
}

func (o *Orchestrator) acquireSlot(userID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[userID] >= o.maxPerUser {
		return apperr.Busy("too many concurrent analyses for this user")
	}
	o.inFlight[userID]++
	return nil
}

func (o *Orchestrator) releaseSlot(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight[userID]--
	if o.inFlight[userID] <= 0 {
		delete(o.inFlight, userID)
	}
}

// compute runs the keyword scorer always, and in full mode with
// ExtractMetrics set also runs the metric standardizer concurrently with
// it, joining any errors via multierr. Quick mode skips the standardizer
// entirely so a quick response never carries extracted_metrics.
func (o *Orchestrator) compute(ctx context.Context, req Request, doc acquire.Result) (*Response, error) {
	_, span := observability.StartSpan(ctx, "compute")
	defer span.End()

	extractMetrics := req.Kind == KindFull && req.ExtractMetrics

	// Sentiment feeds the scorer's pillar adjustment, so it runs before the
	// fan-out. Best-effort: a classifier error leaves scoring unadjusted.
	var sentiment *scoring.Sentiment
	if o.sentiment != nil {
		if s, err := o.sentiment.Classify(ctx, doc.Text); err == nil {
			sentiment = &s
		} else if o.log != nil {
			o.log.Warn("sentiment classification failed, scoring unadjusted", "error", err)
		}
	}
	signedSentiment := 0.0
	if sentiment != nil {
		signedSentiment = sentiment.Signed()
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		combined error
		scoreRes scoring.Result
		metrics  []standardize.ExtractedMetric
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				mu.Lock()
				combined = multierr.Append(combined, fmt.Errorf("scoring panic: %v", r))
				mu.Unlock()
			}
		}()
		scoreRes = scoring.Score(doc.Text, signedSentiment)
	}()

	if extractMetrics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					combined = multierr.Append(combined, fmt.Errorf("standardize panic: %v", r))
					mu.Unlock()
				}
			}()
			candidates := scan(doc.Text)
			ms, _ := o.standardizer.Standardize(candidates, req.Frameworks)
			metrics = ms
		}()
	}

	wg.Wait()

	// Compliance scanning depends on any standardized metrics from the
	// second goroutine, so it runs after the join rather than concurrently
	// with it.
	complReport := o.compliance.Scan(doc.Text, metrics, req.Frameworks, req.IndustrySector)

	if combined != nil {
		return nil, apperr.Internal("analysis compute failed", combined)
	}

	return &Response{
		ID:            uuid.NewString(),
		CompanyName:   req.CompanyName,
		URL:           doc.FinalURL,
		OverallScore:  scoreRes.Overall,
		Environmental: scoreRes.Environmental,
		Social:        scoreRes.Social,
		Governance:    scoreRes.Governance,
		Keywords:      keywordList(scoreRes),
		Insights:      buildInsights(scoreRes, complReport),
		Metrics:       metrics,
		Coverage:      complReport.Coverage,
		Gaps:          complReport.Gaps,
		Findings:      complReport.Findings,
		Sentiment:     sentiment,
		Confidence:    analysisConfidence(complReport.Findings, metrics),
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) persist(ctx context.Context, req Request, doc acquire.Result, resp Response, fingerprint string) error {
	if o.db == nil {
		return nil
	}
	// The anonymous tier leaves no server-side record: its analyses are
	// computed, cached and returned but never stored.
	if req.Tier == governor.TierAnonymous {
		return nil
	}
	metricsJSON, err := json.Marshal(resp.Metrics)
	if err != nil {
		return err
	}
	coverageJSON, err := json.Marshal(resp.Coverage)
	if err != nil {
		return err
	}
	gapsJSON, err := json.Marshal(resp.Gaps)
	if err != nil {
		return err
	}
	findingsJSON, err := json.Marshal(resp.Findings)
	if err != nil {
		return err
	}
	insightsJSON, err := json.Marshal(resp.Insights)
	if err != nil {
		return err
	}

	frameworks := make([]string, len(req.Frameworks))
	for i, fw := range req.Frameworks {
		frameworks[i] = string(fw)
	}

	if err := o.db.InsertAnalysis(ctx, &store.Analysis{
		ID:              resp.ID,
		UserID:          req.UserID,
		CompanyName:     req.CompanyName,
		IndustrySector:  req.IndustrySector,
		ReportingPeriod: req.ReportingPeriod,
		Kind:            string(req.Kind),
		URL:             doc.FinalURL,
		Fingerprint:     fingerprint,
		OverallScore:    resp.OverallScore,
		Environmental:   resp.Environmental,
		Social:          resp.Social,
		Governance:      resp.Governance,
		Frameworks:      frameworks,
		Metrics:         metricsJSON,
		Coverage:        coverageJSON,
		Gaps:            gapsJSON,
		Findings:        findingsJSON,
		Insights:        insightsJSON,
		Confidence:      resp.Confidence,
		CreatedAt:       resp.CreatedAt,
	}); err != nil {
		return err
	}

	return o.db.RecordActivity(ctx, &store.Activity{
		UserID: req.UserID,
		Event:  "analysis_completed",
		Detail: resp.ID,
	})
}
