package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every Prometheus collector the service emits.
type Metrics struct {
	APIRequestsTotal       *prometheus.CounterVec
	APIRequestDuration     *prometheus.HistogramVec
	AnalysisByFramework    *prometheus.CounterVec
	MetricsExtractedCount  prometheus.Histogram
	CacheOperationsTotal   *prometheus.CounterVec
	CreditDebitsTotal      *prometheus.CounterVec
	RateLimitHitsTotal     *prometheus.CounterVec
}

// NewMetrics registers every collector against reg. Pass
// prometheus.NewRegistry() in tests to avoid duplicate-registration panics
// across parallel test binaries.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		APIRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		APIRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		AnalysisByFramework: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_by_framework_total",
			Help: "Analyses run per framework and tier.",
		}, []string{"framework", "tier"}),
		MetricsExtractedCount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "metrics_extracted_count",
			Help:    "Number of metrics extracted per full analysis.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		CacheOperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache operations by op and outcome.",
		}, []string{"op", "outcome"}),
		CreditDebitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_debits_total",
			Help: "Credit debit attempts by outcome.",
		}, []string{"outcome"}),
		RateLimitHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_hits_total",
			Help: "Rate limit rejections by endpoint and tier.",
		}, []string{"endpoint", "tier"}),
	}
}
