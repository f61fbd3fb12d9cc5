// Package api assembles the HTTP router.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hannah-ric/esg-scraper/internal/api/handlers"
	"github.com/hannah-ric/esg-scraper/internal/api/middleware"
	"github.com/hannah-ric/esg-scraper/internal/auth"
	"github.com/hannah-ric/esg-scraper/internal/config"
	"github.com/hannah-ric/esg-scraper/internal/observability"
)

// The route tree splits into three access levels:
//
//   - open: /health, /health/detailed, /metrics, /auth/register and
//     /v1/frameworks take no identity at all;
//   - public: /v1/analyze, /v1/compare and /v1/export accept an optional
//     bearer token — unauthenticated callers are admitted as the anonymous
//     tier (keyed by remote IP for rate limiting, never persisted);
//   - protected: everything that reads owned or historical state
//     (/v1/history, /v1/company/{name}/history, /v1/analyses/{id}/gaps,
//     /v1/benchmark, /v1/usage) requires a valid token.
//
// NewRouter builds that tree with the shared middleware chain in front.
// registry is the Prometheus registry every collector is registered on;
// /metrics serves it directly rather than the process-global default.
func NewRouter(
	cfg *config.Config,
	h *handlers.Handlers,
	detailedHealth *handlers.DetailedHealth,
	authSvc *auth.Service,
	log *observability.Logger,
	metrics *observability.Metrics,
	registry *prometheus.Registry,
) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(log))
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(metricsMiddleware(metrics))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/health/detailed", detailedHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/v1/frameworks", h.Frameworks).Methods(http.MethodGet)

	public := r.PathPrefix("/v1").Subrouter()
	public.Use(middleware.OptionalAuth(authSvc))
	public.HandleFunc("/analyze", h.Analyze).Methods(http.MethodPost)
	public.HandleFunc("/compare", h.Compare).Methods(http.MethodPost)
	public.HandleFunc("/export", h.Export).Methods(http.MethodGet, http.MethodPost)

	protected := r.PathPrefix("/v1").Subrouter()
	protected.Use(middleware.Auth(authSvc))
	protected.HandleFunc("/history", h.History).Methods(http.MethodGet)
	protected.HandleFunc("/company/{name}/history", h.CompanyHistory).Methods(http.MethodGet)
	protected.HandleFunc("/analyses/{id}/gaps", h.Gaps).Methods(http.MethodGet)
	protected.HandleFunc("/benchmark", h.Benchmark).Methods(http.MethodGet, http.MethodPost)
	protected.HandleFunc("/usage", h.Usage).Methods(http.MethodGet)

	return r
}

func metricsMiddleware(metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			route := r.URL.Path
			if metrics != nil {
				metrics.APIRequestsTotal.WithLabelValues(route, http.StatusText(sw.status)).Inc()
				metrics.APIRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
