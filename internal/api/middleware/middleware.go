// Package middleware provides the HTTP cross-cutting concerns shared by
// every route: request-ID propagation, structured access logging, panic
// recovery, CORS and bearer-token authentication.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hannah-ric/esg-scraper/internal/apperr"
	"github.com/hannah-ric/esg-scraper/internal/auth"
	"github.com/hannah-ric/esg-scraper/internal/governor"
	"github.com/hannah-ric/esg-scraper/internal/observability"
)

type contextKey string

const userIDKey contextKey = "user_id"
const userTierKey contextKey = "user_tier"

// RequestID assigns a correlation ID to every inbound request, reusing one
// supplied by an upstream proxy if present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := observability.ContextWithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLog logs method, path, status and latency for every request.
func AccessLog(log *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.WithRequestID(observability.RequestIDFromContext(r.Context())).Info(
				"request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover converts a panic in a downstream handler into a 500 response
// instead of crashing the server.
func Recover(log *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic recovered", "error", rec, "path", r.URL.Path)
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows the configured origins to call the API from a browser.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Auth requires a valid bearer token and stores the subject's ID and tier
// in the request context for downstream handlers.
func Auth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeErr(w, apperr.AuthN("missing or malformed Authorization header"))
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			claims, err := svc.ValidateToken(token)
			if err != nil {
				writeErr(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			ctx = context.WithValue(ctx, userTierKey, claims.Tier)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth admits callers to the public endpoints: a supplied bearer
// token is validated exactly like Auth (an invalid one is still a 401),
// but a request with no Authorization header at all proceeds as the
// anonymous tier, keyed by remote IP so the anonymous rate rows have a
// subject to count against. Anonymous work is never persisted downstream.
func OptionalAuth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				ctx := context.WithValue(r.Context(), userIDKey, anonymousSubject(r))
				ctx = context.WithValue(ctx, userTierKey, governor.TierAnonymous)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if !strings.HasPrefix(header, "Bearer ") {
				writeErr(w, apperr.AuthN("malformed Authorization header"))
				return
			}
			claims, err := svc.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeErr(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			ctx = context.WithValue(ctx, userTierKey, claims.Tier)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// anonymousSubject keys an unauthenticated caller for rate limiting: the
// remote IP with the port stripped, prefixed so it can never collide with
// a real user id.
func anonymousSubject(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "anon:" + host
}

// UserID extracts the authenticated subject's ID from context.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// UserTier extracts the authenticated subject's tier from context.
func UserTier(ctx context.Context) governor.Tier {
	v, _ := ctx.Value(userTierKey).(governor.Tier)
	if v == "" {
		return governor.TierAnonymous
	}
	return v
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if ae, ok := apperr.As(err); ok {
		status = ae.HTTPStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + err.Error() + `"}`))
}
