// Package observability provides the structured logger, Prometheus
// collectors and tracing helpers shared by every component. Logger wraps a
// zap sugared logger behind the small keyed API the components use, so the
// logging backend stays swappable in one place.
package observability

import (
	"context"

	"go.uber.org/zap"
)

// Logger wraps a zap.SugaredLogger with request/user scoping helpers.
type Logger struct {
	base *zap.SugaredLogger
}

// NewLogger builds a production JSON logger, or a development console logger
// when pretty is true.
func NewLogger(pretty bool) (*Logger, error) {
	var zl *zap.Logger
	var err error
	if pretty {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return &Logger{base: zl.Sugar()}, nil
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{base: zap.NewNop().Sugar()}
}

func (l *Logger) Info(msg string, kv ...interface{})  { l.base.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.base.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.base.Errorw(msg, kv...) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.base.Debugw(msg, kv...) }

func (l *Logger) Sync() error { return l.base.Sync() }

// Raw exposes the underlying SugaredLogger for components that predate the
// Logger wrapper (e.g. acquire.Acquirer, cache.Cache).
func (l *Logger) Raw() *zap.SugaredLogger { return l.base }

// WithUser returns a child logger annotated with the user id for every
// subsequent call.
func (l *Logger) WithUser(userID string) *Logger {
	return &Logger{base: l.base.With("user_id", userID)}
}

// WithRequestID returns a child logger annotated with a correlation id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{base: l.base.With("request_id", requestID)}
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestIDFromContext extracts the correlation id stashed by middleware.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithRequestID stashes a correlation id for downstream retrieval.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// LogBusinessEvent records a domain-significant event with the request id
// from ctx attached.
func (l *Logger) LogBusinessEvent(ctx context.Context, event string, subjectID string, payload map[string]interface{}) {
	kv := make([]interface{}, 0, 4+2*len(payload))
	kv = append(kv, "event", event, "subject_id", subjectID, "request_id", RequestIDFromContext(ctx))
	for k, v := range payload {
		kv = append(kv, k, v)
	}
	l.base.Infow("business_event", kv...)
}
