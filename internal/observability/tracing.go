package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this module's spans in any configured exporter.
const tracerName = "github.com/hannah-ric/esg-scraper"

// StartSpan opens a span for one orchestrator pipeline stage. With no
// TracerProvider configured, otel.Tracer falls back to a no-op
// implementation, so this is safe to call unconditionally from the
// orchestrator's "acquire" and "compute" stages.
func StartSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, stage)
}
