package otel

import (
	"github.com/loomworks/loom/pipeline"
)

// EnrichHandler wraps an EventHandler with OpenTelemetry trace context.
// Before events reach the wrapped handler, the active span is looked up from
// the TracingHandler and the TraceID and SpanID fields are populated.
//
// For target-phase events (where Target is set), the open target span is
// checked first. If no target span is open, it falls back to the run-level
// span. When no span is active, the event passes through unchanged.
//
// In a handler chain the TracingHandler must run before the enriched
// handler, so the span an event belongs to already exists.
func EnrichHandler(next pipeline.EventHandler, tracing *TracingHandler) pipeline.EventHandler {
	return func(e pipeline.Event) {
		// For target-phase events, try the open target span first.
		if e.Target != "" {
			sc := tracing.ActiveTargetSpanContext(e.RunID)
			if sc.IsValid() {
				e.TraceID = sc.TraceID().String()
				e.SpanID = sc.SpanID().String()
			}
		}
		// Fallback to run-level span.
		if e.TraceID == "" && e.RunID != "" {
			sc := tracing.ActiveRunSpanContext(e.RunID)
			if sc.IsValid() {
				e.TraceID = sc.TraceID().String()
				e.SpanID = sc.SpanID().String()
			}
		}
		next(e)
	}
}
