// Package otel provides OpenTelemetry integration for loom pipeline events.
package otel

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomworks/loom/pipeline"
)

// TracingHandler translates pipeline events into OpenTelemetry spans. Each
// run gets a root span; each generated target gets a child span that stays
// open until the next target starts or the build finishes. Runs emit events
// sequentially, so at most one target span is open per run.
type TracingHandler struct {
	tracer trace.Tracer

	mu           sync.RWMutex
	runSpans     map[string]trace.Span      // runID -> span
	runCtxs      map[string]context.Context // runID -> context (for child spans)
	targetSpans  map[string]trace.Span      // runID -> open target span
	targetFailed map[string]bool            // runID -> open target saw validation issues
}

// NewTracingHandler creates a new TracingHandler that uses the given tracer
// to create spans from pipeline events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:       tracer,
		runSpans:     make(map[string]trace.Span),
		runCtxs:      make(map[string]context.Context),
		targetSpans:  make(map[string]trace.Span),
		targetFailed: make(map[string]bool),
	}
}

// Handle processes a pipeline event and creates or ends spans accordingly.
// It implements pipeline.EventHandler semantics.
func (h *TracingHandler) Handle(e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventBuildStarted:
		h.handleBuildStarted(e)
	case pipeline.EventDefinitionsLoaded:
		h.handleDefinitionsLoaded(e)
	case pipeline.EventTargetGenerated:
		h.handleTargetGenerated(e)
	case pipeline.EventTargetWritten:
		h.handleTargetWritten(e)
	case pipeline.EventTargetValidated:
		h.handleTargetValidated(e)
	case pipeline.EventToolGenerated:
		h.handleToolEvent(e)
	case pipeline.EventToolSkipped:
		h.handleToolEvent(e)
	case pipeline.EventWarning:
		h.handleWarning(e)
	case pipeline.EventBuildFinished:
		h.handleBuildFinished(e)
	}
}

// handleBuildStarted creates a root span for the run.
func (h *TracingHandler) handleBuildStarted(e pipeline.Event) {
	ws := payloadString(e, "workspace")

	spanName := "build:" + e.RunID
	if ws != "" {
		spanName = "build:" + filepath.Base(ws)
	}

	ctx, span := h.tracer.Start(context.Background(), spanName,
		trace.WithAttributes(
			attribute.String("loom.run_id", e.RunID),
		),
		trace.WithTimestamp(e.Time),
	)

	if ws != "" {
		span.SetAttributes(attribute.String("loom.workspace", ws))
	}

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	h.mu.Unlock()
}

// handleDefinitionsLoaded adds a span event with the loaded counts.
func (h *TracingHandler) handleDefinitionsLoaded(e pipeline.Event) {
	h.mu.RLock()
	span, ok := h.runSpans[e.RunID]
	h.mu.RUnlock()

	if !ok {
		return
	}
	span.AddEvent(string(e.Kind), trace.WithTimestamp(e.Time), trace.WithAttributes(
		attribute.Int("loom.agents", payloadInt(e, "agents")),
		attribute.Int("loom.skills", payloadInt(e, "skills")),
		attribute.Int("loom.servers", payloadInt(e, "servers")),
		attribute.Int("loom.tools", payloadInt(e, "tools")),
		attribute.Int("loom.rules", payloadInt(e, "rules")),
	))
}

// handleTargetGenerated ends any open target span, then starts a child span
// under the run span for the new target.
func (h *TracingHandler) handleTargetGenerated(e pipeline.Event) {
	h.closeOpenTarget(e.RunID, e.Time)

	h.mu.RLock()
	parentCtx, ok := h.runCtxs[e.RunID]
	h.mu.RUnlock()

	if !ok {
		// No parent run span; start from background context.
		parentCtx = context.Background()
	}

	_, span := h.tracer.Start(parentCtx, "target:"+e.Target,
		trace.WithAttributes(
			attribute.String("loom.run_id", e.RunID),
			attribute.String("loom.target", e.Target),
			attribute.String("loom.filename", payloadString(e, "filename")),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.targetSpans[e.RunID] = span
	h.mu.Unlock()
}

// handleTargetWritten adds a span event with the written path.
func (h *TracingHandler) handleTargetWritten(e pipeline.Event) {
	span, ok := h.openTarget(e.RunID)
	if !ok {
		return
	}
	span.AddEvent(string(e.Kind), trace.WithTimestamp(e.Time), trace.WithAttributes(
		attribute.String("loom.path", payloadString(e, "path")),
	))
}

// handleTargetValidated adds a span event with the issue count and marks the
// open target span failed when the document did not conform.
func (h *TracingHandler) handleTargetValidated(e pipeline.Event) {
	span, ok := h.openTarget(e.RunID)
	if !ok {
		return
	}
	issues := payloadInt(e, "issues")
	span.AddEvent(string(e.Kind), trace.WithTimestamp(e.Time), trace.WithAttributes(
		attribute.Int("loom.issues", issues),
	))
	if issues > 0 {
		h.mu.Lock()
		h.targetFailed[e.RunID] = true
		h.mu.Unlock()
	}
}

// handleToolEvent adds a span event for tool.generated and tool.skipped.
func (h *TracingHandler) handleToolEvent(e pipeline.Event) {
	span, ok := h.openTarget(e.RunID)
	if !ok {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("loom.event_kind", string(e.Kind)),
		attribute.String("loom.tool", payloadString(e, "tool")),
	}
	if reason := payloadString(e, "reason"); reason != "" {
		attrs = append(attrs, attribute.String("loom.reason", reason))
	}
	if e.Kind == pipeline.EventToolGenerated {
		attrs = append(attrs, attribute.Int("loom.artifacts", payloadInt(e, "artifacts")))
	}

	span.AddEvent(string(e.Kind), trace.WithTimestamp(e.Time), trace.WithAttributes(attrs...))
}

// handleWarning adds a span event for a warning diagnostic. Warnings outside
// any target phase land on the run span.
func (h *TracingHandler) handleWarning(e pipeline.Event) {
	span, ok := h.openTarget(e.RunID)
	if !ok {
		h.mu.RLock()
		span, ok = h.runSpans[e.RunID]
		h.mu.RUnlock()
		if !ok {
			return
		}
	}

	attrs := []attribute.KeyValue{
		attribute.String("loom.code", payloadString(e, "code")),
	}
	if p := payloadString(e, "path"); p != "" {
		attrs = append(attrs, attribute.String("loom.path", p))
	}

	span.AddEvent(string(e.Kind), trace.WithTimestamp(e.Time), trace.WithAttributes(attrs...))
}

// handleBuildFinished ends the open target span, then the root run span.
func (h *TracingHandler) handleBuildFinished(e pipeline.Event) {
	h.closeOpenTarget(e.RunID, e.Time)

	h.mu.Lock()
	span, ok := h.runSpans[e.RunID]
	if ok {
		delete(h.runSpans, e.RunID)
		delete(h.runCtxs, e.RunID)
	}
	h.mu.Unlock()

	if ok {
		span.SetAttributes(
			attribute.String("loom.duration", e.Elapsed.String()),
			attribute.Int("loom.targets", payloadInt(e, "targets")),
			attribute.Int("loom.warnings", payloadInt(e, "warnings")),
		)

		if payloadBool(e, "success") {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, "build finished with failures")
		}

		span.End(trace.WithTimestamp(e.Time))
	}
}

// closeOpenTarget ends the run's open target span, if any.
func (h *TracingHandler) closeOpenTarget(runID string, at time.Time) {
	h.mu.Lock()
	span, ok := h.targetSpans[runID]
	failed := h.targetFailed[runID]
	if ok {
		delete(h.targetSpans, runID)
		delete(h.targetFailed, runID)
	}
	h.mu.Unlock()

	if ok {
		if failed {
			span.SetStatus(codes.Error, "schema validation failed")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End(trace.WithTimestamp(at))
	}
}

// openTarget returns the run's currently open target span.
func (h *TracingHandler) openTarget(runID string) (trace.Span, bool) {
	h.mu.RLock()
	span, ok := h.targetSpans[runID]
	h.mu.RUnlock()
	return span, ok
}

// ActiveTargetSpanContext returns the SpanContext for the open target span
// of the given run. Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveTargetSpanContext(runID string) trace.SpanContext {
	span, ok := h.openTarget(runID)
	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

// ActiveRunSpanContext returns the SpanContext for the active run span
// identified by runID. Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveRunSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.runSpans[runID]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

func payloadString(e pipeline.Event, key string) string {
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadInt(e pipeline.Event, key string) int {
	if v, ok := e.Payload[key].(int); ok {
		return v
	}
	return 0
}

func payloadBool(e pipeline.Event, key string) bool {
	v, ok := e.Payload[key].(bool)
	return ok && v
}
