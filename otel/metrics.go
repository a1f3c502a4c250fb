package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loomworks/loom/pipeline"
)

// MetricsHandler translates pipeline events into OpenTelemetry metrics.
// It records counters for written targets, generated and skipped tools and
// warning diagnostics, plus a histogram of build durations.
type MetricsHandler struct {
	builds        metric.Int64Counter
	buildDuration metric.Float64Histogram
	targetWrites  metric.Int64Counter
	targetIssues  metric.Int64Counter
	toolGens      metric.Int64Counter
	toolSkips     metric.Int64Counter
	warnings      metric.Int64Counter
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create instruments for recording pipeline metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	builds, err := meter.Int64Counter("loom.build.runs",
		metric.WithDescription("Number of finished build runs"),
	)
	if err != nil {
		return nil, err
	}

	buildDur, err := meter.Float64Histogram("loom.build.duration",
		metric.WithDescription("Duration of a build run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	targetWrites, err := meter.Int64Counter("loom.target.writes",
		metric.WithDescription("Number of platform documents written"),
	)
	if err != nil {
		return nil, err
	}

	targetIssues, err := meter.Int64Counter("loom.target.issues",
		metric.WithDescription("Number of schema validation issues found"),
	)
	if err != nil {
		return nil, err
	}

	toolGens, err := meter.Int64Counter("loom.tool.generations",
		metric.WithDescription("Number of tool adapters generated"),
	)
	if err != nil {
		return nil, err
	}

	toolSkips, err := meter.Int64Counter("loom.tool.skips",
		metric.WithDescription("Number of tools skipped during adapter generation"),
	)
	if err != nil {
		return nil, err
	}

	warnings, err := meter.Int64Counter("loom.warnings",
		metric.WithDescription("Number of warning diagnostics emitted"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		builds:        builds,
		buildDuration: buildDur,
		targetWrites:  targetWrites,
		targetIssues:  targetIssues,
		toolGens:      toolGens,
		toolSkips:     toolSkips,
		warnings:      warnings,
	}, nil
}

// Handle processes a pipeline event and records the appropriate metrics.
// It implements pipeline.EventHandler semantics.
func (h *MetricsHandler) Handle(e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventTargetWritten:
		h.handleTargetWritten(e)
	case pipeline.EventTargetValidated:
		h.handleTargetValidated(e)
	case pipeline.EventToolGenerated:
		h.handleToolGenerated(e)
	case pipeline.EventToolSkipped:
		h.handleToolSkipped(e)
	case pipeline.EventWarning:
		h.handleWarning(e)
	case pipeline.EventBuildFinished:
		h.handleBuildFinished(e)
	}
}

// handleTargetWritten increments the write counter for the target.
func (h *MetricsHandler) handleTargetWritten(e pipeline.Event) {
	h.targetWrites.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("target", e.Target),
	))
}

// handleTargetValidated records how many issues validation found.
func (h *MetricsHandler) handleTargetValidated(e pipeline.Event) {
	issues := payloadInt(e, "issues")
	if issues == 0 {
		return
	}
	h.targetIssues.Add(context.Background(), int64(issues), metric.WithAttributes(
		attribute.String("target", e.Target),
	))
}

// handleToolGenerated increments the generation counter.
func (h *MetricsHandler) handleToolGenerated(e pipeline.Event) {
	h.toolGens.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tool", payloadString(e, "tool")),
	))
}

// handleToolSkipped increments the skip counter with the skip reason.
func (h *MetricsHandler) handleToolSkipped(e pipeline.Event) {
	h.toolSkips.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tool", payloadString(e, "tool")),
		attribute.String("reason", payloadString(e, "reason")),
	))
}

// handleWarning increments the warning counter with the diagnostic code.
func (h *MetricsHandler) handleWarning(e pipeline.Event) {
	h.warnings.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("code", payloadString(e, "code")),
	))
}

// handleBuildFinished counts the run and records its duration.
func (h *MetricsHandler) handleBuildFinished(e pipeline.Event) {
	ctx := context.Background()
	status := "failed"
	if payloadBool(e, "success") {
		status = "ok"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	h.builds.Add(ctx, 1, attrs)
	h.buildDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
}
