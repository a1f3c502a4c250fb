package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	loomotel "github.com/loomworks/loom/otel"
	"github.com/loomworks/loom/pipeline"
)

// buildEventHandler assembles the pipeline event handler chain. Without an
// OTLP endpoint the chain is only the verbose event log, or nothing at all.
func buildEventHandler(cmd *cobra.Command, logger *slog.Logger) (pipeline.EventHandler, func(), error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	endpoint := resolveOTLPEndpoint(cmd)

	if endpoint == "" {
		if !verbose {
			return nil, func() {}, nil
		}
		return eventLogger(logger), func() {}, nil
	}

	tracing, metrics, shutdown, err := setupTelemetry(cmd.Context(), endpoint)
	if err != nil {
		return nil, func() {}, exitError(exitRuntime, "initializing telemetry: %v", err)
	}

	handlers := []pipeline.EventHandler{tracing.Handle, metrics.Handle}
	if verbose {
		// Tracing runs first in the chain so the log lines carry trace IDs.
		handlers = append(handlers, loomotel.EnrichHandler(eventLogger(logger), tracing))
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "err", err)
		}
	}
	return pipeline.MultiEventHandler(handlers...), cleanup, nil
}

// setupTelemetry installs a tracer provider exporting OTLP over HTTP and
// returns the tracing and metrics handlers plus the provider shutdown.
func setupTelemetry(ctx context.Context, endpoint string) (*loomotel.TracingHandler, *loomotel.MetricsHandler, func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otelapi.SetTracerProvider(tp)

	tracing := loomotel.NewTracingHandler(tp.Tracer("loom/pipeline"))
	metrics, err := loomotel.NewMetricsHandler(otelapi.GetMeterProvider().Meter("loom/pipeline"))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, nil, fmt.Errorf("creating metric instruments: %w", err)
	}
	return tracing, metrics, tp.Shutdown, nil
}

// eventLogger logs every pipeline event at debug level.
func eventLogger(logger *slog.Logger) pipeline.EventHandler {
	return func(e pipeline.Event) {
		attrs := []any{"run_id", e.RunID, "seq", e.Seq}
		if e.Target != "" {
			attrs = append(attrs, "target", e.Target)
		}
		if e.TraceID != "" {
			attrs = append(attrs, "trace_id", e.TraceID, "span_id", e.SpanID)
		}
		logger.Debug(e.Kind.String(), attrs...)
	}
}
