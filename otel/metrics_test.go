package otel_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	loomotel "github.com/loomworks/loom/otel"
	"github.com/loomworks/loom/pipeline"
)

// newTestMeter returns a meter backed by a manual reader for collecting metrics in tests.
func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

// collectMetrics reads all metrics from the reader.
func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

// findMetric searches for a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetricsHandler_TargetWrittenIncrementsCounter(t *testing.T) {
	reader, mp := newTestMeter()
	meter := mp.Meter("test")

	h, err := loomotel.NewMetricsHandler(meter)
	if err != nil {
		t.Fatalf("NewMetricsHandler: %v", err)
	}

	now := time.Now()

	h.Handle(pipeline.Event{
		Kind:    pipeline.EventTargetWritten,
		RunID:   "run-1",
		Target:  "opencode",
		Time:    now,
		Payload: map[string]any{"path": "/out/opencode/opencode.json"},
	})
	h.Handle(pipeline.Event{
		Kind:    pipeline.EventTargetWritten,
		RunID:   "run-1",
		Target:  "continue",
		Time:    now.Add(10 * time.Millisecond),
		Payload: map[string]any{"path": "/out/continue/config.yaml"},
	})

	rm := collectMetrics(t, reader)

	writes := findMetric(rm, "loom.target.writes")
	if writes == nil {
		t.Fatal("loom.target.writes metric not found")
	}
	sumData, ok := writes.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64] data, got %T", writes.Data)
	}
	// One data point per target.
	if len(sumData.DataPoints) != 2 {
		t.Fatalf("expected 2 data points, got %d", len(sumData.DataPoints))
	}
	for _, dp := range sumData.DataPoints {
		if dp.Value != 1 {
			t.Errorf("expected counter value 1, got %d", dp.Value)
		}
	}
}

func TestMetricsHandler_BuildFinishedRecordsDuration(t *testing.T) {
	reader, mp := newTestMeter()
	meter := mp.Meter("test")

	h, err := loomotel.NewMetricsHandler(meter)
	if err != nil {
		t.Fatalf("NewMetricsHandler: %v", err)
	}

	h.Handle(pipeline.Event{
		Kind:    pipeline.EventBuildFinished,
		RunID:   "run-1",
		Time:    time.Now(),
		Elapsed: 2 * time.Second,
		Payload: map[string]any{"success": true, "targets": 3, "warnings": 1},
	})

	rm := collectMetrics(t, reader)

	runs := findMetric(rm, "loom.build.runs")
	if runs == nil {
		t.Fatal("loom.build.runs metric not found")
	}
	sumData, ok := runs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64] data, got %T", runs.Data)
	}
	if len(sumData.DataPoints) != 1 || sumData.DataPoints[0].Value != 1 {
		t.Fatalf("unexpected run counter data: %+v", sumData.DataPoints)
	}

	statusFound := false
	for _, attr := range sumData.DataPoints[0].Attributes.ToSlice() {
		if string(attr.Key) == "status" && attr.Value.AsString() == "ok" {
			statusFound = true
		}
	}
	if !statusFound {
		t.Error("expected status=ok attribute on run counter")
	}

	dur := findMetric(rm, "loom.build.duration")
	if dur == nil {
		t.Fatal("loom.build.duration metric not found")
	}
	histData, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64] data, got %T", dur.Data)
	}
	if len(histData.DataPoints) != 1 {
		t.Fatalf("expected 1 histogram data point, got %d", len(histData.DataPoints))
	}
	dp := histData.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("expected histogram count 1, got %d", dp.Count)
	}
	if dp.Sum != 2.0 {
		t.Errorf("expected histogram sum 2.0 (seconds), got %f", dp.Sum)
	}
}

func TestMetricsHandler_FailedBuildCountsAsFailed(t *testing.T) {
	reader, mp := newTestMeter()
	meter := mp.Meter("test")

	h, err := loomotel.NewMetricsHandler(meter)
	if err != nil {
		t.Fatalf("NewMetricsHandler: %v", err)
	}

	h.Handle(pipeline.Event{
		Kind:    pipeline.EventBuildFinished,
		RunID:   "run-1",
		Time:    time.Now(),
		Elapsed: time.Second,
		Payload: map[string]any{"success": false},
	})

	rm := collectMetrics(t, reader)
	runs := findMetric(rm, "loom.build.runs")
	if runs == nil {
		t.Fatal("loom.build.runs metric not found")
	}
	sumData := runs.Data.(metricdata.Sum[int64])

	statusFound := false
	for _, attr := range sumData.DataPoints[0].Attributes.ToSlice() {
		if string(attr.Key) == "status" && attr.Value.AsString() == "failed" {
			statusFound = true
		}
	}
	if !statusFound {
		t.Error("expected status=failed attribute on run counter")
	}
}

func TestMetricsHandler_ToolAndWarningCounters(t *testing.T) {
	reader, mp := newTestMeter()
	meter := mp.Meter("test")

	h, err := loomotel.NewMetricsHandler(meter)
	if err != nil {
		t.Fatalf("NewMetricsHandler: %v", err)
	}

	now := time.Now()

	h.Handle(pipeline.Event{
		Kind:    pipeline.EventToolGenerated,
		RunID:   "run-1",
		Target:  "opencode",
		Time:    now,
		Payload: map[string]any{"tool": "calculator", "artifacts": 2},
	})
	h.Handle(pipeline.Event{
		Kind:    pipeline.EventToolSkipped,
		RunID:   "run-1",
		Target:  "opencode",
		Time:    now,
		Payload: map[string]any{"tool": "broken", "reason": "signature extraction failed"},
	})
	h.Handle(pipeline.Event{
		Kind:    pipeline.EventWarning,
		RunID:   "run-1",
		Target:  "continue",
		Time:    now,
		Payload: map[string]any{"code": "ask_folded", "message": "m", "path": "p"},
	})
	h.Handle(pipeline.Event{
		Kind:    pipeline.EventWarning,
		RunID:   "run-1",
		Target:  "opencode",
		Time:    now,
		Payload: map[string]any{"code": "normalize_strip", "message": "m", "path": "p"},
	})

	rm := collectMetrics(t, reader)

	gens := findMetric(rm, "loom.tool.generations")
	if gens == nil {
		t.Fatal("loom.tool.generations metric not found")
	}
	if data := gens.Data.(metricdata.Sum[int64]); len(data.DataPoints) != 1 || data.DataPoints[0].Value != 1 {
		t.Errorf("unexpected generation data: %+v", data.DataPoints)
	}

	skips := findMetric(rm, "loom.tool.skips")
	if skips == nil {
		t.Fatal("loom.tool.skips metric not found")
	}
	skipData := skips.Data.(metricdata.Sum[int64])
	reasonFound := false
	for _, attr := range skipData.DataPoints[0].Attributes.ToSlice() {
		if string(attr.Key) == "reason" && attr.Value.AsString() == "signature extraction failed" {
			reasonFound = true
		}
	}
	if !reasonFound {
		t.Error("expected reason attribute on skip counter")
	}

	warns := findMetric(rm, "loom.warnings")
	if warns == nil {
		t.Fatal("loom.warnings metric not found")
	}
	// One data point per diagnostic code.
	if data := warns.Data.(metricdata.Sum[int64]); len(data.DataPoints) != 2 {
		t.Errorf("expected 2 warning data points, got %d", len(data.DataPoints))
	}
}

func TestMetricsHandler_ValidationIssues(t *testing.T) {
	reader, mp := newTestMeter()
	meter := mp.Meter("test")

	h, err := loomotel.NewMetricsHandler(meter)
	if err != nil {
		t.Fatalf("NewMetricsHandler: %v", err)
	}

	h.Handle(pipeline.Event{
		Kind:    pipeline.EventTargetValidated,
		RunID:   "run-1",
		Target:  "opencode",
		Time:    time.Now(),
		Payload: map[string]any{"issues": 3},
	})

	rm := collectMetrics(t, reader)
	issues := findMetric(rm, "loom.target.issues")
	if issues == nil {
		t.Fatal("loom.target.issues metric not found")
	}
	data := issues.Data.(metricdata.Sum[int64])
	if len(data.DataPoints) != 1 || data.DataPoints[0].Value != 3 {
		t.Errorf("unexpected issue data: %+v", data.DataPoints)
	}
}

func TestMetricsHandler_CleanValidationRecordsNothing(t *testing.T) {
	reader, mp := newTestMeter()
	meter := mp.Meter("test")

	h, err := loomotel.NewMetricsHandler(meter)
	if err != nil {
		t.Fatalf("NewMetricsHandler: %v", err)
	}

	h.Handle(pipeline.Event{
		Kind:    pipeline.EventTargetValidated,
		RunID:   "run-1",
		Target:  "opencode",
		Time:    time.Now(),
		Payload: map[string]any{"issues": 0},
	})
	h.Handle(pipeline.Event{
		Kind:    pipeline.EventBuildStarted,
		RunID:   "run-1",
		Time:    time.Now(),
		Payload: map[string]any{"workspace": "/w"},
	})

	rm := collectMetrics(t, reader)
	if m := findMetric(rm, "loom.target.issues"); m != nil {
		data := m.Data.(metricdata.Sum[int64])
		if len(data.DataPoints) != 0 {
			t.Errorf("expected no issue data points, got %+v", data.DataPoints)
		}
	}
}
