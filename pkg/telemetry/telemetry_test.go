package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/jllopis/qlcrew/pkg/core"
	qerrors "github.com/jllopis/qlcrew/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "none", cfg: Config{Exporter: ExporterNone}},
		{name: "stdout", cfg: Config{Exporter: ExporterStdout, Writer: io.Discard}},
		{name: "otlp without endpoint", cfg: Config{Exporter: ExporterOTLP}, wantErr: true},
		{name: "unknown", cfg: Config{Exporter: "zipkin"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := InitWithConfig("qlcrew-test", "v0.0.1", tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("InitWithConfig failed: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown failed: %v", err)
			}
		})
	}
}

func TestLoggerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "step")
	logger.InfoContext(ctx, "worker acted", "worker", "PlanningAgent")
	span.End()

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if record["trace_id"] != span.SpanContext().TraceID().String() {
		t.Fatalf("expected trace id, got %v", record["trace_id"])
	}
	if record["span_id"] == nil {
		t.Fatalf("expected span id")
	}
}

func TestLoggerAddsRunAndStep(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")

	ctx := core.WithStepIndex(core.WithRunID(context.Background(), "run-7"), 2)
	logger.InfoContext(ctx, "worker acted")
	logger.InfoContext(ctx, "explicit", "run_id", "run-override")
	logger.DebugContext(ctx, "filtered out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d: %s", len(lines), buf.String())
	}
	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if first["run_id"] != "run-7" || first["step"] != float64(2) {
		t.Fatalf("unexpected record %v", first)
	}
	if _, ok := first["trace_id"]; ok {
		t.Fatalf("trace id without span: %v", first)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if second["run_id"] != "run-override" {
		t.Fatalf("explicit run_id replaced: %v", second)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("WARNING").String() != "WARN" || ParseLevel("bogus").String() != "INFO" {
		t.Fatalf("unexpected level mapping")
	}
	var buf bytes.Buffer
	NewLogger(&buf, "error", "text").Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at error level")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdefgh", 6); got != "abc..." {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := Truncate("abc", 6); got != "abc" {
		t.Fatalf("short strings are unchanged")
	}
}

func TestPipelineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewPipelineMetricsWithMeter(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewPipelineMetricsWithMeter: %v", err)
	}

	ctx := context.Background()
	m.RecordStep(ctx, "PlanningAgent", false, 12)
	m.RecordStep(ctx, "decode_bqrs_Agent", true, 3)
	m.RecordInvocation(ctx, "decode_bqrs", false)
	m.RecordFailure(ctx, qerrors.New(qerrors.CodeToolFailure, "bad", nil), "worker")
	m.RecordFailure(ctx, errors.New("plain"), "worker")
	m.RecordFailure(ctx, nil, "worker")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if data, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[metric.Name] += dp.Value
				}
			}
		}
	}
	if sums["qlcrew.steps.total"] != 2 || sums["qlcrew.invocations.total"] != 1 || sums["qlcrew.failures.total"] != 2 {
		t.Fatalf("unexpected sums %v", sums)
	}

	var nilMetrics *PipelineMetrics
	nilMetrics.RecordStep(ctx, "x", false, 1)
	nilMetrics.RecordFailure(ctx, errors.New("x"), "y")
}

func TestRunAttributes(t *testing.T) {
	attrs := RunAttributes("run-1", strings.Repeat("x", 400))
	for _, kv := range attrs {
		if kv.Key == attribute.Key(AttrRunTask) && len(kv.Value.AsString()) != maxTaskAttrLen {
			t.Fatalf("task attribute must be truncated")
		}
	}
}
