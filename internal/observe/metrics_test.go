package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"scribecat.llm.duration", m.LLMDuration},
		{"scribecat.annotation.duration", m.AnnotationDuration},
		{"scribecat.tool_execution.duration", m.ToolExecutionDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 0.8)
		tc.h.Record(ctx, 2.4)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

// sumFor returns the value of the data point whose attribute key equals value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "anthropic", "notes", StatusOK)
	m.RecordProviderRequest(ctx, "anthropic", "notes", StatusOK)
	m.RecordProviderRequest(ctx, "anthropic", "notes", StatusError)
	m.RecordProviderError(ctx, "anthropic", "notes")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "scribecat.provider.requests", "status", StatusOK); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumFor(t, rm, "scribecat.provider.errors", "provider", "anthropic"); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestRecordAnnotation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAnnotation(ctx, "context", StatusOK, 1200*time.Millisecond)
	m.RecordAnnotation(ctx, "notes", StatusStale, 300*time.Millisecond)
	m.RecordAnnotation(ctx, "notes", StatusStale, 300*time.Millisecond)
	m.RecordNotes(ctx, 3)
	m.RecordNotes(ctx, 0)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "scribecat.annotation.requests", "status", StatusStale); got != 2 {
		t.Errorf("stale = %d, want 2", got)
	}
	if got := sumFor(t, rm, "scribecat.notes.generated", "", ""); got != 3 {
		t.Errorf("notes = %d, want 3", got)
	}
	if findMetric(rm, "scribecat.annotation.duration") == nil {
		t.Error("annotation duration not recorded")
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "search_sessions", StatusOK, 20*time.Millisecond)
	m.RecordToolCall(ctx, "search_sessions", StatusError, 5*time.Millisecond)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "scribecat.tool.calls", "status", StatusOK); got != 1 {
		t.Errorf("ok tool calls = %d, want 1", got)
	}
}

func TestActiveRecordingsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRecordings.Add(ctx, 1)
	m.ActiveRecordings.Add(ctx, 1)
	m.ActiveRecordings.Add(ctx, -1)
	m.SessionsPurged.Add(ctx, 4)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "scribecat.active_recordings", "", ""); got != 1 {
		t.Errorf("active recordings = %d, want 1", got)
	}
	if got := sumFor(t, rm, "scribecat.sessions.purged", "", ""); got != 4 {
		t.Errorf("purged = %d, want 4", got)
	}
}
