// Package observe provides application-wide observability primitives for
// ScribeCat: OpenTelemetry metrics, distributed tracing, request-scoped
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. Tests should build their own [Metrics] with
// [NewMetrics] and a manual reader instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/scribecat"

// Annotation request outcomes.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusStale    = "stale"
	StatusCanceled = "canceled"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// LLMDuration tracks model call latency. Attribute: kind.
	LLMDuration metric.Float64Histogram

	// AnnotationDuration tracks the orchestrator's view of a context refresh
	// or note generation, including transport. Attributes: kind, status.
	AnnotationDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time.
	HTTPRequestDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// AnnotationRequests counts orchestrator requests. Attributes: kind, status.
	AnnotationRequests metric.Int64Counter

	// NotesGenerated counts nugget notes applied to a live session.
	NotesGenerated metric.Int64Counter

	// ToolCalls counts MCP tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// SessionsPurged counts sessions removed by the retention janitor.
	SessionsPurged metric.Int64Counter

	// ActiveRecordings tracks live recordings in progress.
	ActiveRecordings metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds. Model calls for notes
// typically land between 0.5 and 5 seconds; full notes can take much longer.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.LLMDuration, err = histogram("scribecat.llm.duration",
		"Latency of language model calls."); err != nil {
		return nil, err
	}
	if met.AnnotationDuration, err = histogram("scribecat.annotation.duration",
		"Latency of live context refreshes and note generations."); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = histogram("scribecat.tool_execution.duration",
		"Latency of MCP tool execution."); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("scribecat.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("scribecat.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("scribecat.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.AnnotationRequests, err = m.Int64Counter("scribecat.annotation.requests",
		metric.WithDescription("Live annotation requests by kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.NotesGenerated, err = m.Int64Counter("scribecat.notes.generated",
		metric.WithDescription("Nugget notes applied to live sessions."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("scribecat.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.SessionsPurged, err = m.Int64Counter("scribecat.sessions.purged",
		metric.WithDescription("Soft-deleted sessions permanently removed by retention."),
	); err != nil {
		return nil, err
	}

	if met.ActiveRecordings, err = m.Int64UpDownCounter("scribecat.active_recordings",
		metric.WithDescription("Number of live recordings in progress."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Call it after [InitProvider] so the
// instruments bind to the Prometheus-backed provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest increments the provider request counter.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordLLMCall records the latency of one model call of the given kind
// ("context", "notes", "full_notes", "chat").
func (m *Metrics) RecordLLMCall(ctx context.Context, kind string, d time.Duration) {
	m.LLMDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordAnnotation records one orchestrator request outcome and its latency.
func (m *Metrics) RecordAnnotation(ctx context.Context, kind, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	m.AnnotationRequests.Add(ctx, 1, attrs)
	m.AnnotationDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordNotes adds n to the generated notes counter.
func (m *Metrics) RecordNotes(ctx context.Context, n int) {
	if n > 0 {
		m.NotesGenerated.Add(ctx, int64(n))
	}
}

// RecordToolCall increments the tool call counter and records its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolExecutionDuration.Record(ctx, d.Seconds(), attrs)
}
