// Package observe provides application-wide observability primitives for
// Intervoxa: OpenTelemetry metrics, tracing helpers, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Intervoxa metrics.
const meterName = "github.com/MrWong99/intervoxa"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// EvaluationDuration tracks external answer-evaluation latency. Use with
	// attributes: attribute.String("backend", ...), attribute.String("status", ...)
	EvaluationDuration metric.Float64Histogram

	// EvaluatorRequests counts evaluation backend calls. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	EvaluatorRequests metric.Int64Counter

	// TranscriptSegments counts recognized transcript segments. Use with
	// attribute: attribute.String("kind", "partial"|"final")
	TranscriptSegments metric.Int64Counter

	// AnalysisSnapshots counts full snapshot recomputations.
	AnalysisSnapshots metric.Int64Counter

	// StateTransitions counts session lifecycle transitions. Use with
	// attribute: attribute.String("state", ...)
	StateTransitions metric.Int64Counter

	// ActiveSessions tracks interview attempts currently in progress.
	ActiveSessions metric.Int64UpDownCounter

	// RecorderRestarts counts transparent speech-stream restarts.
	RecorderRestarts metric.Int64Counter

	// ConnectedClients tracks live gateway subscribers.
	ConnectedClients metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM-backed evaluation calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.EvaluationDuration, err = m.Float64Histogram("intervoxa.evaluation.duration",
		metric.WithDescription("Latency of external answer evaluation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EvaluatorRequests, err = m.Int64Counter("intervoxa.evaluator.requests",
		metric.WithDescription("Total evaluation backend requests by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptSegments, err = m.Int64Counter("intervoxa.transcript.segments",
		metric.WithDescription("Total recognized transcript segments by kind."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisSnapshots, err = m.Int64Counter("intervoxa.analysis.snapshots",
		metric.WithDescription("Total communication-analysis snapshot recomputations."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("intervoxa.session.transitions",
		metric.WithDescription("Total session lifecycle transitions by resulting state."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("intervoxa.active_sessions",
		metric.WithDescription("Number of interview attempts currently in progress."),
	); err != nil {
		return nil, err
	}
	if met.RecorderRestarts, err = m.Int64Counter("intervoxa.recorder.restarts",
		metric.WithDescription("Total transparent speech-stream restarts."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedClients, err = m.Int64UpDownCounter("intervoxa.connected_clients",
		metric.WithDescription("Number of live gateway subscribers."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("intervoxa.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordEvaluation records one evaluation backend call with its latency.
func (m *Metrics) RecordEvaluation(ctx context.Context, backend, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	)
	m.EvaluatorRequests.Add(ctx, 1, attrs)
	m.EvaluationDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordSegment records one recognized transcript segment.
func (m *Metrics) RecordSegment(ctx context.Context, kind string) {
	m.TranscriptSegments.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTransition records one session lifecycle transition.
func (m *Metrics) RecordTransition(ctx context.Context, state string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)))
}
