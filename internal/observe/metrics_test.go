package observe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collect gathers all exported metrics from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	return rm
}

// findMetric returns the metric with the given name, or fails the test.
func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %q not found", name)
	return metricdata.Metrics{}
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func TestMetrics_RecordEvaluation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEvaluation(ctx, "openai", "ok", 800*time.Millisecond)
	m.RecordEvaluation(ctx, "openai", "error", 2*time.Second)

	rm := collect(t, reader)
	requests := findMetric(t, rm, "intervoxa.evaluator.requests")
	sum, ok := requests.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", requests.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Fatalf("evaluator requests = %d, want 2", total)
	}
	findMetric(t, rm, "intervoxa.evaluation.duration")
}

func TestMetrics_SegmentsAndTransitions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSegment(ctx, "final")
	m.RecordSegment(ctx, "partial")
	m.RecordTransition(ctx, "active")
	m.ActiveSessions.Add(ctx, 1)
	m.ConnectedClients.Add(ctx, 1)
	m.ConnectedClients.Add(ctx, -1)

	rm := collect(t, reader)
	segs := findMetric(t, rm, "intervoxa.transcript.segments")
	sum := segs.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Fatalf("segment kinds = %d, want 2", len(sum.DataPoints))
	}
	clients := findMetric(t, rm, "intervoxa.connected_clients")
	csum := clients.Data.(metricdata.Sum[int64])
	if len(csum.DataPoints) != 1 || csum.DataPoints[0].Value != 0 {
		t.Fatalf("connected clients = %+v, want single zero point", csum.DataPoints)
	}
}

func TestMeasureCompleter(t *testing.T) {
	m, reader := newTestMetrics(t)

	calls := 0
	backend := completerFunc(func(context.Context, string, string) (string, error) {
		calls++
		if calls == 1 {
			return "ok", nil
		}
		return "", errors.New("down")
	})
	wrapped := MeasureCompleter(backend, m, "test")

	if _, err := wrapped.Complete(context.Background(), "s", "u"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := wrapped.Complete(context.Background(), "s", "u"); err == nil {
		t.Fatal("second call should propagate the backend error")
	}

	rm := collect(t, reader)
	requests := findMetric(t, rm, "intervoxa.evaluator.requests")
	sum := requests.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Fatalf("status series = %d, want 2 (ok and error)", len(sum.DataPoints))
	}
}

type completerFunc func(ctx context.Context, system, user string) (string, error)

func (f completerFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

func TestMiddleware_RecordsAndPropagates(t *testing.T) {
	m, reader := newTestMetrics(t)

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}

	rm := collect(t, reader)
	findMetric(t, rm, "intervoxa.http.request.duration")
}
