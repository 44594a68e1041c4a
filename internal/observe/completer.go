package observe

import (
	"context"
	"time"

	"github.com/MrWong99/intervoxa/internal/evaluator"
)

// measuredCompleter records latency and status for every evaluation backend
// call.
type measuredCompleter struct {
	next    evaluator.Completer
	metrics *Metrics
	backend string
}

var _ evaluator.Completer = (*measuredCompleter)(nil)

// MeasureCompleter wraps an evaluation backend so each Complete call is
// recorded to [Metrics.EvaluationDuration] and [Metrics.EvaluatorRequests]
// under the given backend label.
func MeasureCompleter(next evaluator.Completer, m *Metrics, backend string) evaluator.Completer {
	return &measuredCompleter{next: next, metrics: m, backend: backend}
}

func (c *measuredCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	out, err := c.next.Complete(ctx, system, user)
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordEvaluation(ctx, c.backend, status, time.Since(start))
	return out, err
}
