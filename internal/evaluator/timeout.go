package evaluator

import (
	"context"
	"time"
)

type timeoutCompleter struct {
	next Completer
	d    time.Duration
}

// WithTimeout bounds every completion call to d. A timed-out call surfaces
// as a regular completion error, so callers treat it like any backend
// failure. A non-positive d returns next unchanged.
func WithTimeout(next Completer, d time.Duration) Completer {
	if d <= 0 {
		return next
	}
	return &timeoutCompleter{next: next, d: d}
}

func (t *timeoutCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Complete(ctx, system, user)
}
