package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/intervoxa/internal/evaluator"
)

// ErrAllBackendsFailed is returned when every backend in a [Chain] failed or
// had an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all evaluation backends failed")

var _ evaluator.Completer = (*Chain)(nil)

type chainEntry struct {
	name    string
	backend evaluator.Completer
	breaker *Breaker
}

// Chain is an evaluator.Completer that tries backends in registration order,
// each behind its own circuit breaker. A backend whose breaker is open is
// skipped without being called.
type Chain struct {
	entries []chainEntry
	log     *slog.Logger
}

// NewChain creates an empty Chain. Register backends with Add before use.
func NewChain(log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{log: log}
}

// Add appends a backend. cfg.Name defaults to name.
func (c *Chain) Add(name string, backend evaluator.Completer, cfg BreakerConfig) {
	if cfg.Name == "" {
		cfg.Name = name
	}
	if cfg.Log == nil {
		cfg.Log = c.log
	}
	c.entries = append(c.entries, chainEntry{
		name:    name,
		backend: backend,
		breaker: NewBreaker(cfg),
	})
}

// States reports the current breaker state per backend name. Used by the
// readiness probe to flag a fully tripped chain.
func (c *Chain) States() map[string]BreakerState {
	states := make(map[string]BreakerState, len(c.entries))
	for _, e := range c.entries {
		states[e.name] = e.breaker.State()
	}
	return states
}

// Complete implements evaluator.Completer. The first backend to succeed wins;
// a failure counts against that backend's breaker and the next backend is
// tried. Once the caller's context is done, no further backends are tried.
func (c *Chain) Complete(ctx context.Context, system, user string) (string, error) {
	if len(c.entries) == 0 {
		return "", errors.New("resilience: no evaluation backends registered")
	}

	var errs []error
	for _, e := range c.entries {
		var out string
		err := e.breaker.Do(func() error {
			var callErr error
			out, callErr = e.backend.Complete(ctx, system, user)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrOpen) {
			c.log.Debug("skipping backend with open breaker", "backend", e.name)
		} else {
			c.log.Warn("evaluation backend failed", "backend", e.name, "error", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))

		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(ErrAllBackendsFailed, errors.Join(errs...))
}
