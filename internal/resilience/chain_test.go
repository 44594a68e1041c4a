package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// countingCompleter fails until the remaining budget is spent.
type countingCompleter struct {
	reply string
	err   error
	calls int
}

func (c *countingCompleter) Complete(context.Context, string, string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func TestChain_PrimaryWins(t *testing.T) {
	primary := &countingCompleter{reply: "primary"}
	fallback := &countingCompleter{reply: "fallback"}
	chain := NewChain(nil)
	chain.Add("primary", primary, BreakerConfig{})
	chain.Add("fallback", fallback, BreakerConfig{})

	out, err := chain.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "primary" {
		t.Fatalf("out = %q, want primary", out)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback reached although primary succeeded")
	}
}

func TestChain_FallsBackOnFailure(t *testing.T) {
	primary := &countingCompleter{err: errors.New("rate limited")}
	fallback := &countingCompleter{reply: "fallback"}
	chain := NewChain(nil)
	chain.Add("primary", primary, BreakerConfig{})
	chain.Add("fallback", fallback, BreakerConfig{})

	out, err := chain.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "fallback" {
		t.Fatalf("out = %q, want fallback", out)
	}
}

func TestChain_SkipsOpenBreaker(t *testing.T) {
	primary := &countingCompleter{err: errors.New("down")}
	fallback := &countingCompleter{reply: "fallback"}
	chain := NewChain(nil)
	chain.Add("primary", primary, BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	chain.Add("fallback", fallback, BreakerConfig{})

	ctx := context.Background()
	if _, err := chain.Complete(ctx, "sys", "user"); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	calls := primary.calls
	if _, err := chain.Complete(ctx, "sys", "user"); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if primary.calls != calls {
		t.Fatal("open-breaker backend was still called")
	}
}

func TestChain_AllFailed(t *testing.T) {
	chain := NewChain(nil)
	chain.Add("a", &countingCompleter{err: errors.New("down")}, BreakerConfig{})
	chain.Add("b", &countingCompleter{err: errors.New("also down")}, BreakerConfig{})

	_, err := chain.Complete(context.Background(), "sys", "user")
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("err = %v, want ErrAllBackendsFailed", err)
	}
}

func TestChain_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &countingCompleter{err: context.Canceled}
	next := &countingCompleter{reply: "never"}
	chain := NewChain(nil)
	chain.Add("slow", slow, BreakerConfig{})
	chain.Add("next", next, BreakerConfig{})

	cancel()
	if _, err := chain.Complete(ctx, "sys", "user"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if next.calls != 0 {
		t.Fatal("chain kept trying backends after context cancellation")
	}
}

func TestChain_NoBackends(t *testing.T) {
	chain := NewChain(nil)
	if _, err := chain.Complete(context.Background(), "sys", "user"); err == nil {
		t.Fatal("expected error for empty chain")
	}
}

func TestChain_States(t *testing.T) {
	chain := NewChain(nil)
	chain.Add("primary", &countingCompleter{err: errors.New("down")}, BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	chain.Add("fallback", &countingCompleter{reply: "ok"}, BreakerConfig{})

	if _, err := chain.Complete(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	states := chain.States()
	if states["primary"] != BreakerOpen {
		t.Errorf("primary state = %v, want open", states["primary"])
	}
	if states["fallback"] != BreakerClosed {
		t.Errorf("fallback state = %v, want closed", states["fallback"])
	}
}
