package transcript

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/intervoxa/pkg/provider/stt"
	sttmock "github.com/MrWong99/intervoxa/pkg/provider/stt/mock"
	"github.com/MrWong99/intervoxa/pkg/types"
)

// collector gathers recorder callbacks for assertions.
type collector struct {
	mu       sync.Mutex
	segments []Segment
	activity []types.ActivityEvent
	fatals   []error
}

func (c *collector) callbacks() Callbacks {
	return Callbacks{
		OnSegment: func(s Segment) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.segments = append(c.segments, s)
		},
		OnActivity: func(ev types.ActivityEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.activity = append(c.activity, ev)
		},
		OnFatalError: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.fatals = append(c.fatals, err)
		},
	}
}

func (c *collector) segmentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.segments)
}

func (c *collector) lastSegment() Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.segments) == 0 {
		return Segment{}
	}
	return c.segments[len(c.segments)-1]
}

func (c *collector) fatalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fatals)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRecorder_DeliversSegments(t *testing.T) {
	sess := sttmock.NewSession()
	p := &sttmock.Provider{Sessions: []stt.SessionHandle{sess}}
	r := NewRecorder(Config{Provider: p})
	var c collector

	if err := r.Start(context.Background(), c.callbacks()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	sess.EmitPartial("hel", 0.3)
	sess.EmitFinal("hello world", 0.95)

	waitFor(t, func() bool { return c.segmentCount() >= 2 })

	last := c.lastSegment()
	if last.FinalText != "hello world" {
		t.Errorf("FinalText = %q, want %q", last.FinalText, "hello world")
	}
	if last.CumulativeText != "hello world" {
		t.Errorf("CumulativeText = %q, want %q", last.CumulativeText, "hello world")
	}
	if got := r.CumulativeText(); got != "hello world" {
		t.Errorf("CumulativeText() = %q, want %q", got, "hello world")
	}
}

func TestRecorder_RedeliveredFinalIsIgnored(t *testing.T) {
	sess := sttmock.NewSession()
	p := &sttmock.Provider{Sessions: []stt.SessionHandle{sess}}
	r := NewRecorder(Config{Provider: p})
	var c collector

	if err := r.Start(context.Background(), c.callbacks()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	sess.EmitFinal("the same answer", 0.9)
	waitFor(t, func() bool { return c.segmentCount() == 1 })

	// At-least-once delivery: the backend re-emits the identical final.
	sess.EmitFinal("the same answer", 0.9)
	sess.EmitFinal("and more", 0.9)
	waitFor(t, func() bool { return c.segmentCount() == 2 })

	if got := r.CumulativeText(); got != "the same answer and more" {
		t.Errorf("CumulativeText = %q, duplicate final must not change it", got)
	}
}

func TestRecorder_StopIsIdempotent(t *testing.T) {
	r := NewRecorder(Config{Provider: &sttmock.Provider{}})

	// Never started.
	r.Stop()
	r.Stop()

	if err := r.Start(context.Background(), Callbacks{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()
	r.Stop()

	if r.Recording() {
		t.Error("Recording() = true after Stop")
	}
}

func TestRecorder_NoCallbacksAfterStop(t *testing.T) {
	sess := sttmock.NewSession()
	p := &sttmock.Provider{Sessions: []stt.SessionHandle{sess}}
	r := NewRecorder(Config{Provider: p})
	var c collector

	if err := r.Start(context.Background(), c.callbacks()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess.EmitFinal("before stop", 0.9)
	waitFor(t, func() bool { return c.segmentCount() == 1 })

	r.Stop()
	before := c.segmentCount()

	// The session's channels are closed by Stop, but a stale consume loop must
	// not deliver anything even if it races: give it time to misbehave.
	time.Sleep(50 * time.Millisecond)
	if got := c.segmentCount(); got != before {
		t.Errorf("segments after Stop = %d, want %d", got, before)
	}
}

func TestRecorder_TransparentRestartKeepsCumulativeText(t *testing.T) {
	first := sttmock.NewSession()
	second := sttmock.NewSession()
	p := &sttmock.Provider{Sessions: []stt.SessionHandle{first, second}}
	var restarts atomic.Int32
	r := NewRecorder(Config{
		Provider:  p,
		Backoff:   time.Millisecond,
		OnRestart: func(int) { restarts.Add(1) },
	})
	var c collector

	if err := r.Start(context.Background(), c.callbacks()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	first.EmitFinal("first part", 0.9)
	waitFor(t, func() bool { return c.segmentCount() == 1 })

	// Simulate a spontaneous backend termination.
	_ = first.Close()
	waitFor(t, func() bool { return p.StartCount() == 2 })

	second.EmitFinal("second part", 0.9)
	waitFor(t, func() bool { return c.segmentCount() == 2 })

	if got := c.lastSegment().CumulativeText; got != "first part second part" {
		t.Errorf("CumulativeText = %q, want continuation across restart", got)
	}
	if c.fatalCount() != 0 {
		t.Errorf("fatal errors = %d, want 0", c.fatalCount())
	}
	if got := restarts.Load(); got != 1 {
		t.Errorf("restart hook fired %d times, want 1", got)
	}
}

func TestRecorder_RestartBudgetExhaustedReportsFatalOnce(t *testing.T) {
	sess := sttmock.NewSession()
	p := &sttmock.Provider{
		Sessions: []stt.SessionHandle{sess},
		StartStreamErrs: map[int]error{
			1: errors.New("backend gone"),
			2: errors.New("backend gone"),
		},
	}
	r := NewRecorder(Config{Provider: p, MaxRestarts: 2, Backoff: time.Millisecond})
	var c collector

	if err := r.Start(context.Background(), c.callbacks()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_ = sess.Close()
	waitFor(t, func() bool { return c.fatalCount() == 1 })

	if r.Recording() {
		t.Error("Recording() = true after fatal error")
	}
}

func TestRecorder_PermissionRevokedMidSessionIsFatal(t *testing.T) {
	sess := sttmock.NewSession()
	p := &sttmock.Provider{
		Sessions: []stt.SessionHandle{sess},
		StartStreamErrs: map[int]error{
			1: stt.ErrPermissionDenied,
		},
	}
	r := NewRecorder(Config{Provider: p, MaxRestarts: 5, Backoff: time.Millisecond})
	var c collector

	if err := r.Start(context.Background(), c.callbacks()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_ = sess.Close()
	waitFor(t, func() bool { return c.fatalCount() == 1 })

	c.mu.Lock()
	fatal := c.fatals[0]
	c.mu.Unlock()
	if !errors.Is(fatal, stt.ErrPermissionDenied) {
		t.Errorf("fatal = %v, want ErrPermissionDenied", fatal)
	}
	// Permission errors must not burn the whole restart budget.
	if p.StartCount() != 2 {
		t.Errorf("StartStream calls = %d, want 2 (initial + one refused restart)", p.StartCount())
	}
}

func TestRecorder_StartErrorMapping(t *testing.T) {
	p := &sttmock.Provider{StartStreamErr: stt.ErrDeviceUnavailable}
	r := NewRecorder(Config{Provider: p})

	err := r.Start(context.Background(), Callbacks{})
	if !errors.Is(err, stt.ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	if r.Recording() {
		t.Error("Recording() = true after failed Start")
	}
}

func TestRecorder_NewStartInvalidatesPriorHandle(t *testing.T) {
	first := sttmock.NewSession()
	second := sttmock.NewSession()
	p := &sttmock.Provider{Sessions: []stt.SessionHandle{first, second}}
	r := NewRecorder(Config{Provider: p})
	var c1, c2 collector

	if err := r.Start(context.Background(), c1.callbacks()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := r.Start(context.Background(), c2.callbacks()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	defer r.Stop()

	if first.CloseCount() == 0 {
		t.Error("first handle was not closed by the second Start")
	}

	second.EmitFinal("only for the second recording", 0.9)
	waitFor(t, func() bool { return c2.segmentCount() == 1 })

	if c1.segmentCount() != 0 {
		t.Errorf("first recording received %d segments after invalidation", c1.segmentCount())
	}
}

func TestRecorder_ActivityEventsForwarded(t *testing.T) {
	sess := sttmock.NewSession()
	p := &sttmock.Provider{Sessions: []stt.SessionHandle{sess}}
	r := NewRecorder(Config{Provider: p})
	var c collector

	if err := r.Start(context.Background(), c.callbacks()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	now := time.Now()
	sess.EmitActivity(false, now)
	sess.EmitActivity(true, now.Add(time.Second))

	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.activity) == 2
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activity[0].Active || !c.activity[1].Active {
		t.Errorf("activity order = %+v, want silence then speech", c.activity)
	}
}

// ctxBoundHandle mimics a backend whose Close waits for a read loop that only
// unblocks once the stream context is cancelled.
type ctxBoundHandle struct {
	ctx      context.Context
	partials chan types.Transcript
	finals   chan types.Transcript
	activity chan types.ActivityEvent
	once     sync.Once
}

func newCtxBoundHandle() *ctxBoundHandle {
	return &ctxBoundHandle{
		partials: make(chan types.Transcript),
		finals:   make(chan types.Transcript),
		activity: make(chan types.ActivityEvent),
	}
}

func (h *ctxBoundHandle) SendAudio([]byte) error { return nil }
func (h *ctxBoundHandle) Partials() <-chan types.Transcript { return h.partials }
func (h *ctxBoundHandle) Finals() <-chan types.Transcript { return h.finals }
func (h *ctxBoundHandle) Activity() <-chan types.ActivityEvent { return h.activity }

func (h *ctxBoundHandle) Close() error {
	<-h.ctx.Done()
	h.once.Do(func() {
		close(h.partials)
		close(h.finals)
		close(h.activity)
	})
	return nil
}

// ctxBoundProvider hands out a single ctxBoundHandle, capturing the stream
// context for it.
type ctxBoundProvider struct {
	handle *ctxBoundHandle
}

func (p *ctxBoundProvider) StartStream(ctx context.Context, _ stt.StreamConfig) (stt.SessionHandle, error) {
	p.handle.ctx = ctx
	return p.handle, nil
}

func TestRecorder_StopReturnsWhenCloseWaitsOnContext(t *testing.T) {
	handle := newCtxBoundHandle()
	r := NewRecorder(Config{Provider: &ctxBoundProvider{handle: handle}})
	var c collector

	if err := r.Start(context.Background(), c.callbacks()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung on a handle whose Close waits for cancellation")
	}
}
