// Package transcript provides the Recorder, a restartable wrapper around an
// STT streaming session that delivers at-least-once speech segments while a
// caller requests transcription.
//
// Recognition backends can terminate spontaneously (network hiccup, backend
// timeout) without user action. The Recorder restarts the underlying stream
// transparently with exponential backoff and keeps appending to the same
// cumulative text, so consumers never observe a visible reset. Terminal errors
// (credentials revoked mid-session, restart budget exhausted) are propagated
// exactly once through the OnFatalError callback, after which the recorder is
// unusable until the next Start.
//
// Late callbacks from a stopped stream are a correctness hazard: a final
// segment may arrive fractionally after the caller decided to stop recording.
// The Recorder therefore tags every consume loop with a generation counter.
// Stop invalidates the current generation under lock and then waits for any
// in-flight callback to return, so once Stop returns, no further OnSegment or
// OnActivity call for that generation is ever delivered.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/intervoxa/pkg/provider/stt"
	"github.com/MrWong99/intervoxa/pkg/types"
)

// Default restart parameters.
const (
	defaultMaxRestarts = 5
	defaultBackoff     = 500 * time.Millisecond
	defaultMaxBackoff  = 10 * time.Second
)

// Segment is one recognition update delivered to OnSegment.
type Segment struct {
	// InterimText is the latest low-latency guess. It may be superseded by a
	// later segment before becoming final. Empty for final updates.
	InterimText string

	// FinalText is the newly committed text, never revised afterwards.
	// Empty for interim updates.
	FinalText string

	// CumulativeText is the concatenation of all final text so far, across
	// backend restarts.
	CumulativeText string
}

// Callbacks receive recorder events. Handlers must not call back into the
// Recorder; doing so can deadlock against Stop's dispatch barrier.
type Callbacks struct {
	// OnSegment is invoked for every recognition update.
	OnSegment func(Segment)

	// OnActivity is invoked on speech/silence transitions of the input.
	// Best-effort and possibly noisy; debounce before trusting.
	OnActivity func(types.ActivityEvent)

	// OnFatalError is invoked at most once per Start when the stream is
	// irrecoverably lost. The session itself is unaffected — the caller may
	// continue with typed-text answers.
	OnFatalError func(error)
}

// Config configures a Recorder.
type Config struct {
	// Provider is the STT backend used to open streams.
	Provider stt.Provider

	// Stream is the audio/recognition configuration passed to the provider.
	Stream stt.StreamConfig

	// MaxRestarts bounds transparent restart attempts per outage.
	// Defaults to 5 if zero.
	MaxRestarts int

	// Backoff is the initial delay between restart attempts. Doubles each
	// attempt up to MaxBackoff. Defaults to 500ms if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the restart delay. Defaults to 10s if zero.
	MaxBackoff time.Duration

	// OnRestart, if set, is invoked after each successful transparent restart
	// with the attempt number that succeeded. Called outside recorder locks.
	OnRestart func(attempt int)
}

// Recorder owns at most one live STT stream. Exported methods are safe for
// concurrent use.
type Recorder struct {
	provider    stt.Provider
	streamCfg   stt.StreamConfig
	maxRestarts int
	backoff     time.Duration
	maxBackoff  time.Duration
	onRestart   func(attempt int)

	mu        sync.Mutex
	gen       uint64
	recording bool
	handle    stt.SessionHandle
	cb        Callbacks
	finals    []string
	lastFinal string
	cancel    context.CancelFunc

	// cbMu serialises callback dispatch. Stop acquires it after invalidating
	// the generation, which acts as a barrier: any in-flight callback finishes
	// before Stop returns.
	cbMu sync.Mutex
}

// NewRecorder creates a Recorder with the given configuration.
func NewRecorder(cfg Config) *Recorder {
	maxRestarts := cfg.MaxRestarts
	if maxRestarts <= 0 {
		maxRestarts = defaultMaxRestarts
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Recorder{
		provider:    cfg.Provider,
		streamCfg:   cfg.Stream,
		maxRestarts: maxRestarts,
		backoff:     backoff,
		maxBackoff:  maxBackoff,
		onRestart:   cfg.OnRestart,
	}
}

// Start begins continuous recognition, invalidating any prior recording.
// There is at most one live stream per Recorder; starting a new one stops the
// previous one synchronously before the new stream opens.
//
// Returns stt.ErrDeviceUnavailable when no recognition capability exists and
// stt.ErrPermissionDenied when the backend refuses access.
func (r *Recorder) Start(ctx context.Context, cb Callbacks) error {
	// A prior recording is invalidated unconditionally.
	r.Stop()

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle, err := r.provider.StartStream(streamCtx, r.streamCfg)
	if err != nil {
		cancel()
		return fmt.Errorf("transcript: start stream: %w", err)
	}

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.recording = true
	r.handle = handle
	r.cb = cb
	r.finals = nil
	r.lastFinal = ""
	r.cancel = cancel
	r.mu.Unlock()

	go r.consume(streamCtx, gen, handle)

	slog.Debug("recorder started", "generation", gen)
	return nil
}

// Stop ends the current recording. It is idempotent and safe to call on an
// already-stopped or never-started Recorder. Once Stop returns, no further
// callbacks for the stopped generation are delivered, even if the underlying
// backend produces a late event.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.gen++ // invalidate the live generation
	r.recording = false
	handle := r.handle
	cancel := r.cancel
	r.handle = nil
	r.cb = Callbacks{}
	r.cancel = nil
	r.mu.Unlock()

	// Cancel before Close: provider read loops block on the stream context,
	// and Close waits for them. The other order can hang on a dead connection.
	if cancel != nil {
		cancel()
	}
	if handle != nil {
		_ = handle.Close()
	}

	// Dispatch barrier: wait out any callback that was already in flight.
	r.cbMu.Lock()
	defer r.cbMu.Unlock()

	slog.Debug("recorder stopped")
}

// Recording reports whether a recording is currently live.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// CumulativeText returns all final text committed so far in this recording.
func (r *Recorder) CumulativeText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.finals, " ")
}

// SendAudio forwards a PCM chunk to the live stream. Chunks sent while no
// recording is live (or during a restart gap) are dropped silently — speech
// input is lossy by nature and the analysis recomputes from whatever text the
// backend commits.
func (r *Recorder) SendAudio(chunk []byte) {
	r.mu.Lock()
	handle := r.handle
	r.mu.Unlock()
	if handle == nil {
		return
	}
	if err := handle.SendAudio(chunk); err != nil {
		slog.Debug("recorder: send audio failed", "err", err)
	}
}

// consume drains one SessionHandle until its channels close, then decides
// between transparent restart and fatal error. All channel values are
// dispatched through the generation gate.
func (r *Recorder) consume(ctx context.Context, gen uint64, handle stt.SessionHandle) {
	partials := handle.Partials()
	finals := handle.Finals()
	activity := handle.Activity()

	for partials != nil || finals != nil || activity != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			r.dispatchSegment(gen, t)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			r.dispatchSegment(gen, t)
		case ev, ok := <-activity:
			if !ok {
				activity = nil
				continue
			}
			r.dispatchActivity(gen, ev)
		}
	}

	// All channels closed. Either we were stopped, or the backend terminated
	// spontaneously and a transparent restart is due.
	r.mu.Lock()
	current := r.recording && r.gen == gen
	r.mu.Unlock()
	if !current {
		return
	}

	slog.Info("recorder: stream ended unexpectedly, restarting", "generation", gen)
	r.restart(ctx, gen)
}

// restart reopens the stream with exponential backoff, keeping the same
// generation so the recording appears continuous to consumers.
func (r *Recorder) restart(ctx context.Context, gen uint64) {
	backoff := r.backoff

	for attempt := 1; attempt <= r.maxRestarts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		r.mu.Lock()
		if !r.recording || r.gen != gen {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		handle, err := r.provider.StartStream(ctx, r.streamCfg)
		if err == nil {
			r.mu.Lock()
			if !r.recording || r.gen != gen {
				r.mu.Unlock()
				_ = handle.Close()
				return
			}
			r.handle = handle
			r.mu.Unlock()

			slog.Info("recorder: stream restarted", "generation", gen, "attempt", attempt)
			if r.onRestart != nil {
				r.onRestart(attempt)
			}
			go r.consume(ctx, gen, handle)
			return
		}

		if errors.Is(err, stt.ErrPermissionDenied) {
			r.fail(gen, fmt.Errorf("transcript: restart: %w", err))
			return
		}

		slog.Warn("recorder: restart attempt failed",
			"generation", gen,
			"attempt", attempt,
			"max_restarts", r.maxRestarts,
			"err", err,
		)

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	r.fail(gen, fmt.Errorf("transcript: stream lost after %d restart attempts", r.maxRestarts))
}

// fail tears down the recording and reports the terminal error once.
func (r *Recorder) fail(gen uint64, err error) {
	r.mu.Lock()
	if !r.recording || r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.gen++
	r.recording = false
	cb := r.cb
	cancel := r.cancel
	r.handle = nil
	r.cb = Callbacks{}
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	slog.Error("recorder: fatal stream error", "err", err)
	if cb.OnFatalError != nil {
		r.cbMu.Lock()
		cb.OnFatalError(err)
		r.cbMu.Unlock()
	}
}

// dispatchSegment appends final text and delivers a Segment, provided gen is
// still current at dispatch time.
func (r *Recorder) dispatchSegment(gen uint64, t types.Transcript) {
	r.mu.Lock()
	if !r.recording || r.gen != gen {
		r.mu.Unlock()
		return
	}
	seg := Segment{}
	if t.IsFinal {
		text := strings.TrimSpace(t.Text)
		if text == "" || text == r.lastFinal {
			// At-least-once delivery: a re-emitted final must not change the
			// cumulative text.
			r.mu.Unlock()
			return
		}
		r.finals = append(r.finals, text)
		r.lastFinal = text
		seg.FinalText = text
	} else {
		seg.InterimText = t.Text
	}
	seg.CumulativeText = strings.Join(r.finals, " ")
	cb := r.cb.OnSegment
	r.mu.Unlock()

	if cb == nil {
		return
	}
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	// Re-check under the dispatch lock so a Stop that won the race suppresses
	// this delivery.
	r.mu.Lock()
	stale := r.gen != gen
	r.mu.Unlock()
	if stale {
		return
	}
	cb(seg)
}

// dispatchActivity delivers an activity transition through the generation gate.
func (r *Recorder) dispatchActivity(gen uint64, ev types.ActivityEvent) {
	r.mu.Lock()
	if !r.recording || r.gen != gen {
		r.mu.Unlock()
		return
	}
	cb := r.cb.OnActivity
	r.mu.Unlock()

	if cb == nil {
		return
	}
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.mu.Lock()
	stale := r.gen != gen
	r.mu.Unlock()
	if stale {
		return
	}
	cb(ev)
}
