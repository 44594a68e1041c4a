// Package analysis implements the real-time communication analysis engine.
//
// The engine consumes a growing transcript plus audio-activity events and
// derives a point-in-time AnalysisSnapshot: word count, speech rate,
// filler-word incidence, pause accounting, and heuristic confidence and
// clarity scores. Every snapshot is a full recomputation over the cumulative
// transcript — never an incremental patch — which guards against compounding
// errors when interim text is revised by the recognition backend. Recomputing
// is O(transcript length) per update, which is fine: transcripts are bounded
// by interview duration and updates arrive at natural speech cadence.
//
// The engine never fails on malformed input; an empty transcript simply
// yields zeroed metrics. It holds no state beyond the current recording and
// is Reset whenever a new recording starts.
package analysis

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/intervoxa/pkg/types"
)

// Default tuning knobs.
const (
	// defaultRecomputeInterval bounds how often a full snapshot rebuild runs.
	// A trailing rebuild is always delivered, so the final update is never lost.
	defaultRecomputeInterval = 250 * time.Millisecond

	// defaultActivityDebounce ignores silence gaps shorter than this.
	// Activity events are noisy; blinking transitions must not inflate the
	// pause accounting.
	defaultActivityDebounce = 300 * time.Millisecond

	// minSpeakingTime is the floor applied before computing words-per-minute.
	minSpeakingTime = time.Second
)

// Config configures an Engine.
type Config struct {
	// OnSnapshot is invoked with every recomputed snapshot. May be nil.
	OnSnapshot func(types.AnalysisSnapshot)

	// RecomputeInterval throttles snapshot rebuilds. Defaults to 250ms if zero.
	RecomputeInterval time.Duration

	// ActivityDebounce is the minimum silence gap counted as a pause.
	// Defaults to 300ms if zero.
	ActivityDebounce time.Duration

	// Now overrides the clock source, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Engine converts transcript updates and activity events into snapshots.
// All exported methods are safe for concurrent use.
type Engine struct {
	onSnapshot       func(types.AnalysisSnapshot)
	recomputeEvery   time.Duration
	activityDebounce time.Duration
	now              func() time.Time
	fillers          *FillerMatcher

	mu           sync.Mutex
	started      bool
	sessionStart time.Time
	totalPause   time.Duration
	silenceSince time.Time // zero while the input is active
	cumulative   string
	interim      string
	allKeywords  []string
	lastRebuild  time.Time
	trailing     *time.Timer
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	interval := cfg.RecomputeInterval
	if interval <= 0 {
		interval = defaultRecomputeInterval
	}
	debounce := cfg.ActivityDebounce
	if debounce <= 0 {
		debounce = defaultActivityDebounce
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		onSnapshot:       cfg.OnSnapshot,
		recomputeEvery:   interval,
		activityDebounce: debounce,
		now:              now,
		fillers:          NewFillerMatcher(),
	}
}

// Reset discards all accumulated state and marks the start of a new recording.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.trailing != nil {
		e.trailing.Stop()
		e.trailing = nil
	}
	e.started = true
	e.sessionStart = e.now()
	e.totalPause = 0
	e.silenceSince = time.Time{}
	e.cumulative = ""
	e.interim = ""
	e.allKeywords = nil
	e.lastRebuild = time.Time{}
}

// Update records the latest transcript text and triggers a (possibly
// throttled) snapshot rebuild. cumulative is the full finalized text;
// interim is the current revisable guess, if any.
func (e *Engine) Update(cumulative, interim string) {
	e.mu.Lock()
	if !e.started {
		e.sessionStart = e.now()
		e.started = true
	}
	e.cumulative = cumulative
	e.interim = interim

	now := e.now()
	if now.Sub(e.lastRebuild) >= e.recomputeEvery {
		e.lastRebuild = now
		snap := e.rebuildLocked(now)
		cb := e.onSnapshot
		e.mu.Unlock()
		if cb != nil {
			cb(snap)
		}
		return
	}

	// Throttled: arm a trailing rebuild so the last update always lands.
	if e.trailing == nil {
		delay := e.recomputeEvery - now.Sub(e.lastRebuild)
		e.trailing = time.AfterFunc(delay, e.fireTrailing)
	}
	e.mu.Unlock()
}

// fireTrailing runs the deferred rebuild armed by a throttled Update.
func (e *Engine) fireTrailing() {
	e.mu.Lock()
	e.trailing = nil
	if !e.started {
		e.mu.Unlock()
		return
	}
	now := e.now()
	e.lastRebuild = now
	snap := e.rebuildLocked(now)
	cb := e.onSnapshot
	e.mu.Unlock()
	if cb != nil {
		cb(snap)
	}
}

// HandleActivity feeds a speech/silence transition into the pause accounting.
// A pause is counted when a silence→speech pair closes and the gap is at
// least the configured debounce.
func (e *Engine) HandleActivity(ev types.ActivityEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	if !ev.Active {
		if e.silenceSince.IsZero() {
			e.silenceSince = ev.At
		}
		return
	}
	if e.silenceSince.IsZero() {
		return
	}
	gap := ev.At.Sub(e.silenceSince)
	e.silenceSince = time.Time{}
	if gap >= e.activityDebounce {
		e.totalPause += gap
	}
}

// Snapshot recomputes and returns the current snapshot synchronously,
// bypassing the throttle. This is what the submission pipeline calls at the
// moment of submission, so any trailing rebuild still pending is cancelled:
// nothing may fire after the caller has consumed the final snapshot.
func (e *Engine) Snapshot() types.AnalysisSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.trailing != nil {
		e.trailing.Stop()
		e.trailing = nil
	}
	return e.rebuildLocked(e.now())
}

// Keywords returns the full extracted keyword set (not display-capped) in
// first-seen order.
func (e *Engine) Keywords() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.allKeywords))
	copy(out, e.allKeywords)
	return out
}

// rebuildLocked recomputes the snapshot from scratch. Must be called with
// e.mu held.
func (e *Engine) rebuildLocked(now time.Time) types.AnalysisSnapshot {
	text := e.cumulative
	if e.interim != "" {
		text = strings.TrimSpace(text + " " + e.interim)
	}

	surfaces, normalized := tokenize(text)
	fillers := e.fillers.Match(surfaces, normalized)
	keywords := extractKeywords(normalized)
	e.allKeywords = keywords

	display := keywords
	if len(display) > keywordDisplayCap {
		display = display[:keywordDisplayCap]
	}

	var speaking time.Duration
	if e.started && !e.sessionStart.IsZero() {
		speaking = now.Sub(e.sessionStart) - e.totalPause
	}
	if speaking < minSpeakingTime {
		speaking = minSpeakingTime
	}

	rate := 0
	if len(surfaces) > 0 {
		rate = int(math.Round(float64(len(surfaces)) / speaking.Minutes()))
	}

	hesitations := strings.Count(text, "...") + strings.Count(text, "…")

	return types.AnalysisSnapshot{
		WordCount:    len(surfaces),
		SpeakingTime: speaking,
		SilenceTime:  e.totalPause,
		SpeechRate:   rate,
		Fillers:      fillers,
		Keywords:     display,
		Confidence:   clampScore(100 - 3*len(fillers)),
		Clarity:      clampScore(100 - 5*hesitations),
		CapturedAt:   now,
	}
}

// clampScore bounds a heuristic score to [0, 100].
func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
