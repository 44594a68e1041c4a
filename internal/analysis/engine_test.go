package analysis

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/intervoxa/pkg/types"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(clock *fakeClock, onSnapshot func(types.AnalysisSnapshot)) *Engine {
	return NewEngine(Config{
		OnSnapshot: onSnapshot,
		Now:        clock.Now,
	})
}

func TestEngine_SpeechRate(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	words := make([]string, 150)
	for i := range words {
		words[i] = "architecture"
	}
	eng.Update(strings.Join(words, " "), "")

	clock.Advance(60 * time.Second)
	snap := eng.Snapshot()

	if snap.WordCount != 150 {
		t.Fatalf("WordCount = %d, want 150", snap.WordCount)
	}
	if snap.SpeechRate != 150 {
		t.Fatalf("SpeechRate = %d, want 150", snap.SpeechRate)
	}
	if snap.SpeakingTime != 60*time.Second {
		t.Fatalf("SpeakingTime = %v, want 60s", snap.SpeakingTime)
	}
}

func TestEngine_ConfidenceFromFillers(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	eng.Update("um I would uh design the cache basically like a ring buffer", "")
	snap := eng.Snapshot()

	if got := len(snap.Fillers); got != 4 {
		t.Fatalf("fillers = %d (%v), want 4", got, snap.Fillers)
	}
	if snap.Confidence != 88 {
		t.Fatalf("Confidence = %d, want 88", snap.Confidence)
	}
}

func TestEngine_ClarityFromHesitations(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	eng.Update("I would start with... the schema and then... maybe indexes", "")
	snap := eng.Snapshot()

	if snap.Clarity != 90 {
		t.Fatalf("Clarity = %d, want 90", snap.Clarity)
	}
}

func TestEngine_EmptyTranscript(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	snap := eng.Snapshot()

	if snap.WordCount != 0 {
		t.Fatalf("WordCount = %d, want 0", snap.WordCount)
	}
	if snap.SpeechRate != 0 {
		t.Fatalf("SpeechRate = %d, want 0", snap.SpeechRate)
	}
	if len(snap.Fillers) != 0 || len(snap.Keywords) != 0 {
		t.Fatalf("expected no fillers/keywords, got %v / %v", snap.Fillers, snap.Keywords)
	}
	if snap.Confidence != 100 || snap.Clarity != 100 {
		t.Fatalf("Confidence/Clarity = %d/%d, want 100/100", snap.Confidence, snap.Clarity)
	}
}

func TestEngine_ScoresClampAtZero(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("um ")
	}
	eng.Update(b.String(), "")
	snap := eng.Snapshot()

	if snap.Confidence != 0 {
		t.Fatalf("Confidence = %d, want 0", snap.Confidence)
	}
}

func TestEngine_InterimIncludedInMetrics(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	eng.Update("the first part is done", "and now continuing")
	snap := eng.Snapshot()

	if snap.WordCount != 8 {
		t.Fatalf("WordCount = %d, want 8", snap.WordCount)
	}
}

func TestEngine_RepeatedUpdateIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	eng.Update("designing for horizontal scale matters", "")
	first := eng.Snapshot()

	// A redelivered identical final changes nothing.
	eng.Update("designing for horizontal scale matters", "")
	second := eng.Snapshot()

	if first.WordCount != second.WordCount {
		t.Fatalf("WordCount changed %d -> %d on identical update", first.WordCount, second.WordCount)
	}
	if len(first.Fillers) != len(second.Fillers) {
		t.Fatalf("fillers changed on identical update")
	}
}

func TestEngine_PauseAccounting(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	start := clock.Now()
	eng.HandleActivity(types.ActivityEvent{Active: false, At: start.Add(2 * time.Second)})
	eng.HandleActivity(types.ActivityEvent{Active: true, At: start.Add(4 * time.Second)})

	clock.Advance(10 * time.Second)
	snap := eng.Snapshot()

	if snap.SilenceTime != 2*time.Second {
		t.Fatalf("SilenceTime = %v, want 2s", snap.SilenceTime)
	}
	if snap.SpeakingTime != 8*time.Second {
		t.Fatalf("SpeakingTime = %v, want 8s", snap.SpeakingTime)
	}
}

func TestEngine_ShortSilenceIgnored(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	start := clock.Now()
	eng.HandleActivity(types.ActivityEvent{Active: false, At: start.Add(time.Second)})
	eng.HandleActivity(types.ActivityEvent{Active: true, At: start.Add(time.Second + 100*time.Millisecond)})

	clock.Advance(5 * time.Second)
	if snap := eng.Snapshot(); snap.SilenceTime != 0 {
		t.Fatalf("SilenceTime = %v, want 0 for sub-debounce gap", snap.SilenceTime)
	}
}

func TestEngine_ThrottleDeliversTrailingSnapshot(t *testing.T) {
	clock := newFakeClock()
	snaps := make(chan types.AnalysisSnapshot, 8)
	eng := newTestEngine(clock, func(s types.AnalysisSnapshot) { snaps <- s })
	eng.Reset()

	eng.Update("first", "")
	<-snaps

	// Within the throttle window: no immediate snapshot, a trailing one fires.
	eng.Update("first second", "")
	eng.Update("first second third", "")

	select {
	case s := <-snaps:
		if s.WordCount != 3 {
			t.Fatalf("trailing snapshot WordCount = %d, want 3", s.WordCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trailing snapshot never delivered")
	}
}

func TestEngine_SnapshotCancelsPendingTrailingRebuild(t *testing.T) {
	clock := newFakeClock()
	snaps := make(chan types.AnalysisSnapshot, 8)
	eng := newTestEngine(clock, func(s types.AnalysisSnapshot) { snaps <- s })
	eng.Reset()

	eng.Update("first", "")
	<-snaps

	// Throttled: this arms a trailing rebuild.
	eng.Update("first second", "")

	// A synchronous Snapshot consumes the final state; the armed rebuild
	// must not fire after it.
	if snap := eng.Snapshot(); snap.WordCount != 2 {
		t.Fatalf("Snapshot WordCount = %d, want 2", snap.WordCount)
	}

	select {
	case s := <-snaps:
		t.Fatalf("trailing snapshot delivered after Snapshot: %+v", s)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestEngine_ResetClearsState(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	eng.Update("um uh some words here", "")
	clock.Advance(time.Minute)

	eng.Reset()
	snap := eng.Snapshot()
	if snap.WordCount != 0 || snap.SilenceTime != 0 {
		t.Fatalf("state survived Reset: %+v", snap)
	}
}

func TestEngine_KeywordsCapped(t *testing.T) {
	clock := newFakeClock()
	eng := newTestEngine(clock, nil)
	eng.Reset()

	terms := []string{
		"database", "scaling", "latency", "throughput", "sharding", "caching",
		"replication", "consistency", "availability", "partitioning", "indexing",
		"queueing", "streaming", "batching", "monitoring", "alerting", "tracing",
		"logging", "deployment", "rollback", "canary", "failover", "backpressure",
	}
	eng.Update(strings.Join(terms, " "), "")
	snap := eng.Snapshot()

	if len(snap.Keywords) != keywordDisplayCap {
		t.Fatalf("display keywords = %d, want %d", len(snap.Keywords), keywordDisplayCap)
	}
	if got := len(eng.Keywords()); got != len(terms) {
		t.Fatalf("full keyword set = %d, want %d", got, len(terms))
	}
}
