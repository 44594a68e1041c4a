package session

import (
	"sync"

	"github.com/MrWong99/intervoxa/pkg/types"
)

// EventType discriminates the events published to subscribers.
type EventType string

const (
	// EventState is published on every lifecycle transition.
	EventState EventType = "state"

	// EventTranscript is published for every transcript segment while
	// recording.
	EventTranscript EventType = "transcript"

	// EventAnalysis is published with every recomputed analysis snapshot.
	EventAnalysis EventType = "analysis"

	// EventWarning carries non-fatal problems (e.g. the transcript adapter
	// died mid-question). The session itself is unaffected.
	EventWarning EventType = "warning"
)

// TranscriptUpdate is the payload of an EventTranscript event.
type TranscriptUpdate struct {
	// Cumulative is the full finalized transcript so far.
	Cumulative string `json:"cumulative"`

	// Interim is the current revisable guess, if any.
	Interim string `json:"interim,omitempty"`
}

// Event is a single update published to session subscribers. Exactly one of
// the payload fields is set, per Type.
type Event struct {
	Type EventType `json:"type"`

	// State fields, set for EventState.
	State           types.SessionState `json:"state,omitempty"`
	CurrentQuestion int                `json:"current_question,omitempty"`
	Answered        int                `json:"answered,omitempty"`
	Total           int                `json:"total,omitempty"`

	Transcript *TranscriptUpdate       `json:"transcript,omitempty"`
	Analysis   *types.AnalysisSnapshot `json:"analysis,omitempty"`

	// Message is set for EventWarning.
	Message string `json:"message,omitempty"`
}

// subscriberBuffer bounds each subscriber channel. A slow subscriber loses
// events rather than stalling the machine.
const subscriberBuffer = 64

// fanout distributes events to any number of subscribers without ever
// blocking the publisher.
type fanout struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func newFanout() *fanout {
	return &fanout{subs: make(map[int]chan Event)}
}

// subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel.
func (f *fanout) subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	ch := make(chan Event, subscriberBuffer)
	f.subs[id] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
	}
}

// publish sends ev to every subscriber, dropping it for any whose buffer is
// full.
func (f *fanout) publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
