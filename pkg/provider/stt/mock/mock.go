// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig, or to script a sequence of sessions (e.g., when testing the
// recorder's auto-restart behaviour). Use Session to feed controlled
// Transcript and ActivityEvent values and inspect delivered audio chunks.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Sessions: []stt.SessionHandle{sess}}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.EmitFinal("hello world", 0.9)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/intervoxa/pkg/provider/stt"
	"github.com/MrWong99/intervoxa/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are returned by successive StartStream calls in order. When the
	// list is exhausted (or empty), StartStream returns a fresh default
	// Session. This supports restart tests where each StartStream must yield a
	// distinct handle.
	Sessions []stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamErrs maps call index (0-based) to an error returned for that
	// specific call, allowing "fail once, then recover" scripts. Takes
	// precedence over StartStreamErr for listed indices.
	StartStreamErrs map[int]error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns the next scripted session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := len(p.StartStreamCalls)
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})

	if err, ok := p.StartStreamErrs[idx]; ok {
		return nil, err
	}
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if idx < len(p.Sessions) {
		return p.Sessions[idx], nil
	}
	return NewSession(), nil
}

// StartCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) StartCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Create it with
// NewSession, feed values through the Emit helpers, and close it with Close
// (which closes all output channels exactly once).
type Session struct {
	mu sync.Mutex

	partials chan types.Transcript
	finals   chan types.Transcript
	activity chan types.ActivityEvent

	closed bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// audioChunks records copies of every chunk passed to SendAudio.
	audioChunks [][]byte

	// closeCount is the number of times Close was called.
	closeCount int
}

// NewSession creates a Session with buffered output channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan types.Transcript, 32),
		finals:   make(chan types.Transcript, 32),
		activity: make(chan types.ActivityEvent, 32),
	}
}

// EmitPartial delivers an interim transcript to consumers.
func (s *Session) EmitPartial(text string, confidence float64) {
	s.partials <- types.Transcript{Text: text, Confidence: confidence}
}

// EmitFinal delivers a final transcript to consumers.
func (s *Session) EmitFinal(text string, confidence float64) {
	s.finals <- types.Transcript{Text: text, IsFinal: true, Confidence: confidence}
}

// EmitActivity delivers a speech/silence transition to consumers.
func (s *Session) EmitActivity(active bool, at time.Time) {
	s.activity <- types.ActivityEvent{Active: active, At: at}
}

// SendAudio records the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.audioChunks = append(s.audioChunks, cp)
	return s.SendAudioErr
}

// Partials returns the interim transcript channel.
func (s *Session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// Activity returns the activity event channel.
func (s *Session) Activity() <-chan types.ActivityEvent { return s.activity }

// Close closes all output channels exactly once. Always returns nil.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	if !s.closed {
		s.closed = true
		close(s.partials)
		close(s.finals)
		close(s.activity)
	}
	return nil
}

// CloseCount returns the number of Close calls. Thread-safe.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// AudioChunkCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) AudioChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audioChunks)
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
