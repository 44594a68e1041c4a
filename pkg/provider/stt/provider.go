// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram)
// and exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw PCM audio frames and emits
// two streams — Transcript values (low-latency partials plus authoritative
// finals) and ActivityEvent values reporting speech/silence transitions of the
// input. Activity events drive the pause-time accounting of the analysis
// engine and are best-effort; consumers must debounce them.
//
// Implementations must be safe for concurrent use. Audio input and output
// channels are goroutine-safe by construction.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/intervoxa/pkg/types"
)

// ErrDeviceUnavailable is returned by StartStream when no compatible input or
// recognition capability exists (e.g., the backend is not configured).
var ErrDeviceUnavailable = errors.New("stt: no recognition capability available")

// ErrPermissionDenied is returned by StartStream when the backend refuses
// access (e.g., invalid or revoked credentials).
var ErrPermissionDenied = errors.New("stt: access denied")

// StreamConfig describes the audio format and recognition hints for a new STT
// session. All fields must be compatible with what the underlying provider
// supports; see each provider's documentation for valid ranges.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most STT
	// providers).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// InterimResults requests low-latency partial transcripts in addition to
	// finals. Providers that cannot produce partials ignore this flag.
	InterimResults bool
}

// SessionHandle represents an open STT streaming session. It is an interface so
// that test code can provide mock implementations without requiring a live
// provider connection.
//
// Callers must call Close when the session is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. The chunk must match the SampleRate, Channels, and
	// bit-depth agreed in StreamConfig. Calling SendAudio after Close returns
	// an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel of interim Transcript values.
	// Interim text may be superseded by a later result and must not be treated
	// as authoritative. The channel is closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals returns a read-only channel of authoritative Transcript values.
	// Final text is never revised. The channel is closed when the session ends.
	Finals() <-chan types.Transcript

	// Activity returns a read-only channel of speech/silence transitions
	// detected on the input. Providers without voice-activity detection return
	// a channel that never delivers and is closed when the session ends.
	Activity() <-chan types.ActivityEvent

	// Close terminates the session, flushes any pending audio, and releases all
	// associated resources. After Close returns, the Partials, Finals, and
	// Activity channels will be closed. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// audio format and recognition configuration. The returned SessionHandle is
	// ready to accept audio immediately.
	//
	// Returns ErrPermissionDenied when the backend rejects the credentials,
	// ErrDeviceUnavailable when no recognition capability can be reached, or
	// another error for malformed configuration / cancelled ctx. The caller
	// owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
