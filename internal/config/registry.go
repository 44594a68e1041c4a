package config

import (
	"errors"
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/intervoxa/internal/evaluator"
	"github.com/MrWong99/intervoxa/internal/evaluator/anyllm"
	evoai "github.com/MrWong99/intervoxa/internal/evaluator/openai"
	"github.com/MrWong99/intervoxa/pkg/provider/stt"
	"github.com/MrWong99/intervoxa/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/intervoxa/pkg/provider/stt/mock"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stt      map[string]func(STTConfig) (stt.Provider, error)
	backends map[BackendType]func(BackendEntry) (evaluator.Completer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:      make(map[string]func(STTConfig) (stt.Provider, error)),
		backends: make(map[BackendType]func(BackendEntry) (evaluator.Completer, error)),
	}
}

// DefaultRegistry returns a [Registry] with all built-in providers registered:
// the deepgram and mock STT providers, and the openai and anyllm completion
// backends.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterSTT("deepgram", func(cfg STTConfig) (stt.Provider, error) {
		return deepgram.New(cfg.ResolveAPIKey())
	})
	r.RegisterSTT("mock", func(STTConfig) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})
	r.RegisterBackend(BackendOpenAI, func(be BackendEntry) (evaluator.Completer, error) {
		var opts []evoai.Option
		if be.BaseURL != "" {
			opts = append(opts, evoai.WithBaseURL(be.BaseURL))
		}
		return evoai.New(be.ResolveAPIKey(), be.Model, opts...)
	})
	r.RegisterBackend(BackendAnyLLM, func(be BackendEntry) (evaluator.Completer, error) {
		var opts []anyllmlib.Option
		if key := be.ResolveAPIKey(); key != "" {
			opts = append(opts, anyllmlib.WithAPIKey(key))
		}
		if be.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(be.BaseURL))
		}
		return anyllm.New(be.Provider, be.Model, opts...)
	})
	return r
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(STTConfig) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterBackend registers a completion backend factory under typ.
func (r *Registry) RegisterBackend(typ BackendType, factory func(BackendEntry) (evaluator.Completer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[typ] = factory
}

// CreateSTT constructs the STT provider selected by cfg.Provider.
func (r *Registry) CreateSTT(cfg STTConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt provider %q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateBackend constructs the completion backend described by entry.
func (r *Registry) CreateBackend(entry BackendEntry) (evaluator.Completer, error) {
	r.mu.RLock()
	factory, ok := r.backends[entry.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: backend type %q", ErrProviderNotRegistered, entry.Type)
	}
	return factory(entry)
}
