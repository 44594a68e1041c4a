// Package config provides the configuration schema, loader, and provider
// registry for the Intervoxa interview coaching server.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Intervoxa server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// BackendType selects which completion client implementation backs an
// evaluator backend entry.
type BackendType string

const (
	// BackendOpenAI uses the official OpenAI client.
	BackendOpenAI BackendType = "openai"

	// BackendAnyLLM routes through the any-llm multi-provider client.
	BackendAnyLLM BackendType = "anyllm"
)

// IsValid reports whether b is a recognised backend type.
func (b BackendType) IsValid() bool {
	return b == BackendOpenAI || b == BackendAnyLLM
}

// Duration wraps time.Duration so YAML values like "250ms" or "30s" decode
// with time.ParseDuration semantics.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for Intervoxa.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	STT       STTConfig       `yaml:"stt"`
	Evaluator EvaluatorConfig `yaml:"evaluator"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the Intervoxa server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// STTConfig selects and configures the speech-to-text provider used for
// live answer transcription.
type STTConfig struct {
	// Provider selects the registered STT implementation (e.g., "deepgram").
	Provider string `yaml:"provider"`

	// APIKey is the provider authentication key. Prefer APIKeyEnv so keys
	// stay out of config files.
	APIKey string `yaml:"api_key"`

	// APIKeyEnv names an environment variable to read the key from when
	// APIKey is empty.
	APIKeyEnv string `yaml:"api_key_env"`

	// Language is the BCP-47 transcription language (e.g., "en-US").
	Language string `yaml:"language"`

	// SampleRate is the audio sample rate in Hz sent by clients.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the audio channel count sent by clients.
	Channels int `yaml:"channels"`

	// InterimResults enables partial transcript delivery while speech is
	// still in progress.
	InterimResults bool `yaml:"interim_results"`
}

// ResolveAPIKey returns the configured key, falling back to the environment
// variable named by APIKeyEnv.
func (c STTConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}

// EvaluatorConfig configures the LLM backends used for question generation,
// answer scoring, and interview summaries. Backends are tried in order; a
// circuit breaker guards each one.
type EvaluatorConfig struct {
	// Backends lists completion backends in preference order. At least one
	// is required.
	Backends []BackendEntry `yaml:"backends"`

	// Breaker tunes the per-backend circuit breakers.
	Breaker BreakerConfig `yaml:"breaker"`

	// Timeout bounds a single evaluation round trip. Zero means no
	// per-call timeout beyond the caller's context.
	Timeout Duration `yaml:"timeout"`
}

// BackendEntry describes one completion backend in the evaluator chain.
type BackendEntry struct {
	// Name identifies the backend in logs and metrics (e.g., "primary").
	Name string `yaml:"name"`

	// Type selects the client implementation.
	Type BackendType `yaml:"type"`

	// Provider is the upstream provider name for anyllm backends
	// (e.g., "anthropic", "ollama"). Ignored for the openai type.
	Provider string `yaml:"provider"`

	// Model selects a specific model (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// APIKey is the provider authentication key. Prefer APIKeyEnv.
	APIKey string `yaml:"api_key"`

	// APIKeyEnv names an environment variable to read the key from when
	// APIKey is empty.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`
}

// ResolveAPIKey returns the configured key, falling back to the environment
// variable named by APIKeyEnv.
func (b BackendEntry) ResolveAPIKey() string {
	if b.APIKey != "" {
		return b.APIKey
	}
	if b.APIKeyEnv != "" {
		return os.Getenv(b.APIKeyEnv)
	}
	return ""
}

// BreakerConfig tunes the circuit breakers guarding evaluator backends.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens a
	// breaker. Zero uses the built-in default.
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown is how long an open breaker rejects calls before probing.
	Cooldown Duration `yaml:"cooldown"`

	// ProbeQuota is how many consecutive probe successes close a
	// half-open breaker.
	ProbeQuota int `yaml:"probe_quota"`
}

// AnalysisConfig tunes the live communication analysis engine.
type AnalysisConfig struct {
	// RecomputeInterval throttles metric recomputation during rapid
	// transcript updates. Zero uses the engine default.
	RecomputeInterval Duration `yaml:"recompute_interval"`

	// ActivityDebounce is the minimum silence gap counted as a pause.
	// Zero uses the engine default.
	ActivityDebounce Duration `yaml:"activity_debounce"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	// ServiceName overrides the service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}
