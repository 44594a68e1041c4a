package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":    {"deepgram", "mock"},
	"anyllm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// STT
	validateProviderName("stt", cfg.STT.Provider)
	if cfg.STT.Provider != "" && cfg.STT.Provider != "mock" {
		if cfg.STT.ResolveAPIKey() == "" {
			slog.Warn("stt provider is configured without an API key; streaming will fail at connect time",
				"provider", cfg.STT.Provider,
			)
		}
	}
	if cfg.STT.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("stt.sample_rate %d must not be negative", cfg.STT.SampleRate))
	}
	if cfg.STT.Channels < 0 || cfg.STT.Channels > 2 {
		errs = append(errs, fmt.Errorf("stt.channels %d is out of range [0, 2]", cfg.STT.Channels))
	}

	// Evaluator backends
	if len(cfg.Evaluator.Backends) == 0 {
		errs = append(errs, errors.New("evaluator.backends must list at least one backend"))
	}
	backendNamesSeen := make(map[string]int, len(cfg.Evaluator.Backends))
	for i, be := range cfg.Evaluator.Backends {
		prefix := fmt.Sprintf("evaluator.backends[%d]", i)
		if be.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := backendNamesSeen[be.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of evaluator.backends[%d]", prefix, be.Name, prev))
			}
			backendNamesSeen[be.Name] = i
		}
		if !be.Type.IsValid() {
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: openai, anyllm", prefix, be.Type))
		}
		if be.Type == BackendAnyLLM {
			if be.Provider == "" {
				errs = append(errs, fmt.Errorf("%s.provider is required when type is anyllm", prefix))
			} else {
				validateProviderName("anyllm", be.Provider)
			}
		}
		if be.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", prefix))
		}
		if be.ResolveAPIKey() == "" && be.Provider != "ollama" {
			slog.Warn("evaluator backend is configured without an API key",
				"backend", be.Name,
			)
		}
	}

	// Breaker
	if cfg.Evaluator.Breaker.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("evaluator.breaker.failure_threshold %d must not be negative", cfg.Evaluator.Breaker.FailureThreshold))
	}
	if cfg.Evaluator.Breaker.ProbeQuota < 0 {
		errs = append(errs, fmt.Errorf("evaluator.breaker.probe_quota %d must not be negative", cfg.Evaluator.Breaker.ProbeQuota))
	}

	// Analysis
	if cfg.Analysis.RecomputeInterval < 0 {
		errs = append(errs, errors.New("analysis.recompute_interval must not be negative"))
	}
	if cfg.Analysis.ActivityDebounce < 0 {
		errs = append(errs, errors.New("analysis.activity_debounce must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
