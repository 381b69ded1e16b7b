package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper"},
	"tts": {"elevenlabs"},
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
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when server.tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when server.tls is set"))
		}
	}

	// Hub
	if cfg.Hub.BaseURL == "" {
		errs = append(errs, errors.New("hub.base_url is required"))
	} else if u, err := url.Parse(cfg.Hub.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("hub.base_url %q is not a valid URL", cfg.Hub.BaseURL))
	}
	if cfg.Hub.Token == "" {
		errs = append(errs, errors.New("hub.token is required"))
	}
	if cfg.Hub.EventsURL != "" {
		if u, err := url.Parse(cfg.Hub.EventsURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("hub.events_url %q must be a ws:// or wss:// URL", cfg.Hub.EventsURL))
		}
	}
	if cfg.Hub.RefreshSeconds < 0 {
		errs = append(errs, fmt.Errorf("hub.refresh_seconds %d must not be negative", cfg.Hub.RefreshSeconds))
	}
	if cfg.Hub.InsecureTLS {
		slog.Warn("hub.insecure_tls is enabled; hub certificate verification is disabled")
	}

	// Warn for unknown provider names instead of failing.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; chat and voice commands will be unavailable")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; audio transcription will be unavailable")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; spoken announcements will be unavailable")
	}

	// History
	if cfg.History.Backend != "" && !cfg.History.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: memory, postgres", cfg.History.Backend))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.History.PostgresDSN == "" {
		errs = append(errs, errors.New("history.postgres_dsn is required when history.backend is postgres"))
	}
	if cfg.History.Backend != HistoryPostgres && cfg.History.PostgresDSN != "" {
		slog.Warn("history.postgres_dsn is set but history.backend is not postgres; the DSN will be ignored",
			"backend", cfg.History.Backend,
		)
	}

	// Speakers
	for i, ep := range cfg.Speakers.Endpoints {
		if u, err := url.Parse(ep); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("speakers.endpoints[%d] %q is not a valid URL", i, ep))
		}
	}

	// Resolver
	if cfg.Resolver.MinSimilarity < 0 || cfg.Resolver.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("resolver.min_similarity %.2f is out of range [0.0, 1.0]", cfg.Resolver.MinSimilarity))
	}
	if cfg.Resolver.Strict && (cfg.Resolver.DisablePhonetic || cfg.Resolver.DisablePartial) {
		slog.Warn("resolver.strict already disables phonetic and partial matching; the disable flags are redundant")
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
