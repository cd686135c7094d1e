package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used
// by [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"stt": {"openai"},
	"llm": {"openai"},
	"tts": {"openai"},
}

// supportedLanguages mirrors the decision core's fixed language set.
var supportedLanguages = []string{"en", "nl"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Environment references of the form ${VAR} are expanded
// before decoding, so secrets like API keys can stay out of the file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := LoadFromReader(strings.NewReader(os.ExpandEnv(string(raw))))
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

// Validate checks that cfg contains a coherent set of values. It returns
// a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	validateProviderName("stt", cfg.Providers.STT)
	validateProviderName("llm", cfg.Providers.LLM)
	validateProviderName("tts", cfg.Providers.TTS)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; unresolved turns will get the scripted re-prompt")
	}

	if cfg.Catalog.PostgresDSN == "" {
		errs = append(errs, errors.New("catalog.postgres_dsn is required"))
	}
	if cfg.Catalog.Tenant == "" {
		errs = append(errs, errors.New("catalog.tenant is required"))
	}

	if cfg.Session.Language != "" && !slices.Contains(supportedLanguages, cfg.Session.Language) {
		errs = append(errs, fmt.Errorf("session.language %q is unsupported; valid values: %v", cfg.Session.Language, supportedLanguages))
	}
	if cfg.Session.MinConfidence < 0 || cfg.Session.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("session.min_confidence %.2f is out of range [0, 1]", cfg.Session.MinConfidence))
	}
	if cfg.Session.SpeechSpeed != 0 {
		if cfg.Session.SpeechSpeed < 0.5 || cfg.Session.SpeechSpeed > 2.0 {
			errs = append(errs, fmt.Errorf("session.speech_speed %.2f is out of range [0.5, 2.0]", cfg.Session.SpeechSpeed))
		}
	}

	if cfg.Audio.SilenceEnd != 0 && cfg.Audio.MinUtterance != 0 && cfg.Audio.MinUtterance <= cfg.Audio.SilenceEnd {
		errs = append(errs, fmt.Errorf("audio.min_utterance %v must exceed audio.silence_end %v", cfg.Audio.MinUtterance, cfg.Audio.SilenceEnd))
	}

	if cfg.Telemetry.PostgresDSN == "" {
		slog.Warn("telemetry.postgres_dsn is empty; decision events will not be persisted")
	}
	if cfg.Telemetry.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("telemetry.queue_size %d must not be negative", cfg.Telemetry.QueueSize))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if the entry names a provider not
// in the [ValidProviderNames] list for the given kind, covering the
// entry itself and its fallbacks.
func validateProviderName(kind string, entry ProviderEntry) {
	names := append([]ProviderEntry{entry}, entry.Fallbacks...)
	for _, e := range names {
		if e.Name == "" {
			continue
		}
		if slices.Contains(ValidProviderNames[kind], e.Name) {
			continue
		}
		slog.Warn("unknown provider name — may be a typo or third-party provider",
			"kind", kind,
			"name", e.Name,
			"known", ValidProviderNames[kind],
		)
	}
}
