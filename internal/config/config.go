// Package config provides the configuration schema, loader and provider
// registry for the maitred ordering server.
package config

import "time"

// LogLevel controls log verbosity for the maitred server.
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

// Config is the root configuration structure for maitred. It is
// typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Session   SessionConfig   `yaml:"session"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AudioConfig tunes the turn segmenter. Zero values fall back to the
// segmenter's defaults.
type AudioConfig struct {
	// SampleRate is the inbound PCM sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameDuration is the inbound frame length.
	FrameDuration time.Duration `yaml:"frame_duration"`

	// EnergyFloor is the RMS threshold separating speech from silence.
	EnergyFloor float64 `yaml:"energy_floor"`

	// ConfirmFrames is how many consecutive voiced frames confirm speech.
	ConfirmFrames int `yaml:"confirm_frames"`

	// SilenceEnd is the trailing silence that closes an utterance.
	SilenceEnd time.Duration `yaml:"silence_end"`

	// MinUtterance discards utterances shorter than this.
	MinUtterance time.Duration `yaml:"min_utterance"`

	// PreRoll is how much audio before speech onset is kept.
	PreRoll time.Duration `yaml:"pre_roll"`

	// StartupGrace ignores frames for this span after session start.
	StartupGrace time.Duration `yaml:"startup_grace"`
}

// ProvidersConfig declares which backend to use for each pipeline stage.
// Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. Name selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Fallbacks are additional backends tried in order when this one
	// fails or its circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// CatalogConfig locates the tenant menu and normalization rules.
type CatalogConfig struct {
	// PostgresDSN is the connection string for the catalog store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Tenant is the tenant ID whose menu this server serves.
	Tenant string `yaml:"tenant"`
}

// SessionConfig tunes per-call behaviour.
type SessionConfig struct {
	// Language is the BCP-47 primary subtag for the whole deployment.
	Language string `yaml:"language"`

	// MinConfidence discards transcripts below this STT confidence.
	MinConfidence float64 `yaml:"min_confidence"`

	// Persona frames the fallback voice. Empty uses the built-in one.
	Persona string `yaml:"persona"`

	// Voice names the TTS voice for replies.
	Voice string `yaml:"voice"`

	// SpeechSpeed scales reply playback speed. Zero means 1.0.
	SpeechSpeed float64 `yaml:"speech_speed"`

	// HeartbeatEnabled turns on idle-caller nudges.
	HeartbeatEnabled bool `yaml:"heartbeat_enabled"`

	// IdleTimeout is the quiet span before a nudge plays.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxNudges is how many unanswered nudges end the call.
	MaxNudges int `yaml:"max_nudges"`
}

// TelemetryConfig tunes the decision-event emitter.
type TelemetryConfig struct {
	// PostgresDSN is the connection string for the event sink. Empty
	// disables persistence; events are still counted in metrics.
	PostgresDSN string `yaml:"postgres_dsn"`

	// QueueSize bounds the in-memory event queue.
	QueueSize int `yaml:"queue_size"`

	// DeliveryTimeout bounds one sink write.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}
