// Package config provides the configuration schema, loader, and provider registry
// for the ScribeCat lecture annotation server.
package config

import "time"

// LogLevel controls log verbosity for the ScribeCat server.
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

// StorageDriver selects the session store backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
)

// IsValid reports whether d is a recognised storage driver.
func (d StorageDriver) IsValid() bool {
	switch d {
	case StorageMemory, StorageSQLite, StoragePostgres:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":8080"
	DefaultCORSOrigin        = "*"
	DefaultContextMinWords   = 200
	DefaultContextInterval   = 2 * time.Minute
	DefaultNotesMinWords     = 30
	DefaultNotesInterval     = 45 * time.Second
	DefaultRecentWindowWords = 100
	DefaultMaxBufferChars    = 50_000
	DefaultRequestTimeout    = 30 * time.Second
	DefaultDeletedTTL        = 30 * 24 * time.Hour
	DefaultPurgeHourUTC      = 2
	DefaultSaveDelay         = 2 * time.Second
	DefaultMCPPath           = "/mcp"
	DefaultRecordingsDir     = "recordings"
	DefaultEmbeddingDims     = 1536
)

// Config is the root configuration structure for ScribeCat.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Storage    StorageConfig    `yaml:"storage"`
	Retention  RetentionConfig  `yaml:"retention"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	MCP        MCPConfig        `yaml:"mcp"`
	Observe    ObserveConfig    `yaml:"observe"`
}

// ServerConfig holds network and logging settings for the ScribeCat server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// CORSOrigin is sent as Access-Control-Allow-Origin. Default: "*".
	CORSOrigin string `yaml:"cors_origin"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// model-backed concern. Each entry selects a named provider registered in
// the [Registry].
type ProvidersConfig struct {
	// LLM serves note generation, full notes and chat.
	LLM ProviderEntry `yaml:"llm"`

	// ContextLLM serves lecture context refreshes. When Name is empty the
	// LLM entry is used.
	ContextLLM ProviderEntry `yaml:"context_llm"`

	// LLMFallbacks are tried in order when the primary LLM fails.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	STT        ProviderEntry `yaml:"stt"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "assemblyai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// AnnotationConfig tunes the live annotation orchestrator.
type AnnotationConfig struct {
	// Enabled is the initial state of AI annotation for new recordings.
	// Default: true.
	Enabled *bool `yaml:"enabled"`

	ContextMinWords int           `yaml:"context_min_words"`
	ContextInterval time.Duration `yaml:"context_interval"`
	NotesMinWords   int           `yaml:"notes_min_words"`
	NotesInterval   time.Duration `yaml:"notes_interval"`

	// RecentWindowWords is how many trailing words feed each request.
	RecentWindowWords int `yaml:"recent_window_words"`

	// MaxBufferChars caps the transcript buffer.
	MaxBufferChars int `yaml:"max_buffer_chars"`

	// RequestTimeout bounds every context refresh and note generation.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ResetOnSuccess resets trigger counters only after a successful
	// request instead of at every attempt.
	ResetOnSuccess bool `yaml:"reset_on_success"`

	// Endpoint, when set, is the base URL of a ScribeCat server whose
	// /lectureContext and /nuggetNotes the live pipeline calls instead of
	// running the model in-process.
	Endpoint string `yaml:"endpoint"`
}

// IsEnabled reports the effective Enabled value.
func (a AnnotationConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// StorageConfig selects and configures the session store.
type StorageConfig struct {
	// Driver is one of memory, sqlite, postgres. Default: memory.
	Driver StorageDriver `yaml:"driver"`

	// DSN is the SQLite file path or the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// EmbeddingDimensions is the vector size of the note index. Must match
	// the model configured in providers.embeddings. Postgres only.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	// RecordingsDir is where live recordings are written as WAV files.
	RecordingsDir string `yaml:"recordings_dir"`
}

// RetentionConfig controls the trash purge.
type RetentionConfig struct {
	// DeletedTTL is how long soft-deleted sessions are kept.
	DeletedTTL time.Duration `yaml:"deleted_ttl"`

	// PurgeHourUTC is the hour of day (0-23) the purge runs. Default: 2.
	PurgeHourUTC *int `yaml:"purge_hour_utc"`
}

// Hour returns the effective purge hour.
func (r RetentionConfig) Hour() int {
	if r.PurgeHourUTC == nil {
		return DefaultPurgeHourUTC
	}
	return *r.PurgeHourUTC
}

// RecorderConfig controls debounced session persistence.
type RecorderConfig struct {
	// SaveDelay is the quiet period before a pending change is written.
	SaveDelay time.Duration `yaml:"save_delay"`
}

// MCPConfig controls the MCP study tools server.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path the streamable transport is mounted on.
	Path string `yaml:"path"`
}

// ObserveConfig controls telemetry.
type ObserveConfig struct {
	// ServiceName is reported in telemetry. Default: "scribecat".
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces sampled, in (0, 1]. Zero
	// samples everything.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ApplyDefaults fills zero-valued fields with their defaults. It is called
// by [LoadFromReader] before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.CORSOrigin == "" {
		cfg.Server.CORSOrigin = DefaultCORSOrigin
	}

	a := &cfg.Annotation
	if a.ContextMinWords == 0 {
		a.ContextMinWords = DefaultContextMinWords
	}
	if a.ContextInterval == 0 {
		a.ContextInterval = DefaultContextInterval
	}
	if a.NotesMinWords == 0 {
		a.NotesMinWords = DefaultNotesMinWords
	}
	if a.NotesInterval == 0 {
		a.NotesInterval = DefaultNotesInterval
	}
	if a.RecentWindowWords == 0 {
		a.RecentWindowWords = DefaultRecentWindowWords
	}
	if a.MaxBufferChars == 0 {
		a.MaxBufferChars = DefaultMaxBufferChars
	}
	if a.RequestTimeout == 0 {
		a.RequestTimeout = DefaultRequestTimeout
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageMemory
	}
	if cfg.Storage.RecordingsDir == "" {
		cfg.Storage.RecordingsDir = DefaultRecordingsDir
	}
	if cfg.Storage.EmbeddingDimensions == 0 && cfg.Providers.Embeddings.Name != "" {
		cfg.Storage.EmbeddingDimensions = DefaultEmbeddingDims
	}

	if cfg.Retention.DeletedTTL == 0 {
		cfg.Retention.DeletedTTL = DefaultDeletedTTL
	}
	if cfg.Recorder.SaveDelay == 0 {
		cfg.Recorder.SaveDelay = DefaultSaveDelay
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
	if cfg.Observe.ServiceName == "" {
		cfg.Observe.ServiceName = "scribecat"
	}
}
