package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"assemblyai"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} references in secrets and DSNs so credentials
// can stay out of the file.
func expandEnv(cfg *Config) {
	entries := []*ProviderEntry{&cfg.Providers.LLM, &cfg.Providers.ContextLLM, &cfg.Providers.STT, &cfg.Providers.Embeddings}
	for i := range cfg.Providers.LLMFallbacks {
		entries = append(entries, &cfg.Providers.LLMFallbacks[i])
	}
	for _, e := range entries {
		e.APIKey = os.ExpandEnv(e.APIKey)
		e.BaseURL = os.ExpandEnv(e.BaseURL)
	}
	cfg.Storage.DSN = os.ExpandEnv(cfg.Storage.DSN)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.ContextLLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" && cfg.Annotation.Endpoint == "" {
		slog.Warn("no LLM provider configured; annotation endpoints will answer 500")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; live recording and realtime tokens are unavailable")
	}

	// Annotation
	a := cfg.Annotation
	if a.ContextMinWords < 0 || a.NotesMinWords < 0 {
		errs = append(errs, errors.New("annotation min_words values must not be negative"))
	}
	if a.ContextInterval < 0 || a.NotesInterval < 0 || a.RequestTimeout < 0 {
		errs = append(errs, errors.New("annotation durations must not be negative"))
	}
	if a.RecentWindowWords < 0 || a.MaxBufferChars < 0 {
		errs = append(errs, errors.New("annotation.recent_window_words and max_buffer_chars must not be negative"))
	}
	if a.Endpoint != "" {
		if u, err := url.Parse(a.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("annotation.endpoint %q must be an absolute http(s) URL", a.Endpoint))
		}
	}

	// Storage
	switch {
	case !cfg.Storage.Driver.IsValid():
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: memory, sqlite, postgres", cfg.Storage.Driver))
	case cfg.Storage.Driver != StorageMemory && strings.TrimSpace(cfg.Storage.DSN) == "":
		errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", cfg.Storage.Driver))
	}
	if cfg.Storage.EmbeddingDimensions < 0 {
		errs = append(errs, errors.New("storage.embedding_dimensions must not be negative"))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.Driver != StoragePostgres {
		slog.Warn("providers.embeddings is configured but semantic search needs storage.driver postgres")
	}

	// Retention
	if cfg.Retention.DeletedTTL < 0 {
		errs = append(errs, errors.New("retention.deleted_ttl must not be negative"))
	}
	if h := cfg.Retention.Hour(); h < 0 || h > 23 {
		errs = append(errs, fmt.Errorf("retention.purge_hour_utc %d is out of range [0, 23]", h))
	}

	// Recorder
	if cfg.Recorder.SaveDelay < 0 {
		errs = append(errs, errors.New("recorder.save_delay must not be negative"))
	}

	// MCP
	if cfg.MCP.Enabled && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	// Observe
	if r := cfg.Observe.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("observe.sample_ratio %.2f is out of range [0, 1]", r))
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
