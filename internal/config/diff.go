package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AnnotationChanged is true when any trigger threshold changed.
	AnnotationChanged bool
	NewAnnotation     AnnotationConfig

	// RestartRequired lists sections that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Trigger thresholds
	oa, na := old.Annotation, new.Annotation
	if oa.ContextMinWords != na.ContextMinWords ||
		oa.ContextInterval != na.ContextInterval ||
		oa.NotesMinWords != na.NotesMinWords ||
		oa.NotesInterval != na.NotesInterval {
		d.AnnotationChanged = true
		d.NewAnnotation = na
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.CORSOrigin != new.Server.CORSOrigin {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}

	return d
}

func sameProviders(a, b ProvidersConfig) bool {
	if len(a.LLMFallbacks) != len(b.LLMFallbacks) {
		return false
	}
	for i := range a.LLMFallbacks {
		if !sameEntry(a.LLMFallbacks[i], b.LLMFallbacks[i]) {
			return false
		}
	}
	return sameEntry(a.LLM, b.LLM) &&
		sameEntry(a.ContextLLM, b.ContextLLM) &&
		sameEntry(a.STT, b.STT) &&
		sameEntry(a.Embeddings, b.Embeddings)
}

// sameEntry compares the fixed fields of two entries; Options are ignored.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
