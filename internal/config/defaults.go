package config

import "path/filepath"

// Defaults returns a config with working defaults for a local deployment.
func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			DataDir:         dir,
			LogLevel:        "info",
			DefaultProvider: "ollama",
			MaxRounds:       8,
			MaxToolCalls:    20,
			HistoryLimit:    50,
		},
		Providers: map[string]ProviderConfig{
			"ollama": {
				Enabled:      true,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
				CheapModel:   "llama3.2:3b",
			},
			"openai": {
				APIKey:       "${OPENAI_API_KEY}",
				DefaultModel: "gpt-4o",
				CheapModel:   "gpt-4o-mini",
			},
			"claude": {
				APIKey:       "${ANTHROPIC_API_KEY}",
				DefaultModel: "claude-sonnet-4-5-20250514",
				CheapModel:   "claude-3-5-haiku-20241022",
			},
		},
		Routing: RoutingConfig{Enabled: true},
		Pipeline: PipelineConfig{
			Footer:       "",
			MemoryRecall: 5,
			NewsPrefetch: true,
			EnrichLinks:  true,
		},
		Quota: QuotaConfig{
			DailyLimit: 200,
			Message:    "Daily message limit reached. Please try again tomorrow.",
		},
		Registry: RegistryConfig{
			ReconcileInterval: "@every 15s",
			BackoffBase:       2,
			BackoffCap:        60,
			BackoffAttempts:   8,
		},
		Store: StoreConfig{
			DBPath: filepath.Join(dir, "gateway.db"),
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8095",
		},
		Enrich: EnrichConfig{
			UseBrowser: false,
			ProfileDir: filepath.Join(dir, "chrome-profile"),
		},
		Personas: PersonaConfig{
			Dir:     filepath.Join(dir, "personas"),
			Default: "assistant",
		},
	}
}
