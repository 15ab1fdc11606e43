package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Config is the root configuration for the gateway.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Providers map[string]ProviderConfig `json:"providers"`
	Routing   RoutingConfig             `json:"routing"`
	Pipeline  PipelineConfig            `json:"pipeline"`
	Quota     QuotaConfig               `json:"quota"`
	Registry  RegistryConfig            `json:"registry"`
	Store     StoreConfig               `json:"store"`
	API       APIConfig                 `json:"api"`
	Enrich    EnrichConfig              `json:"enrich"`
	Personas  PersonaConfig             `json:"personas"`
}

type GeneralConfig struct {
	DataDir         string `json:"dataDir"`
	LogLevel        string `json:"logLevel"`
	DefaultProvider string `json:"defaultProvider"`
	MaxRounds       int    `json:"maxRounds"`    // agent loop round cap
	MaxToolCalls    int    `json:"maxToolCalls"` // total tool-call cap per message
	HistoryLimit    int    `json:"historyLimit"` // messages loaded per conversation
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled"`
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
	CheapModel   string `json:"cheapModel,omitempty"` // used for simple chitchat
}

// RoutingConfig tunes the intent classification stage.
type RoutingConfig struct {
	Enabled bool `json:"enabled"`
}

type PipelineConfig struct {
	Footer       string `json:"footer,omitempty"` // appended to every reply, empty disables
	MemoryRecall int    `json:"memoryRecall"`     // facts recalled per message
	NewsPrefetch bool   `json:"newsPrefetch"`
	EnrichLinks  bool   `json:"enrichLinks"`
}

type QuotaConfig struct {
	DailyLimit int    `json:"dailyLimit"` // messages per user per UTC day, 0 disables
	Message    string `json:"message,omitempty"`
}

type RegistryConfig struct {
	ReconcileInterval string `json:"reconcileInterval"` // cron spec, e.g. "@every 15s"
	BackoffBase       int    `json:"backoffBaseSeconds"`
	BackoffCap        int    `json:"backoffCapSeconds"`
	BackoffAttempts   int    `json:"backoffAttempts"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

type EnrichConfig struct {
	UseBrowser bool   `json:"useBrowser"` // render previews with headless Chrome
	ProfileDir string `json:"profileDir,omitempty"`
}

type PersonaConfig struct {
	Dir     string `json:"dir"`
	Default string `json:"default,omitempty"`
}

// envRe matches ${VAR} placeholders in the raw config text.
var envRe = regexp.MustCompile(`\$\{(\w+)\}`)

// Load reads a config file, expanding ${ENV_VAR} placeholders so secrets
// can stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := envRe.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRe.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})

	cfg := Defaults()
	if err := json.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// DefaultConfigDir returns ~/.omnigate.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".omnigate"
	}
	return filepath.Join(home, ".omnigate")
}

// DefaultConfigPath returns ~/.omnigate/config.json.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}
