package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_TG_TOKEN", "123:abc")
	path := writeConfig(t, `{
		"providers": {
			"openai": {"enabled": true, "apiKey": "${TEST_TG_TOKEN}"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Providers["openai"].APIKey != "123:abc" {
		t.Fatalf("env var not expanded: %q", cfg.Providers["openai"].APIKey)
	}
}

func TestLoad_UnsetEnvBecomesEmpty(t *testing.T) {
	path := writeConfig(t, `{
		"providers": {
			"openai": {"apiKey": "${DEFINITELY_NOT_SET_12345}"}
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Providers["openai"].APIKey != "" {
		t.Fatalf("unset env var should expand to empty, got %q", cfg.Providers["openai"].APIKey)
	}
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `{"general": {"logLevel": "debug"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.LogLevel != "debug" {
		t.Fatalf("expected override, got %q", cfg.General.LogLevel)
	}
	if cfg.General.MaxRounds != 8 {
		t.Fatalf("unset fields must keep defaults, got MaxRounds=%d", cfg.General.MaxRounds)
	}
	if cfg.Registry.ReconcileInterval != "@every 15s" {
		t.Fatalf("expected default reconcile interval, got %q", cfg.Registry.ReconcileInterval)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"general": `)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := Defaults()
	cfg.Quota.DailyLimit = 42

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Quota.DailyLimit != 42 {
		t.Fatalf("expected 42, got %d", loaded.Quota.DailyLimit)
	}
}
