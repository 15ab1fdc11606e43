package persona

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writePersona(t *testing.T, dir, file, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o600); err != nil {
		t.Fatalf("write persona: %v", err)
	}
}

func TestLoadDirectory_MissingDirIsNotAnError(t *testing.T) {
	lib, err := LoadDirectory(filepath.Join(t.TempDir(), "nope"), "assistant", slog.Default())
	if err != nil {
		t.Fatalf("missing dir must not fail: %v", err)
	}
	p := lib.ForChannel("telegram")
	if p.SystemPrompt == "" {
		t.Fatalf("expected built-in fallback prompt")
	}
}

func TestLoadDirectory_NameDefaultsToFilename(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "support.yaml", "systemPrompt: You handle support questions.\n")

	lib, err := LoadDirectory(dir, "assistant", slog.Default())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := lib.Get("support")
	if p.SystemPrompt != "You handle support questions." {
		t.Fatalf("expected loaded prompt, got %q", p.SystemPrompt)
	}
}

func TestForChannel_ChannelListingWins(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "assistant.yaml", "name: assistant\nsystemPrompt: general\n")
	writePersona(t, dir, "workbot.yaml", "name: workbot\nsystemPrompt: slack only\nchannels: [slack]\n")

	lib, err := LoadDirectory(dir, "assistant", slog.Default())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p := lib.ForChannel("slack"); p.Name != "workbot" {
		t.Fatalf("expected channel-scoped persona, got %s", p.Name)
	}
	if p := lib.ForChannel("telegram"); p.Name != "assistant" {
		t.Fatalf("expected default persona, got %s", p.Name)
	}
}

func TestLoadDirectory_BadYAMLSkipped(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "broken.yaml", "systemPrompt: [unclosed\n")
	writePersona(t, dir, "good.yaml", "systemPrompt: fine\n")

	lib, err := LoadDirectory(dir, "good", slog.Default())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p := lib.Get("good"); p.SystemPrompt != "fine" {
		t.Fatalf("good persona should load despite broken sibling, got %q", p.SystemPrompt)
	}
	if p := lib.Get("broken"); p.Name != "assistant" {
		t.Fatalf("broken persona must fall back to built-in, got %s", p.Name)
	}
}
