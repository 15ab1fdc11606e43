package persona

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona shapes how the assistant talks on a given channel or for a given
// owner. Loaded from YAML files so operators can edit them without a rebuild.
type Persona struct {
	Name         string   `yaml:"name"`
	SystemPrompt string   `yaml:"systemPrompt"`
	Style        string   `yaml:"style,omitempty"`
	Greeting     string   `yaml:"greeting,omitempty"`
	Channels     []string `yaml:"channels,omitempty"` // restrict to these channels, empty means all
}

// Library holds the loaded persona set, keyed by name.
type Library struct {
	personas map[string]Persona
	def      string
	logger   *slog.Logger
}

// LoadDirectory reads every .yaml/.yml file in dir as one persona. A missing
// directory is not an error, the library just falls back to the built-in
// default prompt.
func LoadDirectory(dir, defaultName string, logger *slog.Logger) (*Library, error) {
	lib := &Library{
		personas: make(map[string]Persona),
		def:      defaultName,
		logger:   logger,
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("persona directory does not exist, using built-in default", "dir", dir)
		return lib, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read persona dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read persona file", "path", path, "err", err)
			continue
		}

		var p Persona
		if err := yaml.Unmarshal(data, &p); err != nil {
			logger.Warn("cannot parse persona file", "path", path, "err", err)
			continue
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}

		logger.Info("loaded persona", "name", p.Name, "path", path)
		lib.personas[p.Name] = p
	}

	return lib, nil
}

// ForChannel picks the persona for a channel: the first persona listing the
// channel wins, then the configured default, then the built-in prompt.
func (l *Library) ForChannel(channel string) Persona {
	for _, p := range l.personas {
		for _, c := range p.Channels {
			if c == channel {
				return p
			}
		}
	}
	if p, ok := l.personas[l.def]; ok {
		return p
	}
	return builtin()
}

// Get returns a persona by name, or the built-in default.
func (l *Library) Get(name string) Persona {
	if p, ok := l.personas[name]; ok {
		return p
	}
	return builtin()
}

func builtin() Persona {
	return Persona{
		Name: "assistant",
		SystemPrompt: "You are a helpful personal assistant reachable over chat. " +
			"Keep replies short and conversational, suitable for a messaging app. " +
			"Use the available tools when they would genuinely help.",
	}
}
