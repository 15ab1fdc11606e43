// Package tool holds the process-wide tool catalogue. Registration is
// additive at startup; the registry is read-mostly afterwards.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"omnigate/internal/domain"
)

// Registry holds all available tools and executes them.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.logger.Debug("registered tool", "name", t.Name())
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Execute looks up and runs a tool. Unknown names produce a result string
// rather than an error so the model's turn is never aborted by a bad name.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, inv *domain.ToolInvocation) (string, error) {
	t := r.Get(name)
	if t == nil {
		return fmt.Sprintf("Unknown tool: %s (available: %v)", name, r.Names()), nil
	}
	return t.Execute(ctx, args, inv)
}

// Definitions returns the neutral tool schemas. Provider adapters project
// these into their backend's native format.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Summaries returns "name: description" lines for prompt assembly.
func (r *Registry) Summaries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lines := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		lines = append(lines, t.Name()+": "+t.Description())
	}
	sort.Strings(lines)
	return lines
}

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
}

// Parameters builds a JSON Schema "parameters" object for a tool.
func Parameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ArgString extracts a string argument, JSON-encoding non-string values.
func ArgString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
