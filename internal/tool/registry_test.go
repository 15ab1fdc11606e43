package tool

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestRegistry() *Registry {
	r := NewRegistry(slog.Default())
	r.Register(NewCalculatorTool())
	r.Register(NewWebSearchTool())
	r.Register(NewRememberTool())
	return r
}

func TestExecute_UnknownToolIsNotAnError(t *testing.T) {
	r := newTestRegistry()
	result, err := r.Execute(context.Background(), "teleport", nil, nil)
	if err != nil {
		t.Fatalf("unknown tool must not abort the turn: %v", err)
	}
	if !strings.Contains(result, "Unknown tool: teleport") {
		t.Fatalf("expected unknown-tool message, got %q", result)
	}
	if !strings.Contains(result, "calculator") {
		t.Fatalf("message should list available tools, got %q", result)
	}
}

func TestDefinitions_SortedByName(t *testing.T) {
	r := newTestRegistry()
	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Name >= defs[i].Name {
			t.Fatalf("definitions not sorted: %s before %s", defs[i-1].Name, defs[i].Name)
		}
	}
}

func TestSummaries_NameColonDescription(t *testing.T) {
	r := newTestRegistry()
	for _, line := range r.Summaries() {
		if !strings.Contains(line, ": ") {
			t.Fatalf("summary line missing separator: %q", line)
		}
	}
}

func TestCalculator_Precedence(t *testing.T) {
	calc := NewCalculatorTool()
	got, err := calc.Execute(context.Background(), map[string]any{"expression": "2+3*4"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "14" {
		t.Fatalf("expected 14, got %s", got)
	}
}

func TestCalculator_Parentheses(t *testing.T) {
	calc := NewCalculatorTool()
	got, err := calc.Execute(context.Background(), map[string]any{"expression": "(2+3)*4.5"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "22.5" {
		t.Fatalf("expected 22.5, got %s", got)
	}
}

func TestCalculator_NegativeNumbers(t *testing.T) {
	calc := NewCalculatorTool()
	got, err := calc.Execute(context.Background(), map[string]any{"expression": "-3 + 10"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "7" {
		t.Fatalf("expected 7, got %s", got)
	}
}

func TestCalculator_DivisionByZero(t *testing.T) {
	calc := NewCalculatorTool()
	if _, err := calc.Execute(context.Background(), map[string]any{"expression": "1/0"}, nil); err == nil {
		t.Fatalf("expected division-by-zero error")
	}
}

func TestCalculator_TrailingGarbage(t *testing.T) {
	calc := NewCalculatorTool()
	if _, err := calc.Execute(context.Background(), map[string]any{"expression": "2+2 oops"}, nil); err == nil {
		t.Fatalf("expected error for trailing garbage")
	}
}

func TestArgString_CoercesNonStrings(t *testing.T) {
	if got := ArgString(map[string]any{"n": 42.0}, "n"); got != "42" {
		t.Fatalf("expected 42, got %q", got)
	}
	if got := ArgString(nil, "missing"); got != "" {
		t.Fatalf("expected empty for nil args, got %q", got)
	}
}
