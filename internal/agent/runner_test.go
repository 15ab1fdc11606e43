package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"omnigate/internal/domain"
	"omnigate/internal/tool"
)

// scriptedProvider returns each response in order, then repeats the last.
type scriptedProvider struct {
	responses []*domain.ChatResponse
	err       error
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	i := p.calls - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) Name() string              { return "scripted" }
func (p *scriptedProvider) Models() []string          { return nil }
func (p *scriptedProvider) SupportsToolCalling() bool { return true }

func (p *scriptedProvider) Healthy(ctx context.Context) error {
	return nil
}

type countingTool struct {
	name  string
	count atomic.Int64
	fail  bool
}

func (t *countingTool) Name() string               { return t.name }
func (t *countingTool) Description() string        { return "test tool" }
func (t *countingTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (t *countingTool) Execute(ctx context.Context, args map[string]any, inv *domain.ToolInvocation) (string, error) {
	t.count.Add(1)
	if t.fail {
		return "", errors.New("tool exploded")
	}
	return "tool output", nil
}

func toolCallResponse(names ...string) *domain.ChatResponse {
	resp := &domain.ChatResponse{FinishReason: "tool_calls"}
	for i, n := range names {
		resp.ToolCalls = append(resp.ToolCalls, domain.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      n,
			Arguments: map[string]any{},
		})
	}
	return resp
}

func newTestRunner(t *testing.T, tools ...domain.Tool) *Runner {
	t.Helper()
	reg := tool.NewRegistry(slog.Default())
	for _, tl := range tools {
		reg.Register(tl)
	}
	return NewRunner(RunnerConfig{Tools: reg, Logger: slog.Default()})
}

func TestRun_PlainAnswerNoTools(t *testing.T) {
	prov := &scriptedProvider{responses: []*domain.ChatResponse{
		{Content: "42", FinishReason: "stop"},
	}}
	r := newTestRunner(t)

	res, err := r.Run(context.Background(), RunInput{Provider: prov})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reply != "42" {
		t.Fatalf("expected 42, got %q", res.Reply)
	}
	if res.Rounds != 1 {
		t.Fatalf("expected 1 round, got %d", res.Rounds)
	}
}

func TestRun_ToolThenAnswer(t *testing.T) {
	ct := &countingTool{name: "lookup"}
	prov := &scriptedProvider{responses: []*domain.ChatResponse{
		toolCallResponse("lookup"),
		{Content: "found it", FinishReason: "stop"},
	}}
	r := newTestRunner(t, ct)

	res, err := r.Run(context.Background(), RunInput{Provider: prov})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reply != "found it" {
		t.Fatalf("expected final answer, got %q", res.Reply)
	}
	if ct.count.Load() != 1 {
		t.Fatalf("expected 1 tool execution, got %d", ct.count.Load())
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "lookup" {
		t.Fatalf("expected ToolsUsed [lookup], got %v", res.ToolsUsed)
	}
}

func TestRun_RoundCapReturnsFallback(t *testing.T) {
	ct := &countingTool{name: "lookup"}
	// Model never stops asking for tools.
	prov := &scriptedProvider{responses: []*domain.ChatResponse{
		toolCallResponse("lookup"),
	}}
	reg := tool.NewRegistry(slog.Default())
	reg.Register(ct)
	r := NewRunner(RunnerConfig{Tools: reg, Logger: slog.Default(), MaxRounds: 3, MaxToolCalls: 100})

	res, err := r.Run(context.Background(), RunInput{Provider: prov})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Rounds != 3 {
		t.Fatalf("expected 3 rounds, got %d", res.Rounds)
	}
	if res.Reply != roundLimitReply {
		t.Fatalf("expected round limit reply, got %q", res.Reply)
	}
}

func TestRun_ToolCallCapSkipsExecution(t *testing.T) {
	ct := &countingTool{name: "lookup"}
	prov := &scriptedProvider{responses: []*domain.ChatResponse{
		toolCallResponse("lookup", "lookup", "lookup"),
		{Content: "done", FinishReason: "stop"},
	}}
	reg := tool.NewRegistry(slog.Default())
	reg.Register(ct)
	r := NewRunner(RunnerConfig{Tools: reg, Logger: slog.Default(), MaxRounds: 5, MaxToolCalls: 2})

	res, err := r.Run(context.Background(), RunInput{Provider: prov})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct.count.Load() != 2 {
		t.Fatalf("expected exactly 2 executions under cap 2, got %d", ct.count.Load())
	}
	// The capped call still shows up in ToolsUsed; the model saw a request.
	if len(res.ToolsUsed) != 3 {
		t.Fatalf("expected 3 requested tools recorded, got %v", res.ToolsUsed)
	}
	if res.Reply != "done" {
		t.Fatalf("expected final answer after cap, got %q", res.Reply)
	}
}

func TestRun_ToolErrorFedBackNotFatal(t *testing.T) {
	ct := &countingTool{name: "lookup", fail: true}
	prov := &scriptedProvider{responses: []*domain.ChatResponse{
		toolCallResponse("lookup"),
		{Content: "recovered", FinishReason: "stop"},
	}}
	r := newTestRunner(t, ct)

	res, err := r.Run(context.Background(), RunInput{Provider: prov})
	if err != nil {
		t.Fatalf("tool error must not abort the run: %v", err)
	}
	if res.Reply != "recovered" {
		t.Fatalf("expected model to continue after tool failure, got %q", res.Reply)
	}
}

func TestRun_ProviderErrorAborts(t *testing.T) {
	prov := &scriptedProvider{err: errors.New("upstream down")}
	r := newTestRunner(t)

	_, err := r.Run(context.Background(), RunInput{Provider: prov})
	if err == nil {
		t.Fatalf("expected provider error to propagate")
	}
	if !strings.Contains(err.Error(), "scripted") {
		t.Fatalf("error should name the provider, got %v", err)
	}
}

func TestRun_OnRoundCalledEveryRound(t *testing.T) {
	ct := &countingTool{name: "lookup"}
	prov := &scriptedProvider{responses: []*domain.ChatResponse{
		toolCallResponse("lookup"),
		{Content: "ok", FinishReason: "stop"},
	}}
	r := newTestRunner(t, ct)

	rounds := 0
	_, err := r.Run(context.Background(), RunInput{
		Provider: prov,
		OnRound:  func() { rounds++ },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rounds != 2 {
		t.Fatalf("expected OnRound twice, got %d", rounds)
	}
}
