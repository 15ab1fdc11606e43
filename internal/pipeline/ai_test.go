package pipeline

import (
	"context"
	"log/slog"
	"testing"

	"omnigate/internal/agent"
	"omnigate/internal/config"
	"omnigate/internal/domain"
	"omnigate/internal/provider"
)

type stubProvider struct {
	reply string
}

func (p *stubProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return &domain.ChatResponse{Content: p.reply}, nil
}

func (p *stubProvider) Name() string              { return "stub" }
func (p *stubProvider) Models() []string          { return []string{"stub-model"} }
func (p *stubProvider) SupportsToolCalling() bool { return false }

func (p *stubProvider) Healthy(ctx context.Context) error { return nil }

func newAIStage(t *testing.T, reply string) Stage {
	t.Helper()
	cfg := config.Defaults()
	cfg.General.DefaultProvider = "stub"
	cfg.Providers = map[string]config.ProviderConfig{"stub": {Enabled: true}}

	factory := provider.NewFactory(cfg, slog.Default())
	factory.RegisterConstructor("stub", func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return &stubProvider{reply: reply}
	})
	runner := agent.NewRunner(agent.RunnerConfig{Logger: slog.Default()})
	return AIStage(factory, runner, nil, slog.Default())
}

func TestAIStage_SetsReply(t *testing.T) {
	stage := newAIStage(t, "done")
	c := &Context{Ctx: context.Background()}

	if err := stage(c, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Reply != "done" {
		t.Fatalf("expected reply from provider, got %q", c.Reply)
	}
}

func TestAIStage_CopiesToolImagesToContext(t *testing.T) {
	stage := newAIStage(t, "here is the chart")
	inv := &domain.ToolInvocation{Owner: "alice"}
	inv.AddImage("https://img.test/a.png", "chart")
	c := &Context{Ctx: context.Background(), Invocation: inv}

	if err := stage(c, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Images) != 1 || c.Images[0].URL != "https://img.test/a.png" || c.Images[0].Caption != "chart" {
		t.Fatalf("expected tool image on the context, got %v", c.Images)
	}
}
