package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"omnigate/internal/agent"
	"omnigate/internal/config"
	"omnigate/internal/connector"
	"omnigate/internal/connector/discord"
	"omnigate/internal/connector/slack"
	"omnigate/internal/connector/telegram"
	"omnigate/internal/connector/whatsapp"
	"omnigate/internal/enrich"
	"omnigate/internal/metrics"
	"omnigate/internal/persona"
	"omnigate/internal/pipeline"
	"omnigate/internal/provider"
	"omnigate/internal/quota"
	"omnigate/internal/reminder"
	"omnigate/internal/store"
	"omnigate/internal/tool"
)

// Gateway wires the full process: store, providers, tools, pipeline,
// connector registry, reminder scheduler, and the control API.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	store     *store.SQLite
	metrics   *metrics.Gateway
	providers *provider.Factory
	registry  *connector.Registry
	reminders *reminder.Scheduler
	relay     *Relay
	api       *APIServer

	cancel context.CancelFunc
}

// New assembles every component from the config. Nothing is started yet;
// call Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(cfg.Store.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := metrics.NewGateway()

	var tracker *quota.Tracker
	if cfg.Quota.DailyLimit > 0 {
		tracker = quota.NewTracker(cfg.Quota.DailyLimit)
	}

	tools := tool.NewRegistry(logger)
	tools.Register(tool.NewCalculatorTool())
	tools.Register(tool.NewWebSearchTool())
	tools.Register(tool.NewWebFetchTool())
	tools.Register(tool.NewRememberTool())
	tools.Register(tool.NewRecallTool())
	tools.Register(tool.NewReminderTool())
	tools.Register(tool.NewSendMessageTool())
	tools.Register(tool.NewContactTool())

	providers := provider.NewFactory(cfg, logger)

	runner := agent.NewRunner(agent.RunnerConfig{
		Tools:        tools,
		Metrics:      m,
		Logger:       logger,
		MaxRounds:    cfg.General.MaxRounds,
		MaxToolCalls: cfg.General.MaxToolCalls,
	})

	personas, err := persona.LoadDirectory(cfg.Personas.Dir, cfg.Personas.Default, logger)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}

	var renderer enrich.Renderer
	if cfg.Enrich.UseBrowser {
		renderer = enrich.NewBrowser(enrich.BrowserConfig{
			ProfileDir: cfg.Enrich.ProfileDir,
			Logger:     logger,
		})
	}
	fetcher := enrich.NewFetcher(enrich.FetcherConfig{Renderer: renderer, Logger: logger})

	pipe := buildPipeline(cfg, pipelineDeps{
		store:    st,
		tracker:  tracker,
		metrics:  m,
		logger:   logger,
		tools:    tools,
		factory:  providers,
		runner:   runner,
		personas: personas,
		fetcher:  fetcher,
	})

	relay := NewRelay(logger)
	webhooks := whatsapp.NewWebhookRouter()

	factory := connector.NewFactory()
	factory.Register("telegram", telegram.New)
	factory.Register("discord", discord.New)
	factory.Register("slack", slack.New)
	factory.Register("whatsapp", whatsapp.NewConstructor(webhooks, cfg.General.DataDir))

	registry := connector.NewRegistry(connector.RegistryConfig{
		Store:   st,
		Factory: factory,
		Deps: connector.Deps{
			Store:    st,
			Pipeline: pipe,
			Sink:     relay,
			Metrics:  m,
			Logger:   logger,
		},
		Backoff: connector.NewBackoff(
			cfg.Registry.BackoffBase,
			cfg.Registry.BackoffCap,
			cfg.Registry.BackoffAttempts,
		),
		Logger:  logger,
		Metrics: m,
	})

	reminders := reminder.New(reminder.Config{
		Store:  st,
		Sender: registry,
		Logger: logger,
	})

	g := &Gateway{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		metrics:   m,
		providers: providers,
		registry:  registry,
		reminders: reminders,
		relay:     relay,
	}

	if cfg.API.Enabled {
		g.api = NewAPIServer(APIServerConfig{
			Listen:   cfg.API.Listen,
			Registry: registry,
			Store:    st,
			Relay:    relay,
			Metrics:  m,
			Webhooks: webhooks,
			Logger:   logger,
		})
	}
	return g, nil
}

type pipelineDeps struct {
	store    *store.SQLite
	tracker  *quota.Tracker
	metrics  *metrics.Gateway
	logger   *slog.Logger
	tools    *tool.Registry
	factory  *provider.Factory
	runner   *agent.Runner
	personas *persona.Library
	fetcher  *enrich.Fetcher
}

// buildPipeline assembles the stage chain. Order matters: quota gates
// everything, session and history load state, enrichment and memory feed
// the prompt, routing picks the model, and persistence runs last.
func buildPipeline(cfg *config.Config, d pipelineDeps) *pipeline.Pipeline {
	p := pipeline.New(
		pipeline.QuotaStage(d.tracker, cfg.Quota.Message, d.metrics, d.logger),
		pipeline.SessionStage(d.store, cfg.General.DefaultProvider),
		pipeline.HistoryStage(d.store, cfg.General.HistoryLimit),
		pipeline.EnvelopeStage(),
	)
	if cfg.Pipeline.EnrichLinks {
		p.Use(pipeline.EnrichStage(d.fetcher, d.logger))
	}
	p.Use(pipeline.MemoryStage(d.store, cfg.Pipeline.MemoryRecall, d.logger))
	p.Use(pipeline.PromptStage(d.personas, d.tools))
	if cfg.Pipeline.NewsPrefetch {
		p.Use(pipeline.NewsStage(&http.Client{Timeout: 15 * time.Second}, d.logger))
	}
	if cfg.Routing.Enabled {
		p.Use(pipeline.IntentStage(d.factory, d.logger))
	}
	p.Use(pipeline.AIStage(d.factory, d.runner, d.metrics, d.logger))
	p.Use(pipeline.FormatStage())
	p.Use(pipeline.FooterStage(cfg.Pipeline.Footer))
	p.Use(pipeline.PersistStage(d.store, d.logger))
	return p
}

// Run starts every component and blocks until the context is cancelled,
// then shuts down in reverse order.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, g.cancel = context.WithCancel(ctx)
	defer g.cancel()

	if err := g.registry.Start(ctx, g.cfg.Registry.ReconcileInterval); err != nil {
		return fmt.Errorf("start registry: %w", err)
	}
	if err := g.reminders.Start(ctx); err != nil {
		return fmt.Errorf("start reminder scheduler: %w", err)
	}
	if g.api != nil {
		g.api.Start()
	}
	g.logger.Info("gateway running",
		"db", g.cfg.Store.DBPath,
		"api", g.cfg.API.Listen,
		"defaultProvider", g.cfg.General.DefaultProvider)

	<-ctx.Done()
	g.shutdown()
	return nil
}

func (g *Gateway) shutdown() {
	g.logger.Info("gateway shutting down")

	if g.api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := g.api.Shutdown(ctx); err != nil {
			g.logger.Warn("api shutdown", "err", err)
		}
		cancel()
	}
	g.reminders.Stop()
	g.registry.StopAll()
	if err := g.store.Close(); err != nil {
		g.logger.Warn("store close", "err", err)
	}
	g.logger.Info("gateway stopped")
}

// Providers exposes the provider factory for health checks.
func (g *Gateway) Providers() *provider.Factory { return g.providers }
