package pipeline

import (
	"fmt"
	"log/slog"

	"omnigate/internal/agent"
	"omnigate/internal/metrics"
	"omnigate/internal/provider"
)

// AIStage resolves the provider for the conversation and runs the
// tool-calling loop. A provider failure aborts the chain; the connector
// turns that into an apology to the peer.
func AIStage(factory *provider.Factory, runner *agent.Runner, m *metrics.Gateway, logger *slog.Logger) Stage {
	return func(c *Context, next func() error) error {
		name := ""
		if c.Conversation != nil {
			name = c.Conversation.Provider
		}
		p, err := factory.Get(name)
		if err != nil {
			// Configured provider gone or disabled, fall back to default.
			logger.Warn("provider unavailable, using default", "requested", name, "err", err)
			p, err = factory.DefaultProvider()
			if err != nil {
				return fmt.Errorf("no usable provider: %w", err)
			}
		}
		c.Provider = p

		model := c.Model
		if model == "" && c.Conversation != nil {
			model = c.Conversation.Model
		}

		res, err := runner.Run(c.Ctx, agent.RunInput{
			Provider:   p,
			Model:      model,
			Messages:   c.Messages,
			Invocation: c.Invocation,
			OnRound:    c.Typing,
		})
		if err != nil {
			return err
		}

		c.Reply = res.Reply
		c.ToolsUsed = res.ToolsUsed
		c.Usage = res.Usage
		if c.Invocation != nil {
			c.Images = c.Invocation.Images()
		}
		if c.Model == "" {
			c.Model = model
		}
		if m != nil {
			m.RepliesTotal.Inc()
		}
		return next()
	}
}
