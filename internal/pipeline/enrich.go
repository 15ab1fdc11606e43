package pipeline

import (
	"log/slog"

	"omnigate/internal/enrich"
)

const maxLinksPerMessage = 3

// EnrichStage resolves previews for links in the message so the model can
// talk about the linked content. Failures drop the preview, never the
// message.
func EnrichStage(fetcher *enrich.Fetcher, logger *slog.Logger) Stage {
	return func(c *Context, next func() error) error {
		urls := enrich.ExtractURLs(c.Incoming, maxLinksPerMessage)
		for _, u := range urls {
			p, err := fetcher.Fetch(c.Ctx, u)
			if err != nil {
				logger.Debug("link preview failed", "url", u, "err", err)
				continue
			}
			if p.Title != "" || p.Description != "" {
				c.Previews = append(c.Previews, p.String())
			}
		}
		return next()
	}
}
