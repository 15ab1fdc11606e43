package pipeline

import (
	"log/slog"
	"net/http"
	"regexp"

	"omnigate/internal/tool"
)

// Questions about current events get a search pre-fetch so even models
// without live knowledge can answer from fresh context.
var newsRe = regexp.MustCompile(`(?i)\b(news|headlines?|today|latest|current(ly)?|right now|this week)\b`)

// NewsStage runs after prompt assembly and folds the pre-fetched context
// into the system message.
func NewsStage(client *http.Client, logger *slog.Logger) Stage {
	if client == nil {
		client = http.DefaultClient
	}
	return func(c *Context, next func() error) error {
		if !newsRe.MatchString(c.Incoming) {
			return next()
		}

		result, err := tool.Search(c.Ctx, client, c.Incoming)
		if err != nil || result == "" {
			if err != nil {
				logger.Debug("news prefetch failed", "err", err)
			}
			return next()
		}
		c.News = result

		// The system message is always first once prompt assembly ran.
		if len(c.Messages) > 0 && c.Messages[0].Role == "system" {
			c.Messages[0].Content += "\n\nRecent context from a web search:\n" + result
		}
		return next()
	}
}
