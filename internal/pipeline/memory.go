package pipeline

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"omnigate/internal/domain"
)

// Patterns that mark a message as worth remembering without an explicit
// remember tool call.
var factPatterns = []struct {
	re       *regexp.Regexp
	category string
}{
	{regexp.MustCompile(`(?i)\bmy name is\s+(.{2,80})`), "identity"},
	{regexp.MustCompile(`(?i)\bi (?:live|am based) in\s+(.{2,80})`), "location"},
	{regexp.MustCompile(`(?i)\bi work (?:at|as|for)\s+(.{2,80})`), "work"},
	{regexp.MustCompile(`(?i)\bmy birthday is\s+(.{2,80})`), "dates"},
	{regexp.MustCompile(`(?i)\bremember that\s+(.{2,200})`), "general"},
}

// MemoryStage recalls relevant facts before the provider call and, after
// the chain finishes, extracts new facts from the inbound text.
func MemoryStage(store domain.Store, recallLimit int, logger *slog.Logger) Stage {
	return func(c *Context, next func() error) error {
		if recallLimit > 0 {
			facts, err := store.SearchFacts(c.Ctx, c.Owner, c.Incoming, recallLimit)
			if err != nil {
				logger.Debug("fact recall failed", "err", err)
			} else if len(facts) > 0 {
				c.Facts = facts
				ids := make([]int64, len(facts))
				for i, f := range facts {
					ids[i] = f.ID
				}
				if err := store.TouchFacts(c.Ctx, ids); err != nil {
					logger.Debug("fact touch failed", "err", err)
				}
			}
		}

		if err := next(); err != nil {
			return err
		}

		// Post step: the reply succeeded, harvest self-disclosed facts.
		for _, fp := range factPatterns {
			m := fp.re.FindStringSubmatch(c.Incoming)
			if m == nil {
				continue
			}
			content := strings.TrimRight(strings.TrimSpace(m[1]), ".!?")
			if content == "" {
				continue
			}
			f := domain.Fact{
				Owner:     c.Owner,
				Content:   content,
				Category:  fp.category,
				CreatedAt: time.Now().UTC(),
			}
			if err := store.SaveFact(c.Ctx, f); err != nil {
				logger.Warn("fact save failed", "err", err)
			}
		}
		return nil
	}
}
