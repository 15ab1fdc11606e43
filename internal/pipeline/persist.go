package pipeline

import (
	"encoding/json"
	"log/slog"
	"time"

	"omnigate/internal/domain"
)

// PersistStage writes the inbound and outbound transcript rows. Persistence
// failures are logged, not fatal: the reply was already produced.
func PersistStage(store domain.Store, logger *slog.Logger) Stage {
	return func(c *Context, next func() error) error {
		now := time.Now().UTC()

		in := domain.MessageRecord{
			ConversationID: c.Conversation.ID,
			Role:           "user",
			Content:        c.Incoming,
			Direction:      "in",
			Intent:         c.Intent,
			Complexity:     c.Complexity,
			CreatedAt:      now,
		}
		if err := store.AddMessage(c.Ctx, in); err != nil {
			logger.Warn("persist inbound failed", "err", err)
		}

		out := domain.MessageRecord{
			ConversationID: c.Conversation.ID,
			Role:           "assistant",
			Content:        c.Reply,
			Direction:      "out",
			Model:          c.Model,
			CreatedAt:      now,
		}
		if c.Provider != nil {
			out.Provider = c.Provider.Name()
		}
		if len(c.ToolsUsed) > 0 {
			if b, err := json.Marshal(c.ToolsUsed); err == nil {
				out.ToolCalls = string(b)
			}
		}
		if err := store.AddMessage(c.Ctx, out); err != nil {
			logger.Warn("persist outbound failed", "err", err)
		}

		return next()
	}
}
