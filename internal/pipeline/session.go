package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"omnigate/internal/domain"
)

// SessionStage resolves the conversation for (owner, channel, peer),
// creating one on first contact.
func SessionStage(store domain.Store, defaultProvider string) Stage {
	return func(c *Context, next func() error) error {
		conv, err := store.GetConversation(c.Ctx, c.Owner, c.Channel, c.Peer)
		if err != nil {
			return fmt.Errorf("resolve conversation: %w", err)
		}
		if conv == nil {
			conv = &domain.Conversation{
				ID:        uuid.NewString(),
				Owner:     c.Owner,
				Channel:   c.Channel,
				Peer:      c.Peer,
				Provider:  defaultProvider,
				CreatedAt: time.Now().UTC(),
			}
			if err := store.CreateConversation(c.Ctx, *conv); err != nil {
				return fmt.Errorf("create conversation: %w", err)
			}
		}
		c.Conversation = conv
		if c.Invocation != nil {
			c.Invocation.ConversationID = conv.ID
		}
		return next()
	}
}

// HistoryStage loads recent transcript rows for prompt assembly. A load
// failure is not fatal, the conversation just starts cold.
func HistoryStage(store domain.Store, limit int) Stage {
	return func(c *Context, next func() error) error {
		history, err := store.GetMessages(c.Ctx, c.Conversation.ID, limit)
		if err == nil {
			c.History = history
		}
		return next()
	}
}
