package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"omnigate/internal/domain"
	"omnigate/internal/store"
)

func newSessionCtx(t *testing.T) (*Context, *store.SQLite) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &Context{
		Ctx:        context.Background(),
		Owner:      "alice",
		Channel:    "telegram",
		Peer:       "42",
		Invocation: &domain.ToolInvocation{Owner: "alice", Channel: "telegram", Peer: "42"},
	}, st
}

func TestSessionStage_CreatesConversationOnFirstContact(t *testing.T) {
	c, st := newSessionCtx(t)
	stage := SessionStage(st, "claude")

	if err := stage(c, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Conversation == nil || c.Conversation.ID == "" {
		t.Fatalf("expected a conversation, got %+v", c.Conversation)
	}
	if c.Conversation.Provider != "claude" {
		t.Fatalf("expected default provider, got %q", c.Conversation.Provider)
	}
}

func TestSessionStage_SetsInvocationConversationID(t *testing.T) {
	c, st := newSessionCtx(t)
	stage := SessionStage(st, "claude")

	if err := stage(c, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Invocation.ConversationID == "" {
		t.Fatalf("invocation conversation id not set")
	}
	if c.Invocation.ConversationID != c.Conversation.ID {
		t.Fatalf("invocation id %q does not match conversation %q",
			c.Invocation.ConversationID, c.Conversation.ID)
	}
}

func TestSessionStage_ReusesExistingConversation(t *testing.T) {
	c, st := newSessionCtx(t)
	stage := SessionStage(st, "claude")

	if err := stage(c, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := c.Conversation.ID

	c2 := &Context{Ctx: context.Background(), Owner: "alice", Channel: "telegram", Peer: "42"}
	if err := stage(c2, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c2.Conversation.ID != first {
		t.Fatalf("expected the same conversation on repeat contact, got %q", c2.Conversation.ID)
	}

	other := &Context{Ctx: context.Background(), Owner: "alice", Channel: "telegram", Peer: "99"}
	if err := stage(other, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Conversation.ID == first {
		t.Fatalf("different peers must not share a conversation")
	}
}
