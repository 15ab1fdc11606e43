package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"omnigate/internal/domain"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChannels_UpsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := domain.ChannelRecord{
		Owner:     "alice",
		Channel:   "telegram",
		Mode:      domain.ModeBusiness,
		Config:    `{"token":"abc"}`,
		Enabled:   true,
		Status:    domain.StatusDisconnected,
		AutoReply: true,
	}
	if err := s.UpsertChannel(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	channels, err := s.ListEnabledChannels(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("expected 1 enabled channel, got %d", len(channels))
	}
	if channels[0].Config != `{"token":"abc"}` {
		t.Fatalf("config not round-tripped: %q", channels[0].Config)
	}

	// Disabling removes it from the enabled listing.
	if err := s.SetChannelEnabled(ctx, rec.Key(), false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	channels, err = s.ListEnabledChannels(ctx)
	if err != nil {
		t.Fatalf("list after disable: %v", err)
	}
	if len(channels) != 0 {
		t.Fatalf("disabled channel still listed: %v", channels)
	}
}

func TestChannels_UpsertReplacesConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := domain.ChannelRecord{
		Owner: "alice", Channel: "slack", Mode: domain.ModeBusiness,
		Config: `{"botToken":"old"}`, Enabled: true, Status: domain.StatusDisconnected,
	}
	if err := s.UpsertChannel(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec.Config = `{"botToken":"new"}`
	if err := s.UpsertChannel(ctx, rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetChannel(ctx, rec.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Config != `{"botToken":"new"}` {
		t.Fatalf("expected updated config, got %+v", got)
	}
}

func TestClearChannelCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := domain.ChannelRecord{
		Owner: "alice", Channel: "whatsapp", Mode: domain.ModePersonal,
		Config: `{"session":"secret"}`, Enabled: true, Status: domain.StatusConnected,
	}
	if err := s.UpsertChannel(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.ClearChannelCredentials(ctx, rec.Key()); err != nil {
		t.Fatalf("clear: %v", err)
	}

	got, err := s.GetChannel(ctx, rec.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Config != "{}" {
		t.Fatalf("credentials not wiped: %q", got.Config)
	}
}

func TestConversations_MessageHistoryChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := domain.Conversation{ID: "c1", Owner: "alice", Channel: "telegram", Peer: "42"}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("create: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	for i, content := range []string{"first", "second", "third"} {
		rec := domain.MessageRecord{
			ConversationID: "c1",
			Role:           "user",
			Content:        content,
			Direction:      "in",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AddMessage(ctx, rec); err != nil {
			t.Fatalf("add message %d: %v", i, err)
		}
	}

	msgs, err := s.GetMessages(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages with limit 2, got %d", len(msgs))
	}
	// Limit keeps the newest rows, returned oldest first.
	if msgs[0].Content != "second" || msgs[1].Content != "third" {
		t.Fatalf("expected [second third], got [%s %s]", msgs[0].Content, msgs[1].Content)
	}
}

func TestContacts_LastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := domain.Contact{Owner: "alice", Channel: "discord", Peer: "u1", DisplayName: "Bob"}
	if err := s.UpsertContact(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	c.DisplayName = "Bobby"
	if err := s.UpsertContact(ctx, c); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetContact(ctx, "alice", "discord", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.DisplayName != "Bobby" {
		t.Fatalf("expected last name to win, got %+v", got)
	}
}

func TestFacts_SearchAndTouch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"lives in Berlin", "works at Acme", "birthday is in May"} {
		if err := s.SaveFact(ctx, domain.Fact{Owner: "alice", Content: content}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	facts, err := s.SearchFacts(ctx, "alice", "Berlin", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 match, got %d", len(facts))
	}

	if err := s.TouchFacts(ctx, []int64{facts[0].ID}); err != nil {
		t.Fatalf("touch: %v", err)
	}
	// Touched facts rank first on an open query.
	all, err := s.SearchFacts(ctx, "alice", "", 10)
	if err != nil {
		t.Fatalf("search all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(all))
	}
	if all[0].Content != "lives in Berlin" {
		t.Fatalf("expected touched fact first, got %q", all[0].Content)
	}
	if all[0].AccessCount != 1 {
		t.Fatalf("expected access count 1, got %d", all[0].AccessCount)
	}
}

func TestReminders_DueAndDelivered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	past := domain.Reminder{
		Owner: "alice", Channel: "telegram", Mode: domain.ModeBusiness,
		Peer: "42", Text: "call mom", DueAt: now.Add(-time.Minute),
	}
	future := past
	future.Text = "water plants"
	future.DueAt = now.Add(time.Hour)

	id, err := s.AddReminder(ctx, past)
	if err != nil {
		t.Fatalf("add past: %v", err)
	}
	if _, err := s.AddReminder(ctx, future); err != nil {
		t.Fatalf("add future: %v", err)
	}

	due, err := s.DueReminders(ctx, now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].Text != "call mom" {
		t.Fatalf("expected only the past reminder, got %v", due)
	}

	if err := s.MarkReminderDelivered(ctx, id); err != nil {
		t.Fatalf("mark: %v", err)
	}
	due, err = s.DueReminders(ctx, now)
	if err != nil {
		t.Fatalf("due again: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("delivered reminder must not come back, got %v", due)
	}
}

func TestEvents_RecentNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, typ := range []string{"connecting", "qr", "connected"} {
		e := domain.Event{
			Owner: "alice", Channel: "whatsapp", Type: typ,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AddEvent(ctx, e); err != nil {
			t.Fatalf("add event: %v", err)
		}
	}

	events, err := s.RecentEvents(ctx, "alice", "whatsapp", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != "connected" || events[1].Type != "qr" {
		t.Fatalf("expected newest first, got [%s %s]", events[0].Type, events[1].Type)
	}
}
