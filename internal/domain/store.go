package domain

import (
	"context"
	"time"
)

// ChannelRecord is one configured channel row. The dashboard owns the
// schema; the gateway consumes it through this contract.
type ChannelRecord struct {
	Owner     string
	Channel   string
	Mode      ConnectionMode
	Config    string // JSON blob, channel-specific credentials and options
	Enabled   bool
	Status    ConnectorStatus
	AutoReply bool
	UpdatedAt time.Time
}

func (r ChannelRecord) Key() ConnectorKey {
	return ConnectorKey{Owner: r.Owner, Channel: r.Channel, Mode: r.Mode}
}

type Conversation struct {
	ID        string
	Owner     string
	Channel   string
	Peer      string
	Provider  string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MessageRecord struct {
	ID             int64
	ConversationID string
	Role           string
	Content        string
	Direction      string // in | out
	Provider       string
	Model          string
	Intent         string
	Complexity     string
	ToolCalls      string // JSON-encoded []ToolCall
	ToolCallID     string
	ToolName       string
	CreatedAt      time.Time
}

// Contact is the lightweight per-peer record upserted on every inbound
// message. Last write wins on the display name.
type Contact struct {
	Owner       string
	Channel     string
	Peer        string
	DisplayName string
	LastSeen    time.Time
}

// Fact is one long-term memory entry.
type Fact struct {
	ID          int64
	Owner       string
	Content     string
	Category    string
	AccessCount int
	CreatedAt   time.Time
}

type Reminder struct {
	ID        int64
	Owner     string
	Channel   string
	Mode      ConnectionMode
	Peer      string
	Text      string
	DueAt     time.Time
	Delivered bool
}

// Event is one audit-style row observers poll for (QR codes, connects,
// disconnects, errors).
type Event struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	Channel   string    `json:"channel"`
	Type      string    `json:"type"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistence contract the gateway consumes. Each write is an
// independent statement; no cross-statement transactions in the core.
type Store interface {
	// Channel configuration.
	ListEnabledChannels(ctx context.Context) ([]ChannelRecord, error)
	GetChannel(ctx context.Context, key ConnectorKey) (*ChannelRecord, error)
	UpsertChannel(ctx context.Context, rec ChannelRecord) error
	UpdateChannelStatus(ctx context.Context, key ConnectorKey, status ConnectorStatus) error
	SetChannelEnabled(ctx context.Context, key ConnectorKey, enabled bool) error
	SetAutoReply(ctx context.Context, key ConnectorKey, autoReply bool) error
	ClearChannelCredentials(ctx context.Context, key ConnectorKey) error

	// Conversations and messages.
	GetConversation(ctx context.Context, owner, channel, peer string) (*Conversation, error)
	CreateConversation(ctx context.Context, conv Conversation) error
	UpdateConversationModel(ctx context.Context, id, provider, model string) error
	AddMessage(ctx context.Context, rec MessageRecord) error
	GetMessages(ctx context.Context, conversationID string, limit int) ([]MessageRecord, error)

	// Contacts.
	UpsertContact(ctx context.Context, c Contact) error
	GetContact(ctx context.Context, owner, channel, peer string) (*Contact, error)

	// Long-term memory facts.
	SaveFact(ctx context.Context, f Fact) error
	SearchFacts(ctx context.Context, owner, query string, limit int) ([]Fact, error)
	TouchFacts(ctx context.Context, ids []int64) error

	// Reminders.
	AddReminder(ctx context.Context, r Reminder) (int64, error)
	DueReminders(ctx context.Context, now time.Time) ([]Reminder, error)
	MarkReminderDelivered(ctx context.Context, id int64) error

	// Audit events.
	AddEvent(ctx context.Context, e Event) error
	RecentEvents(ctx context.Context, owner, channel string, limit int) ([]Event, error)

	Close() error
}
