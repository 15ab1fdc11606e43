// Package store implements the gateway's persistence contract on SQLite.
// Every write is a single independent statement; message ordering is
// best-effort by design, so no cross-statement transactions are used.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"omnigate/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLite implements domain.Store.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.Store = (*SQLite)(nil)

func Open(dbPath string, logger *slog.Logger) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: modernc sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS channels (
		owner       TEXT NOT NULL,
		channel     TEXT NOT NULL,
		mode        TEXT NOT NULL,
		config      TEXT NOT NULL DEFAULT '{}',
		enabled     INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL DEFAULT 'disconnected',
		auto_reply  INTEGER NOT NULL DEFAULT 1,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner, channel, mode)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		owner       TEXT NOT NULL,
		channel     TEXT NOT NULL,
		peer        TEXT NOT NULL,
		provider    TEXT,
		model       TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_peer ON conversations(owner, channel, peer);

	CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT,
		direction       TEXT,
		provider        TEXT,
		model           TEXT,
		intent          TEXT,
		complexity      TEXT,
		tool_calls      TEXT,
		tool_call_id    TEXT,
		tool_name       TEXT,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS contacts (
		owner        TEXT NOT NULL,
		channel      TEXT NOT NULL,
		peer         TEXT NOT NULL,
		display_name TEXT,
		last_seen    DATETIME,
		PRIMARY KEY (owner, channel, peer)
	);

	CREATE TABLE IF NOT EXISTS facts (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		owner        TEXT NOT NULL,
		content      TEXT NOT NULL,
		category     TEXT,
		access_count INTEGER NOT NULL DEFAULT 0,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_facts_owner ON facts(owner);

	CREATE TABLE IF NOT EXISTS reminders (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		owner      TEXT NOT NULL,
		channel    TEXT NOT NULL,
		mode       TEXT NOT NULL,
		peer       TEXT NOT NULL,
		text       TEXT NOT NULL,
		due_at     DATETIME NOT NULL,
		delivered  INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(delivered, due_at);

	CREATE TABLE IF NOT EXISTS events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		owner      TEXT NOT NULL,
		channel    TEXT NOT NULL,
		type       TEXT NOT NULL,
		payload    TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_owner ON events(owner, channel, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- Channels ---

const channelCols = `owner, channel, mode, config, enabled, status, auto_reply, updated_at`

func (s *SQLite) ListEnabledChannels(ctx context.Context) ([]domain.ChannelRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+channelCols+` FROM channels WHERE enabled = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChannels(rows)
}

func (s *SQLite) GetChannel(ctx context.Context, key domain.ConnectorKey) (*domain.ChannelRecord, error) {
	var rec domain.ChannelRecord
	var enabled, autoReply int
	err := s.db.QueryRowContext(ctx,
		`SELECT `+channelCols+` FROM channels WHERE owner=? AND channel=? AND mode=?`,
		key.Owner, key.Channel, string(key.Mode),
	).Scan(&rec.Owner, &rec.Channel, &rec.Mode, &rec.Config, &enabled, &rec.Status, &autoReply, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Enabled = enabled != 0
	rec.AutoReply = autoReply != 0
	return &rec, nil
}

func (s *SQLite) UpsertChannel(ctx context.Context, rec domain.ChannelRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (owner, channel, mode, config, enabled, status, auto_reply, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner, channel, mode) DO UPDATE SET
		   config=excluded.config, enabled=excluded.enabled,
		   status=excluded.status, auto_reply=excluded.auto_reply,
		   updated_at=excluded.updated_at`,
		rec.Owner, rec.Channel, string(rec.Mode), rec.Config,
		boolInt(rec.Enabled), string(rec.Status), boolInt(rec.AutoReply), time.Now(),
	)
	return err
}

func (s *SQLite) UpdateChannelStatus(ctx context.Context, key domain.ConnectorKey, status domain.ConnectorStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET status=?, updated_at=? WHERE owner=? AND channel=? AND mode=?`,
		string(status), time.Now(), key.Owner, key.Channel, string(key.Mode))
	return err
}

func (s *SQLite) SetChannelEnabled(ctx context.Context, key domain.ConnectorKey, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET enabled=?, updated_at=? WHERE owner=? AND channel=? AND mode=?`,
		boolInt(enabled), time.Now(), key.Owner, key.Channel, string(key.Mode))
	return err
}

func (s *SQLite) SetAutoReply(ctx context.Context, key domain.ConnectorKey, autoReply bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET auto_reply=?, updated_at=? WHERE owner=? AND channel=? AND mode=?`,
		boolInt(autoReply), time.Now(), key.Owner, key.Channel, string(key.Mode))
	return err
}

// ClearChannelCredentials wipes the config blob after a logged-out signal
// so a stale session is never reused. The row itself stays for re-linking.
func (s *SQLite) ClearChannelCredentials(ctx context.Context, key domain.ConnectorKey) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET config='{}', updated_at=? WHERE owner=? AND channel=? AND mode=?`,
		time.Now(), key.Owner, key.Channel, string(key.Mode))
	return err
}

func scanChannels(rows *sql.Rows) ([]domain.ChannelRecord, error) {
	var recs []domain.ChannelRecord
	for rows.Next() {
		var rec domain.ChannelRecord
		var enabled, autoReply int
		if err := rows.Scan(&rec.Owner, &rec.Channel, &rec.Mode, &rec.Config,
			&enabled, &rec.Status, &autoReply, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Enabled = enabled != 0
		rec.AutoReply = autoReply != 0
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// --- Conversations and messages ---

func (s *SQLite) GetConversation(ctx context.Context, owner, channel, peer string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner, channel, peer, provider, model, created_at, updated_at
		 FROM conversations WHERE owner=? AND channel=? AND peer=?
		 ORDER BY updated_at DESC LIMIT 1`,
		owner, channel, peer,
	).Scan(&c.ID, &c.Owner, &c.Channel, &c.Peer, &c.Provider, &c.Model, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLite) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, owner, channel, peer, provider, model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Owner, conv.Channel, conv.Peer, conv.Provider, conv.Model, conv.CreatedAt, conv.UpdatedAt)
	return err
}

func (s *SQLite) UpdateConversationModel(ctx context.Context, id, provider, model string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET provider=?, model=?, updated_at=? WHERE id=?`,
		provider, model, time.Now(), id)
	return err
}

func (s *SQLite) AddMessage(ctx context.Context, rec domain.MessageRecord) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, direction, provider, model,
		   intent, complexity, tool_calls, tool_call_id, tool_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ConversationID, rec.Role, rec.Content, rec.Direction, rec.Provider, rec.Model,
		rec.Intent, rec.Complexity, rec.ToolCalls, rec.ToolCallID, rec.ToolName, rec.CreatedAt)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at=? WHERE id=?`, now, rec.ConversationID)
	return nil
}

func (s *SQLite) GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.MessageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, direction, provider, model,
		   intent, complexity, tool_calls, tool_call_id, tool_name, created_at
		 FROM messages WHERE conversation_id=?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.MessageRecord
	for rows.Next() {
		var m domain.MessageRecord
		var direction, provider, model, intent, complexity, toolCalls, toolCallID, toolName sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content,
			&direction, &provider, &model, &intent, &complexity,
			&toolCalls, &toolCallID, &toolName, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Direction = direction.String
		m.Provider = provider.String
		m.Model = model.String
		m.Intent = intent.String
		m.Complexity = complexity.String
		m.ToolCalls = toolCalls.String
		m.ToolCallID = toolCallID.String
		m.ToolName = toolName.String
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// --- Contacts ---

// UpsertContact is idempotent; the display name is last-write-wins.
func (s *SQLite) UpsertContact(ctx context.Context, c domain.Contact) error {
	if c.LastSeen.IsZero() {
		c.LastSeen = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (owner, channel, peer, display_name, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(owner, channel, peer) DO UPDATE SET
		   display_name=excluded.display_name, last_seen=excluded.last_seen`,
		c.Owner, c.Channel, c.Peer, c.DisplayName, c.LastSeen)
	return err
}

func (s *SQLite) GetContact(ctx context.Context, owner, channel, peer string) (*domain.Contact, error) {
	var c domain.Contact
	var name sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT owner, channel, peer, display_name, last_seen
		 FROM contacts WHERE owner=? AND channel=? AND peer=?`,
		owner, channel, peer,
	).Scan(&c.Owner, &c.Channel, &c.Peer, &name, &c.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.DisplayName = name.String
	return &c, nil
}

// --- Facts ---

func (s *SQLite) SaveFact(ctx context.Context, f domain.Fact) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (owner, content, category, access_count, created_at)
		 VALUES (?, ?, ?, 0, ?)`,
		f.Owner, f.Content, f.Category, f.CreatedAt)
	return err
}

func (s *SQLite) SearchFacts(ctx context.Context, owner, query string, limit int) ([]domain.Fact, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows *sql.Rows
	var err error
	if query == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, owner, content, category, access_count, created_at
			 FROM facts WHERE owner=?
			 ORDER BY access_count DESC, created_at DESC LIMIT ?`, owner, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, owner, content, category, access_count, created_at
			 FROM facts WHERE owner=? AND content LIKE ?
			 ORDER BY access_count DESC, created_at DESC LIMIT ?`,
			owner, "%"+query+"%", limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []domain.Fact
	for rows.Next() {
		var f domain.Fact
		var category sql.NullString
		if err := rows.Scan(&f.ID, &f.Owner, &f.Content, &category, &f.AccessCount, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Category = category.String
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (s *SQLite) TouchFacts(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE facts SET access_count = access_count + 1 WHERE id=?`, id); err != nil {
			return err
		}
	}
	return nil
}

// --- Reminders ---

func (s *SQLite) AddReminder(ctx context.Context, r domain.Reminder) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (owner, channel, mode, peer, text, due_at, delivered)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		r.Owner, r.Channel, string(r.Mode), r.Peer, r.Text, r.DueAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLite) DueReminders(ctx context.Context, now time.Time) ([]domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, channel, mode, peer, text, due_at, delivered
		 FROM reminders WHERE delivered=0 AND due_at <= ?
		 ORDER BY due_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rems []domain.Reminder
	for rows.Next() {
		var r domain.Reminder
		var delivered int
		if err := rows.Scan(&r.ID, &r.Owner, &r.Channel, &r.Mode, &r.Peer, &r.Text, &r.DueAt, &delivered); err != nil {
			return nil, err
		}
		r.Delivered = delivered != 0
		rems = append(rems, r)
	}
	return rems, rows.Err()
}

func (s *SQLite) MarkReminderDelivered(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET delivered=1 WHERE id=?`, id)
	return err
}

// --- Events ---

func (s *SQLite) AddEvent(ctx context.Context, e domain.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (owner, channel, type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Owner, e.Channel, e.Type, e.Payload, e.CreatedAt)
	return err
}

func (s *SQLite) RecentEvents(ctx context.Context, owner, channel string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows *sql.Rows
	var err error
	if channel == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, owner, channel, type, payload, created_at
			 FROM events WHERE owner=? ORDER BY created_at DESC, id DESC LIMIT ?`,
			owner, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, owner, channel, type, payload, created_at
			 FROM events WHERE owner=? AND channel=?
			 ORDER BY created_at DESC, id DESC LIMIT ?`,
			owner, channel, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.Owner, &e.Channel, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
