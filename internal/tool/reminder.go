package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"omnigate/internal/domain"
)

// ReminderTool schedules a reminder delivered back through the connector
// the conversation came in on.
type ReminderTool struct{}

func NewReminderTool() *ReminderTool { return &ReminderTool{} }

func (t *ReminderTool) Name() string { return "set_reminder" }
func (t *ReminderTool) Description() string {
	return "Schedule a reminder to be sent to the user at a future time. Time must be RFC3339 (e.g. 2026-08-29T18:00:00Z) or a duration like 45m or 2h."
}
func (t *ReminderTool) Parameters() map[string]any {
	return Parameters(
		map[string]Param{
			"text": {Type: "string", Description: "Reminder text sent to the user"},
			"when": {Type: "string", Description: "RFC3339 timestamp or duration from now (e.g. 30m, 2h, 1h30m)"},
		},
		[]string{"text", "when"},
	)
}

func (t *ReminderTool) Execute(ctx context.Context, args map[string]any, inv *domain.ToolInvocation) (string, error) {
	if inv == nil || inv.Store == nil {
		return "", fmt.Errorf("set_reminder: no store available")
	}
	text := strings.TrimSpace(ArgString(args, "text"))
	when := strings.TrimSpace(ArgString(args, "when"))
	if text == "" || when == "" {
		return "", fmt.Errorf("set_reminder requires text and when")
	}

	due, err := parseWhen(when)
	if err != nil {
		return "", err
	}
	if !due.After(time.Now()) {
		return "That time is already in the past.", nil
	}

	id, err := inv.Store.AddReminder(ctx, domain.Reminder{
		Owner:   inv.Owner,
		Channel: inv.Channel,
		Mode:    inv.Mode,
		Peer:    inv.Peer,
		Text:    text,
		DueAt:   due,
	})
	if err != nil {
		return "", fmt.Errorf("add reminder: %w", err)
	}
	return fmt.Sprintf("Reminder #%d set for %s.", id, due.UTC().Format(time.RFC3339)), nil
}

func parseWhen(when string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, when); err == nil {
		return ts, nil
	}
	if d, err := time.ParseDuration(when); err == nil {
		return time.Now().Add(d), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q: use RFC3339 or a duration like 30m", when)
}
