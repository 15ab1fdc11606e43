package tool

import (
	"context"
	"fmt"
	"strings"

	"omnigate/internal/domain"
)

// ContactTool looks up a known peer on the current platform.
type ContactTool struct{}

func NewContactTool() *ContactTool { return &ContactTool{} }

func (t *ContactTool) Name() string { return "lookup_contact" }
func (t *ContactTool) Description() string {
	return "Look up a contact the user has talked to before, by peer id, on the current platform."
}
func (t *ContactTool) Parameters() map[string]any {
	return Parameters(
		map[string]Param{
			"peer": {Type: "string", Description: "Peer id to look up"},
		},
		[]string{"peer"},
	)
}

func (t *ContactTool) Execute(ctx context.Context, args map[string]any, inv *domain.ToolInvocation) (string, error) {
	if inv == nil || inv.Store == nil {
		return "", fmt.Errorf("lookup_contact: no store available")
	}
	peer := strings.TrimSpace(ArgString(args, "peer"))
	if peer == "" {
		return "", fmt.Errorf("missing argument: peer")
	}
	c, err := inv.Store.GetContact(ctx, inv.Owner, inv.Channel, peer)
	if err != nil {
		return "", fmt.Errorf("get contact: %w", err)
	}
	if c == nil {
		return "No contact found for " + peer, nil
	}
	name := c.DisplayName
	if name == "" {
		name = "(no name)"
	}
	return fmt.Sprintf("%s (%s), last seen %s", c.Peer, name, c.LastSeen.Format("2006-01-02 15:04 MST")), nil
}
