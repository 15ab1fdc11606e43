package tool

import (
	"context"
	"fmt"
	"strings"

	"omnigate/internal/domain"
)

// SendMessageTool sends a message through one of the owner's other live
// connectors, enabling cross-platform relays ("forward this to my Slack").
type SendMessageTool struct{}

func NewSendMessageTool() *SendMessageTool { return &SendMessageTool{} }

func (t *SendMessageTool) Name() string { return "send_message" }
func (t *SendMessageTool) Description() string {
	return "Send a message to a peer on one of the user's connected platforms (telegram, discord, slack, whatsapp)."
}
func (t *SendMessageTool) Parameters() map[string]any {
	return Parameters(
		map[string]Param{
			"channel": {Type: "string", Description: "Target platform: telegram, discord, slack or whatsapp"},
			"peer":    {Type: "string", Description: "Target chat or user id on that platform"},
			"text":    {Type: "string", Description: "Message text to send"},
		},
		[]string{"channel", "peer", "text"},
	)
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]any, inv *domain.ToolInvocation) (string, error) {
	if inv == nil || inv.Sender == nil {
		return "", fmt.Errorf("send_message: no connector registry available")
	}
	channel := strings.ToLower(strings.TrimSpace(ArgString(args, "channel")))
	peer := strings.TrimSpace(ArgString(args, "peer"))
	text := ArgString(args, "text")
	if channel == "" || peer == "" || text == "" {
		return "", fmt.Errorf("send_message requires channel, peer and text")
	}

	// Find a live connector for the owner on that platform, either mode.
	var key domain.ConnectorKey
	found := false
	for _, k := range inv.Sender.LiveKeys(inv.Owner) {
		if k.Channel == channel {
			key = k
			found = true
			break
		}
	}
	if !found {
		return fmt.Sprintf("No connected %s channel for this account.", channel), nil
	}

	if err := inv.Sender.SendVia(ctx, key, peer, text); err != nil {
		return "", fmt.Errorf("send via %s: %w", key, err)
	}
	return fmt.Sprintf("Message sent to %s on %s.", peer, channel), nil
}
