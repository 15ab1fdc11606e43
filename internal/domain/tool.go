package domain

import (
	"context"
	"sync"
)

// Tool is the interface for agent capabilities (search, calculator,
// reminders, cross-platform sends). Stateless tools ignore the invocation.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any, inv *ToolInvocation) (string, error)
}

// MessageSender abstracts the connector registry so tools can send through
// any live connector without importing it.
type MessageSender interface {
	SendVia(ctx context.Context, key ConnectorKey, peer, text string) error
	LiveKeys(owner string) []ConnectorKey
}

// ImageAttachment is one generated image queued for delivery with the
// reply. The URL points at an external render; connectors that cannot
// embed media send it as text.
type ImageAttachment struct {
	URL     string
	Caption string
}

// ToolInvocation is the request-scoped context handed to tools that need
// to reach the store or other live connectors.
type ToolInvocation struct {
	Owner          string
	Channel        string
	Mode           ConnectionMode
	Peer           string
	ConversationID string
	Store          Store
	Sender         MessageSender

	mu     sync.Mutex
	images []ImageAttachment
}

// AddImage queues an image for delivery alongside the text reply. Safe
// for concurrent use; tools may run in parallel.
func (inv *ToolInvocation) AddImage(url, caption string) {
	inv.mu.Lock()
	inv.images = append(inv.images, ImageAttachment{URL: url, Caption: caption})
	inv.mu.Unlock()
}

// Images returns the queued attachments in arrival order.
func (inv *ToolInvocation) Images() []ImageAttachment {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]ImageAttachment, len(inv.images))
	copy(out, inv.images)
	return out
}
