package pipeline

import (
	"fmt"
	"strings"
	"time"

	"omnigate/internal/domain"
	"omnigate/internal/persona"
	"omnigate/internal/tool"
)

// PromptStage assembles the neutral message list: system prompt built from
// persona, tool summaries and recalled context, followed by history and the
// enveloped user message.
func PromptStage(personas *persona.Library, tools *tool.Registry) Stage {
	return func(c *Context, next func() error) error {
		p := personas.ForChannel(c.Channel)

		var sb strings.Builder
		sb.WriteString(p.SystemPrompt)
		if p.Style != "" {
			sb.WriteString("\n\nStyle: ")
			sb.WriteString(p.Style)
		}
		fmt.Fprintf(&sb, "\n\nCurrent time: %s.", time.Now().UTC().Format("Monday 2006-01-02 15:04 MST"))
		fmt.Fprintf(&sb, "\nYou are talking over %s.", c.Channel)

		if summaries := tools.Summaries(); len(summaries) > 0 {
			sb.WriteString("\n\nAvailable tools:\n")
			sb.WriteString(strings.Join(summaries, "\n"))
		}
		if len(c.Facts) > 0 {
			sb.WriteString("\n\nKnown facts about this user:\n")
			for _, f := range c.Facts {
				fmt.Fprintf(&sb, "- %s\n", f.Content)
			}
		}
		if len(c.Previews) > 0 {
			sb.WriteString("\nLinked content:\n")
			for _, p := range c.Previews {
				fmt.Fprintf(&sb, "- %s\n", p)
			}
		}
		c.Messages = append(c.Messages, domain.Message{Role: "system", Content: sb.String()})

		for _, h := range c.History {
			if h.Role != "user" && h.Role != "assistant" {
				continue
			}
			if h.Content == "" {
				continue
			}
			c.Messages = append(c.Messages, domain.Message{Role: h.Role, Content: h.Content})
		}

		envelope := c.Envelope
		if envelope == "" {
			envelope = c.Incoming
		}
		c.Messages = append(c.Messages, domain.Message{Role: "user", Content: envelope})
		return next()
	}
}
