package pipeline

import (
	"regexp"
	"strings"
)

var (
	boldMdRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicMdRe = regexp.MustCompile(`(^|[^*])\*([^*\n]+?)\*`)
	headerRe   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
)

// FormatStage rewrites the model's markdown for the target platform. It
// runs at most once per reply even if composed into the chain twice.
func FormatStage() Stage {
	return func(c *Context, next func() error) error {
		if c.Formatted || c.Reply == "" {
			return next()
		}
		c.Reply = FormatFor(c.Channel, c.Reply)
		c.Formatted = true
		return next()
	}
}

// FormatFor converts common markdown to what the platform renders.
func FormatFor(channel, text string) string {
	switch channel {
	case "whatsapp":
		// WhatsApp uses single-asterisk bold and single-underscore italics.
		text = boldMdRe.ReplaceAllString(text, "*$1*")
		text = headerRe.ReplaceAllString(text, "*")
	case "slack":
		// Slack mrkdwn: *bold*, _italic_. Italics rewrite first so it
		// cannot match the single-asterisk bold produced below.
		text = italicMdRe.ReplaceAllString(text, "${1}_${2}_")
		text = boldMdRe.ReplaceAllString(text, "*$1*")
		text = headerRe.ReplaceAllString(text, "*")
	case "telegram":
		// Sent as plain text; strip heavy markup that renders literally.
		text = headerRe.ReplaceAllString(text, "")
	case "discord":
		// Discord renders standard markdown untouched.
	}
	return strings.TrimSpace(text)
}
