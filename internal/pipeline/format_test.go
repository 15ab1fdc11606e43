package pipeline

import (
	"strings"
	"testing"
)

func TestFormatFor_WhatsAppBold(t *testing.T) {
	got := FormatFor("whatsapp", "this is **important** news")
	if got != "this is *important* news" {
		t.Fatalf("expected single-asterisk bold, got %q", got)
	}
}

func TestFormatFor_SlackItalic(t *testing.T) {
	got := FormatFor("slack", "some *emphasis* here")
	if got != "some _emphasis_ here" {
		t.Fatalf("expected underscore italics, got %q", got)
	}
}

func TestFormatFor_SlackBold(t *testing.T) {
	got := FormatFor("slack", "**bold** statement")
	if !strings.HasPrefix(got, "*bold*") {
		t.Fatalf("expected mrkdwn bold, got %q", got)
	}
}

func TestFormatFor_SlackMixedBoldItalic(t *testing.T) {
	got := FormatFor("slack", "**bold** and *italic* text")
	if got != "*bold* and _italic_ text" {
		t.Fatalf("converted bold must survive the italics rewrite, got %q", got)
	}
}

func TestFormatFor_TelegramStripsHeaders(t *testing.T) {
	got := FormatFor("telegram", "## Summary\nall good")
	if strings.Contains(got, "#") {
		t.Fatalf("headers must be stripped for telegram, got %q", got)
	}
}

func TestFormatFor_DiscordUntouched(t *testing.T) {
	in := "**bold** and *italic* and `code`"
	if got := FormatFor("discord", in); got != in {
		t.Fatalf("discord markdown must pass through, got %q", got)
	}
}

func TestFormatStage_AppliesAtMostOnce(t *testing.T) {
	stage := FormatStage()
	c := &Context{Channel: "whatsapp", Reply: "**hi**"}

	if err := stage(c, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := c.Reply
	if first != "*hi*" {
		t.Fatalf("expected *hi*, got %q", first)
	}

	// Running the stage again must not reprocess the already formatted text.
	if err := stage(c, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Reply != first {
		t.Fatalf("second pass changed the reply: %q -> %q", first, c.Reply)
	}
}

func TestFormatStage_EmptyReplySkipped(t *testing.T) {
	stage := FormatStage()
	c := &Context{Channel: "slack"}
	if err := stage(c, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Formatted {
		t.Fatalf("empty reply must not be marked formatted")
	}
}
