package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"omnigate/internal/connector"
	"omnigate/internal/domain"
)

const (
	maxMsgLen      = 4000
	maxSendRetries = 3
)

// Connector bridges a Telegram bot into the pipeline via long polling.
type Connector struct {
	*connector.Base

	token     string
	allowFrom []int64

	bot    *tgbotapi.BotAPI
	cancel context.CancelFunc
}

type channelConfig struct {
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

// New is the factory constructor for channel type "telegram".
func New(rec domain.ChannelRecord, base *connector.Base) (domain.Connector, error) {
	var cfg channelConfig
	if err := json.Unmarshal([]byte(rec.Config), &cfg); err != nil {
		return nil, fmt.Errorf("telegram config: %w", err)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram config: missing token")
	}

	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}

	return &Connector{
		Base:      base,
		token:     cfg.Token,
		allowFrom: allowed,
	}, nil
}

func (c *Connector) Start(ctx context.Context) error {
	c.SetStatus(domain.StatusConnecting, "")

	bot, err := tgbotapi.NewBotAPI(c.token)
	if err != nil {
		c.SetStatus(domain.StatusError, err.Error())
		return fmt.Errorf("telegram bot init: %w", err)
	}
	c.bot = bot
	c.Logger().Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)
	c.SetStatus(domain.StatusConnected, "")

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	go c.poll(loopCtx, updates)
	return nil
}

func (c *Connector) poll(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.SetStatus(domain.StatusDisconnected, "")
			return
		case update, ok := <-updates:
			if !ok {
				c.SetStatus(domain.StatusDisconnected, "update stream closed")
				return
			}
			c.handleUpdate(ctx, update)
		}
	}
}

func (c *Connector) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !c.isAllowed(userID) {
		c.Logger().Warn("unauthorized telegram user", "user_id", userID, "username", update.Message.From.UserName)
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	peer := strconv.FormatInt(chatID, 10)
	name := strings.TrimSpace(update.Message.From.FirstName + " " + update.Message.From.LastName)
	if name == "" {
		name = update.Message.From.UserName
	}

	c.HandleIncoming(ctx, connector.Inbound{
		Peer:     peer,
		PeerName: name,
		Text:     text,
		Typing: func() {
			action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
			_, _ = c.bot.Send(action)
		},
		Reply: func(ctx context.Context, reply string) error {
			return c.Send(ctx, peer, reply)
		},
		ReplyImage: func(ctx context.Context, url, caption string) error {
			return c.SendImage(ctx, peer, url, caption)
		},
	})
}

func (c *Connector) isAllowed(userID int64) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	for _, id := range c.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.Drain()
	c.SetStatus(domain.StatusDisconnected, "")
	return nil
}

// Send chunks long replies at line boundaries and handles Telegram's 4096
// character limit and rate limiting.
func (c *Connector) Send(ctx context.Context, peer, text string) error {
	chatID, err := strconv.ParseInt(peer, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", peer, err)
	}

	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxMsgLen {
			cutAt := strings.LastIndex(chunk[:maxMsgLen], "\n")
			if cutAt < maxMsgLen/2 {
				cutAt = maxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		if err := c.sendChunk(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk tries Markdown first, falls back to plain text on parse
// errors, and backs off on HTTP 429.
func (c *Connector) sendChunk(chatID int64, text string) error {
	var lastErr error
	for attempt := 0; attempt <= maxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 {
			msg.ParseMode = tgbotapi.ModeMarkdown
		}

		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			c.Logger().Warn("telegram rate limited, backing off", "retry_after", retryAfter)
			time.Sleep(retryAfter)
			continue
		}

		if attempt == 0 && strings.Contains(errStr, "can't parse entities") {
			c.Logger().Warn("telegram markdown parse error, retrying as plain text")
			continue
		}

		return fmt.Errorf("telegram send: %w", err)
	}
	return fmt.Errorf("telegram send after %d retries: %w", maxSendRetries, lastErr)
}

func (c *Connector) SendImage(ctx context.Context, peer, url, caption string) error {
	chatID, err := strconv.ParseInt(peer, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", peer, err)
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url))
	photo.Caption = caption
	if _, err := c.bot.Send(photo); err != nil {
		return fmt.Errorf("telegram send photo: %w", err)
	}
	return nil
}
