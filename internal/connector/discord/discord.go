package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"omnigate/internal/connector"
	"omnigate/internal/domain"
)

const maxMsgLen = 2000

// Connector bridges a Discord bot into the pipeline over the gateway
// websocket. discordgo handles reconnection itself; a session that drops
// for good is picked up by the registry's staleness restart.
type Connector struct {
	*connector.Base

	token   string
	guildID string
	session *discordgo.Session
}

type channelConfig struct {
	Token   string `json:"token"`
	GuildID string `json:"guildId,omitempty"`
}

// New is the factory constructor for channel type "discord".
func New(rec domain.ChannelRecord, base *connector.Base) (domain.Connector, error) {
	var cfg channelConfig
	if err := json.Unmarshal([]byte(rec.Config), &cfg); err != nil {
		return nil, fmt.Errorf("discord config: %w", err)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord config: missing token")
	}
	return &Connector{
		Base:    base,
		token:   cfg.Token,
		guildID: cfg.GuildID,
	}, nil
}

func (c *Connector) Start(ctx context.Context) error {
	c.SetStatus(domain.StatusConnecting, "")

	session, err := discordgo.New("Bot " + c.token)
	if err != nil {
		c.SetStatus(domain.StatusError, err.Error())
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(ctx, s, m)
	})
	session.AddHandler(func(s *discordgo.Session, _ *discordgo.Connect) {
		c.SetStatus(domain.StatusConnected, "")
	})
	session.AddHandler(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		c.SetStatus(domain.StatusDisconnected, "")
	})

	if err := session.Open(); err != nil {
		c.SetStatus(domain.StatusError, err.Error())
		return fmt.Errorf("discord connect: %w", err)
	}
	c.session = session
	c.SetStatus(domain.StatusConnected, "")
	c.Logger().Info("discord bot connected", "user", session.State.User.Username)
	return nil
}

func (c *Connector) handleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	if c.guildID != "" && m.GuildID != "" && m.GuildID != c.guildID {
		return
	}
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}

	channelID := m.ChannelID
	c.HandleIncoming(ctx, connector.Inbound{
		Peer:     channelID,
		PeerName: m.Author.Username,
		Text:     text,
		Typing: func() {
			_ = c.session.ChannelTyping(channelID)
		},
		Reply: func(ctx context.Context, reply string) error {
			return c.Send(ctx, channelID, reply)
		},
		ReplyImage: func(ctx context.Context, url, caption string) error {
			return c.SendImage(ctx, channelID, url, caption)
		},
	})
}

func (c *Connector) Stop() error {
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			return fmt.Errorf("discord close: %w", err)
		}
	}
	c.Drain()
	c.SetStatus(domain.StatusDisconnected, "")
	return nil
}

// Send splits replies at Discord's 2000 character limit, cutting at line
// boundaries where possible.
func (c *Connector) Send(ctx context.Context, peer, text string) error {
	if c.session == nil {
		return fmt.Errorf("discord session not started")
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
		if _, err := c.session.ChannelMessageSend(peer, chunk); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

func (c *Connector) SendImage(ctx context.Context, peer, url, caption string) error {
	if c.session == nil {
		return fmt.Errorf("discord session not started")
	}
	_, err := c.session.ChannelMessageSendEmbed(peer, &discordgo.MessageEmbed{
		Description: caption,
		Image:       &discordgo.MessageEmbedImage{URL: url},
	})
	if err != nil {
		return fmt.Errorf("discord send embed: %w", err)
	}
	return nil
}
