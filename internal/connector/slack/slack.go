package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"omnigate/internal/connector"
	"omnigate/internal/domain"
)

const maxMsgLen = 4000

// Connector bridges a Slack app into the pipeline over Socket Mode, so no
// public webhook endpoint is needed.
type Connector struct {
	*connector.Base

	botToken string
	appToken string

	client *slack.Client
	socket *socketmode.Client
	botUID string
	cancel context.CancelFunc
}

type channelConfig struct {
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"`
}

// New is the factory constructor for channel type "slack".
func New(rec domain.ChannelRecord, base *connector.Base) (domain.Connector, error) {
	var cfg channelConfig
	if err := json.Unmarshal([]byte(rec.Config), &cfg); err != nil {
		return nil, fmt.Errorf("slack config: %w", err)
	}
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack config: missing botToken or appToken")
	}
	return &Connector{
		Base:     base,
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
	}, nil
}

func (c *Connector) Start(ctx context.Context) error {
	c.SetStatus(domain.StatusConnecting, "")

	api := slack.New(c.botToken, slack.OptionAppLevelToken(c.appToken))
	authResp, err := api.AuthTest()
	if err != nil {
		c.SetStatus(domain.StatusError, err.Error())
		return fmt.Errorf("slack auth: %w", err)
	}
	c.client = api
	c.botUID = authResp.UserID
	c.Logger().Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	c.socket = socketmode.New(api)

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.eventLoop(loopCtx)
	go func() {
		if err := c.socket.RunContext(loopCtx); err != nil && loopCtx.Err() == nil {
			c.Logger().Error("slack socket mode stopped", "err", err)
			c.SetStatus(domain.StatusDisconnected, err.Error())
		}
	}()

	c.SetStatus(domain.StatusConnected, "")
	return nil
}

func (c *Connector) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				c.socket.Ack(*evt.Request)
				c.handleEventsAPI(ctx, apiEvent)

			case socketmode.EventTypeConnected:
				c.SetStatus(domain.StatusConnected, "")

			case socketmode.EventTypeDisconnect:
				c.SetStatus(domain.StatusDisconnected, "")

			default:
				// Ack everything else so Socket Mode stays connected.
				if evt.Request != nil {
					c.socket.Ack(*evt.Request)
				}
			}
		}
	}
}

func (c *Connector) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.User == c.botUID || ev.User == "" || ev.SubType != "" {
			return
		}
		c.inbound(ctx, ev.Channel, ev.User, ev.Text)

	case *slackevents.AppMentionEvent:
		content := ev.Text
		if idx := strings.Index(content, ">"); idx >= 0 {
			content = strings.TrimSpace(content[idx+1:])
		}
		c.inbound(ctx, ev.Channel, ev.User, content)
	}
}

func (c *Connector) inbound(ctx context.Context, channel, user, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.HandleIncoming(ctx, connector.Inbound{
		Peer:     channel,
		PeerName: user,
		Text:     text,
		Reply: func(ctx context.Context, reply string) error {
			return c.Send(ctx, channel, reply)
		},
		ReplyImage: func(ctx context.Context, url, caption string) error {
			return c.SendImage(ctx, channel, url, caption)
		},
	})
}

func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.Drain()
	c.SetStatus(domain.StatusDisconnected, "")
	return nil
}

func (c *Connector) Send(ctx context.Context, peer, text string) error {
	if c.client == nil {
		return fmt.Errorf("slack client not started")
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
		_, _, err := c.client.PostMessageContext(ctx, peer, slack.MsgOptionText(chunk, false))
		if err != nil {
			return fmt.Errorf("slack send: %w", err)
		}
	}
	return nil
}

func (c *Connector) SendImage(ctx context.Context, peer, url, caption string) error {
	if c.client == nil {
		return fmt.Errorf("slack client not started")
	}
	_, _, err := c.client.PostMessageContext(ctx, peer,
		slack.MsgOptionAttachments(slack.Attachment{ImageURL: url, Text: caption}))
	if err != nil {
		return fmt.Errorf("slack send image: %w", err)
	}
	return nil
}
