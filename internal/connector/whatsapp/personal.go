package whatsapp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // session store driver

	"omnigate/internal/connector"
	"omnigate/internal/domain"
)

// Personal links a personal WhatsApp account as a companion device via the
// multi-device web protocol. First start emits QR codes as audit events
// (payload carries the raw code and a PNG for rendering); later starts
// reuse the persisted session. A server-side logout clears the stored
// credentials and is never retried automatically.
type Personal struct {
	*connector.Base

	dbPath  string
	client  *whatsmeow.Client
	ctx     context.Context
	cancel  context.CancelFunc
	backoff connector.Backoff

	reconnectGuard atomic.Bool
	attempts       atomic.Int32
	loggedOut      atomic.Bool
}

func newPersonal(rec domain.ChannelRecord, base *connector.Base, dataDir string) (domain.Connector, error) {
	dir := filepath.Join(dataDir, "whatsapp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("whatsapp session dir: %w", err)
	}
	return &Personal{
		Base:    base,
		dbPath:  filepath.Join(dir, rec.Owner+".db"),
		backoff: base.Backoff(),
	}, nil
}

func (p *Personal) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.SetStatus(domain.StatusConnecting, "")

	container, err := sqlstore.New(p.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", p.dbPath), waLog.Noop)
	if err != nil {
		p.SetStatus(domain.StatusError, err.Error())
		return fmt.Errorf("whatsapp session store: %w", err)
	}

	device, err := p.getDevice(p.ctx, container)
	if err != nil {
		p.SetStatus(domain.StatusError, err.Error())
		return fmt.Errorf("whatsapp device: %w", err)
	}
	store.SetOSInfo("Omnigate", [3]uint32{0, 1, 0})

	p.client = whatsmeow.NewClient(device, waLog.Noop)
	p.client.AddEventHandler(p.handleEvent)
	// The reconnect loop below owns retries; the library's internal one
	// would race it and burn the attempt budget.
	p.client.EnableAutoReconnect = false

	if p.client.Store.ID == nil {
		// No session yet: run the QR pairing flow in the background so
		// Start returns and the dashboard can poll for the code.
		go func() {
			if err := p.loginWithQR(p.ctx); err != nil {
				p.Logger().Warn("whatsapp QR login not completed", "err", err)
			}
		}()
		return nil
	}

	if err := p.client.Connect(); err != nil {
		p.SetStatus(domain.StatusError, err.Error())
		return fmt.Errorf("whatsapp connect: %w", err)
	}
	return nil
}

func (p *Personal) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR drives the pairing flow. Each QR code is emitted as a "qr"
// audit event whose payload carries the raw code plus a base64 PNG.
func (p *Personal) loginWithQR(ctx context.Context) error {
	qrChan, err := p.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := p.client.Connect(); err != nil {
		return fmt.Errorf("connect for qr: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.SetStatus(domain.StatusDisconnected, "")
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("qr channel closed")
			}
			switch evt.Event {
			case "code":
				p.SetStatus(domain.StatusQR, p.qrPayload(evt.Code))
			case "success":
				p.attempts.Store(0)
				// Connected event handler sets the final status.
				p.Logger().Info("whatsapp paired", "owner", p.Key().Owner)
				return nil
			case "timeout":
				p.SetStatus(domain.StatusDisconnected, "qr expired")
				return fmt.Errorf("qr code expired")
			default:
				if evt.Error != nil {
					p.SetStatus(domain.StatusError, evt.Error.Error())
					return fmt.Errorf("qr login: %w", evt.Error)
				}
			}
		}
	}
}

func (p *Personal) qrPayload(code string) string {
	payload := map[string]string{"code": code}
	if png, err := qrcode.Encode(code, qrcode.Medium, 256); err == nil {
		payload["png"] = base64.StdEncoding.EncodeToString(png)
	} else {
		p.Logger().Warn("qr png render failed", "err", err)
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func (p *Personal) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		p.handleMessage(evt)

	case *events.Connected:
		p.attempts.Store(0)
		p.SetStatus(domain.StatusConnected, "")

	case *events.Disconnected:
		if p.loggedOut.Load() || p.ctx.Err() != nil {
			return
		}
		p.SetStatus(domain.StatusDisconnected, "")
		go p.reconnect()

	case *events.LoggedOut:
		// The phone unlinked this device. The session is dead; clear the
		// stored credentials and wait for the operator to pair again.
		p.loggedOut.Store(true)
		p.Logger().Error("whatsapp logged out by server", "reason", evt.Reason.String())
		p.SetStatus(domain.StatusLoggedOut, evt.Reason.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.clearSession(ctx); err != nil {
			p.Logger().Warn("session cleanup failed", "err", err)
		}

	case *events.StreamReplaced:
		p.Logger().Warn("whatsapp stream replaced by another client")
		p.SetStatus(domain.StatusDisconnected, "stream replaced")
	}
}

func (p *Personal) clearSession(ctx context.Context) error {
	if p.client != nil && p.client.Store != nil {
		if err := p.client.Store.Delete(ctx); err != nil {
			return err
		}
	}
	return p.Store().ClearChannelCredentials(ctx, p.Key())
}

// reconnect retries with bounded backoff. Exhausting the budget leaves the
// connector in error; the next reconcile moves it to the failed set.
func (p *Personal) reconnect() {
	if !p.reconnectGuard.CompareAndSwap(false, true) {
		return
	}
	defer p.reconnectGuard.Store(false)

	p.SetRetryPending(true)
	defer p.SetRetryPending(false)

	for {
		if p.ctx.Err() != nil {
			return
		}
		attempt := int(p.attempts.Add(1)) - 1
		if p.backoff.Exhausted(attempt) {
			p.Logger().Error("whatsapp reconnect attempts exhausted", "attempts", attempt)
			p.SetStatus(domain.StatusError, "reconnect attempts exhausted")
			return
		}

		delay := p.backoff.Delay(attempt)
		p.Logger().Info("whatsapp reconnecting", "attempt", attempt+1, "backoff", delay)
		select {
		case <-time.After(delay):
		case <-p.ctx.Done():
			return
		}

		if err := p.client.Connect(); err != nil {
			p.Logger().Warn("whatsapp reconnect failed", "attempt", attempt+1, "err", err)
			continue
		}
		return
	}
}

func (p *Personal) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.Chat.Server == "broadcast" {
		return
	}

	text := evt.Message.GetConversation()
	if text == "" && evt.Message.ExtendedTextMessage != nil {
		text = evt.Message.ExtendedTextMessage.GetText()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	chat := evt.Info.Chat
	peer := chat.String()
	p.HandleIncoming(p.ctx, connector.Inbound{
		Peer:     peer,
		PeerName: evt.Info.PushName,
		Text:     text,
		Typing: func() {
			_ = p.client.SendChatPresence(p.ctx, chat, types.ChatPresenceComposing, types.ChatPresenceMediaText)
		},
		Reply: func(ctx context.Context, reply string) error {
			return p.Send(ctx, peer, reply)
		},
		ReplyImage: func(ctx context.Context, url, caption string) error {
			return p.SendImage(ctx, peer, url, caption)
		},
	})
}

func (p *Personal) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.client != nil {
		p.client.Disconnect()
	}
	p.Drain()
	p.SetStatus(domain.StatusDisconnected, "")
	return nil
}

func (p *Personal) Send(ctx context.Context, peer, text string) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("whatsapp not connected")
	}
	jid, err := parseJID(peer)
	if err != nil {
		return err
	}
	_, err = p.client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	return nil
}

// SendImage falls back to sending the URL as text; uploading encrypted
// media is not worth the complexity for preview links.
func (p *Personal) SendImage(ctx context.Context, peer, url, caption string) error {
	text := url
	if caption != "" {
		text = caption + "\n" + url
	}
	return p.Send(ctx, peer, text)
}

// parseJID accepts a full JID or a bare phone number.
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return types.JID{}, fmt.Errorf("invalid JID %q", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
