package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"

	"omnigate/internal/connector"
	"omnigate/internal/domain"
)

const graphAPIBase = "https://graph.facebook.com/v21.0"

// Business bridges a WhatsApp Business Cloud API number. Inbound messages
// arrive on a webhook; outbound goes through the Graph API. There is no
// persistent connection, so the connector is live as soon as its webhook
// is mounted.
type Business struct {
	*connector.Base

	accessToken   string
	phoneNumberID string
	verifyToken   string
	appSecret     string

	router *WebhookRouter
	client *http.Client
	ctx    context.Context
}

type businessConfig struct {
	AccessToken   string `json:"accessToken"`
	PhoneNumberID string `json:"phoneNumberId"`
	VerifyToken   string `json:"verifyToken"`
	AppSecret     string `json:"appSecret,omitempty"`
}

func newBusiness(rec domain.ChannelRecord, base *connector.Base, router *WebhookRouter) (domain.Connector, error) {
	var cfg businessConfig
	if err := json.Unmarshal([]byte(rec.Config), &cfg); err != nil {
		return nil, fmt.Errorf("whatsapp business config: %w", err)
	}
	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp business config: missing accessToken or phoneNumberId")
	}
	return &Business{
		Base:          base,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		verifyToken:   cfg.VerifyToken,
		appSecret:     cfg.AppSecret,
		router:        router,
		client:        &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (b *Business) Start(ctx context.Context) error {
	b.ctx = ctx

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", b.handleVerification)
	mux.HandleFunc("POST /", b.handleWebhook)
	b.router.Register(b.Key().Owner, mux)

	b.SetStatus(domain.StatusConnected, "")
	b.Logger().Info("whatsapp business webhook mounted", "owner", b.Key().Owner)
	return nil
}

func (b *Business) Stop() error {
	b.router.Deregister(b.Key().Owner)
	b.Drain()
	b.SetStatus(domain.StatusDisconnected, "")
	return nil
}

// handleVerification answers Meta's webhook subscription challenge.
func (b *Business) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == b.verifyToken {
		b.Logger().Info("whatsapp webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}
	b.Logger().Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

func (b *Business) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	if b.appSecret != "" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(rw, "Bad request", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if !b.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
			b.Logger().Warn("whatsapp invalid webhook signature")
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var payload waPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		b.Logger().Warn("whatsapp bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text == nil {
					continue
				}
				name := ""
				for _, c := range change.Value.Contacts {
					if c.WaID == msg.From && c.Profile != nil {
						name = c.Profile.Name
					}
				}
				peer := msg.From
				b.HandleIncoming(b.ctx, connector.Inbound{
					Peer:     peer,
					PeerName: name,
					Text:     msg.Text.Body,
					Reply: func(ctx context.Context, reply string) error {
						return b.Send(ctx, peer, reply)
					},
					ReplyImage: func(ctx context.Context, url, caption string) error {
						return b.SendImage(ctx, peer, url, caption)
					},
				})
			}
		}
	}

	rw.WriteHeader(http.StatusOK)
}

func (b *Business) verifySignature(body []byte, signature string) bool {
	if len(signature) < 7 || signature[:7] != "sha256=" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(b.appSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature[7:]), []byte(computed))
}

func (b *Business) Send(ctx context.Context, peer, text string) error {
	return b.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                peer,
		"type":              "text",
		"text":              map[string]string{"body": text},
	})
}

func (b *Business) SendImage(ctx context.Context, peer, url, caption string) error {
	return b.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                peer,
		"type":              "image",
		"image":             map[string]string{"link": url, "caption": caption},
	})
}

func (b *Business) post(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", graphAPIBase, b.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.accessToken)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Graph API webhook payload types.

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Contacts         []waContact `json:"contacts"`
	Messages         []waMessage `json:"messages"`
}

type waContact struct {
	WaID    string     `json:"wa_id"`
	Profile *waProfile `json:"profile,omitempty"`
}

type waProfile struct {
	Name string `json:"name"`
}

type waMessage struct {
	From string  `json:"from"`
	ID   string  `json:"id"`
	Type string  `json:"type"`
	Text *waText `json:"text,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}
