package connector

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"omnigate/internal/domain"
	"omnigate/internal/metrics"
	"omnigate/internal/pipeline"
)

const apologyText = "Sorry, something went wrong while handling that. Please try again."

// EventSink receives audit events as they are written so live observers
// (the websocket inbox relay) see them without polling.
type EventSink interface {
	Publish(evt domain.Event)
}

// Deps is everything a connector needs beyond its own platform client.
type Deps struct {
	Store    domain.Store
	Pipeline *pipeline.Pipeline
	Sender   domain.MessageSender
	Sink     EventSink
	Metrics  *metrics.Gateway
	Logger   *slog.Logger
	Backoff  Backoff
}

// Base carries the lifecycle state and inbound-message handling shared by
// every platform connector. Platform types embed it and drive SetStatus
// from their own connection events.
type Base struct {
	key  domain.ConnectorKey
	deps Deps

	mu           sync.Mutex
	status       domain.ConnectorStatus
	retryPending bool
	autoReply    bool

	// dispatch tracks in-flight message goroutines so Stop can drain them.
	dispatch sync.WaitGroup
}

func NewBase(key domain.ConnectorKey, autoReply bool, deps Deps) *Base {
	return &Base{
		key:       key,
		deps:      deps,
		status:    domain.StatusDisconnected,
		autoReply: autoReply,
	}
}

func (b *Base) Key() domain.ConnectorKey { return b.key }

func (b *Base) Status() domain.ConnectorStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) Live() bool {
	return b.Status() == domain.StatusConnected
}

func (b *Base) Connecting() bool {
	s := b.Status()
	return s == domain.StatusConnecting || s == domain.StatusQR
}

func (b *Base) RetryPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retryPending
}

func (b *Base) SetRetryPending(v bool) {
	b.mu.Lock()
	b.retryPending = v
	b.mu.Unlock()
}

func (b *Base) AutoReply() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.autoReply
}

func (b *Base) SetAutoReply(v bool) {
	b.mu.Lock()
	b.autoReply = v
	b.mu.Unlock()
}

func (b *Base) Logger() *slog.Logger { return b.deps.Logger }

// Store exposes the persistence layer for connectors that manage their own
// credentials (session clearing on logout).
func (b *Base) Store() domain.Store { return b.deps.Store }

// Backoff returns the configured reconnect policy, or the defaults when
// the deps carried none.
func (b *Base) Backoff() Backoff {
	if b.deps.Backoff.MaxAttempts == 0 {
		return NewBackoff(0, 0, 0)
	}
	return b.deps.Backoff
}

// setStatus updates the in-memory state, persists it on the channel row,
// and emits an audit event with the given payload (may be empty).
func (b *Base) SetStatus(status domain.ConnectorStatus, payload string) {
	b.mu.Lock()
	prev := b.status
	b.status = status
	b.mu.Unlock()

	if prev == status && payload == "" {
		return
	}
	b.deps.Logger.Info("connector status", "key", b.key.String(), "from", prev, "to", status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.deps.Store.UpdateChannelStatus(ctx, b.key, status); err != nil {
		b.deps.Logger.Warn("persist status failed", "key", b.key.String(), "err", err)
	}
	b.EmitEvent(ctx, string(status), payload)
}

// emitEvent writes an audit row and pushes it to the live sink.
func (b *Base) EmitEvent(ctx context.Context, eventType, payload string) {
	evt := domain.Event{
		Owner:     b.key.Owner,
		Channel:   b.key.Channel,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.deps.Store.AddEvent(ctx, evt); err != nil {
		b.deps.Logger.Warn("persist event failed", "type", eventType, "err", err)
	}
	if b.deps.Sink != nil {
		b.deps.Sink.Publish(evt)
	}
}

// Inbound is one normalized platform message.
type Inbound struct {
	Peer     string
	PeerName string
	Text     string

	// Typing refreshes the platform typing indicator; Reply delivers the
	// final text; ReplyImage delivers an image URL with caption.
	Typing     func()
	Reply      func(ctx context.Context, text string) error
	ReplyImage func(ctx context.Context, url, caption string) error
}

// HandleIncoming dispatches pipeline processing on a tracked goroutine so
// the platform receive loop never blocks on AI latency. Replies from one
// peer may interleave under rapid messages; ordering is not guaranteed.
func (b *Base) HandleIncoming(ctx context.Context, in Inbound) {
	if in.Text == "" {
		return
	}
	if b.deps.Metrics != nil {
		b.deps.Metrics.MessagesTotal.Inc()
	}

	b.recordContact(ctx, in)
	b.emitIncoming(ctx, in)

	if !b.AutoReply() {
		b.deps.Logger.Debug("auto-reply disabled, stored only", "key", b.key.String(), "peer", in.Peer)
		return
	}

	b.dispatch.Add(1)
	go func() {
		defer b.dispatch.Done()
		b.process(ctx, in)
	}()
}

// Drain waits for in-flight message goroutines; called from Stop.
func (b *Base) Drain() {
	b.dispatch.Wait()
}

func (b *Base) process(ctx context.Context, in Inbound) {
	pc := &pipeline.Context{
		Ctx:        ctx,
		Owner:      b.key.Owner,
		Channel:    b.key.Channel,
		Mode:       b.key.Mode,
		Peer:       in.Peer,
		PeerName:   in.PeerName,
		Incoming:   in.Text,
		ReceivedAt: time.Now().UTC(),
		Typing:     in.Typing,
		Invocation: &domain.ToolInvocation{
			Owner:   b.key.Owner,
			Channel: b.key.Channel,
			Mode:    b.key.Mode,
			Peer:    in.Peer,
			Store:   b.deps.Store,
			Sender:  b.deps.Sender,
		},
	}

	if err := b.deps.Pipeline.Run(pc); err != nil {
		b.deps.Logger.Error("pipeline failed", "key", b.key.String(), "peer", in.Peer, "err", err)
		if b.deps.Metrics != nil {
			b.deps.Metrics.PipelineErrors.Inc()
		}
		if in.Reply != nil {
			if serr := in.Reply(ctx, apologyText); serr != nil {
				b.deps.Logger.Warn("apology send failed", "err", serr)
			}
		}
		return
	}

	if pc.Reply != "" && in.Reply != nil {
		if err := in.Reply(ctx, pc.Reply); err != nil {
			b.deps.Logger.Error("reply send failed", "key", b.key.String(), "peer", in.Peer, "err", err)
		}
	}
	b.sendImages(ctx, in, pc.Images)
}

// sendImages delivers tool-generated attachments after the text reply,
// falling back to a plain text send when the platform closure is absent.
func (b *Base) sendImages(ctx context.Context, in Inbound, images []domain.ImageAttachment) {
	for _, img := range images {
		var err error
		switch {
		case in.ReplyImage != nil:
			err = in.ReplyImage(ctx, img.URL, img.Caption)
		case in.Reply != nil:
			text := img.URL
			if img.Caption != "" {
				text = img.Caption + "\n" + img.URL
			}
			err = in.Reply(ctx, text)
		}
		if err != nil {
			b.deps.Logger.Error("image send failed", "key", b.key.String(), "peer", in.Peer, "err", err)
		}
	}
}

func (b *Base) recordContact(ctx context.Context, in Inbound) {
	c := domain.Contact{
		Owner:       b.key.Owner,
		Channel:     b.key.Channel,
		Peer:        in.Peer,
		DisplayName: in.PeerName,
		LastSeen:    time.Now().UTC(),
	}
	if err := b.deps.Store.UpsertContact(ctx, c); err != nil {
		b.deps.Logger.Warn("contact upsert failed", "peer", in.Peer, "err", err)
	}
}

func (b *Base) emitIncoming(ctx context.Context, in Inbound) {
	payload, _ := json.Marshal(map[string]string{
		"peer": in.Peer,
		"name": in.PeerName,
		"text": in.Text,
	})
	b.EmitEvent(ctx, "incoming", string(payload))
}
