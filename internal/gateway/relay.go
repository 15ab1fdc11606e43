package gateway

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"omnigate/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local control surface, no cross-origin concern
	},
}

// Relay fans audit events out to websocket subscribers so a dashboard sees
// QR codes, connects and incoming messages live instead of polling
// /api/events. Implements connector.EventSink.
type Relay struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*relayClient]struct{}
}

type relayClient struct {
	conn  *websocket.Conn
	owner string // empty subscribes to all owners
	mu    sync.Mutex
}

func NewRelay(logger *slog.Logger) *Relay {
	return &Relay{
		logger:  logger,
		clients: make(map[*relayClient]struct{}),
	}
}

// Publish sends the event to every matching subscriber. Slow or dead
// clients are dropped rather than blocking the connector that emitted the
// event.
func (r *Relay) Publish(evt domain.Event) {
	r.mu.Lock()
	clients := make([]*relayClient, 0, len(r.clients))
	for c := range r.clients {
		if c.owner == "" || c.owner == evt.Owner {
			clients = append(clients, c)
		}
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.conn.WriteJSON(evt)
		c.mu.Unlock()
		if err != nil {
			r.logger.Debug("relay client write failed, dropping", "err", err)
			r.remove(c)
		}
	}
}

// Handler upgrades GET /ws/inbox. The optional owner query parameter
// filters the stream.
func (r *Relay) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.logger.Warn("websocket upgrade failed", "err", err)
			return
		}
		c := &relayClient{conn: conn, owner: req.URL.Query().Get("owner")}

		r.mu.Lock()
		r.clients[c] = struct{}{}
		count := len(r.clients)
		r.mu.Unlock()
		r.logger.Info("inbox subscriber connected", "owner", c.owner, "clients", count)

		// Drain reads to detect close; subscribers never send payloads.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					r.remove(c)
					return
				}
			}
		}()
	}
}

func (r *Relay) remove(c *relayClient) {
	r.mu.Lock()
	_, ok := r.clients[c]
	delete(r.clients, c)
	r.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

// Close disconnects all subscribers.
func (r *Relay) Close() {
	r.mu.Lock()
	clients := make([]*relayClient, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[*relayClient]struct{})
	r.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}
