package whatsapp

import (
	"net/http"
	"strings"
	"sync"
)

// WebhookRouter dispatches /webhook/whatsapp/{owner} requests to the
// business connector for that owner. Connectors register on Start and
// deregister on Stop, so the route table follows the registry's reconcile
// loop without restarting the HTTP server.
type WebhookRouter struct {
	mu       sync.RWMutex
	handlers map[string]http.Handler
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{handlers: make(map[string]http.Handler)}
}

func (wr *WebhookRouter) Register(owner string, h http.Handler) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	wr.handlers[owner] = h
}

func (wr *WebhookRouter) Deregister(owner string) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	delete(wr.handlers, owner)
}

// ServeHTTP expects the owner as the final path segment.
func (wr *WebhookRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	owner := parts[len(parts)-1]

	wr.mu.RLock()
	h, ok := wr.handlers[owner]
	wr.mu.RUnlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}
