package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"omnigate/internal/connector"
	"omnigate/internal/connector/whatsapp"
	"omnigate/internal/domain"
	"omnigate/internal/metrics"
)

const apiMaxBodySize = 1 << 20 // 1 MB

// APIServer is the local control surface: send messages out through a live
// connector, inspect statuses, toggle auto-reply, poll events (QR codes),
// scrape metrics, and subscribe to the live inbox over websocket. It also
// hosts the WhatsApp business webhook routes.
type APIServer struct {
	registry *connector.Registry
	store    domain.Store
	relay    *Relay
	metrics  *metrics.Gateway
	webhooks *whatsapp.WebhookRouter
	logger   *slog.Logger

	server *http.Server
}

type APIServerConfig struct {
	Listen   string
	Registry *connector.Registry
	Store    domain.Store
	Relay    *Relay
	Metrics  *metrics.Gateway
	Webhooks *whatsapp.WebhookRouter
	Logger   *slog.Logger
}

func NewAPIServer(cfg APIServerConfig) *APIServer {
	s := &APIServer{
		registry: cfg.Registry,
		store:    cfg.Store,
		relay:    cfg.Relay,
		metrics:  cfg.Metrics,
		webhooks: cfg.Webhooks,
		logger:   cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/send", s.handleSend)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/autoreply", s.handleAutoReply)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /metrics", s.metrics.Collector.Handler())
	mux.HandleFunc("GET /ws/inbox", s.relay.Handler())
	mux.Handle("/webhook/whatsapp/", s.webhooks)

	s.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// Start runs the listener in its own goroutine.
func (s *APIServer) Start() {
	go func() {
		s.logger.Info("api server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server failed", "err", err)
		}
	}()
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	s.relay.Close()
	return s.server.Shutdown(ctx)
}

type sendRequest struct {
	Owner   string `json:"owner"`
	Channel string `json:"channel"`
	Mode    string `json:"mode"`
	Peer    string `json:"peer"`
	Text    string `json:"text"`
}

func (s *APIServer) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Owner == "" || req.Channel == "" || req.Peer == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "owner, channel, peer and text are required")
		return
	}

	key := domain.ConnectorKey{
		Owner:   req.Owner,
		Channel: req.Channel,
		Mode:    domain.ConnectionMode(req.Mode),
	}
	if err := s.registry.SendVia(r.Context(), key, req.Peer, req.Text); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	writeJSON(w, http.StatusOK, map[string]any{
		"connectors": s.registry.Statuses(owner),
	})
}

type autoReplyRequest struct {
	Owner   string `json:"owner"`
	Channel string `json:"channel"`
	Mode    string `json:"mode"`
	Enabled bool   `json:"enabled"`
}

func (s *APIServer) handleAutoReply(w http.ResponseWriter, r *http.Request) {
	var req autoReplyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := domain.ConnectorKey{
		Owner:   req.Owner,
		Channel: req.Channel,
		Mode:    domain.ConnectionMode(req.Mode),
	}
	if err := s.store.SetAutoReply(r.Context(), key, req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Flip the live connector too so the change takes effect without a
	// reconcile restart.
	if c := s.registry.Get(key); c != nil {
		if b, ok := c.(interface{ SetAutoReply(bool) }); ok {
			b.SetAutoReply(req.Enabled)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"autoReply": req.Enabled})
}

func (s *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	channel := r.URL.Query().Get("channel")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	events, err := s.store.RecentEvents(r.Context(), owner, channel, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, apiMaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
