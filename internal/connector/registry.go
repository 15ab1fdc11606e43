package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"omnigate/internal/domain"
	"omnigate/internal/metrics"
)

// Registry owns every live connector, keyed by (owner, channel, mode).
// At most one connector exists per key. A periodic reconcile tick converges
// the live set toward the enabled channel rows: start missing, stop
// removed, restart stale. Keys that fail permanently go to the failed set
// and are never retried within this process.
type Registry struct {
	store   domain.Store
	factory *Factory
	deps    Deps
	logger  *slog.Logger
	metrics *metrics.Gateway

	cron    *cron.Cron
	entryID cron.EntryID

	mu                sync.Mutex
	connectors        map[domain.ConnectorKey]domain.Connector
	failed            map[domain.ConnectorKey]string
	unsupportedLogged map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

type RegistryConfig struct {
	Store   domain.Store
	Factory *Factory
	Deps    Deps // Sender is filled in by the registry itself
	Backoff Backoff
	Logger  *slog.Logger
	Metrics *metrics.Gateway
}

func NewRegistry(cfg RegistryConfig) *Registry {
	cfg.Deps.Backoff = cfg.Backoff
	r := &Registry{
		store:             cfg.Store,
		factory:           cfg.Factory,
		deps:              cfg.Deps,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		connectors:        make(map[domain.ConnectorKey]domain.Connector),
		failed:            make(map[domain.ConnectorKey]string),
		unsupportedLogged: make(map[string]bool),
	}
	r.deps.Sender = r
	return r
}

// Start runs an immediate reconcile and schedules the periodic tick.
func (r *Registry) Start(ctx context.Context, interval string) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.Reconcile(r.ctx)

	r.cron = cron.New()
	id, err := r.cron.AddFunc(interval, func() { r.Reconcile(r.ctx) })
	if err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}
	r.entryID = id
	r.cron.Start()
	r.logger.Info("connector registry started", "interval", interval)
	return nil
}

// Reconcile converges live connectors toward the enabled channel rows.
func (r *Registry) Reconcile(ctx context.Context) {
	rows, err := r.store.ListEnabledChannels(ctx)
	if err != nil {
		r.logger.Error("list enabled channels failed", "err", err)
		return
	}

	desired := make(map[domain.ConnectorKey]domain.ChannelRecord, len(rows))
	for _, rec := range rows {
		desired[rec.Key()] = rec
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Stop connectors whose row is gone or disabled.
	for key, c := range r.connectors {
		if _, ok := desired[key]; ok {
			continue
		}
		r.logger.Info("stopping removed connector", "key", key.String())
		if err := c.Stop(); err != nil {
			r.logger.Warn("stop failed", "key", key.String(), "err", err)
		}
		delete(r.connectors, key)
	}

	for key, rec := range desired {
		if _, dead := r.failed[key]; dead {
			continue
		}

		if c, ok := r.connectors[key]; ok {
			switch c.Status() {
			case domain.StatusLoggedOut:
				// Dead session. Re-linking is an operator action; the
				// connector stays held so the status remains visible.
				continue
			case domain.StatusError:
				r.logger.Warn("connector in error state, marking failed", "key", key.String())
				if err := c.Stop(); err != nil {
					r.logger.Warn("stop failed", "key", key.String(), "err", err)
				}
				delete(r.connectors, key)
				r.failed[key] = "entered error state"
				continue
			}

			// Stale: not live, not mid-connect, no retry scheduled, yet
			// still wanted. Restart it.
			if !c.Live() && !c.Connecting() && !c.RetryPending() {
				r.logger.Warn("restarting stale connector", "key", key.String(), "status", c.Status())
				if err := c.Stop(); err != nil {
					r.logger.Warn("stale stop failed", "key", key.String(), "err", err)
				}
				delete(r.connectors, key)
				r.startLocked(key, rec)
			}
			continue
		}

		r.startLocked(key, rec)
	}

	if r.metrics != nil {
		r.metrics.ActiveConnectors.Set(int64(len(r.connectors)))
		r.metrics.FailedConnectors.Set(int64(len(r.failed)))
	}
}

// startLocked builds and starts one connector. Caller holds r.mu.
func (r *Registry) startLocked(key domain.ConnectorKey, rec domain.ChannelRecord) {
	if !r.factory.Supported(key.Channel) {
		if !r.unsupportedLogged[key.Channel] {
			r.logger.Warn("unsupported channel type, ignoring", "channel", key.Channel)
			r.unsupportedLogged[key.Channel] = true
		}
		r.failed[key] = "unsupported channel type"
		return
	}

	base := NewBase(key, rec.AutoReply, r.deps)
	c, err := r.factory.Build(rec, base)
	if err != nil {
		r.logger.Error("connector build failed", "key", key.String(), "err", err)
		r.failed[key] = err.Error()
		return
	}

	r.logger.Info("starting connector", "key", key.String())
	if err := c.Start(r.ctx); err != nil {
		// Start errors are permanent for this process (bad credentials,
		// malformed config). The dashboard fixes the row and the operator
		// restarts or re-enables.
		r.logger.Error("connector start failed, marking failed", "key", key.String(), "err", err)
		r.failed[key] = err.Error()
		return
	}
	r.connectors[key] = c
}

// StopAll cancels the reconcile tick and stops every connector
// concurrently, tolerating individual failures.
func (r *Registry) StopAll() {
	if r.cron != nil {
		r.cron.Stop()
	}
	if r.cancel != nil {
		r.cancel()
	}

	r.mu.Lock()
	conns := make([]domain.Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		conns = append(conns, c)
	}
	r.connectors = make(map[domain.ConnectorKey]domain.Connector)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c domain.Connector) {
			defer wg.Done()
			if err := c.Stop(); err != nil {
				r.logger.Warn("connector stop failed", "key", c.Key().String(), "err", err)
			}
		}(c)
	}
	wg.Wait()
	r.logger.Info("all connectors stopped", "count", len(conns))
}

// Get returns the connector for a key, or nil.
func (r *Registry) Get(key domain.ConnectorKey) domain.Connector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectors[key]
}

// SendVia sends text through the connector for key. Implements
// domain.MessageSender for cross-platform tool sends.
func (r *Registry) SendVia(ctx context.Context, key domain.ConnectorKey, peer, text string) error {
	c := r.Get(key)
	if c == nil {
		return fmt.Errorf("no connector for %s", key.String())
	}
	if !c.Live() {
		return fmt.Errorf("connector %s is not connected (status %s)", key.String(), c.Status())
	}
	return c.Send(ctx, peer, text)
}

// LiveKeys returns the connected keys for an owner.
func (r *Registry) LiveKeys(owner string) []domain.ConnectorKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []domain.ConnectorKey
	for key, c := range r.connectors {
		if key.Owner == owner && c.Live() {
			keys = append(keys, key)
		}
	}
	return keys
}

// Statuses returns the status of every connector held for an owner,
// including failed keys (reported as error).
func (r *Registry) Statuses(owner string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string)
	for key, c := range r.connectors {
		if key.Owner == owner {
			out[key.String()] = string(c.Status())
		}
	}
	for key, reason := range r.failed {
		if key.Owner == owner {
			out[key.String()] = fmt.Sprintf("%s: %s", domain.StatusError, reason)
		}
	}
	return out
}

// Failed reports whether a key is in the permanent failed set.
func (r *Registry) Failed(key domain.ConnectorKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.failed[key]
	return ok
}
