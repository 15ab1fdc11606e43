package connector

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"omnigate/internal/domain"
	"omnigate/internal/metrics"
	"omnigate/internal/store"
)

// fakeConn is a controllable connector for registry tests.
type fakeConn struct {
	key      domain.ConnectorKey
	live     bool
	status   domain.ConnectorStatus
	starts   int
	stops    int
	startErr error
}

func (f *fakeConn) Key() domain.ConnectorKey { return f.key }

func (f *fakeConn) Status() domain.ConnectorStatus {
	if f.status != "" {
		return f.status
	}
	return domain.StatusConnected
}

func (f *fakeConn) Live() bool         { return f.live }
func (f *fakeConn) Connecting() bool   { return false }
func (f *fakeConn) RetryPending() bool { return false }

func (f *fakeConn) Start(ctx context.Context) error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.live = true
	return nil
}

func (f *fakeConn) Stop() error {
	f.stops++
	f.live = false
	return nil
}

func (f *fakeConn) Send(ctx context.Context, peer, text string) error { return nil }
func (f *fakeConn) SendImage(ctx context.Context, peer, url, caption string) error {
	return nil
}

type fakeFleet struct {
	conns    map[domain.ConnectorKey]*fakeConn
	startErr error
}

func (ff *fakeFleet) constructor(rec domain.ChannelRecord, base *Base) (domain.Connector, error) {
	c := &fakeConn{key: rec.Key(), startErr: ff.startErr}
	ff.conns[rec.Key()] = c
	return c, nil
}

func newTestRegistry(t *testing.T, fleet *fakeFleet) (*Registry, *store.SQLite) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	factory := NewFactory()
	factory.Register("fake", fleet.constructor)

	r := NewRegistry(RegistryConfig{
		Store:   st,
		Factory: factory,
		Deps:    Deps{Store: st, Logger: slog.Default()},
		Backoff: NewBackoff(0, 0, 0),
		Logger:  slog.Default(),
		Metrics: metrics.NewGateway(),
	})
	r.ctx = context.Background()
	return r, st
}

func seedChannel(t *testing.T, st *store.SQLite, owner, channel string) domain.ConnectorKey {
	t.Helper()
	rec := domain.ChannelRecord{
		Owner: owner, Channel: channel, Mode: domain.ModeBusiness,
		Config: "{}", Enabled: true, Status: domain.StatusDisconnected, AutoReply: true,
	}
	if err := st.UpsertChannel(context.Background(), rec); err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	return rec.Key()
}

func TestReconcile_StartsEnabledChannels(t *testing.T) {
	fleet := &fakeFleet{conns: make(map[domain.ConnectorKey]*fakeConn)}
	r, st := newTestRegistry(t, fleet)
	key := seedChannel(t, st, "alice", "fake")

	r.Reconcile(context.Background())

	c := fleet.conns[key]
	if c == nil || c.starts != 1 {
		t.Fatalf("expected connector started once, got %+v", c)
	}
	if got := r.Get(key); got == nil {
		t.Fatalf("started connector not held by registry")
	}
}

func TestReconcile_StopsDisabledChannels(t *testing.T) {
	fleet := &fakeFleet{conns: make(map[domain.ConnectorKey]*fakeConn)}
	r, st := newTestRegistry(t, fleet)
	key := seedChannel(t, st, "alice", "fake")

	r.Reconcile(context.Background())
	if err := st.SetChannelEnabled(context.Background(), key, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	r.Reconcile(context.Background())

	if fleet.conns[key].stops != 1 {
		t.Fatalf("expected disabled connector stopped, got %d stops", fleet.conns[key].stops)
	}
	if r.Get(key) != nil {
		t.Fatalf("stopped connector still held")
	}
}

func TestReconcile_RestartsStaleConnector(t *testing.T) {
	fleet := &fakeFleet{conns: make(map[domain.ConnectorKey]*fakeConn)}
	r, st := newTestRegistry(t, fleet)
	key := seedChannel(t, st, "alice", "fake")

	r.Reconcile(context.Background())
	first := fleet.conns[key]

	// Connector silently died: not live, not connecting, no retry pending.
	first.live = false
	r.Reconcile(context.Background())

	second := fleet.conns[key]
	if second == first {
		t.Fatalf("expected a fresh connector instance after staleness")
	}
	if !second.live {
		t.Fatalf("replacement connector should be live")
	}
	if first.stops != 1 {
		t.Fatalf("stale connector should have been stopped, got %d", first.stops)
	}
}

func TestReconcile_LoggedOutConnectorNotRestarted(t *testing.T) {
	fleet := &fakeFleet{conns: make(map[domain.ConnectorKey]*fakeConn)}
	r, st := newTestRegistry(t, fleet)
	key := seedChannel(t, st, "alice", "fake")

	r.Reconcile(context.Background())
	first := fleet.conns[key]

	// The server unlinked the session; only the operator can re-pair.
	first.live = false
	first.status = domain.StatusLoggedOut

	for i := 0; i < 4; i++ {
		r.Reconcile(context.Background())
	}

	if fleet.conns[key] != first {
		t.Fatalf("logged-out connector was rebuilt")
	}
	if first.stops != 0 {
		t.Fatalf("logged-out connector was stopped %d times", first.stops)
	}
	if first.starts != 1 {
		t.Fatalf("logged-out connector restarted: %d starts", first.starts)
	}
	if r.Get(key) == nil {
		t.Fatalf("logged-out connector should stay held for status visibility")
	}
}

func TestReconcile_ErrorConnectorMovesToFailedSet(t *testing.T) {
	fleet := &fakeFleet{conns: make(map[domain.ConnectorKey]*fakeConn)}
	r, st := newTestRegistry(t, fleet)
	key := seedChannel(t, st, "alice", "fake")

	r.Reconcile(context.Background())
	first := fleet.conns[key]

	// Reconnect budget exhausted at runtime.
	first.live = false
	first.status = domain.StatusError

	r.Reconcile(context.Background())

	if !r.Failed(key) {
		t.Fatalf("error-state connector should be in the failed set")
	}
	if first.stops != 1 {
		t.Fatalf("expected one stop, got %d", first.stops)
	}
	if r.Get(key) != nil {
		t.Fatalf("error-state connector still held")
	}

	r.Reconcile(context.Background())
	if fleet.conns[key] != first || first.starts != 1 {
		t.Fatalf("failed key was rebuilt on a later reconcile")
	}
}

func TestReconcile_StartErrorIsPermanent(t *testing.T) {
	fleet := &fakeFleet{
		conns:    make(map[domain.ConnectorKey]*fakeConn),
		startErr: errors.New("bad credentials"),
	}
	r, st := newTestRegistry(t, fleet)
	key := seedChannel(t, st, "alice", "fake")

	r.Reconcile(context.Background())
	if !r.Failed(key) {
		t.Fatalf("start error should move key to the failed set")
	}
	first := fleet.conns[key]

	// Further reconciles must not retry the failed key.
	r.Reconcile(context.Background())
	if fleet.conns[key] != first {
		t.Fatalf("failed key was rebuilt on a later reconcile")
	}
	if first.starts != 1 {
		t.Fatalf("failed key restarted: %d starts", first.starts)
	}
}

func TestReconcile_UnsupportedChannelFails(t *testing.T) {
	fleet := &fakeFleet{conns: make(map[domain.ConnectorKey]*fakeConn)}
	r, st := newTestRegistry(t, fleet)
	key := seedChannel(t, st, "alice", "carrier-pigeon")

	r.Reconcile(context.Background())

	if !r.Failed(key) {
		t.Fatalf("unsupported channel should be in the failed set")
	}
	statuses := r.Statuses("alice")
	if !strings.Contains(statuses[key.String()], "unsupported") {
		t.Fatalf("expected unsupported reason in statuses, got %v", statuses)
	}
}

func TestSendVia_RequiresLiveConnector(t *testing.T) {
	fleet := &fakeFleet{conns: make(map[domain.ConnectorKey]*fakeConn)}
	r, st := newTestRegistry(t, fleet)
	key := seedChannel(t, st, "alice", "fake")

	if err := r.SendVia(context.Background(), key, "42", "hi"); err == nil {
		t.Fatalf("expected error before any connector exists")
	}

	r.Reconcile(context.Background())
	if err := r.SendVia(context.Background(), key, "42", "hi"); err != nil {
		t.Fatalf("live connector send failed: %v", err)
	}

	fleet.conns[key].live = false
	if err := r.SendVia(context.Background(), key, "42", "hi"); err == nil {
		t.Fatalf("expected error for dead connector")
	}
}

func TestLiveKeys_FiltersByOwnerAndLiveness(t *testing.T) {
	fleet := &fakeFleet{conns: make(map[domain.ConnectorKey]*fakeConn)}
	r, st := newTestRegistry(t, fleet)
	aliceKey := seedChannel(t, st, "alice", "fake")
	seedChannel(t, st, "bob", "fake")

	r.Reconcile(context.Background())

	keys := r.LiveKeys("alice")
	if len(keys) != 1 || keys[0] != aliceKey {
		t.Fatalf("expected only alice's key, got %v", keys)
	}
}
