package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"copytrade-core/internal/hub"
	"copytrade-core/internal/market"
	"copytrade-core/internal/monitor"
	"copytrade-core/internal/session"
	"copytrade-core/internal/strategy"
	"copytrade-core/pkg/broker"
	"copytrade-core/pkg/db"
	"copytrade-core/pkg/market/exchange"
)

type stubDialer struct{}

func (stubDialer) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan exchange.Kline, func(), error) {
	ch := make(chan exchange.Kline)
	return ch, func() {}, nil
}

type stubBroker struct{}

func (stubBroker) PlaceOrder(ctx context.Context, credential, symbol, orderType string, amount float64) error {
	return nil
}
func (stubBroker) HasPendingOrders(ctx context.Context, credential string) bool { return false }
func (stubBroker) LastCompletedOrder(ctx context.Context, credential string) (*broker.Order, error) {
	return nil, nil
}
func (stubBroker) LatestPendingOrder(ctx context.Context, credential string) (*broker.Order, error) {
	return nil, nil
}
func (stubBroker) FindCompleted(ctx context.Context, credential, code string) (*broker.Order, error) {
	return nil, nil
}

type stubStore struct{}

func (stubStore) CreateOrder(ctx context.Context, o db.Order) error { return nil }
func (stubStore) CompleteOrderByCode(ctx context.Context, code string, c db.OrderCompletion) error {
	return nil
}

func testEngine() (*Engine, *hub.Hub) {
	h := hub.New()
	feeds := market.NewManager(stubDialer{}, market.Options{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		MaxAttempts:    2,
	})
	deps := session.Deps{Broker: stubBroker{}, Store: stubStore{}, Hub: h}
	opts := session.Options{SettleDelay: -1, PollInterval: time.Millisecond, PollMax: 1}
	return New(deps, feeds, h, opts, monitor.NewMetrics()), h
}

func validConfig() strategy.Config {
	return strategy.Config{
		Symbol:          "BTCUSDT",
		Interval:        "1m",
		Pattern:         "D",
		CapitalSequence: []float64{1, 2},
	}
}

func TestStartRejectsMissingCredential(t *testing.T) {
	eng, _ := testEngine()
	defer eng.Shutdown()

	if err := eng.Start("user-1", validConfig(), ""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	eng, _ := testEngine()
	defer eng.Shutdown()

	cfg := validConfig()
	cfg.CapitalSequence = nil
	if err := eng.Start("user-1", cfg, "cred"); err == nil {
		t.Fatal("expected validation error")
	}
	if got := eng.ActiveSessions(); got != 0 {
		t.Fatalf("failed start must not register a session, got %d", got)
	}
}

func TestStartIsExclusivePerUser(t *testing.T) {
	eng, _ := testEngine()
	defer eng.Shutdown()

	if err := eng.Start("user-1", validConfig(), "cred"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := eng.Start("user-1", validConfig(), "cred"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	// A different user is unaffected.
	if err := eng.Start("user-2", validConfig(), "cred-2"); err != nil {
		t.Fatalf("second user start: %v", err)
	}
	if got := eng.ActiveSessions(); got != 2 {
		t.Fatalf("expected 2 sessions, got %d", got)
	}
}

func TestStopThenRestart(t *testing.T) {
	eng, _ := testEngine()
	defer eng.Shutdown()

	if err := eng.Start("user-1", validConfig(), "cred"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng.Stop("user-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := eng.Stop("user-1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession on double stop, got %v", err)
	}
	if _, ok := eng.GetState("user-1"); ok {
		t.Fatal("stopped session should not report state")
	}

	// A fresh start builds a brand-new session.
	if err := eng.Start("user-1", validConfig(), "cred"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	st, ok := eng.GetState("user-1")
	if !ok || st.Status != session.StatusRunning {
		t.Fatalf("expected RUNNING after restart, got %+v (ok=%v)", st, ok)
	}
}

func TestActiveCredentials(t *testing.T) {
	eng, _ := testEngine()
	defer eng.Shutdown()

	if err := eng.Start("user-1", validConfig(), "cred-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	creds := eng.ActiveCredentials()
	if creds["user-1"] != "cred-1" {
		t.Fatalf("expected cred-1, got %+v", creds)
	}

	_ = eng.Stop("user-1")
	if got := eng.ActiveCredentials(); len(got) != 0 {
		t.Fatalf("expected no credentials after stop, got %+v", got)
	}
}

func TestSnapshotReplayForSubscribers(t *testing.T) {
	eng, h := testEngine()
	defer eng.Shutdown()

	if err := eng.Start("user-1", validConfig(), "cred"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The hub replays the session state to a late subscriber.
	ch, unsub := h.Subscribe("user-1", 4)
	defer unsub()
	select {
	case e := <-ch:
		st, ok := e.Payload.(session.State)
		if !ok || st.Status != session.StatusRunning {
			t.Fatalf("expected RUNNING snapshot, got %+v", e.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot replayed")
	}
}

func TestShutdownStopsEverything(t *testing.T) {
	eng, _ := testEngine()

	_ = eng.Start("user-1", validConfig(), "c1")
	_ = eng.Start("user-2", validConfig(), "c2")

	eng.Shutdown()
	if got := eng.ActiveSessions(); got != 0 {
		t.Fatalf("expected 0 sessions after shutdown, got %d", got)
	}
}
