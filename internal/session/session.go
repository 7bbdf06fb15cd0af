// Package session owns one user's automated trading lifecycle: candle
// evaluation, trade execution, and reconciliation of settled orders.
package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"copytrade-core/internal/events"
	"copytrade-core/internal/monitor"
	"copytrade-core/internal/pattern"
	"copytrade-core/internal/strategy"
	"copytrade-core/pkg/broker"
	"copytrade-core/pkg/db"
	"copytrade-core/pkg/market/exchange"
)

// Status of a session. A session is created Idle, trades while Running,
// holds ExecutingTrade for the duration of one trade procedure, and is
// terminal once Stopped; a new Start builds a fresh session object.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusExecuting Status = "EXECUTING_TRADE"
	StatusStopped   Status = "STOPPED"
)

// Broker is the slice of the order gateway a session needs.
type Broker interface {
	PlaceOrder(ctx context.Context, credential, symbol, orderType string, amount float64) error
	HasPendingOrders(ctx context.Context, credential string) bool
	LastCompletedOrder(ctx context.Context, credential string) (*broker.Order, error)
	LatestPendingOrder(ctx context.Context, credential string) (*broker.Order, error)
	FindCompleted(ctx context.Context, credential, code string) (*broker.Order, error)
}

// OrderStore records orders and their lifecycle for audit/history.
type OrderStore interface {
	CreateOrder(ctx context.Context, o db.Order) error
	CompleteOrderByCode(ctx context.Context, code string, c db.OrderCompletion) error
}

// Publisher pushes events to the user's live listeners.
type Publisher interface {
	Publish(e events.Event)
}

// Options tunes session timing. Zero values fall back to production
// defaults.
type Options struct {
	SettleDelay  time.Duration // pause before placing an order after a match
	PollInterval time.Duration // per-order completion polling period
	PollMax      int           // polling attempts before giving up
}

func (o Options) withDefaults() Options {
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	} else if o.SettleDelay == 0 {
		o.SettleDelay = 3 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.PollMax <= 0 {
		o.PollMax = 12
	}
	return o
}

// Deps bundles the session's collaborators. Metrics may be nil; trade
// counters and broker latency are then not collected.
type Deps struct {
	Broker  Broker
	Store   OrderStore
	Hub     Publisher
	Metrics *monitor.Metrics
}

// State is the externally visible snapshot of a session.
type State struct {
	UserID            string `json:"user_id"`
	Status            Status `json:"status"`
	StrategyID        string `json:"strategy_id,omitempty"`
	StrategyName      string `json:"strategy_name,omitempty"`
	Label             string `json:"label,omitempty"`
	Symbol            string `json:"symbol,omitempty"`
	Interval          string `json:"interval,omitempty"`
	Pattern           string `json:"pattern,omitempty"`
	CapitalIndex      int    `json:"capital_index"`
	ConsecutiveLosses int    `json:"consecutive_losses"`
	LastCandleClose   int64  `json:"last_candle_close,omitempty"`
	ActiveOrderCode   string `json:"active_order_code,omitempty"`
}

// Session is one user's trading state machine. All candle handling runs on
// a single consumer goroutine; the ExecutingTrade status is the lock that
// keeps trade execution mutually exclusive with new candle evaluation.
type Session struct {
	userID string
	cfg    strategy.Config
	target []pattern.Color
	deps   Deps
	opts   Options

	status atomic.Value // Status

	mu                sync.Mutex
	credential        string
	capitalIndex      int
	consecutiveLosses int
	lastCandleClose   int64
	firstTrade        bool
	activeOrderCode   string
	recent            []pattern.Color

	candles chan exchange.Kline
	ctx     context.Context
	cancel  context.CancelFunc
	stopped sync.Once

	// onFatal is invoked when the market feed declares itself dead; the
	// owner uses it to tear the session down and release the feed.
	onFatal func(err error)
}

// New builds a session. The config must already be validated.
func New(userID string, cfg strategy.Config, credential string, deps Deps, opts Options) *Session {
	target, _ := pattern.Parse(cfg.Pattern)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID:     userID,
		cfg:        cfg,
		target:     target,
		deps:       deps,
		opts:       opts.withDefaults(),
		credential: credential,
		firstTrade: true,
		candles:    make(chan exchange.Kline),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.status.Store(StatusIdle)
	return s
}

// SetFatalHandler installs the owner's teardown hook. Must be called
// before Run.
func (s *Session) SetFatalHandler(fn func(err error)) {
	s.onFatal = fn
}

// Run transitions to Running and starts the consumer loop.
func (s *Session) Run() {
	s.status.Store(StatusRunning)
	s.publishState()
	go s.loop()
}

// Stop is valid from any state and idempotent. The event loop exits, the
// credential and config are cleared, and any in-flight trade or polling
// result becomes a no-op.
func (s *Session) Stop() {
	s.stopped.Do(func() {
		s.status.Store(StatusStopped)
		s.cancel()

		s.mu.Lock()
		s.credential = ""
		s.cfg = strategy.Config{}
		s.activeOrderCode = ""
		s.mu.Unlock()

		log.Printf("session %s: stopped", s.userID)
		s.publishState()
	})
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	return s.status.Load().(Status)
}

// Credential returns the broker credential, empty once stopped.
func (s *Session) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

// Snapshot returns the externally visible state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		UserID:            s.userID,
		Status:            s.Status(),
		StrategyID:        s.cfg.ID,
		StrategyName:      s.cfg.Name,
		Label:             s.cfg.Label,
		Symbol:            s.cfg.Symbol,
		Interval:          s.cfg.Interval,
		Pattern:           s.cfg.Pattern,
		CapitalIndex:      s.capitalIndex,
		ConsecutiveLosses: s.consecutiveLosses,
		LastCandleClose:   s.lastCandleClose,
		ActiveOrderCode:   s.activeOrderCode,
	}
}

// OnCandle implements market.Subscriber. Completed candles are handed to
// the consumer loop only when it is idle; a session mid-trade ignores
// them. Candles are never queued.
func (s *Session) OnCandle(k exchange.Kline) {
	if !k.IsClosed {
		return
	}
	if s.Status() != StatusRunning {
		return
	}
	select {
	case s.candles <- k:
	default:
		// consumer busy; drop rather than queue
	}
}

// OnFeedUp implements market.Subscriber.
func (s *Session) OnFeedUp() {
	s.publish(events.KindWSConnected, nil)
}

// OnFeedDown implements market.Subscriber. A transient drop is visibility
// only; exhausted reconnects are fatal and force a stop.
func (s *Session) OnFeedDown(err error, fatal bool) {
	s.publish(events.KindWSDisconnected, map[string]any{"reason": err.Error()})
	if !fatal {
		return
	}
	s.publish(events.KindError, map[string]any{"error": err.Error(), "fatal": true})
	if s.onFatal != nil {
		s.onFatal(err)
	} else {
		s.Stop()
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case k := <-s.candles:
			s.handleCandle(k)
		}
	}
}

// handleCandle evaluates one completed candle against the pattern. The
// watermark advances only after the evaluation completes, and a candle
// whose close time is not strictly newer is discarded: feed delivery is
// at-least-once.
func (s *Session) handleCandle(k exchange.Kline) {
	s.mu.Lock()
	if k.CloseTime <= s.lastCandleClose {
		s.mu.Unlock()
		return
	}

	color := pattern.Down
	if k.IsUp() {
		color = pattern.Up
	}
	s.recent = append(s.recent, color)
	if limit := len(s.target) + 16; len(s.recent) > limit {
		s.recent = s.recent[len(s.recent)-limit:]
	}
	recent := make([]pattern.Color, len(s.recent))
	copy(recent, s.recent)
	s.mu.Unlock()

	res := pattern.Match(s.target, recent)
	if res.Matched {
		s.status.Store(StatusExecuting)
		s.executeTrade(res.Direction)
		if s.Status() == StatusExecuting {
			s.status.Store(StatusRunning)
		}
	}

	s.mu.Lock()
	s.lastCandleClose = k.CloseTime
	s.mu.Unlock()

	s.publish(events.KindCandleProcessed, map[string]any{
		"close_time": k.CloseTime,
		"close":      k.Close,
		"matched":    res.Matched,
	})
}

func (s *Session) publish(kind events.Kind, payload any) {
	if s.deps.Hub == nil {
		return
	}
	s.deps.Hub.Publish(events.New(s.userID, kind, payload))
}

func (s *Session) publishState() {
	s.publish(events.KindStateUpdate, s.Snapshot())
}
