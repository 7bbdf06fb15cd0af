// Package market maintains one resilient candle stream per (symbol,
// interval) and broadcasts updates to every subscribed trading session,
// so a hundred sessions watching the same pair cost one connection.
package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"copytrade-core/pkg/market/exchange"
)

// ErrFeedExhausted is delivered to subscribers when the reconnect budget
// runs out; trading must stop rather than retry forever.
var ErrFeedExhausted = errors.New("market feed reconnect attempts exhausted")

// Dialer abstracts the stream transport.
type Dialer interface {
	SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan exchange.Kline, func(), error)
}

// Subscriber receives candle updates and connection-health callbacks.
// Callbacks run on the feed goroutine; implementations must not block.
type Subscriber interface {
	OnCandle(k exchange.Kline)
	OnFeedUp()
	OnFeedDown(err error, fatal bool)
}

// Options tunes the reconnect policy.
type Options struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// DefaultOptions mirrors the production reconnect schedule.
func DefaultOptions() Options {
	return Options{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    10,
	}
}

// Manager owns the shared feeds, refcounted by subscription.
type Manager struct {
	mu     sync.Mutex
	dialer Dialer
	opts   Options
	feeds  map[string]*feed
}

// NewManager builds a feed manager around the given transport.
func NewManager(dialer Dialer, opts Options) *Manager {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 1 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	return &Manager{
		dialer: dialer,
		opts:   opts,
		feeds:  make(map[string]*feed),
	}
}

// Subscribe attaches a subscriber to the shared feed for symbol+interval,
// creating the feed on first use. The returned function detaches the
// subscriber; the last detach tears the connection down.
func (m *Manager) Subscribe(symbol, interval string, sub Subscriber) func() {
	key := symbol + "@" + interval

	m.mu.Lock()
	f, ok := m.feeds[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &feed{
			key:      key,
			symbol:   symbol,
			interval: interval,
			dialer:   m.dialer,
			opts:     m.opts,
			cancel:   cancel,
			subs:     make(map[*subscription]struct{}),
			onGone:   func() { m.remove(key) },
		}
		m.feeds[key] = f
		go f.run(ctx)
	}
	s := &subscription{sub: sub}
	f.attach(s)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			if f.detach(s) == 0 {
				f.cancel()
				m.remove(key)
			}
		})
	}
}

func (m *Manager) remove(key string) {
	m.mu.Lock()
	delete(m.feeds, key)
	m.mu.Unlock()
}

// ActiveFeeds reports how many stream connections are currently owned.
func (m *Manager) ActiveFeeds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.feeds)
}

// Shutdown tears down every feed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for key, f := range m.feeds {
		f.cancel()
		delete(m.feeds, key)
	}
	m.mu.Unlock()
}

type subscription struct {
	sub Subscriber
}

type feed struct {
	key      string
	symbol   string
	interval string
	dialer   Dialer
	opts     Options
	cancel   context.CancelFunc
	onGone   func()

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func (f *feed) attach(s *subscription) {
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
}

func (f *feed) detach(s *subscription) int {
	f.mu.Lock()
	delete(f.subs, s)
	n := len(f.subs)
	f.mu.Unlock()
	return n
}

func (f *feed) each(fn func(Subscriber)) {
	f.mu.Lock()
	snapshot := make([]Subscriber, 0, len(f.subs))
	for s := range f.subs {
		snapshot = append(snapshot, s.sub)
	}
	f.mu.Unlock()
	for _, s := range snapshot {
		fn(s)
	}
}

func (f *feed) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.opts.InitialBackoff
	bo.Multiplier = 2
	bo.MaxInterval = f.opts.MaxBackoff
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ch, stop, err := f.dialer.SubscribeKlines(ctx, f.symbol, f.interval)
		if err != nil {
			failures++
			if failures >= f.opts.MaxAttempts {
				f.giveUp(failures, err)
				return
			}
			wait := bo.NextBackOff()
			log.Printf("market feed %s: connect attempt %d failed (%v), retrying in %v", f.key, failures, err, wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		log.Printf("market feed %s: connected", f.key)
		f.each(func(s Subscriber) { s.OnFeedUp() })

		delivered := f.consume(ctx, ch)
		stop()

		select {
		case <-ctx.Done():
			return
		default:
		}

		if delivered {
			// Only a stream that actually produced data earns a fresh
			// attempt budget; a connection that drops before its first
			// update is as good as a refused dial.
			failures = 0
			bo.Reset()
		} else {
			failures++
		}

		dropErr := errors.New("stream dropped")
		if !delivered {
			dropErr = errors.New("stream dropped before first update")
		}
		if failures >= f.opts.MaxAttempts {
			f.giveUp(failures, dropErr)
			return
		}

		log.Printf("market feed %s: stream dropped, reconnecting", f.key)
		f.each(func(s Subscriber) { s.OnFeedDown(dropErr, false) })

		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (f *feed) giveUp(attempts int, cause error) {
	log.Printf("market feed %s: giving up after %d attempts: %v", f.key, attempts, cause)
	f.each(func(s Subscriber) {
		s.OnFeedDown(fmt.Errorf("%w: %v", ErrFeedExhausted, cause), true)
	})
	f.onGone()
}

func (f *feed) consume(ctx context.Context, ch <-chan exchange.Kline) bool {
	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered
		case k, ok := <-ch:
			if !ok {
				return delivered
			}
			delivered = true
			f.each(func(s Subscriber) { s.OnCandle(k) })
		}
	}
}
