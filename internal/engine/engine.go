// Package engine owns the in-memory registry of trading sessions and the
// control surface the API layer talks to. State lives for the process
// lifetime only; a restart drops all active sessions by design.
package engine

import (
	"errors"
	"log"
	"sync"

	"copytrade-core/internal/hub"
	"copytrade-core/internal/market"
	"copytrade-core/internal/monitor"
	"copytrade-core/internal/session"
	"copytrade-core/internal/strategy"
)

var (
	// ErrAlreadyRunning rejects a Start while the user's session is live.
	ErrAlreadyRunning = errors.New("trading already in progress")
	// ErrMissingCredential rejects a Start without a broker credential.
	ErrMissingCredential = errors.New("broker credential is required")
	// ErrNoSession is returned by Stop when nothing is running.
	ErrNoSession = errors.New("no active session")
)

// Engine creates, indexes, and tears down sessions.
type Engine struct {
	deps    session.Deps
	feeds   *market.Manager
	hub     *hub.Hub
	opts    session.Options
	metrics *monitor.Metrics

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	sess        *session.Session
	unsubscribe func()
}

// New wires an engine. The hub's snapshot provider is installed here so
// new push subscribers immediately see their session state, and the
// metrics sink is threaded into every session the engine builds.
func New(deps session.Deps, feeds *market.Manager, h *hub.Hub, opts session.Options, metrics *monitor.Metrics) *Engine {
	if deps.Metrics == nil {
		deps.Metrics = metrics
	}
	e := &Engine{
		deps:     deps,
		feeds:    feeds,
		hub:      h,
		opts:     opts,
		metrics:  metrics,
		sessions: make(map[string]*entry),
	}
	if h != nil {
		h.SetSnapshotFunc(func(userID string) (any, bool) {
			st, ok := e.GetState(userID)
			return st, ok
		})
	}
	return e
}

// Start validates the config and spins up a fresh session for the user.
// Configuration problems are rejected here and never enter the state
// machine.
func (e *Engine) Start(userID string, cfg strategy.Config, credential string) error {
	if credential == "" {
		return ErrMissingCredential
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cur, ok := e.sessions[userID]; ok {
		switch cur.sess.Status() {
		case session.StatusRunning, session.StatusExecuting:
			return ErrAlreadyRunning
		}
		// Stopped leftovers are replaced by the fresh session below.
		cur.unsubscribe()
		delete(e.sessions, userID)
	}

	sess := session.New(userID, cfg, credential, e.deps, e.opts)
	sess.SetFatalHandler(func(err error) {
		log.Printf("engine: session %s feed failure: %v", userID, err)
		_ = e.Stop(userID)
	})

	unsubscribe := e.feeds.Subscribe(cfg.Symbol, cfg.Interval, sess)
	e.sessions[userID] = &entry{sess: sess, unsubscribe: unsubscribe}

	sess.Run()
	if e.metrics != nil {
		e.metrics.IncrementSessionsStarted()
	}
	log.Printf("engine: session started for %s (%s %s, pattern %q)", userID, cfg.Symbol, cfg.Interval, cfg.Pattern)
	return nil
}

// Stop tears down the user's session; valid from any non-terminal state.
func (e *Engine) Stop(userID string) error {
	e.mu.Lock()
	cur, ok := e.sessions[userID]
	if ok {
		delete(e.sessions, userID)
	}
	e.mu.Unlock()

	if !ok {
		return ErrNoSession
	}

	cur.sess.Stop()
	cur.unsubscribe()
	if e.metrics != nil {
		e.metrics.IncrementSessionsStopped()
	}
	return nil
}

// GetState returns the session snapshot for a user.
func (e *Engine) GetState(userID string) (session.State, bool) {
	e.mu.Lock()
	cur, ok := e.sessions[userID]
	e.mu.Unlock()
	if !ok {
		return session.State{}, false
	}
	return cur.sess.Snapshot(), true
}

// ActiveCredentials exposes the credentials of live sessions for the
// history sweep, which reconciles on each user's behalf.
func (e *Engine) ActiveCredentials() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.sessions))
	for userID, cur := range e.sessions {
		if cred := cur.sess.Credential(); cred != "" {
			out[userID] = cred
		}
	}
	return out
}

// ActiveSessions reports how many sessions are registered.
func (e *Engine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Shutdown stops every session; used on process exit.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	entries := make([]*entry, 0, len(e.sessions))
	for userID, cur := range e.sessions {
		entries = append(entries, cur)
		delete(e.sessions, userID)
	}
	e.mu.Unlock()

	for _, cur := range entries {
		cur.sess.Stop()
		cur.unsubscribe()
	}
}
