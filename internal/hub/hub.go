// Package hub fans session events out to each user's live listeners.
package hub

import (
	"sync"

	"copytrade-core/internal/events"
)

// SnapshotFunc returns the current session snapshot for a user, replayed to
// new subscribers so a reconnecting client does not start blind.
type SnapshotFunc func(userID string) (any, bool)

// Hub is a per-user pub/sub broker using channels.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string][]chan events.Event
	snapshot  SnapshotFunc
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{listeners: make(map[string][]chan events.Event)}
}

// SetSnapshotFunc installs the snapshot provider. Must be called before
// subscribers arrive; typically wired once at startup.
func (h *Hub) SetSnapshotFunc(fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Subscribe registers a listener for a user and returns the channel and an
// unsubscribe function. The current session snapshot, if any, is replayed
// immediately as a STATE_UPDATE.
func (h *Hub) Subscribe(userID string, buffer int) (<-chan events.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	h.mu.Lock()
	ch := make(chan events.Event, buffer)
	h.listeners[userID] = append(h.listeners[userID], ch)
	snapshot := h.snapshot
	h.mu.Unlock()

	if snapshot != nil {
		if snap, ok := snapshot(userID); ok {
			ch <- events.New(userID, events.KindStateUpdate, snap)
		}
	}

	unsub := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.listeners[userID]
		for i, c := range subs {
			if c == ch {
				close(c)
				h.listeners[userID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(h.listeners[userID]) == 0 {
			delete(h.listeners, userID)
		}
	}

	return ch, unsub
}

// Publish fans the event out to the user's current listeners. Slow
// listeners are skipped; push delivery is best effort.
func (h *Hub) Publish(e events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners[e.UserID] {
		select {
		case ch <- e:
		default:
			// drop if subscriber is slow; keep the broker non-blocking
		}
	}
}

// ListenerCount reports how many live listeners a user has.
func (h *Hub) ListenerCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[userID])
}

// TotalListeners reports live listeners across all users.
func (h *Hub) TotalListeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.listeners {
		n += len(subs)
	}
	return n
}
