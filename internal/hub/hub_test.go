package hub

import (
	"testing"
	"time"

	"copytrade-core/internal/events"
)

func recv(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestPublishReachesOnlyOwner(t *testing.T) {
	h := New()

	chA, unsubA := h.Subscribe("user-a", 4)
	defer unsubA()
	chB, unsubB := h.Subscribe("user-b", 4)
	defer unsubB()

	h.Publish(events.New("user-a", events.KindNewTrade, "payload"))

	e := recv(t, chA)
	if e.Kind != events.KindNewTrade {
		t.Fatalf("expected NEW_TRADE, got %s", e.Kind)
	}

	select {
	case e := <-chB:
		t.Fatalf("user-b received user-a's event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSnapshotReplayOnSubscribe(t *testing.T) {
	h := New()
	h.SetSnapshotFunc(func(userID string) (any, bool) {
		if userID == "user-a" {
			return map[string]string{"status": "RUNNING"}, true
		}
		return nil, false
	})

	chA, unsubA := h.Subscribe("user-a", 4)
	defer unsubA()

	e := recv(t, chA)
	if e.Kind != events.KindStateUpdate {
		t.Fatalf("expected replayed STATE_UPDATE, got %s", e.Kind)
	}

	// No session, no replay.
	chB, unsubB := h.Subscribe("user-b", 4)
	defer unsubB()
	select {
	case e := <-chB:
		t.Fatalf("unexpected replay for sessionless user: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowListenerIsSkipped(t *testing.T) {
	h := New()

	ch, unsub := h.Subscribe("user-a", 1)
	defer unsub()

	// Fill the buffer, then keep publishing; the hub must not block.
	for i := 0; i < 10; i++ {
		h.Publish(events.New("user-a", events.KindCandleProcessed, i))
	}

	e := recv(t, ch)
	if e.Kind != events.KindCandleProcessed {
		t.Fatalf("expected CANDLE_PROCESSED, got %s", e.Kind)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := New()

	ch, unsub := h.Subscribe("user-a", 4)
	if got := h.ListenerCount("user-a"); got != 1 {
		t.Fatalf("expected 1 listener, got %d", got)
	}

	unsub()
	if got := h.ListenerCount("user-a"); got != 0 {
		t.Fatalf("expected 0 listeners after unsubscribe, got %d", got)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}

	// Publishing to a user with no listeners is a no-op.
	h.Publish(events.New("user-a", events.KindError, nil))
}
