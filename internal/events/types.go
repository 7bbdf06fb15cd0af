package events

import "time"

// Kind enumerates the tagged events pushed to live subscribers.
type Kind string

const (
	KindStateUpdate     Kind = "STATE_UPDATE"
	KindNewTrade        Kind = "NEW_TRADE"
	KindOrderCompleted  Kind = "ORDER_COMPLETED"
	KindCandleProcessed Kind = "CANDLE_PROCESSED"
	KindWSConnected     Kind = "WS_CONNECTED"
	KindWSDisconnected  Kind = "WS_DISCONNECTED"
	KindError           Kind = "ERROR"
)

// Event is a single push notification for one user.
type Event struct {
	Kind    Kind      `json:"type"`
	UserID  string    `json:"-"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// New builds an event stamped with the current time.
func New(userID string, kind Kind, payload any) Event {
	return Event{Kind: kind, UserID: userID, Payload: payload, At: time.Now()}
}
