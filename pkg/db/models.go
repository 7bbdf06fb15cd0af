package db

import "time"

// Order lifecycle statuses as reported by the brokerage.
const (
	StatusPending = "PENDING"
	StatusWin     = "WIN"
	StatusLoss    = "LOSS"
)

// Order directions.
const (
	TypeLong  = "long"
	TypeShort = "short"
)

// Order is a durable record of one brokerage trade. The broker-assigned
// order code is the natural external key; rows are created when placement
// is confirmed and only ever move PENDING -> WIN/LOSS.
type Order struct {
	ID             string    `json:"id"`
	OrderCode      string    `json:"order_code"`
	UserID         string    `json:"user_id"`
	StrategyID     string    `json:"strategy_id,omitempty"`
	Symbol         string    `json:"symbol"`
	Type           string    `json:"type"` // long / short
	Amount         float64   `json:"amount"`
	ReceivedAmount float64   `json:"received_amount"` // payout, 0 while pending
	Status         string    `json:"status"`
	OpenPrice      float64   `json:"open_price"`
	ClosePrice     float64   `json:"close_price"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OrderCompletion carries the fields the reconciliation path is allowed to
// change on a pending order.
type OrderCompletion struct {
	Status         string  `json:"status"` // WIN or LOSS
	ReceivedAmount float64 `json:"received_amount"`
	OpenPrice      float64 `json:"open_price"`
	ClosePrice     float64 `json:"close_price"`
}

// Strategy is a selectable preset: a candle pattern plus a capital
// management sequence.
type Strategy struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Label            string    `json:"label"` // product surface, e.g. "ai" or "expert"
	Symbol           string    `json:"symbol"`
	Interval         string    `json:"interval"`
	Pattern          string    `json:"pattern"`          // "-"-separated U/D tokens, "" trades every candle
	CapitalSequence  []float64 `json:"capital_sequence"` // stored as JSON
	StopLossTakeProf string    `json:"stop_loss_take_profit,omitempty"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
