package broker

// Order statuses on the brokerage side.
const (
	StatusPending   = "PENDING"
	StatusWin       = "WIN"
	StatusLoss      = "LOSS"
	statusPendingQ  = "pending"
	statusCompleteQ = "completed"
)

// Order is an order as reported by the brokerage history endpoint.
type Order struct {
	Code           string  `json:"code"`
	Symbol         string  `json:"symbol"`
	Type           string  `json:"type"` // long / short
	Amount         float64 `json:"amount"`
	ReceivedAmount float64 `json:"received_amount"`
	Status         string  `json:"status"`
	OpenPrice      float64 `json:"open_price"`
	ClosePrice     float64 `json:"close_price"`
	CreatedAt      int64   `json:"created_at"` // ms
}

// Completed reports whether the brokerage has settled this order.
func (o Order) Completed() bool {
	return o.Status == StatusWin || o.Status == StatusLoss
}
