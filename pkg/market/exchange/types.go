package exchange

// Kline represents a single candlestick update from the stream.
type Kline struct {
	Symbol    string
	Interval  string
	OpenTime  int64 // ms
	CloseTime int64 // ms
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsClosed  bool // true once the bar's time window has closed
}

// IsUp reports the candle color; a doji counts as down.
func (k Kline) IsUp() bool {
	return k.Close > k.Open
}
