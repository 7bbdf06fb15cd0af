package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingPeriod   = 30 * time.Second
	pongDeadline = 2 * pingPeriod
	writeWait    = 5 * time.Second
)

// StreamClient manages lightweight candle streaming from the exchange's
// public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client for the given stream endpoint.
func NewStreamClient(streamURL string) *StreamClient {
	return &StreamClient{
		StreamURL: streamURL,
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeKlines dials the stream, sends the subscribe frame for
// symbol@kline_<interval>, and pushes parsed klines into a channel. The
// channel closes when the connection dies; reconnecting is the caller's
// job. It returns the channel and a stop function.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan Kline, func(), error) {
	// The exchange requires lowercase symbols for stream names.
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)

	conn, _, err := c.dialer.DialContext(ctx, c.StreamURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial stream: %w", err)
	}

	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": []string{stream},
		"id":     1,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", stream, err)
	}

	out := make(chan Kline, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
		})
	}

	// Liveness: ping on a fixed period, treat a missed pong as a dead
	// connection via the read deadline.
	_ = conn.SetReadDeadline(time.Now().Add(pongDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongDeadline))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					stop()
					return
				}
			}
		}
	}()

	go func() {
		defer stop()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				// If connection already closed by caller/context, just exit quietly.
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("stream read error: %v", err)
				return
			}

			parsed, ok, err := parseKlineMessage(msg)
			if err != nil {
				log.Printf("stream parse error: %v", err)
				continue
			}
			if !ok {
				continue // subscribe ack or unrelated frame
			}
			out <- parsed
		}
	}()

	return out, stop, nil
}

// parseKlineMessage decodes only the fields we need. The second return is
// false for frames that are not kline updates.
func parseKlineMessage(msg []byte) (Kline, bool, error) {
	var raw struct {
		Data *struct {
			StartTime int64       `json:"t"`
			CloseTime int64       `json:"T"`
			Symbol    string      `json:"s"`
			Interval  string      `json:"i"`
			Open      interface{} `json:"o"`
			Close     interface{} `json:"c"`
			High      interface{} `json:"h"`
			Low       interface{} `json:"l"`
			Volume    interface{} `json:"v"`
			IsClosed  bool        `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Kline{}, false, err
	}
	if raw.Data == nil {
		return Kline{}, false, nil
	}
	return Kline{
		Symbol:    raw.Data.Symbol,
		Interval:  raw.Data.Interval,
		OpenTime:  raw.Data.StartTime,
		CloseTime: raw.Data.CloseTime,
		Open:      toFloat(raw.Data.Open),
		Close:     toFloat(raw.Data.Close),
		High:      toFloat(raw.Data.High),
		Low:       toFloat(raw.Data.Low),
		Volume:    toFloat(raw.Data.Volume),
		IsClosed:  raw.Data.IsClosed,
	}, true, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}
