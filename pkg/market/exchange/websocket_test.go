package exchange

import "testing"

func TestParseKlineMessage(t *testing.T) {
	msg := []byte(`{
		"e": "kline",
		"s": "BTCUSDT",
		"k": {
			"t": 1700000000000,
			"T": 1700000059999,
			"s": "BTCUSDT",
			"i": "1m",
			"o": "64000.10",
			"c": "64100.55",
			"h": "64200.00",
			"l": "63950.00",
			"v": "12.5",
			"x": true
		}
	}`)

	k, ok, err := parseKlineMessage(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ok {
		t.Fatal("expected a kline frame")
	}
	if k.Symbol != "BTCUSDT" || k.Interval != "1m" {
		t.Fatalf("unexpected identity: %+v", k)
	}
	if k.CloseTime != 1700000059999 {
		t.Fatalf("unexpected close time: %d", k.CloseTime)
	}
	if k.Open != 64000.10 || k.Close != 64100.55 {
		t.Fatalf("unexpected prices: %+v", k)
	}
	if !k.IsClosed {
		t.Fatal("expected closed candle")
	}
	if !k.IsUp() {
		t.Fatal("close above open should report up")
	}
}

func TestParseKlineMessageIgnoresAcks(t *testing.T) {
	// Subscribe acknowledgements carry no kline payload.
	k, ok, err := parseKlineMessage([]byte(`{"result":null,"id":1}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ok {
		t.Fatalf("ack frame should not produce a kline: %+v", k)
	}
}

func TestParseKlineMessageRejectsGarbage(t *testing.T) {
	if _, _, err := parseKlineMessage([]byte(`{not json`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestKlineIsUp(t *testing.T) {
	up := Kline{Open: 100, Close: 101}
	down := Kline{Open: 100, Close: 99}
	flat := Kline{Open: 100, Close: 100}

	if !up.IsUp() {
		t.Error("rising candle should be up")
	}
	if down.IsUp() {
		t.Error("falling candle should not be up")
	}
	// A doji counts as down; the engine needs a deterministic color.
	if flat.IsUp() {
		t.Error("flat candle should not be up")
	}
}
