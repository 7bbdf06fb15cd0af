package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPlaceOrderSendsCredentialAndPayload(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trading-bo" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": 0})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	err := client.PlaceOrder(context.Background(), "tok-123", "BTCUSDT", "long", 2.5)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected bearer credential, got %q", gotAuth)
	}
	if gotBody["symbol"] != "BTCUSDT" || gotBody["type"] != "long" || gotBody["amount"] != 2.5 {
		t.Errorf("unexpected payload: %+v", gotBody)
	}
}

func TestPlaceOrderBrokerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": 1, "message": "insufficient balance"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	err := client.PlaceOrder(context.Background(), "tok", "BTCUSDT", "short", 1)
	if err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestPlaceOrderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	if err := client.PlaceOrder(context.Background(), "tok", "BTCUSDT", "long", 1); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestHasPendingOrdersFailSafe(t *testing.T) {
	t.Run("server error counts as pending", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second)
		if !client.HasPendingOrders(context.Background(), "tok") {
			t.Error("a failed pending check must report pending orders")
		}
	})

	t.Run("unreachable broker counts as pending", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
		if !client.HasPendingOrders(context.Background(), "tok") {
			t.Error("an unreachable broker must report pending orders")
		}
	})

	t.Run("empty history reports none", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"error": 0, "data": []any{}})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second)
		if client.HasPendingOrders(context.Background(), "tok") {
			t.Error("empty history should report no pending orders")
		}
	})
}

func TestListOrdersQueryAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history-bo" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("status") != "completed" || q.Get("offset") != "0" || q.Get("limit") != "1" {
			t.Errorf("unexpected query: %v", q)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": 0,
			"data": []map[string]any{{
				"code":            "bo-77",
				"symbol":          "BTCUSDT",
				"type":            "short",
				"amount":          2,
				"received_amount": 3.8,
				"status":          "WIN",
			}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	ord, err := client.LastCompletedOrder(context.Background(), "tok")
	if err != nil {
		t.Fatalf("LastCompletedOrder: %v", err)
	}
	if ord == nil || ord.Code != "bo-77" || ord.Status != StatusWin || ord.ReceivedAmount != 3.8 {
		t.Fatalf("unexpected order: %+v", ord)
	}
	if !ord.Completed() {
		t.Error("WIN order should report completed")
	}
}

func TestFindCompletedPagesHistory(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		offset := r.URL.Query().Get("offset")
		data := make([]map[string]any, 0, 50)
		if offset == "0" {
			for i := 0; i < 50; i++ {
				data = append(data, map[string]any{"code": "first-page", "status": "LOSS"})
			}
		} else {
			data = append(data, map[string]any{"code": "bo-target", "status": "WIN"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"error": 0, "data": data})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	ord, err := client.FindCompleted(context.Background(), "tok", "bo-target")
	if err != nil {
		t.Fatalf("FindCompleted: %v", err)
	}
	if ord == nil || ord.Code != "bo-target" {
		t.Fatalf("expected bo-target on second page, got %+v", ord)
	}
	if calls != 2 {
		t.Fatalf("expected 2 history pages, got %d", calls)
	}

	missing, err := client.FindCompleted(context.Background(), "tok", "never-existed")
	if err != nil {
		t.Fatalf("FindCompleted: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown code, got %+v", missing)
	}
}
