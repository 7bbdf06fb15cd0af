// Package broker adapts session-level trade intents to the brokerage's HTTP
// API. Calls carry a per-user bearer credential and never retry internally;
// retry policy belongs to the caller.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client wraps REST access to the brokerage.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a REST client with a bounded request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// PlaceOrder submits a binary-option order. A nil error means the brokerage
// acknowledged the order; the order code must be fetched from the pending
// history afterwards.
func (c *Client) PlaceOrder(ctx context.Context, credential, symbol, orderType string, amount float64) error {
	body, err := json.Marshal(map[string]any{
		"symbol": symbol,
		"type":   orderType,
		"amount": amount,
	})
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/trading-bo", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("place order status %d", res.StatusCode)
	}

	var resp struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return fmt.Errorf("decode place order response: %w", err)
	}
	if resp.Error != 0 {
		if resp.Message != "" {
			return fmt.Errorf("broker rejected order: %s", resp.Message)
		}
		return fmt.Errorf("broker rejected order (error=%d)", resp.Error)
	}
	return nil
}

// ListPending returns the user's unsettled orders, newest first.
func (c *Client) ListPending(ctx context.Context, credential string, offset, limit int) ([]Order, error) {
	return c.listOrders(ctx, credential, statusPendingQ, offset, limit)
}

// ListCompleted returns the user's settled orders, newest first.
func (c *Client) ListCompleted(ctx context.Context, credential string, offset, limit int) ([]Order, error) {
	return c.listOrders(ctx, credential, statusCompleteQ, offset, limit)
}

func (c *Client) listOrders(ctx context.Context, credential, status string, offset, limit int) ([]Order, error) {
	params := url.Values{}
	params.Set("status", status)
	params.Set("offset", strconv.Itoa(offset))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	u := fmt.Sprintf("%s/history-bo?%s", c.BaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list orders status %d", res.StatusCode)
	}

	var resp struct {
		Error int     `json:"error"`
		Data  []Order `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode order history: %w", err)
	}
	if resp.Error != 0 {
		return nil, fmt.Errorf("broker history error=%d", resp.Error)
	}
	return resp.Data, nil
}

// HasPendingOrders reports whether the brokerage holds any unsettled order
// for the user. Any ambiguous or failed response counts as "pending orders
// exist": skipping a trade is always cheaper than risking a duplicate.
func (c *Client) HasPendingOrders(ctx context.Context, credential string) bool {
	orders, err := c.ListPending(ctx, credential, 0, 1)
	if err != nil {
		return true
	}
	return len(orders) > 0
}

// LastCompletedOrder returns the most recently settled order, or nil when
// the history is empty.
func (c *Client) LastCompletedOrder(ctx context.Context, credential string) (*Order, error) {
	orders, err := c.ListCompleted(ctx, credential, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// LatestPendingOrder returns the newest unsettled order, or nil when there
// is none.
func (c *Client) LatestPendingOrder(ctx context.Context, credential string) (*Order, error) {
	orders, err := c.ListPending(ctx, credential, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// FindCompleted looks up a settled order by code within the most recent
// history pages. Returns nil when the order is still pending or unknown.
func (c *Client) FindCompleted(ctx context.Context, credential, code string) (*Order, error) {
	const pageSize = 50
	for offset := 0; offset < 2*pageSize; offset += pageSize {
		orders, err := c.ListCompleted(ctx, credential, offset, pageSize)
		if err != nil {
			return nil, err
		}
		for i := range orders {
			if orders[i].Code == code {
				return &orders[i], nil
			}
		}
		if len(orders) < pageSize {
			break
		}
	}
	return nil, nil
}
