// Package db provides user-isolated persistence for the copy-trading core.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// ----------------------------------------
// Order queries
// ----------------------------------------

// CreateOrder inserts a new order row. The broker-assigned order code must
// already be known; placement confirmation happens before persistence.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	if o.UserID == "" {
		return ErrUserIDRequired
	}
	if o.OrderCode == "" {
		return errors.New("order_code is required")
	}

	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (id, order_code, user_id, strategy_id, symbol, type, amount,
		                    received_amount, status, open_price, close_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, o.ID, o.OrderCode, o.UserID, o.StrategyID, o.Symbol, o.Type, o.Amount,
		o.ReceivedAmount, o.Status, o.OpenPrice, o.ClosePrice)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrderByCode returns the order with the given broker order code.
func (d *Database) GetOrderByCode(ctx context.Context, code string) (*Order, error) {
	var o Order
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, order_code, user_id, COALESCE(strategy_id, ''), symbol, type, amount,
		       COALESCE(received_amount, 0), status, COALESCE(open_price, 0), COALESCE(close_price, 0),
		       created_at, updated_at
		FROM orders
		WHERE order_code = ?
	`, code).Scan(&o.ID, &o.OrderCode, &o.UserID, &o.StrategyID, &o.Symbol, &o.Type, &o.Amount,
		&o.ReceivedAmount, &o.Status, &o.OpenPrice, &o.ClosePrice, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

// CompleteOrderByCode applies a completion update to a pending order.
// Returns ErrNotFound when no row matches the code.
func (d *Database) CompleteOrderByCode(ctx context.Context, code string, c OrderCompletion) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, received_amount = ?, open_price = ?, close_price = ?, updated_at = CURRENT_TIMESTAMP
		WHERE order_code = ?
	`, c.Status, c.ReceivedAmount, c.OpenPrice, c.ClosePrice, code)
	if err != nil {
		return fmt.Errorf("update order %s: %w", code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOrdersByUser returns a user's orders, most recent first. Pass status ""
// for all statuses.
func (d *Database) ListOrdersByUser(ctx context.Context, userID, status string, offset, limit int) ([]Order, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, order_code, user_id, COALESCE(strategy_id, ''), symbol, type, amount,
		       COALESCE(received_amount, 0), status, COALESCE(open_price, 0), COALESCE(close_price, 0),
		       created_at, updated_at
		FROM orders
		WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderCode, &o.UserID, &o.StrategyID, &o.Symbol, &o.Type, &o.Amount,
			&o.ReceivedAmount, &o.Status, &o.OpenPrice, &o.ClosePrice, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListPendingOrders returns one user's locally-pending orders, oldest
// first, for the history sweep.
func (d *Database) ListPendingOrders(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_code, user_id, COALESCE(strategy_id, ''), symbol, type, amount,
		       COALESCE(received_amount, 0), status, COALESCE(open_price, 0), COALESCE(close_price, 0),
		       created_at, updated_at
		FROM orders
		WHERE user_id = ? AND status = ?
		ORDER BY created_at ASC
	`, userID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderCode, &o.UserID, &o.StrategyID, &o.Symbol, &o.Type, &o.Amount,
			&o.ReceivedAmount, &o.Status, &o.OpenPrice, &o.ClosePrice, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ----------------------------------------
// User queries
// ----------------------------------------

// CreateUser inserts a new user.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail returns nil, nil when no user matches.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// GetUserByID returns nil, nil when no user matches.
func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// ----------------------------------------
// Strategy queries
// ----------------------------------------

// UpsertStrategy creates or replaces a strategy preset.
func (d *Database) UpsertStrategy(ctx context.Context, s Strategy) error {
	seq, err := json.Marshal(s.CapitalSequence)
	if err != nil {
		return fmt.Errorf("marshal capital sequence: %w", err)
	}

	_, err = d.DB.ExecContext(ctx, `
		INSERT INTO strategies (id, name, label, symbol, interval, pattern, capital_sequence,
		                        stop_loss_take_profit, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			label = excluded.label,
			symbol = excluded.symbol,
			interval = excluded.interval,
			pattern = excluded.pattern,
			capital_sequence = excluded.capital_sequence,
			stop_loss_take_profit = excluded.stop_loss_take_profit,
			is_active = excluded.is_active,
			updated_at = CURRENT_TIMESTAMP
	`, s.ID, s.Name, s.Label, s.Symbol, s.Interval, s.Pattern, string(seq),
		s.StopLossTakeProf, s.IsActive)
	if err != nil {
		return fmt.Errorf("upsert strategy %s: %w", s.ID, err)
	}
	return nil
}

// GetStrategy returns a strategy preset by ID.
func (d *Database) GetStrategy(ctx context.Context, id string) (*Strategy, error) {
	var s Strategy
	var seq string
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, name, label, symbol, interval, pattern, capital_sequence,
		       COALESCE(stop_loss_take_profit, ''), is_active, created_at, updated_at
		FROM strategies WHERE id = ?
	`, id).Scan(&s.ID, &s.Name, &s.Label, &s.Symbol, &s.Interval, &s.Pattern, &seq,
		&s.StopLossTakeProf, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query strategy: %w", err)
	}
	if err := json.Unmarshal([]byte(seq), &s.CapitalSequence); err != nil {
		return nil, fmt.Errorf("decode capital sequence for %s: %w", id, err)
	}
	return &s, nil
}

// ListStrategies returns all active strategy presets.
func (d *Database) ListStrategies(ctx context.Context) ([]Strategy, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, name, label, symbol, interval, pattern, capital_sequence,
		       COALESCE(stop_loss_take_profit, ''), is_active, created_at, updated_at
		FROM strategies
		WHERE is_active = 1
		ORDER BY label, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()

	var out []Strategy
	for rows.Next() {
		var s Strategy
		var seq string
		if err := rows.Scan(&s.ID, &s.Name, &s.Label, &s.Symbol, &s.Interval, &s.Pattern, &seq,
			&s.StopLossTakeProf, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		if err := json.Unmarshal([]byte(seq), &s.CapitalSequence); err != nil {
			return nil, fmt.Errorf("decode capital sequence for %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
