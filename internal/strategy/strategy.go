// Package strategy defines the strategy configuration both product
// surfaces (AI picks and expert bots) feed into the trading engine, plus
// the YAML preset loader that seeds the catalogue.
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"copytrade-core/internal/pattern"
	"copytrade-core/internal/progression"
	"copytrade-core/pkg/db"
)

var (
	ErrMissingSymbol   = errors.New("strategy symbol is required")
	ErrMissingInterval = errors.New("strategy interval is required")
	ErrBadCapital      = errors.New("capital sequence must be a non-empty list of positive amounts")
)

// Config is the active strategy a session trades: a candle pattern plus a
// capital-management sequence. StopLossTakeProfit is display-only metadata;
// the engine does not enforce it.
type Config struct {
	ID                 string    `json:"id,omitempty"`
	Name               string    `json:"name,omitempty"`
	Label              string    `json:"label,omitempty"`
	Symbol             string    `json:"symbol"`
	Interval           string    `json:"interval"`
	Pattern            string    `json:"pattern"`
	CapitalSequence    []float64 `json:"capital_sequence"`
	StopLossTakeProfit string    `json:"stop_loss_take_profit,omitempty"`
}

// Validate rejects configs that must never enter the state machine.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Symbol) == "" {
		return ErrMissingSymbol
	}
	if strings.TrimSpace(c.Interval) == "" {
		return ErrMissingInterval
	}
	if _, err := pattern.Parse(c.Pattern); err != nil {
		return fmt.Errorf("pattern %q: %w", c.Pattern, err)
	}
	if !progression.Validate(c.CapitalSequence) {
		return ErrBadCapital
	}
	return nil
}

// FromRecord converts a stored preset into a runnable config.
func FromRecord(s db.Strategy) Config {
	return Config{
		ID:                 s.ID,
		Name:               s.Name,
		Label:              s.Label,
		Symbol:             s.Symbol,
		Interval:           s.Interval,
		Pattern:            s.Pattern,
		CapitalSequence:    s.CapitalSequence,
		StopLossTakeProfit: s.StopLossTakeProf,
	}
}
