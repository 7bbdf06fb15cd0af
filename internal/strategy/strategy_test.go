package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrade-core/internal/pattern"
	"copytrade-core/pkg/db"
)

func validConfig() Config {
	return Config{
		ID:              "s1",
		Symbol:          "BTCUSDT",
		Interval:        "1m",
		Pattern:         "U-D",
		CapitalSequence: []float64{1, 2, 4},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	c := validConfig()
	c.Symbol = ""
	assert.ErrorIs(t, c.Validate(), ErrMissingSymbol)

	c = validConfig()
	c.Interval = ""
	assert.ErrorIs(t, c.Validate(), ErrMissingInterval)

	c = validConfig()
	c.Pattern = "U-Q"
	assert.ErrorIs(t, c.Validate(), pattern.ErrInvalidPattern)

	c = validConfig()
	c.CapitalSequence = []float64{1, 0}
	assert.ErrorIs(t, c.Validate(), ErrBadCapital)

	// An empty pattern is valid: trade on every candle.
	c = validConfig()
	c.Pattern = ""
	assert.NoError(t, c.Validate())
}

func TestFromRecord(t *testing.T) {
	rec := db.Strategy{
		ID:              "preset-1",
		Name:            "Preset",
		Label:           "ai",
		Symbol:          "ETHUSDT",
		Interval:        "5m",
		Pattern:         "D-D-D",
		CapitalSequence: []float64{1, 3, 7},
	}
	cfg := FromRecord(rec)
	assert.Equal(t, "preset-1", cfg.ID)
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, "D-D-D", cfg.Pattern)
	assert.NoError(t, cfg.Validate())
}

func writePresetFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPresets(t *testing.T) {
	path := writePresetFile(t, `
strategies:
  - id: p1
    name: One
    symbol: BTCUSDT
    interval: 1m
    pattern: D-D
    capital_sequence: [1, 2, 4]
    is_active: true
  - id: p2
    name: Two
    label: expert
    symbol: ETHUSDT
    interval: 5m
    pattern: ""
    capital_sequence: [5]
`)

	presets, err := LoadPresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 2)
	assert.Equal(t, "p1", presets[0].ID)
	assert.Equal(t, []float64{1, 2, 4}, presets[0].CapitalSequence)
	assert.Equal(t, "expert", presets[1].Label)
}

func TestLoadPresetsMissingFile(t *testing.T) {
	_, err := LoadPresets(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSyncPresetsToDB(t *testing.T) {
	database, err := db.New(":memory:")
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, db.ApplyMigrations(database))

	presets := []Preset{{
		ID:              "p1",
		Name:            "One",
		Symbol:          "BTCUSDT",
		Interval:        "1m",
		Pattern:         "D-D",
		CapitalSequence: []float64{1, 2},
		IsActive:        true,
	}}
	require.NoError(t, SyncPresetsToDB(context.Background(), database, presets))

	rec, err := database.GetStrategy(context.Background(), "p1")
	require.NoError(t, err)
	// The label falls back to the default surface.
	assert.Equal(t, "ai", rec.Label)
	assert.Equal(t, []float64{1, 2}, rec.CapitalSequence)
}

func TestSyncPresetsRejectsBrokenEntry(t *testing.T) {
	database, err := db.New(":memory:")
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, db.ApplyMigrations(database))

	presets := []Preset{{
		ID:              "bad",
		Symbol:          "BTCUSDT",
		Interval:        "1m",
		Pattern:         "X-Y",
		CapitalSequence: []float64{1},
	}}
	assert.Error(t, SyncPresetsToDB(context.Background(), database, presets))
}
