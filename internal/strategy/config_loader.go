package strategy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"copytrade-core/pkg/db"
)

// Preset represents a strategy entry in the YAML catalogue.
type Preset struct {
	ID                 string    `yaml:"id"`
	Name               string    `yaml:"name"`
	Label              string    `yaml:"label"`
	Symbol             string    `yaml:"symbol"`
	Interval           string    `yaml:"interval"`
	Pattern            string    `yaml:"pattern"`
	CapitalSequence    []float64 `yaml:"capital_sequence"`
	StopLossTakeProfit string    `yaml:"stop_loss_take_profit"`
	IsActive           bool      `yaml:"is_active"`
}

// PresetFile is the top-level YAML structure.
type PresetFile struct {
	Strategies []Preset `yaml:"strategies"`
}

// LoadPresets reads strategy presets from a YAML file.
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return file.Strategies, nil
}

// SyncPresetsToDB upserts presets into the strategies table, validating
// each so a broken catalogue entry cannot reach a session later.
func SyncPresetsToDB(ctx context.Context, database *db.Database, presets []Preset) error {
	for _, p := range presets {
		cfg := Config{
			Symbol:          p.Symbol,
			Interval:        p.Interval,
			Pattern:         p.Pattern,
			CapitalSequence: p.CapitalSequence,
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("preset %s: %w", p.ID, err)
		}

		label := p.Label
		if label == "" {
			label = "ai"
		}
		rec := db.Strategy{
			ID:               p.ID,
			Name:             p.Name,
			Label:            label,
			Symbol:           p.Symbol,
			Interval:         p.Interval,
			Pattern:          p.Pattern,
			CapitalSequence:  p.CapitalSequence,
			StopLossTakeProf: p.StopLossTakeProfit,
			IsActive:         p.IsActive,
		}
		if err := database.UpsertStrategy(ctx, rec); err != nil {
			return fmt.Errorf("upsert preset %s: %w", p.ID, err)
		}
	}
	return nil
}
