package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Billy-Davies-2/pricing-game/internal/game"
	"github.com/Billy-Davies-2/pricing-game/internal/models"
)

type defaultsFile struct {
	NumRounds      *int                            `yaml:"numRounds"`
	Config         *models.GameConfig              `yaml:"config"`
	PricingOptions map[string]models.PricingOption `yaml:"pricingOptions"`
}

// LoadDefaults reads reset defaults from a YAML file. Sections missing from
// the file keep the built-in values; an empty path returns them unchanged.
func LoadDefaults(path string) (game.Defaults, error) {
	d := game.BuiltinDefaults()
	if path == "" {
		return d, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("read defaults file: %w", err)
	}
	return ParseDefaults(data)
}

// ParseDefaults decodes a defaults document over the built-in values.
func ParseDefaults(data []byte) (game.Defaults, error) {
	d := game.BuiltinDefaults()

	var f defaultsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return d, fmt.Errorf("parse defaults file: %w", err)
	}

	if f.NumRounds != nil {
		if *f.NumRounds < 1 {
			return d, fmt.Errorf("defaults: numRounds must be at least 1, got %d", *f.NumRounds)
		}
		d.NumRounds = *f.NumRounds
	}

	if f.Config != nil {
		for name, v := range map[string]float64{
			"fixedCost":        f.Config.FixedCost,
			"variableCost":     f.Config.VariableCost,
			"baseDemand":       f.Config.BaseDemand,
			"priceSensitivity": f.Config.PriceSensitivity,
		} {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return d, fmt.Errorf("defaults: config.%s must be a non-negative number", name)
			}
		}
		d.Config = *f.Config
	}

	if len(f.PricingOptions) > 0 {
		opts := make(map[string]models.PricingOption, len(f.PricingOptions))
		for key, opt := range f.PricingOptions {
			if !models.ValidOptionKey(key) {
				return d, fmt.Errorf("defaults: unknown pricing option %q (valid: A, B, C, D)", key)
			}
			if opt.Price < 0 || math.IsNaN(opt.Price) || math.IsInf(opt.Price, 0) {
				return d, fmt.Errorf("defaults: option %s price must be a non-negative number", key)
			}
			if opt.Label == "" {
				opt.Label = key
			}
			opts[key] = opt
		}
		d.PricingOptions = opts
	}

	return d, nil
}
