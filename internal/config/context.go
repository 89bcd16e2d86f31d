package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantprep/openprep/internal/domain"
)

// marketContextFile is the YAML shape of the per-run market inputs.
type marketContextFile struct {
	MacroBias     float64            `yaml:"macro_bias"`
	VIX           *float64           `yaml:"vix"`
	SectorBreadth *float64           `yaml:"sector_breadth"`
	SectorBias    map[string]float64 `yaml:"sector_bias"`
	AsOf          time.Time          `yaml:"as_of"`
	MinutesToOpen float64            `yaml:"minutes_to_open"`
}

// LoadMarketContext reads the market context for one run and clamps it to
// documented ranges, the same normalization inline contexts get.
func LoadMarketContext(path string) (domain.MarketContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.MarketContext{}, fmt.Errorf("failed to read context file %s: %w", path, err)
	}

	var f marketContextFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.MarketContext{}, fmt.Errorf("failed to parse context file %s: %w", path, err)
	}

	mc := domain.MarketContext{
		MacroBias:     f.MacroBias,
		VIX:           f.VIX,
		SectorBreadth: f.SectorBreadth,
		SectorBias:    f.SectorBias,
		AsOf:          f.AsOf,
		MinutesToOpen: f.MinutesToOpen,
	}
	mc.Normalize()
	return mc, nil
}
