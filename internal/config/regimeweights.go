package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/quantprep/openprep/internal/regime"
	"github.com/quantprep/openprep/internal/scoring"
)

// regimeWeightsFile is the legacy on-disk multiplier format, kept readable by
// the yaml.v2 decoder that wrote it.
type regimeWeightsFile struct {
	Regimes map[string]map[string]float64 `yaml:"regimes"`
}

// maxRegimeMultiplier bounds any single tilt. Larger values let one regime
// collapse the weight set onto a single component.
const maxRegimeMultiplier = 5.0

// MultipliersLoader handles loading and validation of per-regime component
// multipliers.
type MultipliersLoader struct {
	multipliers scoring.RegimeMultipliers
}

// NewMultipliersLoader creates an empty loader.
func NewMultipliersLoader() *MultipliersLoader {
	return &MultipliersLoader{}
}

// LoadFromFile loads regime multipliers from a YAML configuration file.
func (l *MultipliersLoader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read regime weights file %s: %w", path, err)
	}

	var rf regimeWeightsFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("failed to parse regime weights file: %w", err)
	}

	mult := scoring.RegimeMultipliers(rf.Regimes)
	if err := validateMultipliers(mult); err != nil {
		return fmt.Errorf("regime weights validation failed: %w", err)
	}

	l.multipliers = mult
	return nil
}

// LoadDefault loads the built-in multiplier tilts.
func (l *MultipliersLoader) LoadDefault() error {
	mult := scoring.DefaultRegimeMultipliers()
	if err := validateMultipliers(mult); err != nil {
		return fmt.Errorf("default regime weights validation failed: %w", err)
	}
	l.multipliers = mult
	return nil
}

// Multipliers returns the loaded multiplier map.
func (l *MultipliersLoader) Multipliers() (scoring.RegimeMultipliers, error) {
	if l.multipliers == nil {
		return nil, fmt.Errorf("regime weights not loaded, call LoadFromFile or LoadDefault first")
	}
	return l.multipliers, nil
}

// AvailableRegimes returns the regime tokens with configured tilts, sorted.
func (l *MultipliersLoader) AvailableRegimes() []string {
	regimes := make([]string, 0, len(l.multipliers))
	for name := range l.multipliers {
		regimes = append(regimes, name)
	}
	sort.Strings(regimes)
	return regimes
}

func validateMultipliers(mult scoring.RegimeMultipliers) error {
	knownRegime := map[string]bool{
		regime.RiskOn.String():   true,
		regime.RiskOff.String():  true,
		regime.Rotation.String(): true,
		regime.Neutral.String():  true,
	}
	knownComponent := make(map[string]bool, len(scoring.ComponentOrder))
	for _, name := range scoring.ComponentOrder {
		knownComponent[name] = true
	}

	for regimeName, scales := range mult {
		if !knownRegime[regimeName] {
			return fmt.Errorf("unknown regime: %s", regimeName)
		}
		for component, m := range scales {
			if !knownComponent[component] {
				return fmt.Errorf("regime %s names unknown component %q", regimeName, component)
			}
			if m < 0 {
				return fmt.Errorf("regime %s has negative multiplier for %s: %.3f", regimeName, component, m)
			}
			if m > maxRegimeMultiplier {
				return fmt.Errorf("regime %s multiplier for %s (%.2f) above maximum (%.1f)", regimeName, component, m, maxRegimeMultiplier)
			}
		}
	}
	return nil
}
