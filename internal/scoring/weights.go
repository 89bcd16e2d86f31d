package scoring

import (
	"fmt"
	"math"

	"github.com/quantprep/openprep/internal/regime"
)

// Component names. ComponentOrder is the canonical ordering used everywhere
// components are listed, summed, or serialized.
const (
	CompGap            = "gap"
	CompRelativeVolume = "relative_volume"
	CompMomentum       = "momentum"
	CompGapQuality     = "gap_quality"
	CompVolumeConfirm  = "volume_confirmation"
	CompContinuation   = "continuation"
	CompNews           = "news"
	CompNewsFreshness  = "news_freshness"
	CompSectorRelative = "sector_relative"
	CompATRRange       = "atr_range"
	CompDataQuality    = "data_quality"
	CompMacro          = "macro"
	CompRiskPenalty    = "risk_penalty"
	CompCounterTrend   = "counter_trend_penalty"
)

var ComponentOrder = []string{
	CompGap,
	CompRelativeVolume,
	CompMomentum,
	CompGapQuality,
	CompVolumeConfirm,
	CompContinuation,
	CompNews,
	CompNewsFreshness,
	CompSectorRelative,
	CompATRRange,
	CompDataQuality,
	CompMacro,
	CompRiskPenalty,
	CompCounterTrend,
}

// penalty components subtract from the total and sit outside the dominance
// cap; macro is signed but capped like any positive when it contributes
// positively.
var penaltyComponent = map[string]bool{
	CompRiskPenalty:  true,
	CompCounterTrend: true,
}

// IsPenalty reports whether the named component is a penalty.
func IsPenalty(name string) bool { return penaltyComponent[name] }

// WeightSet is a named, versioned assignment of weights to components.
// Non-penalty weights must sum to 1.0 within tolerance; penalty weights act
// as multipliers on the penalty magnitudes.
type WeightSet struct {
	Name    string             `yaml:"name" json:"name"`
	Version int                `yaml:"version" json:"version"`
	Weights map[string]float64 `yaml:"weights" json:"weights"`
}

// WeightSumTolerance bounds the drift allowed in the non-penalty weight sum.
const WeightSumTolerance = 0.001

// DefaultWeightSet returns the shipped production weights.
func DefaultWeightSet() WeightSet {
	return WeightSet{
		Name:    "default",
		Version: 1,
		Weights: map[string]float64{
			CompGap:            0.14,
			CompRelativeVolume: 0.12,
			CompMomentum:       0.10,
			CompGapQuality:     0.07,
			CompVolumeConfirm:  0.08,
			CompContinuation:   0.06,
			CompNews:           0.11,
			CompNewsFreshness:  0.09,
			CompSectorRelative: 0.07,
			CompATRRange:       0.06,
			CompDataQuality:    0.04,
			CompMacro:          0.06,
			CompRiskPenalty:    0.50,
			CompCounterTrend:   0.50,
		},
	}
}

// Validate checks completeness, non-negativity, and the non-penalty sum.
func (ws WeightSet) Validate() error {
	if ws.Name == "" {
		return fmt.Errorf("weight set has no name")
	}
	for name := range ws.Weights {
		if !knownComponent(name) {
			return fmt.Errorf("weight set %q names unknown component %q", ws.Name, name)
		}
	}
	sum := 0.0
	for _, name := range ComponentOrder {
		w, ok := ws.Weights[name]
		if !ok {
			return fmt.Errorf("weight set %q missing component %q", ws.Name, name)
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight set %q component %q has invalid weight %v", ws.Name, name, w)
		}
		if !IsPenalty(name) {
			sum += w
		}
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("weight set %q non-penalty weights sum to %.4f, want 1.0 within %.3f", ws.Name, sum, WeightSumTolerance)
	}
	return nil
}

// Clone returns a deep copy; adjustments never touch the receiver.
func (ws WeightSet) Clone() WeightSet {
	out := WeightSet{Name: ws.Name, Version: ws.Version, Weights: make(map[string]float64, len(ws.Weights))}
	for k, v := range ws.Weights {
		out.Weights[k] = v
	}
	return out
}

// RegimeMultipliers scale component weights per regime token. Multipliers
// default to 1.0 for anything unlisted.
type RegimeMultipliers map[string]map[string]float64

// DefaultRegimeMultipliers returns the shipped per-regime tilts: risk-on
// leans into gap momentum, risk-off leans into news quality and punishes
// counter-trend harder, rotation favors sector positioning.
func DefaultRegimeMultipliers() RegimeMultipliers {
	return RegimeMultipliers{
		regime.RiskOn.String(): {
			CompGap:            1.2,
			CompRelativeVolume: 1.15,
			CompContinuation:   1.2,
			CompNews:           0.9,
		},
		regime.RiskOff.String(): {
			CompGap:           0.8,
			CompNews:          1.2,
			CompNewsFreshness: 1.2,
			CompMacro:         1.3,
			CompCounterTrend:  1.5,
			CompRiskPenalty:   1.25,
		},
		regime.Rotation.String(): {
			CompSectorRelative: 1.6,
			CompMomentum:       1.1,
			CompGap:            0.9,
		},
	}
}

// AdjustForRegime applies the regime's multipliers to a deep copy of the
// weight set and re-normalizes the non-penalty weights to sum to 1.0, so the
// score scale is stable across regimes. The input set is never mutated.
func AdjustForRegime(ws WeightSet, r regime.Regime, mult RegimeMultipliers) WeightSet {
	adjusted := ws.Clone()
	scales, ok := mult[r.String()]
	if !ok || len(scales) == 0 {
		return adjusted
	}

	for name, m := range scales {
		if w, exists := adjusted.Weights[name]; exists && m >= 0 {
			adjusted.Weights[name] = w * m
		}
	}

	sum := 0.0
	for _, name := range ComponentOrder {
		if !IsPenalty(name) {
			sum += adjusted.Weights[name]
		}
	}
	if sum > 0 {
		for _, name := range ComponentOrder {
			if !IsPenalty(name) {
				adjusted.Weights[name] /= sum
			}
		}
	}
	return adjusted
}

func knownComponent(name string) bool {
	for _, n := range ComponentOrder {
		if n == name {
			return true
		}
	}
	return false
}
