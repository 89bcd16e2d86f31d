// Package freshness provides the exponential time-decay weighting applied to
// aged signals (news catalysts, premarket quotes) before they enter scoring.
package freshness

import "math"

// NeutralWeight is assumed when a signal carries no timestamp at all:
// unknown age is neither fresh nor dead.
const NeutralWeight = 0.5

// Config holds the decay half-lives used by the scoring stage.
type Config struct {
	NewsHalfLifeSec  float64 `yaml:"news_half_life_sec" default:"5400" validate:"gt=0"`
	QuoteHalfLifeSec float64 `yaml:"quote_half_life_sec" default:"900" validate:"gt=0"`
}

// DefaultConfig returns production decay half-lives: 90 minutes for news
// catalysts, 15 minutes for premarket quotes.
func DefaultConfig() Config {
	return Config{
		NewsHalfLifeSec:  5400,
		QuoteHalfLifeSec: 900,
	}
}

// Weight returns the decay weight in (0, 1] for a signal of the given age.
// The weight halves every halfLifeSec: exactly 0.5 at one half-life, 0.25 at
// two. A nil age yields NeutralWeight; a negative age clamps to zero and so
// yields 1.0.
func Weight(ageSec *float64, halfLifeSec float64) float64 {
	if ageSec == nil || halfLifeSec <= 0 {
		return NeutralWeight
	}
	age := *ageSec
	if age < 0 {
		age = 0
	}
	return math.Exp(-math.Ln2 * age / halfLifeSec)
}
