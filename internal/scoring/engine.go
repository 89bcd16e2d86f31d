// Package scoring implements the weighted multi-component candidate score:
// shaped component inputs, regime-adjusted weights, a fixed-point dominance
// cap on positive contributions, and uncapped penalties.
package scoring

import (
	"fmt"
	"math"

	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/freshness"
	"github.com/quantprep/openprep/internal/regime"
)

// neutralShaped is assumed for a component whose optional input is missing:
// weak evidence, not zero evidence, and never enough to corroborate.
const neutralShaped = 0.25

// Config holds the scoring thresholds and shaping parameters.
type Config struct {
	Freshness freshness.Config `yaml:"freshness"`

	// Entry probability logistic: p = 1/(1+exp(-(score-midpoint)/scale)).
	EntryMidpoint float64 `yaml:"entry_midpoint" default:"55.0"`
	EntryScale    float64 `yaml:"entry_scale" default:"12.0" validate:"gt=0"`

	// DominanceCap bounds any positive component's share of the positive
	// contribution sum.
	DominanceCap float64 `yaml:"dominance_cap" default:"0.40" validate:"gt=0,lte=1"`

	HighConvictionScore float64 `yaml:"high_conviction_score" default:"75.0"`
	StandardScore       float64 `yaml:"standard_score" default:"55.0"`
	MinCorroborating    int     `yaml:"min_corroborating" default:"3" validate:"gte=0"`
	CorroborationBar    float64 `yaml:"corroboration_bar" default:"0.6" validate:"gt=0,lte=1"`
}

// DefaultConfig returns the production scoring configuration.
func DefaultConfig() Config {
	return Config{
		Freshness:           freshness.DefaultConfig(),
		EntryMidpoint:       55.0,
		EntryScale:          12.0,
		DominanceCap:        0.40,
		HighConvictionScore: 75.0,
		StandardScore:       55.0,
		MinCorroborating:    3,
		CorroborationBar:    0.6,
	}
}

// Validate checks threshold coherence.
func (c Config) Validate() error {
	if c.EntryScale <= 0 {
		return fmt.Errorf("entry scale must be positive, got %.2f", c.EntryScale)
	}
	if c.DominanceCap <= 0 || c.DominanceCap > 1 {
		return fmt.Errorf("dominance cap %.2f outside (0, 1]", c.DominanceCap)
	}
	if c.HighConvictionScore < c.StandardScore {
		return fmt.Errorf("high conviction threshold %.1f below standard threshold %.1f", c.HighConvictionScore, c.StandardScore)
	}
	if c.Freshness.NewsHalfLifeSec <= 0 || c.Freshness.QuoteHalfLifeSec <= 0 {
		return fmt.Errorf("freshness half-lives must be positive")
	}
	return nil
}

// corroborationComponents are the per-symbol signals counted toward the
// conviction tier; market-level and bookkeeping components are excluded.
var corroborationComponents = []string{
	CompGap,
	CompRelativeVolume,
	CompMomentum,
	CompGapQuality,
	CompVolumeConfirm,
	CompContinuation,
	CompNews,
	CompNewsFreshness,
	CompSectorRelative,
}

const (
	maxCapIterations = 50
	capEpsilon       = 1e-12
)

// Engine scores normalized candidates. Stateless and safe for concurrent use.
type Engine struct {
	config Config
}

// NewEngine creates a scoring engine; a zero config falls back to defaults.
func NewEngine(cfg Config) *Engine {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Engine{config: cfg}
}

// Score evaluates one candidate against the run's market context, regime,
// and weight set. It is total over normalized candidates: missing optional
// inputs degrade to documented neutrals with warnings, never errors. Inputs
// are not mutated; pass weights already adjusted via AdjustForRegime.
func (e *Engine) Score(c domain.Candidate, mc domain.MarketContext, cls regime.Classification, ws WeightSet) Result {
	shaped, warnings := e.shape(c, mc, cls)

	contributions := make(Components, len(ComponentOrder))
	for _, name := range ComponentOrder {
		w := ws.Weights[name]
		if IsPenalty(name) {
			contributions[name] = -w * shaped[name]
		} else {
			contributions[name] = w * shaped[name]
		}
	}

	capIters, capSkipped := applyDominanceCap(contributions, e.config.DominanceCap)
	if capSkipped {
		warnings = append(warnings, "dominance cap skipped: every positive component is above the cap share")
	}

	raw := 0.0
	for _, name := range ComponentOrder {
		raw += contributions[name]
	}
	total := clamp(raw*100.0, 0, 100)

	corroborating := 0
	for _, name := range corroborationComponents {
		if shaped[name] >= e.config.CorroborationBar {
			corroborating++
		}
	}

	return Result{
		Symbol:               c.Symbol,
		TotalScore:           total,
		Components:           contributions,
		Attribution:          e.attribution(shaped, ws),
		EntryProbability:     logistic((total - e.config.EntryMidpoint) / e.config.EntryScale),
		Tier:                 e.tier(total, corroborating),
		CorroboratingSignals: corroborating,
		Regime:               cls.Regime,
		WeightSet:            ws.Name,
		WeightSetVersion:     ws.Version,
		CapIterations:        capIters,
		Warnings:             warnings,
	}
}

// shape converts raw candidate inputs into per-component values: [0,1] for
// positive components, [-1,1] for macro, [0,1] penalty magnitudes.
func (e *Engine) shape(c domain.Candidate, mc domain.MarketContext, cls regime.Classification) (map[string]float64, []string) {
	shaped := make(map[string]float64, len(ComponentOrder))
	var warnings []string

	gap, hasGap := deref(c.GapPct)
	rvol, hasRvol := deref(c.RelativeVolume)
	atr, hasATR := deref(c.ATRPct)
	momz, hasMom := deref(c.MomentumZ)
	news, hasNews := deref(c.NewsScore)

	warn := func(field string) {
		warnings = append(warnings, fmt.Sprintf("%s missing, component uses neutral %.2f", field, neutralShaped))
	}

	// gap: magnitude with diminishing returns, 20 percent saturates.
	if hasGap {
		shaped[CompGap] = diminish(math.Abs(gap), 2.0, 20.0)
	} else {
		shaped[CompGap] = neutralShaped
		warn("gap_pct")
	}

	// relative_volume: excess over average, 10x saturates.
	if hasRvol {
		shaped[CompRelativeVolume] = diminish(math.Max(0, rvol-1.0), 1.0, 9.0)
	} else {
		shaped[CompRelativeVolume] = neutralShaped
		warn("relative_volume")
	}

	// momentum: z-score magnitude, 4 sigma saturates.
	if hasMom {
		shaped[CompMomentum] = diminish(math.Abs(momz), 1.0, 4.0)
	} else {
		shaped[CompMomentum] = neutralShaped
		warn("momentum_z")
	}

	// gap_quality: gap size relative to daily range.
	if hasGap && hasATR {
		q := math.Abs(gap) / math.Max(atr, 0.5)
		shaped[CompGapQuality] = diminish(q, 0.75, 6.0)
	} else {
		shaped[CompGapQuality] = neutralShaped
		if hasGap && !hasATR {
			warn("atr_pct")
		}
	}

	// volume_confirmation: gap and volume agreeing, geometric mean so both
	// legs are required.
	shaped[CompVolumeConfirm] = math.Sqrt(shaped[CompGap] * shaped[CompRelativeVolume])

	// continuation: momentum pointing the same way as the gap.
	switch {
	case !hasGap || !hasMom || math.Abs(gap) < 0.5:
		shaped[CompContinuation] = neutralShaped
	case (gap > 0) == (momz > 0) && momz != 0:
		shaped[CompContinuation] = diminish(math.Abs(momz), 0.5, 3.0)
	default:
		shaped[CompContinuation] = 0
	}

	// news: absence of a catalyst is zero news, not unknown.
	if hasNews {
		shaped[CompNews] = clamp01(news)
	} else {
		shaped[CompNews] = 0
	}

	// news_freshness: catalyst strength decayed by its age.
	if shaped[CompNews] > 0 {
		shaped[CompNewsFreshness] = shaped[CompNews] * freshness.Weight(c.NewsAgeSec, e.config.Freshness.NewsHalfLifeSec)
	} else {
		shaped[CompNewsFreshness] = 0
	}

	// sector_relative: sector tilt mapped onto [0,1]; unknown sector is 0.5.
	shaped[CompSectorRelative] = (mc.SectorTilt(c.Sector) + 1.0) / 2.0

	// atr_range: tradable volatility sweet spot, roughly 2.5 to 5.5 percent.
	if hasATR {
		shaped[CompATRRange] = rangeBump(atr, 0.5, 2.5, 5.5, 12.0)
	} else {
		shaped[CompATRRange] = neutralShaped
	}

	// data_quality: flag count discounts, stale premarket quotes discount
	// further through the quote decay weight.
	flagPenalty := clamp01(1.0 - 0.2*float64(len(c.QualityFlags)))
	staleness := freshness.Weight(c.PremarketAgeSec, e.config.Freshness.QuoteHalfLifeSec)
	shaped[CompDataQuality] = flagPenalty * (0.5 + 0.5*staleness)

	// macro: the only signed non-penalty component. The sign must survive
	// into the total, a risk-off macro drags every candidate down.
	shaped[CompMacro] = clamp(mc.MacroBias, -1, 1)

	// risk_penalty: runaway volatility without volume behind it.
	if hasATR {
		excess := clamp01((atr - 8.0) / 8.0)
		support := 0.0
		if hasRvol {
			support = clamp01((rvol - 1.0) / 2.0)
		}
		shaped[CompRiskPenalty] = excess * (1.0 - support)
	} else {
		shaped[CompRiskPenalty] = 0
	}

	// counter_trend_penalty: fighting the regime posture.
	shaped[CompCounterTrend] = 0
	if hasGap {
		switch {
		case cls.Regime == regime.RiskOff && gap > 1.0:
			shaped[CompCounterTrend] = diminish(gap, 2.0, 20.0)
		case cls.Regime == regime.RiskOn && gap < -1.0:
			shaped[CompCounterTrend] = diminish(-gap, 2.0, 20.0)
		}
	}

	return shaped, warnings
}

// applyDominanceCap clamps over-concentrated positive contributions to
// capPct of the positive sum, iterating to the fixed point so the bound
// holds against the final sum. The offender set is fixed against the pre-cap
// sum: components within bounds stay untouched even as the shrinking sum
// raises their share, otherwise the cap chases every component toward zero.
func applyDominanceCap(contrib Components, capPct float64) (iterations int, skipped bool) {
	total := 0.0
	var positives []string
	for _, name := range ComponentOrder {
		if !IsPenalty(name) && contrib[name] > 0 {
			positives = append(positives, name)
			total += contrib[name]
		}
	}
	if total <= 0 {
		return 0, false
	}

	var offenders []string
	rest := 0.0
	for _, name := range positives {
		if contrib[name] > capPct*total+capEpsilon {
			offenders = append(offenders, name)
		} else {
			rest += contrib[name]
		}
	}
	if len(offenders) == 0 {
		return 0, false
	}
	// All positive mass is over the cap. The only fixed point is zero, so
	// leave the contributions alone and report the skip.
	if rest <= 0 {
		return 0, true
	}

	for iter := 0; iter < maxCapIterations; iter++ {
		sum := rest
		for _, name := range offenders {
			sum += contrib[name]
		}
		limit := capPct * sum
		exceeded := false
		for _, name := range offenders {
			if contrib[name] > limit+capEpsilon {
				contrib[name] = limit
				exceeded = true
			}
		}
		iterations = iter + 1
		if !exceeded {
			break
		}
	}
	return iterations, false
}

func (e *Engine) tier(total float64, corroborating int) domain.ConfidenceTier {
	switch {
	case total >= e.config.HighConvictionScore && corroborating >= e.config.MinCorroborating:
		return domain.TierHighConviction
	case total >= e.config.StandardScore:
		return domain.TierStandard
	default:
		return domain.TierWatchlist
	}
}

func (e *Engine) attribution(shaped map[string]float64, ws WeightSet) map[string]string {
	out := make(map[string]string, len(ComponentOrder))
	for _, name := range ComponentOrder {
		sign := ""
		if IsPenalty(name) {
			sign = "-"
		}
		out[name] = fmt.Sprintf("%sshaped %.3f x weight %.3f", sign, shaped[name], ws.Weights[name])
	}
	return out
}

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
