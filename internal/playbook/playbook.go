// Package playbook maps scored candidates onto trade archetypes: gap-and-go
// continuation, gap fade reversion, post-news drift, or no trade at all.
package playbook

import (
	"fmt"
	"math"

	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/freshness"
	"github.com/quantprep/openprep/internal/regime"
	"github.com/quantprep/openprep/internal/scoring"
)

// Config holds archetype thresholds and the no-trade zone rules.
type Config struct {
	MinPlaybookScore     float64 `yaml:"min_playbook_score" default:"0.45" validate:"gte=0,lte=1"` // best sub-score below this is NO_TRADE
	MinGapAndGoGapPct    float64 `yaml:"min_gap_and_go_gap_pct" default:"2.0" validate:"gt=0"`
	MinFadeGapPct        float64 `yaml:"min_fade_gap_pct" default:"3.0" validate:"gt=0"`
	MinDriftNews         float64 `yaml:"min_drift_news" default:"0.3" validate:"gte=0,lte=1"`
	KeyLevelProximityPct float64 `yaml:"key_level_proximity_pct" default:"0.4" validate:"gte=0"` // percent of price
	MaxSpreadBps         float64 `yaml:"max_spread_bps" default:"40" validate:"gt=0"`
	NoTradeWindowMin     float64 `yaml:"no_trade_window_min" default:"5" validate:"gte=0"` // minutes after the open
}

// DefaultConfig returns the production playbook thresholds.
func DefaultConfig() Config {
	return Config{
		MinPlaybookScore:     0.45,
		MinGapAndGoGapPct:    2.0,
		MinFadeGapPct:        3.0,
		MinDriftNews:         0.3,
		KeyLevelProximityPct: 0.4,
		MaxSpreadBps:         40,
		NoTradeWindowMin:     5,
	}
}

// Validate checks threshold coherence.
func (c Config) Validate() error {
	if c.MinPlaybookScore < 0 || c.MinPlaybookScore > 1 {
		return fmt.Errorf("min playbook score %.2f outside [0, 1]", c.MinPlaybookScore)
	}
	return nil
}

// SubScores carries all three archetype fits, always populated so the
// artifact shows why an archetype won.
type SubScores struct {
	GapAndGo      float64 `json:"gap_and_go"`
	GapFade       float64 `json:"gap_fade"`
	PostNewsDrift float64 `json:"post_news_drift"`
}

// Plan is the playbook assignment for one scored candidate.
type Plan struct {
	Symbol        string              `json:"symbol"`
	Kind          domain.PlaybookKind `json:"kind"`
	Side          domain.Side         `json:"side"`
	SubScores     SubScores           `json:"sub_scores"`
	BestScore     float64             `json:"best_score"`
	NoTradeZone   bool                `json:"no_trade_zone"`
	ZoneReasons   []string            `json:"zone_reasons,omitempty"`
	RegimeAligned bool                `json:"regime_aligned"`
	Notes         []string            `json:"notes,omitempty"`
}

// Assigner evaluates archetypes. Stateless and safe for concurrent use.
type Assigner struct {
	config    Config
	freshness freshness.Config
}

// NewAssigner creates an assigner; zero configs fall back to defaults.
func NewAssigner(cfg Config, fcfg freshness.Config) *Assigner {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if fcfg == (freshness.Config{}) {
		fcfg = freshness.DefaultConfig()
	}
	return &Assigner{config: cfg, freshness: fcfg}
}

// Assign picks the archetype for a candidate. Sub-scores are computed for
// all three archetypes; the best one wins unless it is below the minimum or
// the no-trade zone overlay fires, in which case the plan is NO_TRADE with
// the sub-scores preserved.
func (a *Assigner) Assign(c domain.Candidate, mc domain.MarketContext, cls regime.Classification, res scoring.Result) Plan {
	plan := Plan{Symbol: c.Symbol}

	gap, hasGap := 0.0, c.GapPct != nil
	if hasGap {
		gap = *c.GapPct
	}
	rvol, hasRvol := 0.0, c.RelativeVolume != nil
	if hasRvol {
		rvol = *c.RelativeVolume
	}
	momz, hasMom := 0.0, c.MomentumZ != nil
	if hasMom {
		momz = *c.MomentumZ
	}
	news := 0.0
	if c.NewsScore != nil {
		news = *c.NewsScore
	}
	newsFresh := news * freshness.Weight(c.NewsAgeSec, a.freshness.NewsHalfLifeSec)

	plan.SubScores.GapAndGo = a.gapAndGo(gap, hasGap, rvol, hasRvol, momz, hasMom, newsFresh, &plan.Notes)
	plan.SubScores.GapFade = a.gapFade(gap, hasGap, rvol, hasRvol, momz, hasMom, newsFresh)
	plan.SubScores.PostNewsDrift = a.postNewsDrift(gap, hasGap, momz, hasMom, news, c.NewsAgeSec)

	kind, side, best := a.pick(plan.SubScores, gap, momz)
	plan.Kind, plan.Side, plan.BestScore = kind, side, best

	if best < a.config.MinPlaybookScore && kind != domain.PlaybookNoTrade {
		plan.Kind = domain.PlaybookNoTrade
		plan.Side = domain.SideNone
		plan.Notes = append(plan.Notes, fmt.Sprintf("best archetype %.2f below minimum %.2f", best, a.config.MinPlaybookScore))
	}

	if plan.Kind != domain.PlaybookNoTrade && res.Tier == domain.TierWatchlist {
		plan.Notes = append(plan.Notes, "watchlist conviction behind this plan")
	}

	if zone, reasons := a.noTradeZone(c, mc); zone {
		plan.NoTradeZone = true
		plan.ZoneReasons = reasons
		plan.Kind = domain.PlaybookNoTrade
		plan.Side = domain.SideNone
	}

	plan.RegimeAligned = regimeAligned(plan.Kind, plan.Side, cls.Regime)
	return plan
}

// gapAndGo: continuation in the gap direction, fueled by volume and a fresh
// catalyst.
func (a *Assigner) gapAndGo(gap float64, hasGap bool, rvol float64, hasRvol bool, momz float64, hasMom bool, newsFresh float64, notes *[]string) float64 {
	if !hasGap || math.Abs(gap) < a.config.MinGapAndGoGapPct {
		return 0
	}
	volume := 0.25
	if hasRvol {
		volume = clamp01((rvol - 1.0) / 4.0)
	}
	agree := 0.25
	if hasMom {
		if sameSign(gap, momz) {
			agree = clamp01(math.Abs(momz) / 2.0)
		} else {
			agree = 0
		}
	}
	if !hasRvol {
		*notes = append(*notes, "gap_and_go judged without volume data")
	}
	return 0.35*clamp01(math.Abs(gap)/8.0) + 0.30*volume + 0.20*clamp01(newsFresh) + 0.15*agree
}

// gapFade: an outsized gap with nothing behind it, traded back toward the
// previous close.
func (a *Assigner) gapFade(gap float64, hasGap bool, rvol float64, hasRvol bool, momz float64, hasMom bool, newsFresh float64) float64 {
	if !hasGap || math.Abs(gap) < a.config.MinFadeGapPct {
		return 0
	}
	weakVolume := 0.5
	if hasRvol {
		weakVolume = 1.0 - clamp01((rvol-1.0)/3.0)
	}
	counter := 0.5
	if hasMom {
		if sameSign(gap, momz) {
			counter = 0
		} else {
			counter = clamp01(math.Abs(momz) / 2.0)
		}
	}
	return 0.40*clamp01(math.Abs(gap)/12.0) + 0.30*weakVolume + 0.20*(1.0-clamp01(newsFresh)) + 0.10*counter
}

// postNewsDrift: a strong fresh catalyst with a still-moderate gap, drifting
// in the news direction.
func (a *Assigner) postNewsDrift(gap float64, hasGap bool, momz float64, hasMom bool, news float64, newsAge *float64) float64 {
	if news < a.config.MinDriftNews {
		return 0
	}
	decay := freshness.Weight(newsAge, a.freshness.NewsHalfLifeSec)
	moderate := 0.25
	if hasGap {
		moderate = moderateGap(math.Abs(gap))
	}
	drift := 0.25
	if hasMom {
		drift = clamp01(math.Abs(momz) / 3.0)
	}
	return 0.45*clamp01(news) + 0.25*decay + 0.15*moderate + 0.15*drift
}

// pick chooses the winning archetype and its trade direction.
func (a *Assigner) pick(s SubScores, gap, momz float64) (domain.PlaybookKind, domain.Side, float64) {
	best := domain.PlaybookNoTrade
	side := domain.SideNone
	bestScore := 0.0

	if s.GapAndGo > bestScore {
		best, bestScore = domain.PlaybookGapAndGo, s.GapAndGo
		side = directionOf(gap)
	}
	if s.GapFade > bestScore {
		best, bestScore = domain.PlaybookGapFade, s.GapFade
		side = opposite(directionOf(gap))
	}
	if s.PostNewsDrift > bestScore {
		best, bestScore = domain.PlaybookPostNewsDrift, s.PostNewsDrift
		if d := directionOf(gap); d != domain.SideNone {
			side = d
		} else {
			side = directionOf(momz)
		}
	}
	if best == domain.PlaybookNoTrade {
		side = domain.SideNone
	}
	return best, side, bestScore
}

// noTradeZone flags conditions under which no archetype should be traded:
// price pinned to a round key level, a spread too wide to execute, or the
// opening window where prints are unreliable.
func (a *Assigner) noTradeZone(c domain.Candidate, mc domain.MarketContext) (bool, []string) {
	var reasons []string

	if c.Price > 0 {
		level := nearestKeyLevel(c.Price)
		distPct := math.Abs(c.Price-level) / c.Price * 100.0
		if distPct < a.config.KeyLevelProximityPct {
			reasons = append(reasons, fmt.Sprintf("price %.2f within %.2f%% of key level %.2f", c.Price, a.config.KeyLevelProximityPct, level))
		}
	}

	if c.SpreadBps != nil && *c.SpreadBps > a.config.MaxSpreadBps {
		reasons = append(reasons, fmt.Sprintf("spread %.0fbps above limit %.0fbps", *c.SpreadBps, a.config.MaxSpreadBps))
	}

	if mc.MinutesToOpen <= 0 && -mc.MinutesToOpen < a.config.NoTradeWindowMin {
		reasons = append(reasons, fmt.Sprintf("inside the first %.0f minutes after the open", a.config.NoTradeWindowMin))
	}

	return len(reasons) > 0, reasons
}

// nearestKeyLevel snaps to the round numbers intraday traders watch: half
// dollars under 20, whole dollars under 100, five dollar marks above.
func nearestKeyLevel(price float64) float64 {
	spacing := 1.0
	switch {
	case price < 20:
		spacing = 0.5
	case price < 100:
		spacing = 1.0
	default:
		spacing = 5.0
	}
	return math.Round(price/spacing) * spacing
}

// regimeAligned reports whether the archetype direction agrees with the
// regime posture. NO_TRADE is never aligned, neutral regimes fight nothing.
func regimeAligned(kind domain.PlaybookKind, side domain.Side, r regime.Regime) bool {
	if kind == domain.PlaybookNoTrade {
		return false
	}
	switch r {
	case regime.RiskOn:
		return side == domain.SideLong
	case regime.RiskOff:
		return side == domain.SideShort || kind == domain.PlaybookGapFade
	case regime.Rotation:
		return kind == domain.PlaybookPostNewsDrift || kind == domain.PlaybookGapFade
	default:
		return true
	}
}

func directionOf(v float64) domain.Side {
	switch {
	case v > 0:
		return domain.SideLong
	case v < 0:
		return domain.SideShort
	default:
		return domain.SideNone
	}
}

func opposite(s domain.Side) domain.Side {
	switch s {
	case domain.SideLong:
		return domain.SideShort
	case domain.SideShort:
		return domain.SideLong
	default:
		return domain.SideNone
	}
}

// moderateGap peaks for gaps between 1.5 and 6 percent, the drift sweet
// spot: big enough to matter, small enough to leave room.
func moderateGap(absGap float64) float64 {
	switch {
	case absGap <= 0.5 || absGap >= 12:
		return 0
	case absGap >= 1.5 && absGap <= 6:
		return 1
	case absGap < 1.5:
		return (absGap - 0.5) / 1.0
	default:
		return (12 - absGap) / 6.0
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
