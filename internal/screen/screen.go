// Package screen is the eligibility filter between ingestion and scoring.
// Evaluation is total: every normalized candidate gets a verdict, one check
// per rule, and the screener never mutates its input.
package screen

import (
	"fmt"
	"math"

	"github.com/quantprep/openprep/internal/domain"
)

// Config holds the exclusion thresholds.
type Config struct {
	MinPrice          float64 `yaml:"min_price" default:"5.0" validate:"gte=0"`           // penny stock floor
	MaxGapDownPct     float64 `yaml:"max_gap_down_pct" default:"-25.0" validate:"lt=0"`   // halt or delisting risk below
	AnomalyGapPct     float64 `yaml:"anomaly_gap_pct" default:"60.0" validate:"gt=0"`     // gaps past this need a catalyst
	AnomalyNewsBar    float64 `yaml:"anomaly_news_bar" default:"0.5" validate:"gte=0"`    // catalyst strength that excuses one
	MinPrevCloseRatio float64 `yaml:"min_prev_close_ratio" default:"0.2" validate:"gt=0"` // price/prev_close sanity band
	MaxPrevCloseRatio float64 `yaml:"max_prev_close_ratio" default:"5.0" validate:"gt=0"`
	MaxQuoteAgeSec    float64 `yaml:"max_quote_age_sec" default:"1800" validate:"gt=0"` // stale premarket data cutoff
}

// DefaultConfig returns the production screen thresholds.
func DefaultConfig() Config {
	return Config{
		MinPrice:          5.0,
		MaxGapDownPct:     -25.0,
		AnomalyGapPct:     60.0,
		AnomalyNewsBar:    0.5,
		MinPrevCloseRatio: 0.2,
		MaxPrevCloseRatio: 5.0,
		MaxQuoteAgeSec:    1800,
	}
}

// Validate checks threshold coherence.
func (c Config) Validate() error {
	if c.MaxGapDownPct >= 0 {
		return fmt.Errorf("max gap down must be negative, got %.1f", c.MaxGapDownPct)
	}
	if c.MinPrevCloseRatio >= c.MaxPrevCloseRatio {
		return fmt.Errorf("previous close ratio band [%.2f, %.2f] is inverted", c.MinPrevCloseRatio, c.MaxPrevCloseRatio)
	}
	return nil
}

// Check records one rule evaluation, pass or fail.
type Check struct {
	Name        string  `json:"name"`
	Passed      bool    `json:"passed"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Description string  `json:"description"`
}

// Verdict is the full screen outcome for one candidate.
type Verdict struct {
	Symbol         string   `json:"symbol"`
	Eligible       bool     `json:"eligible"`
	Checks         []Check  `json:"checks"`
	FailureReasons []string `json:"failure_reasons,omitempty"`
}

// Screener applies the exclusion rules.
type Screener struct {
	config Config
}

// NewScreener creates a screener; a zero config falls back to defaults.
func NewScreener(cfg Config) *Screener {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Screener{config: cfg}
}

// Evaluate runs every rule against a normalized candidate and returns the
// verdict. A rule whose inputs are absent passes with a note; the dedicated
// data rules catch the absence itself.
func (s *Screener) Evaluate(c domain.Candidate) Verdict {
	cfg := s.config
	v := Verdict{Symbol: c.Symbol}

	record := func(chk Check) {
		v.Checks = append(v.Checks, chk)
		if !chk.Passed {
			v.FailureReasons = append(v.FailureReasons, fmt.Sprintf("%s: %s", chk.Name, chk.Description))
		}
	}

	record(Check{
		Name:        "price_floor",
		Passed:      c.Price >= cfg.MinPrice,
		Value:       c.Price,
		Threshold:   cfg.MinPrice,
		Description: fmt.Sprintf("price %.2f vs floor %.2f", c.Price, cfg.MinPrice),
	})

	prevOK := c.PreviousClose != nil
	chk := Check{Name: "previous_close", Passed: prevOK, Threshold: 0}
	if prevOK {
		chk.Value = *c.PreviousClose
		chk.Description = fmt.Sprintf("previous close %.2f present", *c.PreviousClose)
	} else {
		chk.Description = "previous close missing, gap cannot be trusted"
	}
	record(chk)

	chk = Check{Name: "severe_gap_down", Passed: true, Threshold: cfg.MaxGapDownPct}
	if c.GapPct != nil {
		chk.Value = *c.GapPct
		chk.Passed = *c.GapPct > cfg.MaxGapDownPct
		chk.Description = fmt.Sprintf("gap %.1f%% vs cutoff %.1f%%", *c.GapPct, cfg.MaxGapDownPct)
	} else {
		chk.Description = "no gap available"
	}
	record(chk)

	record(s.anomalyCheck(c))

	critical := c.HasCriticalFlag()
	stale := c.HasFlag(domain.FlagStaleQuote) ||
		(c.PremarketAgeSec != nil && *c.PremarketAgeSec > cfg.MaxQuoteAgeSec)
	chk = Check{Name: "data_quality", Passed: !critical && !stale, Threshold: cfg.MaxQuoteAgeSec}
	if c.PremarketAgeSec != nil {
		chk.Value = *c.PremarketAgeSec
	}
	switch {
	case critical:
		chk.Description = fmt.Sprintf("critical quality flags: %v", c.QualityFlags)
	case stale:
		chk.Description = fmt.Sprintf("premarket quote %.0fs old, cutoff %.0fs", chk.Value, cfg.MaxQuoteAgeSec)
	default:
		chk.Description = "data quality acceptable"
	}
	record(chk)

	chk = Check{Name: "volume_sanity", Passed: true}
	if c.RelativeVolume != nil {
		chk.Value = *c.RelativeVolume
		chk.Passed = *c.RelativeVolume > 0
		chk.Description = fmt.Sprintf("relative volume %.2f", *c.RelativeVolume)
	} else {
		chk.Description = "relative volume missing"
	}
	record(chk)

	v.Eligible = len(v.FailureReasons) == 0
	return v
}

// anomalyCheck flags gaps that look like corporate actions rather than
// trades: an outsized gap with no catalyst behind it, or a price so far from
// the previous close that a split or reverse split went unadjusted.
func (s *Screener) anomalyCheck(c domain.Candidate) Check {
	cfg := s.config
	chk := Check{Name: "corporate_action_anomaly", Passed: true, Threshold: cfg.AnomalyGapPct}

	if c.PreviousClose != nil && c.Price > 0 {
		ratio := c.Price / *c.PreviousClose
		if ratio < cfg.MinPrevCloseRatio || ratio > cfg.MaxPrevCloseRatio {
			chk.Passed = false
			chk.Value = ratio
			chk.Description = fmt.Sprintf("price/previous close ratio %.2f outside [%.2f, %.2f], unadjusted split likely", ratio, cfg.MinPrevCloseRatio, cfg.MaxPrevCloseRatio)
			return chk
		}
	}

	if c.GapPct == nil {
		chk.Description = "no gap available"
		return chk
	}
	chk.Value = *c.GapPct

	if math.Abs(*c.GapPct) >= cfg.AnomalyGapPct {
		news := 0.0
		if c.NewsScore != nil {
			news = *c.NewsScore
		}
		if news < cfg.AnomalyNewsBar {
			chk.Passed = false
			chk.Description = fmt.Sprintf("gap %.1f%% with catalyst %.2f below %.2f, IPO or split suspected", *c.GapPct, news, cfg.AnomalyNewsBar)
			return chk
		}
		chk.Description = fmt.Sprintf("gap %.1f%% excused by catalyst %.2f", *c.GapPct, news)
		return chk
	}

	chk.Description = fmt.Sprintf("gap %.1f%% inside anomaly bounds", *c.GapPct)
	return chk
}
