package domain

import "math"

// QualityFlag marks a data integrity issue detected at ingestion.
type QualityFlag string

const (
	FlagNegativePrice        QualityFlag = "negative_price"
	FlagMissingPreviousClose QualityFlag = "missing_previous_close"
	FlagMissingGap           QualityFlag = "missing_gap"
	FlagMissingVolume        QualityFlag = "missing_volume"
	FlagMissingATR           QualityFlag = "missing_atr"
	FlagMissingMomentum      QualityFlag = "missing_momentum"
	FlagMissingNews          QualityFlag = "missing_news"
	FlagStaleQuote           QualityFlag = "stale_quote"
	FlagImplausibleGap       QualityFlag = "implausible_gap"
	FlagClampedInput         QualityFlag = "clamped_input"
)

// Critical reports whether the flag alone makes a candidate unscoreable.
func (f QualityFlag) Critical() bool {
	switch f {
	case FlagNegativePrice, FlagMissingPreviousClose, FlagImplausibleGap:
		return true
	}
	return false
}

// Candidate is one symbol's pre-market snapshot entering the pipeline.
// Optional inputs are pointers. Normalize decides defaults and flags once at
// ingestion; later stages never re-interpret missing data on their own.
type Candidate struct {
	Symbol          string        `json:"symbol"`
	Price           float64       `json:"price"`
	PreviousClose   *float64      `json:"previous_close,omitempty"`
	GapPct          *float64      `json:"gap_pct,omitempty"`           // percent vs previous close
	RelativeVolume  *float64      `json:"relative_volume,omitempty"`   // 1.0 = average
	ATRPct          *float64      `json:"atr_pct,omitempty"`           // daily ATR as percent of price
	MomentumZ       *float64      `json:"momentum_z,omitempty"`        // multi-day momentum z-score
	Sector          string        `json:"sector,omitempty"`
	NewsScore       *float64      `json:"news_score,omitempty"`        // catalyst strength 0..1
	NewsAgeSec      *float64      `json:"news_age_sec,omitempty"`      // seconds since strongest catalyst
	PremarketAgeSec *float64      `json:"premarket_age_sec,omitempty"` // seconds since last premarket print
	SpreadBps       *float64      `json:"spread_bps,omitempty"`
	QualityFlags    []QualityFlag `json:"quality_flags,omitempty"`
}

// Normalize computes derived fields, clamps inputs to their documented
// ranges, and records quality flags for anything out of shape.
func (c *Candidate) Normalize() {
	if c.Price <= 0 || !finiteVal(c.Price) {
		c.flag(FlagNegativePrice)
	}

	if c.PreviousClose != nil && (!finite(c.PreviousClose) || *c.PreviousClose <= 0) {
		c.PreviousClose = nil
	}
	if c.PreviousClose == nil {
		c.flag(FlagMissingPreviousClose)
	}

	if c.GapPct == nil && c.PreviousClose != nil && c.Price > 0 {
		gap := (c.Price/(*c.PreviousClose) - 1.0) * 100.0
		c.GapPct = &gap
	}
	if !finite(c.GapPct) {
		c.GapPct = nil
		c.flag(FlagMissingGap)
	} else if math.Abs(*c.GapPct) > 200 {
		c.flag(FlagImplausibleGap)
	}

	if !finite(c.RelativeVolume) {
		c.RelativeVolume = nil
		c.flag(FlagMissingVolume)
	}
	if !finite(c.ATRPct) {
		c.ATRPct = nil
		c.flag(FlagMissingATR)
	}
	if !finite(c.MomentumZ) {
		c.MomentumZ = nil
		c.flag(FlagMissingMomentum)
	}

	if !finite(c.NewsScore) {
		c.NewsScore = nil
		c.flag(FlagMissingNews)
	} else if clampRange(c.NewsScore, 0, 1) {
		c.flag(FlagClampedInput)
	}

	if !finite(c.SpreadBps) {
		c.SpreadBps = nil
	}

	// Ages measure the past only; negative means clock skew upstream.
	clampAge(c.NewsAgeSec)
	clampAge(c.PremarketAgeSec)
}

// HasFlag reports whether the candidate carries the given quality flag.
func (c *Candidate) HasFlag(f QualityFlag) bool {
	for _, qf := range c.QualityFlags {
		if qf == f {
			return true
		}
	}
	return false
}

// HasCriticalFlag reports whether any recorded flag is critical.
func (c *Candidate) HasCriticalFlag() bool {
	for _, qf := range c.QualityFlags {
		if qf.Critical() {
			return true
		}
	}
	return false
}

func (c *Candidate) flag(f QualityFlag) {
	if !c.HasFlag(f) {
		c.QualityFlags = append(c.QualityFlags, f)
	}
}

// finite reports a non-nil pointer to a usable float.
func finite(p *float64) bool {
	return p != nil && finiteVal(*p)
}

func finiteVal(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clampRange(p *float64, lo, hi float64) bool {
	if p == nil {
		return false
	}
	if *p < lo {
		*p = lo
		return true
	}
	if *p > hi {
		*p = hi
		return true
	}
	return false
}

func clampAge(p *float64) {
	if p != nil && *p < 0 {
		*p = 0
	}
}
