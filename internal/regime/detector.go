package regime

import (
	"fmt"
	"math"
	"time"

	"github.com/quantprep/openprep/internal/domain"
)

// DetectorConfig holds the classification thresholds.
type DetectorConfig struct {
	VIXEnterRiskOff      float64 `yaml:"vix_enter_risk_off" default:"30.0" validate:"gt=0"`     // enter RISK_OFF at or above
	VIXExitRiskOff       float64 `yaml:"vix_exit_risk_off" default:"27.0" validate:"gt=0"`      // leave RISK_OFF only below
	RiskOffMacroMax      float64 `yaml:"risk_off_macro_max" default:"-0.5"`                     // macro at or below forces RISK_OFF
	RiskOnMacroMin       float64 `yaml:"risk_on_macro_min" default:"0.3"`                       // macro floor for RISK_ON
	RiskOnBreadthMin     float64 `yaml:"risk_on_breadth_min" default:"0.6" validate:"gte=0"`    // breadth floor for RISK_ON
	RotationMacroBand    float64 `yaml:"rotation_macro_band" default:"0.3" validate:"gte=0"`    // |macro| below counts as neutral macro
	RotationBreadthMax   float64 `yaml:"rotation_breadth_max" default:"0.35" validate:"gte=0"`  // narrow breadth ceiling
	RotationSectorSpread float64 `yaml:"rotation_sector_spread" default:"1.0" validate:"gte=0"` // sector bias dispersion trigger
}

// DefaultDetectorConfig returns the production thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		VIXEnterRiskOff:      30.0,
		VIXExitRiskOff:       27.0,
		RiskOffMacroMax:      -0.5,
		RiskOnMacroMin:       0.3,
		RiskOnBreadthMin:     0.6,
		RotationMacroBand:    0.3,
		RotationBreadthMax:   0.35,
		RotationSectorSpread: 1.0,
	}
}

// Validate checks threshold coherence.
func (c DetectorConfig) Validate() error {
	if c.VIXExitRiskOff >= c.VIXEnterRiskOff {
		return fmt.Errorf("vix exit threshold %.2f must be below enter threshold %.2f", c.VIXExitRiskOff, c.VIXEnterRiskOff)
	}
	if c.RiskOffMacroMax >= c.RiskOnMacroMin {
		return fmt.Errorf("risk-off macro ceiling %.2f must be below risk-on floor %.2f", c.RiskOffMacroMax, c.RiskOnMacroMin)
	}
	return nil
}

// Classification is the regime decision for one run, with every rule that
// fired listed in order.
type Classification struct {
	Regime        Regime    `json:"regime"`
	Reasons       []string  `json:"reasons"`
	Changed       bool      `json:"changed"`
	Consecutive   int       `json:"consecutive_runs"`
	MacroBias     float64   `json:"macro_bias"`
	VIX           *float64  `json:"vix,omitempty"`
	SectorBreadth *float64  `json:"sector_breadth,omitempty"`
	AsOf          time.Time `json:"as_of"`
}

// Classifier applies the threshold rules with VIX hysteresis.
type Classifier struct {
	config DetectorConfig
}

// NewClassifier creates a classifier; a zero config falls back to defaults.
func NewClassifier(cfg DetectorConfig) *Classifier {
	if cfg == (DetectorConfig{}) {
		cfg = DefaultDetectorConfig()
	}
	return &Classifier{config: cfg}
}

// Classify decides the regime for a run and records it into hist. The VIX
// rule is hysteretic: RISK_OFF is entered at VIXEnterRiskOff and held until
// VIX drops below VIXExitRiskOff, so a reading oscillating inside the band
// cannot flap the regime.
func (cl *Classifier) Classify(mc domain.MarketContext, hist *History) Classification {
	cfg := cl.config
	prev, hasPrev := hist.Current()
	holdingRiskOff := hasPrev && prev == RiskOff

	var regime Regime
	var reasons []string

	switch {
	case mc.VIX != nil && *mc.VIX >= cfg.VIXEnterRiskOff:
		regime = RiskOff
		reasons = append(reasons, fmt.Sprintf("vix %.1f at or above enter threshold %.1f", *mc.VIX, cfg.VIXEnterRiskOff))

	case holdingRiskOff && mc.VIX != nil && *mc.VIX >= cfg.VIXExitRiskOff:
		regime = RiskOff
		reasons = append(reasons, fmt.Sprintf("vix %.1f inside hysteresis band [%.1f, %.1f), holding risk-off", *mc.VIX, cfg.VIXExitRiskOff, cfg.VIXEnterRiskOff))

	case mc.MacroBias <= cfg.RiskOffMacroMax:
		regime = RiskOff
		reasons = append(reasons, fmt.Sprintf("macro bias %.2f at or below %.2f", mc.MacroBias, cfg.RiskOffMacroMax))

	case mc.MacroBias >= cfg.RiskOnMacroMin && mc.SectorBreadth != nil && *mc.SectorBreadth >= cfg.RiskOnBreadthMin:
		regime = RiskOn
		reasons = append(reasons,
			fmt.Sprintf("macro bias %.2f at or above %.2f", mc.MacroBias, cfg.RiskOnMacroMin),
			fmt.Sprintf("breadth %.2f at or above %.2f", *mc.SectorBreadth, cfg.RiskOnBreadthMin))
		if mc.VIX != nil {
			reasons = append(reasons, fmt.Sprintf("vix %.1f below enter threshold %.1f", *mc.VIX, cfg.VIXEnterRiskOff))
		}

	case math.Abs(mc.MacroBias) < cfg.RotationMacroBand && cl.narrowParticipation(mc):
		regime = Rotation
		reasons = append(reasons, fmt.Sprintf("macro bias %.2f inside neutral band %.2f", mc.MacroBias, cfg.RotationMacroBand))
		if mc.SectorBreadth != nil && *mc.SectorBreadth <= cfg.RotationBreadthMax {
			reasons = append(reasons, fmt.Sprintf("breadth %.2f at or below %.2f, leadership is narrow", *mc.SectorBreadth, cfg.RotationBreadthMax))
		}
		if spread := sectorSpread(mc.SectorBias); spread >= cfg.RotationSectorSpread {
			reasons = append(reasons, fmt.Sprintf("sector bias spread %.2f at or above %.2f", spread, cfg.RotationSectorSpread))
		}

	default:
		regime = Neutral
		reasons = append(reasons, "no classification rule fired")
	}

	changed := hist.Record(mc.AsOf, regime)

	return Classification{
		Regime:        regime,
		Reasons:       reasons,
		Changed:       changed,
		Consecutive:   hist.Consecutive(),
		MacroBias:     mc.MacroBias,
		VIX:           mc.VIX,
		SectorBreadth: mc.SectorBreadth,
		AsOf:          mc.AsOf,
	}
}

func (cl *Classifier) narrowParticipation(mc domain.MarketContext) bool {
	if mc.SectorBreadth != nil && *mc.SectorBreadth <= cl.config.RotationBreadthMax {
		return true
	}
	return sectorSpread(mc.SectorBias) >= cl.config.RotationSectorSpread
}

// sectorSpread is the max-min range of sector tilts, 0 when fewer than two.
func sectorSpread(bias map[string]float64) float64 {
	if len(bias) < 2 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range bias {
		lo = math.Min(lo, b)
		hi = math.Max(hi, b)
	}
	return hi - lo
}
