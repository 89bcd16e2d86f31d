package domain

import "time"

// MarketContext carries the per-run market inputs shared by every candidate:
// macro posture, volatility, and breadth. One context per pipeline run.
type MarketContext struct {
	MacroBias     float64            `json:"macro_bias"`               // -1 (risk-off) .. +1 (risk-on)
	VIX           *float64           `json:"vix,omitempty"`
	SectorBreadth *float64           `json:"sector_breadth,omitempty"` // advancing share 0..1
	SectorBias    map[string]float64 `json:"sector_bias,omitempty"`    // per-sector tilt -1..+1
	AsOf          time.Time          `json:"as_of"`
	MinutesToOpen float64            `json:"minutes_to_open"` // negative once the session is open
}

// Normalize clamps context inputs to their documented ranges.
func (mc *MarketContext) Normalize() {
	if mc.MacroBias < -1 {
		mc.MacroBias = -1
	}
	if mc.MacroBias > 1 {
		mc.MacroBias = 1
	}
	if !finite(mc.VIX) || (mc.VIX != nil && *mc.VIX < 0) {
		mc.VIX = nil
	}
	if !finite(mc.SectorBreadth) {
		mc.SectorBreadth = nil
	} else {
		clampRange(mc.SectorBreadth, 0, 1)
	}
	for sector, bias := range mc.SectorBias {
		if bias < -1 {
			mc.SectorBias[sector] = -1
		}
		if bias > 1 {
			mc.SectorBias[sector] = 1
		}
	}
}

// SectorTilt returns the configured tilt for a sector, 0 when unknown.
func (mc *MarketContext) SectorTilt(sector string) float64 {
	if mc.SectorBias == nil {
		return 0
	}
	return mc.SectorBias[sector]
}
