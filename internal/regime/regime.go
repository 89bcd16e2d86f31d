// Package regime classifies the market posture for a pipeline run and tracks
// transitions across runs. The classifier is instance-based: history is a
// value object owned by the caller, never package state.
package regime

import (
	"encoding/json"
	"fmt"
)

// Regime is the market posture classification for one run.
type Regime int

const (
	Neutral Regime = iota
	RiskOn
	RiskOff
	Rotation
)

func (r Regime) String() string {
	switch r {
	case RiskOn:
		return "RISK_ON"
	case RiskOff:
		return "RISK_OFF"
	case Rotation:
		return "ROTATION"
	case Neutral:
		return "NEUTRAL"
	default:
		return "NEUTRAL"
	}
}

// MarshalJSON encodes the regime as its canonical uppercase token.
func (r Regime) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes the canonical token form.
func (r *Regime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Parse converts a canonical token into a Regime.
func Parse(s string) (Regime, error) {
	switch s {
	case "RISK_ON":
		return RiskOn, nil
	case "RISK_OFF":
		return RiskOff, nil
	case "ROTATION":
		return Rotation, nil
	case "NEUTRAL":
		return Neutral, nil
	default:
		return Neutral, fmt.Errorf("unknown regime %q", s)
	}
}
