package scoring

import (
	"bytes"
	"encoding/json"

	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/regime"
)

// Components holds the weighted contribution of every component, penalties
// as negatives. JSON output follows ComponentOrder so artifacts are
// byte-stable across runs.
type Components map[string]float64

// MarshalJSON emits the components as an object in canonical order.
func (c Components) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, name := range ComponentOrder {
		v, ok := c[name]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Result is the full scoring outcome for one candidate. Identical inputs
// produce byte-identical results.
type Result struct {
	Symbol               string                `json:"symbol"`
	TotalScore           float64               `json:"total_score"`
	Components           Components            `json:"components"`
	Attribution          map[string]string     `json:"attribution,omitempty"`
	EntryProbability     float64               `json:"entry_probability"`
	Tier                 domain.ConfidenceTier `json:"tier"`
	CorroboratingSignals int                   `json:"corroborating_signals"`
	Regime               regime.Regime         `json:"regime"`
	WeightSet            string                `json:"weight_set"`
	WeightSetVersion     int                   `json:"weight_set_version"`
	CapIterations        int                   `json:"cap_iterations,omitempty"`
	Warnings             []string              `json:"warnings,omitempty"`
}
