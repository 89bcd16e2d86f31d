package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/regime"
)

func fp(v float64) *float64 { return &v }

func baseInputs() Inputs {
	return Inputs{
		Candidate: domain.Candidate{
			Symbol:          "ACME",
			Price:           24.50,
			PreviousClose:   fp(22.80),
			GapPct:          fp(7.456),
			RelativeVolume:  fp(3.2),
			ATRPct:          fp(4.1),
			MomentumZ:       fp(1.8),
			Sector:          "technology",
			NewsScore:       fp(0.7),
			NewsAgeSec:      fp(1800),
			PremarketAgeSec: fp(120),
			SpreadBps:       fp(12),
			QualityFlags:    []domain.QualityFlag{domain.FlagClampedInput},
		},
		Regime:           regime.RiskOn,
		MacroBias:        0.4,
		SectorTilt:       0.25,
		WeightSet:        "default",
		WeightSetVersion: 3,
	}
}

func TestComputeIsStable(t *testing.T) {
	a := Compute(baseInputs(), 300)
	b := Compute(baseInputs(), 300)
	assert.Equal(t, a, b, "identical inputs must produce identical fingerprints")
	assert.Len(t, a, 64, "expected hex-encoded sha256")
}

func TestComputeCoversScoreRelevantFields(t *testing.T) {
	base := Compute(baseInputs(), 300)

	mutations := map[string]func(*Inputs){
		"symbol":          func(in *Inputs) { in.Candidate.Symbol = "ACMX" },
		"price":           func(in *Inputs) { in.Candidate.Price = 24.51 },
		"previous_close":  func(in *Inputs) { in.Candidate.PreviousClose = fp(22.81) },
		"gap_pct":         func(in *Inputs) { in.Candidate.GapPct = fp(7.5) },
		"relative_volume": func(in *Inputs) { in.Candidate.RelativeVolume = fp(3.3) },
		"atr_pct":         func(in *Inputs) { in.Candidate.ATRPct = fp(4.2) },
		"momentum_z":      func(in *Inputs) { in.Candidate.MomentumZ = fp(1.9) },
		"sector":          func(in *Inputs) { in.Candidate.Sector = "energy" },
		"news_score":      func(in *Inputs) { in.Candidate.NewsScore = fp(0.8) },
		"spread_bps":      func(in *Inputs) { in.Candidate.SpreadBps = fp(13) },
		"quality_flags": func(in *Inputs) {
			in.Candidate.QualityFlags = append(in.Candidate.QualityFlags, domain.FlagMissingATR)
		},
		"regime":             func(in *Inputs) { in.Regime = regime.RiskOff },
		"macro_bias":         func(in *Inputs) { in.MacroBias = -0.4 },
		"sector_tilt":        func(in *Inputs) { in.SectorTilt = 0.5 },
		"weight_set_name":    func(in *Inputs) { in.WeightSet = "aggressive" },
		"weight_set_version": func(in *Inputs) { in.WeightSetVersion = 4 },
		"open_window":        func(in *Inputs) { in.InOpenWindow = true },
	}

	for name, mutate := range mutations {
		in := baseInputs()
		mutate(&in)
		assert.NotEqual(t, base, Compute(in, 300), "changing %s must dirty the fingerprint", name)
	}
}

func TestComputeBucketsSignalAges(t *testing.T) {
	base := Compute(baseInputs(), 300)

	// Jitter inside the 300s bucket is invisible to the hash.
	in := baseInputs()
	in.Candidate.NewsAgeSec = fp(1900)
	assert.Equal(t, base, Compute(in, 300), "1800s and 1900s share the 300s bucket")

	in = baseInputs()
	in.Candidate.PremarketAgeSec = fp(299)
	assert.Equal(t, base, Compute(in, 300), "120s and 299s share the first bucket")

	// Crossing a bucket boundary is not.
	in = baseInputs()
	in.Candidate.NewsAgeSec = fp(2101)
	assert.NotEqual(t, base, Compute(in, 300), "crossing into the next bucket must dirty")

	in = baseInputs()
	in.Candidate.PremarketAgeSec = fp(301)
	assert.NotEqual(t, base, Compute(in, 300))
}

func TestComputeDistinguishesNilFromZero(t *testing.T) {
	withZero := baseInputs()
	withZero.Candidate.NewsScore = fp(0)

	withNil := baseInputs()
	withNil.Candidate.NewsScore = nil

	assert.NotEqual(t, Compute(withZero, 300), Compute(withNil, 300),
		"absent news and zero news are different inputs")
}

func TestComputeFlagOrderInsensitive(t *testing.T) {
	a := baseInputs()
	a.Candidate.QualityFlags = []domain.QualityFlag{domain.FlagMissingATR, domain.FlagClampedInput}

	b := baseInputs()
	b.Candidate.QualityFlags = []domain.QualityFlag{domain.FlagClampedInput, domain.FlagMissingATR}

	assert.Equal(t, Compute(a, 300), Compute(b, 300), "flag order must not affect the fingerprint")
}

func TestComputeDefaultsBucketWidth(t *testing.T) {
	assert.Equal(t, Compute(baseInputs(), 0), Compute(baseInputs(), DefaultAgeBucketSec))
}
