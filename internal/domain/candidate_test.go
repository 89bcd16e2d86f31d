package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestNormalizeComputesGapFromPreviousClose(t *testing.T) {
	c := Candidate{Symbol: "ACME", Price: 11.0, PreviousClose: fp(10.0)}
	c.Normalize()

	require.NotNil(t, c.GapPct, "gap should be derived when inputs allow")
	assert.InDelta(t, 10.0, *c.GapPct, 1e-9, "11 over a 10 close is a +10% gap")
	assert.False(t, c.HasFlag(FlagMissingGap))
}

func TestNormalizePreservesExplicitGap(t *testing.T) {
	c := Candidate{Symbol: "ACME", Price: 11.0, PreviousClose: fp(10.0), GapPct: fp(9.5)}
	c.Normalize()

	assert.InDelta(t, 9.5, *c.GapPct, 1e-9, "ingested gap wins over the derived one")
}

func TestNormalizeMissingPreviousClose(t *testing.T) {
	tests := []struct {
		name string
		prev *float64
	}{
		{"nil", nil},
		{"zero", fp(0)},
		{"negative", fp(-4.2)},
		{"nan", fp(math.NaN())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Candidate{Symbol: "ACME", Price: 11.0, PreviousClose: tt.prev}
			c.Normalize()

			assert.Nil(t, c.PreviousClose)
			assert.True(t, c.HasFlag(FlagMissingPreviousClose))
			assert.True(t, c.HasCriticalFlag(), "missing close is critical")
			assert.True(t, c.HasFlag(FlagMissingGap), "gap cannot be derived without a close")
		})
	}
}

func TestNormalizeClampsNewsScore(t *testing.T) {
	c := Candidate{Symbol: "ACME", Price: 20, PreviousClose: fp(19), NewsScore: fp(1.7)}
	c.Normalize()

	assert.Equal(t, 1.0, *c.NewsScore)
	assert.True(t, c.HasFlag(FlagClampedInput))
}

func TestNormalizeClampsNegativeAges(t *testing.T) {
	c := Candidate{
		Symbol: "ACME", Price: 20, PreviousClose: fp(19),
		NewsAgeSec: fp(-30), PremarketAgeSec: fp(-1),
	}
	c.Normalize()

	assert.Equal(t, 0.0, *c.NewsAgeSec)
	assert.Equal(t, 0.0, *c.PremarketAgeSec)
}

func TestNormalizeFlagsImplausibleGap(t *testing.T) {
	c := Candidate{Symbol: "ACME", Price: 50, PreviousClose: fp(10)}
	c.Normalize()

	require.NotNil(t, c.GapPct)
	assert.True(t, c.HasFlag(FlagImplausibleGap), "a 400 percent gap is a corporate action, not a trade")
	assert.True(t, c.HasCriticalFlag())
}

func TestNormalizeDropsNonFiniteOptionals(t *testing.T) {
	c := Candidate{
		Symbol: "ACME", Price: 20, PreviousClose: fp(19),
		RelativeVolume: fp(math.Inf(1)), ATRPct: fp(math.NaN()), MomentumZ: fp(math.Inf(-1)),
	}
	c.Normalize()

	assert.Nil(t, c.RelativeVolume)
	assert.Nil(t, c.ATRPct)
	assert.Nil(t, c.MomentumZ)
	assert.True(t, c.HasFlag(FlagMissingVolume))
	assert.True(t, c.HasFlag(FlagMissingATR))
	assert.True(t, c.HasFlag(FlagMissingMomentum))
}

func TestNormalizeIsIdempotentOnFlags(t *testing.T) {
	c := Candidate{Symbol: "ACME", Price: 20}
	c.Normalize()
	n := len(c.QualityFlags)
	c.Normalize()

	assert.Len(t, c.QualityFlags, n, "re-normalizing must not duplicate flags")
}

func TestMarketContextNormalize(t *testing.T) {
	mc := MarketContext{
		MacroBias:     1.8,
		VIX:           fp(-3),
		SectorBreadth: fp(1.4),
		SectorBias:    map[string]float64{"energy": 2.0, "tech": -1.5},
	}
	mc.Normalize()

	assert.Equal(t, 1.0, mc.MacroBias)
	assert.Nil(t, mc.VIX, "negative vix is garbage, not a reading")
	assert.Equal(t, 1.0, *mc.SectorBreadth)
	assert.Equal(t, 1.0, mc.SectorBias["energy"])
	assert.Equal(t, -1.0, mc.SectorBias["tech"])
}
