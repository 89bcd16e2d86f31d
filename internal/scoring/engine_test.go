package scoring

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/regime"
)

func fp(v float64) *float64 { return &v }

func testCandidate() domain.Candidate {
	c := domain.Candidate{
		Symbol:         "ACME",
		Price:          24.50,
		PreviousClose:  fp(22.80),
		RelativeVolume: fp(3.2),
		ATRPct:         fp(4.1),
		MomentumZ:      fp(1.8),
		Sector:         "tech",
		NewsScore:      fp(0.7),
		NewsAgeSec:     fp(1800),
	}
	c.Normalize()
	return c
}

func testContext(macro float64) domain.MarketContext {
	return domain.MarketContext{
		MacroBias:     macro,
		VIX:           fp(18),
		SectorBreadth: fp(0.55),
		SectorBias:    map[string]float64{"tech": 0.4},
		AsOf:          time.Date(2025, 3, 3, 8, 30, 0, 0, time.UTC),
	}
}

func classify(mc domain.MarketContext) regime.Classification {
	return regime.NewClassifier(regime.DefaultDetectorConfig()).Classify(mc, regime.NewHistory())
}

func TestScoreProducesBoundedTotal(t *testing.T) {
	e := NewEngine(DefaultConfig())
	mc := testContext(0.2)

	res := e.Score(testCandidate(), mc, classify(mc), DefaultWeightSet())

	assert.GreaterOrEqual(t, res.TotalScore, 0.0)
	assert.LessOrEqual(t, res.TotalScore, 100.0)
	assert.Len(t, res.Components, len(ComponentOrder), "every component must be reported")
	assert.Equal(t, "default", res.WeightSet)
}

func TestScoreDeterministic(t *testing.T) {
	e := NewEngine(DefaultConfig())
	mc := testContext(0.2)
	cls := classify(mc)
	ws := DefaultWeightSet()

	a := e.Score(testCandidate(), mc, cls, ws)
	b := e.Score(testCandidate(), mc, cls, ws)
	require.Equal(t, a, b, "identical inputs must yield identical results")

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, ja, jb, "serialized form must be byte-identical")
}

func TestMacroSignPropagates(t *testing.T) {
	e := NewEngine(DefaultConfig())
	c := testCandidate()
	ws := DefaultWeightSet()

	mcUp := testContext(0.8)
	mcDown := testContext(-0.8)
	up := e.Score(c, mcUp, classify(mcUp), ws)
	down := e.Score(c, mcDown, classify(mcDown), ws)

	assert.Greater(t, up.Components[CompMacro], 0.0)
	assert.Less(t, down.Components[CompMacro], 0.0, "negative macro must stay negative, never abs-ed")
	assert.InDelta(t, up.Components[CompMacro], -down.Components[CompMacro], 1e-9)
	assert.Greater(t, up.TotalScore, down.TotalScore)
}

// A runaway component must converge to exactly the cap share of the final
// positive sum; a single pass would leave it far above.
func TestDominanceCapConvergence(t *testing.T) {
	contrib := Components{}
	for _, name := range ComponentOrder {
		contrib[name] = 0
	}
	contrib[CompGap] = 0.9
	contrib[CompNews] = 0.1

	iters, skipped := applyDominanceCap(contrib, 0.40)

	require.False(t, skipped)
	assert.Greater(t, iters, 1, "the cap must iterate to its fixed point")
	assert.InDelta(t, 0.1, contrib[CompNews], 1e-12, "uncapped components are untouched")
	// Fixed point: g = 0.4*(g + 0.1) so g = 2/3 * 0.1.
	assert.InDelta(t, 0.2/3.0, contrib[CompGap], 1e-9)

	share := contrib[CompGap] / (contrib[CompGap] + contrib[CompNews])
	assert.InDelta(t, 0.40, share, 1e-9, "dominant share must equal the cap against the final sum")
}

func TestDominanceCapSkippedForLonePositive(t *testing.T) {
	contrib := Components{}
	for _, name := range ComponentOrder {
		contrib[name] = 0
	}
	contrib[CompNews] = 0.3

	iters, skipped := applyDominanceCap(contrib, 0.40)

	assert.True(t, skipped)
	assert.Zero(t, iters)
	assert.Equal(t, 0.3, contrib[CompNews], "a lone positive component must not be capped toward zero")
}

func TestDominanceCapSkippedWhenAllPositivesExceed(t *testing.T) {
	contrib := Components{}
	for _, name := range ComponentOrder {
		contrib[name] = 0
	}
	contrib[CompGap] = 0.5
	contrib[CompNews] = 0.5

	iters, skipped := applyDominanceCap(contrib, 0.40)

	assert.True(t, skipped)
	assert.Zero(t, iters)
	assert.Equal(t, 0.5, contrib[CompGap])
	assert.Equal(t, 0.5, contrib[CompNews], "with no in-bounds mass the fixed point is zero, so nothing is capped")
}

func TestDominanceCapThroughEngine(t *testing.T) {
	ws := WeightSet{
		Name:    "gap_heavy",
		Version: 1,
		Weights: map[string]float64{
			CompGap:            0.80,
			CompRelativeVolume: 0.02,
			CompMomentum:       0.02,
			CompGapQuality:     0.02,
			CompVolumeConfirm:  0.02,
			CompContinuation:   0.02,
			CompNews:           0.02,
			CompNewsFreshness:  0.02,
			CompSectorRelative: 0.02,
			CompATRRange:       0.02,
			CompDataQuality:    0.01,
			CompMacro:          0.01,
			CompRiskPenalty:    0.50,
			CompCounterTrend:   0.50,
		},
	}
	require.NoError(t, ws.Validate())

	e := NewEngine(DefaultConfig())
	mc := testContext(0.2)
	res := e.Score(testCandidate(), mc, classify(mc), ws)

	positive := 0.0
	for _, name := range ComponentOrder {
		if !IsPenalty(name) && res.Components[name] > 0 {
			positive += res.Components[name]
		}
	}
	require.Greater(t, positive, 0.0)
	assert.InDelta(t, 0.40, res.Components[CompGap]/positive, 1e-6,
		"an 80 percent weight on gap must be capped to a 40 percent share")
	assert.Greater(t, res.CapIterations, 1)
}

func TestPenaltiesApplyOutsideTheCap(t *testing.T) {
	e := NewEngine(DefaultConfig())
	mc := testContext(0.2)
	cls := classify(mc)
	ws := DefaultWeightSet()

	calm := testCandidate()
	wild := testCandidate()
	wild.ATRPct = fp(16.0)
	wild.RelativeVolume = fp(1.0)
	calm.RelativeVolume = fp(1.0)

	calmRes := e.Score(calm, mc, cls, ws)
	wildRes := e.Score(wild, mc, cls, ws)

	assert.Equal(t, 0.0, calmRes.Components[CompRiskPenalty])
	assert.InDelta(t, -0.5, wildRes.Components[CompRiskPenalty], 1e-9,
		"16 percent ATR with no volume support is the full penalty")
	assert.Less(t, wildRes.TotalScore, calmRes.TotalScore)
}

func TestCounterTrendPenaltyFollowsRegime(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ws := DefaultWeightSet()
	c := testCandidate() // gaps up ~7.5%

	mcOff := testContext(0.0)
	mcOff.VIX = fp(33.0)
	clsOff := classify(mcOff)
	require.Equal(t, regime.RiskOff, clsOff.Regime)

	res := e.Score(c, mcOff, clsOff, ws)
	assert.Less(t, res.Components[CompCounterTrend], 0.0,
		"a long gap into risk-off fights the tape")

	mcOn := testContext(0.5)
	mcOn.SectorBreadth = fp(0.7)
	clsOn := classify(mcOn)
	require.Equal(t, regime.RiskOn, clsOn.Regime)

	resOn := e.Score(c, mcOn, clsOn, ws)
	assert.Equal(t, 0.0, resOn.Components[CompCounterTrend])
}

func TestMissingInputsDegradeToNeutralWithWarnings(t *testing.T) {
	e := NewEngine(DefaultConfig())
	mc := testContext(0.2)
	cls := classify(mc)
	ws := DefaultWeightSet()

	c := domain.Candidate{Symbol: "BARE", Price: 12.0, PreviousClose: fp(11.5)}
	c.Normalize()

	res := e.Score(c, mc, cls, ws)

	assert.InDelta(t, ws.Weights[CompRelativeVolume]*neutralShaped, res.Components[CompRelativeVolume], 1e-9)
	assert.InDelta(t, ws.Weights[CompMomentum]*neutralShaped, res.Components[CompMomentum], 1e-9)
	assert.Equal(t, 0.0, res.Components[CompNews], "no news is zero news, not neutral")
	assert.NotEmpty(t, res.Warnings)
	assert.GreaterOrEqual(t, res.TotalScore, 0.0)
}

func TestEntryProbabilityLogistic(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg)
	mc := testContext(0.4)
	cls := classify(mc)

	res := e.Score(testCandidate(), mc, cls, DefaultWeightSet())

	want := 1.0 / (1.0 + math.Exp(-(res.TotalScore-cfg.EntryMidpoint)/cfg.EntryScale))
	assert.InDelta(t, want, res.EntryProbability, 1e-12)
	assert.Greater(t, res.EntryProbability, 0.0)
	assert.Less(t, res.EntryProbability, 1.0)
}

func TestTierAssignment(t *testing.T) {
	e := NewEngine(DefaultConfig())

	tests := []struct {
		name          string
		total         float64
		corroborating int
		want          domain.ConfidenceTier
	}{
		{"high score with corroboration", 80, 4, domain.TierHighConviction},
		{"high score without corroboration", 80, 1, domain.TierStandard},
		{"mid score", 60, 5, domain.TierStandard},
		{"low score", 30, 5, domain.TierWatchlist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.tier(tt.total, tt.corroborating))
		})
	}
}

func TestComponentsMarshalOrdered(t *testing.T) {
	e := NewEngine(DefaultConfig())
	mc := testContext(0.2)
	res := e.Score(testCandidate(), mc, classify(mc), DefaultWeightSet())

	data, err := json.Marshal(res.Components)
	require.NoError(t, err)

	var keys []string
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	require.NoError(t, err)
	require.Equal(t, json.Delim('{'), tok)
	for dec.More() {
		k, err := dec.Token()
		require.NoError(t, err)
		keys = append(keys, k.(string))
		_, err = dec.Token()
		require.NoError(t, err)
	}
	assert.Equal(t, ComponentOrder, keys, "component JSON must follow canonical order")
}
