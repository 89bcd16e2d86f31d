package artifact

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/playbook"
	"github.com/quantprep/openprep/internal/scoring"
)

func sampleArtifact(runID string) RunArtifact {
	vix := 18.5
	return RunArtifact{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		GeneratedAt:   time.Date(2026, 8, 25, 12, 30, 0, 0, time.UTC),
		Context: domain.MarketContext{
			MacroBias: 0.4,
			VIX:       &vix,
			AsOf:      time.Date(2026, 8, 25, 12, 29, 0, 0, time.UTC),
		},
		Ranked: []RankedEntry{
			{
				Rank:   1,
				Result: scoring.Result{Symbol: "ACME", TotalScore: 78.2, Tier: domain.TierHighConviction},
				Plan:   playbook.Plan{Symbol: "ACME", Kind: domain.PlaybookGapAndGo, Side: domain.SideLong},
			},
			{
				Rank:   2,
				Result: scoring.Result{Symbol: "RUNR", TotalScore: 61.0, Tier: domain.TierStandard},
				Plan:   playbook.Plan{Symbol: "RUNR", Kind: domain.PlaybookPostNewsDrift, Side: domain.SideLong},
			},
		},
		Excluded: []ExclusionRecord{
			{Symbol: "PENY", Reasons: []string{"price 3.20 below minimum 5.00"}},
		},
		Status: RunStatus{UniverseSize: 3, Enriched: 3, Eligible: 2, Excluded: 1, Scored: 2},
	}
}

func TestWriteRunInstallsRunAndLatest(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	path, err := w.WriteRun(sampleArtifact("run-001"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "runs", "run-001.json"), path)

	runData, err := os.ReadFile(path)
	require.NoError(t, err)
	latestData, err := os.ReadFile(filepath.Join(dir, "latest.json"))
	require.NoError(t, err)
	assert.Equal(t, runData, latestData, "latest.json must mirror the run file")

	entries, err := os.ReadDir(filepath.Join(dir, "runs"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files must not survive a write")
	}
}

func TestWriteRunThenReadBack(t *testing.T) {
	w := NewWriter(t.TempDir())

	want := sampleArtifact("run-002")
	_, err := w.WriteRun(want)
	require.NoError(t, err)

	got, err := w.ReadRun("run-002")
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	require.Len(t, got.Ranked, 2)
	assert.Equal(t, "ACME", got.Ranked[0].Result.Symbol)
	assert.Equal(t, 1, got.Ranked[0].Rank)
	assert.Equal(t, domain.PlaybookGapAndGo, got.Ranked[0].Plan.Kind)

	latest, err := w.ReadLatest()
	require.NoError(t, err)
	assert.Equal(t, "run-002", latest.RunID)
}

func TestWriteRunUpdatesLatestToNewest(t *testing.T) {
	w := NewWriter(t.TempDir())

	_, err := w.WriteRun(sampleArtifact("run-old"))
	require.NoError(t, err)
	_, err = w.WriteRun(sampleArtifact("run-new"))
	require.NoError(t, err)

	latest, err := w.ReadLatest()
	require.NoError(t, err)
	assert.Equal(t, "run-new", latest.RunID)

	// The older run stays addressable.
	old, err := w.ReadRun("run-old")
	require.NoError(t, err)
	assert.Equal(t, "run-old", old.RunID)
}

func TestWriteRunSanitizesNonFiniteValues(t *testing.T) {
	w := NewWriter(t.TempDir())

	nan := math.NaN()
	a := sampleArtifact("run-nan")
	a.Context.SectorBias = map[string]float64{"technology": math.Inf(1)}
	a.Ranked[0].Candidate.GapPct = &nan
	a.Ranked[0].Result.Components = scoring.Components{"gap": math.NaN()}

	_, err := w.WriteRun(a)
	require.NoError(t, err, "one poisoned float must not cost the artifact")

	data, err := os.ReadFile(filepath.Join(w.Dir(), "latest.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "NaN")
	assert.NotContains(t, string(data), "Inf")

	back, err := w.ReadLatest()
	require.NoError(t, err)
	assert.Nil(t, back.Ranked[0].Candidate.GapPct, "non-finite nullable floats become null")
	assert.Zero(t, back.Context.SectorBias["technology"], "non-finite value floats become zero")
	assert.Zero(t, back.Ranked[0].Result.Components["gap"])
}

func TestNullForAbsentOptionalFields(t *testing.T) {
	w := NewWriter(t.TempDir())

	a := sampleArtifact("run-null")
	a.Context.VIX = nil
	a.Ranked = a.Ranked[:1]
	a.Excluded = nil

	_, err := w.WriteRun(a)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Dir(), "latest.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"vix"`, "absent VIX is omitted, not zero-filled")
}

func TestRunIDValidation(t *testing.T) {
	w := NewWriter(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", `a\b`, ".hidden"} {
		a := sampleArtifact("x")
		a.RunID = id
		_, err := w.WriteRun(a)
		assert.Error(t, err, "run ID %q must be rejected", id)

		_, err = w.ReadRun(id)
		assert.Error(t, err)
	}
}

func TestReadRunUnknownID(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.ReadRun("never-written")
	assert.Error(t, err)
}
