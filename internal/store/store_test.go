package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/regime"
	"github.com/quantprep/openprep/internal/scoring"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate(), "disabled store needs no DSN")

	cfg.Enabled = true
	assert.Error(t, cfg.Validate(), "enabled store without DSN must fail closed")

	cfg.DSN = "postgres://openprep@localhost/openprep?sslmode=disable"
	assert.NoError(t, cfg.Validate())
}

func TestSummarize(t *testing.T) {
	a := artifact.RunArtifact{
		RunID:       "run-42",
		GeneratedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Regime:      regime.Classification{Regime: regime.RiskOn},
		Ranked: []artifact.RankedEntry{
			{Rank: 1, Result: scoring.Result{Symbol: "ACME", TotalScore: 81.3}},
			{Rank: 2, Result: scoring.Result{Symbol: "RUNR", TotalScore: 64.0}},
		},
		Excluded: []artifact.ExclusionRecord{{Symbol: "PENY"}},
		Status:   artifact.RunStatus{DurationMS: 1250},
	}

	rec := Summarize(a)
	assert.Equal(t, "run-42", rec.RunID)
	assert.Equal(t, "RISK_ON", rec.Regime)
	assert.Equal(t, 2, rec.Ranked)
	assert.Equal(t, 1, rec.Excluded)
	assert.Equal(t, "ACME", rec.TopSymbol)
	assert.Equal(t, 81.3, rec.TopScore)
	assert.Equal(t, int64(1250), rec.DurationMS)
}

func TestSummarizeEmptyRun(t *testing.T) {
	rec := Summarize(artifact.RunArtifact{RunID: "run-empty"})
	assert.Equal(t, "", rec.TopSymbol, "no ranked entries means no top symbol")
	assert.Equal(t, 0.0, rec.TopScore)
	assert.Equal(t, "NEUTRAL", rec.Regime, "zero-value classification is neutral")
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
