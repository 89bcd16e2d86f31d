package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/playbook"
	"github.com/quantprep/openprep/internal/regime"
	"github.com/quantprep/openprep/internal/scoring"
)

func sampleRun(ranked int) artifact.RunArtifact {
	a := artifact.RunArtifact{
		RunID:       "run-42",
		GeneratedAt: time.Date(2025, 9, 12, 12, 30, 0, 0, time.UTC),
		Regime:      regime.Classification{Regime: regime.RiskOn},
		Status: artifact.RunStatus{
			UniverseSize: 20,
			Scored:       ranked,
			Excluded:     20 - ranked,
			DurationMS:   850,
		},
	}
	for i := 0; i < ranked; i++ {
		a.Ranked = append(a.Ranked, artifact.RankedEntry{
			Rank: i + 1,
			Result: scoring.Result{
				Symbol:     fmt.Sprintf("SYM%02d", i),
				TotalScore: 90 - float64(i),
				Tier:       domain.TierStandard,
			},
			Plan: playbook.Plan{Kind: domain.PlaybookGapAndGo},
		})
	}
	return a
}

func TestSummarizeRun(t *testing.T) {
	s := SummarizeRun(sampleRun(3))

	assert.Equal(t, "run-42", s.RunID)
	assert.Equal(t, "RISK_ON", s.Regime)
	assert.Equal(t, 20, s.Universe)
	assert.Equal(t, 3, s.Scored)
	assert.Equal(t, 17, s.Excluded)
	assert.Equal(t, int64(850), s.DurationMS)

	require.Len(t, s.Top, 3)
	assert.Equal(t, "SYM00", s.Top[0].Symbol)
	assert.InDelta(t, 90.0, s.Top[0].Score, 1e-9)
	assert.Equal(t, "STANDARD", s.Top[0].Tier)
	assert.Equal(t, "GAP_AND_GO", s.Top[0].Playbook)
}

func TestSummarizeRunCapsTopEntries(t *testing.T) {
	s := SummarizeRun(sampleRun(12))
	assert.Len(t, s.Top, summaryTopN)
	assert.Equal(t, "SYM04", s.Top[summaryTopN-1].Symbol)
}

func TestSummarizeRunEmpty(t *testing.T) {
	s := SummarizeRun(artifact.RunArtifact{RunID: "run-0"})
	assert.Equal(t, "run-0", s.RunID)
	assert.Empty(t, s.Top)
	assert.Equal(t, "NEUTRAL", s.Regime)
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.False(t, DefaultConfig().Enabled())
	assert.True(t, Config{Brokers: []string{"localhost:9092"}}.Enabled())
}

func TestNewWithoutBrokersIsNop(t *testing.T) {
	p, err := New(Config{}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, ok := p.(NopPublisher)
	require.True(t, ok)

	assert.NoError(t, p.PublishRun(context.Background(), sampleRun(1)))
	assert.NoError(t, p.Close())
}

func TestNewRequiresTopics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Brokers = []string{"localhost:9092"}
	cfg.SignalTopic = ""

	_, err := New(cfg, nil, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topics are required")
}

func TestNewBuildsKafkaPublisher(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Brokers = []string{"localhost:9092"}

	p, err := New(cfg, nil, zerolog.Nop())
	require.NoError(t, err)

	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "openprep.runs", kp.runTopic)
	assert.Equal(t, "openprep.signals", kp.signalTopic)

	// The writer dials lazily, so closing an unused publisher is safe.
	assert.NoError(t, p.Close())
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Gzip, parseCompression("gzip"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Compression(0), parseCompression("none"))
	assert.Equal(t, kafka.Gzip, parseCompression("bogus"))
}
