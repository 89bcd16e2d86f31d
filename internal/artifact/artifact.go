// Package artifact defines the ranked run output and its on-disk form.
package artifact

import (
	"time"

	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/playbook"
	"github.com/quantprep/openprep/internal/regime"
	"github.com/quantprep/openprep/internal/scoring"
)

// SchemaVersion is bumped whenever the artifact layout changes shape.
const SchemaVersion = 1

// RankedEntry is one symbol in final rank order. The candidate snapshot the
// score was computed from rides along for audit and for downstream watchers.
type RankedEntry struct {
	Rank      int              `json:"rank"`
	Candidate domain.Candidate `json:"candidate"`
	Result    scoring.Result   `json:"result"`
	Plan      playbook.Plan    `json:"plan"`
	CacheHit  bool             `json:"cache_hit,omitempty"`
}

// ExclusionRecord explains why a symbol never reached scoring.
type ExclusionRecord struct {
	Symbol  string   `json:"symbol"`
	Reasons []string `json:"reasons"`
}

// Degradation records a non-fatal failure absorbed during the run.
type Degradation struct {
	Symbol string `json:"symbol,omitempty"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// RunStatus summarizes what happened to the universe during one run.
type RunStatus struct {
	UniverseSize int           `json:"universe_size"`
	Enriched     int           `json:"enriched"`
	Eligible     int           `json:"eligible"`
	Excluded     int           `json:"excluded"`
	Scored       int           `json:"scored"`
	CacheHits    int           `json:"cache_hits"`
	Degraded     []Degradation `json:"degraded,omitempty"`
	DurationMS   int64         `json:"duration_ms"`
}

// RunArtifact is the complete output of one scan run. Optional candidate
// fields reach this struct as pointers, so absent values serialize as null
// rather than fabricated zeros.
type RunArtifact struct {
	SchemaVersion int                   `json:"schema_version"`
	RunID         string                `json:"run_id"`
	GeneratedAt   time.Time             `json:"generated_at"`
	Regime        regime.Classification `json:"regime"`
	Context       domain.MarketContext  `json:"market_context"`
	Ranked        []RankedEntry         `json:"ranked"`
	Excluded      []ExclusionRecord     `json:"excluded"`
	Status        RunStatus             `json:"status"`
}
