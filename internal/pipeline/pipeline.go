// Package pipeline runs one premarket scan end to end: load the universe,
// enrich symbols into candidates, classify the regime, screen, re-score what
// changed, assign playbooks, rank, and write the run artifact. Per-candidate
// failures degrade the run; configuration and artifact failures abort it.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/config"
	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/enrich"
	"github.com/quantprep/openprep/internal/fingerprint"
	"github.com/quantprep/openprep/internal/metrics"
	"github.com/quantprep/openprep/internal/notify"
	"github.com/quantprep/openprep/internal/playbook"
	"github.com/quantprep/openprep/internal/regime"
	"github.com/quantprep/openprep/internal/scoring"
	"github.com/quantprep/openprep/internal/screen"
	"github.com/quantprep/openprep/internal/store"
)

// Deps carries the runner's infrastructure. Source is required; every other
// field falls back to a local or no-op substitute when left nil.
type Deps struct {
	Source    enrich.DataSource
	Cache     enrich.Cache
	Runs      store.RunRepo
	Publisher notify.Publisher
	Metrics   *metrics.Recorder
	Log       zerolog.Logger
}

// RunOptions are the per-run inputs: the market context shared by every
// candidate, and a force flag that bypasses the fingerprint cache.
type RunOptions struct {
	Context domain.MarketContext
	Force   bool
}

// Runner owns one configured pipeline and executes scan runs against it.
// Safe for concurrent use; runs serialize only on the regime history.
type Runner struct {
	cfg        *config.PipelineConfig
	enricher   *enrich.Enricher
	classifier *regime.Classifier
	history    *regime.History
	screener   *screen.Screener
	engine     *scoring.Engine
	assigner   *playbook.Assigner
	prints     *fingerprint.Manager
	fpStore    fingerprint.Store
	writer     *artifact.Writer
	weights    scoring.WeightSet
	mult       scoring.RegimeMultipliers
	runs       store.RunRepo
	publisher  notify.Publisher
	rec        *metrics.Recorder
	log        zerolog.Logger

	mu   sync.Mutex
	last *regime.Classification
}

// New builds a runner from configuration. Weight files and the fingerprint
// backend are resolved here, so a broken configuration fails construction
// rather than the first scheduled run.
func New(cfg *config.PipelineConfig, deps Deps) (*Runner, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("a market data source is required")
	}

	weights := scoring.DefaultWeightSet()
	if cfg.WeightsFile != "" {
		ws, err := config.LoadWeightSet(cfg.WeightsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load weight set: %w", err)
		}
		weights = ws
	}

	loader := config.NewMultipliersLoader()
	if cfg.RegimeWeightsFile != "" {
		if err := loader.LoadFromFile(cfg.RegimeWeightsFile); err != nil {
			return nil, fmt.Errorf("failed to load regime weights: %w", err)
		}
	} else if err := loader.LoadDefault(); err != nil {
		return nil, fmt.Errorf("failed to load default regime weights: %w", err)
	}
	mult, err := loader.Multipliers()
	if err != nil {
		return nil, err
	}

	var fpStore fingerprint.Store
	if cfg.Fingerprint.Backend == "redis" {
		rs, err := fingerprint.NewRedisStore(cfg.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("failed to connect fingerprint store: %w", err)
		}
		fpStore = rs
	} else {
		fpStore = fingerprint.NewMemoryStore(cfg.Fingerprint.TTL)
	}

	cache := deps.Cache
	if cache == nil {
		cache = enrich.NewAutoCache()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.New()
	}

	return &Runner{
		cfg:        cfg,
		enricher:   enrich.New(deps.Source, cache, cfg.Enrich, deps.Log),
		classifier: regime.NewClassifier(cfg.Regime),
		history:    regime.NewHistory(),
		screener:   screen.NewScreener(cfg.Screen),
		engine:     scoring.NewEngine(cfg.Scoring),
		assigner:   playbook.NewAssigner(cfg.Playbook, cfg.Scoring.Freshness),
		prints:     fingerprint.NewManager(fpStore, cfg.Fingerprint.AgeBucketSec),
		fpStore:    fpStore,
		writer:     artifact.NewWriter(cfg.ArtifactDir),
		weights:    weights,
		mult:       mult,
		runs:       deps.Runs,
		publisher:  publisher,
		rec:        rec,
		log:        deps.Log.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Run executes one scan. The returned artifact is the one written to disk.
// A universe or artifact failure aborts with an error; everything in between
// degrades per candidate and the run completes on whatever remains healthy.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (artifact.RunArtifact, error) {
	started := time.Now()

	mc := opts.Context
	mc.Normalize()
	if mc.AsOf.IsZero() {
		mc.AsOf = time.Now().UTC()
	}
	mc.AsOf = mc.AsOf.UTC()

	runID := newRunID(mc.AsOf)
	log := r.log.With().Str("run_id", runID).Logger()

	symbols, err := config.LoadUniverse(r.cfg.UniverseFile)
	if err != nil {
		r.rec.RecordRun("failed")
		return artifact.RunArtifact{}, fmt.Errorf("failed to load universe: %w", err)
	}

	stop := r.rec.StepTimer("enrich")
	out := r.enricher.Enrich(ctx, symbols)
	stop()

	degraded := make([]artifact.Degradation, 0)
	for _, d := range out.Degraded {
		degraded = append(degraded, artifact.Degradation{Symbol: d.Symbol, Stage: "enrich", Reason: d.Reason})
	}

	stop = r.rec.StepTimer("regime")
	r.mu.Lock()
	cls := r.classifier.Classify(mc, r.history)
	r.last = &cls
	r.mu.Unlock()
	stop()
	r.rec.RecordRegime(cls)
	log.Info().
		Str("regime", cls.Regime.String()).
		Bool("changed", cls.Changed).
		Strs("reasons", cls.Reasons).
		Msg("regime classified")

	stop = r.rec.StepTimer("screen")
	eligible := make([]domain.Candidate, 0, len(out.Candidates))
	excluded := make([]artifact.ExclusionRecord, 0)
	for _, c := range out.Candidates {
		v := r.screener.Evaluate(c)
		if v.Eligible {
			eligible = append(eligible, c)
			continue
		}
		excluded = append(excluded, artifact.ExclusionRecord{Symbol: c.Symbol, Reasons: v.FailureReasons})
	}
	stop()

	ws := scoring.AdjustForRegime(r.weights, cls.Regime, r.mult)
	inWindow := mc.MinutesToOpen <= 0 && -mc.MinutesToOpen < r.cfg.Playbook.NoTradeWindowMin

	stop = r.rec.StepTimer("score")
	ranked := make([]artifact.RankedEntry, 0, len(eligible))
	cacheHits := 0
	for _, c := range eligible {
		entry := artifact.RankedEntry{Candidate: c}

		st, err := r.prints.Check(ctx, fingerprint.Inputs{
			Candidate:        c,
			Regime:           cls.Regime,
			MacroBias:        mc.MacroBias,
			SectorTilt:       mc.SectorTilt(c.Sector),
			WeightSet:        ws.Name,
			WeightSetVersion: ws.Version,
			InOpenWindow:     inWindow,
		})
		if err != nil {
			degraded = append(degraded, artifact.Degradation{Symbol: c.Symbol, Stage: "fingerprint", Reason: err.Error()})
		}

		if !opts.Force && !st.Dirty {
			entry.Result = st.Cached.Result
			entry.Plan = st.Cached.Plan
			entry.CacheHit = true
			cacheHits++
			r.rec.RecordCacheHit()
		} else {
			entry.Result = r.engine.Score(c, mc, cls, ws)
			entry.Plan = r.assigner.Assign(c, mc, cls, entry.Result)
			r.rec.RecordCacheMiss()
			if err := r.prints.MarkClean(ctx, c.Symbol, st.Fingerprint, entry.Result, entry.Plan); err != nil {
				degraded = append(degraded, artifact.Degradation{Symbol: c.Symbol, Stage: "fingerprint", Reason: err.Error()})
			}
		}
		ranked = append(ranked, entry)
	}
	stop()

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Result.TotalScore != ranked[j].Result.TotalScore {
			return ranked[i].Result.TotalScore > ranked[j].Result.TotalScore
		}
		return ranked[i].Result.Symbol < ranked[j].Result.Symbol
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	a := artifact.RunArtifact{
		SchemaVersion: artifact.SchemaVersion,
		RunID:         runID,
		GeneratedAt:   mc.AsOf,
		Regime:        cls,
		Context:       mc,
		Ranked:        ranked,
		Excluded:      excluded,
		Status: artifact.RunStatus{
			UniverseSize: len(symbols),
			Enriched:     len(out.Candidates),
			Eligible:     len(eligible),
			Excluded:     len(excluded),
			Scored:       len(ranked),
			CacheHits:    cacheHits,
			Degraded:     degraded,
			DurationMS:   time.Since(started).Milliseconds(),
		},
	}

	// Sanitized once here so the store, the publisher, and the disk writer
	// all encode the same payload.
	artifact.Sanitize(&a)

	// Post-steps run before the disk write so their failure notes land in
	// the artifact. Both carry the full payload, so neither needs the file.
	if r.runs != nil {
		if err := r.runs.SaveRun(ctx, a); err != nil {
			log.Error().Err(err).Msg("failed to persist run history")
			a.Status.Degraded = append(a.Status.Degraded, artifact.Degradation{Stage: "store", Reason: err.Error()})
		}
	}
	if err := r.publisher.PublishRun(ctx, a); err != nil {
		log.Error().Err(err).Msg("failed to publish run summary")
		a.Status.Degraded = append(a.Status.Degraded, artifact.Degradation{Stage: "publish", Reason: err.Error()})
	}

	a.Status.DurationMS = time.Since(started).Milliseconds()
	stop = r.rec.StepTimer("write")
	path, err := r.writer.WriteRun(a)
	stop()
	if err != nil {
		r.rec.RecordRun("failed")
		return artifact.RunArtifact{}, fmt.Errorf("failed to write artifact: %w", err)
	}

	r.rec.RecordCandidates("ranked", len(ranked))
	r.rec.RecordCandidates("excluded", len(excluded))
	r.rec.RecordCandidates("failed", len(out.Degraded))
	r.rec.SetLastRun(time.Now().UTC())
	status := "ok"
	if len(a.Status.Degraded) > 0 {
		status = "degraded"
	}
	r.rec.RecordRun(status)

	log.Info().
		Int("universe", len(symbols)).
		Int("ranked", len(ranked)).
		Int("excluded", len(excluded)).
		Int("cache_hits", cacheHits).
		Float64("cache_hit_ratio", r.rec.CacheHitRatio()).
		Int("degraded", len(a.Status.Degraded)).
		Str("regime", cls.Regime.String()).
		Str("artifact", path).
		Dur("took", time.Since(started)).
		Msg("scan complete")

	return a, nil
}

// LastClassification returns the most recent regime decision, false before
// the first run. This is the ops server's regime source.
func (r *Runner) LastClassification() (regime.Classification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return regime.Classification{}, false
	}
	return *r.last, true
}

// Weights returns the base weight set the runner was configured with.
func (r *Runner) Weights() scoring.WeightSet { return r.weights }

// Close releases backend connections held by the runner.
func (r *Runner) Close() error {
	if c, ok := r.fpStore.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// newRunID stamps the run's as-of time and appends a short unique suffix so
// two runs in the same second never collide on disk or in the run table.
func newRunID(t time.Time) string {
	return fmt.Sprintf("%s-%s", t.Format("20060102T150405Z"), uuid.NewString()[:8])
}
