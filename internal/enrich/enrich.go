// Package enrich fans out snapshot fetches for the universe under a worker
// pool, a per-source rate limit, and a circuit breaker. A symbol that cannot
// be fetched degrades; it never aborts the run.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantprep/openprep/internal/domain"
)

const cacheKeyPrefix = "openprep:snap:"

// Snapshot is the raw premarket payload one source returns for one symbol.
// Optional fields stay nil when the source has no value, so downstream code
// can tell "missing" from zero.
type Snapshot struct {
	Symbol          string    `json:"symbol"`
	Price           float64   `json:"price"`
	PreviousClose   *float64  `json:"previous_close,omitempty"`
	GapPct          *float64  `json:"gap_pct,omitempty"`
	RelativeVolume  *float64  `json:"relative_volume,omitempty"`
	ATRPct          *float64  `json:"atr_pct,omitempty"`
	MomentumZ       *float64  `json:"momentum_z,omitempty"`
	Sector          string    `json:"sector,omitempty"`
	NewsScore       *float64  `json:"news_score,omitempty"`
	NewsAgeSec      *float64  `json:"news_age_sec,omitempty"`
	PremarketAgeSec *float64  `json:"premarket_age_sec,omitempty"`
	SpreadBps       *float64  `json:"spread_bps,omitempty"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// Candidate converts the snapshot into a raw candidate for normalization.
func (s Snapshot) Candidate() domain.Candidate {
	return domain.Candidate{
		Symbol:          s.Symbol,
		Price:           s.Price,
		PreviousClose:   s.PreviousClose,
		GapPct:          s.GapPct,
		RelativeVolume:  s.RelativeVolume,
		ATRPct:          s.ATRPct,
		MomentumZ:       s.MomentumZ,
		Sector:          s.Sector,
		NewsScore:       s.NewsScore,
		NewsAgeSec:      s.NewsAgeSec,
		PremarketAgeSec: s.PremarketAgeSec,
		SpreadBps:       s.SpreadBps,
	}
}

// DataSource produces premarket snapshots for single symbols.
type DataSource interface {
	Name() string
	Snapshot(ctx context.Context, symbol string) (Snapshot, error)
}

// Degraded records one symbol the enricher gave up on and why.
type Degraded struct {
	Symbol string
	Reason string
}

// Outcome is everything one enrichment pass produced.
type Outcome struct {
	Candidates []domain.Candidate
	Degraded   []Degraded
	CacheHits  int
}

// Config tunes the enrichment pool.
type Config struct {
	Workers        int           `yaml:"workers" default:"8" validate:"gte=1,lte=64"`   // Default: 8
	RequestsPerSec float64       `yaml:"requests_per_sec" default:"10" validate:"gt=0"` // Default: 10
	Burst          int           `yaml:"burst" default:"5" validate:"gte=1"`            // Default: 5
	Timeout        time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`         // Default: 10s
	CacheTTL       time.Duration `yaml:"cache_ttl" default:"30s"`                       // Default: 30s
}

// DefaultConfig returns pool settings sized for a premarket universe scan.
func DefaultConfig() Config {
	return Config{
		Workers:        8,
		RequestsPerSec: 10,
		Burst:          5,
		Timeout:        10 * time.Second,
		CacheTTL:       30 * time.Second,
	}
}

// Enricher coordinates snapshot fetches for a whole universe.
type Enricher struct {
	source  DataSource
	cache   Cache
	limits  *LimiterManager
	breaker *Breaker
	cfg     Config
	log     zerolog.Logger
}

// New builds an enricher around one data source. A zero config gets defaults.
func New(source DataSource, cache Cache, cfg Config, log zerolog.Logger) *Enricher {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Enricher{
		source:  source,
		cache:   cache,
		limits:  NewLimiterManager(cfg.RequestsPerSec, cfg.Burst),
		breaker: NewBreaker(source.Name()),
		cfg:     cfg,
		log:     log.With().Str("component", "enrich").Logger(),
	}
}

// Enrich fetches snapshots for all symbols concurrently and returns
// normalized candidates sorted by symbol. Failed symbols come back in
// Degraded; the pass itself always completes.
func (e *Enricher) Enrich(ctx context.Context, symbols []string) Outcome {
	type fetchResult struct {
		cand     domain.Candidate
		cacheHit bool
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = DefaultConfig().Workers
	}

	semaphore := make(chan struct{}, workers)
	resultsChan := make(chan fetchResult, len(symbols))
	degradedChan := make(chan Degraded, len(symbols))

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				degradedChan <- Degraded{Symbol: sym, Reason: "run cancelled"}
				return
			}

			snap, cacheHit, err := e.fetch(ctx, sym)
			if err != nil {
				e.log.Warn().Str("symbol", sym).Err(err).Msg("snapshot fetch failed")
				degradedChan <- Degraded{Symbol: sym, Reason: err.Error()}
				return
			}

			cand := snap.Candidate()
			cand.Normalize()
			resultsChan <- fetchResult{cand: cand, cacheHit: cacheHit}
		}(symbol)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
		close(degradedChan)
	}()

	var out Outcome
	for r := range resultsChan {
		out.Candidates = append(out.Candidates, r.cand)
		if r.cacheHit {
			out.CacheHits++
		}
	}
	for d := range degradedChan {
		out.Degraded = append(out.Degraded, d)
	}

	// Completion order is racy; sort so downstream stages see stable input.
	sort.Slice(out.Candidates, func(i, j int) bool {
		return out.Candidates[i].Symbol < out.Candidates[j].Symbol
	})
	sort.Slice(out.Degraded, func(i, j int) bool {
		return out.Degraded[i].Symbol < out.Degraded[j].Symbol
	})
	return out
}

func (e *Enricher) fetch(ctx context.Context, symbol string) (Snapshot, bool, error) {
	key := cacheKeyPrefix + symbol
	if data, ok := e.cache.Get(key); ok {
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			return snap, true, nil
		}
		// Corrupt cache entry falls through to a fresh fetch.
	}

	if err := e.limits.Wait(ctx, e.source.Name()); err != nil {
		return Snapshot{}, false, fmt.Errorf("rate limit wait: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	v, err := e.breaker.Execute(func() (any, error) {
		return e.source.Snapshot(fetchCtx, symbol)
	})
	if err != nil {
		if IsCircuitOpen(err) {
			return Snapshot{}, false, fmt.Errorf("source %s circuit open", e.source.Name())
		}
		return Snapshot{}, false, fmt.Errorf("snapshot %s: %w", symbol, err)
	}

	snap := v.(Snapshot)
	if data, err := json.Marshal(snap); err == nil {
		e.cache.Set(key, data, e.cfg.CacheTTL)
	}
	return snap, false, nil
}

// BreakerState reports the source breaker state.
func (e *Enricher) BreakerState() string { return e.breaker.State() }
