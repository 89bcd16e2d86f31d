// Package signals watches live premarket quotes against the latest ranked
// artifact and emits trigger and invalidation events for planned setups.
package signals

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/domain"
)

// Config tunes level derivation and the quote feed connection.
type Config struct {
	URL              string        `yaml:"url"`                                            // Default: "" (watcher disabled)
	TopN             int           `yaml:"top_n" default:"10" validate:"gte=1"`            // Default: 10
	TriggerPct       float64       `yaml:"trigger_pct" default:"0.3" validate:"gt=0"`      // Default: 0.3
	InvalidationPct  float64       `yaml:"invalidation_pct" default:"1.0" validate:"gt=0"` // Default: 1.0
	PingInterval     time.Duration `yaml:"ping_interval" default:"30s"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" default:"30s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"60s"`
}

// DefaultConfig returns watcher settings with the feed disabled.
func DefaultConfig() Config {
	return Config{
		TopN:             10,
		TriggerPct:       0.3,
		InvalidationPct:  1.0,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 30 * time.Second,
		ReadTimeout:      60 * time.Second,
	}
}

// Signal kinds.
const (
	KindTrigger      = "TRIGGER"
	KindInvalidation = "INVALIDATION"
)

// Signal is one emitted crossing event.
type Signal struct {
	Symbol   string              `json:"symbol"`
	Kind     string              `json:"kind"`
	Side     domain.Side         `json:"side"`
	PlanKind domain.PlaybookKind `json:"plan_kind"`
	Price    float64             `json:"price"`
	Level    float64             `json:"level"`
	At       time.Time           `json:"at"`
}

// Levels are the armed prices for one planned symbol.
type Levels struct {
	Symbol       string
	Side         domain.Side
	PlanKind     domain.PlaybookKind
	Reference    float64
	Trigger      float64
	Invalidation float64
}

// QuoteUpdate is one live premarket print.
type QuoteUpdate struct {
	Symbol string
	Price  float64
	At     time.Time
}

// levelsFor derives armed levels from one ranked entry. Plans without a
// tradable side arm nothing.
func levelsFor(e artifact.RankedEntry, triggerPct, invalidationPct float64) (Levels, bool) {
	ref := e.Candidate.Price
	if ref <= 0 || e.Plan.Kind == domain.PlaybookNoTrade || e.Plan.NoTradeZone {
		return Levels{}, false
	}

	lv := Levels{
		Symbol:    e.Result.Symbol,
		Side:      e.Plan.Side,
		PlanKind:  e.Plan.Kind,
		Reference: ref,
	}
	switch e.Plan.Side {
	case domain.SideLong:
		lv.Trigger = ref * (1 + triggerPct/100)
		lv.Invalidation = ref * (1 - invalidationPct/100)
	case domain.SideShort:
		lv.Trigger = ref * (1 - triggerPct/100)
		lv.Invalidation = ref * (1 + invalidationPct/100)
	default:
		return Levels{}, false
	}
	return lv, true
}

// Watcher holds armed levels and emits each symbol's outcome at most once.
type Watcher struct {
	mu     sync.Mutex
	levels map[string]Levels
	fired  map[string]bool
	cfg    Config
	log    zerolog.Logger
}

// NewWatcher creates an empty watcher; call Load with an artifact to arm it.
func NewWatcher(cfg Config, log zerolog.Logger) *Watcher {
	if cfg.TopN <= 0 {
		cfg = DefaultConfig()
	}
	return &Watcher{
		levels: make(map[string]Levels),
		fired:  make(map[string]bool),
		cfg:    cfg,
		log:    log.With().Str("component", "signals").Logger(),
	}
}

// Load arms levels from the top N ranked entries, replacing previous state.
// It returns the number of symbols armed.
func (w *Watcher) Load(a artifact.RunArtifact) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.levels = make(map[string]Levels)
	w.fired = make(map[string]bool)

	n := w.cfg.TopN
	for i, e := range a.Ranked {
		if i >= n {
			break
		}
		if lv, ok := levelsFor(e, w.cfg.TriggerPct, w.cfg.InvalidationPct); ok {
			w.levels[lv.Symbol] = lv
		}
	}
	return len(w.levels)
}

// Armed returns the currently armed levels, for the ops log.
func (w *Watcher) Armed() []Levels {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Levels, 0, len(w.levels))
	for _, lv := range w.levels {
		out = append(out, lv)
	}
	return out
}

// Observe evaluates one quote against the armed levels. Each symbol fires at
// most one signal; quotes for unknown or already-fired symbols return false.
func (w *Watcher) Observe(q QuoteUpdate) (Signal, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lv, ok := w.levels[q.Symbol]
	if !ok || w.fired[q.Symbol] || q.Price <= 0 {
		return Signal{}, false
	}

	var kind string
	var level float64
	switch lv.Side {
	case domain.SideLong:
		switch {
		case q.Price >= lv.Trigger:
			kind, level = KindTrigger, lv.Trigger
		case q.Price <= lv.Invalidation:
			kind, level = KindInvalidation, lv.Invalidation
		}
	case domain.SideShort:
		switch {
		case q.Price <= lv.Trigger:
			kind, level = KindTrigger, lv.Trigger
		case q.Price >= lv.Invalidation:
			kind, level = KindInvalidation, lv.Invalidation
		}
	}
	if kind == "" {
		return Signal{}, false
	}

	w.fired[q.Symbol] = true
	return Signal{
		Symbol:   q.Symbol,
		Kind:     kind,
		Side:     lv.Side,
		PlanKind: lv.PlanKind,
		Price:    q.Price,
		Level:    level,
		At:       q.At,
	}, true
}

// Run consumes quotes until ctx is done, invoking emit for every signal.
func (w *Watcher) Run(ctx context.Context, quotes <-chan QuoteUpdate, emit func(Signal)) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-quotes:
			if !ok {
				return
			}
			if sig, fired := w.Observe(q); fired {
				w.log.Info().
					Str("symbol", sig.Symbol).
					Str("kind", sig.Kind).
					Str("side", string(sig.Side)).
					Float64("price", sig.Price).
					Float64("level", sig.Level).
					Msg("signal")
				if emit != nil {
					emit(sig)
				}
			}
		}
	}
}
