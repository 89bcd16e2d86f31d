// Package metrics exposes pipeline instrumentation behind one registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/quantprep/openprep/internal/regime"
)

// Recorder owns every openprep metric. Each Recorder carries its own
// registry so construction never collides with another instance.
type Recorder struct {
	registry *prometheus.Registry

	stepDuration   *prometheus.HistogramVec
	cacheEvents    *prometheus.CounterVec
	candidates     *prometheus.CounterVec
	runsTotal      *prometheus.CounterVec
	regimeSwitches prometheus.Counter
	activeRegime   *prometheus.GaugeVec
	lastRun        prometheus.Gauge
	signalsTotal   *prometheus.CounterVec
	publishTotal   *prometheus.CounterVec
}

// New creates a recorder with all pipeline metrics registered.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openprep_step_duration_seconds",
				Help:    "Duration of pipeline steps in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		cacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openprep_fingerprint_cache_events_total",
				Help: "Fingerprint cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		candidates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openprep_candidates_total",
				Help: "Candidates processed by final outcome",
			},
			[]string{"outcome"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openprep_runs_total",
				Help: "Pipeline runs by completion status",
			},
			[]string{"status"},
		),
		regimeSwitches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "openprep_regime_switches_total",
				Help: "Number of regime transitions observed",
			},
		),
		activeRegime: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "openprep_active_regime",
				Help: "1 for the currently active regime, 0 otherwise",
			},
			[]string{"regime"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "openprep_last_run_timestamp_seconds",
				Help: "Unix timestamp of the last completed run",
			},
		),
		signalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openprep_signals_total",
				Help: "Realtime signals emitted by kind",
			},
			[]string{"kind"},
		),
		publishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openprep_publish_total",
				Help: "Run events published by topic and delivery status",
			},
			[]string{"topic", "status"},
		),
	}
}

// Handler serves this recorder's registry in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// StepTimer observes the duration of one pipeline step when the returned
// function is called.
func (r *Recorder) StepTimer(step string) func() {
	start := time.Now()
	return func() {
		r.stepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
	}
}

// ObserveStep records an already-measured step duration.
func (r *Recorder) ObserveStep(step string, d time.Duration) {
	r.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RecordCacheHit counts a fingerprint cache hit.
func (r *Recorder) RecordCacheHit() { r.cacheEvents.WithLabelValues("hit").Inc() }

// RecordCacheMiss counts a fingerprint cache miss.
func (r *Recorder) RecordCacheMiss() { r.cacheEvents.WithLabelValues("miss").Inc() }

// RecordCandidates adds n candidates under an outcome label.
func (r *Recorder) RecordCandidates(outcome string, n int) {
	if n > 0 {
		r.candidates.WithLabelValues(outcome).Add(float64(n))
	}
}

// RecordRun counts a completed pipeline run by status.
func (r *Recorder) RecordRun(status string) { r.runsTotal.WithLabelValues(status).Inc() }

// RecordRegime updates the active-regime gauge and counts transitions.
func (r *Recorder) RecordRegime(cls regime.Classification) {
	if cls.Changed {
		r.regimeSwitches.Inc()
	}
	for _, rg := range []regime.Regime{regime.Neutral, regime.RiskOn, regime.RiskOff, regime.Rotation} {
		v := 0.0
		if rg == cls.Regime {
			v = 1.0
		}
		r.activeRegime.WithLabelValues(rg.String()).Set(v)
	}
}

// SetLastRun stamps the completion time of the most recent run.
func (r *Recorder) SetLastRun(t time.Time) { r.lastRun.Set(float64(t.Unix())) }

// RecordSignal counts an emitted realtime signal.
func (r *Recorder) RecordSignal(kind string) { r.signalsTotal.WithLabelValues(kind).Inc() }

// RecordPublish counts a bus publish attempt.
func (r *Recorder) RecordPublish(topic, status string) {
	r.publishTotal.WithLabelValues(topic, status).Inc()
}

// CacheHitRatio reads the cache counters back and returns hits/(hits+misses),
// 0 when nothing has been counted yet.
func (r *Recorder) CacheHitRatio() float64 {
	hits := counterValue(r.cacheEvents.WithLabelValues("hit"))
	misses := counterValue(r.cacheEvents.WithLabelValues("miss"))
	total := hits + misses
	if total == 0 {
		return 0
	}
	return hits / total
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}
