// Package schedule runs the scan pipeline on a cron expression. Overlapping
// runs are suppressed rather than queued, since a late-finishing scan makes
// the next tick's inputs stale anyway.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Config holds scheduler settings. The default expression fires at 07:30
// on weekdays, inside the premarket session for US equities.
type Config struct {
	Expression string `yaml:"expression" default:"30 7 * * 1-5"`   // Default: 30 7 * * 1-5
	Timezone   string `yaml:"timezone" default:"America/New_York"` // Default: America/New_York
}

// DefaultConfig returns the weekday pre-open schedule.
func DefaultConfig() Config {
	return Config{
		Expression: "30 7 * * 1-5",
		Timezone:   "America/New_York",
	}
}

// Job is one scheduled pipeline execution.
type Job func(ctx context.Context) error

// Runner owns the cron loop and the single-flight gate.
type Runner struct {
	cron    *cron.Cron
	cfg     Config
	running atomic.Bool
	skipped atomic.Int64
	log     zerolog.Logger
}

// New builds a runner in the configured timezone.
func New(cfg Config, log zerolog.Logger) (*Runner, error) {
	if cfg.Expression == "" {
		cfg = DefaultConfig()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	return &Runner{
		cron: cron.New(cron.WithLocation(loc)),
		cfg:  cfg,
		log:  log.With().Str("component", "schedule").Logger(),
	}, nil
}

// Start registers the job and starts the cron loop. ctx is passed to every
// job invocation, so cancelling it aborts an in-flight run.
func (r *Runner) Start(ctx context.Context, job Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}

	_, err := r.cron.AddFunc(r.cfg.Expression, func() {
		r.runOnce(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", r.cfg.Expression, err)
	}

	r.cron.Start()
	r.log.Info().
		Str("expression", r.cfg.Expression).
		Str("timezone", r.cfg.Timezone).
		Time("next", r.Next()).
		Msg("scheduler started")
	return nil
}

// runOnce executes the job unless a previous run is still in flight.
func (r *Runner) runOnce(ctx context.Context, job Job) {
	if !r.running.CompareAndSwap(false, true) {
		r.skipped.Add(1)
		r.log.Warn().Msg("previous run still in flight, skipping tick")
		return
	}
	defer r.running.Store(false)

	start := time.Now()
	if err := job(ctx); err != nil {
		r.log.Error().Err(err).Dur("duration", time.Since(start)).Msg("scheduled run failed")
		return
	}
	r.log.Info().Dur("duration", time.Since(start)).Msg("scheduled run complete")
}

// Next returns the next scheduled fire time, zero when nothing is scheduled.
func (r *Runner) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Skipped returns how many ticks were suppressed by the overlap gate.
func (r *Runner) Skipped() int64 { return r.skipped.Load() }

// Stop halts the cron loop and waits for an in-flight run to return.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info().Msg("scheduler stopped")
}
