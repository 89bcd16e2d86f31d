// Package store persists run history to Postgres. Persistence is optional:
// the pipeline runs artifact-only unless a DSN is configured.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/quantprep/openprep/internal/artifact"
)

// Config holds database connection settings.
type Config struct {
	Enabled         bool          `yaml:"enabled"`                                     // Default: false
	DSN             string        `yaml:"dsn"`                                         // Default: "" (or DATABASE_URL)
	MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`                 // Default: 10
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`                  // Default: 5
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`             // Default: 30m
	QueryTimeout    time.Duration `yaml:"query_timeout" default:"10s" validate:"gt=0"` // Default: 10s
}

// DefaultConfig returns pool settings with persistence disabled.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

// Validate rejects an enabled store without a DSN.
func (c Config) Validate() error {
	if c.Enabled && c.DSN == "" {
		return fmt.Errorf("store DSN is required when persistence is enabled")
	}
	return nil
}

// RunRecord is the queryable summary row for one run.
type RunRecord struct {
	RunID       string    `db:"run_id" json:"run_id"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
	Regime      string    `db:"regime" json:"regime"`
	Ranked      int       `db:"ranked" json:"ranked"`
	Excluded    int       `db:"excluded" json:"excluded"`
	TopSymbol   string    `db:"top_symbol" json:"top_symbol"`
	TopScore    float64   `db:"top_score" json:"top_score"`
	DurationMS  int64     `db:"duration_ms" json:"duration_ms"`
}

// RunRepo persists run artifacts and serves run history.
type RunRepo interface {
	SaveRun(ctx context.Context, a artifact.RunArtifact) error
	GetRun(ctx context.Context, runID string) (artifact.RunArtifact, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// Summarize reduces an artifact to its history row.
func Summarize(a artifact.RunArtifact) RunRecord {
	rec := RunRecord{
		RunID:       a.RunID,
		GeneratedAt: a.GeneratedAt,
		Regime:      a.Regime.Regime.String(),
		Ranked:      len(a.Ranked),
		Excluded:    len(a.Excluded),
		DurationMS:  a.Status.DurationMS,
	}
	if len(a.Ranked) > 0 {
		rec.TopSymbol = a.Ranked[0].Result.Symbol
		rec.TopScore = a.Ranked[0].Result.TotalScore
	}
	return rec
}

// Open connects to Postgres, configures the pool, and verifies connectivity.
func Open(cfg Config) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
