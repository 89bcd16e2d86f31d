package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quantprep/openprep/internal/artifact"
)

const schema = `
CREATE TABLE IF NOT EXISTS openprep_runs (
	run_id       TEXT PRIMARY KEY,
	generated_at TIMESTAMPTZ NOT NULL,
	regime       TEXT NOT NULL,
	ranked       INT NOT NULL,
	excluded     INT NOT NULL,
	top_symbol   TEXT NOT NULL DEFAULT '',
	top_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	artifact     JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS openprep_runs_generated_at_idx
	ON openprep_runs (generated_at DESC);
`

// postgresRunRepo implements RunRepo on Postgres.
type postgresRunRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresRunRepo creates the run history repository and ensures its
// schema exists.
func NewPostgresRunRepo(db *sqlx.DB, timeout time.Duration) (RunRepo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure run schema: %w", err)
	}
	return &postgresRunRepo{db: db, timeout: timeout}, nil
}

func (r *postgresRunRepo) SaveRun(ctx context.Context, a artifact.RunArtifact) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	blob, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal run artifact: %w", err)
	}
	rec := Summarize(a)

	query := `
		INSERT INTO openprep_runs
		(run_id, generated_at, regime, ranked, excluded, top_symbol, top_score, duration_ms, artifact)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			generated_at = EXCLUDED.generated_at,
			regime       = EXCLUDED.regime,
			ranked       = EXCLUDED.ranked,
			excluded     = EXCLUDED.excluded,
			top_symbol   = EXCLUDED.top_symbol,
			top_score    = EXCLUDED.top_score,
			duration_ms  = EXCLUDED.duration_ms,
			artifact     = EXCLUDED.artifact`

	if _, err := r.db.ExecContext(ctx, query,
		rec.RunID, rec.GeneratedAt, rec.Regime, rec.Ranked, rec.Excluded,
		rec.TopSymbol, rec.TopScore, rec.DurationMS, blob); err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", rec.RunID, err)
	}
	return nil
}

func (r *postgresRunRepo) GetRun(ctx context.Context, runID string) (artifact.RunArtifact, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var blob []byte
	err := r.db.QueryRowxContext(ctx,
		`SELECT artifact FROM openprep_runs WHERE run_id = $1`, runID).Scan(&blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return artifact.RunArtifact{}, fmt.Errorf("run %s not found", runID)
		}
		return artifact.RunArtifact{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var a artifact.RunArtifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return artifact.RunArtifact{}, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}
	return a, nil
}

func (r *postgresRunRepo) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	var recs []RunRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT run_id, generated_at, regime, ranked, excluded, top_symbol, top_score, duration_ms
		FROM openprep_runs
		ORDER BY generated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return recs, nil
}
