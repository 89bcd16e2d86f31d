package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/quantprep/openprep/internal/config"
	"github.com/quantprep/openprep/internal/enrich"
	"github.com/quantprep/openprep/internal/metrics"
	"github.com/quantprep/openprep/internal/notify"
	"github.com/quantprep/openprep/internal/pipeline"
	"github.com/quantprep/openprep/internal/store"
)

// backends bundles the optional services a command wires around the
// pipeline: run history, bus publisher, shared metrics recorder.
type backends struct {
	deps    pipeline.Deps
	rec     *metrics.Recorder
	repo    store.RunRepo
	pub     notify.Publisher
	closers []func() error
}

// buildBackends connects whatever the config enables and wires it into the
// pipeline deps. Callers own the returned backends and must close them.
func buildBackends(cfg *config.PipelineConfig, source enrich.DataSource) (*backends, error) {
	b := &backends{rec: metrics.New()}

	if cfg.Store.Enabled {
		db, err := store.Open(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		b.closers = append(b.closers, db.Close)

		repo, err := store.NewPostgresRunRepo(db, cfg.Store.QueryTimeout)
		if err != nil {
			b.close()
			return nil, err
		}
		b.repo = repo
	}

	pub, err := notify.New(cfg.Notify, b.rec, log.Logger)
	if err != nil {
		b.close()
		return nil, err
	}
	b.pub = pub
	b.closers = append(b.closers, pub.Close)

	b.deps = pipeline.Deps{
		Source:    source,
		Runs:      b.repo,
		Publisher: b.pub,
		Metrics:   b.rec,
		Log:       log.Logger,
	}
	return b, nil
}

// close releases backends in reverse order of construction.
func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close backend")
		}
	}
}

// buildSource picks the snapshot source for a scan: an offline JSON export,
// an HTTP endpoint, or the SNAPSHOT_SOURCE_URL env fallback.
func buildSource(snapshotFile, sourceURL string, cfg *config.PipelineConfig) (enrich.DataSource, error) {
	if snapshotFile != "" && sourceURL != "" {
		return nil, fmt.Errorf("--snapshots and --source-url are mutually exclusive")
	}
	switch {
	case snapshotFile != "":
		src, err := enrich.NewFileSource(snapshotFile)
		if err != nil {
			return nil, err
		}
		log.Info().Str("file", snapshotFile).Int("symbols", src.Len()).Msg("scanning offline snapshots")
		return src, nil
	case sourceURL != "":
		return enrich.NewHTTPSource(sourceURL, cfg.Enrich.Timeout)
	case os.Getenv("SNAPSHOT_SOURCE_URL") != "":
		return enrich.NewHTTPSource(os.Getenv("SNAPSHOT_SOURCE_URL"), cfg.Enrich.Timeout)
	default:
		return nil, fmt.Errorf("a snapshot source is required: pass --snapshots or --source-url, or set SNAPSHOT_SOURCE_URL")
	}
}
