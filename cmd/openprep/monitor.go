package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/httpapi"
	"github.com/quantprep/openprep/internal/metrics"
	"github.com/quantprep/openprep/internal/regime"
	"github.com/quantprep/openprep/internal/store"
)

func monitorCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve the read-only ops API over existing run artifacts",
		Long: `Monitor exposes /health, /regime, /results and /metrics over the runs
already on disk. It does not scan on its own; pair it with the schedule
command or an external cron driving scans into the same artifact dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			writer := artifact.NewWriter(cfg.ArtifactDir)
			rec := metrics.New()

			var repo store.RunRepo
			if cfg.Store.Enabled {
				db, err := store.Open(cfg.Store)
				if err != nil {
					return fmt.Errorf("failed to open run store: %w", err)
				}
				defer db.Close()
				repo, err = store.NewPostgresRunRepo(db, cfg.Store.QueryTimeout)
				if err != nil {
					return err
				}
			}

			srv, err := httpapi.NewServer(cfg.Server, httpapi.Deps{
				Artifacts: writer,
				Regime:    artifactRegime{writer},
				Runs:      repo,
				Metrics:   rec.Handler(),
			}, log.Logger)
			if err != nil {
				return err
			}
			return serveUntilDone(cmd.Context(), srv)
		},
	}
	return cmd
}

// serveUntilDone runs the ops server until the context is cancelled, then
// drains it with a shutdown grace period.
func serveUntilDone(ctx context.Context, srv *httpapi.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// artifactRegime answers /regime from the latest run artifact on disk, so
// monitor mode works without a live classifier in the process.
type artifactRegime struct {
	writer *artifact.Writer
}

func (s artifactRegime) LastClassification() (regime.Classification, bool) {
	a, err := s.writer.ReadLatest()
	if err != nil {
		return regime.Classification{}, false
	}
	return a.Regime, true
}
