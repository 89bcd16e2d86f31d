package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/config"
	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/httpapi"
	"github.com/quantprep/openprep/internal/pipeline"
	"github.com/quantprep/openprep/internal/schedule"
)

func scheduleCmd(configPath *string) *cobra.Command {
	var (
		snapshotFile string
		sourceURL    string
		contextFile  string
		force        bool
		atStart      bool
		serve        bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run scans on the configured cron expression",
		Long: `Schedule keeps the process alive and fires a scan on every cron tick,
skipping ticks while a previous run is still in flight. With --serve it
also exposes the ops API for the artifacts it produces.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			source, err := buildSource(snapshotFile, sourceURL, cfg)
			if err != nil {
				return err
			}

			b, err := buildBackends(cfg, source)
			if err != nil {
				return err
			}
			defer b.close()

			runner, err := pipeline.New(cfg, b.deps)
			if err != nil {
				return err
			}
			defer runner.Close()

			job := func(jobCtx context.Context) error {
				mc, err := tickContext(contextFile)
				if err != nil {
					return err
				}
				_, err = runner.Run(jobCtx, pipeline.RunOptions{Context: mc, Force: force})
				return err
			}

			sched, err := schedule.New(cfg.Schedule, log.Logger)
			if err != nil {
				return err
			}

			var srv *httpapi.Server
			if serve {
				srv, err = httpapi.NewServer(cfg.Server, httpapi.Deps{
					Artifacts: artifact.NewWriter(cfg.ArtifactDir),
					Regime:    runner,
					Runs:      b.repo,
					Metrics:   b.rec.Handler(),
				}, log.Logger)
				if err != nil {
					return err
				}
			}

			if err := sched.Start(ctx, job); err != nil {
				return err
			}
			defer sched.Stop()

			if atStart {
				if err := job(ctx); err != nil {
					log.Error().Err(err).Msg("initial run failed")
				}
			}

			if srv != nil {
				return serveUntilDone(ctx, srv)
			}
			<-ctx.Done()
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&snapshotFile, "snapshots", "", "path to a JSON snapshot export to scan offline")
	flags.StringVar(&sourceURL, "source-url", "", "base URL of a snapshot HTTP endpoint")
	flags.StringVar(&contextFile, "context", "", "market context YAML, re-read on every tick")
	flags.BoolVar(&force, "force", false, "ignore fingerprints and re-score every candidate")
	flags.BoolVar(&atStart, "at-start", false, "run one scan immediately, then follow the schedule")
	flags.BoolVar(&serve, "serve", false, "also serve the ops API while scheduled")

	return cmd
}

// tickContext builds the market context for one scheduled run. The context
// file is re-read every tick so operators can adjust bias between sessions
// without restarting the scheduler. AsOf always reflects the tick time.
func tickContext(contextFile string) (domain.MarketContext, error) {
	if contextFile == "" {
		return domain.MarketContext{AsOf: time.Now().UTC()}, nil
	}
	mc, err := config.LoadMarketContext(contextFile)
	if err != nil {
		return domain.MarketContext{}, err
	}
	mc.AsOf = time.Now().UTC()
	return mc, nil
}
