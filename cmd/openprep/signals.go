package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/config"
	"github.com/quantprep/openprep/internal/metrics"
	"github.com/quantprep/openprep/internal/notify"
	"github.com/quantprep/openprep/internal/signals"
)

func signalsCmd(configPath *string) *cobra.Command {
	var (
		feedURL string
		top     int
	)

	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Watch live quotes against the latest run's planned setups",
		Long: `Signals arms trigger and invalidation levels from the most recent run
artifact, subscribes to the premarket quote feed, and emits a crossing
event at most once per symbol. Events go to the log, metrics, and the
configured bus topics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if feedURL != "" {
				cfg.Signals.URL = feedURL
			}
			if top > 0 {
				cfg.Signals.TopN = top
			}
			if cfg.Signals.URL == "" {
				return fmt.Errorf("a quote feed URL is required: set signals.url or pass --feed-url")
			}

			a, err := artifact.NewWriter(cfg.ArtifactDir).ReadLatest()
			if err != nil {
				return fmt.Errorf("no run artifact to watch: %w", err)
			}

			rec := metrics.New()
			pub, err := notify.New(cfg.Notify, rec, log.Logger)
			if err != nil {
				return err
			}
			defer pub.Close()

			watcher := signals.NewWatcher(cfg.Signals, log.Logger)
			armed := watcher.Load(a)
			if armed == 0 {
				log.Warn().Str("run_id", a.RunID).Msg("no tradable plans in the latest run, nothing to watch")
				return nil
			}

			symbols := make([]string, 0, armed)
			for _, lv := range watcher.Armed() {
				symbols = append(symbols, lv.Symbol)
			}
			sort.Strings(symbols)

			log.Info().
				Str("run_id", a.RunID).
				Int("armed", armed).
				Strs("symbols", symbols).
				Msg("watching premarket feed")

			emit := func(sig signals.Signal) {
				rec.RecordSignal(sig.Kind)
				if err := pub.PublishSignal(cmd.Context(), sig); err != nil {
					log.Error().Err(err).Str("symbol", sig.Symbol).Msg("failed to publish signal")
				}
			}
			return watchFeed(cmd.Context(), cfg, watcher, symbols, emit)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&feedURL, "feed-url", "", "websocket quote feed URL, overrides signals.url")
	flags.IntVar(&top, "top", 0, "ranked entries to arm, 0 uses the configured signals.top_n")

	return cmd
}

// watchFeed keeps a quote connection alive until ctx is done. The client
// signals connection loss rather than redialing itself, so each reconnect
// builds a fresh client. Watcher state survives reconnects, keeping the
// one-signal-per-symbol guarantee across them.
func watchFeed(ctx context.Context, cfg *config.PipelineConfig, watcher *signals.Watcher, symbols []string, emit func(signals.Signal)) error {
	const maxBackoff = 30 * time.Second
	backoff := time.Second

	for {
		client, err := signals.NewQuoteClient(cfg.Signals, log.Logger)
		if err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("quote feed dial failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		if err := client.Subscribe(symbols); err != nil {
			client.Close()
			return fmt.Errorf("failed to subscribe to quote feed: %w", err)
		}

		connCtx, cancel := context.WithCancel(ctx)
		go watcher.Run(connCtx, client.Quotes(), emit)

		select {
		case <-ctx.Done():
			cancel()
			client.Close()
			return nil
		case <-client.ReconnectChannel():
			log.Warn().Msg("quote feed lost, reconnecting")
			cancel()
			client.Close()
		}
	}
}
