package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quantprep/openprep/internal/config"
)

const (
	appName = "openprep"
	version = "v1.4.0"
)

// Execute builds the command tree and runs it against ctx.
func Execute(ctx context.Context) error {
	var (
		configPath string
		logLevel   string
	)

	root := &cobra.Command{
		Use:     appName,
		Short:   "Pre-market candidate scoring and ranking pipeline",
		Version: version,
		Long: `openprep scans a pre-market symbol universe, scores each candidate against
a regime-aware component model, assigns trading playbooks, and writes a
deterministic ranked artifact.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyLogLevel(logLevel)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "pipeline config file (YAML)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace|debug|info|warn|error")

	root.AddCommand(scanCmd(&configPath))
	root.AddCommand(monitorCmd(&configPath))
	root.AddCommand(scheduleCmd(&configPath))
	root.AddCommand(signalsCmd(&configPath))
	root.AddCommand(versionCmd())

	return root.ExecuteContext(ctx)
}

func applyLogLevel(level string) error {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// loadConfig resolves the pipeline configuration: shipped defaults when no
// file is named, the file plus env overrides otherwise.
func loadConfig(path string) (*config.PipelineConfig, error) {
	if path == "" {
		return config.DefaultWithEnv()
	}
	return config.LoadWithEnv(path)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the openprep version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}
}
