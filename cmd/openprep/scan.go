package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/config"
	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/pipeline"
)

func scanCmd(configPath *string) *cobra.Command {
	var (
		snapshotFile string
		sourceURL    string
		contextFile  string
		macroBias    float64
		vix          float64
		breadth      float64
		minsToOpen   float64
		force        bool
		top          int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one pre-market scan and print the ranking",
		Long: `Scan enriches the configured universe, classifies the market regime,
screens and scores every eligible symbol, and writes the run artifact.
Market context comes from --context and can be overridden per flag.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			source, err := buildSource(snapshotFile, sourceURL, cfg)
			if err != nil {
				return err
			}
			mc, err := buildContext(cmd.Flags(), contextFile)
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

			a, err := runner.Run(cmd.Context(), pipeline.RunOptions{Context: mc, Force: force})
			if err != nil {
				return err
			}
			if top <= 0 {
				top = cfg.TopN
			}
			printRun(a, top)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&snapshotFile, "snapshots", "", "path to a JSON snapshot export to scan offline")
	flags.StringVar(&sourceURL, "source-url", "", "base URL of a snapshot HTTP endpoint")
	flags.StringVar(&contextFile, "context", "", "path to a market context YAML file")
	flags.Float64Var(&macroBias, "macro-bias", 0, "macro bias override, -1 (risk-off) to +1 (risk-on)")
	flags.Float64Var(&vix, "vix", 0, "VIX level override")
	flags.Float64Var(&breadth, "breadth", 0, "advancing sector share override, 0 to 1")
	flags.Float64Var(&minsToOpen, "minutes-to-open", 0, "minutes until the session opens, negative once open")
	flags.BoolVar(&force, "force", false, "ignore fingerprints and re-score every candidate")
	flags.IntVar(&top, "top", 0, "rows to print, 0 uses the configured top_n")

	return cmd
}

// buildContext loads the context file when given and layers explicit flag
// overrides on top. Only flags the user actually set override the file.
func buildContext(flags *pflag.FlagSet, contextFile string) (domain.MarketContext, error) {
	var mc domain.MarketContext
	if contextFile != "" {
		loaded, err := config.LoadMarketContext(contextFile)
		if err != nil {
			return domain.MarketContext{}, err
		}
		mc = loaded
	}

	if flags.Changed("macro-bias") {
		mc.MacroBias, _ = flags.GetFloat64("macro-bias")
	}
	if flags.Changed("vix") {
		v, _ := flags.GetFloat64("vix")
		mc.VIX = &v
	}
	if flags.Changed("breadth") {
		v, _ := flags.GetFloat64("breadth")
		mc.SectorBreadth = &v
	}
	if flags.Changed("minutes-to-open") {
		mc.MinutesToOpen, _ = flags.GetFloat64("minutes-to-open")
	}
	if mc.AsOf.IsZero() {
		mc.AsOf = time.Now().UTC()
	}
	return mc, nil
}

func printRun(a artifact.RunArtifact, top int) {
	fmt.Printf("\nPREMARKET RANKING | run %s | regime %s | %d ranked, %d excluded\n",
		a.RunID, a.Regime.Regime, len(a.Ranked), len(a.Excluded))
	fmt.Println(strings.Repeat("═", 96))
	fmt.Printf("%-5s %-8s %-8s %-7s %-17s %-17s %s\n",
		"#", "SYMBOL", "SCORE", "PROB", "TIER", "PLAYBOOK", "NOTES")

	shown := a.Ranked
	if len(shown) > top {
		shown = shown[:top]
	}
	for _, e := range shown {
		prob := fmt.Sprintf("%.0f%%", e.Result.EntryProbability*100)
		fmt.Printf("%-5d %-8s %-8.1f %-7s %-17s %-17s %s\n",
			e.Rank, e.Result.Symbol, e.Result.TotalScore, prob,
			e.Result.Tier, e.Plan.Kind, entryNotes(e))
	}
	if len(a.Ranked) > len(shown) {
		fmt.Printf("... %d more ranked, see %s\n", len(a.Ranked)-len(shown), a.RunID)
	}

	if len(a.Excluded) > 0 {
		parts := make([]string, 0, len(a.Excluded))
		for _, ex := range a.Excluded {
			parts = append(parts, fmt.Sprintf("%s (%s)", ex.Symbol, strings.Join(ex.Reasons, "; ")))
		}
		fmt.Printf("\nExcluded: %s\n", strings.Join(parts, ", "))
	}
	if n := len(a.Status.Degraded); n > 0 {
		fmt.Printf("⚠️  %d degradation(s) absorbed, see the run artifact for details\n", n)
	}
	fmt.Printf("\nScan took %dms, %d/%d fingerprint cache hits\n",
		a.Status.DurationMS, a.Status.CacheHits, a.Status.Scored)
}

func entryNotes(e artifact.RankedEntry) string {
	var notes []string
	if e.Plan.NoTradeZone {
		notes = append(notes, "zone: "+strings.Join(e.Plan.ZoneReasons, ", "))
	}
	if e.CacheHit {
		notes = append(notes, "cached")
	}
	if len(notes) == 0 {
		return "-"
	}
	return strings.Join(notes, "; ")
}
