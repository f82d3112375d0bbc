package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/irfndi/celebrum-correlation-go/internal/cache"
	"github.com/irfndi/celebrum-correlation-go/internal/coingecko"
	"github.com/irfndi/celebrum-correlation-go/internal/config"
	"github.com/irfndi/celebrum-correlation-go/internal/database"
	"github.com/irfndi/celebrum-correlation-go/internal/logging"
	"github.com/irfndi/celebrum-correlation-go/internal/services"
	"github.com/irfndi/celebrum-correlation-go/internal/storage"
)

// Version is overridden at build time with -ldflags.
var Version = "1.0.0"

// loadConfig is swapped in tests.
var loadConfig = config.Load

// runOptions are the flags that override pipeline config for one run.
type runOptions struct {
	top               int
	days              int
	corrThreshold     float64
	distanceThreshold float64
	refresh           bool
}

func (o *runOptions) register(flags *pflag.FlagSet) {
	flags.IntVar(&o.top, "top", 0, "Number of top coins by market cap to analyze (overrides pipeline.top_n)")
	flags.IntVar(&o.days, "days", 0, "Lookback window in days (overrides pipeline.lookback_days)")
	flags.Float64Var(&o.corrThreshold, "corr-threshold", 0, "Average correlation below which a coin is uncorrelated")
	flags.Float64Var(&o.distanceThreshold, "distance-threshold", 0, "Price distance above which a coin is an outlier")
	flags.BoolVar(&o.refresh, "refresh", false, "Ignore previously downloaded price history")
}

// apply copies explicitly set flags onto cfg and revalidates it.
func (o *runOptions) apply(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("top") {
		cfg.Pipeline.TopN = o.top
	}
	if flags.Changed("days") {
		cfg.Pipeline.LookbackDays = o.days
	}
	if flags.Changed("corr-threshold") {
		cfg.Pipeline.CorrelationThreshold = o.corrThreshold
	}
	if flags.Changed("distance-threshold") {
		cfg.Pipeline.DistanceThreshold = o.distanceThreshold
	}
	if o.refresh {
		cfg.Pipeline.ReuseRaw = false
	}
	return cfg.Validate()
}

// NewRootCmd creates the pipeline command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Crypto correlation and price-distance analyzer",
		Long: `Fetches the top cryptocurrencies by market cap, computes their returns,
pairwise correlations and distance from the market average, and exports
the results for the dashboard server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newPingCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newCleanupCmd())

	return rootCmd
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and export the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := opts.apply(cmd.Flags(), cfg); err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "celebrum-correlation-go %s\n", Version)
		},
	}
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the market data API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			client := coingecko.NewClient(&cfg.CoinGecko)
			resp, err := client.Ping(cmd.Context())
			if err != nil {
				return fmt.Errorf("ping %s: %w", client.BaseURL(), err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.GeckoSays)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs recorded in PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if !cfg.Database.Enabled {
				return errors.New("run history requires database.enabled")
			}
			logger := logging.NewLogrusLogger(cfg.LogLevel, cfg.Environment)
			backends := database.ConnectBackends(cmd.Context(), cfg, logger)
			defer backends.Close()
			if backends.Runs == nil {
				return errors.New("run history is unavailable")
			}

			runs, err := backends.Runs.ListRecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	return cmd
}

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Market data cache management",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached market data response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if !cfg.Redis.Enabled {
				return errors.New("the market cache requires redis.enabled")
			}
			logger := logging.NewLogrusLogger(cfg.LogLevel, cfg.Environment)
			backends := database.ConnectBackends(cmd.Context(), cfg, logger)
			defer backends.Close()
			if backends.Redis == nil {
				return errors.New("redis is unavailable")
			}

			n, err := cache.NewMarketCache(backends.Redis.Client, cfg.Redis.CacheTTL, logger).Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached responses\n", n)
			return nil
		},
	})

	return cacheCmd
}

func newCleanupCmd() *cobra.Command {
	var rawRetention, runRetention time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale raw price history and old run records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			retention := services.CleanupConfig{
				RawRetention: cfg.Cleanup.RawRetention,
				RunRetention: cfg.Cleanup.RunRetention,
			}
			if cmd.Flags().Changed("raw-retention") {
				retention.RawRetention = rawRetention
			}
			if cmd.Flags().Changed("run-retention") {
				retention.RunRetention = runRetention
			}
			if retention.RawRetention < 0 || retention.RunRetention < 0 {
				return errors.New("retention must not be negative")
			}

			logger := logging.NewLogrusLogger(cfg.LogLevel, cfg.Environment)
			backends := database.ConnectBackends(cmd.Context(), cfg, logger)
			defer backends.Close()

			var runs services.RunPruner
			if backends.Runs != nil {
				backends.Runs.SetObserver(logging.NewStandardLogger(cfg.LogLevel, cfg.Environment))
				runs = backends.Runs
			}
			svc := services.NewCleanupService(storage.NewSeriesStore(cfg.Pipeline.DataDir), runs, nil, logger)
			result, err := svc.RunCleanup(cmd.Context(), retention)
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), "removed %d raw series, %d run records", len(result.RemovedSeries), result.DeletedRuns)
			return nil
		},
	}
	cmd.Flags().DurationVar(&rawRetention, "raw-retention", 0, "Remove raw price history not refreshed within this period (overrides cleanup.raw_retention)")
	cmd.Flags().DurationVar(&runRetention, "run-retention", 0, "Delete run records older than this (overrides cleanup.run_retention)")
	return cmd
}

func writeLine(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
