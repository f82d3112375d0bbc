package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-correlation-go/internal/cache"
	"github.com/irfndi/celebrum-correlation-go/internal/coingecko"
	"github.com/irfndi/celebrum-correlation-go/internal/config"
	"github.com/irfndi/celebrum-correlation-go/internal/database"
	"github.com/irfndi/celebrum-correlation-go/internal/logging"
	"github.com/irfndi/celebrum-correlation-go/internal/models"
	"github.com/irfndi/celebrum-correlation-go/internal/services"
	"github.com/irfndi/celebrum-correlation-go/internal/storage"
	"github.com/irfndi/celebrum-correlation-go/internal/telemetry"
)

const telemetryShutdownTimeout = 5 * time.Second

func runPipeline(ctx context.Context, cfg *config.Config, out io.Writer) error {
	stdLogger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	logger := logging.NewLogrusLogger(cfg.LogLevel, cfg.Environment)

	provider, err := telemetry.InitTelemetryWithProvider(ctx, &telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		SampleRate:     1.0,
	}, stdLogger.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown telemetry")
		}
	}()

	backends := database.ConnectBackends(ctx, cfg, logger)
	defer backends.Close()

	pipeline, err := buildPipeline(cfg, backends, stdLogger, logger)
	if err != nil {
		return err
	}

	stdLogger.LogPipelineEvent("run_started", map[string]interface{}{
		"top_n":         cfg.Pipeline.TopN,
		"lookback_days": cfg.Pipeline.LookbackDays,
		"reuse_raw":     cfg.Pipeline.ReuseRaw,
	})

	run, err := pipeline.Run(ctx)
	if run != nil {
		logRunOutcome(stdLogger, run, err)
		printRunSummary(out, run, cfg.Pipeline.ResultsDir)
	}
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}
	return nil
}

func logRunOutcome(stdLogger *logging.StandardLogger, run *models.RunLog, runErr error) {
	for _, s := range run.Skipped {
		stdLogger.WithSymbol(s.Symbol).Warn("Coin skipped", "run_id", run.ID, "coin_id", s.CoinID, "reason", s.Reason)
	}
	if runErr != nil {
		stdLogger.WithError(runErr).Error("Pipeline run failed", "run_id", run.ID)
		return
	}
	stdLogger.WithRunID(run.ID).Info("Pipeline run finished",
		"status", run.Status,
		"analyzed", run.Analyzed,
		"uncorrelated", run.UncorrelatedCount,
		"outliers", run.OutlierCount,
		"duration_ms", run.Duration().Milliseconds(),
	)
}

// buildPipeline wires the services of one run. Redis and Postgres are used
// when backends carries a live connection.
func buildPipeline(cfg *config.Config, backends *database.Backends, stdLogger *logging.StandardLogger, logger *logrus.Logger) (*services.PipelineService, error) {
	recovery := services.NewErrorRecoveryManager(logger)
	recovery.RegisterRetryPolicy(services.PolicyMarketAPI, services.RetryPolicyFromConfig(cfg.Retry))

	var marketCache *cache.MarketCache
	if backends != nil && backends.Redis != nil {
		marketCache = cache.NewMarketCache(backends.Redis.Client, cfg.Redis.CacheTTL, logger)
		marketCache.SetRetrier(recovery.Retrier(services.PolicyRedisOperation))
		marketCache.SetObserver(stdLogger)
	}

	fetcher := services.NewFetcherService(
		coingecko.NewClient(&cfg.CoinGecko),
		storage.NewSeriesStore(cfg.Pipeline.DataDir),
		marketCache,
		recovery,
		services.FetcherConfig{
			TopN:         cfg.Pipeline.TopN,
			LookbackDays: cfg.Pipeline.LookbackDays,
			VsCurrency:   cfg.CoinGecko.VsCurrency,
			ReuseRaw:     cfg.Pipeline.ReuseRaw,
			RawMaxAge:    cfg.Pipeline.RawMaxAge,
			DelayMin:     cfg.Pipeline.RequestDelayMin,
			DelayMax:     cfg.Pipeline.RequestDelayMax,
		},
		logger,
	)

	pipeline := services.NewPipelineService(
		fetcher,
		services.NewExporter(storage.NewArtifactStore(cfg.Pipeline.ResultsDir), logger),
		recovery,
		services.PipelineConfig{
			TopN:                 cfg.Pipeline.TopN,
			LookbackDays:         cfg.Pipeline.LookbackDays,
			MinOverlapDays:       cfg.Pipeline.MinOverlapDays,
			CorrelationThreshold: cfg.Pipeline.CorrelationThreshold,
			DistanceThreshold:    cfg.Pipeline.DistanceThreshold,
			SMAPeriod:            cfg.Pipeline.SMAPeriod,
		},
		logger,
	)
	pipeline.SetCache(marketCache)

	if backends != nil && backends.Runs != nil {
		backends.Runs.SetObserver(stdLogger)
		pipeline.SetRecorder(backends.Runs)
	}

	notifier, err := services.NewNotificationService(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification service: %w", err)
	}
	if notifier != nil {
		pipeline.SetNotifier(notifier)
	}

	return pipeline, nil
}

func printRunSummary(w io.Writer, run *models.RunLog, resultsDir string) {
	writeLine(w, "Run %s %s in %s", run.ID, run.Status, run.Duration().Round(time.Millisecond))
	writeLine(w, "  coins requested: %d, fetched: %d, reused: %d, skipped: %d",
		run.Requested, run.Fetched, run.Reused, len(run.Skipped))
	for _, s := range run.Skipped {
		writeLine(w, "    skipped %s: %s", s.Symbol, s.Reason)
	}
	writeLine(w, "  analyzed: %d, excluded: %d", run.Analyzed, len(run.Excluded))
	writeLine(w, "  uncorrelated (avg < %g): %d", run.CorrelationThreshold, run.UncorrelatedCount)
	writeLine(w, "  price-distance outliers (> %g): %d", run.DistanceThreshold, run.OutlierCount)
	if run.CacheHits+run.CacheMisses > 0 {
		writeLine(w, "  cache hits: %d, misses: %d", run.CacheHits, run.CacheMisses)
	}
	if run.Error != "" {
		writeLine(w, "  error: %s", run.Error)
		return
	}
	writeLine(w, "Results written to %s", resultsDir)
}

func printHistory(w io.Writer, runs []models.RunLog) {
	if len(runs) == 0 {
		writeLine(w, "no runs recorded")
		return
	}
	for _, run := range runs {
		writeLine(w, "%s  %s  %-9s  coins=%d uncorrelated=%d outliers=%d",
			run.StartedAt.UTC().Format(time.RFC3339), run.ID, run.Status,
			run.Analyzed, run.UncorrelatedCount, run.OutlierCount)
	}
}
