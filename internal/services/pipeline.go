package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/celebrum-correlation-go/internal/analysis"
	"github.com/irfndi/celebrum-correlation-go/internal/cache"
	"github.com/irfndi/celebrum-correlation-go/internal/models"
	"github.com/irfndi/celebrum-correlation-go/internal/telemetry"
)

// ErrNoUsableData aborts a run when no coin survives fetching and the
// history check.
var ErrNoUsableData = errors.New("no coin has usable price data")

// SeriesFetcher produces the coin histories for a run.
type SeriesFetcher interface {
	Fetch(ctx context.Context) (*FetchResult, error)
}

// RunRecorder persists run summaries, e.g. to Postgres.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *models.RunLog) error
}

// Notifier reports a finished run.
type Notifier interface {
	NotifyRunSummary(ctx context.Context, summary RunSummary) error
}

// PipelineConfig holds the analysis parameters of a run.
type PipelineConfig struct {
	TopN                 int
	LookbackDays         int
	MinOverlapDays       int
	CorrelationThreshold float64
	DistanceThreshold    float64
	SMAPeriod            int
}

// PipelineService runs fetch, analysis and export once.
type PipelineService struct {
	fetcher  SeriesFetcher
	exporter *Exporter
	recovery *ErrorRecoveryManager
	cache    *cache.MarketCache
	recorder RunRecorder
	notifier Notifier
	config   PipelineConfig
	logger   *logrus.Logger
	now      func() time.Time
}

func NewPipelineService(
	fetcher SeriesFetcher,
	exporter *Exporter,
	recovery *ErrorRecoveryManager,
	cfg PipelineConfig,
	logger *logrus.Logger,
) *PipelineService {
	if logger == nil {
		logger = logrus.New()
	}
	if recovery == nil {
		recovery = NewErrorRecoveryManager(logger)
	}
	return &PipelineService{
		fetcher:  fetcher,
		exporter: exporter,
		recovery: recovery,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetRecorder enables run history persistence.
func (p *PipelineService) SetRecorder(r RunRecorder) {
	p.recorder = r
}

// SetNotifier enables run summaries.
func (p *PipelineService) SetNotifier(n Notifier) {
	p.notifier = n
}

// SetCache attaches the market cache so its stats land in the run log.
func (p *PipelineService) SetCache(c *cache.MarketCache) {
	p.cache = c
}

// Run executes one pipeline pass. The returned RunLog is non-nil even when
// the run fails.
func (p *PipelineService) Run(ctx context.Context) (*models.RunLog, error) {
	run := &models.RunLog{
		ID:                   uuid.NewString(),
		StartedAt:            p.now().UTC(),
		Status:               models.RunStatusRunning,
		TopN:                 p.config.TopN,
		LookbackDays:         p.config.LookbackDays,
		CorrelationThreshold: p.config.CorrelationThreshold,
		DistanceThreshold:    p.config.DistanceThreshold,
		Skipped:              []models.SkippedCoin{},
		Excluded:             []models.ExcludedCoin{},
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.GetPipelineTracer(), "pipeline.run",
		telemetry.StringAttribute("run.id", run.ID),
		telemetry.IntAttribute("run.top_n", run.TopN),
		telemetry.IntAttribute("run.lookback_days", run.LookbackDays),
		telemetry.Float64Attribute("run.correlation_threshold", run.CorrelationThreshold),
		telemetry.Float64Attribute("run.distance_threshold", run.DistanceThreshold))
	defer span.End()

	log := p.logger.WithField("run_id", run.ID)
	log.WithFields(logrus.Fields{
		"top_n":                 run.TopN,
		"lookback_days":         run.LookbackDays,
		"correlation_threshold": run.CorrelationThreshold,
		"distance_threshold":    run.DistanceThreshold,
	}).Info("Pipeline run started")

	fetched, err := p.fetcher.Fetch(ctx)
	if fetched != nil {
		run.Requested = len(fetched.Listings)
		run.Fetched = fetched.Fetched
		run.Reused = fetched.Reused
		if fetched.Skipped != nil {
			run.Skipped = fetched.Skipped
		}
	}
	if err != nil {
		return p.fail(ctx, run, span, err)
	}
	if len(fetched.Series) == 0 {
		return p.fail(ctx, run, span, ErrNoUsableData)
	}

	out, excluded, err := Analyze(ctx, fetched.Series, p.config)
	run.Excluded = append(run.Excluded, excluded...)
	if err != nil {
		return p.fail(ctx, run, span, err)
	}
	run.Analyzed = len(out.Comparison.Coins)
	run.UncorrelatedCount = len(out.Correlation.Uncorrelated)
	run.OutlierCount = len(out.Distance.Outliers)

	if err := p.exporter.Export(ctx, out); err != nil {
		return p.fail(ctx, run, span, artifactError(err))
	}

	p.finish(run, models.RunStatusCompleted)
	telemetry.SetSpanAttributes(span,
		telemetry.IntAttribute("run.analyzed", run.Analyzed),
		telemetry.IntAttribute("run.uncorrelated", run.UncorrelatedCount),
		telemetry.IntAttribute("run.outliers", run.OutlierCount))
	telemetry.SetSpanStatus(span, codes.Ok, "")

	p.publish(ctx, run, RunSummary{
		Run:          run,
		Uncorrelated: out.Correlation.Uncorrelated,
		Outliers:     out.Distance.Outliers,
	})

	log.WithFields(logrus.Fields{
		"analyzed":     run.Analyzed,
		"skipped":      len(run.Skipped),
		"excluded":     len(run.Excluded),
		"uncorrelated": run.UncorrelatedCount,
		"outliers":     run.OutlierCount,
		"duration":     run.Duration(),
	}).Info("Pipeline run completed")
	return run, nil
}

// Analyze aligns the series and runs every analysis stage. Coins without
// enough history are reported in the returned exclusions.
func Analyze(ctx context.Context, series []models.CoinSeries, cfg PipelineConfig) (AnalysisOutput, []models.ExcludedCoin, error) {
	_, span := telemetry.StartSpan(ctx, telemetry.GetPipelineTracer(), "pipeline.analyze",
		telemetry.IntAttribute("analyze.coins", len(series)))
	defer span.End()

	cal, aligned := analysis.Align(series)

	returns := make([]models.ReturnRecord, 0, len(aligned))
	dailies := make([]analysis.DailyReturns, 0, len(aligned))
	for _, s := range aligned {
		rec, daily := analysis.CalculateReturns(s)
		returns = append(returns, rec)
		dailies = append(dailies, daily)
	}

	corr := analysis.AnalyzeCorrelations(dailies, analysis.CorrelationConfig{
		Threshold:      cfg.CorrelationThreshold,
		MinOverlapDays: cfg.MinOverlapDays,
	})
	excluded := append([]models.ExcludedCoin(nil), corr.Excluded...)

	cumulative := make(map[string][]float64, len(dailies))
	for _, d := range dailies {
		if !analysis.HasSufficientHistory(d, cfg.MinOverlapDays) {
			excluded = append(excluded, models.ExcludedCoin{
				Symbol: d.Symbol,
				Stage:  analysis.StageDistance,
				Reason: analysis.ReasonInsufficientHistory,
			})
			continue
		}
		cumulative[d.Symbol] = d.Cumulative
	}
	if len(cumulative) == 0 {
		telemetry.SetSpanStatus(span, codes.Error, "no coin with sufficient history")
		return AnalysisOutput{}, excluded, fmt.Errorf("%w: no coin has %d days of returns", ErrNoUsableData, cfg.MinOverlapDays)
	}

	dist, err := analysis.AnalyzePriceDistance(cumulative, analysis.DistanceConfig{
		Threshold: cfg.DistanceThreshold,
		SMAPeriod: cfg.SMAPeriod,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return AnalysisOutput{}, excluded, fmt.Errorf("price distance analysis failed: %w", err)
	}

	names := make(map[string]string, len(aligned))
	for _, s := range aligned {
		names[s.Symbol] = s.Name
	}

	return AnalysisOutput{
		Calendar:             cal,
		Prices:               aligned,
		Daily:                dailies,
		Returns:              returns,
		Correlation:          corr,
		Distance:             dist,
		Comparison:           analysis.BuildComparison(cal, names, cumulative, dist),
		CorrelationThreshold: cfg.CorrelationThreshold,
		DistanceThreshold:    cfg.DistanceThreshold,
	}, excluded, nil
}

func (p *PipelineService) fail(ctx context.Context, run *models.RunLog, span trace.Span, cause error) (*models.RunLog, error) {
	telemetry.RecordError(span, cause)
	run.Error = cause.Error()
	p.finish(run, models.RunStatusFailed)

	p.logger.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"skipped": len(run.Skipped),
	}).WithError(cause).Error("Pipeline run failed")

	// Cancellation still records the failure, without the cancelled context.
	publishCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	p.publish(publishCtx, run, RunSummary{Run: run})
	return run, cause
}

func (p *PipelineService) finish(run *models.RunLog, status string) {
	finished := p.now().UTC()
	run.FinishedAt = &finished
	run.Status = status

	stats := p.cache.GetStats()
	run.CacheHits = stats.Hits
	run.CacheMisses = stats.Misses
	p.cache.LogStats()
}

// publish writes the run log and fans it out to the recorder and notifier.
// None of these failures change the run outcome.
func (p *PipelineService) publish(ctx context.Context, run *models.RunLog, summary RunSummary) {
	log := p.logger.WithField("run_id", run.ID)

	if p.exporter != nil {
		if err := p.exporter.WriteRunLog(run); err != nil {
			log.WithError(err).Warn("Failed to write run log")
		}
	}

	if p.recorder != nil {
		err := p.recovery.ExecuteWithRetry(ctx, PolicyDatabaseOperation, func(ctx context.Context) error {
			return p.recorder.SaveRun(ctx, run)
		})
		if err != nil {
			log.WithError(err).Warn("Failed to record run history")
		}
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyRunSummary(ctx, summary); err != nil {
			log.WithError(err).Warn("Failed to send run summary")
		}
	}
}
