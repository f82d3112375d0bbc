package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"

	"github.com/irfndi/celebrum-correlation-go/internal/cache"
	"github.com/irfndi/celebrum-correlation-go/internal/coingecko"
	"github.com/irfndi/celebrum-correlation-go/internal/models"
	"github.com/irfndi/celebrum-correlation-go/internal/storage"
	"github.com/irfndi/celebrum-correlation-go/internal/telemetry"
)

// Skip reasons recorded in the run log.
const (
	SkipReasonCircuitOpen     = "circuit open"
	SkipReasonDuplicateSymbol = "duplicate symbol"
	SkipReasonMissingSymbol   = "missing symbol"
	SkipReasonNoPriceData     = "no price data"
)

// MarketDataAPI is the subset of the CoinGecko client the fetcher needs.
type MarketDataAPI interface {
	GetTopCoins(ctx context.Context, limit int) ([]models.CoinListing, error)
	GetMarketChart(ctx context.Context, coinID string, days int) (*coingecko.MarketChartResponse, error)
}

// FetcherConfig controls one fetch pass.
type FetcherConfig struct {
	TopN         int
	LookbackDays int
	VsCurrency   string
	ReuseRaw     bool
	RawMaxAge    time.Duration
	DelayMin     time.Duration
	DelayMax     time.Duration
	Breaker      CircuitBreakerConfig
}

// FetchResult is what the fetcher hands to the analysis stages.
type FetchResult struct {
	Listings []models.CoinListing
	// Series holds one entry per usable coin, in listing order.
	Series  []models.CoinSeries
	Fetched int
	Reused  int
	Skipped []models.SkippedCoin
}

// FetcherService downloads the top coins and their daily history.
type FetcherService struct {
	api      MarketDataAPI
	store    *storage.SeriesStore
	cache    *cache.MarketCache
	recovery *ErrorRecoveryManager
	breaker  *CircuitBreaker
	config   FetcherConfig
	logger   *logrus.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcherService wires a fetcher. marketCache may be nil.
func NewFetcherService(
	api MarketDataAPI,
	store *storage.SeriesStore,
	marketCache *cache.MarketCache,
	recovery *ErrorRecoveryManager,
	cfg FetcherConfig,
	logger *logrus.Logger,
) *FetcherService {
	if logger == nil {
		logger = logrus.New()
	}
	if recovery == nil {
		recovery = NewErrorRecoveryManager(logger)
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}
	// A delisted coin answers 404; only outages should open the breaker.
	if cfg.Breaker.IsFailure == nil {
		cfg.Breaker.IsFailure = coingecko.IsRetryable
	}
	return &FetcherService{
		api:      api,
		store:    store,
		cache:    marketCache,
		recovery: recovery,
		breaker:  NewCircuitBreaker("coingecko", cfg.Breaker, logger),
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Breaker exposes the API circuit breaker.
func (f *FetcherService) Breaker() *CircuitBreaker {
	return f.breaker
}

// FetchTopCoins lists the top coins by market cap and persists the listing.
// Failure here is fatal for the run.
func (f *FetcherService) FetchTopCoins(ctx context.Context) ([]models.CoinListing, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.GetExternalTracer(), "coingecko.top_coins",
		telemetry.IntAttribute("coingecko.limit", f.config.TopN))
	defer span.End()

	key := cache.TopCoinsKey(f.config.VsCurrency, f.config.TopN)
	var listings []models.CoinListing
	if f.cache.Get(ctx, key, &listings) && len(listings) > 0 {
		telemetry.SetSpanAttributes(span, telemetry.BoolAttribute("cache.hit", true))
		f.logger.WithField("count", len(listings)).Info("Loaded top coins from cache")
	} else {
		err := f.recovery.ExecuteWithRetry(ctx, PolicyMarketAPI, func(ctx context.Context) error {
			var err error
			listings, err = f.api.GetTopCoins(ctx, f.config.TopN)
			return err
		})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to fetch top coins: %w", err)
		}
		if err := f.cache.Set(ctx, key, listings); err != nil {
			f.logger.WithError(err).Warn("Failed to cache top coins")
		}
	}

	if err := f.store.SaveTopCoins(listings); err != nil {
		f.logger.WithError(err).Warn("Failed to persist top coins")
	}

	f.logger.WithField("count", len(listings)).Info("Fetched top coins")
	return listings, nil
}

// Fetch lists the top coins and collects each coin's history sequentially.
// Coins that cannot be obtained are skipped and recorded; only a listing
// failure or cancellation returns an error.
func (f *FetcherService) Fetch(ctx context.Context) (*FetchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.GetPipelineTracer(), "pipeline.fetch")
	defer span.End()

	listings, err := f.FetchTopCoins(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := &FetchResult{Listings: listings}
	seen := make(map[string]bool, len(listings))
	requested := false

	for _, listing := range listings {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		symbol := listing.Ticker()
		log := f.logger.WithFields(logrus.Fields{"symbol": symbol, "coin_id": listing.ID})

		switch {
		case symbol == "" || listing.ID == "":
			result.Skipped = append(result.Skipped, models.SkippedCoin{Symbol: symbol, CoinID: listing.ID, Reason: SkipReasonMissingSymbol})
			continue
		case seen[symbol]:
			log.Warn("Skipping duplicate symbol")
			result.Skipped = append(result.Skipped, models.SkippedCoin{Symbol: symbol, CoinID: listing.ID, Reason: SkipReasonDuplicateSymbol})
			continue
		}
		seen[symbol] = true

		if series, ok := f.reuse(listing); ok {
			log.WithField("points", series.Len()).Info("Reusing raw series")
			result.Series = append(result.Series, series)
			result.Reused++
			continue
		}

		if requested {
			if err := f.politenessDelay(ctx); err != nil {
				return result, err
			}
		}

		series, hitAPI, err := f.fetchSeries(ctx, listing)
		requested = requested || hitAPI
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			reason := err.Error()
			if errors.Is(err, ErrCircuitOpen) {
				reason = SkipReasonCircuitOpen
			}
			log.WithError(err).Warn("Skipping coin")
			result.Skipped = append(result.Skipped, models.SkippedCoin{Symbol: symbol, CoinID: listing.ID, Reason: reason})
			continue
		}
		if series.Len() == 0 {
			log.Warn("Skipping coin without price data")
			result.Skipped = append(result.Skipped, models.SkippedCoin{Symbol: symbol, CoinID: listing.ID, Reason: SkipReasonNoPriceData})
			continue
		}

		if err := f.store.SaveSeries(series); err != nil {
			log.WithError(err).Warn("Failed to persist raw series")
		}
		series, _ = series.Window(f.config.LookbackDays)
		result.Series = append(result.Series, series)
		result.Fetched++
	}

	telemetry.SetSpanAttributes(span,
		telemetry.IntAttribute("fetch.listed", len(listings)),
		telemetry.IntAttribute("fetch.fetched", result.Fetched),
		telemetry.IntAttribute("fetch.reused", result.Reused),
		telemetry.IntAttribute("fetch.skipped", len(result.Skipped)),
	)
	if len(result.Series) == 0 {
		telemetry.SetSpanStatus(span, codes.Error, "no usable series")
	}

	f.logger.WithFields(logrus.Fields{
		"fetched": result.Fetched,
		"reused":  result.Reused,
		"skipped": len(result.Skipped),
	}).Info("Fetch completed")
	return result, nil
}

// reuse loads a fresh raw file for the coin when reuse is enabled. The file
// is cut to the lookback window and rejected when it is shorter.
func (f *FetcherService) reuse(listing models.CoinListing) (models.CoinSeries, bool) {
	symbol := listing.Ticker()
	if !f.config.ReuseRaw || !f.store.IsFresh(symbol, f.config.RawMaxAge, f.now()) {
		return models.CoinSeries{}, false
	}
	series, _, err := f.store.LoadSeries(symbol)
	if err != nil {
		f.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to load raw series, fetching instead")
		return models.CoinSeries{}, false
	}
	windowed, covered := series.Window(f.config.LookbackDays)
	if !covered {
		f.logger.WithFields(logrus.Fields{
			"symbol":        symbol,
			"points":        series.Len(),
			"lookback_days": f.config.LookbackDays,
		}).Info("Raw series does not cover the lookback window, fetching instead")
		return models.CoinSeries{}, false
	}
	series = windowed
	series.CoinID = listing.ID
	series.Name = coingecko.DisplayName(listing)
	return series, true
}

// fetchSeries returns the coin's history from the cache or the API. hitAPI
// reports whether a network request was attempted.
func (f *FetcherService) fetchSeries(ctx context.Context, listing models.CoinListing) (models.CoinSeries, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.GetExternalTracer(), "coingecko.market_chart",
		telemetry.StringAttribute("coin.id", listing.ID),
		telemetry.StringAttribute("coin.symbol", listing.Ticker()))
	defer span.End()

	key := cache.MarketChartKey(listing.ID, f.config.VsCurrency, f.config.LookbackDays)
	var chart coingecko.MarketChartResponse
	if f.cache.Get(ctx, key, &chart) {
		telemetry.SetSpanAttributes(span, telemetry.BoolAttribute("cache.hit", true))
		return coingecko.ToCoinSeries(listing, &chart), false, nil
	}

	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		return f.recovery.ExecuteWithRetry(ctx, PolicyMarketAPI, func(ctx context.Context) error {
			resp, err := f.api.GetMarketChart(ctx, listing.ID, f.config.LookbackDays)
			if err != nil {
				return err
			}
			chart = *resp
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return models.CoinSeries{}, !errors.Is(err, ErrCircuitOpen), err
	}

	if err := f.cache.Set(ctx, key, chart); err != nil {
		f.logger.WithError(err).WithField("coin_id", listing.ID).Warn("Failed to cache market chart")
	}
	return coingecko.ToCoinSeries(listing, &chart), true, nil
}

func (f *FetcherService) politenessDelay(ctx context.Context) error {
	lo, hi := f.config.DelayMin, f.config.DelayMax
	if hi <= 0 {
		return ctx.Err()
	}
	d := lo
	if hi > lo {
		d += time.Duration(rand.Int64N(int64(hi - lo)))
	}
	f.logger.WithField("delay", d).Debug("Sleeping before next request")
	return f.sleep(ctx, d)
}
