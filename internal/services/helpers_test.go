package services

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/irfndi/celebrum-correlation-go/internal/coingecko"
	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

var baseDay = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// sleepRecorder captures requested waits without blocking.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type mockMarketAPI struct {
	mock.Mock
}

func (m *mockMarketAPI) GetTopCoins(ctx context.Context, limit int) ([]models.CoinListing, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CoinListing), args.Error(1)
}

func (m *mockMarketAPI) GetMarketChart(ctx context.Context, coinID string, days int) (*coingecko.MarketChartResponse, error) {
	args := m.Called(ctx, coinID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coingecko.MarketChartResponse), args.Error(1)
}

func listing(id, symbol string) models.CoinListing {
	return models.CoinListing{ID: id, Symbol: symbol, Name: symbol + " coin"}
}

func chartOf(prices ...float64) *coingecko.MarketChartResponse {
	chart := &coingecko.MarketChartResponse{}
	for i, p := range prices {
		ms := float64(baseDay.AddDate(0, 0, i).UnixMilli())
		chart.Prices = append(chart.Prices, []float64{ms, p})
		chart.TotalVolumes = append(chart.TotalVolumes, []float64{ms, 1000})
		chart.MarketCaps = append(chart.MarketCaps, []float64{ms, p * 1e6})
	}
	return chart
}

func seriesOf(symbol string, prices ...float64) models.CoinSeries {
	return seriesAt(symbol, 0, prices...)
}

// seriesAt starts the series offset days after baseDay.
func seriesAt(symbol string, offset int, prices ...float64) models.CoinSeries {
	s := models.CoinSeries{Symbol: symbol, CoinID: symbol, Name: symbol + " coin"}
	for i, p := range prices {
		s.Points = append(s.Points, models.PricePoint{Date: baseDay.AddDate(0, 0, offset+i), Price: p})
	}
	return s
}

// wave produces a deterministic positive price path of length n.
func wave(n int, start, amp, freq, phase, drift float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start * (1 + amp*math.Sin(freq*float64(i)+phase) + drift*float64(i))
	}
	return out
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}
