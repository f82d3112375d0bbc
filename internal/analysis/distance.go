package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

// ErrNoSeries is returned when there is nothing to average.
var ErrNoSeries = errors.New("no cumulative series to analyze")

// DistanceConfig holds the price-distance settings for a run.
type DistanceConfig struct {
	Threshold float64
	SMAPeriod int
}

// DistanceResult is the output of AnalyzePriceDistance.
type DistanceResult struct {
	MarketAverage    []float64
	MarketAverageSMA []*float64
	// Records is sorted by distance descending, ties by symbol.
	Records  []models.PriceDistanceRecord
	Outliers []models.PriceDistanceRecord
}

// MarketAverage returns the equal-weighted mean of the cumulative series at
// each date. All series must share one length.
func MarketAverage(cumulative map[string][]float64) ([]float64, error) {
	if len(cumulative) == 0 {
		return nil, ErrNoSeries
	}
	length := -1
	for sym, series := range cumulative {
		if length == -1 {
			length = len(series)
		} else if len(series) != length {
			return nil, fmt.Errorf("series %s has %d points, expected %d", sym, len(series), length)
		}
	}

	avg := make([]float64, length)
	for _, series := range cumulative {
		for i, v := range series {
			avg[i] += v
		}
	}
	n := float64(len(cumulative))
	for i := range avg {
		avg[i] /= n
	}
	return avg, nil
}

// AnalyzePriceDistance measures each coin's distance from the market average
// at the final date of the window.
func AnalyzePriceDistance(cumulative map[string][]float64, cfg DistanceConfig) (DistanceResult, error) {
	market, err := MarketAverage(cumulative)
	if err != nil {
		return DistanceResult{}, err
	}
	if len(market) == 0 {
		return DistanceResult{}, ErrNoSeries
	}
	final := len(market) - 1
	marketReturn := market[final]

	records := make([]models.PriceDistanceRecord, 0, len(cumulative))
	for sym, series := range cumulative {
		coinReturn := series[final]
		signed := coinReturn - marketReturn
		rec := models.PriceDistanceRecord{
			Symbol:         sym,
			PriceDistance:  math.Abs(signed),
			SignedDistance: signed,
			CoinReturn:     coinReturn,
			MarketReturn:   marketReturn,
		}
		if marketReturn != 0 {
			rec.RelativeDistance = models.Float(math.Abs(signed) / math.Abs(marketReturn))
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].PriceDistance == records[j].PriceDistance {
			return records[i].Symbol < records[j].Symbol
		}
		return records[i].PriceDistance > records[j].PriceDistance
	})

	var outliers []models.PriceDistanceRecord
	for _, r := range records {
		if r.PriceDistance > cfg.Threshold {
			outliers = append(outliers, r)
		}
	}

	return DistanceResult{
		MarketAverage:    market,
		MarketAverageSMA: SimpleMovingAverage(market, cfg.SMAPeriod),
		Records:          records,
		Outliers:         outliers,
	}, nil
}

// SimpleMovingAverage returns the trailing SMA aligned to values. The first
// period-1 entries are nil. A non-positive period yields nil.
func SimpleMovingAverage(values []float64, period int) []*float64 {
	if period <= 0 {
		return nil
	}
	out := make([]*float64, len(values))
	if len(values) < period {
		return out
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	computed := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))

	offset := len(values) - len(computed)
	for i, v := range computed {
		out[offset+i] = models.Float(v)
	}
	return out
}
