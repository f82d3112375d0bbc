package analysis

import (
	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

// BuildComparison assembles the dashboard comparison artifact from the
// calendar, the per-coin cumulative series and the distance result. Only
// coins present in cumulative are included.
func BuildComparison(cal Calendar, names map[string]string, cumulative map[string][]float64, dist DistanceResult) models.ComparisonSeries {
	bySymbol := make(map[string]models.PriceDistanceRecord, len(dist.Records))
	for _, r := range dist.Records {
		bySymbol[r.Symbol] = r
	}

	coins := make(map[string]models.ComparisonCoin, len(cumulative))
	for sym, series := range cumulative {
		name := names[sym]
		if name == "" {
			name = sym
		}
		rec := bySymbol[sym]
		var final float64
		if len(series) > 0 {
			final = series[len(series)-1]
		}
		coins[sym] = models.ComparisonCoin{
			Name:             name,
			Data:             append([]float64(nil), series...),
			CumulativeReturn: final,
			PriceDistance:    rec.PriceDistance,
			RelativeDistance: rec.RelativeDistance,
		}
	}

	return models.ComparisonSeries{
		Dates:        cal.Strings(),
		MarketAvg:    append([]float64(nil), dist.MarketAverage...),
		MarketAvgSMA: dist.MarketAverageSMA,
		Coins:        coins,
	}
}
