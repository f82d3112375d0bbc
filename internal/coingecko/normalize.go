package coingecko

import (
	"math"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

// ToCoinSeries converts a market chart into a normalized daily series.
// Volumes and market caps are attached only when their arrays line up with
// the prices.
func ToCoinSeries(listing models.CoinListing, chart *MarketChartResponse) models.CoinSeries {
	series := models.CoinSeries{
		Symbol: listing.Ticker(),
		CoinID: listing.ID,
		Name:   DisplayName(listing),
	}
	if chart == nil {
		return series
	}

	withVolumes := len(chart.TotalVolumes) == len(chart.Prices)
	withCaps := len(chart.MarketCaps) == len(chart.Prices)

	for i, pair := range chart.Prices {
		if len(pair) < 2 || math.IsNaN(pair[1]) {
			continue
		}
		p := models.PricePoint{
			Date:  time.UnixMilli(int64(pair[0])).UTC(),
			Price: pair[1],
		}
		if withVolumes && len(chart.TotalVolumes[i]) >= 2 {
			p.Volume = chart.TotalVolumes[i][1]
		}
		if withCaps && len(chart.MarketCaps[i]) >= 2 {
			p.MarketCap = chart.MarketCaps[i][1]
		}
		series.Points = append(series.Points, p)
	}

	series.Normalize()
	return series
}

// DisplayName returns the listing name, falling back to a title-cased id.
func DisplayName(listing models.CoinListing) string {
	if listing.Name != "" {
		return listing.Name
	}
	if listing.ID != "" {
		return cases.Title(language.English).String(listing.ID)
	}
	return listing.Ticker()
}
