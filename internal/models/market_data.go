package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CoinListing represents one entry of the market-cap ranked listing.
type CoinListing struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	MarketCap                decimal.Decimal `json:"market_cap"`
	MarketCapRank            int             `json:"market_cap_rank"`
	TotalVolume              decimal.Decimal `json:"total_volume"`
	PriceChangePercentage24h decimal.Decimal `json:"price_change_percentage_24h"`
}

// Ticker is the upper-case symbol used as the key in every artifact.
func (c CoinListing) Ticker() string {
	return strings.ToUpper(strings.TrimSpace(c.Symbol))
}

// PricePoint is one daily observation. Volume and MarketCap are informational.
type PricePoint struct {
	Date      time.Time `json:"date"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	MarketCap float64   `json:"market_cap"`
}

// CoinSeries is a coin's daily price history, ascending by date with at
// most one point per UTC day.
type CoinSeries struct {
	Symbol string       `json:"symbol"`
	CoinID string       `json:"coin_id"`
	Name   string       `json:"name"`
	Points []PricePoint `json:"points"`
}

// TruncateDay normalizes t to midnight UTC.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Normalize sorts points by date and collapses duplicates within a UTC day,
// keeping the last observation of the day.
func (s *CoinSeries) Normalize() {
	if len(s.Points) == 0 {
		return
	}
	sort.SliceStable(s.Points, func(i, j int) bool {
		return s.Points[i].Date.Before(s.Points[j].Date)
	})

	out := s.Points[:0]
	for _, p := range s.Points {
		p.Date = TruncateDay(p.Date)
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	s.Points = out
}

// Len returns the number of daily points.
func (s CoinSeries) Len() int {
	return len(s.Points)
}

// LastDate returns the most recent observation date, or the zero time.
func (s CoinSeries) LastDate() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Date
}

// Window returns the points of the last days+1 UTC days, counted back from
// the most recent observation, and whether the series reaches back to the
// start of that window. The series must be normalized.
func (s CoinSeries) Window(days int) (CoinSeries, bool) {
	if len(s.Points) == 0 || days <= 0 {
		return s, false
	}
	start := s.LastDate().AddDate(0, 0, -days)
	i := sort.Search(len(s.Points), func(i int) bool {
		return !s.Points[i].Date.Before(start)
	})
	covered := !s.Points[0].Date.After(start)
	out := s
	out.Points = append([]PricePoint(nil), s.Points[i:]...)
	return out, covered
}
