package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

const tradingDaysPerYear = 365

// DailyReturns is a coin's daily simple return on the shared calendar.
// Index 0 and any day with a missing price on either side hold NaN. Values
// feed the correlation analysis; Cumulative is measured against prices so a
// bad quote never loses the move across it.
type DailyReturns struct {
	Symbol     string
	Values     []float64
	Cumulative []float64
}

// Valid reports whether day i has a defined return.
func (d DailyReturns) Valid(i int) bool {
	return i >= 0 && i < len(d.Values) && !math.IsNaN(d.Values[i])
}

// ValidCount returns the number of days with a defined return.
func (d DailyReturns) ValidCount() int {
	n := 0
	for i := range d.Values {
		if d.Valid(i) {
			n++
		}
	}
	return n
}

// Compact returns only the defined returns, in date order.
func (d DailyReturns) Compact() []float64 {
	out := make([]float64, 0, len(d.Values))
	for i, v := range d.Values {
		if d.Valid(i) {
			out = append(out, v)
		}
	}
	return out
}

// cumulativeFromPrices returns p_last/p_first - 1 for each day, where p_last
// is the latest valid price up to that day. Days before the first valid
// price are 0.
func cumulativeFromPrices(prices []float64) []float64 {
	out := make([]float64, len(prices))
	first, last := math.NaN(), math.NaN()
	for i, p := range prices {
		if validPrice(p) {
			if math.IsNaN(first) {
				first = p
			}
			last = p
		}
		if !math.IsNaN(first) {
			out[i] = last/first - 1
		}
	}
	return out
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// DailyReturnsFor computes r[i] = (p[i] - p[i-1]) / p[i-1].
func DailyReturnsFor(s AlignedSeries) DailyReturns {
	values := make([]float64, len(s.Prices))
	for i := range values {
		values[i] = math.NaN()
		if i == 0 {
			continue
		}
		prev, cur := s.Prices[i-1], s.Prices[i]
		if !validPrice(prev) || !validPrice(cur) {
			continue
		}
		values[i] = (cur - prev) / prev
	}
	return DailyReturns{Symbol: s.Symbol, Values: values, Cumulative: cumulativeFromPrices(s.Prices)}
}

// CalculateReturns derives the return statistics for one aligned coin.
//
// The cumulative return is the last valid price over the first valid one,
// minus one, and needs two valid prices. Undefined statistics are left nil:
// the averages when the coin has no defined daily return, the standard
// deviation with fewer than two, and the Sharpe ratio when the deviation is
// zero.
func CalculateReturns(s AlignedSeries) (models.ReturnRecord, DailyReturns) {
	daily := DailyReturnsFor(s)
	valid := daily.Compact()

	rec := models.ReturnRecord{Symbol: s.Symbol}
	rec.ValidDays = len(valid)

	if priced := countValid(s.Prices); priced >= 2 {
		growth := 1 + daily.Cumulative[len(daily.Cumulative)-1]
		rec.CumulativeReturn = models.Float(growth - 1)
		if days := len(s.Prices); growth > 0 {
			rec.AnnualizedReturn = models.Float(math.Pow(growth, float64(tradingDaysPerYear)/float64(days)) - 1)
		}
	}

	if len(valid) == 0 {
		return rec, daily
	}

	mean := stat.Mean(valid, nil)
	rec.AvgDailyReturn = models.Float(mean)

	if len(valid) >= 2 {
		std := stat.StdDev(valid, nil)
		rec.StdDailyReturn = models.Float(std)
		if std > 0 {
			rec.SharpeRatio = models.Float(mean / std * math.Sqrt(tradingDaysPerYear))
		}
	}

	return rec, daily
}

func countValid(prices []float64) int {
	n := 0
	for _, p := range prices {
		if validPrice(p) {
			n++
		}
	}
	return n
}
