// Package analysis turns aligned daily price histories into return,
// correlation and price-distance statistics.
package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

// DateLayout is the date format used in every exported artifact.
const DateLayout = "2006-01-02"

// Calendar is the shared, gap-free daily date index.
type Calendar []time.Time

// Strings formats the calendar for export.
func (c Calendar) Strings() []string {
	out := make([]string, len(c))
	for i, d := range c {
		out[i] = d.Format(DateLayout)
	}
	return out
}

// AlignedSeries is a coin projected onto a Calendar. Missing days hold NaN.
type AlignedSeries struct {
	Symbol string
	Name   string
	Prices []float64
}

// Align builds one daily calendar spanning every series and projects each
// coin onto it. Days before a coin's first observation stay missing. Gaps
// after it are forward-filled from the last observed price. A non-positive
// price is treated as missing and is never carried forward.
func Align(series []models.CoinSeries) (Calendar, []AlignedSeries) {
	var first, last time.Time
	for _, s := range series {
		for _, p := range s.Points {
			d := models.TruncateDay(p.Date)
			if first.IsZero() || d.Before(first) {
				first = d
			}
			if d.After(last) {
				last = d
			}
		}
	}
	if first.IsZero() {
		return Calendar{}, nil
	}

	var cal Calendar
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		cal = append(cal, d)
	}
	pos := make(map[time.Time]int, len(cal))
	for i, d := range cal {
		pos[d] = i
	}

	aligned := make([]AlignedSeries, 0, len(series))
	for _, s := range series {
		observed := make([]bool, len(cal))
		prices := make([]float64, len(cal))
		for i := range prices {
			prices[i] = math.NaN()
		}
		for _, p := range s.Points {
			i := pos[models.TruncateDay(p.Date)]
			observed[i] = true
			if p.Price > 0 && !math.IsInf(p.Price, 0) {
				prices[i] = p.Price
			} else {
				prices[i] = math.NaN()
			}
		}

		seen := false
		carry := math.NaN()
		for i := range prices {
			if observed[i] {
				seen = true
				carry = prices[i]
				continue
			}
			if seen {
				prices[i] = carry
			}
		}

		aligned = append(aligned, AlignedSeries{Symbol: s.Symbol, Name: s.Name, Prices: prices})
	}

	sort.Slice(aligned, func(i, j int) bool { return aligned[i].Symbol < aligned[j].Symbol })
	return cal, aligned
}
