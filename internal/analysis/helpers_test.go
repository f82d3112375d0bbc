package analysis

import (
	"math"
	"time"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

var baseDay = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seriesFrom(symbol string, prices ...float64) models.CoinSeries {
	s := models.CoinSeries{Symbol: symbol, CoinID: symbol, Name: symbol}
	for i, p := range prices {
		s.Points = append(s.Points, models.PricePoint{Date: baseDay.AddDate(0, 0, i), Price: p})
	}
	return s
}

// wave produces a deterministic positive price path of length n.
func wave(n int, start, amp, freq, phase float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start * (1 + amp*math.Sin(freq*float64(i)+phase) + 0.001*float64(i))
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

func returnsOf(symbol string, prices ...float64) DailyReturns {
	_, aligned := Align([]models.CoinSeries{seriesFrom(symbol, prices...)})
	return DailyReturnsFor(aligned[0])
}
