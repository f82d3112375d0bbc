package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

func TestAlign_SharedCalendar(t *testing.T) {
	late := models.CoinSeries{Symbol: "NEW", Points: []models.PricePoint{
		{Date: baseDay.AddDate(0, 0, 2), Price: 5},
		{Date: baseDay.AddDate(0, 0, 3), Price: 6},
	}}

	cal, aligned := Align([]models.CoinSeries{late, seriesFrom("BTC", 1, 2, 3, 4)})

	require.Len(t, cal, 4)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"}, cal.Strings())
	require.Len(t, aligned, 2)
	assert.Equal(t, "BTC", aligned[0].Symbol)
	assert.Equal(t, "NEW", aligned[1].Symbol)

	assert.True(t, math.IsNaN(aligned[1].Prices[0]))
	assert.True(t, math.IsNaN(aligned[1].Prices[1]))
	assert.Equal(t, 5.0, aligned[1].Prices[2])
}

func TestAlign_ForwardFillsGapsAfterFirstObservation(t *testing.T) {
	gappy := models.CoinSeries{Symbol: "GAP", Points: []models.PricePoint{
		{Date: baseDay, Price: 10},
		{Date: baseDay.AddDate(0, 0, 3), Price: 13},
	}}

	cal, aligned := Align([]models.CoinSeries{gappy})

	require.Len(t, cal, 4)
	assert.Equal(t, []float64{10, 10, 10, 13}, aligned[0].Prices)
}

func TestAlign_NonPositivePriceIsMissing(t *testing.T) {
	_, aligned := Align([]models.CoinSeries{seriesFrom("ZERO", 1, 0, -2, 4)})

	p := aligned[0].Prices
	assert.Equal(t, 1.0, p[0])
	assert.True(t, math.IsNaN(p[1]))
	assert.True(t, math.IsNaN(p[2]))
	assert.Equal(t, 4.0, p[3])
}

func TestAlign_ZeroPriceNotCarriedOverGap(t *testing.T) {
	s := models.CoinSeries{Symbol: "Z", Points: []models.PricePoint{
		{Date: baseDay, Price: 0},
		{Date: baseDay.AddDate(0, 0, 2), Price: 3},
	}}

	_, aligned := Align([]models.CoinSeries{s})
	assert.True(t, math.IsNaN(aligned[0].Prices[1]))
}

func TestAlign_Empty(t *testing.T) {
	cal, aligned := Align(nil)
	assert.Empty(t, cal)
	assert.Empty(t, aligned)
}
