package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

func sineReturns(symbol string, n int, freq, phase, scale float64) DailyReturns {
	values := make([]float64, n)
	values[0] = math.NaN()
	for i := 1; i < n; i++ {
		values[i] = scale * math.Sin(freq*float64(i)+phase)
	}
	return DailyReturns{Symbol: symbol, Values: values}
}

func defaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{Threshold: 0.3, MinOverlapDays: 30}
}

func TestAnalyzeCorrelations_IdenticalCoins(t *testing.T) {
	returns := []DailyReturns{
		sineReturns("A", 60, 0.4, 0, 0.02),
		sineReturns("B", 60, 0.4, 0, 0.02),
		sineReturns("C", 60, 0.4, 0, 0.02),
	}

	res := AnalyzeCorrelations(returns, defaultCorrelationConfig())

	require.Equal(t, 3, res.Matrix.Len())
	for _, a := range []string{"A", "B", "C"} {
		for _, b := range []string{"A", "B", "C"} {
			v, ok := res.Matrix.Get(a, b)
			require.True(t, ok)
			assert.InDelta(t, 1.0, v, 1e-9)
		}
	}
	require.Len(t, res.Averages, 3)
	for _, avg := range res.Averages {
		assert.InDelta(t, 1.0, avg.AvgCorrelation, 1e-9)
		assert.Equal(t, 2, avg.Pairs)
	}
	assert.Empty(t, res.Uncorrelated)
	assert.Empty(t, res.Excluded)
}

func TestAnalyzeCorrelations_FlatCoinExcluded(t *testing.T) {
	flatReturns := returnsOf("FLAT", flat(60, 1)...)
	returns := []DailyReturns{
		sineReturns("A", 60, 0.4, 0, 0.02),
		sineReturns("B", 60, 0.4, 0.3, 0.02),
		flatReturns,
	}

	res := AnalyzeCorrelations(returns, defaultCorrelationConfig())

	assert.False(t, res.Matrix.Contains("FLAT"))
	for _, avg := range res.Averages {
		assert.NotEqual(t, "FLAT", avg.Symbol)
		assert.Equal(t, 1, avg.Pairs)
	}
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, models.ExcludedCoin{Symbol: "FLAT", Stage: StageCorrelation, Reason: ReasonZeroVariance}, res.Excluded[0])
}

func TestAnalyzeCorrelations_InsufficientHistoryExcluded(t *testing.T) {
	short := sineReturns("SHORT", 60, 0.4, 0, 0.02)
	for i := 20; i < 60; i++ {
		short.Values[i] = math.NaN()
	}
	returns := []DailyReturns{
		sineReturns("A", 60, 0.4, 0, 0.02),
		sineReturns("B", 60, 0.9, 1, 0.02),
		short,
	}

	res := AnalyzeCorrelations(returns, defaultCorrelationConfig())

	assert.False(t, res.Matrix.Contains("SHORT"))
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, ReasonInsufficientHistory, res.Excluded[0].Reason)
}

func TestAnalyzeCorrelations_ShortOverlapPairAbsent(t *testing.T) {
	early := sineReturns("EARLY", 100, 0.4, 0, 0.02)
	late := sineReturns("LATE", 100, 0.4, 0.5, 0.02)
	for i := 40; i < 100; i++ {
		early.Values[i] = math.NaN()
	}
	for i := 0; i < 60; i++ {
		late.Values[i] = math.NaN()
	}
	mid := sineReturns("MID", 100, 0.7, 0.1, 0.02)

	res := AnalyzeCorrelations([]DailyReturns{early, late, mid}, defaultCorrelationConfig())

	_, ok := res.Matrix.Get("EARLY", "LATE")
	assert.False(t, ok)
	_, ok = res.Matrix.Get("EARLY", "MID")
	assert.True(t, ok)
	_, ok = res.Matrix.Get("LATE", "MID")
	assert.True(t, ok)
}

func TestAnalyzeCorrelations_NoDefinedPairsDropsCoin(t *testing.T) {
	res := AnalyzeCorrelations([]DailyReturns{sineReturns("SOLO", 60, 0.4, 0, 0.02)}, defaultCorrelationConfig())

	assert.Zero(t, res.Matrix.Len())
	assert.Empty(t, res.Averages)
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, ReasonNoDefinedPairs, res.Excluded[0].Reason)
}

func TestAnalyzeCorrelations_MatrixProperties(t *testing.T) {
	var returns []DailyReturns
	for i, sym := range []string{"A", "B", "C", "D", "E", "F"} {
		returns = append(returns, sineReturns(sym, 90, 0.2+0.15*float64(i), float64(i), 0.01+0.002*float64(i)))
	}
	returns = append(returns, DailyReturns{Symbol: "NEG", Values: negate(returns[0].Values)})

	cfg := defaultCorrelationConfig()
	res := AnalyzeCorrelations(returns, cfg)

	symbols := res.Matrix.Symbols()
	for _, a := range symbols {
		diag, ok := res.Matrix.Get(a, a)
		require.True(t, ok)
		assert.Equal(t, 1.0, diag)
		for _, b := range symbols {
			ab, okAB := res.Matrix.Get(a, b)
			ba, okBA := res.Matrix.Get(b, a)
			assert.Equal(t, okAB, okBA)
			assert.Equal(t, ab, ba)
			assert.LessOrEqual(t, math.Abs(ab), 1.0)
		}
	}

	neg, ok := res.Matrix.Get("A", "NEG")
	require.True(t, ok)
	assert.InDelta(t, -1.0, neg, 1e-9)

	uncorrelated := make(map[string]bool)
	for _, u := range res.Uncorrelated {
		assert.Less(t, u.AvgCorrelation, cfg.Threshold)
		uncorrelated[u.Symbol] = true
	}
	for i, avg := range res.Averages {
		if !uncorrelated[avg.Symbol] {
			assert.GreaterOrEqual(t, avg.AvgCorrelation, cfg.Threshold)
		}
		if i > 0 {
			assert.LessOrEqual(t, res.Averages[i-1].AvgCorrelation, avg.AvgCorrelation)
		}
	}
}

func TestAnalyzeCorrelations_ThresholdIsStrict(t *testing.T) {
	returns := []DailyReturns{
		sineReturns("A", 60, 0.4, 0, 0.02),
		sineReturns("B", 60, 0.4, 0, 0.02),
	}

	res := AnalyzeCorrelations(returns, CorrelationConfig{Threshold: 1.0, MinOverlapDays: 30})
	for _, u := range res.Uncorrelated {
		assert.Less(t, u.AvgCorrelation, 1.0)
	}

	res = AnalyzeCorrelations(returns, CorrelationConfig{Threshold: 0.5, MinOverlapDays: 30})
	assert.Empty(t, res.Uncorrelated)
}

func negate(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = -v
	}
	return out
}
