package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

const (
	StageCorrelation = "correlation"
	StageDistance    = "price_distance"

	ReasonInsufficientHistory = "insufficient history"
	ReasonZeroVariance        = "zero variance"
	ReasonNoDefinedPairs      = "no defined correlations"
)

// CorrelationConfig holds the correlation thresholds for a run.
type CorrelationConfig struct {
	Threshold      float64
	MinOverlapDays int
}

// CorrelationResult is the output of AnalyzeCorrelations.
type CorrelationResult struct {
	Matrix *models.CorrelationMatrix
	// Averages is sorted ascending by average, ties by symbol.
	Averages     []models.AverageCorrelation
	Uncorrelated []models.AverageCorrelation
	Excluded     []models.ExcludedCoin
}

// HasSufficientHistory reports whether a coin has enough defined returns to
// take part in cross-coin analysis.
func HasSufficientHistory(d DailyReturns, minDays int) bool {
	return d.ValidCount() >= minDays
}

// AnalyzeCorrelations computes the pairwise Pearson matrix over days where
// both coins have a defined return, then each coin's average correlation.
//
// Coins with fewer than MinOverlapDays returns or a flat price are excluded
// entirely. A pair whose overlap is too short, or whose coefficient is
// undefined, is left out of the matrix. Coins left with no defined pair are
// dropped from the matrix as well.
func AnalyzeCorrelations(returns []DailyReturns, cfg CorrelationConfig) CorrelationResult {
	sorted := append([]DailyReturns(nil), returns...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	var (
		eligible []DailyReturns
		excluded []models.ExcludedCoin
	)
	for _, d := range sorted {
		if !HasSufficientHistory(d, cfg.MinOverlapDays) {
			excluded = append(excluded, models.ExcludedCoin{Symbol: d.Symbol, Stage: StageCorrelation, Reason: ReasonInsufficientHistory})
			continue
		}
		if v := stat.Variance(d.Compact(), nil); !(v > 0) {
			excluded = append(excluded, models.ExcludedCoin{Symbol: d.Symbol, Stage: StageCorrelation, Reason: ReasonZeroVariance})
			continue
		}
		eligible = append(eligible, d)
	}

	symbols := make([]string, len(eligible))
	for i, d := range eligible {
		symbols[i] = d.Symbol
	}
	matrix := models.NewCorrelationMatrix(symbols)

	sums := make(map[string]float64, len(eligible))
	counts := make(map[string]int, len(eligible))
	for i := 0; i < len(eligible); i++ {
		for j := i + 1; j < len(eligible); j++ {
			c, ok := pairCorrelation(eligible[i], eligible[j], cfg.MinOverlapDays)
			if !ok {
				continue
			}
			a, b := eligible[i].Symbol, eligible[j].Symbol
			matrix.Set(a, b, c)
			sums[a] += c
			sums[b] += c
			counts[a]++
			counts[b]++
		}
	}

	drop := make(map[string]bool)
	averages := make([]models.AverageCorrelation, 0, len(eligible))
	for _, s := range symbols {
		n := counts[s]
		if n == 0 {
			drop[s] = true
			excluded = append(excluded, models.ExcludedCoin{Symbol: s, Stage: StageCorrelation, Reason: ReasonNoDefinedPairs})
			continue
		}
		averages = append(averages, models.AverageCorrelation{
			Symbol:         s,
			AvgCorrelation: sums[s] / float64(n),
			Pairs:          n,
		})
	}
	if len(drop) > 0 {
		matrix = matrix.Without(drop)
	}

	sort.SliceStable(averages, func(i, j int) bool {
		if averages[i].AvgCorrelation == averages[j].AvgCorrelation {
			return averages[i].Symbol < averages[j].Symbol
		}
		return averages[i].AvgCorrelation < averages[j].AvgCorrelation
	})

	var uncorrelated []models.AverageCorrelation
	for _, a := range averages {
		if a.AvgCorrelation < cfg.Threshold {
			uncorrelated = append(uncorrelated, a)
		}
	}

	return CorrelationResult{
		Matrix:       matrix,
		Averages:     averages,
		Uncorrelated: uncorrelated,
		Excluded:     excluded,
	}
}

// pairCorrelation returns the Pearson coefficient over the shared valid days.
func pairCorrelation(a, b DailyReturns, minOverlap int) (float64, bool) {
	n := len(a.Values)
	if len(b.Values) < n {
		n = len(b.Values)
	}
	x := make([]float64, 0, n)
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if a.Valid(i) && b.Valid(i) {
			x = append(x, a.Values[i])
			y = append(y, b.Values[i])
		}
	}
	if len(x) < minOverlap || len(x) < 2 {
		return 0, false
	}

	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, c)), true
}
