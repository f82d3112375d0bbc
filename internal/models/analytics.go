package models

import (
	"math"
	"sort"
)

// Float returns a pointer to v, or nil when v is NaN or infinite. Exported
// artifacts encode undefined metrics as JSON null.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ReturnMetrics are the per-coin return statistics. Nil fields are undefined
// for the coin, e.g. a standard deviation over fewer than two returns.
type ReturnMetrics struct {
	AvgDailyReturn   *float64 `json:"avg_daily_return"`
	StdDailyReturn   *float64 `json:"std_daily_return"`
	CumulativeReturn *float64 `json:"cumulative_return"`
	AnnualizedReturn *float64 `json:"annualized_return"`
	SharpeRatio      *float64 `json:"sharpe_ratio"`
	ValidDays        int      `json:"valid_days"`
}

// ReturnRecord ties ReturnMetrics to a coin.
type ReturnRecord struct {
	Symbol string `json:"symbol"`
	ReturnMetrics
}

// CorrelationMatrix is a symmetric matrix of pairwise return correlations.
// Pairs without enough overlapping history are absent rather than zero.
type CorrelationMatrix struct {
	symbols []string
	index   map[string]int
	values  map[[2]int]float64
}

// NewCorrelationMatrix creates an empty matrix over the given symbols.
func NewCorrelationMatrix(symbols []string) *CorrelationMatrix {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	index := make(map[string]int, len(sorted))
	for i, s := range sorted {
		index[s] = i
	}
	return &CorrelationMatrix{
		symbols: sorted,
		index:   index,
		values:  make(map[[2]int]float64),
	}
}

func (m *CorrelationMatrix) key(a, b string) ([2]int, bool) {
	i, okA := m.index[a]
	j, okB := m.index[b]
	if !okA || !okB {
		return [2]int{}, false
	}
	if i > j {
		i, j = j, i
	}
	return [2]int{i, j}, true
}

// Set stores the coefficient for an unordered pair. Diagonal entries and
// unknown symbols are ignored.
func (m *CorrelationMatrix) Set(a, b string, v float64) {
	if a == b {
		return
	}
	if k, ok := m.key(a, b); ok {
		m.values[k] = v
	}
}

// Get returns the coefficient for a pair. The diagonal is always 1 for
// symbols in the matrix.
func (m *CorrelationMatrix) Get(a, b string) (float64, bool) {
	if _, ok := m.index[a]; ok && a == b {
		return 1, true
	}
	k, ok := m.key(a, b)
	if !ok {
		return 0, false
	}
	v, ok := m.values[k]
	return v, ok
}

// Symbols returns the matrix symbols in ascending order.
func (m *CorrelationMatrix) Symbols() []string {
	return append([]string(nil), m.symbols...)
}

func (m *CorrelationMatrix) Contains(symbol string) bool {
	_, ok := m.index[symbol]
	return ok
}

// Len returns the number of symbols.
func (m *CorrelationMatrix) Len() int {
	return len(m.symbols)
}

// PairCount returns the number of defined off-diagonal pairs.
func (m *CorrelationMatrix) PairCount() int {
	return len(m.values)
}

// Without returns a copy of the matrix restricted to the symbols not in drop.
func (m *CorrelationMatrix) Without(drop map[string]bool) *CorrelationMatrix {
	kept := make([]string, 0, len(m.symbols))
	for _, s := range m.symbols {
		if !drop[s] {
			kept = append(kept, s)
		}
	}
	out := NewCorrelationMatrix(kept)
	for k, v := range m.values {
		a, b := m.symbols[k[0]], m.symbols[k[1]]
		out.Set(a, b, v)
	}
	return out
}

// AverageCorrelation is a coin's mean correlation against every other coin
// with a defined coefficient.
type AverageCorrelation struct {
	Symbol         string  `json:"symbol"`
	AvgCorrelation float64 `json:"avg_correlation"`
	Pairs          int     `json:"pairs"`
}

// PriceDistanceRecord measures how far a coin's cumulative return ended from
// the market average at the end of the analysis window.
type PriceDistanceRecord struct {
	Symbol           string   `json:"symbol"`
	PriceDistance    float64  `json:"price_distance"`
	SignedDistance   float64  `json:"signed_distance"`
	RelativeDistance *float64 `json:"relative_distance"`
	CoinReturn       float64  `json:"coin_return"`
	MarketReturn     float64  `json:"market_return"`
}

// ComparisonCoin is one coin's entry in the comparison artifact.
type ComparisonCoin struct {
	Name             string    `json:"name"`
	Data             []float64 `json:"data"`
	CumulativeReturn float64   `json:"cumulative_return"`
	PriceDistance    float64   `json:"price_distance"`
	RelativeDistance *float64  `json:"relative_distance"`
}

// ComparisonSeries drives the dashboard chart: per-date cumulative returns for
// the market average and every analyzed coin, all aligned to Dates.
type ComparisonSeries struct {
	Dates        []string                  `json:"dates"`
	MarketAvg    []float64                 `json:"market_avg"`
	MarketAvgSMA []*float64                `json:"market_avg_sma,omitempty"`
	Coins        map[string]ComparisonCoin `json:"coins"`
}

// UncorrelatedCoin is an entry of the uncorrelated coins artifact.
type UncorrelatedCoin struct {
	Symbol           string   `json:"symbol"`
	AvgCorrelation   float64  `json:"avg_correlation"`
	CumulativeReturn *float64 `json:"cumulative_return"`
}

// DistanceCoin is an entry of the price distance coins artifact.
type DistanceCoin struct {
	Symbol           string   `json:"symbol"`
	PriceDistance    float64  `json:"price_distance"`
	SignedDistance   float64  `json:"signed_distance"`
	RelativeDistance *float64 `json:"relative_distance"`
	CumulativeReturn float64  `json:"cumulative_return"`
	MarketReturn     float64  `json:"market_return"`
}
