package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/irfndi/celebrum-correlation-go/internal/analysis"
	"github.com/irfndi/celebrum-correlation-go/internal/charts"
	"github.com/irfndi/celebrum-correlation-go/internal/models"
	"github.com/irfndi/celebrum-correlation-go/internal/storage"
	"github.com/irfndi/celebrum-correlation-go/internal/telemetry"
)

// AnalysisOutput is everything one run exports.
type AnalysisOutput struct {
	Calendar    analysis.Calendar
	Prices      []analysis.AlignedSeries
	Daily       []analysis.DailyReturns
	Returns     []models.ReturnRecord
	Correlation analysis.CorrelationResult
	Distance    analysis.DistanceResult
	Comparison  models.ComparisonSeries

	CorrelationThreshold float64
	DistanceThreshold    float64
}

// Exporter writes analysis results to the results directory.
type Exporter struct {
	store  *storage.ArtifactStore
	logger *logrus.Logger
}

func NewExporter(store *storage.ArtifactStore, logger *logrus.Logger) *Exporter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Exporter{store: store, logger: logger}
}

// Export writes the dashboard artifacts first, then the CSV mirrors and the
// charts. The first failed write aborts the export.
func (e *Exporter) Export(ctx context.Context, out AnalysisOutput) error {
	_, span := telemetry.StartSpan(ctx, telemetry.GetPipelineTracer(), "pipeline.export")
	defer span.End()

	returnsBySymbol := make(map[string]models.ReturnRecord, len(out.Returns))
	for _, r := range out.Returns {
		returnsBySymbol[r.Symbol] = r
	}

	jsonArtifacts := []struct {
		name  string
		value interface{}
	}{
		{storage.ComparisonDataFile, out.Comparison},
		{storage.UncorrelatedCoinsFile, uncorrelatedCoins(out.Correlation.Uncorrelated, returnsBySymbol)},
		{storage.PriceDistanceCoinsFile, distanceCoins(out.Distance.Outliers)},
		{storage.AverageReturnsFile, returnsBySymbol},
		{storage.AverageCorrelationsFile, nonNilAverages(out.Correlation.Averages)},
	}
	for _, a := range jsonArtifacts {
		if err := e.store.WriteJSON(a.name, a.value); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	}

	csvArtifacts := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{storage.AverageReturnsCSV, returnsHeader, returnsRows(out.Returns)},
		{storage.CorrelationMatrixCSV, matrixHeader(out.Correlation.Matrix), matrixRows(out.Correlation.Matrix)},
		{storage.AverageCorrelationsCSV, []string{"symbol", "avg_correlation", "pairs"}, averageRows(out.Correlation.Averages)},
		{storage.PriceDistanceCSV, distanceHeader, distanceRows(out.Distance.Records)},
		{storage.MarketAverageReturnsCSV, []string{"date", "market_avg_return", "market_avg_sma"}, marketRows(out.Calendar, out.Distance)},
		{storage.UncorrelatedCoinsCSV, []string{"symbol", "avg_correlation", "pairs", "cumulative_return"}, uncorrelatedRows(out.Correlation.Uncorrelated, returnsBySymbol)},
		{storage.OutOfThresholdCoinsCSV, distanceHeader, distanceRows(out.Distance.Outliers)},
		{storage.CombinedPricesCSV, combinedHeader(pricesSymbols(out.Prices)), combinedRows(out.Calendar, pricesColumns(out.Prices))},
		{storage.CombinedReturnsCSV, combinedHeader(dailySymbols(out.Daily)), combinedRows(out.Calendar, dailyColumns(out.Daily))},
	}
	for _, a := range csvArtifacts {
		if err := e.store.WriteCSV(a.name, a.header, a.rows); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	}

	if err := e.exportCharts(out); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"results_dir":  e.store.Dir(),
		"coins":        len(out.Comparison.Coins),
		"uncorrelated": len(out.Correlation.Uncorrelated),
		"outliers":     len(out.Distance.Outliers),
	}).Info("Exported analysis artifacts")
	return nil
}

var (
	chartWidth  = 12 * vg.Inch
	chartHeight = 8 * vg.Inch
)

// exportCharts renders the PNG charts. A chart with nothing to draw is
// skipped.
func (e *Exporter) exportCharts(out AnalysisOutput) error {
	heatmap := func() (*plot.Plot, error) { return charts.CorrelationHeatmap(out.Correlation.Matrix) }
	averages := func() (*plot.Plot, error) {
		return charts.AverageCorrelations(out.Correlation.Averages, out.CorrelationThreshold)
	}
	distances := func() (*plot.Plot, error) {
		return charts.PriceDistances(out.Distance.Records, out.DistanceThreshold)
	}

	chartArtifacts := []struct {
		name  string
		build func() (*plot.Plot, error)
	}{
		{storage.CorrelationHeatmapPNG, heatmap},
		{storage.AverageCorrelationsPNG, averages},
		{storage.PriceDistancePNG, distances},
	}
	for _, c := range chartArtifacts {
		p, err := c.build()
		if errors.Is(err, charts.ErrNoData) {
			e.logger.WithField("chart", c.name).Debug("Nothing to plot, skipping chart")
			continue
		}
		if err != nil {
			return fmt.Errorf("build chart %s: %w", c.name, err)
		}
		png, err := charts.PNG(p, chartWidth, chartHeight)
		if err != nil {
			return fmt.Errorf("build chart %s: %w", c.name, err)
		}
		if err := e.store.WriteFile(c.name, png); err != nil {
			return err
		}
	}
	return nil
}

// WriteRunLog persists the run summary next to the artifacts.
func (e *Exporter) WriteRunLog(run *models.RunLog) error {
	return e.store.WriteJSON(storage.RunLogFile, run)
}

func uncorrelatedCoins(avgs []models.AverageCorrelation, returns map[string]models.ReturnRecord) []models.UncorrelatedCoin {
	out := make([]models.UncorrelatedCoin, 0, len(avgs))
	for _, a := range avgs {
		out = append(out, models.UncorrelatedCoin{
			Symbol:           a.Symbol,
			AvgCorrelation:   a.AvgCorrelation,
			CumulativeReturn: returns[a.Symbol].CumulativeReturn,
		})
	}
	return out
}

func distanceCoins(records []models.PriceDistanceRecord) []models.DistanceCoin {
	out := make([]models.DistanceCoin, 0, len(records))
	for _, r := range records {
		out = append(out, models.DistanceCoin{
			Symbol:           r.Symbol,
			PriceDistance:    r.PriceDistance,
			SignedDistance:   r.SignedDistance,
			RelativeDistance: r.RelativeDistance,
			CumulativeReturn: r.CoinReturn,
			MarketReturn:     r.MarketReturn,
		})
	}
	return out
}

func nonNilAverages(a []models.AverageCorrelation) []models.AverageCorrelation {
	if a == nil {
		return []models.AverageCorrelation{}
	}
	return a
}

var returnsHeader = []string{
	"symbol", "avg_daily_return", "std_daily_return", "cumulative_return",
	"annualized_return", "sharpe_ratio", "valid_days",
}

func returnsRows(records []models.ReturnRecord) [][]string {
	sorted := append([]models.ReturnRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	rows := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		rows = append(rows, []string{
			r.Symbol,
			formatOptional(r.AvgDailyReturn),
			formatOptional(r.StdDailyReturn),
			formatOptional(r.CumulativeReturn),
			formatOptional(r.AnnualizedReturn),
			formatOptional(r.SharpeRatio),
			strconv.Itoa(r.ValidDays),
		})
	}
	return rows
}

func matrixHeader(m *models.CorrelationMatrix) []string {
	header := []string{"symbol"}
	if m != nil {
		header = append(header, m.Symbols()...)
	}
	return header
}

// matrixRows writes the full square matrix; undefined pairs are empty cells.
func matrixRows(m *models.CorrelationMatrix) [][]string {
	if m == nil {
		return nil
	}
	symbols := m.Symbols()
	rows := make([][]string, 0, len(symbols))
	for _, a := range symbols {
		row := make([]string, 0, len(symbols)+1)
		row = append(row, a)
		for _, b := range symbols {
			if v, ok := m.Get(a, b); ok {
				row = append(row, formatFloat(v))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func averageRows(avgs []models.AverageCorrelation) [][]string {
	rows := make([][]string, 0, len(avgs))
	for _, a := range avgs {
		rows = append(rows, []string{a.Symbol, formatFloat(a.AvgCorrelation), strconv.Itoa(a.Pairs)})
	}
	return rows
}

var distanceHeader = []string{"symbol", "price_distance", "signed_distance", "relative_distance", "cumulative_return", "market_return"}

func uncorrelatedRows(avgs []models.AverageCorrelation, returns map[string]models.ReturnRecord) [][]string {
	rows := make([][]string, 0, len(avgs))
	for _, a := range avgs {
		rows = append(rows, []string{
			a.Symbol,
			formatFloat(a.AvgCorrelation),
			strconv.Itoa(a.Pairs),
			formatOptional(returns[a.Symbol].CumulativeReturn),
		})
	}
	return rows
}

func combinedHeader(symbols []string) []string {
	return append([]string{"date"}, symbols...)
}

// combinedRows writes one row per calendar day and one column per coin.
// Missing values are empty cells.
func combinedRows(cal analysis.Calendar, columns [][]float64) [][]string {
	dates := cal.Strings()
	rows := make([][]string, 0, len(dates))
	for i, date := range dates {
		row := make([]string, 0, len(columns)+1)
		row = append(row, date)
		for _, col := range columns {
			if i < len(col) && !math.IsNaN(col[i]) {
				row = append(row, formatFloat(col[i]))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func pricesSymbols(series []analysis.AlignedSeries) []string {
	out := make([]string, len(series))
	for i, s := range series {
		out[i] = s.Symbol
	}
	return out
}

func pricesColumns(series []analysis.AlignedSeries) [][]float64 {
	out := make([][]float64, len(series))
	for i, s := range series {
		out[i] = s.Prices
	}
	return out
}

func dailySymbols(daily []analysis.DailyReturns) []string {
	out := make([]string, len(daily))
	for i, d := range daily {
		out[i] = d.Symbol
	}
	return out
}

func dailyColumns(daily []analysis.DailyReturns) [][]float64 {
	out := make([][]float64, len(daily))
	for i, d := range daily {
		out[i] = d.Values
	}
	return out
}

func distanceRows(records []models.PriceDistanceRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Symbol,
			formatFloat(r.PriceDistance),
			formatFloat(r.SignedDistance),
			formatOptional(r.RelativeDistance),
			formatFloat(r.CoinReturn),
			formatFloat(r.MarketReturn),
		})
	}
	return rows
}

func marketRows(cal analysis.Calendar, dist analysis.DistanceResult) [][]string {
	dates := cal.Strings()
	rows := make([][]string, 0, len(dist.MarketAverage))
	for i, v := range dist.MarketAverage {
		date := ""
		if i < len(dates) {
			date = dates[i]
		}
		sma := ""
		if i < len(dist.MarketAverageSMA) {
			sma = formatOptional(dist.MarketAverageSMA[i])
		}
		rows = append(rows, []string{date, formatFloat(v), sma})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// artifactError wraps a failed export for the run log.
func artifactError(err error) error {
	return fmt.Errorf("export failed: %w", err)
}
