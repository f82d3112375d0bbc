// Package charts renders the static PNG charts exported next to the
// analysis artifacts.
package charts

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no data to plot")

const paletteSize = 255

var thresholdColor = color.RGBA{R: 255, A: 255}

// CorrelationHeatmap draws the pairwise correlation matrix on a fixed
// [-1, 1] diverging scale. Undefined pairs are left blank.
func CorrelationHeatmap(m *models.CorrelationMatrix) (*plot.Plot, error) {
	if m == nil || m.Len() == 0 {
		return nil, ErrNoData
	}
	symbols := m.Symbols()

	heatmap := plotter.NewHeatMap(correlationGrid{matrix: m, symbols: symbols}, divergingPalette(paletteSize))
	heatmap.Min = -1
	heatmap.Max = 1
	heatmap.NaN = color.Transparent

	p := plot.New()
	p.Title.Text = "Correlation Matrix of Daily Returns"
	p.Add(heatmap)
	p.NominalX(symbols...)
	p.NominalY(symbols...)
	rotateXLabels(p)
	return p, nil
}

// AverageCorrelations draws one bar per coin with the threshold as a
// horizontal line.
func AverageCorrelations(avgs []models.AverageCorrelation, threshold float64) (*plot.Plot, error) {
	labels := make([]string, len(avgs))
	values := make(plotter.Values, len(avgs))
	for i, a := range avgs {
		labels[i] = a.Symbol
		values[i] = a.AvgCorrelation
	}
	p, err := thresholdBars(labels, values, threshold)
	if err != nil {
		return nil, err
	}
	p.Title.Text = "Average Correlation with Other Cryptocurrencies"
	p.X.Label.Text = "Coin"
	p.Y.Label.Text = "Average Correlation"
	return p, nil
}

// PriceDistances draws each coin's distance from the market average with
// the threshold as a horizontal line.
func PriceDistances(records []models.PriceDistanceRecord, threshold float64) (*plot.Plot, error) {
	labels := make([]string, len(records))
	values := make(plotter.Values, len(records))
	for i, r := range records {
		labels[i] = r.Symbol
		values[i] = r.PriceDistance
	}
	p, err := thresholdBars(labels, values, threshold)
	if err != nil {
		return nil, err
	}
	p.Title.Text = "Price Distance from Market Average"
	p.X.Label.Text = "Coin"
	p.Y.Label.Text = "Price Distance from Market"
	return p, nil
}

// PNG encodes p at the given size.
func PNG(p *plot.Plot, width, height vg.Length) (io.WriterTo, error) {
	w, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, fmt.Errorf("render png: %w", err)
	}
	return w, nil
}

func thresholdBars(labels []string, values plotter.Values, threshold float64) (*plot.Plot, error) {
	if len(values) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	grid := plotter.NewGrid()
	dashes := []vg.Length{vg.Points(2), vg.Points(2)}
	grid.Horizontal.Dashes = dashes
	grid.Vertical.Dashes = dashes
	p.Add(grid)

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return nil, fmt.Errorf("failed to create bar chart: %w", err)
	}
	bars.LineStyle.Width = 0
	bars.Color = color.RGBA{B: 180, G: 110, A: 255}
	p.Add(bars)

	line, err := plotter.NewLine(plotter.XYs{
		{X: -0.5, Y: threshold},
		{X: float64(len(values)) - 0.5, Y: threshold},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create threshold line: %w", err)
	}
	line.LineStyle.Color = thresholdColor
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("Threshold (%g)", threshold), line)
	p.Legend.Top = true

	p.NominalX(labels...)
	rotateXLabels(p)
	return p, nil
}

func rotateXLabels(p *plot.Plot) {
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
}

// correlationGrid exposes a CorrelationMatrix as a plotter.GridXYZ with
// column and row i both mapped to symbols[i].
type correlationGrid struct {
	matrix  *models.CorrelationMatrix
	symbols []string
}

func (g correlationGrid) Dims() (c, r int) {
	return len(g.symbols), len(g.symbols)
}

func (g correlationGrid) Z(c, r int) float64 {
	v, ok := g.matrix.Get(g.symbols[c], g.symbols[r])
	if !ok {
		return math.NaN()
	}
	return v
}

func (g correlationGrid) X(c int) float64 {
	return float64(c)
}

func (g correlationGrid) Y(r int) float64 {
	return float64(r)
}

type colors []color.Color

func (c colors) Colors() []color.Color {
	return c
}

// divergingPalette samples moreland's blue-red map at n evenly spaced
// points of its unit range.
func divergingPalette(n int) palette.Palette {
	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(0)
	cmap.SetMax(1)
	out := make(colors, 0, n)
	for i := 0; i < n; i++ {
		c, err := cmap.At(float64(i) / float64(n-1))
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}
