package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Artifact file names shared by the exporter and the dashboard server.
const (
	ComparisonDataFile      = "comparison_data.json"
	UncorrelatedCoinsFile   = "uncorrelated_coins.json"
	PriceDistanceCoinsFile  = "price_distance_coins.json"
	AverageReturnsFile      = "average_returns.json"
	AverageCorrelationsFile = "average_correlations.json"
	RunLogFile              = "run_log.json"

	AverageReturnsCSV       = "average_returns.csv"
	CorrelationMatrixCSV    = "correlation_matrix.csv"
	AverageCorrelationsCSV  = "average_correlations.csv"
	PriceDistanceCSV        = "price_distance.csv"
	MarketAverageReturnsCSV = "market_average_returns.csv"
	CombinedPricesCSV       = "combined_prices.csv"
	CombinedReturnsCSV      = "combined_returns.csv"
	UncorrelatedCoinsCSV    = "uncorrelated_coins.csv"
	OutOfThresholdCoinsCSV  = "out_of_threshold_coins.csv"

	CorrelationHeatmapPNG  = "correlation_heatmap.png"
	AverageCorrelationsPNG = "average_correlations.png"
	PriceDistancePNG       = "price_distance.png"
)

// DashboardArtifacts are the files the dashboard needs to render.
var DashboardArtifacts = []string{
	ComparisonDataFile,
	UncorrelatedCoinsFile,
	PriceDistanceCoinsFile,
	AverageReturnsFile,
}

// ErrArtifactNotFound is returned when an artifact has not been exported yet.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore reads and writes analysis artifacts in a single directory.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Dir returns the results directory.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Path returns the on-disk path of an artifact.
func (s *ArtifactStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// WriteJSON atomically writes v as indented JSON.
func (s *ArtifactStore) WriteJSON(name string, v interface{}) error {
	if err := writeJSONAtomic(s.Path(name), v); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

// WriteCSV atomically writes a header and rows.
func (s *ArtifactStore) WriteCSV(name string, header []string, rows [][]string) error {
	if err := writeCSVAtomic(s.Path(name), header, rows); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

// WriteFile atomically writes whatever src produces, e.g. a rendered chart.
func (s *ArtifactStore) WriteFile(name string, src io.WriterTo) error {
	err := writeFileAtomic(s.Path(name), func(w io.Writer) error {
		_, err := src.WriteTo(w)
		return err
	})
	if err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

// Read returns the raw bytes of an artifact. A missing file yields an error
// wrapping ErrArtifactNotFound.
func (s *ArtifactStore) Read(name string) ([]byte, error) {
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid artifact name %q", name)
	}
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

// Missing returns the names that do not exist as regular files.
func (s *ArtifactStore) Missing(names ...string) []string {
	var missing []string
	for _, name := range names {
		info, err := os.Stat(s.Path(name))
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, name)
		}
	}
	return missing
}
