package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
	"github.com/irfndi/celebrum-correlation-go/internal/utils"
)

const (
	TopCoinsJSON  = "top_coins.json"
	TopCoinsCSV   = "top_coins.csv"
	historicalDir = "historical"
	seriesSuffix  = "_historical.csv"
	dateLayout    = "2006-01-02"
)

var (
	seriesHeader   = []string{"date", "price", "volume", "market_cap", "daily_return"}
	topCoinsHeader = []string{"id", "symbol", "name", "current_price", "market_cap", "market_cap_rank", "total_volume", "price_change_percentage_24h"}
	unsafeFileChar = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// ErrSeriesNotFound is returned when no raw file exists for a symbol.
var ErrSeriesNotFound = errors.New("series not found")

// SeriesStore keeps the raw listing and per-coin price histories.
type SeriesStore struct {
	dir string
}

func NewSeriesStore(dir string) *SeriesStore {
	return &SeriesStore{dir: dir}
}

// SeriesPath returns historical/<SYMBOL>_historical.csv for symbol.
func (s *SeriesStore) SeriesPath(symbol string) string {
	name := unsafeFileChar.ReplaceAllString(strings.ToUpper(symbol), "_")
	return filepath.Join(s.dir, historicalDir, name+seriesSuffix)
}

// SaveTopCoins writes the listing as both JSON and CSV.
func (s *SeriesStore) SaveTopCoins(listings []models.CoinListing) error {
	if err := writeJSONAtomic(filepath.Join(s.dir, TopCoinsJSON), listings); err != nil {
		return fmt.Errorf("save top coins: %w", err)
	}

	rows := make([][]string, 0, len(listings))
	for _, c := range listings {
		rows = append(rows, []string{
			c.ID,
			c.Ticker(),
			c.Name,
			c.CurrentPrice.String(),
			c.MarketCap.String(),
			strconv.Itoa(c.MarketCapRank),
			c.TotalVolume.String(),
			c.PriceChangePercentage24h.String(),
		})
	}
	if err := writeCSVAtomic(filepath.Join(s.dir, TopCoinsCSV), topCoinsHeader, rows); err != nil {
		return fmt.Errorf("save top coins: %w", err)
	}
	return nil
}

// LoadTopCoins reads the listing saved by SaveTopCoins.
func (s *SeriesStore) LoadTopCoins() ([]models.CoinListing, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, TopCoinsJSON))
	if err != nil {
		return nil, fmt.Errorf("load top coins: %w", err)
	}
	var listings []models.CoinListing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("decode top coins: %w", err)
	}
	return listings, nil
}

// SaveSeries writes a coin's raw history. The daily_return column is empty
// for the first row and whenever either price is non-positive.
func (s *SeriesStore) SaveSeries(series models.CoinSeries) error {
	rows := make([][]string, 0, len(series.Points))
	for i, p := range series.Points {
		ret := ""
		if i > 0 {
			prev := series.Points[i-1].Price
			if prev > 0 && p.Price > 0 {
				ret = formatFloat((p.Price - prev) / prev)
			}
		}
		rows = append(rows, []string{
			p.Date.UTC().Format(dateLayout),
			formatFloat(p.Price),
			formatFloat(p.Volume),
			formatFloat(p.MarketCap),
			ret,
		})
	}

	if err := writeCSVAtomic(s.SeriesPath(series.Symbol), seriesHeader, rows); err != nil {
		return fmt.Errorf("save series %s: %w", series.Symbol, err)
	}
	return nil
}

// LoadSeries reads a raw history and returns it with the file's
// modification time.
func (s *SeriesStore) LoadSeries(symbol string) (models.CoinSeries, time.Time, error) {
	path := s.SeriesPath(symbol)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.CoinSeries{}, time.Time{}, fmt.Errorf("%s: %w", symbol, ErrSeriesNotFound)
		}
		return models.CoinSeries{}, time.Time{}, fmt.Errorf("open series %s: %w", symbol, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return models.CoinSeries{}, time.Time{}, fmt.Errorf("stat series %s: %w", symbol, err)
	}

	series, err := readSeries(file)
	if err != nil {
		return models.CoinSeries{}, time.Time{}, fmt.Errorf("parse series %s: %w", symbol, err)
	}
	series.Symbol = strings.ToUpper(symbol)
	return series, info.ModTime(), nil
}

// IsFresh reports whether a raw file exists for symbol and is younger than
// maxAge. A non-positive maxAge accepts any existing file.
func (s *SeriesStore) IsFresh(symbol string, maxAge time.Duration, now time.Time) bool {
	info, err := os.Stat(s.SeriesPath(symbol))
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if maxAge <= 0 {
		return true
	}
	return now.Sub(info.ModTime()) < maxAge
}

// PruneStale removes raw series files last written before now-maxAge and
// returns the removed symbols in name order. A missing directory is not an
// error.
func (s *SeriesStore) PruneStale(maxAge time.Duration, now time.Time) ([]string, error) {
	dir := filepath.Join(s.dir, historicalDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	cutoff := now.Add(-maxAge)
	var removed []string
	for _, entry := range entries {
		symbol, ok := strings.CutSuffix(entry.Name(), seriesSuffix)
		if !ok || !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return removed, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed = append(removed, symbol)
	}
	return removed, nil
}

func readSeries(r io.Reader) (models.CoinSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return models.CoinSeries{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 || header[0] != "date" || header[1] != "price" {
		return models.CoinSeries{}, utils.NewValidationErrorf("unexpected header %v", header)
	}

	var series models.CoinSeries
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.CoinSeries{}, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) < 2 {
			return models.CoinSeries{}, utils.NewValidationErrorf("line %d: expected at least 2 fields, got %d", line, len(record))
		}

		date, err := time.Parse(dateLayout, record[0])
		if err != nil {
			return models.CoinSeries{}, utils.NewFieldError("date", fmt.Sprintf("line %d: %v", line, err))
		}
		price, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return models.CoinSeries{}, utils.NewFieldError("price", fmt.Sprintf("line %d: %v", line, err))
		}
		p := models.PricePoint{Date: date, Price: price}
		if len(record) > 2 {
			p.Volume = parseOptional(record[2])
		}
		if len(record) > 3 {
			p.MarketCap = parseOptional(record[3])
		}
		series.Points = append(series.Points, p)
	}

	series.Normalize()
	return series, nil
}

func parseOptional(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
