package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
	"github.com/irfndi/celebrum-correlation-go/internal/utils"
)

func TestSeriesStore_SaveAndLoadSeries(t *testing.T) {
	store := NewSeriesStore(t.TempDir())
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	series := models.CoinSeries{Symbol: "BTC", CoinID: "bitcoin", Points: []models.PricePoint{
		{Date: day, Price: 60000, Volume: 1e10, MarketCap: 1.2e12},
		{Date: day.AddDate(0, 0, 1), Price: 61234.56789, Volume: 2e10},
		{Date: day.AddDate(0, 0, 2), Price: 0},
	}}

	require.NoError(t, store.SaveSeries(series))
	assert.FileExists(t, filepath.Join(store.dir, "historical", "BTC_historical.csv"))

	loaded, modTime, err := store.LoadSeries("btc")
	require.NoError(t, err)
	assert.False(t, modTime.IsZero())
	assert.Equal(t, "BTC", loaded.Symbol)
	require.Len(t, loaded.Points, 3)
	assert.Equal(t, day, loaded.Points[0].Date)
	assert.Equal(t, 61234.56789, loaded.Points[1].Price)
	assert.Equal(t, 1.2e12, loaded.Points[0].MarketCap)
	assert.Zero(t, loaded.Points[2].Price)
}

func TestSeriesStore_DailyReturnColumn(t *testing.T) {
	store := NewSeriesStore(t.TempDir())
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSeries(models.CoinSeries{Symbol: "ETH", Points: []models.PricePoint{
		{Date: day, Price: 100},
		{Date: day.AddDate(0, 0, 1), Price: 110},
		{Date: day.AddDate(0, 0, 2), Price: 0},
	}}))

	raw, err := os.ReadFile(store.SeriesPath("ETH"))
	require.NoError(t, err)
	assert.Equal(t,
		"date,price,volume,market_cap,daily_return\n"+
			"2024-03-01,100,0,0,\n"+
			"2024-03-02,110,0,0,0.1\n"+
			"2024-03-03,0,0,0,\n",
		string(raw))
}

func TestSeriesStore_LoadMissing(t *testing.T) {
	store := NewSeriesStore(t.TempDir())
	_, _, err := store.LoadSeries("NOPE")
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}

func TestSeriesStore_LoadMalformed(t *testing.T) {
	store := NewSeriesStore(t.TempDir())
	path := store.SeriesPath("BAD")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("date,price\n2024-01-01,abc\n"), 0o644))

	_, _, err := store.LoadSeries("BAD")
	require.Error(t, err)
	assert.True(t, utils.IsValidationError(err))

	require.NoError(t, os.WriteFile(path, []byte("when,what\n"), 0o644))
	_, _, err = store.LoadSeries("BAD")
	assert.True(t, utils.IsValidationError(err))
}

func TestSeriesStore_SeriesPathSanitizesSymbol(t *testing.T) {
	store := NewSeriesStore("data")
	assert.Equal(t, filepath.Join("data", "historical", "USD_E_historical.csv"), store.SeriesPath("usd+e"))
	assert.Equal(t, filepath.Join("data", "historical", "____historical.csv"), store.SeriesPath("../"))
}

func TestSeriesStore_IsFresh(t *testing.T) {
	store := NewSeriesStore(t.TempDir())
	now := time.Now()

	assert.False(t, store.IsFresh("SOL", time.Hour, now))

	require.NoError(t, store.SaveSeries(models.CoinSeries{Symbol: "SOL", Points: []models.PricePoint{{Date: now, Price: 1}}}))
	assert.True(t, store.IsFresh("SOL", time.Hour, now))
	assert.True(t, store.IsFresh("SOL", 0, now.Add(1000*time.Hour)))

	old := now.Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.SeriesPath("SOL"), old, old))
	assert.False(t, store.IsFresh("SOL", 24*time.Hour, now))
}

func TestSeriesStore_TopCoins(t *testing.T) {
	store := NewSeriesStore(t.TempDir())
	listings := []models.CoinListing{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: decimal.RequireFromString("64000.12"), MarketCapRank: 1},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: decimal.NewFromInt(3100), MarketCapRank: 2},
	}

	require.NoError(t, store.SaveTopCoins(listings))

	loaded, err := store.LoadTopCoins()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.True(t, loaded[0].CurrentPrice.Equal(listings[0].CurrentPrice))

	raw, err := os.ReadFile(filepath.Join(store.dir, TopCoinsCSV))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "bitcoin,BTC,Bitcoin,64000.12,0,1,0,0\n")
}

func TestSeriesStore_PruneStale(t *testing.T) {
	store := NewSeriesStore(t.TempDir())
	now := time.Now()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, symbol := range []string{"BTC", "DEAD", "OLD"} {
		require.NoError(t, store.SaveSeries(models.CoinSeries{
			Symbol: symbol,
			Points: []models.PricePoint{{Date: day, Price: 1}},
		}))
	}
	stale := now.Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.SeriesPath("DEAD"), stale, stale))
	require.NoError(t, os.Chtimes(store.SeriesPath("OLD"), stale, stale))
	require.NoError(t, store.SaveTopCoins([]models.CoinListing{{ID: "bitcoin", Symbol: "BTC"}}))

	removed, err := store.PruneStale(24*time.Hour, now)
	require.NoError(t, err)

	assert.Equal(t, []string{"DEAD", "OLD"}, removed)
	assert.True(t, store.IsFresh("BTC", 0, now))
	assert.False(t, store.IsFresh("DEAD", 0, now))
	_, err = store.LoadTopCoins()
	assert.NoError(t, err, "listing files are not series files")
}

func TestSeriesStore_PruneStaleMissingDir(t *testing.T) {
	store := NewSeriesStore(filepath.Join(t.TempDir(), "absent"))

	removed, err := store.PruneStale(time.Hour, time.Now())
	assert.NoError(t, err)
	assert.Empty(t, removed)
}
