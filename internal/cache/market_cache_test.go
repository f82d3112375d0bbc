package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-correlation-go/internal/testutil"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	s, client := testutil.NewMiniRedis(t)
	return client, s
}

type chartPayload struct {
	Prices [][]float64 `json:"prices"`
}

func TestMarketCache_SetAndGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewMarketCache(client, 5*time.Minute, logrus.New())
	ctx := context.Background()

	key := MarketChartKey("bitcoin", "usd", 180)
	require.NoError(t, cache.Set(ctx, key, chartPayload{Prices: [][]float64{{1, 2}}}))

	var got chartPayload
	assert.True(t, cache.Get(ctx, key, &got))
	assert.Equal(t, [][]float64{{1, 2}}, got.Prices)

	stats := cache.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 100.0, stats.HitRate())
}

func TestMarketCache_Miss(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewMarketCache(client, time.Minute, nil)

	var got chartPayload
	assert.False(t, cache.Get(context.Background(), "missing", &got))
	assert.Equal(t, int64(1), cache.GetStats().Misses)
}

func TestMarketCache_ExpiresWithTTL(t *testing.T) {
	client, s := setupTestRedis(t)
	cache := NewMarketCache(client, time.Minute, logrus.New())
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, TopCoinsKey("usd", 10), []string{"BTC"}))
	assert.Equal(t, time.Minute, s.TTL("market_cache:"+TopCoinsKey("usd", 10)))

	s.FastForward(2 * time.Minute)

	var got []string
	assert.False(t, cache.Get(ctx, TopCoinsKey("usd", 10), &got))
}

func TestMarketCache_CorruptEntryIsMiss(t *testing.T) {
	client, s := setupTestRedis(t)
	cache := NewMarketCache(client, time.Minute, logrus.New())

	require.NoError(t, s.Set("market_cache:bad", "not json"))

	var got chartPayload
	assert.False(t, cache.Get(context.Background(), "bad", &got))
}

func TestMarketCache_RedisDownIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewMarketCache(client, time.Minute, logrus.New())

	var got chartPayload
	assert.False(t, cache.Get(context.Background(), "any", &got))
	assert.Error(t, cache.Set(context.Background(), "any", got))
}

type cacheEvent struct {
	operation string
	key       string
	hit       bool
}

type recordingObserver struct {
	events []cacheEvent
}

func (r *recordingObserver) LogCacheOperation(operation string, key string, hit bool, durationMs int64) {
	r.events = append(r.events, cacheEvent{operation: operation, key: key, hit: hit})
}

func TestMarketCache_Observer(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewMarketCache(client, time.Minute, logrus.New())
	observer := &recordingObserver{}
	cache.SetObserver(observer)
	ctx := context.Background()

	var got chartPayload
	cache.Get(ctx, "k", &got)
	require.NoError(t, cache.Set(ctx, "k", chartPayload{}))
	cache.Get(ctx, "k", &got)

	assert.Equal(t, []cacheEvent{
		{operation: "get", key: "k", hit: false},
		{operation: "set", key: "k", hit: false},
		{operation: "get", key: "k", hit: true},
	}, observer.events)
}

// retryOnce runs op a second time after clearing the injected Redis error.
func retryOnce(s *miniredis.Miniredis, attempts *int) Retrier {
	return func(ctx context.Context, op func(ctx context.Context) error) error {
		*attempts++
		if err := op(ctx); err == nil {
			return nil
		}
		s.SetError("")
		*attempts++
		return op(ctx)
	}
}

func TestMarketCache_RetriesRedisErrors(t *testing.T) {
	client, s := setupTestRedis(t)
	cache := NewMarketCache(client, time.Minute, logrus.New())
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "k", chartPayload{Prices: [][]float64{{1, 2}}}))

	attempts := 0
	cache.SetRetrier(retryOnce(s, &attempts))
	s.SetError("LOADING Redis is loading the dataset in memory")

	var got chartPayload
	assert.True(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, [][]float64{{1, 2}}, got.Prices)

	attempts = 0
	s.SetError("LOADING Redis is loading the dataset in memory")
	require.NoError(t, cache.Set(ctx, "k2", chartPayload{}))
	assert.Equal(t, 2, attempts)
}

func TestMarketCache_MissIsNotRetried(t *testing.T) {
	client, s := setupTestRedis(t)
	cache := NewMarketCache(client, time.Minute, logrus.New())
	attempts := 0
	cache.SetRetrier(retryOnce(s, &attempts))

	var got chartPayload
	assert.False(t, cache.Get(context.Background(), "missing", &got))
	assert.Equal(t, 1, attempts)
}

func TestMarketCache_Clear(t *testing.T) {
	client, s := setupTestRedis(t)
	cache := NewMarketCache(client, time.Minute, logrus.New())
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", 1))
	require.NoError(t, cache.Set(ctx, "b", 2))
	require.NoError(t, s.Set("unrelated", "x"))

	n, err := cache.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, s.Exists("unrelated"))
}

func TestMarketCache_NilIsNoop(t *testing.T) {
	var cache *MarketCache
	var got chartPayload

	assert.False(t, cache.Get(context.Background(), "k", &got))
	assert.NoError(t, cache.Set(context.Background(), "k", got))
	assert.Equal(t, MarketCacheStats{}, cache.GetStats())
	cache.LogStats()
	n, err := cache.Clear(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "top_coins:usd:100", TopCoinsKey("usd", 100))
	assert.Equal(t, "market_chart:ethereum:usd:180", MarketChartKey("ethereum", "usd", 180))
}
