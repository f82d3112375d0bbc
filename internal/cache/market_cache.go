package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// MarketCacheEntry wraps a cached API response with metadata
type MarketCacheEntry struct {
	Payload   json.RawMessage `json:"payload"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// MarketCacheStats tracks cache performance metrics
type MarketCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// HitRate returns hits as a percentage of lookups.
func (s MarketCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Retrier runs a Redis call under a retry policy.
type Retrier func(ctx context.Context, op func(ctx context.Context) error) error

// OperationObserver receives one event per cache lookup or write.
type OperationObserver interface {
	LogCacheOperation(operation string, key string, hit bool, durationMs int64)
}

// MarketCache caches raw market data API responses in Redis so that repeated
// runs inside the TTL do not hit the rate-limited API. A nil *MarketCache is
// valid and always misses.
type MarketCache struct {
	redis  redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	retry    Retrier
	observer OperationObserver

	mu    sync.Mutex
	stats MarketCacheStats
}

// NewMarketCache creates a new Redis-based market data cache
func NewMarketCache(client redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *MarketCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MarketCache{
		redis:  client,
		ttl:    ttl,
		prefix: "market_cache:",
		logger: logger,
	}
}

// SetRetrier makes Redis calls go through retry.
func (c *MarketCache) SetRetrier(retry Retrier) {
	if c != nil {
		c.retry = retry
	}
}

// SetObserver reports every lookup and write to observer.
func (c *MarketCache) SetObserver(observer OperationObserver) {
	if c != nil {
		c.observer = observer
	}
}

func (c *MarketCache) do(ctx context.Context, op func(ctx context.Context) error) error {
	if c.retry == nil {
		return op(ctx)
	}
	return c.retry(ctx, op)
}

func (c *MarketCache) observe(operation, key string, hit bool, start time.Time) {
	if c.observer != nil {
		c.observer.LogCacheOperation(operation, key, hit, time.Since(start).Milliseconds())
	}
}

// TopCoinsKey is the cache key for a market-cap listing.
func TopCoinsKey(vsCurrency string, limit int) string {
	return fmt.Sprintf("top_coins:%s:%d", vsCurrency, limit)
}

// MarketChartKey is the cache key for one coin's price history.
func MarketChartKey(coinID, vsCurrency string, days int) string {
	return fmt.Sprintf("market_chart:%s:%s:%d", coinID, vsCurrency, days)
}

// Get decodes the cached value for key into dest and reports whether it was
// found. A missing key is not retried. Redis and decode failures count as
// misses.
func (c *MarketCache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil {
		return false
	}

	start := time.Now()
	var data []byte
	err := c.do(ctx, func(ctx context.Context) error {
		b, err := c.redis.Get(ctx, c.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		data = b
		return err
	})
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis error reading market cache")
	}
	if data == nil {
		c.recordMiss()
		c.observe("get", key, false, start)
		return false
	}

	var entry MarketCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to deserialize market cache entry")
		c.recordMiss()
		c.observe("get", key, false, start)
		return false
	}
	if err := json.Unmarshal(entry.Payload, dest); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cached payload does not match destination")
		c.recordMiss()
		c.observe("get", key, false, start)
		return false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	c.observe("get", key, true, start)
	return true
}

// Set stores value under key for the cache TTL.
func (c *MarketCache) Set(ctx context.Context, key string, value interface{}) error {
	if c == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize cache value for %s: %w", key, err)
	}
	now := time.Now()
	data, err := json.Marshal(MarketCacheEntry{
		Payload:   payload,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize cache entry for %s: %w", key, err)
	}

	start := time.Now()
	err = c.do(ctx, func(ctx context.Context) error {
		return c.redis.Set(ctx, c.prefix+key, data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis error setting %s: %w", key, err)
	}
	c.observe("set", key, false, start)

	c.mu.Lock()
	c.stats.Sets++
	c.mu.Unlock()
	return nil
}

// GetStats returns current cache statistics
func (c *MarketCache) GetStats() MarketCacheStats {
	if c == nil {
		return MarketCacheStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LogStats logs current cache performance statistics
func (c *MarketCache) LogStats() {
	if c == nil {
		return
	}
	stats := c.GetStats()
	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"hit_rate": fmt.Sprintf("%.2f%%", stats.HitRate()),
	}).Info("Market cache stats")
}

// Clear removes all cached market data.
func (c *MarketCache) Clear(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}

	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("error clearing cache: %w", err)
	}
	return len(keys), nil
}

func (c *MarketCache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}
