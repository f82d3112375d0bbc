package testutil

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/irfndi/celebrum-correlation-go/internal/config"
)

// NewMiniRedis starts an in-process Redis for the duration of the test and
// returns a client connected to it.
func NewMiniRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// RedisConfig returns an enabled RedisConfig pointing at mr.
func RedisConfig(t testing.TB, mr *miniredis.Miniredis) config.RedisConfig {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("invalid miniredis port %q: %v", mr.Port(), err)
	}
	return config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port}
}
