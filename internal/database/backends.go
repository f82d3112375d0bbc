package database

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-correlation-go/internal/config"
)

// Backends holds the optional Redis and Postgres connections. A field is nil
// when the backend is disabled or could not be reached.
type Backends struct {
	Redis    *RedisClient
	Postgres *PostgresDB
	Runs     *RunRepository
}

// ConnectBackends connects whatever cfg enables. Neither backend is required
// for a pipeline run or for serving the dashboard, so connection failures are
// logged and the backend is left nil.
func ConnectBackends(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *Backends {
	if logger == nil {
		logger = logrus.New()
	}
	b := &Backends{}

	if cfg.Redis.Enabled {
		rc, err := NewRedisConnection(ctx, cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, market cache disabled")
		} else {
			b.Redis = rc
		}
	}

	if cfg.Database.Enabled {
		pg, err := NewPostgresConnection(ctx, cfg.Database)
		if err != nil {
			logger.WithError(err).Warn("PostgreSQL unavailable, run history disabled")
			return b
		}
		repo := NewRunRepository(NewTracedPool(pg.Pool))
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.WithError(err).Warn("Failed to prepare run history schema, run history disabled")
			pg.Close()
			return b
		}
		b.Postgres = pg
		b.Runs = repo
	}

	return b
}

// Close releases every open connection. It is safe on a nil receiver.
func (b *Backends) Close() {
	if b == nil {
		return
	}
	if b.Redis != nil {
		b.Redis.Close()
	}
	if b.Postgres != nil {
		b.Postgres.Close()
	}
}
