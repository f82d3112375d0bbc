package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-correlation-go/internal/storage"
)

// RunPruner deletes old run history.
type RunPruner interface {
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupConfig sets how long raw downloads and run history are kept. A
// zero retention disables that step.
type CleanupConfig struct {
	RawRetention time.Duration
	RunRetention time.Duration
}

// CleanupResult reports what a cleanup pass removed.
type CleanupResult struct {
	RemovedSeries []string
	DeletedRuns   int64
}

// CleanupService removes raw series of coins that have not been refreshed
// within the retention window, e.g. coins that dropped out of the top N, and
// prunes old run history.
type CleanupService struct {
	store    *storage.SeriesStore
	runs     RunPruner
	recovery *ErrorRecoveryManager
	logger   *logrus.Logger
	now      func() time.Time
}

// NewCleanupService creates a cleanup service. runs may be nil when run
// history is disabled.
func NewCleanupService(store *storage.SeriesStore, runs RunPruner, recovery *ErrorRecoveryManager, logger *logrus.Logger) *CleanupService {
	if logger == nil {
		logger = logrus.New()
	}
	if recovery == nil {
		recovery = NewErrorRecoveryManager(logger)
	}
	return &CleanupService{
		store:    store,
		runs:     runs,
		recovery: recovery,
		logger:   logger,
		now:      time.Now,
	}
}

// RunCleanup performs one cleanup pass.
func (c *CleanupService) RunCleanup(ctx context.Context, cfg CleanupConfig) (*CleanupResult, error) {
	result := &CleanupResult{}
	now := c.now()

	if cfg.RawRetention > 0 && c.store != nil {
		removed, err := c.store.PruneStale(cfg.RawRetention, now)
		result.RemovedSeries = removed
		if err != nil {
			return result, fmt.Errorf("failed to cleanup raw series: %w", err)
		}
		if len(removed) > 0 {
			c.logger.WithFields(logrus.Fields{
				"removed":   len(removed),
				"retention": cfg.RawRetention,
			}).Info("Cleaned up stale raw series")
		}
	}

	if cfg.RunRetention > 0 && c.runs != nil {
		cutoff := now.Add(-cfg.RunRetention)
		err := c.recovery.ExecuteWithRetry(ctx, PolicyDatabaseOperation, func(ctx context.Context) error {
			n, err := c.runs.DeleteRunsBefore(ctx, cutoff)
			result.DeletedRuns = n
			return err
		})
		if err != nil {
			return result, fmt.Errorf("failed to cleanup run history: %w", err)
		}
		if result.DeletedRuns > 0 {
			c.logger.WithFields(logrus.Fields{
				"deleted":   result.DeletedRuns,
				"retention": cfg.RunRetention,
			}).Info("Cleaned up old pipeline runs")
		}
	}

	return result, nil
}
