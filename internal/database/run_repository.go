package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/irfndi/celebrum-correlation-go/internal/models"
)

// ErrRunNotFound is returned when no run matches the requested id.
var ErrRunNotFound = errors.New("pipeline run not found")

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	// Exec executes a query without returning any rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

const createRunsTable = `
	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id UUID PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		status TEXT NOT NULL,
		top_n INTEGER NOT NULL,
		lookback_days INTEGER NOT NULL,
		correlation_threshold DOUBLE PRECISION NOT NULL,
		distance_threshold DOUBLE PRECISION NOT NULL,
		requested INTEGER NOT NULL DEFAULT 0,
		fetched INTEGER NOT NULL DEFAULT 0,
		reused INTEGER NOT NULL DEFAULT 0,
		analyzed INTEGER NOT NULL DEFAULT 0,
		uncorrelated_count INTEGER NOT NULL DEFAULT 0,
		outlier_count INTEGER NOT NULL DEFAULT 0,
		skipped JSONB NOT NULL DEFAULT '[]',
		excluded JSONB NOT NULL DEFAULT '[]',
		error TEXT NOT NULL DEFAULT ''
	)
`

const runColumns = `id, started_at, finished_at, status, top_n, lookback_days,
		correlation_threshold, distance_threshold, requested, fetched, reused, analyzed,
		uncorrelated_count, outlier_count, skipped, excluded, error`

// OperationObserver receives one event per write to pipeline_runs.
type OperationObserver interface {
	LogDatabaseOperation(operation string, table string, durationMs int64, rowsAffected int64)
}

// RunRepository persists pipeline run history.
type RunRepository struct {
	pool     DatabasePool
	observer OperationObserver
}

// NewRunRepository creates a new run repository.
func NewRunRepository(pool DatabasePool) *RunRepository {
	return &RunRepository{
		pool: pool,
	}
}

// SetObserver reports every write to observer.
func (r *RunRepository) SetObserver(observer OperationObserver) {
	r.observer = observer
}

func (r *RunRepository) observe(operation string, start time.Time, rows int64) {
	if r.observer != nil {
		r.observer.LogDatabaseOperation(operation, "pipeline_runs", time.Since(start).Milliseconds(), rows)
	}
}

// EnsureSchema creates the pipeline_runs table when it does not exist.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createRunsTable); err != nil {
		return fmt.Errorf("failed to create pipeline_runs table: %w", err)
	}
	return nil
}

// SaveRun inserts a run or updates it when the id already exists.
func (r *RunRepository) SaveRun(ctx context.Context, run *models.RunLog) error {
	skipped, err := json.Marshal(nonNilSkipped(run.Skipped))
	if err != nil {
		return fmt.Errorf("failed to encode skipped coins: %w", err)
	}
	excluded, err := json.Marshal(nonNilExcluded(run.Excluded))
	if err != nil {
		return fmt.Errorf("failed to encode excluded coins: %w", err)
	}

	query := `
		INSERT INTO pipeline_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			requested = EXCLUDED.requested,
			fetched = EXCLUDED.fetched,
			reused = EXCLUDED.reused,
			analyzed = EXCLUDED.analyzed,
			uncorrelated_count = EXCLUDED.uncorrelated_count,
			outlier_count = EXCLUDED.outlier_count,
			skipped = EXCLUDED.skipped,
			excluded = EXCLUDED.excluded,
			error = EXCLUDED.error
	`

	start := time.Now()
	tag, err := r.pool.Exec(ctx, query,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.Status,
		run.TopN,
		run.LookbackDays,
		run.CorrelationThreshold,
		run.DistanceThreshold,
		run.Requested,
		run.Fetched,
		run.Reused,
		run.Analyzed,
		run.UncorrelatedCount,
		run.OutlierCount,
		string(skipped),
		string(excluded),
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save pipeline run %s: %w", run.ID, err)
	}
	r.observe("upsert", start, tag.RowsAffected())
	return nil
}

// GetRun loads a single run by id.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.RunLog, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1`

	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get pipeline run %s: %w", id, err)
	}
	return run, nil
}

// ListRecentRuns returns the most recent runs, newest first.
func (r *RunRepository) ListRecentRuns(ctx context.Context, limit int) ([]models.RunLog, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunLog
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipeline runs: %w", err)
	}

	return runs, nil
}

// DeleteRunsBefore removes runs started before cutoff and returns how many
// were deleted.
func (r *RunRepository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	tag, err := r.pool.Exec(ctx, "DELETE FROM pipeline_runs WHERE started_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pipeline runs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	r.observe("delete", start, tag.RowsAffected())
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (*models.RunLog, error) {
	var (
		run      models.RunLog
		finished *time.Time
		skipped  []byte
		excluded []byte
	)
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&finished,
		&run.Status,
		&run.TopN,
		&run.LookbackDays,
		&run.CorrelationThreshold,
		&run.DistanceThreshold,
		&run.Requested,
		&run.Fetched,
		&run.Reused,
		&run.Analyzed,
		&run.UncorrelatedCount,
		&run.OutlierCount,
		&skipped,
		&excluded,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}
	run.FinishedAt = finished

	if len(skipped) > 0 {
		if err := json.Unmarshal(skipped, &run.Skipped); err != nil {
			return nil, fmt.Errorf("failed to decode skipped coins: %w", err)
		}
	}
	if len(excluded) > 0 {
		if err := json.Unmarshal(excluded, &run.Excluded); err != nil {
			return nil, fmt.Errorf("failed to decode excluded coins: %w", err)
		}
	}
	return &run, nil
}

func nonNilSkipped(s []models.SkippedCoin) []models.SkippedCoin {
	if s == nil {
		return []models.SkippedCoin{}
	}
	return s
}

func nonNilExcluded(e []models.ExcludedCoin) []models.ExcludedCoin {
	if e == nil {
		return []models.ExcludedCoin{}
	}
	return e
}
