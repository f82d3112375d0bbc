package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/celebrum-correlation-go/internal/telemetry"
)

// TracedPool wraps a DatabasePool and opens a span around every statement.
type TracedPool struct {
	pool   DatabasePool
	tracer trace.Tracer
}

// NewTracedPool creates a traced wrapper around pool.
func NewTracedPool(pool DatabasePool) *TracedPool {
	return &TracedPool{
		pool:   pool,
		tracer: telemetry.GetTracer(telemetry.ServiceName + "/database"),
	}
}

func (db *TracedPool) start(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return db.tracer.Start(ctx, "db."+op, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", sql),
	))
}

// Query executes a query that returns rows.
func (db *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := db.start(ctx, "query", sql)
	defer span.End()
	rows, err := db.pool.Query(ctx, sql, args...)
	telemetry.RecordError(span, err)
	return rows, err
}

// QueryRow executes a query that is expected to return at most one row.
func (db *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := db.start(ctx, "query_row", sql)
	defer span.End()
	return db.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a statement without returning rows.
func (db *TracedPool) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := db.start(ctx, "exec", sql)
	defer span.End()
	tag, err := db.pool.Exec(ctx, sql, arguments...)
	telemetry.RecordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	return tag, err
}
