// Package gate stops ingestion once the downstream table holds enough rows.
package gate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"timetable2parquet/pkg/metrics"
	tpotel "timetable2parquet/pkg/otel"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// State is the outcome of a gate check.
type State string

const (
	Gated   State = "GATED"
	Running State = "RUNNING"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Counter reports the number of rows already ingested downstream.
type Counter interface {
	Count(ctx context.Context) int64
}

// RowCounter counts rows of one table in DuckDB or Postgres.
type RowCounter struct {
	driver string
	dsn    string
	table  string
	tracer trace.Tracer
}

// NewRowCounter picks pgx for postgres:// DSNs and a read-only DuckDB file
// otherwise. table may be schema-qualified.
func NewRowCounter(dsn, table string) (*RowCounter, error) {
	if !identifierRE.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	rc := &RowCounter{
		table:  table,
		tracer: otel.Tracer("gate"),
	}
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		rc.driver, rc.dsn = "pgx", dsn
	case dsn == "":
		rc.driver = ""
	default:
		rc.driver, rc.dsn = "duckdb", duckDBReadOnly(dsn)
	}
	return rc, nil
}

func duckDBReadOnly(path string) string {
	if strings.Contains(path, "access_mode=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "access_mode=read_only"
}

// Count returns the row count, or 0 when the store is missing, unreadable
// or returns nothing. Ingestion proceeds in all of those cases.
func (rc *RowCounter) Count(ctx context.Context) int64 {
	ctx, span := rc.tracer.Start(ctx, "gate.count",
		trace.WithAttributes(
			attribute.String("db.system", rc.driver),
			attribute.String("db.sql.table", rc.table),
		),
	)
	defer span.End()

	if rc.driver == "" {
		slog.Debug("No gate DSN configured, treating row count as 0")
		return 0
	}

	n, err := rc.count(ctx)
	if err != nil {
		tpotel.RecordError(span, err, tpotel.ErrorTypeGate, true)
		slog.Warn("Row count query failed, treating as 0",
			"table", rc.table,
			"driver", rc.driver,
			"error", err,
		)
		return 0
	}

	span.SetAttributes(attribute.Int64("row_count", n))
	tpotel.SetSpanOk(span)
	return n
}

func (rc *RowCounter) count(ctx context.Context) (int64, error) {
	db, err := sql.Open(rc.driver, rc.dsn)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", rc.driver, err)
	}
	defer db.Close()

	var n sql.NullInt64
	err = db.QueryRowContext(ctx, "SELECT count(*) FROM "+rc.table).Scan(&n)
	switch {
	case err == sql.ErrNoRows:
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to count rows in %s: %w", rc.table, err)
	}
	return n.Int64, nil
}

// Gate compares a Counter against a row limit.
type Gate struct {
	counter Counter
	limit   int64
}

func New(counter Counter, limit int64) *Gate {
	return &Gate{counter: counter, limit: limit}
}

// Check reports Gated once the count has reached the limit.
func (g *Gate) Check(ctx context.Context) (State, int64) {
	n := g.counter.Count(ctx)
	metrics.RecordGate(n)
	if n >= g.limit {
		return Gated, n
	}
	return Running, n
}
