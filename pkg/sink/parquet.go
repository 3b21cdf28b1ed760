package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"timetable2parquet/pkg/metrics"
	tpotel "timetable2parquet/pkg/otel"
	"timetable2parquet/pkg/types"

	_ "github.com/marcboeker/go-duckdb/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// FilePrefix and FileTimeLayout make up bronze_{YYYYMMDD_HHMMSS}.parquet.
	FilePrefix     = "bronze_"
	FileTimeLayout = "20060102_150405"
	FileExt        = ".parquet"

	stagingTable = "departures"
)

// Schema of the bronze table. Platform, delay and service notices are
// nullable; the rest are required.
const createStaging = `CREATE TABLE ` + stagingTable + ` (
	trip_id VARCHAR NOT NULL,
	train VARCHAR NOT NULL,
	destination VARCHAR NOT NULL,
	path VARCHAR NOT NULL,
	scheduled_time VARCHAR NOT NULL,
	platform VARCHAR,
	delay INTEGER,
	service_notices VARCHAR
)`

const insertStaging = `INSERT INTO ` + stagingTable + ` VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// SinkError reports a batch that could not be persisted.
type SinkError struct {
	Path string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// ParquetSink writes each batch to its own parquet file under Dir. Rows are
// staged in an in-memory DuckDB database and exported with COPY.
type ParquetSink struct {
	dir    string
	now    func() time.Time
	tracer trace.Tracer
}

func NewParquetSink(dir string) *ParquetSink {
	return &ParquetSink{
		dir:    dir,
		now:    time.Now,
		tracer: otel.Tracer("parquet-sink"),
	}
}

// PathFor is the file a batch written at t ends up in.
func (s *ParquetSink) PathFor(t time.Time) string {
	return filepath.Join(s.dir, FilePrefix+t.UTC().Format(FileTimeLayout)+FileExt)
}

// Write persists deps and returns the file path. An empty batch writes
// nothing and returns "".
func (s *ParquetSink) Write(ctx context.Context, deps []types.Departure) (string, error) {
	if len(deps) == 0 {
		return "", nil
	}

	path := s.PathFor(s.now())

	ctx, span := s.tracer.Start(ctx, "sink.write_parquet",
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.Int("records_count", len(deps)),
		),
	)
	defer span.End()

	start := time.Now()
	err := s.write(ctx, path, deps)
	metrics.RecordSink(ctx, len(deps), time.Since(start), err)
	if err != nil {
		sinkErr := &SinkError{Path: path, Err: err}
		tpotel.RecordError(span, sinkErr, tpotel.ErrorTypeSink, false)
		return "", sinkErr
	}

	tpotel.SetSpanOk(span)
	slog.Debug("Parquet file written", "path", path, "records", len(deps))

	return path, nil
}

func (s *ParquetSink) write(ctx context.Context, path string, deps []types.Departure) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("failed to open DuckDB: %w", err)
	}
	defer db.Close()

	// An in-memory DuckDB is per connection, so keep everything on one.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createStaging); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertStaging)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range deps {
		if _, err := stmt.ExecContext(ctx,
			d.TripID, d.Train, d.Destination, d.Path, d.ScheduledTime,
			d.Platform, d.Delay, d.Disturbances,
		); err != nil {
			return fmt.Errorf("failed to stage trip %s: %w", d.TripID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit staged rows: %w", err)
	}

	copySQL := fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET)", stagingTable, quoteLiteral(path))
	if _, err := db.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("failed to export parquet: %w", err)
	}

	return nil
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
