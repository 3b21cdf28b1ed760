package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"timetable2parquet/pkg/gate"
	"timetable2parquet/pkg/metrics"
	tpotel "timetable2parquet/pkg/otel"
	"timetable2parquet/pkg/sink"
	"timetable2parquet/pkg/types"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Gate decides whether a run may ingest.
type Gate interface {
	Check(ctx context.Context) (gate.State, int64)
}

// IdentityBuilder builds the stop id to train name map from the plan feed.
type IdentityBuilder interface {
	Build(ctx context.Context, stationID string) map[string]string
}

// DepartureSource fetches and flattens the live changes feed.
type DepartureSource interface {
	Fetch(ctx context.Context, identities map[string]string) ([]types.Departure, error)
}

// Sink persists one batch and reports where it went.
type Sink interface {
	Write(ctx context.Context, deps []types.Departure) (string, error)
}

// Publisher receives every non-empty batch after the sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, batch types.Batch) error
}

// Heartbeat records that a run fetched n departures.
type Heartbeat interface {
	Beat(n int) error
}

// SummaryPusher reports the finished run.
type SummaryPusher interface {
	Push(ctx context.Context, s metrics.RunSummary) error
}

// Outcome classifies a finished run.
type Outcome string

const (
	OutcomeGated       Outcome = "gated"
	OutcomeWritten     Outcome = "written"
	OutcomeEmpty       Outcome = "empty"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeSinkFailed  Outcome = "sink_failed"
)

type Config struct {
	StationID   string
	StationName string
}

// Components wires the pipeline. Gate, Identities, Source and Sink are
// required; the rest may be left nil.
type Components struct {
	Gate       Gate
	Identities IdentityBuilder
	Source     DepartureSource
	Sink       Sink
	Heartbeat  Heartbeat
	Publishers []Publisher
	Pusher     SummaryPusher
}

type Pipeline struct {
	config Config
	Components
	now    func() time.Time
	tracer trace.Tracer
}

// Result describes one RunOnce.
type Result struct {
	RunID      string
	State      gate.State
	Count      int64
	Departures int
	Path       string
	Outcome    Outcome
}

func New(config Config, c Components) (*Pipeline, error) {
	if config.StationID == "" {
		return nil, fmt.Errorf("station ID is required")
	}
	if c.Gate == nil || c.Identities == nil || c.Source == nil || c.Sink == nil {
		return nil, fmt.Errorf("gate, identity builder, source and sink are required")
	}

	return &Pipeline{
		config:     config,
		Components: c,
		now:        time.Now,
		tracer:     otel.Tracer("pipeline"),
	}, nil
}

// RunOnce checks the gate and, if open, builds identities, fetches and
// flattens live changes, writes them and appends a heartbeat. A gated run
// is not an error. The returned error is the fetch or sink failure, if any;
// the heartbeat is still written after a sink failure.
func (p *Pipeline) RunOnce(ctx context.Context) (Result, error) {
	result := Result{RunID: uuid.NewString()}
	logger := slog.With("run_id", result.RunID, "station_id", p.config.StationID)

	ctx, span := p.tracer.Start(ctx, "pipeline.run_once",
		trace.WithAttributes(
			attribute.String("run_id", result.RunID),
			attribute.String("station_id", p.config.StationID),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		span.SetAttributes(
			attribute.String("outcome", string(result.Outcome)),
			attribute.Int("departures_count", result.Departures),
		)
		metrics.RecordRun(ctx, string(result.Outcome), time.Since(start))
		p.pushSummary(ctx, logger, result, time.Since(start))
	}()

	result.State, result.Count = p.Gate.Check(ctx)
	span.SetAttributes(attribute.Int64("row_count", result.Count))
	if result.State == gate.Gated {
		result.Outcome = OutcomeGated
		logger.Info("Row limit reached, stopping ingestion", "row_count", result.Count)
		tpotel.SetSpanOk(span)
		return result, nil
	}

	logger.Info("Starting ingestion", "row_count", result.Count)

	identities := p.Identities.Build(ctx, p.config.StationID)
	logger.Info("Identity map ready", "trains", len(identities))

	fetchedAt := p.now()
	deps, err := p.Source.Fetch(ctx, identities)
	if err != nil {
		result.Outcome = OutcomeFetchFailed
		tpotel.RecordError(span, err, tpotel.ErrorTypeNetwork, true)
		return result, err
	}
	result.Departures = len(deps)
	logger.Info("Fetched departures", "count", len(deps))

	var sinkErr error
	if len(deps) == 0 {
		result.Outcome = OutcomeEmpty
	} else if result.Path, sinkErr = p.Sink.Write(ctx, deps); sinkErr != nil {
		result.Outcome = OutcomeSinkFailed
		tpotel.RecordError(span, sinkErr, tpotel.ErrorTypeSink, false)
	} else {
		result.Outcome = OutcomeWritten
		metrics.RecordLastSuccessTimestamp()
		logger.Info("Departures written", "path", result.Path, "count", len(deps))
	}

	if p.Heartbeat != nil {
		if err := p.Heartbeat.Beat(len(deps)); err != nil {
			logger.Warn("Failed to write heartbeat", "error", err)
		}
	}

	if len(deps) > 0 {
		p.publish(ctx, logger, types.Batch{
			RunID:      result.RunID,
			StationID:  p.config.StationID,
			Station:    p.config.StationName,
			FetchedAt:  fetchedAt,
			Departures: deps,
		})
	}

	if sinkErr == nil {
		tpotel.SetSpanOk(span)
	}
	return result, sinkErr
}

// publish hands the batch to every publisher. Failures are logged only.
func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, batch types.Batch) {
	for _, pub := range p.Publishers {
		if err := pub.Publish(ctx, batch); err != nil {
			logger.Warn("Failed to publish departures", "target", pub.Name(), "error", err)
			continue
		}
		logger.Debug("Departures published", "target", pub.Name(), "count", len(batch.Departures))
	}
}

func (p *Pipeline) pushSummary(ctx context.Context, logger *slog.Logger, r Result, d time.Duration) {
	if p.Pusher == nil {
		return
	}
	err := p.Pusher.Push(ctx, metrics.RunSummary{
		Station:    p.config.StationID,
		Outcome:    string(r.Outcome),
		Departures: r.Departures,
		GateCount:  r.Count,
		Duration:   d,
		Finished:   p.now(),
	})
	if err != nil {
		logger.Warn("Failed to push run summary", "error", err)
	}
}

// LogFailure reports a RunOnce error the way the job surfaces it: on the
// log, never as a crash.
func LogFailure(r Result, err error) {
	if err == nil {
		return
	}
	logger := slog.With("run_id", r.RunID)
	switch r.Outcome {
	case OutcomeFetchFailed:
		logger.Error("Failed to fetch departures", "error", err)
	case OutcomeSinkFailed:
		var sinkErr *sink.SinkError
		if errors.As(err, &sinkErr) {
			logger = logger.With("path", sinkErr.Path)
		}
		logger.Error("Failed to write departures", "error", err)
	default:
		logger.Error("Run failed", "error", err)
	}
}
