package metrics

import (
	"context"
	"strconv"
	"time"

	"timetable2parquet/pkg/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordTimetableRequest records one API call. status is the HTTP status
// code, or 0 when no response arrived.
func RecordTimetableRequest(ctx context.Context, endpoint string, status int, d time.Duration) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("http.response.status_code", strconv.Itoa(status)),
	)
	TimetableRequestsTotal.Add(ctx, 1, attrs)
	TimetableRequestDuration.Record(ctx, d.Seconds(), attrs)
}

func RecordParse(ctx context.Context, size, stops int, d time.Duration) {
	if !IsEnabled() {
		return
	}
	XMLParseDuration.Record(ctx, d.Seconds())
	ParserPayloadSize.Record(ctx, int64(size))
	ParserStops.Add(ctx, int64(stops))
}

// RecordPlanHour counts one hour of the identity window; result is ok,
// cached or failed.
func RecordPlanHour(ctx context.Context, result string) {
	if !IsEnabled() {
		return
	}
	PlanHoursTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func RecordDepartures(ctx context.Context, deps []types.Departure) {
	if !IsEnabled() {
		return
	}
	DeparturesTotal.Add(ctx, int64(len(deps)))
	for _, d := range deps {
		DepartureDelay.Record(ctx, int64(d.Delay))
	}
}

func RecordSink(ctx context.Context, rows int, d time.Duration, err error) {
	if !IsEnabled() {
		return
	}
	SinkWritesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status(err))))
	SinkWriteDuration.Record(ctx, d.Seconds())
	if err == nil {
		SinkRowsTotal.Add(ctx, int64(rows))
	}
}

// RecordGate remembers the row count for the gate.row_count gauge.
func RecordGate(count int64) {
	lastGateCount.Store(count)
}

// RecordPublish records a batch pushed to target (loki, nats).
func RecordPublish(ctx context.Context, target string, d time.Duration, err error) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("status", status(err)),
	)
	PublishTotal.Add(ctx, 1, attrs)
	PublishDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("target", target)))
}

// RecordRun records a finished run; outcome is gated, written, empty or failed.
func RecordRun(ctx context.Context, outcome string, d time.Duration) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	RunsTotal.Add(ctx, 1, attrs)
	RunDuration.Record(ctx, d.Seconds(), attrs)
}
