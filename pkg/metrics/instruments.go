package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// Timetable API
var (
	TimetableRequestsTotal   metric.Int64Counter
	TimetableRequestDuration metric.Float64Histogram
)

// Parser
var (
	XMLParseDuration  metric.Float64Histogram
	ParserPayloadSize metric.Int64Histogram
	ParserStops       metric.Int64Counter
)

// Identity resolution
var (
	PlanHoursTotal metric.Int64Counter
)

// Departures
var (
	DeparturesTotal metric.Int64Counter
	DepartureDelay  metric.Int64Histogram
)

// Sink
var (
	SinkWritesTotal   metric.Int64Counter
	SinkRowsTotal     metric.Int64Counter
	SinkWriteDuration metric.Float64Histogram
)

// Gate and runs
var (
	RunsTotal       metric.Int64Counter
	RunDuration     metric.Float64Histogram
	PublishTotal    metric.Int64Counter
	PublishDuration metric.Float64Histogram
)

func initializeInstruments(m metric.Meter) error {
	var err error

	TimetableRequestsTotal, err = m.Int64Counter(
		"timetable.api.requests.total",
		metric.WithDescription("Timetable API requests by endpoint and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	TimetableRequestDuration, err = m.Float64Histogram(
		"timetable.api.request.duration",
		metric.WithDescription("Duration of timetable API requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return err
	}

	XMLParseDuration, err = m.Float64Histogram(
		"xml.parse.duration",
		metric.WithDescription("Duration of XML parsing operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5),
	)
	if err != nil {
		return err
	}

	ParserPayloadSize, err = m.Int64Histogram(
		"parser.payload.size",
		metric.WithDescription("Size of XML payloads being parsed"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 10240, 102400, 1048576, 10485760),
	)
	if err != nil {
		return err
	}

	ParserStops, err = m.Int64Counter(
		"parser.stops.extracted",
		metric.WithDescription("Timetable stops extracted from XML"),
		metric.WithUnit("{stop}"),
	)
	if err != nil {
		return err
	}

	PlanHoursTotal, err = m.Int64Counter(
		"identity.plan_hours.total",
		metric.WithDescription("Planned-timetable hours by result (ok, cached, failed)"),
		metric.WithUnit("{hour}"),
	)
	if err != nil {
		return err
	}

	DeparturesTotal, err = m.Int64Counter(
		"departures.total",
		metric.WithDescription("Departure records produced"),
		metric.WithUnit("{departure}"),
	)
	if err != nil {
		return err
	}

	DepartureDelay, err = m.Int64Histogram(
		"departures.delay",
		metric.WithDescription("Departure delay"),
		metric.WithUnit("min"),
		metric.WithExplicitBucketBoundaries(-5, 0, 1, 3, 5, 10, 15, 30, 60, 120),
	)
	if err != nil {
		return err
	}

	SinkWritesTotal, err = m.Int64Counter(
		"sink.writes.total",
		metric.WithDescription("Parquet writes by status"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return err
	}

	SinkRowsTotal, err = m.Int64Counter(
		"sink.rows.total",
		metric.WithDescription("Rows written to parquet"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return err
	}

	SinkWriteDuration, err = m.Float64Histogram(
		"sink.write.duration",
		metric.WithDescription("Duration of parquet writes"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return err
	}

	RunsTotal, err = m.Int64Counter(
		"ingest.runs.total",
		metric.WithDescription("Ingestion runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return err
	}

	RunDuration, err = m.Float64Histogram(
		"ingest.run.duration",
		metric.WithDescription("Duration of ingestion runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		return err
	}

	PublishTotal, err = m.Int64Counter(
		"publish.total",
		metric.WithDescription("Departure publishes by target and status"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return err
	}

	PublishDuration, err = m.Float64Histogram(
		"publish.duration",
		metric.WithDescription("Duration of departure publishes"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return err
	}

	return nil
}
