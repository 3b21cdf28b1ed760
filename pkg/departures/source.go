package departures

import (
	"context"
	"fmt"

	"timetable2parquet/pkg/metrics"
	tpotel "timetable2parquet/pkg/otel"
	"timetable2parquet/pkg/parser"
	"timetable2parquet/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ChangesFetcher downloads the full-changes payload for a station.
type ChangesFetcher interface {
	FetchChanges(ctx context.Context, stationID string) ([]byte, error)
}

// Source fetches live changes for one station and flattens them.
type Source struct {
	fetcher   ChangesFetcher
	parser    *parser.XMLParser
	stationID string
	origin    string
	tracer    trace.Tracer
}

// NewSource builds a Source. origin is the display name of the station,
// used in route strings.
func NewSource(fetcher ChangesFetcher, stationID, origin string) *Source {
	return &Source{
		fetcher:   fetcher,
		parser:    parser.NewXMLParser(),
		stationID: stationID,
		origin:    origin,
		tracer:    otel.Tracer("departures"),
	}
}

// Fetch downloads, parses and flattens the current changes. Fetch and parse
// failures are returned unchanged in the error chain.
func (s *Source) Fetch(ctx context.Context, identities map[string]string) ([]types.Departure, error) {
	ctx, span := s.tracer.Start(ctx, "departures.fetch",
		trace.WithAttributes(
			attribute.String("station_id", s.stationID),
			attribute.Int("identities_count", len(identities)),
		),
	)
	defer span.End()

	body, err := s.fetcher.FetchChanges(ctx, s.stationID)
	if err != nil {
		tpotel.RecordError(span, err, tpotel.ErrorTypeNetwork, true)
		return nil, fmt.Errorf("failed to fetch changes for station %s: %w", s.stationID, err)
	}

	timetable, err := s.parser.ParseTimetable(ctx, body)
	if err != nil {
		tpotel.RecordError(span, err, tpotel.ErrorTypeParse, false)
		return nil, fmt.Errorf("failed to parse changes for station %s: %w", s.stationID, err)
	}

	deps := Flatten(timetable.Stops, identities, s.origin)

	metrics.RecordDepartures(ctx, deps)
	span.SetAttributes(
		attribute.Int("stops_count", len(timetable.Stops)),
		attribute.Int("departures_count", len(deps)),
	)
	tpotel.SetSpanOk(span)

	return deps, nil
}
