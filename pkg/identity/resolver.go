// Package identity builds the stop id to train name lookup from the plan feed.
//
// The plan endpoint only serves one hour per request, so a Resolver walks a
// window of hours around the current time and merges every hour into one map.
// Hours that fail are logged and skipped; the build itself never fails.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"timetable2parquet/pkg/metrics"
	"timetable2parquet/pkg/naming"
	tpotel "timetable2parquet/pkg/otel"
	"timetable2parquet/pkg/parser"
	"timetable2parquet/pkg/types"

	"github.com/bluele/gcache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultHoursBefore = 2
	DefaultHoursAfter  = 6

	// DefaultFetchDelay spaces out hour requests for the upstream rate limit.
	DefaultFetchDelay = 500 * time.Millisecond

	cacheSize = 64
)

// PlanFetcher downloads the one-hour plan slice containing at.
type PlanFetcher interface {
	FetchPlan(ctx context.Context, stationID string, at time.Time) ([]byte, error)
}

// PartialPlanError describes one hour of the window that could not be used.
type PartialPlanError struct {
	StationID string
	Hour      time.Time
	Err       error
}

func (e *PartialPlanError) Error() string {
	return fmt.Sprintf("plan for station %s hour %s skipped: %v", e.StationID, e.Hour.Format("2006-01-02 15:00"), e.Err)
}

func (e *PartialPlanError) Unwrap() error {
	return e.Err
}

type Config struct {
	HoursBefore int
	HoursAfter  int
	FetchDelay  time.Duration
	// CacheTTL keeps per-hour results between builds in the same process.
	// Zero disables the cache.
	CacheTTL time.Duration
	Location *time.Location
}

// DefaultConfig is the two-hours-back, six-hours-ahead window.
func DefaultConfig() Config {
	return Config{
		HoursBefore: DefaultHoursBefore,
		HoursAfter:  DefaultHoursAfter,
		FetchDelay:  DefaultFetchDelay,
		Location:    time.UTC,
	}
}

type Resolver struct {
	fetcher PlanFetcher
	parser  *parser.XMLParser
	config  Config
	cache   gcache.Cache
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration)
	tracer  trace.Tracer
}

func NewResolver(fetcher PlanFetcher, config Config) *Resolver {
	if config.Location == nil {
		config.Location = time.UTC
	}

	r := &Resolver{
		fetcher: fetcher,
		parser:  parser.NewXMLParser(),
		config:  config,
		now:     time.Now,
		sleep:   sleepContext,
		tracer:  otel.Tracer("identity-resolver"),
	}

	if config.CacheTTL > 0 {
		r.cache = gcache.New(cacheSize).LRU().Expiration(config.CacheTTL).Build()
	}

	return r
}

// Build returns the identity map for stationID. Later hours in the window
// overwrite earlier ones for the same stop id.
func (r *Resolver) Build(ctx context.Context, stationID string) map[string]string {
	ctx, span := r.tracer.Start(ctx, "identity.build",
		trace.WithAttributes(
			attribute.String("station_id", stationID),
			attribute.Int("hours_before", r.config.HoursBefore),
			attribute.Int("hours_after", r.config.HoursAfter),
		),
	)
	defer span.End()

	identities := make(map[string]string)
	now := r.now()
	failed := 0

	for offset := -r.config.HoursBefore; offset < r.config.HoursAfter; offset++ {
		hour := now.Add(time.Duration(offset) * time.Hour)

		names, cached, err := r.hour(ctx, stationID, hour)
		if err != nil {
			failed++
			partial := &PartialPlanError{StationID: stationID, Hour: hour.In(r.config.Location), Err: err}
			slog.Warn("Could not fetch plan hour",
				"station_id", stationID,
				"offset", offset,
				"hour", hour.In(r.config.Location).Format("15"),
				"error", partial,
			)
			metrics.RecordPlanHour(ctx, "failed")
		} else {
			for id, name := range names {
				identities[id] = name
			}
			if cached {
				metrics.RecordPlanHour(ctx, "cached")
			} else {
				metrics.RecordPlanHour(ctx, "ok")
			}
		}

		if !cached && r.config.FetchDelay > 0 {
			r.sleep(ctx, r.config.FetchDelay)
		}
	}

	span.SetAttributes(
		attribute.Int("identities_count", len(identities)),
		attribute.Int("hours_failed", failed),
	)
	if failed == 0 {
		tpotel.SetSpanOk(span)
	}

	slog.Info("Plan lookup map ready", "station_id", stationID, "trains", len(identities), "hours_failed", failed)

	return identities
}

func (r *Resolver) hour(ctx context.Context, stationID string, hour time.Time) (map[string]string, bool, error) {
	key := fmt.Sprintf("%s/%s", stationID, hour.In(r.config.Location).Format("060102/15"))

	if r.cache != nil {
		if v, err := r.cache.Get(key); err == nil {
			return v.(map[string]string), true, nil
		}
	}

	slog.Debug("Fetching plan hour", "station_id", stationID, "hour", hour.In(r.config.Location).Format("15"))

	body, err := r.fetcher.FetchPlan(ctx, stationID, hour)
	if err != nil {
		return nil, false, err
	}

	timetable, err := r.parser.ParseTimetable(ctx, body)
	if err != nil {
		return nil, false, err
	}

	names := NamesFromPlan(timetable.Stops)

	if r.cache != nil {
		if err := r.cache.Set(key, names); err != nil {
			slog.Debug("Failed to cache plan hour", "key", key, "error", err)
		}
	}

	return names, false, nil
}

// NamesFromPlan resolves a display name for every stop of a plan payload.
func NamesFromPlan(stops []types.Stop) map[string]string {
	names := make(map[string]string, len(stops))
	for _, stop := range stops {
		names[stop.ID] = naming.FirstOr(naming.SyntheticID(stop.ID),
			naming.LineLabel(stop.Departure),
			naming.LineLabel(stop.Arrival),
			naming.TrainLineName(stop.TrainLine),
		)
	}
	return names
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
