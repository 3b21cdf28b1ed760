package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job label for run summaries.
const PushJob = "timetable2parquet"

// RunSummary is what a finished run reports to the Pushgateway.
type RunSummary struct {
	Station    string
	Outcome    string
	Departures int
	GateCount  int64
	Duration   time.Duration
	Finished   time.Time
}

// Pusher sends run summaries to a Prometheus Pushgateway. Batch jobs exit
// before any scrape, so the last run is pushed instead.
type Pusher struct {
	url string
}

// NewPusher returns nil for an empty url; a nil *Pusher ignores Push.
func NewPusher(url string) *Pusher {
	if url == "" {
		return nil
	}
	return &Pusher{url: url}
}

// Gatherer renders s as a fresh registry.
func (s RunSummary) Gatherer() prometheus.Gatherer {
	reg := prometheus.NewRegistry()

	departures := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_ingest_departures",
		Help: "Departures fetched by the last run.",
	})
	gate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_ingest_gate_rows",
		Help: "Downstream row count seen by the last gate check.",
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_ingest_duration_seconds",
		Help: "Wall time of the last run.",
	})
	finished := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_ingest_last_run_timestamp_seconds",
		Help: "Unix time the last run finished.",
	})
	outcome := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "timetable_ingest_outcome",
		Help: "1 for the outcome of the last run.",
	}, []string{"outcome"})

	reg.MustRegister(departures, gate, duration, finished, outcome)

	departures.Set(float64(s.Departures))
	gate.Set(float64(s.GateCount))
	duration.Set(s.Duration.Seconds())
	finished.Set(float64(s.Finished.Unix()))
	outcome.WithLabelValues(s.Outcome).Set(1)

	return reg
}

// Push replaces the station's group on the gateway with s.
func (p *Pusher) Push(ctx context.Context, s RunSummary) error {
	if p == nil {
		return nil
	}
	err := push.New(p.url, PushJob).
		Grouping("station", s.Station).
		Gatherer(s.Gatherer()).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push run summary: %w", err)
	}
	return nil
}
