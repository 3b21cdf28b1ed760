// Package publisher fans departures out to NATS after a run.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"timetable2parquet/pkg/metrics"
	tpotel "timetable2parquet/pkg/otel"
	"timetable2parquet/pkg/types"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Conn is the subset of *nats.Conn used here.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// DepartureMessage is the JSON body of one published departure.
type DepartureMessage struct {
	RunID     string    `json:"runId"`
	StationID string    `json:"stationId"`
	Station   string    `json:"station"`
	FetchedAt time.Time `json:"fetchedAt"`
	types.Departure
}

type NATSPublisher struct {
	nc     Conn
	close  func()
	prefix string
	tracer trace.Tracer
}

// NewNATSPublisher connects to url. Messages go to {prefix}.{stationID}.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(tpotel.ServiceName),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			slog.Debug("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := newPublisher(nc, prefix)
	p.close = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return p, nil
}

func newPublisher(nc Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "departures"
	}
	return &NATSPublisher{
		nc:     nc,
		prefix: prefix,
		tracer: otel.Tracer("nats-publisher"),
	}
}

func (p *NATSPublisher) Name() string { return "nats" }

// Subject is where departures for stationID are published.
func (p *NATSPublisher) Subject(stationID string) string {
	return p.prefix + "." + subjectToken(stationID)
}

// Publish sends one message per departure and flushes once at the end.
func (p *NATSPublisher) Publish(ctx context.Context, batch types.Batch) error {
	subject := p.Subject(batch.StationID)

	ctx, span := p.tracer.Start(ctx, "nats.publish",
		trace.WithAttributes(
			attribute.String("messaging.destination.name", subject),
			attribute.Int("messaging.batch.message_count", len(batch.Departures)),
		),
	)
	defer span.End()

	start := time.Now()
	err := p.publish(ctx, subject, batch)
	metrics.RecordPublish(ctx, p.Name(), time.Since(start), err)
	if err != nil {
		tpotel.RecordError(span, err, tpotel.ErrorTypePublish, true)
		return err
	}

	tpotel.SetSpanOk(span)
	return nil
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, batch types.Batch) error {
	for _, d := range batch.Departures {
		b, err := json.Marshal(DepartureMessage{
			RunID:     batch.RunID,
			StationID: batch.StationID,
			Station:   batch.Station,
			FetchedAt: batch.FetchedAt,
			Departure: d,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal departure %s: %w", d.TripID, err)
		}
		if err := p.nc.Publish(subject, b); err != nil {
			return fmt.Errorf("failed to publish departure %s: %w", d.TripID, err)
		}
	}
	if len(batch.Departures) == 0 {
		return nil
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS: %w", err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.close != nil {
		p.close()
	}
}

// subjectToken makes s safe as a single NATS subject token.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
