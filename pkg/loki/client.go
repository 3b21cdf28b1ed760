package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"timetable2parquet/pkg/metrics"
	tpotel "timetable2parquet/pkg/otel"
	"timetable2parquet/pkg/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const userAgent = "timetable2parquet/1.0.0"

type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	tracer     trace.Tracer
}

type PushRequest struct {
	Streams []Stream `json:"streams"`
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

func NewClient(baseURL, username, password string) *Client {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}

	return &Client{
		httpClient: client,
		baseURL:    baseURL,
		username:   username,
		password:   password,
		tracer:     otel.Tracer("loki-client"),
	}
}

func (c *Client) Name() string { return "loki" }

// Publish pushes the batch as one stream labelled by station, one JSON
// line per departure. All lines share the fetch timestamp, offset by one
// nanosecond each so Loki keeps them in order.
func (c *Client) Publish(ctx context.Context, batch types.Batch) error {
	start := time.Now()
	err := c.SendDepartures(ctx, batch)
	metrics.RecordPublish(ctx, c.Name(), time.Since(start), err)
	return err
}

func (c *Client) SendDepartures(ctx context.Context, batch types.Batch) error {
	ctx, span := c.tracer.Start(ctx, "loki.send_departures",
		trace.WithAttributes(
			attribute.String("station_id", batch.StationID),
			attribute.Int("departures_count", len(batch.Departures)),
		),
	)
	defer span.End()

	fetchedAt := batch.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	logValues := make([][]string, 0, len(batch.Departures))
	for i, d := range batch.Departures {
		line, err := json.Marshal(d)
		if err != nil {
			tpotel.RecordError(span, err, tpotel.ErrorTypeValidation, false)
			return fmt.Errorf("failed to marshal departure JSON: %w", err)
		}
		logValues = append(logValues, []string{
			strconv.FormatInt(fetchedAt.UnixNano()+int64(i), 10),
			string(line),
		})
	}

	lokiReq := PushRequest{
		Streams: []Stream{
			{
				Stream: map[string]string{
					"job":        tpotel.ServiceName,
					"service":    "rail-departures",
					"station_id": batch.StationID,
					"station":    batch.Station,
					"run_id":     batch.RunID,
				},
				Values: logValues,
			},
		},
	}

	reqBody, err := json.Marshal(lokiReq)
	if err != nil {
		tpotel.RecordError(span, err, tpotel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to marshal Loki request: %w", err)
	}

	url := fmt.Sprintf("%s/loki/api/v1/push", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		tpotel.RecordError(span, err, tpotel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	span.SetAttributes(
		attribute.Bool("auth.enabled", c.username != "" && c.password != ""),
		attribute.Int("request.size_bytes", len(reqBody)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tpotel.RecordError(span, err, tpotel.ErrorTypeNetwork, true)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("Loki returned status %d", resp.StatusCode)
		tpotel.RecordError(span, err, tpotel.ErrorTypeHTTP, resp.StatusCode >= 500)
		return err
	}

	tpotel.SetSpanOk(span)
	return nil
}
