package timetable

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"timetable2parquet/pkg/metrics"
	tpotel "timetable2parquet/pkg/otel"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://apis.deutschebahn.com/db-api-marketplace/apis/timetables/v1"

	userAgent = "timetable2parquet/1.0.0"

	// maxErrorBody caps how much of a failed response ends up in a FetchError.
	maxErrorBody = 512
)

// FetchError reports a failed upstream call. StatusCode is zero when the
// request never produced a response.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Client struct {
	httpClient *http.Client
	clientID   string
	apiKey     string
	baseURL    string
	location   *time.Location
	tracer     trace.Tracer
}

// NewClient builds a client for the timetables API. A nil location means UTC.
func NewClient(baseURL, clientID, apiKey string, timeout time.Duration, location *time.Location) *Client {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if location == nil {
		location = time.UTC
	}

	return &Client{
		httpClient: client,
		clientID:   clientID,
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		location:   location,
		tracer:     otel.Tracer("timetable-client"),
	}
}

// PlanURL returns the plan endpoint for the station and the hour containing at.
func (c *Client) PlanURL(stationID string, at time.Time) string {
	local := at.In(c.location)
	return fmt.Sprintf("%s/plan/%s/%s/%s?sub=yes", c.baseURL, stationID, local.Format("060102"), local.Format("15"))
}

// ChangesURL returns the full-changes endpoint for the station.
func (c *Client) ChangesURL(stationID string) string {
	return fmt.Sprintf("%s/fchg/%s?sub=yes", c.baseURL, stationID)
}

// FetchPlan downloads the one-hour plan slice containing at.
func (c *Client) FetchPlan(ctx context.Context, stationID string, at time.Time) ([]byte, error) {
	return c.fetch(ctx, "plan", c.PlanURL(stationID, at))
}

// FetchChanges downloads all known changes for the station.
func (c *Client) FetchChanges(ctx context.Context, stationID string) ([]byte, error) {
	return c.fetch(ctx, "fchg", c.ChangesURL(stationID))
}

func (c *Client) fetch(ctx context.Context, endpoint, url string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "timetable.fetch_"+endpoint,
		trace.WithAttributes(
			attribute.String("api.endpoint", endpoint),
			attribute.String("http.url", url),
			attribute.String("http.method", http.MethodGet),
		),
	)
	defer span.End()

	start := time.Now()
	status := 0
	defer func() {
		metrics.RecordTimetableRequest(ctx, endpoint, status, time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		tpotel.RecordError(span, err, tpotel.ErrorTypeValidation, false)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("DB-Client-Id", c.clientID)
	req.Header.Set("DB-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		fetchErr := &FetchError{Endpoint: endpoint, Err: err}
		tpotel.RecordError(span, fetchErr, tpotel.ErrorTypeNetwork, true)
		return nil, fetchErr
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("http.response.content_type", resp.Header.Get("Content-Type")),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		fetchErr := &FetchError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
		tpotel.RecordError(span, fetchErr, tpotel.ErrorTypeHTTP, resp.StatusCode >= 500)
		return nil, fetchErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fetchErr := &FetchError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
		tpotel.RecordError(span, fetchErr, tpotel.ErrorTypeNetwork, true)
		return nil, fetchErr
	}

	span.SetAttributes(attribute.Int("response.size_bytes", len(body)))
	tpotel.SetSpanOk(span)

	return body, nil
}
