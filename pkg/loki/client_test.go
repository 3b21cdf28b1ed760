package loki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"timetable2parquet/pkg/types"
)

func testBatch(deps ...types.Departure) types.Batch {
	return types.Batch{
		RunID:      "3f0c",
		StationID:  "8011160",
		Station:    "Berlin Hbf",
		FetchedAt:  time.Date(2026, 2, 10, 17, 0, 0, 0, time.UTC),
		Departures: deps,
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:3100", "user", "pass")

	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.baseURL != "http://localhost:3100" {
		t.Errorf("baseURL = %q, want %q", client.baseURL, "http://localhost:3100")
	}
	if client.username != "user" || client.password != "pass" {
		t.Errorf("credentials = %q/%q", client.username, client.password)
	}
	if client.Name() != "loki" {
		t.Errorf("Name() = %q", client.Name())
	}
}

func TestSendDepartures_MockServer(t *testing.T) {
	var receivedBody []byte
	var receivedHeaders http.Header
	var receivedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedHeaders = r.Header
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")

	batch := testBatch(types.Departure{
		TripID:        "-7874571842864554321-2602101700-1",
		Train:         "ICE 1601",
		Destination:   "München Hbf",
		Path:          "Hamburg Hbf|Berlin Hbf|Leipzig Hbf|München Hbf",
		ScheduledTime: "2026-02-10 17:12:00",
		Platform:      "14",
		Delay:         12,
		Disturbances:  "43|80",
	})

	if err := client.SendDepartures(context.Background(), batch); err != nil {
		t.Fatalf("SendDepartures failed: %v", err)
	}

	if receivedPath != "/loki/api/v1/push" {
		t.Errorf("Expected path /loki/api/v1/push, got %s", receivedPath)
	}
	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", receivedHeaders.Get("Content-Type"))
	}
	if receivedHeaders.Get("User-Agent") != "timetable2parquet/1.0.0" {
		t.Errorf("Expected User-Agent timetable2parquet/1.0.0, got %s", receivedHeaders.Get("User-Agent"))
	}

	var pushReq PushRequest
	if err := json.Unmarshal(receivedBody, &pushReq); err != nil {
		t.Fatalf("Failed to parse request body: %v", err)
	}
	if len(pushReq.Streams) != 1 {
		t.Fatalf("Expected 1 stream, got %d", len(pushReq.Streams))
	}

	stream := pushReq.Streams[0]
	expectedLabels := map[string]string{
		"job":        "timetable2parquet",
		"service":    "rail-departures",
		"station_id": "8011160",
		"station":    "Berlin Hbf",
		"run_id":     "3f0c",
	}
	for key, expected := range expectedLabels {
		if stream.Stream[key] != expected {
			t.Errorf("Stream label %q = %q, want %q", key, stream.Stream[key], expected)
		}
	}

	if len(stream.Values) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(stream.Values))
	}
	entry := stream.Values[0]
	if len(entry) != 2 {
		t.Fatalf("Expected entry with [timestamp, content], got %d elements", len(entry))
	}
	if entry[0] != strconv.FormatInt(batch.FetchedAt.UnixNano(), 10) {
		t.Errorf("timestamp = %s, want fetch time in ns", entry[0])
	}

	var line map[string]interface{}
	if err := json.Unmarshal([]byte(entry[1]), &line); err != nil {
		t.Fatalf("Failed to parse log content JSON: %v", err)
	}
	for _, field := range []string{
		"trip_id", "train", "destination", "path",
		"scheduled_time", "platform", "delay", "service_notices",
	} {
		if _, exists := line[field]; !exists {
			t.Errorf("Expected field %q in log content, not found", field)
		}
	}
	if line["train"] != "ICE 1601" {
		t.Errorf("train = %v, want ICE 1601", line["train"])
	}
	if line["delay"] != float64(12) {
		t.Errorf("delay = %v, want 12", line["delay"])
	}
}

func TestSendDepartures_WithAuthentication(t *testing.T) {
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "testuser", "testpass")
	if err := client.SendDepartures(context.Background(), testBatch(types.Departure{TripID: "a"})); err != nil {
		t.Fatalf("SendDepartures failed: %v", err)
	}

	if !strings.HasPrefix(authHeader, "Basic ") {
		t.Errorf("Expected Basic auth, got %q", authHeader)
	}
}

func TestSendDepartures_NoAuthenticationWhenEmpty(t *testing.T) {
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")
	if err := client.SendDepartures(context.Background(), testBatch(types.Departure{TripID: "a"})); err != nil {
		t.Fatalf("SendDepartures failed: %v", err)
	}

	if authHeader != "" {
		t.Errorf("Expected no Authorization header, got %q", authHeader)
	}
}

func TestSendDepartures_OrderedTimestamps(t *testing.T) {
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")
	batch := testBatch(
		types.Departure{TripID: "a"},
		types.Departure{TripID: "b"},
		types.Departure{TripID: "c"},
	)
	if err := client.Publish(context.Background(), batch); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	var pushReq PushRequest
	if err := json.Unmarshal(receivedBody, &pushReq); err != nil {
		t.Fatalf("Failed to parse request body: %v", err)
	}

	values := pushReq.Streams[0].Values
	if len(values) != 3 {
		t.Fatalf("Expected 3 log entries, got %d", len(values))
	}
	var prev int64
	for i, v := range values {
		ts, err := strconv.ParseInt(v[0], 10, 64)
		if err != nil {
			t.Fatalf("entry %d: bad timestamp %q", i, v[0])
		}
		if i > 0 && ts <= prev {
			t.Errorf("entry %d: timestamp %d not after %d", i, ts, prev)
		}
		prev = ts
	}
}

func TestSendDepartures_ErrorOnNon2xx(t *testing.T) {
	tests := []struct {
		statusCode int
		expectErr  bool
	}{
		{http.StatusOK, false},
		{http.StatusNoContent, false},
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := NewClient(server.URL, "", "")
			err := client.SendDepartures(context.Background(), testBatch(types.Departure{TripID: "a"}))
			if tt.expectErr && err == nil {
				t.Errorf("Expected error for status %d, got nil", tt.statusCode)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected error for status %d: %v", tt.statusCode, err)
			}
		})
	}
}

func TestSendDepartures_ServerUnavailable(t *testing.T) {
	client := NewClient("http://127.0.0.1:59999", "", "")

	if err := client.SendDepartures(context.Background(), testBatch(types.Departure{TripID: "a"})); err == nil {
		t.Error("Expected error when server is unavailable, got nil")
	}
}

func TestSendDepartures_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.SendDepartures(ctx, testBatch(types.Departure{TripID: "a"})); err == nil {
		t.Error("Expected error when context is cancelled, got nil")
	}
}
