package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"timetable2parquet/pkg/otel"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	meterProvider *sdkmetric.MeterProvider

	// Meter is nil until InitMetrics succeeds; every Record* helper is a
	// no-op while it is nil.
	Meter metric.Meter

	// Unix seconds of the last run that produced a file.
	lastSuccessTimestamp atomic.Int64

	// Row count seen by the last gate check; -1 until one runs.
	lastGateCount = func() *atomic.Int64 {
		v := new(atomic.Int64)
		v.Store(-1)
		return v
	}()
)

// InitMetrics sets up the OTLP meter provider when OTEL_METRICS_ENABLED is
// set. The returned func flushes and shuts it down.
func InitMetrics() (func(), error) {
	if !otel.IsMetricsEnabled() {
		slog.Debug("OpenTelemetry metrics is disabled")
		return func() {}, nil
	}

	ctx := context.Background()
	cfg := otel.GetExporterConfig(otel.SignalMetrics)

	exporter, err := otel.NewMetricExporter(ctx, cfg)
	if err != nil {
		slog.Warn("Failed to create OTLP metric exporter, using noop", "error", err)
		return func() {}, nil
	}

	res, err := otel.NewResource()
	if err != nil {
		slog.Warn("Failed to create resource, using noop", "error", err)
		return func() {}, nil
	}

	// A one-shot run exits long before a 60s interval fires; shutdown flushes.
	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(60*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otelapi.SetMeterProvider(meterProvider)

	if err := Init(meterProvider.Meter(otel.ServiceName)); err != nil {
		slog.Error("Failed to initialize metric instruments", "error", err)
		return func() {}, nil
	}

	slog.Debug("OpenTelemetry metrics initialized",
		"endpoint", cfg.Endpoint,
		"protocol", cfg.Protocol,
	)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			slog.Error("Error shutting down meter provider", "error", err)
		}
	}, nil
}

// Init creates all instruments on m and makes it the package meter.
func Init(m metric.Meter) error {
	if err := initializeInstruments(m); err != nil {
		return err
	}
	if err := registerObservables(m); err != nil {
		slog.Warn("Failed to register observable gauges", "error", err)
	}
	Meter = m
	return nil
}

func registerObservables(m metric.Meter) error {
	_, err := m.Int64ObservableGauge(
		"runtime.go.goroutines",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("{goroutine}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(runtime.NumGoroutine()))
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = m.Int64ObservableGauge(
		"runtime.go.mem.heap_alloc",
		metric.WithDescription("Heap memory allocated"),
		metric.WithUnit("By"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			o.Observe(int64(ms.HeapAlloc))
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = m.Int64ObservableGauge(
		"gate.row_count",
		metric.WithDescription("Rows in the downstream table at the last gate check"),
		metric.WithUnit("{row}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if n := lastGateCount.Load(); n >= 0 {
				o.Observe(n)
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = m.Int64ObservableGauge(
		"ingest.last_success.timestamp",
		metric.WithDescription("Unix timestamp of the last run that wrote a file"),
		metric.WithUnit("s"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if ts := lastSuccessTimestamp.Load(); ts > 0 {
				o.Observe(ts)
			}
			return nil
		}),
	)
	return err
}

// RecordLastSuccessTimestamp stamps the current time as the last good run.
func RecordLastSuccessTimestamp() {
	lastSuccessTimestamp.Store(time.Now().Unix())
}

// LastSuccess returns the last good run, or the zero time.
func LastSuccess() time.Time {
	ts := lastSuccessTimestamp.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// IsEnabled reports whether instruments are live.
func IsEnabled() bool {
	return Meter != nil
}
