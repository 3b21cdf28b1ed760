package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"timetable2parquet/pkg/config"
	"timetable2parquet/pkg/departures"
	"timetable2parquet/pkg/gate"
	"timetable2parquet/pkg/heartbeat"
	"timetable2parquet/pkg/identity"
	"timetable2parquet/pkg/logging"
	"timetable2parquet/pkg/loki"
	"timetable2parquet/pkg/metrics"
	"timetable2parquet/pkg/pipeline"
	"timetable2parquet/pkg/profiling"
	"timetable2parquet/pkg/publisher"
	"timetable2parquet/pkg/sink"
	"timetable2parquet/pkg/timetable"
	"timetable2parquet/pkg/tracing"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (optional, env: CONFIG_FILE)")
		dryRun     = flag.Bool("dry-run", false, "Print departures as CSV to stdout instead of writing parquet")
		schedule   = flag.String("schedule", "", "Cron schedule (e.g. \"*/15 * * * *\"); empty runs once")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Timetable to Parquet Ingestion Job\n\n")
		fmt.Fprintf(os.Stderr, "Fetches the Deutsche Bahn timetable for one station, resolves train\n")
		fmt.Fprintf(os.Stderr, "names from the planned timetable, flattens live departures and writes\n")
		fmt.Fprintf(os.Stderr, "them to a bronze parquet file. Stops once the downstream table holds\n")
		fmt.Fprintf(os.Stderr, "INGEST_ROW_LIMIT rows.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DB_CLIENT_ID        - DB API marketplace client id (required)\n")
		fmt.Fprintf(os.Stderr, "  DB_API_KEY          - DB API marketplace API key (required)\n")
		fmt.Fprintf(os.Stderr, "  STATION_ID          - EVA station number (default: 8011160)\n")
		fmt.Fprintf(os.Stderr, "  STATION_NAME        - Station display name (default: Berlin Hbf)\n")
		fmt.Fprintf(os.Stderr, "  TIMEZONE            - Zone for plan hours (default: UTC)\n")
		fmt.Fprintf(os.Stderr, "  PLAN_HOURS_BEFORE   - Plan window hours back (default: 2)\n")
		fmt.Fprintf(os.Stderr, "  PLAN_HOURS_AFTER    - Plan window hours ahead (default: 6)\n")
		fmt.Fprintf(os.Stderr, "  PLAN_FETCH_DELAY    - Pause between plan fetches (default: 500ms)\n")
		fmt.Fprintf(os.Stderr, "  PLAN_CACHE_TTL      - Keep plan hours between scheduled runs (default: 0, off)\n")
		fmt.Fprintf(os.Stderr, "  INGEST_ROW_LIMIT    - Stop once the gate table has this many rows (default: 500)\n")
		fmt.Fprintf(os.Stderr, "  GATE_DSN            - DuckDB file or postgres:// URL (default: data/dbt.duckdb)\n")
		fmt.Fprintf(os.Stderr, "  GATE_TABLE          - Table counted by the gate (default: silver_departures)\n")
		fmt.Fprintf(os.Stderr, "  OUTPUT_DIR          - Parquet output directory (default: data/bronze)\n")
		fmt.Fprintf(os.Stderr, "  HEARTBEAT_FILE      - Heartbeat log (default: logs/heartbeat.log)\n")
		fmt.Fprintf(os.Stderr, "  SCHEDULE            - Cron schedule, same as --schedule\n")
		fmt.Fprintf(os.Stderr, "  NATS_URL            - Publish departures to NATS (optional)\n")
		fmt.Fprintf(os.Stderr, "  LOKI_URL            - Push departures to Loki (optional)\n")
		fmt.Fprintf(os.Stderr, "  PUSHGATEWAY_URL     - Push run summaries to a Prometheus Pushgateway (optional)\n")
		fmt.Fprintf(os.Stderr, "  LOG_LEVEL           - debug, info, warn, error (default: info)\n")
		fmt.Fprintf(os.Stderr, "  LOG_FORMAT          - text or json (default: text)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Dry run (prints CSV, touches nothing on disk)\n")
		fmt.Fprintf(os.Stderr, "  %s --dry-run\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # One run, as from a CI cron\n")
		fmt.Fprintf(os.Stderr, "  DB_CLIENT_ID=... DB_API_KEY=... %s\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Long-running, every 15 minutes\n")
		fmt.Fprintf(os.Stderr, "  %s --schedule \"*/15 * * * *\" --config config.yaml\n\n", os.Args[0])
	}

	flag.Parse()

	logging.InitLogging()

	cfg, err := config.Load(*configPath)
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", cfgErr)
			flag.Usage()
			os.Exit(1)
		}
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *schedule != "" {
		cfg.Schedule = *schedule
	}

	shutdownTracing, err := tracing.InitTracing()
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	shutdownMetrics, err := metrics.InitMetrics()
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	defer shutdownMetrics()

	shutdownProfiling, err := profiling.InitProfiling()
	if err != nil {
		slog.Error("Failed to initialize profiling", "error", err)
		os.Exit(1)
	}
	defer shutdownProfiling()

	p, closePublishers, err := build(cfg)
	if err != nil {
		slog.Error("Failed to create pipeline", "error", err)
		os.Exit(1)
	}
	defer closePublishers()

	if cfg.DryRun {
		slog.Info("Starting in DRY RUN mode, departures will be printed as CSV")
	}
	slog.Info("Starting timetable ingestion",
		"station_id", cfg.StationID,
		"station", cfg.StationName,
		"row_limit", cfg.IngestRowLimit,
		"output_dir", cfg.OutputDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule != "" {
		if err := p.RunScheduled(ctx, cfg.Schedule); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Scheduler error", "error", err)
		}
		slog.Info("Timetable ingestion shutdown complete")
		return
	}

	result, err := p.RunOnce(ctx)
	pipeline.LogFailure(result, err)
	if result.State == gate.Gated {
		fmt.Printf("Limit of %d rows reached. Stopping ingestion.\n", cfg.IngestRowLimit)
	}
}

// build wires the pipeline from cfg. The returned func closes any
// publisher connections.
func build(cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	counter, err := gate.NewRowCounter(cfg.GateDSN, cfg.GateTable)
	if err != nil {
		return nil, nil, err
	}

	client := timetable.NewClient(cfg.BaseURL, cfg.ClientID, cfg.APIKey, cfg.HTTPTimeout, cfg.Location)

	resolver := identity.NewResolver(client, identity.Config{
		HoursBefore: cfg.PlanHoursBefore,
		HoursAfter:  cfg.PlanHoursAfter,
		FetchDelay:  cfg.PlanFetchDelay,
		CacheTTL:    cfg.PlanCacheTTL,
		Location:    cfg.Location,
	})

	components := pipeline.Components{
		Gate:       gate.New(counter, cfg.IngestRowLimit),
		Identities: resolver,
		Source:     departures.NewSource(client, cfg.StationID, cfg.StationName),
		Pusher:     metrics.NewPusher(cfg.PushgatewayURL),
	}

	closeAll := func() {}

	if cfg.DryRun {
		components.Sink = sink.NewCSVSink(os.Stdout)
	} else {
		components.Sink = sink.NewParquetSink(cfg.OutputDir)
		components.Heartbeat = heartbeat.NewWriter(cfg.HeartbeatFile)

		if cfg.NATSURL != "" {
			nats, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix)
			if err != nil {
				slog.Warn("NATS unavailable, departures will not be published", "error", err)
			} else {
				components.Publishers = append(components.Publishers, nats)
				closeAll = nats.Close
			}
		}
		if cfg.LokiURL != "" {
			components.Publishers = append(components.Publishers, loki.NewClient(cfg.LokiURL, cfg.LokiUser, cfg.LokiPassword))
		}
	}

	p, err := pipeline.New(pipeline.Config{
		StationID:   cfg.StationID,
		StationName: cfg.StationName,
	}, components)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return p, closeAll, nil
}
