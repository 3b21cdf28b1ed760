package otel

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Protocol is the OTLP transport.
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	ProtocolHTTPJSON     Protocol = "http/json"
)

// SignalType selects the OTEL_EXPORTER_OTLP_{SIGNAL}_* variable family.
type SignalType string

const (
	SignalTraces  SignalType = "traces"
	SignalMetrics SignalType = "metrics"
)

const defaultExportTimeout = 10 * time.Second

// ExporterConfig is the resolved OTLP exporter setup for one signal.
type ExporterConfig struct {
	Endpoint    string
	Protocol    Protocol
	Headers     map[string]string
	Timeout     time.Duration
	Insecure    bool
	Compression string
}

// Env looks up a variable; os.Getenv in production, a map in tests.
type Env func(key string) string

// MapEnv adapts a map to Env.
func MapEnv(m map[string]string) Env {
	return func(key string) string { return m[key] }
}

// IsTracingEnabled reports whether OTEL_TRACING_ENABLED is truthy.
func IsTracingEnabled() bool {
	return IsTrue(os.Getenv("OTEL_TRACING_ENABLED"))
}

// IsMetricsEnabled reports whether OTEL_METRICS_ENABLED is truthy.
func IsMetricsEnabled() bool {
	return IsTrue(os.Getenv("OTEL_METRICS_ENABLED"))
}

// GetExporterConfig resolves the exporter config for signal from the process environment.
func GetExporterConfig(signal SignalType) ExporterConfig {
	return ResolveExporterConfig(signal, os.Getenv)
}

// ResolveExporterConfig resolves signal-specific variables first, then the
// shared OTEL_EXPORTER_OTLP_* ones, then defaults.
func ResolveExporterConfig(signal SignalType, env Env) ExporterConfig {
	lookup := func(suffix, def string) string {
		upper := strings.ToUpper(string(signal))
		if v := env("OTEL_EXPORTER_OTLP_" + upper + "_" + suffix); v != "" {
			return v
		}
		if v := env("OTEL_EXPORTER_OTLP_" + suffix); v != "" {
			return v
		}
		return def
	}

	cfg := ExporterConfig{
		Protocol:    parseProtocol(lookup("PROTOCOL", string(ProtocolHTTPProtobuf))),
		Headers:     ParseHeaders(lookup("HEADERS", "")),
		Timeout:     ParseTimeout(lookup("TIMEOUT", ""), defaultExportTimeout),
		Compression: lookup("COMPRESSION", ""),
	}

	switch specific := env("OTEL_EXPORTER_OTLP_" + strings.ToUpper(string(signal)) + "_ENDPOINT"); {
	case specific != "":
		cfg.Endpoint = normalizeEndpoint(specific, cfg.Protocol)
	case env("OTEL_EXPORTER_OTLP_ENDPOINT") != "":
		cfg.Endpoint = withSignalPath(normalizeEndpoint(env("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.Protocol), signal, cfg.Protocol)
	case cfg.Protocol == ProtocolGRPC:
		cfg.Endpoint = "localhost:4317"
	default:
		cfg.Endpoint = "http://localhost:4318/v1/" + string(signal)
	}

	if v := lookup("INSECURE", ""); v != "" {
		cfg.Insecure = IsTrue(v)
	} else {
		cfg.Insecure = strings.HasPrefix(cfg.Endpoint, "http://")
	}

	return cfg
}

func parseProtocol(s string) Protocol {
	switch Protocol(strings.ToLower(strings.TrimSpace(s))) {
	case ProtocolGRPC:
		return ProtocolGRPC
	case ProtocolHTTPJSON:
		return ProtocolHTTPJSON
	default:
		return ProtocolHTTPProtobuf
	}
}

// normalizeEndpoint reduces gRPC endpoints to host:port and gives HTTP
// endpoints a scheme.
func normalizeEndpoint(endpoint string, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
		host, _, _ := strings.Cut(endpoint, "/")
		return host
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return "https://" + endpoint
	}
	return endpoint
}

func withSignalPath(endpoint string, signal SignalType, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		return endpoint
	}
	suffix := "/v1/" + string(signal)

	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + suffix
	}
	if strings.HasSuffix(u.Path, suffix) {
		return endpoint
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + suffix
	return u.String()
}

// IsTrue accepts true/1/yes/on in any case.
func IsTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// ParseHeaders parses "k1=v1,k2=v2". Values keep everything after the first
// '=' so base64 credentials survive.
func ParseHeaders(s string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}

// ParseTimeout accepts a Go duration or a bare millisecond count.
func ParseTimeout(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
