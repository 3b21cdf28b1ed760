package otel

import (
	"testing"
	"time"
)

func TestResolveExporterConfig_Defaults(t *testing.T) {
	cfg := ResolveExporterConfig(SignalTraces, MapEnv(nil))

	if cfg.Protocol != ProtocolHTTPProtobuf {
		t.Errorf("Protocol = %q, want %q", cfg.Protocol, ProtocolHTTPProtobuf)
	}
	if cfg.Endpoint != "http://localhost:4318/v1/traces" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if !cfg.Insecure {
		t.Error("plain http endpoint should be insecure")
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}

	grpcCfg := ResolveExporterConfig(SignalMetrics, MapEnv(map[string]string{
		"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
	}))
	if grpcCfg.Endpoint != "localhost:4317" {
		t.Errorf("gRPC default endpoint = %q", grpcCfg.Endpoint)
	}
}

func TestResolveExporterConfig_Endpoints(t *testing.T) {
	tests := []struct {
		name   string
		signal SignalType
		env    map[string]string
		want   string
	}{
		{
			name:   "base endpoint gets signal path",
			signal: SignalMetrics,
			env:    map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "https://otlp.example.com/otlp"},
			want:   "https://otlp.example.com/otlp/v1/metrics",
		},
		{
			name:   "base endpoint without scheme",
			signal: SignalTraces,
			env:    map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "otlp.example.com"},
			want:   "https://otlp.example.com/v1/traces",
		},
		{
			name:   "signal endpoint used as-is",
			signal: SignalTraces,
			env: map[string]string{
				"OTEL_EXPORTER_OTLP_ENDPOINT":        "https://ignored.example.com",
				"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT": "https://traces.example.com/custom",
			},
			want: "https://traces.example.com/custom",
		},
		{
			name:   "grpc strips scheme and path",
			signal: SignalTraces,
			env: map[string]string{
				"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
				"OTEL_EXPORTER_OTLP_ENDPOINT": "http://collector:4317/ignored",
			},
			want: "collector:4317",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveExporterConfig(tt.signal, MapEnv(tt.env))
			if got.Endpoint != tt.want {
				t.Errorf("Endpoint = %q, want %q", got.Endpoint, tt.want)
			}
		})
	}
}

func TestResolveExporterConfig_SignalOverrides(t *testing.T) {
	cfg := ResolveExporterConfig(SignalMetrics, MapEnv(map[string]string{
		"OTEL_EXPORTER_OTLP_HEADERS":          "Authorization=Basic Zm9vOmJhcg==",
		"OTEL_EXPORTER_OTLP_METRICS_TIMEOUT":  "2500",
		"OTEL_EXPORTER_OTLP_METRICS_INSECURE": "false",
		"OTEL_EXPORTER_OTLP_COMPRESSION":      "gzip",
	}))

	if cfg.Headers["Authorization"] != "Basic Zm9vOmJhcg==" {
		t.Errorf("Authorization header = %q", cfg.Headers["Authorization"])
	}
	if cfg.Timeout != 2500*time.Millisecond {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.Insecure {
		t.Error("explicit INSECURE=false should win over http scheme")
	}
	if cfg.Compression != "gzip" {
		t.Errorf("Compression = %q", cfg.Compression)
	}
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" a=1 , b=x=y,,=skip,novalue")
	if len(got) != 2 || got["a"] != "1" || got["b"] != "x=y" {
		t.Errorf("ParseHeaders = %v", got)
	}
}

func TestIsTrue(t *testing.T) {
	for _, s := range []string{"true", "TRUE", " 1 ", "yes", "On"} {
		if !IsTrue(s) {
			t.Errorf("IsTrue(%q) = false", s)
		}
	}
	for _, s := range []string{"", "0", "false", "nope"} {
		if IsTrue(s) {
			t.Errorf("IsTrue(%q) = true", s)
		}
	}
}

func TestSplitHTTPEndpoint(t *testing.T) {
	host, path, err := SplitHTTPEndpoint("https://otlp.example.com:443/otlp/v1/traces")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "otlp.example.com:443" || path != "/otlp/v1/traces" {
		t.Errorf("got host=%q path=%q", host, path)
	}

	if _, _, err := SplitHTTPEndpoint("not a url"); err == nil {
		t.Error("expected error for endpoint without host")
	}
}
