// Package config loads job settings from .env, an optional YAML file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const DefaultBaseURL = "https://apis.deutschebahn.com/db-api-marketplace/apis/timetables/v1"

type Config struct {
	ClientID string `yaml:"client_id" env:"DB_CLIENT_ID" validate:"required"`
	APIKey   string `yaml:"api_key" env:"DB_API_KEY" validate:"required"`

	BaseURL     string        `yaml:"base_url" env:"TIMETABLE_BASE_URL" validate:"required,url"`
	StationID   string        `yaml:"station_id" env:"STATION_ID" validate:"required,numeric"`
	StationName string        `yaml:"station_name" env:"STATION_NAME" validate:"required"`
	Timezone    string        `yaml:"timezone" env:"TIMEZONE" validate:"required"`
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT" validate:"gt=0"`

	PlanHoursBefore int           `yaml:"plan_hours_before" env:"PLAN_HOURS_BEFORE" validate:"gte=0,lte=24"`
	PlanHoursAfter  int           `yaml:"plan_hours_after" env:"PLAN_HOURS_AFTER" validate:"gte=0,lte=24"`
	PlanFetchDelay  time.Duration `yaml:"plan_fetch_delay" env:"PLAN_FETCH_DELAY" validate:"gte=0"`
	PlanCacheTTL    time.Duration `yaml:"plan_cache_ttl" env:"PLAN_CACHE_TTL" validate:"gte=0"`

	IngestRowLimit int64  `yaml:"ingest_row_limit" env:"INGEST_ROW_LIMIT" validate:"gt=0"`
	GateDSN        string `yaml:"gate_dsn" env:"GATE_DSN"`
	GateTable      string `yaml:"gate_table" env:"GATE_TABLE" validate:"required"`

	OutputDir     string `yaml:"output_dir" env:"OUTPUT_DIR" validate:"required"`
	HeartbeatFile string `yaml:"heartbeat_file" env:"HEARTBEAT_FILE" validate:"required"`
	Schedule      string `yaml:"schedule" env:"SCHEDULE" validate:"omitempty,cronspec"`
	DryRun        bool   `yaml:"dry_run" env:"DRY_RUN"`

	NATSURL           string `yaml:"nats_url" env:"NATS_URL" validate:"omitempty,url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix" env:"NATS_SUBJECT_PREFIX" validate:"required"`

	LokiURL      string `yaml:"loki_url" env:"LOKI_URL" validate:"omitempty,url"`
	LokiUser     string `yaml:"loki_user" env:"LOKI_USER"`
	LokiPassword string `yaml:"loki_password" env:"LOKI_PASSWORD"`

	PushgatewayURL string `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL" validate:"omitempty,url"`

	// Location is Timezone resolved by Load.
	Location *time.Location `yaml:"-"`
}

// ConfigError means the job cannot start. Missing lists absent required
// variables by their environment name.
type ConfigError struct {
	Missing []string
	Err     error
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required configuration: " + strings.Join(e.Missing, ", ")
	}
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

func Default() *Config {
	return &Config{
		BaseURL:           DefaultBaseURL,
		StationID:         "8011160",
		StationName:       "Berlin Hbf",
		Timezone:          "UTC",
		HTTPTimeout:       30 * time.Second,
		PlanHoursBefore:   2,
		PlanHoursAfter:    6,
		PlanFetchDelay:    500 * time.Millisecond,
		IngestRowLimit:    500,
		GateDSN:           "data/dbt.duckdb",
		GateTable:         "silver_departures",
		OutputDir:         "data/bronze",
		HeartbeatFile:     "logs/heartbeat.log",
		NATSSubjectPrefix: "departures",
	}
}

// Load reads .env (if present), then path (or CONFIG_FILE), then the
// process environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	return LoadFrom(path, os.LookupEnv)
}

// LoadFrom is Load without .env handling, reading variables through lookup.
func LoadFrom(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to read config file: %w", err)}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to parse config file %s: %w", path, err)}
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, &ConfigError{Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)}
	}
	cfg.Location = loc

	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints. Missing credentials are reported
// separately from other invalid values.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ConfigError{Err: err}
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, fmt.Sprintf("%s=%v fails %s", fe.Field(), fe.Value(), fe.Tag()))
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing, Err: err}
	}
	return &ConfigError{Err: errors.New(strings.Join(invalid, "; "))}
}

var durationType = reflect.TypeOf(time.Duration(0))

// applyEnv overwrites every field that has an env tag and a set variable.
func applyEnv(cfg *Config, lookup LookupFunc) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := lookup(name)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)

		field := v.Field(i)
		switch {
		case field.Type() == durationType:
			d, err := parseDuration(raw)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, raw, err)
			}
			field.SetInt(int64(d))
		case field.Kind() == reflect.String:
			field.SetString(raw)
		case field.Kind() == reflect.Int, field.Kind() == reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, raw, err)
			}
			field.SetInt(n)
		case field.Kind() == reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, raw, err)
			}
			field.SetBool(b)
		}
	}
	return nil
}

// parseDuration accepts Go durations and bare integers as seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
