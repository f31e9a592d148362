// Package config loads tracker settings. The environment fills a Config
// first (with struct-tag defaults), then an optional YAML file overlays it,
// and the daemon main applies command-line flags on top. Later layers win.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"fleet_tracker/internal/storage"
)

// Config is the full runtime configuration of the tracker daemon.
type Config struct {
	HTTPPort    int      `env:"FLEET_HTTP_PORT" envDefault:"8080" yaml:"http_port"`
	AuthEnabled bool     `env:"FLEET_AUTH_ENABLED" envDefault:"false" yaml:"auth_enabled"`
	APIKeys     []string `env:"FLEET_API_KEYS" envSeparator:"," yaml:"api_keys"`
	LogLevel    string   `env:"FLEET_LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	HiddenFCs   []string `env:"FLEET_HIDDEN_FCS" envSeparator:"," yaml:"hidden_fcs"`

	Storage    Storage    `yaml:"storage"`
	Reference  Reference  `yaml:"reference"`
	NATS       NATS       `yaml:"nats"`
	Kafka      Kafka      `yaml:"kafka"`
	Snapshots  Snapshots  `yaml:"snapshots"`
	RouteStats RouteStats `yaml:"route_stats"`
}

// Storage selects the state backend and carries per-backend settings.
type Storage struct {
	Driver     string     `env:"FLEET_STORAGE_DRIVER" envDefault:"sqlite" yaml:"driver"`
	SQLitePath string     `env:"FLEET_SQLITE_PATH" envDefault:"fleet_tracker.db" yaml:"sqlite_path"`
	Postgres   Postgres   `yaml:"postgres"`
	ClickHouse ClickHouse `yaml:"clickhouse"`
}

// Postgres holds PostgreSQL connection settings.
type Postgres struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost" yaml:"host"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432" yaml:"port"`
	Database string `env:"POSTGRES_DATABASE" envDefault:"fleet_state" yaml:"database"`
	User     string `env:"POSTGRES_USER" envDefault:"fleet" yaml:"user"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"fleet" yaml:"password"`
}

// ClickHouse holds voyage archive settings. The archive is optional.
type ClickHouse struct {
	Enabled  bool   `env:"CLICKHOUSE_ENABLED" envDefault:"false" yaml:"enabled"`
	Host     string `env:"CLICKHOUSE_HOST" envDefault:"localhost" yaml:"host"`
	Port     int    `env:"CLICKHOUSE_PORT" envDefault:"9000" yaml:"port"`
	Database string `env:"CLICKHOUSE_DATABASE" envDefault:"fleet" yaml:"database"`
	User     string `env:"CLICKHOUSE_USER" envDefault:"default" yaml:"user"`
	Password string `env:"CLICKHOUSE_PASSWORD" yaml:"password"`
}

// Reference points at the game reference database.
type Reference struct {
	Path string `env:"FLEET_REFERENCE_DB" envDefault:"reference.db" yaml:"path"`
}

// NATS configures the push feed. Empty URL disables it.
type NATS struct {
	URL     string `env:"FLEET_NATS_URL" yaml:"url"`
	Subject string `env:"FLEET_NATS_SUBJECT" envDefault:"fleet.ingest" yaml:"subject"`
}

// Kafka configures the ingest feed and the activity publisher. Empty broker
// list disables both; an empty ActivityTopic disables just the publisher.
type Kafka struct {
	Brokers       []string `env:"FLEET_KAFKA_BROKERS" envSeparator:"," yaml:"brokers"`
	IngestTopic   string   `env:"FLEET_KAFKA_INGEST_TOPIC" envDefault:"fleet.ingest" yaml:"ingest_topic"`
	ActivityTopic string   `env:"FLEET_KAFKA_ACTIVITY_TOPIC" yaml:"activity_topic"`
}

// Snapshots configures the on-disk payload watcher. Empty path list
// disables it.
type Snapshots struct {
	Paths    []string `env:"FLEET_SNAPSHOT_PATHS" envSeparator:"," yaml:"paths"`
	Interval Duration `env:"FLEET_SNAPSHOT_INTERVAL" envDefault:"30s" yaml:"interval"`
}

// RouteStats configures the community earnings refresher. Empty URL
// disables it.
type RouteStats struct {
	URL      string   `env:"FLEET_ROUTE_STATS_URL" yaml:"url"`
	Interval Duration `env:"FLEET_ROUTE_STATS_INTERVAL" envDefault:"6h" yaml:"interval"`
}

// Duration lets YAML documents spell intervals the same way the environment
// does ("30s", "6h").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for the env loader.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for the overlay loader.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load builds a Config from the environment, overlaying the YAML file at
// path when path is non-empty.
func Load(path string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http port %d out of range", c.HTTPPort)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.AuthEnabled && len(c.APIKeys) == 0 {
		return fmt.Errorf("auth enabled but no API keys configured")
	}
	return nil
}

// SlogLevel maps the configured level name onto slog's scale.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StorageConfig maps onto the storage package's settings.
func (c Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver: c.Storage.Driver,
		SQLite: storage.SQLiteConfig{Path: c.Storage.SQLitePath},
		Postgres: storage.PostgresConfig{
			Host:     c.Storage.Postgres.Host,
			Port:     c.Storage.Postgres.Port,
			Database: c.Storage.Postgres.Database,
			User:     c.Storage.Postgres.User,
			Password: c.Storage.Postgres.Password,
		},
		ClickHouse: storage.ClickHouseConfig{
			Enabled:  c.Storage.ClickHouse.Enabled,
			Host:     c.Storage.ClickHouse.Host,
			Port:     c.Storage.ClickHouse.Port,
			Database: c.Storage.ClickHouse.Database,
			User:     c.Storage.ClickHouse.User,
			Password: c.Storage.ClickHouse.Password,
		},
	}
}
