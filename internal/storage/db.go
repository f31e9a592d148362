// Package storage persists fleet state and the voyage archive. Mutable state
// (the latest payload per source, the activity log, hidden companies) lives
// in SQLite or PostgreSQL; completed voyages go to ClickHouse for analytics.
package storage

import (
	"context"
	"fmt"
	"strings"

	"fleet_tracker/internal/activity"
)

// Config holds connection settings for every backend. Driver selects the
// state store; the ClickHouse archive is opened only when enabled.
type Config struct {
	Driver     string
	SQLite     SQLiteConfig
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		Driver: "sqlite",
		SQLite: SQLiteConfig{
			Path: "fleet_tracker.db",
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "fleet_state",
			User:     "fleet",
			Password: "fleet",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "fleet",
			User:     "default",
			Password: "",
		},
	}
}

// State is the mutable side of persistence: the latest canonical payload
// per source, the activity log, and the hidden-company set. Both the SQLite
// and the PostgreSQL stores implement it. Payloads are stored as opaque
// JSON; LoadRaw returns (nil, nil) for a source that was never saved.
type State interface {
	activity.Store

	SaveRaw(ctx context.Context, sourceID string, payload []byte) error
	LoadRaw(ctx context.Context, sourceID string) ([]byte, error)
	DeleteRaw(ctx context.Context, sourceID string) error
	Sources(ctx context.Context) ([]string, error)

	SetFCHidden(ctx context.Context, fcID string, hidden bool) error
	HiddenFCs(ctx context.Context) (map[string]bool, error)

	Close() error
}

// DB bundles the state store with the optional voyage archive.
type DB struct {
	State   State
	Archive *ClickHouseDB // nil when the archive is disabled
}

// Open opens the configured backends and creates their schemas.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	var state State
	switch cfg.Driver {
	case "", "sqlite":
		s, err := OpenSQLite(cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		state = s
	case "postgres":
		p, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := p.CreateSchema(ctx); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		state = p
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	db := &DB{State: state}
	if cfg.ClickHouse.Enabled {
		ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			_ = state.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		if err := ch.CreateSchema(ctx); err != nil {
			_ = ch.Close()
			_ = state.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		db.Archive = ch
	}
	return db, nil
}

// Close closes every open backend.
func (d *DB) Close() error {
	var errs []error
	if d.Archive != nil {
		if err := d.Archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if d.State != nil {
		if err := d.State.Close(); err != nil {
			errs = append(errs, fmt.Errorf("state: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// questionMarks returns n comma-separated ? placeholders for IN clauses.
func questionMarks(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
