package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet_tracker/internal/activity"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB is the PostgreSQL state store for multi-instance deployments.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() error {
	d.pool.Close()
	return nil
}

// Pool returns the underlying connection pool for advanced operations.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_payloads (
		source_id   TEXT PRIMARY KEY,
		payload     JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS activity_log (
		id              TEXT PRIMARY KEY,
		fc_id           TEXT NOT NULL,
		fc_name         TEXT,
		activity_type   TEXT NOT NULL,
		submarine_name  TEXT,
		character_name  TEXT,
		old_value       TEXT,
		new_value       TEXT,
		created_at      TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_fc ON activity_log(fc_id);
	CREATE INDEX IF NOT EXISTS idx_activity_type ON activity_log(activity_type);
	CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_log(created_at);

	CREATE TABLE IF NOT EXISTS hidden_fcs (
		fc_id     TEXT PRIMARY KEY,
		hidden_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	ALTER TABLE activity_log ADD COLUMN IF NOT EXISTS details TEXT;
	`

	_, err := d.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveRaw upserts the latest canonical payload for a source.
func (d *PostgresDB) SaveRaw(ctx context.Context, sourceID string, payload []byte) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO raw_payloads (source_id, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (source_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`, sourceID, payload)
	if err != nil {
		return fmt.Errorf("save payload: %w", err)
	}
	return nil
}

// LoadRaw returns the stored payload for a source, (nil, nil) when none.
func (d *PostgresDB) LoadRaw(ctx context.Context, sourceID string) ([]byte, error) {
	var payload []byte
	row := d.pool.QueryRow(ctx, `SELECT payload FROM raw_payloads WHERE source_id = $1`, sourceID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load payload: %w", err)
	}
	return payload, nil
}

// DeleteRaw removes the stored payload for a source.
func (d *PostgresDB) DeleteRaw(ctx context.Context, sourceID string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM raw_payloads WHERE source_id = $1`, sourceID)
	return err
}

// Sources lists every source with a stored payload, sorted by id.
func (d *PostgresDB) Sources(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT source_id FROM raw_payloads ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendEvents stores a batch of activity events in one transaction.
func (d *PostgresDB) AppendEvents(ctx context.Context, events []activity.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, e := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO activity_log (id, fc_id, fc_name, activity_type, submarine_name, character_name, old_value, new_value, details, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, e.ID, e.FCID, e.FCName, e.Type, e.SubmarineName, e.CharacterName, e.OldValue, e.NewValue, e.Details, e.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// RecentEvents returns the newest events first, optionally filtered by
// company and type.
func (d *PostgresDB) RecentEvents(ctx context.Context, limit int, f activity.Filter) ([]activity.Event, error) {
	var conditions []string
	var args []interface{}

	if len(f.FCIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("fc_id IN (%s)", pgPlaceholders(len(args)+1, len(f.FCIDs))))
		for _, id := range f.FCIDs {
			args = append(args, id)
		}
	}
	if len(f.Types) > 0 {
		conditions = append(conditions, fmt.Sprintf("activity_type IN (%s)", pgPlaceholders(len(args)+1, len(f.Types))))
		for _, t := range f.Types {
			args = append(args, t)
		}
	}

	query := `SELECT id, fc_id, fc_name, activity_type, submarine_name, character_name, old_value, new_value, details, created_at FROM activity_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanPostgresEvents(rows)
}

// FCEvents returns one company's events, newest first, with the total count
// for pagination.
func (d *PostgresDB) FCEvents(ctx context.Context, fcID string, page, perPage int, types []string) ([]activity.Event, int, error) {
	conditions := []string{"fc_id = $1"}
	args := []interface{}{fcID}

	if len(types) > 0 {
		conditions = append(conditions, fmt.Sprintf("activity_type IN (%s)", pgPlaceholders(len(args)+1, len(types))))
		for _, t := range types {
			args = append(args, t)
		}
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	row := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_log`+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	if perPage <= 0 {
		perPage = 50
	}
	if page <= 0 {
		page = 1
	}

	query := `SELECT id, fc_id, fc_name, activity_type, submarine_name, character_name, old_value, new_value, details, created_at FROM activity_log` +
		where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", perPage, (page-1)*perPage)

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events, err := scanPostgresEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func scanPostgresEvents(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]activity.Event, error) {
	var events []activity.Event
	for rows.Next() {
		var e activity.Event
		var fcName, subName, charName, oldVal, newVal, details *string

		err := rows.Scan(&e.ID, &e.FCID, &fcName, &e.Type, &subName, &charName, &oldVal, &newVal, &details, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.FCName = deref(fcName)
		e.SubmarineName = deref(subName)
		e.CharacterName = deref(charName)
		e.OldValue = deref(oldVal)
		e.NewValue = deref(newVal)
		e.Details = deref(details)

		events = append(events, e)
	}
	return events, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SetFCHidden hides or unhides a company in the fleet view.
func (d *PostgresDB) SetFCHidden(ctx context.Context, fcID string, hidden bool) error {
	if hidden {
		_, err := d.pool.Exec(ctx, `
			INSERT INTO hidden_fcs (fc_id) VALUES ($1)
			ON CONFLICT (fc_id) DO NOTHING
		`, fcID)
		return err
	}
	_, err := d.pool.Exec(ctx, `DELETE FROM hidden_fcs WHERE fc_id = $1`, fcID)
	return err
}

// HiddenFCs returns the set of hidden company ids.
func (d *PostgresDB) HiddenFCs(ctx context.Context) (map[string]bool, error) {
	rows, err := d.pool.Query(ctx, `SELECT fc_id FROM hidden_fcs`)
	if err != nil {
		return nil, fmt.Errorf("query hidden: %w", err)
	}
	defer rows.Close()

	hidden := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan hidden: %w", err)
		}
		hidden[id] = true
	}
	return hidden, rows.Err()
}

// pgPlaceholders returns n comma-separated $k placeholders starting at start.
func pgPlaceholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
