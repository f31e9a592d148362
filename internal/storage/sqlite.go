package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fleet_tracker/internal/activity"
)

// SQLiteConfig holds SQLite settings. Path is the database file.
type SQLiteConfig struct {
	Path string
}

// SQLiteDB is the file-backed state store. It is the default backend.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the configured path.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_payloads (
		source_id   TEXT PRIMARY KEY,
		payload     TEXT NOT NULL,
		updated_at  TEXT NOT NULL
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
		created_at      TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_fc ON activity_log(fc_id);
	CREATE INDEX IF NOT EXISTS idx_activity_type ON activity_log(activity_type);
	CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_log(created_at);

	CREATE TABLE IF NOT EXISTS hidden_fcs (
		fc_id     TEXT PRIMARY KEY,
		hidden_at TEXT NOT NULL
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	// The details column arrived after the first release; older database
	// files do not have it.
	return ensureColumn(db, "activity_log", "details", "TEXT")
}

// ensureColumn adds a column to an existing table when missing. SQLite has
// no ADD COLUMN IF NOT EXISTS, so the table info is probed first.
func ensureColumn(db *sql.DB, table, column, decl string) error {
	var n int
	row := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column)
	if err := row.Scan(&n); err != nil {
		return fmt.Errorf("probe %s.%s: %w", table, column, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}

// SaveRaw upserts the latest canonical payload for a source.
func (d *SQLiteDB) SaveRaw(ctx context.Context, sourceID string, payload []byte) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO raw_payloads (source_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, sourceID, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save payload: %w", err)
	}
	return nil
}

// LoadRaw returns the stored payload for a source, (nil, nil) when none.
func (d *SQLiteDB) LoadRaw(ctx context.Context, sourceID string) ([]byte, error) {
	var payload string
	row := d.db.QueryRowContext(ctx, `SELECT payload FROM raw_payloads WHERE source_id = ?`, sourceID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load payload: %w", err)
	}
	return []byte(payload), nil
}

// DeleteRaw removes the stored payload for a source.
func (d *SQLiteDB) DeleteRaw(ctx context.Context, sourceID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM raw_payloads WHERE source_id = ?`, sourceID)
	return err
}

// Sources lists every source with a stored payload, sorted by id.
func (d *SQLiteDB) Sources(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT source_id FROM raw_payloads ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (d *SQLiteDB) AppendEvents(ctx context.Context, events []activity.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO activity_log (id, fc_id, fc_name, activity_type, submarine_name, character_name, old_value, new_value, details, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.FCID, e.FCName, e.Type, e.SubmarineName, e.CharacterName, e.OldValue, e.NewValue, e.Details, e.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

// RecentEvents returns the newest events first, optionally filtered by
// company and type.
func (d *SQLiteDB) RecentEvents(ctx context.Context, limit int, f activity.Filter) ([]activity.Event, error) {
	var conditions []string
	var args []interface{}

	if len(f.FCIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("fc_id IN (%s)", questionMarks(len(f.FCIDs))))
		for _, id := range f.FCIDs {
			args = append(args, id)
		}
	}
	if len(f.Types) > 0 {
		conditions = append(conditions, fmt.Sprintf("activity_type IN (%s)", questionMarks(len(f.Types))))
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

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanSQLiteEvents(rows)
}

// FCEvents returns one company's events, newest first, with the total count
// for pagination.
func (d *SQLiteDB) FCEvents(ctx context.Context, fcID string, page, perPage int, types []string) ([]activity.Event, int, error) {
	conditions := []string{"fc_id = ?"}
	args := []interface{}{fcID}

	if len(types) > 0 {
		conditions = append(conditions, fmt.Sprintf("activity_type IN (%s)", questionMarks(len(types))))
		for _, t := range types {
			args = append(args, t)
		}
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	row := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log`+where, args...)
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

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events, err := scanSQLiteEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func scanSQLiteEvents(rows *sql.Rows) ([]activity.Event, error) {
	var events []activity.Event
	for rows.Next() {
		var e activity.Event
		var fcName, subName, charName, oldVal, newVal, details sql.NullString
		var createdAt string

		err := rows.Scan(&e.ID, &e.FCID, &fcName, &e.Type, &subName, &charName, &oldVal, &newVal, &details, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.FCName = fcName.String
		e.SubmarineName = subName.String
		e.CharacterName = charName.String
		e.OldValue = oldVal.String
		e.NewValue = newVal.String
		e.Details = details.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		events = append(events, e)
	}
	return events, rows.Err()
}

// SetFCHidden hides or unhides a company in the fleet view.
func (d *SQLiteDB) SetFCHidden(ctx context.Context, fcID string, hidden bool) error {
	if hidden {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO hidden_fcs (fc_id, hidden_at) VALUES (?, ?)
			ON CONFLICT(fc_id) DO NOTHING
		`, fcID, time.Now().UTC().Format(time.RFC3339))
		return err
	}
	_, err := d.db.ExecContext(ctx, `DELETE FROM hidden_fcs WHERE fc_id = ?`, fcID)
	return err
}

// HiddenFCs returns the set of hidden company ids.
func (d *SQLiteDB) HiddenFCs(ctx context.Context) (map[string]bool, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT fc_id FROM hidden_fcs`)
	if err != nil {
		return nil, fmt.Errorf("query hidden: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
