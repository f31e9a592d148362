package storage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"fleet_tracker/internal/stats"
)

// ClickHouseConfig holds ClickHouse connection settings for the voyage
// archive. The archive is optional; leave Enabled false to run without it.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB is the append-only voyage archive. It implements stats.Archive.
type ClickHouseDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the voyage table. The ReplacingMergeTree key makes a
// re-recorded voyage collapse to a single row.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS voyages (
		account          LowCardinality(String),
		character_name   String,
		character_cid    String,
		fc_id            LowCardinality(String),
		fc_name          LowCardinality(String),
		world            LowCardinality(String),
		submarine_name   String,
		submarine_level  UInt8,
		build            LowCardinality(String),
		route_name       LowCardinality(String),
		route_points     Array(Int32),
		duration_hours   Nullable(Float64),
		estimated_gil    Int64,
		ceruleum_used    Int32,
		repair_kits_used Int32,
		return_time      DateTime,
		was_collected    Bool,
		collected_at     DateTime,
		recorded_at      DateTime DEFAULT now()
	)
	ENGINE = ReplacingMergeTree(recorded_at)
	PARTITION BY toYYYYMM(return_time)
	ORDER BY (character_cid, submarine_name, return_time)
	SETTINGS index_granularity = 8192`

	if err := d.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const voyageColumns = `account, character_name, character_cid, fc_id, fc_name, world, submarine_name, submarine_level, build, route_name, route_points, duration_hours, estimated_gil, ceruleum_used, repair_kits_used, return_time, was_collected, collected_at`

// RecordVoyages stores a batch of completed voyages.
func (d *ClickHouseDB) RecordVoyages(ctx context.Context, voyages []stats.Voyage) error {
	if len(voyages) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO voyages (`+voyageColumns+`, recorded_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, v := range voyages {
		err := batch.Append(
			v.Account, v.CharacterName, v.CharacterCID, v.FCID, v.FCName, v.World,
			v.SubmarineName, uint8(v.SubmarineLevel), v.SubmarineBuild, v.RouteName,
			pointsToInt32(v.RoutePoints), v.DurationHours, v.EstimatedGil,
			int32(v.CeruleumUsed), int32(v.RepairKitsUsed),
			v.ReturnTime, v.WasCollected, v.CollectedAt, v.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// LatestReturns returns the newest archived return time per submarine. The
// stats recorder seeds its change detection from this after a restart.
func (d *ClickHouseDB) LatestReturns(ctx context.Context) (map[stats.VoyageKey]int64, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT character_cid, submarine_name, max(return_time)
		FROM voyages
		GROUP BY character_cid, submarine_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query latest returns: %w", err)
	}
	defer rows.Close()

	latest := make(map[stats.VoyageKey]int64)
	for rows.Next() {
		var cid, name string
		var rt time.Time
		if err := rows.Scan(&cid, &name, &rt); err != nil {
			return nil, fmt.Errorf("scan latest return: %w", err)
		}
		latest[stats.VoyageKey{CID: cid, SubmarineName: name}] = rt.Unix()
	}
	return latest, rows.Err()
}

// History returns archived voyages matching the query plus the total match
// count before paging.
func (d *ClickHouseDB) History(ctx context.Context, q stats.HistoryQuery) ([]stats.Voyage, int, error) {
	conditions, args := historyConditions(q)
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total uint64
	row := d.conn.QueryRow(ctx, `SELECT count() FROM voyages FINAL`+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count voyages: %w", err)
	}

	orderField := "return_time"
	switch q.SortBy {
	case "submarine":
		orderField = "submarine_name"
	case "character":
		orderField = "character_name"
	case "world":
		orderField = "world"
	case "fc_name":
		orderField = "fc_name"
	case "build":
		orderField = "build"
	case "route":
		orderField = "route_name"
	case "level":
		orderField = "submarine_level"
	}
	direction := "DESC"
	if strings.EqualFold(q.SortDir, "asc") {
		direction = "ASC"
	}

	query := `SELECT ` + voyageColumns + ` FROM voyages FINAL` + where
	if orderField == "return_time" {
		query += fmt.Sprintf(" ORDER BY return_time %s", direction)
	} else {
		query += fmt.Sprintf(" ORDER BY %s %s, return_time DESC", orderField, direction)
	}
	if q.PerPage > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.PerPage, (page-1)*q.PerPage)
	}

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query voyages: %w", err)
	}
	defer rows.Close()

	var voyages []stats.Voyage
	for rows.Next() {
		var v stats.Voyage
		var level uint8
		var points []int32
		var ceruleum, kits int32

		err := rows.Scan(&v.Account, &v.CharacterName, &v.CharacterCID, &v.FCID, &v.FCName, &v.World,
			&v.SubmarineName, &level, &v.SubmarineBuild, &v.RouteName,
			&points, &v.DurationHours, &v.EstimatedGil, &ceruleum, &kits,
			&v.ReturnTime, &v.WasCollected, &v.CollectedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan voyage: %w", err)
		}

		v.SubmarineLevel = int(level)
		v.RoutePoints = pointsFromInt32(points)
		v.CeruleumUsed = int(ceruleum)
		v.RepairKitsUsed = int(kits)
		voyages = append(voyages, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate voyages: %w", err)
	}

	return voyages, int(total), nil
}

// Daily returns per-day rollups grouped by account and company, newest first.
func (d *ClickHouseDB) Daily(ctx context.Context, days int, fcID string) ([]stats.DailyStat, error) {
	var conditions []string
	var args []interface{}

	if days > 0 {
		conditions = append(conditions, "return_time >= ?")
		args = append(args, time.Now().UTC().AddDate(0, 0, -days))
	}
	if fcID != "" {
		conditions = append(conditions, "fc_id = ?")
		args = append(args, fcID)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := d.conn.Query(ctx, `
		SELECT toDate(return_time) AS day, account, fc_id, any(fc_name),
			count(), countIf(was_collected), uniqExact(submarine_name),
			sum(estimated_gil), sum(ceruleum_used), sum(repair_kits_used)
		FROM voyages FINAL`+where+`
		GROUP BY day, account, fc_id
		ORDER BY day DESC, account, fc_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var daily []stats.DailyStat
	for rows.Next() {
		var day time.Time
		var account, fcID, fcName string
		var sent, collected, subs uint64
		var gil, ceruleum, kits int64

		err := rows.Scan(&day, &account, &fcID, &fcName, &sent, &collected, &subs, &gil, &ceruleum, &kits)
		if err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}

		daily = append(daily, stats.DailyStat{
			Date:             day.Format("2006-01-02"),
			Account:          account,
			FCID:             fcID,
			FCName:           fcName,
			VoyagesSent:      int(sent),
			VoyagesCollected: int(collected),
			SubmarinesActive: int(subs),
			EstimatedGil:     gil,
			CeruleumUsed:     int(ceruleum),
			RepairKitsUsed:   int(kits),
		})
	}
	return daily, rows.Err()
}

// Summary returns the headline voyage figures for the period. days 0 covers
// all archived history.
func (d *ClickHouseDB) Summary(ctx context.Context, days int) (stats.Summary, error) {
	where := ""
	var args []interface{}
	if days > 0 {
		where = " WHERE return_time >= ?"
		args = append(args, time.Now().UTC().AddDate(0, 0, -days))
	}

	var total uint64
	var first, last time.Time
	row := d.conn.QueryRow(ctx, `SELECT count(), min(toDate(return_time)), max(toDate(return_time)) FROM voyages FINAL`+where, args...)
	if err := row.Scan(&total, &first, &last); err != nil {
		return stats.Summary{}, fmt.Errorf("query summary: %w", err)
	}

	s := stats.Summary{TotalVoyages: int(total)}
	if days > 0 {
		s.PeriodDays = days
	} else {
		s.PeriodDays = "all"
	}

	span := float64(days)
	if days == 0 && total > 0 {
		span = last.Sub(first).Hours()/24 + 1
	}
	if span > 0 {
		s.AvgVoyagesPerDay = math.Round(float64(total)/span*10) / 10
	}
	return s, nil
}

func historyConditions(q stats.HistoryQuery) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q.Days > 0 {
		conditions = append(conditions, "return_time >= ?")
		args = append(args, time.Now().UTC().AddDate(0, 0, -q.Days))
	}
	if q.Account != "" {
		conditions = append(conditions, "account = ?")
		args = append(args, q.Account)
	}
	if q.FCID != "" {
		conditions = append(conditions, "fc_id = ?")
		args = append(args, q.FCID)
	}
	if len(q.ExcludeFCs) > 0 {
		conditions = append(conditions, fmt.Sprintf("fc_id NOT IN (%s)", questionMarks(len(q.ExcludeFCs))))
		for _, id := range q.ExcludeFCs {
			args = append(args, id)
		}
	}
	return conditions, args
}

func pointsToInt32(points []int) []int32 {
	out := make([]int32, len(points))
	for i, p := range points {
		out[i] = int32(p)
	}
	return out
}

func pointsFromInt32(points []int32) []int {
	if len(points) == 0 {
		return nil
	}
	out := make([]int, len(points))
	for i, p := range points {
		out[i] = int(p)
	}
	return out
}
