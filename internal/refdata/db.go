package refdata

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB is a SQLite-backed Provider. Tables are small (a few hundred rows), so
// the whole dataset is loaded into a Memory snapshot at open and after every
// write batch; lookups never touch the database. The snapshot is immutable
// once built, so readers only need the lock for the pointer swap.
type DB struct {
	db *sql.DB

	mu   sync.RWMutex
	snap *Memory
}

func (d *DB) snapshot() *Memory {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap
}

// OpenDB opens or creates the reference database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open reference database: %w", err)
	}

	// WAL keeps the refresher's writes from blocking readers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	d := &DB{db: db}
	if err := d.Reload(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS parts (
		id INTEGER PRIMARY KEY,
		slot INTEGER NOT NULL,
		rank INTEGER NOT NULL,
		class INTEGER NOT NULL,
		components INTEGER DEFAULT 0,
		repair_materials INTEGER DEFAULT 0,
		surveillance INTEGER DEFAULT 0,
		retrieval INTEGER DEFAULT 0,
		speed INTEGER DEFAULT 0,
		range INTEGER DEFAULT 0,
		favor INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sectors (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		letter TEXT NOT NULL,
		map_id INTEGER NOT NULL,
		rank_req INTEGER DEFAULT 1,
		ceruleum_tank_req INTEGER DEFAULT 1,
		stars INTEGER DEFAULT 1,
		exp_reward INTEGER DEFAULT 0,
		survey_duration_min INTEGER DEFAULT 0,
		survey_distance INTEGER DEFAULT 0,
		x INTEGER DEFAULT 0,
		y INTEGER DEFAULT 0,
		z INTEGER DEFAULT 0,
		starting_point INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sectors_map ON sectors(map_id);
	CREATE INDEX IF NOT EXISTS idx_sectors_letter ON sectors(letter, map_id);

	CREATE TABLE IF NOT EXISTS ranks (
		level INTEGER PRIMARY KEY,
		capacity INTEGER DEFAULT 0,
		exp_to_next INTEGER DEFAULT 0,
		surveillance_bonus INTEGER DEFAULT 0,
		retrieval_bonus INTEGER DEFAULT 0,
		speed_bonus INTEGER DEFAULT 0,
		range_bonus INTEGER DEFAULT 0,
		favor_bonus INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS route_stats (
		route_name TEXT PRIMARY KEY,
		gil_per_sub_day INTEGER DEFAULT 0,
		avg_exp INTEGER DEFAULT 0,
		fc_points INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS table_versions (
		table_name TEXT PRIMARY KEY,
		refreshed_at TEXT NOT NULL,
		row_count INTEGER DEFAULT 0
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Reload rebuilds the in-memory snapshot from the database.
func (d *DB) Reload() error {
	parts, err := d.loadParts()
	if err != nil {
		return fmt.Errorf("load parts: %w", err)
	}
	sectors, err := d.loadSectors()
	if err != nil {
		return fmt.Errorf("load sectors: %w", err)
	}
	ranks, err := d.loadRanks()
	if err != nil {
		return fmt.Errorf("load ranks: %w", err)
	}
	stats, err := d.loadRouteStats()
	if err != nil {
		return fmt.Errorf("load route stats: %w", err)
	}
	snap := NewMemory(parts, sectors, ranks, stats)
	d.mu.Lock()
	d.snap = snap
	d.mu.Unlock()
	return nil
}

func (d *DB) loadParts() ([]Part, error) {
	rows, err := d.db.Query(`SELECT id, slot, rank, class, components, repair_materials,
		surveillance, retrieval, speed, range, favor FROM parts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Part
	for rows.Next() {
		var p Part
		if err := rows.Scan(&p.ID, &p.Slot, &p.Rank, &p.Class, &p.Components,
			&p.RepairMaterials, &p.Surveillance, &p.Retrieval, &p.Speed, &p.Range, &p.Favor); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) loadSectors() ([]Sector, error) {
	rows, err := d.db.Query(`SELECT id, name, letter, map_id, rank_req, ceruleum_tank_req,
		stars, exp_reward, survey_duration_min, survey_distance, x, y, z, starting_point
		FROM sectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sector
	for rows.Next() {
		var s Sector
		var starting int
		if err := rows.Scan(&s.ID, &s.Name, &s.Letter, &s.MapID, &s.RankReq,
			&s.CeruleumTankReq, &s.Stars, &s.ExpReward, &s.SurveyDurationMin,
			&s.SurveyDistance, &s.X, &s.Y, &s.Z, &starting); err != nil {
			return nil, err
		}
		s.StartingPoint = starting != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *DB) loadRanks() ([]Rank, error) {
	rows, err := d.db.Query(`SELECT level, capacity, exp_to_next, surveillance_bonus,
		retrieval_bonus, speed_bonus, range_bonus, favor_bonus FROM ranks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rank
	for rows.Next() {
		var r Rank
		if err := rows.Scan(&r.Level, &r.Capacity, &r.ExpToNext, &r.SurveillanceBonus,
			&r.RetrievalBonus, &r.SpeedBonus, &r.RangeBonus, &r.FavorBonus); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) loadRouteStats() ([]RouteStats, error) {
	rows, err := d.db.Query(`SELECT route_name, gil_per_sub_day, avg_exp, fc_points FROM route_stats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RouteStats
	for rows.Next() {
		var rs RouteStats
		if err := rows.Scan(&rs.RouteName, &rs.GilPerSubDay, &rs.AvgExp, &rs.FCPoints); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// UpsertParts replaces or inserts part rows and refreshes the snapshot.
func (d *DB) UpsertParts(parts []Part) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO parts (id, slot, rank, class, components,
		repair_materials, surveillance, retrieval, speed, range, favor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET slot=excluded.slot, rank=excluded.rank,
		class=excluded.class, components=excluded.components,
		repair_materials=excluded.repair_materials, surveillance=excluded.surveillance,
		retrieval=excluded.retrieval, speed=excluded.speed, range=excluded.range,
		favor=excluded.favor`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range parts {
		if _, err := stmt.Exec(p.ID, p.Slot, p.Rank, p.Class, p.Components,
			p.RepairMaterials, p.Surveillance, p.Retrieval, p.Speed, p.Range, p.Favor); err != nil {
			return fmt.Errorf("upsert part %d: %w", p.ID, err)
		}
	}
	if err := markRefreshed(tx, "parts", len(parts)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return d.Reload()
}

// UpsertSectors replaces or inserts sector rows and refreshes the snapshot.
func (d *DB) UpsertSectors(sectors []Sector) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO sectors (id, name, letter, map_id, rank_req,
		ceruleum_tank_req, stars, exp_reward, survey_duration_min, survey_distance,
		x, y, z, starting_point)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, letter=excluded.letter,
		map_id=excluded.map_id, rank_req=excluded.rank_req,
		ceruleum_tank_req=excluded.ceruleum_tank_req, stars=excluded.stars,
		exp_reward=excluded.exp_reward, survey_duration_min=excluded.survey_duration_min,
		survey_distance=excluded.survey_distance, x=excluded.x, y=excluded.y,
		z=excluded.z, starting_point=excluded.starting_point`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range sectors {
		starting := 0
		if s.StartingPoint {
			starting = 1
		}
		if _, err := stmt.Exec(s.ID, s.Name, s.Letter, s.MapID, s.RankReq,
			s.CeruleumTankReq, s.Stars, s.ExpReward, s.SurveyDurationMin,
			s.SurveyDistance, s.X, s.Y, s.Z, starting); err != nil {
			return fmt.Errorf("upsert sector %d: %w", s.ID, err)
		}
	}
	if err := markRefreshed(tx, "sectors", len(sectors)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return d.Reload()
}

// UpsertRanks replaces or inserts rank rows and refreshes the snapshot.
func (d *DB) UpsertRanks(ranks []Rank) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO ranks (level, capacity, exp_to_next,
		surveillance_bonus, retrieval_bonus, speed_bonus, range_bonus, favor_bonus)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(level) DO UPDATE SET capacity=excluded.capacity,
		exp_to_next=excluded.exp_to_next, surveillance_bonus=excluded.surveillance_bonus,
		retrieval_bonus=excluded.retrieval_bonus, speed_bonus=excluded.speed_bonus,
		range_bonus=excluded.range_bonus, favor_bonus=excluded.favor_bonus`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range ranks {
		if _, err := stmt.Exec(r.Level, r.Capacity, r.ExpToNext, r.SurveillanceBonus,
			r.RetrievalBonus, r.SpeedBonus, r.RangeBonus, r.FavorBonus); err != nil {
			return fmt.Errorf("upsert rank %d: %w", r.Level, err)
		}
	}
	if err := markRefreshed(tx, "ranks", len(ranks)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return d.Reload()
}

// UpsertRouteStats replaces or inserts route earnings rows and refreshes the
// snapshot.
func (d *DB) UpsertRouteStats(stats []RouteStats) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO route_stats (route_name, gil_per_sub_day, avg_exp, fc_points)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(route_name) DO UPDATE SET gil_per_sub_day=excluded.gil_per_sub_day,
		avg_exp=excluded.avg_exp, fc_points=excluded.fc_points`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rs := range stats {
		if _, err := stmt.Exec(rs.RouteName, rs.GilPerSubDay, rs.AvgExp, rs.FCPoints); err != nil {
			return fmt.Errorf("upsert route %s: %w", rs.RouteName, err)
		}
	}
	if err := markRefreshed(tx, "route_stats", len(stats)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return d.Reload()
}

// RefreshedAt returns when a table was last written, or zero time if never.
func (d *DB) RefreshedAt(table string) (time.Time, error) {
	var raw string
	err := d.db.QueryRow(`SELECT refreshed_at FROM table_versions WHERE table_name = ?`, table).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse refreshed_at: %w", err)
	}
	return ts, nil
}

func markRefreshed(tx *sql.Tx, table string, count int) error {
	_, err := tx.Exec(`INSERT INTO table_versions (table_name, refreshed_at, row_count)
		VALUES (?, ?, ?)
		ON CONFLICT(table_name) DO UPDATE SET refreshed_at=excluded.refreshed_at,
		row_count=excluded.row_count`,
		table, time.Now().UTC().Format(time.RFC3339), count)
	return err
}

// Part returns the part row with the given id.
func (d *DB) Part(id int) (*Part, bool) { return d.snapshot().Part(id) }

// Sector returns the sector row with the given id.
func (d *DB) Sector(id int) (*Sector, bool) { return d.snapshot().Sector(id) }

// SectorByLetter returns the non-starting sector with the given letter on a map.
func (d *DB) SectorByLetter(letter string, mapID int) (*Sector, bool) {
	return d.snapshot().SectorByLetter(letter, mapID)
}

// Rank returns the rank row for the given level.
func (d *DB) Rank(level int) (*Rank, bool) { return d.snapshot().Rank(level) }

// SectorsByMap returns all sectors on a map ordered by id.
func (d *DB) SectorsByMap(mapID int) []*Sector { return d.snapshot().SectorsByMap(mapID) }

// StartingSector returns the map's voyage origin sector.
func (d *DB) StartingSector(mapID int) (*Sector, bool) { return d.snapshot().StartingSector(mapID) }

// RouteStats returns earnings data for a route name.
func (d *DB) RouteStats(routeName string) (*RouteStats, bool) {
	return d.snapshot().RouteStats(routeName)
}

// KnownRoutes returns every route with earnings data, sorted by name.
func (d *DB) KnownRoutes() []RouteStats { return d.snapshot().KnownRoutes() }
