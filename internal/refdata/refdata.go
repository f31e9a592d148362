// Package refdata provides read-only lookup of the static game tables the
// calculators depend on: submarine parts, exploration sectors, rank bonuses,
// and community route earnings. Implementations are an in-memory provider and
// a SQLite-backed one seeded from CSV exports.
package refdata

// Part is one submarine part row (1..40). Rank feeds the damage model, Speed
// the duration model.
type Part struct {
	ID              int `json:"id"`
	Slot            int `json:"slot"` // 0=Hull 1=Stern 2=Bow 3=Bridge
	Rank            int `json:"rank"`
	Class           int `json:"class"`
	Components      int `json:"components"`
	RepairMaterials int `json:"repair_materials"`
	Surveillance    int `json:"surveillance"`
	Retrieval       int `json:"retrieval"`
	Speed           int `json:"speed"`
	Range           int `json:"range"`
	Favor           int `json:"favor"`
}

// Sector is one exploration sector row. Letter is the single-character map
// code routes are spelled with; X/Y/Z feed travel distance.
type Sector struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Letter            string `json:"letter"`
	MapID             int    `json:"map_id"`
	RankReq           int    `json:"rank_req"`
	CeruleumTankReq   int    `json:"ceruleum_tank_req"`
	Stars             int    `json:"stars"`
	ExpReward         int64  `json:"exp_reward"`
	SurveyDurationMin int    `json:"survey_duration_min"`
	SurveyDistance    int    `json:"survey_distance"`
	X                 int    `json:"x"`
	Y                 int    `json:"y"`
	Z                 int    `json:"z"`
	StartingPoint     bool   `json:"starting_point"`
}

// Rank is one progression rank row (level 1..125).
type Rank struct {
	Level             int   `json:"level"`
	Capacity          int   `json:"capacity"`
	ExpToNext         int64 `json:"exp_to_next"`
	SurveillanceBonus int   `json:"surveillance_bonus"`
	RetrievalBonus    int   `json:"retrieval_bonus"`
	SpeedBonus        int   `json:"speed_bonus"`
	RangeBonus        int   `json:"range_bonus"`
	FavorBonus        int   `json:"favor_bonus"`
}

// RouteStats is community earnings data for a named route. Only gil figures
// come from here; fuel and repair numbers are computed from sector data.
type RouteStats struct {
	RouteName    string `json:"route_name"`
	GilPerSubDay int    `json:"gil_per_sub_day"`
	AvgExp       int64  `json:"avg_exp"`
	FCPoints     int    `json:"fc_points"`
}

// Provider is the lookup interface consumed by the normalizer, the formula
// engine, and the estimator. Lookups report absence rather than erroring; a
// missing row degrades the one dependent figure, never the whole view.
type Provider interface {
	Part(id int) (*Part, bool)
	Sector(id int) (*Sector, bool)
	SectorByLetter(letter string, mapID int) (*Sector, bool)
	Rank(level int) (*Rank, bool)
	SectorsByMap(mapID int) []*Sector
	StartingSector(mapID int) (*Sector, bool)
	RouteStats(routeName string) (*RouteStats, bool)
	KnownRoutes() []RouteStats
}
