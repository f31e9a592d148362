// Package fleet defines the canonical domain model shared by every component:
// accounts, characters, submarines, and the derived per-voyage figures. Raw
// telemetry in either wire schema is normalized into these types exactly once;
// everything downstream (aggregation, estimation, the API) works on them.
package fleet

import "time"

// Account is one telemetry source's view of the world: the characters it
// observes, free company metadata keyed by company id, and saved route plans
// keyed by plan GUID.
type Account struct {
	Nickname   string               `json:"nickname"`
	Characters []Character          `json:"characters"`
	FCData     map[string]FCInfo    `json:"fc_data,omitempty"`
	RoutePlans map[string]RoutePlan `json:"route_plans,omitempty"`
}

// Character is a single game character and the submarines it operates.
// FCID 0 means unaffiliated. UnlockedSectors only ever grows across merges;
// sources that cannot observe a character's unlocks report an empty set and
// must not erase previously known sectors.
type Character struct {
	CID             int64       `json:"cid"`
	Name            string      `json:"name"`
	World           string      `json:"world"`
	FCID            int64       `json:"fc_id"`
	Gil             int64       `json:"gil"`
	Ceruleum        int         `json:"ceruleum"`
	RepairKits      int         `json:"repair_kits"`
	NumSubSlots     int         `json:"num_sub_slots"`
	DiveCredits     int         `json:"dive_credits,omitempty"`
	UnlockedSectors []int       `json:"unlocked_sectors,omitempty"`
	Submarines      []Submarine `json:"submarines"`
}

// Submarine is one long-running voyage task. Status is never stored on it;
// call StatusAt with the wall clock instead. DurationHours is nil when the
// route or parts cannot be resolved against reference data.
type Submarine struct {
	Name          string           `json:"name"`
	Level         int              `json:"level"`
	CurrentExp    int64            `json:"current_exp"`
	NextLevelExp  int64            `json:"next_level_exp"`
	ExpProgress   float64          `json:"exp_progress"`
	Build         string           `json:"build"`
	Parts         []string         `json:"parts,omitempty"`
	PartItemIDs   [4]int           `json:"part_item_ids"`
	PartRowIDs    []int            `json:"part_row_ids,omitempty"`
	RoutePoints   []int            `json:"route_points,omitempty"`
	RouteName     string           `json:"route"`
	SelectedRoute string           `json:"selected_route,omitempty"`
	ReturnTime    int64            `json:"return_time"`
	Enabled       bool             `json:"enabled"`
	DurationHours *float64         `json:"duration_hours,omitempty"`
	Consumption   *ConsumptionRate `json:"consumption,omitempty"`
}

// FCInfo is free company metadata as reported by a source.
type FCInfo struct {
	Name        string `json:"name"`
	Gil         int64  `json:"gil"`
	FCPoints    int64  `json:"fc_points"`
	HolderChara string `json:"holder_chara,omitempty"`
}

// RoutePlan is a saved named route used as a fallback when a submarine
// reports no live route.
type RoutePlan struct {
	Name   string `json:"name"`
	Points []int  `json:"points"`
}

// ConsumptionRate is the derived resource burn for one submarine. Per-day
// figures already account for voyage duration.
type ConsumptionRate struct {
	TanksPerVoyage     float64 `json:"tanks_per_voyage"`
	KitsPerVoyage      float64 `json:"kits_per_voyage"`
	TanksPerDay        float64 `json:"tanks_per_day"`
	KitsPerDay         float64 `json:"kits_per_day"`
	VoyagesUntilRepair int     `json:"voyages_until_repair"`
	DurationHours      float64 `json:"duration_hours"`
}

// ReturnAt returns the submarine's scheduled completion as a time.Time.
func (s *Submarine) ReturnAt() time.Time {
	return time.Unix(s.ReturnTime, 0).UTC()
}

// HasRoute returns true when the submarine reports a live route.
func (s *Submarine) HasRoute() bool {
	return len(s.RoutePoints) > 0
}

// SubCount returns the number of submarines across all characters.
func (a *Account) SubCount() int {
	n := 0
	for i := range a.Characters {
		n += len(a.Characters[i].Submarines)
	}
	return n
}

// FC returns the company metadata for the given id, if the account carries it.
func (a *Account) FC(fcID int64) (FCInfo, bool) {
	if a.FCData == nil {
		return FCInfo{}, false
	}
	info, ok := a.FCData[FCKey(fcID)]
	return info, ok
}

// Plan returns the saved route plan with the given GUID.
func (a *Account) Plan(guid string) (RoutePlan, bool) {
	if a.RoutePlans == nil || guid == "" {
		return RoutePlan{}, false
	}
	p, ok := a.RoutePlans[guid]
	return p, ok
}
