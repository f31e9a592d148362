// Package normalize converts raw fleet telemetry into the canonical domain
// model. Two wire schemas exist: the PascalCase client snapshot file, and the
// lowercase push payload sent live by the plugin. Both funnel into
// fleet.Account so nothing downstream ever sees a wire shape.
package normalize

import (
	"encoding/json"
	"strconv"
)

// FlexInt64 handles JSON fields that can be either string or number.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	// Try as number first
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	// Try as string
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*f = 0
			return nil // Silently ignore unparseable IDs
		}
		*f = FlexInt64(i)
		return nil
	}

	*f = 0
	return nil
}

// pushPayload is the live plugin schema: lowercase keys, ids may arrive as
// strings, and route plans may be a full object or a bare name.
type pushPayload struct {
	Nickname   string              `json:"nickname"`
	Characters []pushCharacter     `json:"characters"`
	FCData     map[string]pushFC   `json:"fc_data"`
	RoutePlans map[string]pushPlan `json:"route_plans"`
}

type pushCharacter struct {
	CID             FlexInt64       `json:"cid"`
	Name            string          `json:"name"`
	World           string          `json:"world"`
	FCID            FlexInt64       `json:"fc_id"`
	Gil             int64           `json:"gil"`
	Ceruleum        int             `json:"ceruleum"`
	RepairKits      int             `json:"repair_kits"`
	NumSubSlots     int             `json:"num_sub_slots"`
	DiveCredits     int             `json:"dive_credits"`
	EnabledSubs     []string        `json:"enabled_subs"`
	UnlockedSectors []int           `json:"unlocked_sectors"`
	Submarines      []pushSubmarine `json:"submarines"`
}

type pushSubmarine struct {
	Name               string `json:"name"`
	ReturnTime         int64  `json:"return_time"`
	Level              int    `json:"level"`
	CurrentExp         int64  `json:"current_exp"`
	NextLevelExp       int64  `json:"next_level_exp"`
	Part1              int    `json:"part1"`
	Part2              int    `json:"part2"`
	Part3              int    `json:"part3"`
	Part4              int    `json:"part4"`
	PartRowIDs         []int  `json:"part_row_ids"`
	CurrentRoutePoints []int  `json:"current_route_points"`
	SelectedRoute      string `json:"selected_route"`
}

type pushFC struct {
	Name        string    `json:"name"`
	Gil         int64     `json:"gil"`
	FCPoints    int64     `json:"fc_points"`
	HolderChara FlexInt64 `json:"holder_chara"`
}

// pushPlan is either {"name": ..., "points": [...]} or a bare name string.
type pushPlan struct {
	Name   string `json:"name"`
	Points []int  `json:"points"`
}

func (p *pushPlan) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Name = s
		p.Points = nil
		return nil
	}

	type plain pushPlan
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*p = pushPlan(obj)
	return nil
}

// fileSnapshot is the client config file schema: PascalCase keys, characters
// under OfflineData, and per-submarine detail in a parallel map keyed by name.
type fileSnapshot struct {
	SubmarinePointPlans []filePlan        `json:"SubmarinePointPlans"`
	FCData              map[string]fileFC `json:"FCData"`
	OfflineData         []fileCharacter   `json:"OfflineData"`
}

type filePlan struct {
	GUID   string `json:"GUID"`
	Name   string `json:"Name"`
	Points []int  `json:"Points"`
}

type fileFC struct {
	Name        string `json:"Name"`
	Gil         int64  `json:"Gil"`
	FCPoints    int64  `json:"FCPoints"`
	HolderChara int64  `json:"HolderChara"`
}

type fileCharacter struct {
	CID                     int64                    `json:"CID"`
	Name                    string                   `json:"Name"`
	World                   string                   `json:"World"`
	FCID                    int64                    `json:"FCID"`
	Gil                     int64                    `json:"Gil"`
	Ceruleum                int                      `json:"Ceruleum"`
	RepairKits              int                      `json:"RepairKits"`
	NumSubSlots             int                      `json:"NumSubSlots"`
	EnabledSubs             []string                 `json:"EnabledSubs"`
	OfflineSubmarineData    []fileSubmarine          `json:"OfflineSubmarineData"`
	AdditionalSubmarineData map[string]fileSubDetail `json:"AdditionalSubmarineData"`
}

type fileSubmarine struct {
	Name       string `json:"Name"`
	ReturnTime int64  `json:"ReturnTime"`
}

// fileSubDetail carries the fields the snapshot keeps outside the submarine
// list. Points is a base64 blob of sector-id bytes.
type fileSubDetail struct {
	Level             int    `json:"Level"`
	CurrentExp        int64  `json:"CurrentExp"`
	NextLevelExp      int64  `json:"NextLevelExp"`
	Part1             int    `json:"Part1"`
	Part2             int    `json:"Part2"`
	Part3             int    `json:"Part3"`
	Part4             int    `json:"Part4"`
	Points            string `json:"Points"`
	SelectedPointPlan string `json:"SelectedPointPlan"`
}

func (d *fileSubDetail) partItemIDs() [4]int {
	return [4]int{d.Part1, d.Part2, d.Part3, d.Part4}
}

func (s *pushSubmarine) partItemIDs() [4]int {
	return [4]int{s.Part1, s.Part2, s.Part3, s.Part4}
}
