package aggregator

import (
	"context"
	"math"
	"sort"
	"time"

	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/refdata"
)

// View is the dashboard projection of the merged fleet state.
type View struct {
	Summary        Summary        `json:"summary"`
	SupplyForecast SupplyForecast `json:"supply_forecast"`
	FCSummaries    []*FCSummary   `json:"fc_summaries"`
	Submarines     []*SubView     `json:"submarines"`
}

// Summary is the global counter block.
type Summary struct {
	TotalSubs      int            `json:"total_subs"`
	ReadySubs      int            `json:"ready_subs"`
	VoyagingSubs   int            `json:"voyaging_subs"`
	FarmingSubs    int            `json:"farming_subs"`
	LevelingSubs   int            `json:"leveling_subs"`
	TotalGilPerDay int            `json:"total_gil_per_day"`
	FCCount        int            `json:"fc_count"`
	AccountCount   int            `json:"account_count"`
	RegionCounts   map[string]int `json:"region_counts"`
	LastUpdated    string         `json:"last_updated,omitempty"`
}

// SupplyForecast is the global consumable runway block. Supplies are held
// per company, so the global runway is the soonest any company runs dry.
type SupplyForecast struct {
	TotalCeruleum    int     `json:"total_ceruleum"`
	TotalRepairKits  int     `json:"total_repair_kits"`
	CeruleumPerDay   float64 `json:"ceruleum_per_day"`
	KitsPerDay       float64 `json:"kits_per_day"`
	DaysUntilRestock float64 `json:"days_until_restock"`
	LimitingResource string  `json:"limiting_resource"`
	LimitingFC       *string `json:"limiting_fc"`
}

// SoonestReturn names the next submarine back and in how many hours.
type SoonestReturn struct {
	Name  string  `json:"name"`
	Hours float64 `json:"hours"`
}

// CharacterRef ties a character to the account that reported it.
type CharacterRef struct {
	Name    string `json:"name"`
	World   string `json:"world"`
	Account string `json:"account"`
}

// FCSummary aggregates one free company across every source reporting it.
type FCSummary struct {
	FCID              string         `json:"fc_id"`
	FCName            string         `json:"fc_name"`
	FCGil             int64          `json:"fc_gil"`
	FCPoints          int64          `json:"fc_points"`
	Region            string         `json:"region"`
	World             string         `json:"world"`
	Accounts          []string       `json:"accounts"`
	Characters        []CharacterRef `json:"characters"`
	Submarines        []*SubView     `json:"submarines"`
	Routes            []string       `json:"routes"`
	UnifiedRoute      *string        `json:"unified_route"`
	UnifiedCharacter  *string        `json:"unified_character"`
	TotalSubs         int            `json:"total_subs"`
	ReadySubs         int            `json:"ready_subs"`
	LevelingSubs      int            `json:"leveling_subs"`
	Ceruleum          int            `json:"ceruleum"`
	RepairKits        int            `json:"repair_kits"`
	GilPerDay         int            `json:"gil_per_day"`
	CeruleumPerDay    float64        `json:"ceruleum_per_day"`
	KitsPerDay        float64        `json:"kits_per_day"`
	SoonestReturn     *SoonestReturn `json:"soonest_return"`
	SoonestReturnTime *string        `json:"soonest_return_time"`
	DaysUntilRestock  *float64       `json:"days_until_restock"`
	LimitingResource  *string        `json:"limiting_resource"`
	Mode              string         `json:"mode"`
	HasDuplicateSubs  bool           `json:"has_duplicate_subs"`
	DiveCredits       int            `json:"dive_credits"`
	UnlockedSlots     int            `json:"unlocked_slots"`
	NeedsDiveCredits  bool           `json:"needs_dive_credits"`
	DiveCreditsNeeded int            `json:"dive_credits_needed"`
}

// SubView is one submarine row, shared by the flat list and the per-company
// lists.
type SubView struct {
	Account           string   `json:"account"`
	Character         string   `json:"character"`
	World             string   `json:"world"`
	FCID              string   `json:"fc_id"`
	FCName            string   `json:"fc_name"`
	Name              string   `json:"name"`
	Status            string   `json:"status"`
	HoursRemaining    float64  `json:"hours_remaining"`
	ReturnTime        string   `json:"return_time"`
	ReturnTimeDisplay string   `json:"return_time_display"`
	Level             int      `json:"level"`
	Build             string   `json:"build"`
	Parts             []string `json:"parts"`
	Route             string   `json:"route"`
	ExpProgress       float64  `json:"exp_progress"`
	GilPerDay         int      `json:"gil_per_day"`
	Enabled           bool     `json:"enabled"`
}

// slotCosts is the dive-credit price of each submarine slot, in unlock
// order. Its length doubles as the slot ceiling a company can reach.
var slotCosts = [4]int{1, 3, 5, 7}

// defaultRestockDays is reported when no company burns supplies.
const defaultRestockDays = 999.0

// FleetView assembles the dashboard projection. Statuses and remaining
// hours derive from the wall clock at call time, never from cached values.
// force re-normalizes every cached payload first.
func (m *Manager) FleetView(ctx context.Context, force bool) *View {
	start := time.Now()
	if force {
		m.renormalize()
	}

	m.mu.Lock()
	accounts := m.accountsLocked()
	lastUpdate := m.lastUpdate
	m.mu.Unlock()

	hidden := map[string]bool{}
	if m.bridge != nil {
		loaded, err := m.bridge.HiddenFCs(ctx)
		if err != nil {
			m.logger.Warn("loading hidden companies", "error", err)
		} else if loaded != nil {
			hidden = loaded
		}
	}

	view := buildView(accounts, hidden, m.ref, lastUpdate, time.Now().UTC())

	counts := map[string]int{
		string(fleet.StatusReady):          0,
		string(fleet.StatusCompletingSoon): 0,
		string(fleet.StatusActive):         0,
	}
	for _, row := range view.Submarines {
		counts[row.Status]++
	}
	for status, n := range counts {
		metrics.SetSubmarines(status, n)
	}
	metrics.ObserveFleetViewDuration(time.Since(start).Seconds())
	return view
}

// fcScratch carries the per-company working state the finalize pass needs
// beyond the summary itself.
type fcScratch struct {
	summary      *FCSummary
	accountSeen  map[string]bool
	routeSeen    map[string]bool
	charSeen     map[string]bool
	soonestHours float64
	soonestSet   bool
}

// buildView assembles the projection from normalized accounts. Hidden
// companies are invisible everywhere; unaffiliated characters count in the
// global blocks and the flat list but get no company summary.
func buildView(accounts []*fleet.Account, hidden map[string]bool, ref refdata.Provider, lastUpdate, now time.Time) *View {
	view := &View{
		Summary:        Summary{RegionCounts: make(map[string]int, len(fleet.Regions))},
		SupplyForecast: SupplyForecast{LimitingResource: "none"},
		FCSummaries:    []*FCSummary{},
		Submarines:     []*SubView{},
	}
	for _, region := range fleet.Regions {
		view.Summary.RegionCounts[region] = 0
	}
	view.Summary.AccountCount = len(accounts)
	if !lastUpdate.IsZero() {
		view.Summary.LastUpdated = lastUpdate.UTC().Format(time.RFC3339)
	}

	scratch := make(map[string]*fcScratch)
	var order []string
	var totalTanksPerDay, totalKitsPerDay float64

	for _, account := range accounts {
		for ci := range account.Characters {
			char := &account.Characters[ci]
			fcID := fleet.FCKey(char.FCID)
			if char.FCID != 0 && hidden[fcID] {
				continue
			}

			fcName := ""
			var fc *fcScratch
			if char.FCID != 0 {
				info, hasInfo := account.FC(char.FCID)
				fcName = info.Name
				if fcName == "" {
					fcName = "FC-" + fcID
				}

				fc = scratch[fcID]
				if fc == nil {
					fc = &fcScratch{
						summary: &FCSummary{
							FCID:       fcID,
							FCName:     fcName,
							Region:     fleet.WorldRegion(char.World),
							World:      char.World,
							Accounts:   []string{},
							Characters: []CharacterRef{},
							Submarines: []*SubView{},
							Routes:     []string{},
						},
						accountSeen: make(map[string]bool),
						routeSeen:   make(map[string]bool),
						charSeen:    make(map[string]bool),
					}
					if hasInfo {
						fc.summary.FCGil = info.Gil
						fc.summary.FCPoints = info.FCPoints
					}
					scratch[fcID] = fc
					order = append(order, fcID)
				}

				if !fc.accountSeen[account.Nickname] {
					fc.accountSeen[account.Nickname] = true
					fc.summary.Accounts = append(fc.summary.Accounts, account.Nickname)
				}
				fc.charSeen[char.Name] = true
				fc.summary.Characters = append(fc.summary.Characters, CharacterRef{
					Name:    char.Name,
					World:   char.World,
					Account: account.Nickname,
				})
				fc.summary.Ceruleum += char.Ceruleum
				fc.summary.RepairKits += char.RepairKits
				fc.summary.DiveCredits += char.DiveCredits
				if char.NumSubSlots > fc.summary.UnlockedSlots {
					fc.summary.UnlockedSlots = char.NumSubSlots
				}
			}

			view.SupplyForecast.TotalCeruleum += char.Ceruleum
			view.SupplyForecast.TotalRepairKits += char.RepairKits

			for si := range char.Submarines {
				sub := &char.Submarines[si]
				status, hours := fleet.StatusAt(sub.ReturnTime, now)
				gil, known := routeGil(ref, sub.RouteName)
				leveling := sub.RouteName == "" || !known

				row := &SubView{
					Account:           account.Nickname,
					Character:         char.Name,
					World:             char.World,
					FCID:              fcID,
					FCName:            fcName,
					Name:              sub.Name,
					Status:            string(status),
					HoursRemaining:    round2(hours),
					ReturnTime:        sub.ReturnAt().Format(time.RFC3339),
					ReturnTimeDisplay: sub.ReturnAt().Format("15:04:05"),
					Level:             sub.Level,
					Build:             sub.Build,
					Parts:             sub.Parts,
					Route:             sub.RouteName,
					ExpProgress:       round1(sub.ExpProgress),
					GilPerDay:         gil,
					Enabled:           sub.Enabled,
				}
				view.Submarines = append(view.Submarines, row)

				view.Summary.TotalSubs++
				if status == fleet.StatusReady {
					view.Summary.ReadySubs++
				}
				if leveling {
					view.Summary.LevelingSubs++
				}
				view.Summary.TotalGilPerDay += gil

				var tanksPerDay, kitsPerDay float64
				if sub.Consumption != nil {
					tanksPerDay = sub.Consumption.TanksPerDay
					kitsPerDay = sub.Consumption.KitsPerDay
				}
				totalTanksPerDay += tanksPerDay
				totalKitsPerDay += kitsPerDay

				if fc == nil {
					continue
				}
				s := fc.summary
				s.TotalSubs++
				s.GilPerDay += gil
				if status == fleet.StatusReady {
					s.ReadySubs++
				}
				if leveling {
					s.LevelingSubs++
				}
				s.CeruleumPerDay += tanksPerDay
				s.KitsPerDay += kitsPerDay
				if sub.RouteName != "" && !fc.routeSeen[sub.RouteName] {
					fc.routeSeen[sub.RouteName] = true
					s.Routes = append(s.Routes, sub.RouteName)
				}
				if !fc.soonestSet || hours < fc.soonestHours {
					fc.soonestSet = true
					fc.soonestHours = hours
					s.SoonestReturn = &SoonestReturn{Name: sub.Name, Hours: hours}
					rt := row.ReturnTime
					s.SoonestReturnTime = &rt
				}
				s.Submarines = append(s.Submarines, row)
			}
		}
	}

	minRestock := defaultRestockDays
	var limitingFC, limitingResource string
	for _, fcID := range order {
		fc := scratch[fcID]
		s := fc.summary

		s.HasDuplicateSubs = s.TotalSubs > len(slotCosts) || len(fc.charSeen) > 1

		if len(s.Routes) == 1 {
			route := s.Routes[0]
			s.UnifiedRoute = &route
		}
		if len(fc.charSeen) == 1 {
			for name := range fc.charSeen {
				unified := name
				s.UnifiedCharacter = &unified
			}
		}
		if s.SoonestReturn != nil {
			s.SoonestReturn.Hours = round2(s.SoonestReturn.Hours)
		}

		if s.CeruleumPerDay > 0 && s.KitsPerDay > 0 {
			tankDays := float64(s.Ceruleum) / s.CeruleumPerDay
			kitDays := float64(s.RepairKits) / s.KitsPerDay
			days := round1(math.Min(tankDays, kitDays))
			s.DaysUntilRestock = &days
			resource := "kits"
			if tankDays < kitDays {
				resource = "ceruleum"
			}
			s.LimitingResource = &resource
			if days < minRestock {
				minRestock = days
				limitingFC = s.FCName
				limitingResource = resource
			}
		}

		s.CeruleumPerDay = round1(s.CeruleumPerDay)
		s.KitsPerDay = round2(s.KitsPerDay)

		switch {
		case s.TotalSubs == 0:
			s.Mode = "empty"
		case s.LevelingSubs == 0:
			s.Mode = "farming"
		case s.LevelingSubs == s.TotalSubs:
			s.Mode = "leveling"
		default:
			s.Mode = "mixed"
		}

		if s.UnlockedSlots < len(slotCosts) {
			cost := slotCosts[s.UnlockedSlots]
			s.NeedsDiveCredits = s.DiveCredits < cost
			if needed := cost - s.DiveCredits; needed > 0 {
				s.DiveCreditsNeeded = needed
			}
		}

		view.Summary.RegionCounts[s.Region]++
		view.FCSummaries = append(view.FCSummaries, s)
	}

	view.Summary.FCCount = len(view.FCSummaries)
	view.Summary.VoyagingSubs = view.Summary.TotalSubs - view.Summary.ReadySubs
	view.Summary.FarmingSubs = view.Summary.TotalSubs - view.Summary.LevelingSubs

	view.SupplyForecast.CeruleumPerDay = round1(totalTanksPerDay)
	view.SupplyForecast.KitsPerDay = round2(totalKitsPerDay)
	view.SupplyForecast.DaysUntilRestock = round1(minRestock)
	if limitingFC != "" {
		view.SupplyForecast.LimitingResource = limitingResource
		view.SupplyForecast.LimitingFC = &limitingFC
	}

	sort.SliceStable(view.Submarines, func(i, j int) bool {
		return view.Submarines[i].HoursRemaining < view.Submarines[j].HoursRemaining
	})

	return view
}

// routeGil resolves the community earnings figure for a route. The second
// return reports whether the route is a known production route at all.
func routeGil(ref refdata.Provider, routeName string) (int, bool) {
	if ref == nil || routeName == "" {
		return 0, false
	}
	stats, ok := ref.RouteStats(routeName)
	if !ok {
		return 0, false
	}
	return stats.GilPerSubDay, true
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
