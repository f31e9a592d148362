package aggregator

import (
	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/refdata"
)

// FCGroup pools one company's submarines across every reporting account,
// together with the unlocked sector letters slot projections consult.
type FCGroup struct {
	FCID            string
	FCName          string
	World           string
	Submarines      []fleet.Submarine
	UnlockedLetters map[string]bool
}

// GroupByFC groups characters by company for the progression estimator.
// Unaffiliated characters are skipped. Only first-map sectors contribute
// unlock letters; slot gates live on that map.
func GroupByFC(accounts []*fleet.Account, ref refdata.Provider) []*FCGroup {
	groups := make(map[string]*FCGroup)
	var order []string

	for _, account := range accounts {
		for ci := range account.Characters {
			char := &account.Characters[ci]
			if char.FCID == 0 {
				continue
			}
			fcID := fleet.FCKey(char.FCID)

			group := groups[fcID]
			if group == nil {
				name := ""
				if info, ok := account.FC(char.FCID); ok {
					name = info.Name
				}
				if name == "" {
					name = "FC-" + fcID
				}
				group = &FCGroup{
					FCID:            fcID,
					FCName:          name,
					World:           char.World,
					UnlockedLetters: make(map[string]bool),
				}
				groups[fcID] = group
				order = append(order, fcID)
			}

			group.Submarines = append(group.Submarines, char.Submarines...)
			if ref == nil {
				continue
			}
			for _, id := range char.UnlockedSectors {
				if sector, ok := ref.Sector(id); ok && sector.MapID == 1 && sector.Letter != "" {
					group.UnlockedLetters[sector.Letter] = true
				}
			}
		}
	}

	out := make([]*FCGroup, 0, len(order))
	for _, id := range order {
		out = append(out, groups[id])
	}
	return out
}
