package refdata

import "strings"

// RouteName spells a route from its sector ids by concatenating each sector's
// letter code. Sectors without a letter (starting points, unknown ids) are
// skipped. Returns "" when nothing resolves.
func RouteName(p Provider, points []int) string {
	if p == nil || len(points) == 0 {
		return ""
	}
	var b strings.Builder
	for _, id := range points {
		sector, ok := p.Sector(id)
		if !ok || sector.Letter == "" || sector.Letter == "-" {
			continue
		}
		b.WriteString(sector.Letter)
	}
	return b.String()
}

// RoutePoints is the reverse of RouteName: each letter resolves to a
// non-starting sector id. Letters prefer the map of the first resolved sector;
// a letter with no match anywhere is skipped. Maps are probed in id order
// until one has no sectors.
func RoutePoints(p Provider, name string) []int {
	if p == nil || name == "" {
		return nil
	}

	var points []int
	firstMap := 0
	for _, r := range strings.ToUpper(name) {
		letter := string(r)

		var sector *Sector
		if firstMap != 0 {
			if s, ok := p.SectorByLetter(letter, firstMap); ok {
				sector = s
			}
		}
		if sector == nil {
			for mapID := 1; len(p.SectorsByMap(mapID)) > 0; mapID++ {
				if s, ok := p.SectorByLetter(letter, mapID); ok {
					sector = s
					break
				}
			}
		}
		if sector == nil {
			continue
		}

		points = append(points, sector.ID)
		if firstMap == 0 {
			firstMap = sector.MapID
		}
	}
	return points
}
