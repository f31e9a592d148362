package refdata

import "sort"

// Memory is a Provider backed by in-process maps. It serves tests and the
// CLI's fixture mode, and is the cache layer the SQLite provider loads into.
type Memory struct {
	parts      map[int]*Part
	sectors    map[int]*Sector
	byLetter   map[letterKey]*Sector
	ranks      map[int]*Rank
	byMap      map[int][]*Sector
	starts     map[int]*Sector
	routeStats map[string]*RouteStats
}

type letterKey struct {
	letter string
	mapID  int
}

// NewMemory builds a provider from row slices. Later duplicates win.
func NewMemory(parts []Part, sectors []Sector, ranks []Rank, stats []RouteStats) *Memory {
	m := &Memory{
		parts:      make(map[int]*Part, len(parts)),
		sectors:    make(map[int]*Sector, len(sectors)),
		byLetter:   make(map[letterKey]*Sector, len(sectors)),
		ranks:      make(map[int]*Rank, len(ranks)),
		byMap:      make(map[int][]*Sector),
		starts:     make(map[int]*Sector),
		routeStats: make(map[string]*RouteStats, len(stats)),
	}
	for i := range parts {
		p := parts[i]
		m.parts[p.ID] = &p
	}
	for i := range sectors {
		s := sectors[i]
		m.sectors[s.ID] = &s
		m.byMap[s.MapID] = append(m.byMap[s.MapID], &s)
		if s.StartingPoint {
			m.starts[s.MapID] = &s
		} else if s.Letter != "" {
			m.byLetter[letterKey{s.Letter, s.MapID}] = &s
		}
	}
	for mapID := range m.byMap {
		sort.Slice(m.byMap[mapID], func(i, j int) bool {
			return m.byMap[mapID][i].ID < m.byMap[mapID][j].ID
		})
	}
	for i := range ranks {
		r := ranks[i]
		m.ranks[r.Level] = &r
	}
	for i := range stats {
		rs := stats[i]
		m.routeStats[rs.RouteName] = &rs
	}
	return m
}

// Part returns the part row with the given id.
func (m *Memory) Part(id int) (*Part, bool) {
	p, ok := m.parts[id]
	return p, ok
}

// Sector returns the sector row with the given id.
func (m *Memory) Sector(id int) (*Sector, bool) {
	s, ok := m.sectors[id]
	return s, ok
}

// SectorByLetter returns the non-starting sector with the given letter code
// on the given map.
func (m *Memory) SectorByLetter(letter string, mapID int) (*Sector, bool) {
	s, ok := m.byLetter[letterKey{letter, mapID}]
	return s, ok
}

// Rank returns the rank row for the given level.
func (m *Memory) Rank(level int) (*Rank, bool) {
	r, ok := m.ranks[level]
	return r, ok
}

// SectorsByMap returns all sectors on a map ordered by id.
func (m *Memory) SectorsByMap(mapID int) []*Sector {
	return m.byMap[mapID]
}

// StartingSector returns the map's voyage origin sector.
func (m *Memory) StartingSector(mapID int) (*Sector, bool) {
	s, ok := m.starts[mapID]
	return s, ok
}

// RouteStats returns earnings data for a route name.
func (m *Memory) RouteStats(routeName string) (*RouteStats, bool) {
	rs, ok := m.routeStats[routeName]
	return rs, ok
}

// KnownRoutes returns every route with earnings data, sorted by name.
func (m *Memory) KnownRoutes() []RouteStats {
	out := make([]RouteStats, 0, len(m.routeStats))
	for _, rs := range m.routeStats {
		out = append(out, *rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RouteName < out[j].RouteName })
	return out
}
