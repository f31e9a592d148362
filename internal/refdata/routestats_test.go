package refdata

import (
	"strings"
	"testing"
)

func TestParseGilValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"plain", "118854", 118854},
		{"commas", "118,854", 118854},
		{"quoted commas", `"1,234,567"`, 1234567},
		{"k suffix", "475.4k", 475400},
		{"upper K", "12K", 12000},
		{"m suffix", "1.01m", 1010000},
		{"empty", "", 0},
		{"garbage", "n/a", 0},
		{"whitespace", "  42  ", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseGilValue(tt.input); got != tt.want {
				t.Errorf("ParseGilValue(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseRouteStatsCSV(t *testing.T) {
	csvData := `Route,Gil/Sub/Day,Avg EXP,FC Points
OJ,"118,854",678.0k,450
MROJZ,135.2k,"1.01m",500
route,0,0,0
ZZZ,0,0,0
MROJZ,"120,000",900.0k,480
,,,
HiddenTable,999999,0,0
`
	stats, err := ParseRouteStatsCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ParseRouteStatsCSV: %v", err)
	}

	if len(stats) != 2 {
		t.Fatalf("got %d routes, want 2: %+v", len(stats), stats)
	}

	if stats[0].RouteName != "OJ" || stats[0].GilPerSubDay != 118854 {
		t.Errorf("first route = %+v", stats[0])
	}
	if stats[0].AvgExp != 678000 {
		t.Errorf("OJ avg exp = %d, want 678000", stats[0].AvgExp)
	}

	// Duplicate route keeps the lower, conservative gil figure.
	if stats[1].RouteName != "MROJZ" || stats[1].GilPerSubDay != 120000 {
		t.Errorf("second route = %+v, want MROJZ at 120000", stats[1])
	}
}

func TestParseRouteStatsCSV_NoRouteColumn(t *testing.T) {
	if _, err := ParseRouteStatsCSV(strings.NewReader("A,B\n1,2\n")); err == nil {
		t.Fatal("expected error for missing Route column")
	}
}

func TestMemoryProvider(t *testing.T) {
	m := NewMemory(
		[]Part{{ID: 11, Slot: 0, Rank: 25, Speed: 20}},
		[]Sector{
			{ID: 1, Letter: "A", MapID: 1, RankReq: 1},
			{ID: 10, Letter: "J", MapID: 1, RankReq: 10},
			{ID: 999, Letter: "", MapID: 1, StartingPoint: true},
		},
		[]Rank{{Level: 50, SpeedBonus: 5, ExpToNext: 100000}},
		[]RouteStats{{RouteName: "OJ", GilPerSubDay: 118854}},
	)

	if p, ok := m.Part(11); !ok || p.Speed != 20 {
		t.Errorf("Part(11) = %+v, %v", p, ok)
	}
	if _, ok := m.Part(99); ok {
		t.Error("Part(99) should be absent")
	}

	if s, ok := m.SectorByLetter("J", 1); !ok || s.ID != 10 {
		t.Errorf("SectorByLetter(J,1) = %+v, %v", s, ok)
	}
	if _, ok := m.SectorByLetter("J", 2); ok {
		t.Error("SectorByLetter(J,2) should be absent")
	}

	if s, ok := m.StartingSector(1); !ok || s.ID != 999 {
		t.Errorf("StartingSector(1) = %+v, %v", s, ok)
	}

	byMap := m.SectorsByMap(1)
	if len(byMap) != 3 {
		t.Fatalf("SectorsByMap(1) has %d sectors, want 3", len(byMap))
	}
	if byMap[0].ID != 1 || byMap[2].ID != 999 {
		t.Errorf("SectorsByMap not ordered by id: %v, %v", byMap[0].ID, byMap[2].ID)
	}

	if rs, ok := m.RouteStats("OJ"); !ok || rs.GilPerSubDay != 118854 {
		t.Errorf("RouteStats(OJ) = %+v, %v", rs, ok)
	}
	if routes := m.KnownRoutes(); len(routes) != 1 || routes[0].RouteName != "OJ" {
		t.Errorf("KnownRoutes = %+v", routes)
	}
}
