package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"fleet_tracker/internal/activity"
	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/normalize"
	"fleet_tracker/internal/refdata"
	"fleet_tracker/internal/stats"
)

type memBridge struct {
	raw      map[string][]byte
	hidden   map[string]bool
	failSave bool
	saves    int
}

func newMemBridge() *memBridge {
	return &memBridge{raw: make(map[string][]byte), hidden: make(map[string]bool)}
}

func (b *memBridge) LoadRaw(_ context.Context, sourceID string) ([]byte, error) {
	return b.raw[sourceID], nil
}

func (b *memBridge) SaveRaw(_ context.Context, sourceID string, payload []byte) error {
	if b.failSave {
		return errors.New("disk full")
	}
	b.saves++
	b.raw[sourceID] = append([]byte(nil), payload...)
	return nil
}

func (b *memBridge) DeleteRaw(_ context.Context, sourceID string) error {
	delete(b.raw, sourceID)
	return nil
}

func (b *memBridge) Sources(context.Context) ([]string, error) {
	ids := make([]string, 0, len(b.raw))
	for id := range b.raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *memBridge) HiddenFCs(context.Context) (map[string]bool, error) {
	return b.hidden, nil
}

type eventLog struct {
	events []activity.Event
}

func (l *eventLog) AppendEvents(_ context.Context, events []activity.Event) error {
	l.events = append(l.events, events...)
	return nil
}

func (l *eventLog) RecentEvents(_ context.Context, limit int, _ activity.Filter) ([]activity.Event, error) {
	if limit > len(l.events) {
		limit = len(l.events)
	}
	return l.events[:limit], nil
}

func (l *eventLog) FCEvents(_ context.Context, _ string, _, _ int, _ []string) ([]activity.Event, int, error) {
	return l.events, len(l.events), nil
}

func (l *eventLog) byType(eventType string) []activity.Event {
	var out []activity.Event
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type memArchive struct {
	latest   map[stats.VoyageKey]int64
	recorded []stats.Voyage
}

func (m *memArchive) RecordVoyages(_ context.Context, voyages []stats.Voyage) error {
	m.recorded = append(m.recorded, voyages...)
	return nil
}

func (m *memArchive) LatestReturns(context.Context) (map[stats.VoyageKey]int64, error) {
	return m.latest, nil
}

func (m *memArchive) History(context.Context, stats.HistoryQuery) ([]stats.Voyage, int, error) {
	return nil, 0, nil
}

func (m *memArchive) Daily(context.Context, int, string) ([]stats.DailyStat, error) {
	return nil, nil
}

func (m *memArchive) Summary(context.Context, int) (stats.Summary, error) {
	return stats.Summary{}, nil
}

func viewProvider() *refdata.Memory {
	sectors := []refdata.Sector{
		{ID: 10, Name: "Deep-sea Site 1", Letter: "J", MapID: 1, RankReq: 10, CeruleumTankReq: 3},
		{ID: 15, Name: "Deep-sea Site 2", Letter: "O", MapID: 1, RankReq: 15, CeruleumTankReq: 4},
		{ID: 30, Name: "Glittering Basin", Letter: "J", MapID: 2, RankReq: 30},
	}
	routes := []refdata.RouteStats{{RouteName: "JO", GilPerSubDay: 100000}}
	return refdata.NewMemory(nil, sectors, nil, routes)
}

// newTestManager wires a manager over in-memory fakes. bridge may be nil for
// a bridge-less manager.
func newTestManager(bridge *memBridge) (*Manager, *eventLog) {
	ref := viewProvider()
	log := &eventLog{}
	tracker := activity.NewTracker(ref, log, nil)
	if bridge == nil {
		return New(ref, nil, tracker, nil, nil), log
	}
	return New(ref, bridge, tracker, nil, nil), log
}

const fcBlue = `{"9":{"name":"Deep Blue","gil":500000,"fc_points":1200}}`

func submarineJSON(name string, level int, returnTime int64, points string) string {
	return fmt.Sprintf(`{"name":%q,"return_time":%d,"level":%d,"current_route_points":%s}`,
		name, returnTime, level, points)
}

func characterJSON(cid, fcID int64, name, world string, slots, credits int, unlocked string, subs ...string) string {
	return fmt.Sprintf(`{"cid":%d,"name":%q,"world":%q,"fc_id":%d,"ceruleum":90,"repair_kits":60,"num_sub_slots":%d,"dive_credits":%d,"unlocked_sectors":%s,"submarines":[%s]}`,
		cid, name, world, fcID, slots, credits, unlocked, strings.Join(subs, ","))
}

func accountJSON(nickname, fcData string, chars ...string) string {
	return fmt.Sprintf(`{"nickname":%q,"fc_data":%s,"characters":[%s]}`,
		nickname, fcData, strings.Join(chars, ","))
}

func envelope(timestamp string, accounts ...string) []byte {
	if timestamp == "" {
		return []byte(fmt.Sprintf(`{"accounts":[%s]}`, strings.Join(accounts, ",")))
	}
	return []byte(fmt.Sprintf(`{"accounts":[%s],"timestamp":%q}`, strings.Join(accounts, ","), timestamp))
}

func TestIngestPayloadForms(t *testing.T) {
	future := time.Now().Add(20 * time.Hour).Unix()
	pushAccount := accountJSON("main", fcBlue,
		characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[10,15]",
			submarineJSON("Alpha", 60, future, "[10,15]")))
	fileAccount := fmt.Sprintf(`{"OfflineData":[{"CID":777,"Name":"Snap Char","World":"Odin","FCID":0,"NumSubSlots":2,"OfflineSubmarineData":[{"Name":"Peutes","ReturnTime":%d}],"AdditionalSubmarineData":{"Peutes":{"Level":10}}}]}`, future)

	tests := []struct {
		name    string
		payload []byte
		want    int
		wantErr error
	}{
		{name: "envelope", payload: envelope("", pushAccount), want: 1},
		{name: "bare array", payload: []byte("[" + pushAccount + "," + fileAccount + "]"), want: 2},
		{name: "single push object", payload: []byte(pushAccount), want: 1},
		{name: "single file snapshot", payload: []byte(fileAccount), want: 1},
		{name: "empty envelope", payload: envelope(""), wantErr: ErrNoAccounts},
		{name: "characters without submarines", payload: []byte(accountJSON("main", fcBlue, characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[]"))), wantErr: ErrNoAccounts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(nil)
			n, err := m.Ingest(context.Background(), "plugin:test", tt.payload, time.Time{})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Ingest error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Ingest: %v", err)
			}
			if n != tt.want {
				t.Errorf("Ingest stored %d accounts, want %d", n, tt.want)
			}
		})
	}

	t.Run("malformed", func(t *testing.T) {
		m, _ := newTestManager(nil)
		if _, err := m.Ingest(context.Background(), "plugin:test", []byte("{not json"), time.Time{}); err == nil {
			t.Fatal("Ingest accepted malformed payload")
		}
	})
}

func TestIngestAndFleetView(t *testing.T) {
	ctx := context.Background()
	bridge := newMemBridge()
	m, _ := newTestManager(bridge)

	future := time.Now().Add(30 * time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()
	payload := envelope("2026-03-01T10:00:00Z",
		accountJSON("main", fcBlue,
			characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[10,15]",
				submarineJSON("Alpha", 85, future, "[10,15]"),
				submarineJSON("Bravo", 40, past, "[]"))))

	n, err := m.Ingest(ctx, "plugin:alice", payload, time.Time{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 1 {
		t.Fatalf("Ingest stored %d accounts, want 1", n)
	}
	if bridge.saves != 1 {
		t.Errorf("bridge saves = %d, want 1", bridge.saves)
	}

	view := m.FleetView(ctx, false)
	s := view.Summary
	if s.TotalSubs != 2 || s.ReadySubs != 1 || s.VoyagingSubs != 1 {
		t.Errorf("counters = total %d ready %d voyaging %d, want 2/1/1", s.TotalSubs, s.ReadySubs, s.VoyagingSubs)
	}
	if s.LevelingSubs != 1 || s.FarmingSubs != 1 {
		t.Errorf("leveling %d farming %d, want 1/1", s.LevelingSubs, s.FarmingSubs)
	}
	if s.TotalGilPerDay != 100000 {
		t.Errorf("total gil/day = %d, want 100000", s.TotalGilPerDay)
	}
	if s.FCCount != 1 || s.AccountCount != 1 {
		t.Errorf("fc count %d account count %d, want 1/1", s.FCCount, s.AccountCount)
	}
	if len(s.RegionCounts) != len(fleet.Regions) {
		t.Errorf("region counts has %d keys, want %d", len(s.RegionCounts), len(fleet.Regions))
	}
	if s.RegionCounts["NA"] != 1 {
		t.Errorf("NA region count = %d, want 1", s.RegionCounts["NA"])
	}
	if s.LastUpdated == "" {
		t.Error("last updated not set after ingest")
	}

	if len(view.FCSummaries) != 1 {
		t.Fatalf("fc summaries = %d, want 1", len(view.FCSummaries))
	}
	fc := view.FCSummaries[0]
	if fc.FCID != "9" || fc.FCName != "Deep Blue" {
		t.Errorf("fc identity = %s/%s, want 9/Deep Blue", fc.FCID, fc.FCName)
	}
	if fc.FCGil != 500000 || fc.FCPoints != 1200 {
		t.Errorf("fc treasury = %d gil %d points, want 500000/1200", fc.FCGil, fc.FCPoints)
	}
	if fc.Region != "NA" || fc.World != "Gilgamesh" {
		t.Errorf("fc location = %s/%s, want NA/Gilgamesh", fc.Region, fc.World)
	}
	if len(fc.Accounts) != 1 || fc.Accounts[0] != "main" {
		t.Errorf("fc accounts = %v, want [main]", fc.Accounts)
	}
	if len(fc.Characters) != 1 || fc.Characters[0].Name != "Theo Melda" {
		t.Errorf("fc characters = %v", fc.Characters)
	}
	if fc.TotalSubs != 2 || fc.ReadySubs != 1 || fc.LevelingSubs != 1 {
		t.Errorf("fc counters = %d/%d/%d, want 2/1/1", fc.TotalSubs, fc.ReadySubs, fc.LevelingSubs)
	}
	if fc.Mode != "mixed" {
		t.Errorf("fc mode = %q, want mixed", fc.Mode)
	}
	if fc.GilPerDay != 100000 {
		t.Errorf("fc gil/day = %d, want 100000", fc.GilPerDay)
	}
	if len(fc.Routes) != 1 || fc.Routes[0] != "JO" {
		t.Errorf("fc routes = %v, want [JO]", fc.Routes)
	}
	if fc.UnifiedRoute == nil || *fc.UnifiedRoute != "JO" {
		t.Errorf("unified route = %v, want JO", fc.UnifiedRoute)
	}
	if fc.UnifiedCharacter == nil || *fc.UnifiedCharacter != "Theo Melda" {
		t.Errorf("unified character = %v, want Theo Melda", fc.UnifiedCharacter)
	}
	if fc.HasDuplicateSubs {
		t.Error("duplicate flag set for a single four-slot character")
	}
	if fc.SoonestReturn == nil || fc.SoonestReturn.Name != "Bravo" || fc.SoonestReturn.Hours != 0 {
		t.Errorf("soonest return = %+v, want Bravo at 0h", fc.SoonestReturn)
	}
	wantReturn := time.Unix(past, 0).UTC().Format(time.RFC3339)
	if fc.SoonestReturnTime == nil || *fc.SoonestReturnTime != wantReturn {
		t.Errorf("soonest return time = %v, want %s", fc.SoonestReturnTime, wantReturn)
	}

	if len(view.Submarines) != 2 {
		t.Fatalf("flat list has %d rows, want 2", len(view.Submarines))
	}
	first, second := view.Submarines[0], view.Submarines[1]
	if first.Name != "Bravo" || second.Name != "Alpha" {
		t.Errorf("flat list order = %s, %s; want Bravo, Alpha", first.Name, second.Name)
	}
	if first.Status != string(fleet.StatusReady) || first.HoursRemaining != 0 {
		t.Errorf("ready row = %s at %.2fh", first.Status, first.HoursRemaining)
	}
	if second.Status != string(fleet.StatusActive) || second.HoursRemaining < 29 {
		t.Errorf("active row = %s at %.2fh", second.Status, second.HoursRemaining)
	}
	if second.Route != "JO" || second.GilPerDay != 100000 {
		t.Errorf("active row route = %s at %d gil/day, want JO/100000", second.Route, second.GilPerDay)
	}
	if second.ReturnTime != time.Unix(future, 0).UTC().Format(time.RFC3339) {
		t.Errorf("return time = %s", second.ReturnTime)
	}
	if second.ReturnTimeDisplay != time.Unix(future, 0).UTC().Format("15:04:05") {
		t.Errorf("return time display = %s", second.ReturnTimeDisplay)
	}

	sources := m.Sources()
	if len(sources) != 1 || sources[0].ID != "plugin:alice" {
		t.Fatalf("sources = %+v", sources)
	}
	if sources[0].Accounts != 1 || sources[0].SourceTime != "2026-03-01T10:00:00Z" {
		t.Errorf("source info = %+v", sources[0])
	}
	if m.LastUpdated().IsZero() {
		t.Error("last updated zero after ingest")
	}
}

func TestFleetViewUnaffiliated(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(nil)

	future := time.Now().Add(10 * time.Hour).Unix()
	payload := []byte(accountJSON("roamer", "{}",
		characterJSON(501, 0, "Free Agent", "Odin", 2, 0, "[]",
			submarineJSON("Drifter", 30, future, "[10,15]"))))
	if _, err := m.Ingest(ctx, "plugin:solo", payload, time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	view := m.FleetView(ctx, false)
	if view.Summary.TotalSubs != 1 || view.Summary.FCCount != 0 {
		t.Errorf("total %d fc count %d, want 1/0", view.Summary.TotalSubs, view.Summary.FCCount)
	}
	if len(view.FCSummaries) != 0 {
		t.Errorf("unaffiliated character produced %d fc summaries", len(view.FCSummaries))
	}
	if len(view.Submarines) != 1 {
		t.Fatalf("flat list has %d rows, want 1", len(view.Submarines))
	}
	row := view.Submarines[0]
	if row.FCID != "0" || row.FCName != "" {
		t.Errorf("unaffiliated row fc = %q/%q, want 0 and empty", row.FCID, row.FCName)
	}
	if row.GilPerDay != 100000 {
		t.Errorf("unaffiliated row gil/day = %d, want 100000", row.GilPerDay)
	}
	for region, count := range view.Summary.RegionCounts {
		if count != 0 {
			t.Errorf("region %s counted %d companies for an unaffiliated character", region, count)
		}
	}
	if view.SupplyForecast.TotalCeruleum != 90 {
		t.Errorf("unaffiliated supplies not counted: %d", view.SupplyForecast.TotalCeruleum)
	}
}

func TestIngestMergeUnlockedSectors(t *testing.T) {
	ctx := context.Background()
	bridge := newMemBridge()
	m, _ := newTestManager(bridge)
	future := time.Now().Add(10 * time.Hour).Unix()

	ingest := func(unlocked string) {
		t.Helper()
		payload := envelope("", accountJSON("main", fcBlue,
			characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, unlocked,
				submarineJSON("Alpha", 60, future, "[10,15]"))))
		if _, err := m.Ingest(ctx, "plugin:alice", payload, time.Time{}); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}
	unlockedNow := func(from *Manager) []int {
		t.Helper()
		accounts := from.Accounts()
		if len(accounts) != 1 || len(accounts[0].Characters) != 1 {
			t.Fatalf("unexpected account shape: %d accounts", len(accounts))
		}
		return accounts[0].Characters[0].UnlockedSectors
	}

	ingest("[10,15]")
	if got := fmt.Sprint(unlockedNow(m)); got != "[10 15]" {
		t.Fatalf("unlocked after first ingest = %s", got)
	}

	// A payload from a source that cannot see unlocks must not erase them.
	ingest("[]")
	if got := fmt.Sprint(unlockedNow(m)); got != "[10 15]" {
		t.Errorf("unlocked after empty ingest = %s, want [10 15]", got)
	}

	ingest("[30]")
	if got := fmt.Sprint(unlockedNow(m)); got != "[10 15 30]" {
		t.Errorf("unlocked after partial ingest = %s, want [10 15 30]", got)
	}

	// The union survives a restart because the persisted payload carries it.
	m2, _ := newTestManager(bridge)
	if err := m2.LoadSaved(ctx); err != nil {
		t.Fatalf("LoadSaved: %v", err)
	}
	if got := fmt.Sprint(unlockedNow(m2)); got != "[10 15 30]" {
		t.Errorf("unlocked after restart = %s, want [10 15 30]", got)
	}
}

func TestIngestLevelUpEvent(t *testing.T) {
	ctx := context.Background()
	m, log := newTestManager(nil)
	future := time.Now().Add(10 * time.Hour).Unix()

	payload := func(level int) []byte {
		return envelope("", accountJSON("main", fcBlue,
			characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[10,15]",
				submarineJSON("Alpha", level, future, "[10,15]"))))
	}

	if _, err := m.Ingest(ctx, "plugin:alice", payload(10), time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(log.events) != 0 {
		t.Fatalf("first ingest logged %d events", len(log.events))
	}

	if _, err := m.Ingest(ctx, "plugin:alice", payload(12), time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	ups := log.byType(activity.TypeLevelUp)
	if len(ups) != 1 {
		t.Fatalf("level changes logged %d level_up events, want 1", len(ups))
	}
	if ups[0].OldValue != "10" || ups[0].NewValue != "12" {
		t.Errorf("level_up values = %s -> %s, want 10 -> 12", ups[0].OldValue, ups[0].NewValue)
	}
	if len(log.events) != 1 {
		t.Errorf("total events = %d, want 1", len(log.events))
	}
}

func TestIngestPersistFailure(t *testing.T) {
	ctx := context.Background()
	bridge := newMemBridge()
	bridge.failSave = true
	m, _ := newTestManager(bridge)
	future := time.Now().Add(10 * time.Hour).Unix()

	payload := envelope("", accountJSON("main", fcBlue,
		characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[]",
			submarineJSON("Alpha", 60, future, "[10,15]"))))

	n, err := m.Ingest(ctx, "plugin:alice", payload, time.Time{})
	if err != nil {
		t.Fatalf("Ingest failed on a persistence error: %v", err)
	}
	if n != 1 {
		t.Fatalf("Ingest stored %d accounts, want 1", n)
	}
	if view := m.FleetView(ctx, false); view.Summary.TotalSubs != 1 {
		t.Errorf("memory state lost after persistence error: %d subs", view.Summary.TotalSubs)
	}
}

func TestLoadSavedRestores(t *testing.T) {
	ctx := context.Background()
	rt1 := time.Now().Add(5 * time.Hour).Unix()
	rt2 := time.Now().Add(17 * time.Hour).Unix()
	rt3 := time.Now().Add(29 * time.Hour).Unix()

	bridge := newMemBridge()
	bridge.raw["plugin:alice"] = envelope("2026-03-01T09:00:00Z",
		accountJSON("main", fcBlue,
			characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[10,15]",
				submarineJSON("Alpha", 10, rt1, "[10,15]"))))

	ref := viewProvider()
	log := &eventLog{}
	archive := &memArchive{}
	m := New(ref, bridge, activity.NewTracker(ref, log, nil), stats.NewRecorder(ref, archive, nil), nil)

	if err := m.LoadSaved(ctx); err != nil {
		t.Fatalf("LoadSaved: %v", err)
	}
	if len(log.events) != 0 {
		t.Fatalf("restore logged %d events, want 0", len(log.events))
	}
	if len(archive.recorded) != 0 {
		t.Fatalf("restore archived %d voyages, want 0", len(archive.recorded))
	}
	if got := len(m.Accounts()); got != 1 {
		t.Fatalf("restored %d accounts, want 1", got)
	}
	sources := m.Sources()
	if len(sources) != 1 || sources[0].SourceTime != "2026-03-01T09:00:00Z" {
		t.Errorf("restored source info = %+v", sources)
	}
	if view := m.FleetView(ctx, false); view.Summary.TotalSubs != 1 {
		t.Errorf("restored view has %d subs, want 1", view.Summary.TotalSubs)
	}

	// The restored state is the diff baseline: the next push reports only
	// what actually changed.
	payload := func(level int, rt int64) []byte {
		return envelope("", accountJSON("main", fcBlue,
			characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[10,15]",
				submarineJSON("Alpha", level, rt, "[10,15]"))))
	}
	if _, err := m.Ingest(ctx, "plugin:alice", payload(12, rt2), time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if ups := log.byType(activity.TypeLevelUp); len(ups) != 1 {
		t.Fatalf("post-restore ingest logged %d level_up events, want 1", len(ups))
	}
	if len(archive.recorded) != 0 {
		t.Fatalf("first observed state archived %d voyages, want 0", len(archive.recorded))
	}

	if _, err := m.Ingest(ctx, "plugin:alice", payload(12, rt3), time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(archive.recorded) != 1 {
		t.Fatalf("return-time change archived %d voyages, want 1", len(archive.recorded))
	}
	if archive.recorded[0].RouteName != "JO" || archive.recorded[0].SubmarineName != "Alpha" {
		t.Errorf("archived voyage = %+v", archive.recorded[0])
	}
}

func TestFleetViewHiddenFC(t *testing.T) {
	ctx := context.Background()
	bridge := newMemBridge()
	bridge.hidden["9"] = true
	m, _ := newTestManager(bridge)
	future := time.Now().Add(10 * time.Hour).Unix()

	payload := envelope("", accountJSON("main", fcBlue,
		characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[]",
			submarineJSON("Alpha", 60, future, "[10,15]"))))
	if _, err := m.Ingest(ctx, "plugin:alice", payload, time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	view := m.FleetView(ctx, false)
	if len(view.FCSummaries) != 0 || len(view.Submarines) != 0 {
		t.Errorf("hidden company leaked: %d summaries, %d rows", len(view.FCSummaries), len(view.Submarines))
	}
	if view.Summary.TotalSubs != 0 || view.Summary.FCCount != 0 {
		t.Errorf("hidden company counted: total %d fc %d", view.Summary.TotalSubs, view.Summary.FCCount)
	}
	if view.Summary.AccountCount != 1 {
		t.Errorf("account count = %d, want 1", view.Summary.AccountCount)
	}
	if view.SupplyForecast.TotalCeruleum != 0 {
		t.Errorf("hidden company supplies counted: %d", view.SupplyForecast.TotalCeruleum)
	}
}

func TestFleetViewDuplicateFlag(t *testing.T) {
	future := time.Now().Add(10 * time.Hour).Unix()
	twoSubs := func(cid int64, char, first, second string) string {
		return accountJSON("acct-"+char, fcBlue,
			characterJSON(cid, 9, char, "Gilgamesh", 4, 0, "[]",
				submarineJSON(first, 60, future, "[10,15]"),
				submarineJSON(second, 60, future, "[10,15]")))
	}

	tests := []struct {
		name     string
		payloads map[string]string
		want     bool
	}{
		{
			name: "two characters in one company",
			payloads: map[string]string{
				"plugin:alice": twoSubs(101, "Theo Melda", "Alpha", "Bravo"),
				"plugin:bob":   twoSubs(202, "Io Brightwing", "Fafnir", "Leviathan"),
			},
			want: true,
		},
		{
			name: "same character from two sources",
			payloads: map[string]string{
				"plugin:alice": twoSubs(101, "Theo Melda", "Alpha", "Bravo"),
				"plugin:bob":   twoSubs(101, "Theo Melda", "Alpha", "Bravo"),
			},
			want: false,
		},
		{
			name: "one character past the slot ceiling",
			payloads: map[string]string{
				"plugin:alice": accountJSON("main", fcBlue,
					characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[]",
						submarineJSON("S1", 60, future, "[10,15]"),
						submarineJSON("S2", 60, future, "[10,15]"),
						submarineJSON("S3", 60, future, "[10,15]"),
						submarineJSON("S4", 60, future, "[10,15]"),
						submarineJSON("S5", 60, future, "[10,15]"))),
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, _ := newTestManager(nil)
			for sourceID, account := range tt.payloads {
				if _, err := m.Ingest(ctx, sourceID, []byte(account), time.Time{}); err != nil {
					t.Fatalf("Ingest %s: %v", sourceID, err)
				}
			}
			view := m.FleetView(ctx, false)
			if len(view.FCSummaries) != 1 {
				t.Fatalf("fc summaries = %d, want 1", len(view.FCSummaries))
			}
			if got := view.FCSummaries[0].HasDuplicateSubs; got != tt.want {
				t.Errorf("duplicate flag = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiveCreditGating(t *testing.T) {
	future := time.Now().Add(10 * time.Hour).Unix()
	tests := []struct {
		name       string
		slots      int
		credits    int
		wantNeeds  bool
		wantNeeded int
	}{
		{name: "short of the next slot", slots: 1, credits: 1, wantNeeds: true, wantNeeded: 2},
		{name: "saved enough", slots: 1, credits: 5},
		{name: "all slots unlocked", slots: 4, credits: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, _ := newTestManager(nil)
			payload := envelope("", accountJSON("main", fcBlue,
				characterJSON(101, 9, "Theo Melda", "Gilgamesh", tt.slots, tt.credits, "[]",
					submarineJSON("Alpha", 60, future, "[10,15]"))))
			if _, err := m.Ingest(ctx, "plugin:alice", payload, time.Time{}); err != nil {
				t.Fatalf("Ingest: %v", err)
			}
			view := m.FleetView(ctx, false)
			if len(view.FCSummaries) != 1 {
				t.Fatalf("fc summaries = %d, want 1", len(view.FCSummaries))
			}
			fc := view.FCSummaries[0]
			if fc.UnlockedSlots != tt.slots || fc.DiveCredits != tt.credits {
				t.Errorf("slots/credits = %d/%d, want %d/%d", fc.UnlockedSlots, fc.DiveCredits, tt.slots, tt.credits)
			}
			if fc.NeedsDiveCredits != tt.wantNeeds || fc.DiveCreditsNeeded != tt.wantNeeded {
				t.Errorf("gating = %v need %d, want %v need %d",
					fc.NeedsDiveCredits, fc.DiveCreditsNeeded, tt.wantNeeds, tt.wantNeeded)
			}
		})
	}
}

func TestClearSource(t *testing.T) {
	ctx := context.Background()
	bridge := newMemBridge()
	m, _ := newTestManager(bridge)
	future := time.Now().Add(10 * time.Hour).Unix()

	payload := envelope("", accountJSON("main", fcBlue,
		characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[]",
			submarineJSON("Alpha", 60, future, "[10,15]"))))
	if _, err := m.Ingest(ctx, "plugin:alice", payload, time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := m.ClearSource(ctx, "plugin:alice"); err != nil {
		t.Fatalf("ClearSource: %v", err)
	}
	if got := len(m.Accounts()); got != 0 {
		t.Errorf("accounts after clear = %d, want 0", got)
	}
	if _, ok := bridge.raw["plugin:alice"]; ok {
		t.Error("persisted payload survived ClearSource")
	}
	if err := m.ClearSource(ctx, "plugin:alice"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("second ClearSource = %v, want ErrSourceNotFound", err)
	}
}

func TestSupplyForecast(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(nil)

	empty := m.FleetView(ctx, false)
	if empty.SupplyForecast.DaysUntilRestock != 999.0 {
		t.Errorf("empty restock = %v, want 999", empty.SupplyForecast.DaysUntilRestock)
	}
	if empty.SupplyForecast.LimitingResource != "none" || empty.SupplyForecast.LimitingFC != nil {
		t.Errorf("empty limits = %q/%v", empty.SupplyForecast.LimitingResource, empty.SupplyForecast.LimitingFC)
	}

	future := time.Now().Add(10 * time.Hour).Unix()
	payload := envelope("", accountJSON("main", fcBlue,
		characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[]",
			submarineJSON("Alpha", 60, future, "[10,15]"))))
	if _, err := m.Ingest(ctx, "plugin:alice", payload, time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	view := m.FleetView(ctx, false)
	f := view.SupplyForecast
	if f.TotalCeruleum != 90 || f.TotalRepairKits != 60 {
		t.Errorf("totals = %d/%d, want 90/60", f.TotalCeruleum, f.TotalRepairKits)
	}
	if f.CeruleumPerDay != 9.0 || f.KitsPerDay != 1.33 {
		t.Errorf("burn rates = %v/%v, want 9/1.33", f.CeruleumPerDay, f.KitsPerDay)
	}
	if f.DaysUntilRestock != 10.0 {
		t.Errorf("restock = %v, want 10", f.DaysUntilRestock)
	}
	if f.LimitingResource != "ceruleum" {
		t.Errorf("limiting resource = %q, want ceruleum", f.LimitingResource)
	}
	if f.LimitingFC == nil || *f.LimitingFC != "Deep Blue" {
		t.Errorf("limiting fc = %v, want Deep Blue", f.LimitingFC)
	}

	fc := view.FCSummaries[0]
	if fc.DaysUntilRestock == nil || *fc.DaysUntilRestock != 10.0 {
		t.Errorf("fc restock = %v, want 10", fc.DaysUntilRestock)
	}
	if fc.LimitingResource == nil || *fc.LimitingResource != "ceruleum" {
		t.Errorf("fc limiting resource = %v, want ceruleum", fc.LimitingResource)
	}
	if fc.CeruleumPerDay != 9.0 || fc.KitsPerDay != 1.33 {
		t.Errorf("fc burn rates = %v/%v, want 9/1.33", fc.CeruleumPerDay, fc.KitsPerDay)
	}
}

func TestFleetViewRegionPartition(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(nil)
	future := time.Now().Add(10 * time.Hour).Unix()

	payload := envelope("",
		accountJSON("alice", fcBlue,
			characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 0, "[]",
				submarineJSON("Alpha", 60, future, "[10,15]"))),
		accountJSON("bob", `{"12":{"name":"Crimson Tide","gil":1,"fc_points":1}}`,
			characterJSON(202, 12, "Io Brightwing", "Ragnarok", 4, 0, "[]",
				submarineJSON("Fafnir", 60, future, "[10,15]"))),
		accountJSON("eve", `{"77":{"name":"Lost Cartel","gil":1,"fc_points":1}}`,
			characterJSON(303, 77, "Nix Void", "Atlantis", 4, 0, "[]",
				submarineJSON("Kraken", 60, future, "[10,15]"))))
	if _, err := m.Ingest(ctx, "plugin:multi", payload, time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	view := m.FleetView(ctx, false)
	counts := view.Summary.RegionCounts
	if counts["NA"] != 1 || counts["EU"] != 1 || counts["Unknown"] != 1 {
		t.Errorf("region counts = %v", counts)
	}
	sum := 0
	for _, region := range fleet.Regions {
		sum += counts[region]
	}
	if sum != view.Summary.FCCount {
		t.Errorf("region counts sum %d, fc count %d", sum, view.Summary.FCCount)
	}
}

func TestMarshalRoundTripThroughBridge(t *testing.T) {
	ctx := context.Background()
	bridge := newMemBridge()
	m, _ := newTestManager(bridge)
	future := time.Now().Add(10 * time.Hour).Unix()

	payload := envelope("2026-03-01T10:00:00Z", accountJSON("main", fcBlue,
		characterJSON(101, 9, "Theo Melda", "Gilgamesh", 4, 3, "[10,15]",
			submarineJSON("Alpha", 60, future, "[10,15]"))))
	if _, err := m.Ingest(ctx, "plugin:alice", payload, time.Time{}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	saved := bridge.raw["plugin:alice"]
	if len(saved) == 0 {
		t.Fatal("nothing persisted")
	}
	msgs, ts, err := normalize.Split(saved)
	if err != nil {
		t.Fatalf("Split persisted payload: %v", err)
	}
	if len(msgs) != 1 || ts != "2026-03-01T10:00:00Z" {
		t.Fatalf("persisted envelope = %d messages, ts %q", len(msgs), ts)
	}
}
