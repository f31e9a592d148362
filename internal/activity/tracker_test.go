package activity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/refdata"
)

type memStore struct {
	events []Event
	fail   bool
}

func (m *memStore) AppendEvents(_ context.Context, events []Event) error {
	if m.fail {
		return errors.New("store down")
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) RecentEvents(_ context.Context, limit int, _ Filter) ([]Event, error) {
	if limit > len(m.events) {
		limit = len(m.events)
	}
	return m.events[:limit], nil
}

func (m *memStore) FCEvents(_ context.Context, _ string, _, _ int, _ []string) ([]Event, int, error) {
	return m.events, len(m.events), nil
}

func (m *memStore) byType(eventType string) []Event {
	var out []Event
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func sectorProvider() *refdata.Memory {
	sectors := []refdata.Sector{
		{ID: 10, Letter: "J", MapID: 1},
		{ID: 15, Letter: "O", MapID: 1},
	}
	return refdata.NewMemory(nil, sectors, nil, nil)
}

func account(fcID int64, charName string, unlocked []int, subs ...fleet.Submarine) *fleet.Account {
	return &fleet.Account{
		Nickname: "test",
		FCData:   map[string]fleet.FCInfo{fleet.FCKey(fcID): {Name: "Deep Blue"}},
		Characters: []fleet.Character{{
			CID:             1,
			Name:            charName,
			FCID:            fcID,
			UnlockedSectors: unlocked,
			Submarines:      subs,
		}},
	}
}

func sub(name string, level int, build, route string) fleet.Submarine {
	return fleet.Submarine{Name: name, Level: level, Build: build, RouteName: route, ReturnTime: 1}
}

func TestDiffFirstUpdateSuppressed(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(sectorProvider(), store, nil)

	state := []*fleet.Account{account(9, "Theo", nil, sub("Alpha", 10, "SSSS", "J"))}
	if n := tr.Diff(context.Background(), nil, state); n != 0 {
		t.Errorf("first update logged %d events", n)
	}
	if len(store.events) != 0 {
		t.Errorf("events written on first update: %v", store.events)
	}
	if tr.FirstUpdate("9") {
		t.Error("company not marked after first update")
	}
}

func TestDiffDetectsChanges(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(sectorProvider(), store, nil)
	ctx := context.Background()

	before := []*fleet.Account{account(9, "Theo", []int{10},
		sub("Alpha", 49, "SSSS", "J"),
		sub("Beta", 20, "SSUC", "J"),
		sub("Gone", 5, "WWWW", ""),
	)}
	tr.Diff(ctx, nil, before) // establish baseline

	after := []*fleet.Account{account(9, "Theo", []int{10, 15},
		sub("Alpha", 50, "S+S+S+S+", "JO"),
		sub("Beta", 20, "SSUC", "J"),
		sub("Fresh", 1, "SSSS", ""),
	)}
	n := tr.Diff(ctx, before, after)
	if n != 6 {
		t.Fatalf("logged %d events, want 6 (level, build, route, added, removed, unlock)", n)
	}

	levelUps := store.byType(TypeLevelUp)
	if len(levelUps) != 1 || levelUps[0].OldValue != "49" || levelUps[0].NewValue != "50" {
		t.Errorf("level up events = %+v", levelUps)
	}
	if levelUps[0].SubmarineName != "Alpha" || levelUps[0].CharacterName != "Theo" {
		t.Errorf("level up attribution = %+v", levelUps[0])
	}
	if levelUps[0].FCName != "Deep Blue" {
		t.Errorf("fc name = %q", levelUps[0].FCName)
	}
	if levelUps[0].ID == "" || levelUps[0].CreatedAt.IsZero() {
		t.Error("event missing id or timestamp")
	}

	builds := store.byType(TypeBuildChange)
	if len(builds) != 1 || builds[0].NewValue != "S+S+S+S+" {
		t.Errorf("build change events = %+v", builds)
	}

	routes := store.byType(TypeRouteChange)
	if len(routes) != 1 || routes[0].OldValue != "J" || routes[0].NewValue != "JO" {
		t.Errorf("route change events = %+v", routes)
	}

	added := store.byType(TypeSubmarineAdded)
	if len(added) != 1 || added[0].SubmarineName != "Fresh" || !strings.Contains(added[0].Details, `"level":1`) {
		t.Errorf("added events = %+v", added)
	}

	removed := store.byType(TypeSubmarineRemoved)
	if len(removed) != 1 || removed[0].SubmarineName != "Gone" || removed[0].OldValue != "WWWW" {
		t.Errorf("removed events = %+v", removed)
	}

	unlocks := store.byType(TypeSectorUnlock)
	if len(unlocks) != 1 {
		t.Fatalf("unlock events = %+v", unlocks)
	}
	if unlocks[0].NewValue != "O" || !strings.Contains(unlocks[0].Details, "[15]") {
		t.Errorf("unlock event = %+v", unlocks[0])
	}
}

func TestDiffSuppressions(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(sectorProvider(), store, nil)
	ctx := context.Background()

	// Empty build or route on either side stays quiet, and a level decrease
	// is not a level up.
	before := []*fleet.Account{account(9, "Theo", nil,
		sub("Alpha", 50, "", "J"),
		sub("Beta", 30, "SSSS", ""),
	)}
	tr.Diff(ctx, nil, before)

	after := []*fleet.Account{account(9, "Theo", nil,
		sub("Alpha", 49, "SSSS", ""),
		sub("Beta", 30, "SSUC", "J"),
	)}
	n := tr.Diff(ctx, before, after)

	// Only Beta's build change qualifies: Alpha's old build and route-pair
	// transitions involve an empty side.
	if n != 1 {
		t.Fatalf("logged %d events, want 1: %+v", n, store.events)
	}
	if store.events[0].Type != TypeBuildChange || store.events[0].SubmarineName != "Beta" {
		t.Errorf("event = %+v", store.events[0])
	}
}

func TestDiffUnlockNeedsKnownBaseline(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(sectorProvider(), store, nil)
	ctx := context.Background()

	// Previous data had no unlock info at all: the full set appearing now is
	// "first real data", not a batch of unlocks.
	before := []*fleet.Account{account(9, "Theo", nil, sub("Alpha", 10, "SSSS", "J"))}
	tr.Diff(ctx, nil, before)

	after := []*fleet.Account{account(9, "Theo", []int{10, 15}, sub("Alpha", 10, "SSSS", "J"))}
	if n := tr.Diff(ctx, before, after); n != 0 {
		t.Errorf("logged %d events for baseline unlock data: %+v", n, store.events)
	}
}

func TestDiffNewCompanySuppressed(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(sectorProvider(), store, nil)
	ctx := context.Background()

	before := []*fleet.Account{account(9, "Theo", nil, sub("Alpha", 10, "SSSS", "J"))}
	tr.Diff(ctx, nil, before)

	// A whole new company appears: its subs are not "added" events.
	after := []*fleet.Account{
		account(9, "Theo", nil, sub("Alpha", 10, "SSSS", "J")),
		account(77, "Lyse", nil, sub("Newcomer", 30, "SSSS", "J")),
	}
	if n := tr.Diff(ctx, before, after); n != 0 {
		t.Errorf("logged %d events: %+v", n, store.events)
	}
	if tr.FirstUpdate("77") {
		t.Error("new company not marked after diff")
	}
}

func TestDiffStoreFailure(t *testing.T) {
	store := &memStore{fail: true}
	tr := NewTracker(sectorProvider(), store, nil)
	ctx := context.Background()

	before := []*fleet.Account{account(9, "Theo", nil, sub("Alpha", 49, "SSSS", "J"))}
	tr.Diff(ctx, nil, before)

	after := []*fleet.Account{account(9, "Theo", nil, sub("Alpha", 50, "SSSS", "J"))}
	if n := tr.Diff(ctx, before, after); n != 0 {
		t.Errorf("reported %d events despite store failure", n)
	}
}

func TestSeed(t *testing.T) {
	tr := NewTracker(nil, &memStore{}, nil)

	tr.Seed([]*fleet.Account{
		account(9, "Theo", nil, sub("Alpha", 10, "SSSS", "J")),
		account(0, "Solo", nil, sub("Indy", 10, "SSSS", "J")),
	})

	if tr.FirstUpdate("9") {
		t.Error("seeded company still reported as first update")
	}
	if !tr.FirstUpdate("0") {
		t.Error("unaffiliated marker seeded")
	}
}
