package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/refdata"
)

// Tracker diffs successive fleet states and writes the resulting events. The
// first state seen for a company is recorded silently so a fresh start does
// not flood the log with "added" entries.
type Tracker struct {
	ref    refdata.Provider
	store  Store
	logger *slog.Logger

	mu          sync.Mutex
	initialized map[string]bool
}

// NewTracker returns a tracker writing to store. ref resolves sector letters
// for unlock events and may be nil.
func NewTracker(ref refdata.Provider, store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		ref:         ref,
		store:       store,
		logger:      logger.With("component", "activity"),
		initialized: make(map[string]bool),
	}
}

// subState is the per-submarine slice of state the tracker compares.
type subState struct {
	level     int
	build     string
	route     string
	character string
}

type subKey struct {
	fcID string
	name string
}

// Seed marks the companies present in already-persisted data as known, so a
// restart does not report their whole fleet as newly added. Unaffiliated
// characters are not seeded.
func (t *Tracker) Seed(accounts []*fleet.Account) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, account := range accounts {
		for i := range account.Characters {
			fcID := fleet.FCKey(account.Characters[i].FCID)
			if fcID != "" && fcID != "0" {
				t.initialized[fcID] = true
			}
		}
	}
}

// FirstUpdate reports whether no state has been recorded for the company yet.
func (t *Tracker) FirstUpdate(fcID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.initialized[fcID]
}

// Diff compares the previous and current states and logs every detected
// change. Returns the number of events written; storage errors are logged and
// reported as zero.
func (t *Tracker) Diff(ctx context.Context, oldAccounts, newAccounts []*fleet.Account) int {
	if len(newAccounts) == 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(oldAccounts) == 0 {
		for _, account := range newAccounts {
			for i := range account.Characters {
				t.initialized[fleet.FCKey(account.Characters[i].FCID)] = true
			}
		}
		return 0
	}

	fcNames := fcNameMap(newAccounts)
	oldState := buildStateMap(oldAccounts)
	newState := buildStateMap(newAccounts)
	oldSectors := sectorsByFC(oldAccounts)
	newSectors := sectorsByFC(newAccounts)

	var events []Event
	now := time.Now().UTC()

	add := func(e Event) {
		e.ID = uuid.NewString()
		e.CreatedAt = now
		events = append(events, e)
	}

	for key, cur := range newState {
		fcName := fcNames[key.fcID]
		prev, seen := oldState[key]

		if !seen {
			if t.initialized[key.fcID] {
				details, _ := json.Marshal(map[string]int{"level": cur.level})
				add(Event{
					FCID:          key.fcID,
					FCName:        fcName,
					Type:          TypeSubmarineAdded,
					SubmarineName: key.name,
					CharacterName: cur.character,
					NewValue:      cur.build,
					Details:       string(details),
				})
			}
			continue
		}

		if prev.level < cur.level {
			add(Event{
				FCID:          key.fcID,
				FCName:        fcName,
				Type:          TypeLevelUp,
				SubmarineName: key.name,
				CharacterName: cur.character,
				OldValue:      strconv.Itoa(prev.level),
				NewValue:      strconv.Itoa(cur.level),
			})
		}
		if prev.build != "" && cur.build != "" && prev.build != cur.build {
			add(Event{
				FCID:          key.fcID,
				FCName:        fcName,
				Type:          TypeBuildChange,
				SubmarineName: key.name,
				CharacterName: cur.character,
				OldValue:      prev.build,
				NewValue:      cur.build,
			})
		}
		if prev.route != "" && cur.route != "" && prev.route != cur.route {
			add(Event{
				FCID:          key.fcID,
				FCName:        fcName,
				Type:          TypeRouteChange,
				SubmarineName: key.name,
				CharacterName: cur.character,
				OldValue:      prev.route,
				NewValue:      cur.route,
			})
		}
	}

	for key, prev := range oldState {
		if _, still := newState[key]; still {
			continue
		}
		if !t.initialized[key.fcID] {
			continue
		}
		add(Event{
			FCID:          key.fcID,
			FCName:        fcNames[key.fcID],
			Type:          TypeSubmarineRemoved,
			SubmarineName: key.name,
			CharacterName: prev.character,
			OldValue:      prev.build,
		})
	}

	for fcID, cur := range newSectors {
		prev := oldSectors[fcID]
		var unlocked []int
		for id := range cur {
			if !prev[id] {
				unlocked = append(unlocked, id)
			}
		}
		// An empty previous set means "unknown", not "none": suppress
		// rather than report every sector at once.
		if len(unlocked) == 0 || !t.initialized[fcID] || len(prev) == 0 {
			continue
		}

		sort.Ints(unlocked)
		names := t.sectorNames(unlocked)
		sort.Strings(names)
		details, _ := json.Marshal(map[string][]int{"sector_ids": unlocked})
		add(Event{
			FCID:     fcID,
			FCName:   fcNames[fcID],
			Type:     TypeSectorUnlock,
			NewValue: strings.Join(names, ", "),
			Details:  string(details),
		})
	}

	for _, account := range newAccounts {
		for i := range account.Characters {
			t.initialized[fleet.FCKey(account.Characters[i].FCID)] = true
		}
	}

	if len(events) == 0 {
		return 0
	}
	if err := t.store.AppendEvents(ctx, events); err != nil {
		t.logger.Warn("appending activity events", "error", err, "count", len(events))
		return 0
	}
	for i := range events {
		metrics.IncActivityEvent(events[i].Type)
	}
	return len(events)
}

func buildStateMap(accounts []*fleet.Account) map[subKey]subState {
	state := make(map[subKey]subState)
	for _, account := range accounts {
		for i := range account.Characters {
			char := &account.Characters[i]
			fcID := fleet.FCKey(char.FCID)
			for j := range char.Submarines {
				sub := &char.Submarines[j]
				if sub.Name == "" {
					continue
				}
				state[subKey{fcID: fcID, name: sub.Name}] = subState{
					level:     sub.Level,
					build:     sub.Build,
					route:     sub.RouteName,
					character: char.Name,
				}
			}
		}
	}
	return state
}

// fcNameMap collects company display names across all accounts, falling back
// to "FC-<id>" for companies no account has metadata for.
func fcNameMap(accounts []*fleet.Account) map[string]string {
	names := make(map[string]string)
	for _, account := range accounts {
		for fcID, info := range account.FCData {
			if info.Name != "" {
				names[fcID] = info.Name
			}
		}
		for i := range account.Characters {
			fcID := fleet.FCKey(account.Characters[i].FCID)
			if _, ok := names[fcID]; !ok {
				names[fcID] = fmt.Sprintf("FC-%s", fcID)
			}
		}
	}
	return names
}

// sectorsByFC unions every character's unlocked sectors per company.
func sectorsByFC(accounts []*fleet.Account) map[string]map[int]bool {
	out := make(map[string]map[int]bool)
	for _, account := range accounts {
		for i := range account.Characters {
			char := &account.Characters[i]
			fcID := fleet.FCKey(char.FCID)
			if out[fcID] == nil {
				out[fcID] = make(map[int]bool)
			}
			for _, id := range char.UnlockedSectors {
				out[fcID][id] = true
			}
		}
	}
	return out
}

func (t *Tracker) sectorNames(ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if t.ref != nil {
			if sector, ok := t.ref.Sector(id); ok {
				switch {
				case sector.Letter != "":
					names = append(names, sector.Letter)
					continue
				case sector.Name != "":
					names = append(names, sector.Name)
					continue
				}
			}
		}
		names = append(names, strconv.Itoa(id))
	}
	return names
}
