// Package aggregator owns the merged multi-source fleet state. Sources push
// raw payloads in; the aggregator normalizes them, carries unlock knowledge
// across partial payloads, feeds the activity and voyage trackers, and
// assembles the dashboard view on demand.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fleet_tracker/internal/activity"
	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/normalize"
	"fleet_tracker/internal/refdata"
	"fleet_tracker/internal/stats"
)

var (
	// ErrNoAccounts means a payload decoded but carried no usable account.
	ErrNoAccounts = errors.New("aggregator: payload contains no usable accounts")
	// ErrSourceNotFound means no state exists for the named source.
	ErrSourceNotFound = errors.New("aggregator: source not found")
)

// Bridge persists each source's merged raw payload between runs and supplies
// the company visibility list the view consults. A payload that was never
// saved loads as (nil, nil).
type Bridge interface {
	LoadRaw(ctx context.Context, sourceID string) ([]byte, error)
	SaveRaw(ctx context.Context, sourceID string, payload []byte) error
	DeleteRaw(ctx context.Context, sourceID string) error
	Sources(ctx context.Context) ([]string, error)
	HiddenFCs(ctx context.Context) (map[string]bool, error)
}

// sourceState is everything retained per telemetry source: the canonical
// merged payload, its normalized accounts, and arrival metadata.
type sourceState struct {
	raw        []byte
	accounts   []*fleet.Account
	sourceTime string
	receivedAt time.Time
}

// Manager is the single long-lived holder of fleet state. All mutation of
// the source map happens under mu; reads snapshot under mu and do their
// work outside it.
type Manager struct {
	normalizer *normalize.Normalizer
	ref        refdata.Provider
	bridge     Bridge
	activity   *activity.Tracker
	stats      *stats.Recorder
	logger     *slog.Logger

	mu         sync.Mutex
	sources    map[string]*sourceState
	lastUpdate time.Time
}

// New wires a manager. bridge, tracker, and recorder may each be nil; the
// corresponding ingest step is skipped. ref may be nil, which degrades route
// figures to zero.
func New(ref refdata.Provider, bridge Bridge, tracker *activity.Tracker, recorder *stats.Recorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		normalizer: normalize.New(ref),
		ref:        ref,
		bridge:     bridge,
		activity:   tracker,
		stats:      recorder,
		logger:     logger.With("component", "aggregator"),
		sources:    make(map[string]*sourceState),
	}
}

// LoadSaved restores every persisted source through the bridge and
// re-normalizes it. The restored state only seeds the activity and voyage
// baselines; no events are emitted for it.
func (m *Manager) LoadSaved(ctx context.Context) error {
	if m.bridge == nil {
		return nil
	}
	ids, err := m.bridge.Sources(ctx)
	if err != nil {
		return fmt.Errorf("listing saved sources: %w", err)
	}

	restored := 0
	for _, id := range ids {
		raw, err := m.bridge.LoadRaw(ctx, id)
		if err != nil {
			m.logger.Warn("loading saved payload", "source", id, "error", err)
			continue
		}
		if len(raw) == 0 {
			continue
		}
		accounts, sourceTime := m.normalizeAll(id, raw)
		if len(accounts) == 0 {
			continue
		}

		m.mu.Lock()
		m.sources[id] = &sourceState{raw: raw, accounts: accounts, sourceTime: sourceTime}
		m.mu.Unlock()

		if m.activity != nil {
			m.activity.Seed(accounts)
		}
		restored++
	}

	if m.stats != nil {
		m.stats.Prime(ctx)
	}
	if restored > 0 {
		m.logger.Info("restored saved sources", "sources", restored)
	}
	return nil
}

// Ingest merges one source's payload into the fleet state. Previously known
// unlock sets are folded in before the activity diff so a partial payload
// never registers as a loss. Returns the number of accounts stored.
//
// The payload may be a single account object in either wire schema, a bare
// array of them, or an {"accounts": [...]} envelope.
func (m *Manager) Ingest(ctx context.Context, sourceID string, raw []byte, arrival time.Time) (int, error) {
	start := time.Now()
	msgs, sourceTime, err := normalize.Split(raw)
	if err != nil {
		metrics.IncIngest(sourceID, "error")
		metrics.IncNormalizeError()
		return 0, err
	}
	if arrival.IsZero() {
		arrival = time.Now().UTC()
	}

	accounts := m.normalizeMessages(sourceID, msgs)
	if len(accounts) == 0 {
		metrics.IncIngest(sourceID, "error")
		return 0, ErrNoAccounts
	}

	m.mu.Lock()
	var oldAccounts []*fleet.Account
	if prev := m.sources[sourceID]; prev != nil {
		oldAccounts = prev.accounts
		mergeUnlockedSectors(oldAccounts, accounts)
	}
	merged, err := normalize.Marshal(accounts, sourceTime)
	if err != nil {
		m.mu.Unlock()
		metrics.IncIngest(sourceID, "error")
		return 0, fmt.Errorf("encoding canonical payload: %w", err)
	}
	m.sources[sourceID] = &sourceState{
		raw:        merged,
		accounts:   accounts,
		sourceTime: sourceTime,
		receivedAt: arrival,
	}
	m.lastUpdate = arrival
	m.mu.Unlock()

	events, voyages := 0, 0
	if m.activity != nil {
		events = m.activity.Diff(ctx, oldAccounts, accounts)
	}
	if m.stats != nil {
		voyages = m.stats.Observe(ctx, accounts, arrival)
	}
	if m.bridge != nil {
		// Best-effort; the in-memory state stays authoritative either way.
		if err := m.bridge.SaveRaw(ctx, sourceID, merged); err != nil {
			m.logger.Error("saving source payload", "source", sourceID, "error", err)
		}
	}

	metrics.IncIngest(sourceID, "ok")
	metrics.ObserveIngestDuration(time.Since(start).Seconds())
	m.logger.Info("source ingested",
		"source", sourceID, "accounts", len(accounts), "events", events, "voyages", voyages)
	return len(accounts), nil
}

// ClearSource drops a source's state and its persisted payload.
func (m *Manager) ClearSource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	_, ok := m.sources[sourceID]
	delete(m.sources, sourceID)
	m.mu.Unlock()
	if !ok {
		return ErrSourceNotFound
	}
	if m.bridge != nil {
		if err := m.bridge.DeleteRaw(ctx, sourceID); err != nil {
			return fmt.Errorf("deleting saved payload: %w", err)
		}
	}
	return nil
}

// Accounts returns the current normalized accounts across all sources in
// stable source order. The accounts are shared; treat them as read-only.
func (m *Manager) Accounts() []*fleet.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accountsLocked()
}

func (m *Manager) accountsLocked() []*fleet.Account {
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var accounts []*fleet.Account
	for _, id := range ids {
		accounts = append(accounts, m.sources[id].accounts...)
	}
	return accounts
}

// SourceInfo describes one source's ingestion state.
type SourceInfo struct {
	ID         string    `json:"id"`
	Accounts   int       `json:"accounts"`
	SourceTime string    `json:"source_time,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Sources lists every known source, sorted by id.
func (m *Manager) Sources() []SourceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]SourceInfo, 0, len(m.sources))
	for id, src := range m.sources {
		infos = append(infos, SourceInfo{
			ID:         id,
			Accounts:   len(src.accounts),
			SourceTime: src.sourceTime,
			ReceivedAt: src.receivedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// LastUpdated returns the arrival time of the most recent ingestion, zero
// when nothing has arrived yet.
func (m *Manager) LastUpdated() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdate
}

// normalizeAll splits a payload and normalizes its account messages.
func (m *Manager) normalizeAll(sourceID string, raw []byte) ([]*fleet.Account, string) {
	msgs, sourceTime, err := normalize.Split(raw)
	if err != nil {
		m.logger.Warn("splitting payload", "source", sourceID, "error", err)
		return nil, ""
	}
	return m.normalizeMessages(sourceID, msgs), sourceTime
}

// normalizeMessages converts account messages to the canonical model,
// skipping records that fail to parse or carry no submarines.
func (m *Manager) normalizeMessages(sourceID string, msgs []json.RawMessage) []*fleet.Account {
	accounts := make([]*fleet.Account, 0, len(msgs))
	for _, msg := range msgs {
		account, err := m.normalizer.Account(msg, sourceID)
		if err != nil {
			m.logger.Warn("skipping account record", "source", sourceID, "error", err)
			metrics.IncNormalizeError()
			continue
		}
		if len(account.Characters) == 0 {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts
}

// renormalize re-runs normalization over each source's cached payload so
// freshly loaded reference data shows up without waiting for the next push.
// A source whose payload changed while unlocked is left alone; the
// concurrent ingest already normalized fresher data.
func (m *Manager) renormalize() {
	type snap struct {
		id  string
		raw []byte
	}
	m.mu.Lock()
	snaps := make([]snap, 0, len(m.sources))
	for id, src := range m.sources {
		snaps = append(snaps, snap{id: id, raw: src.raw})
	}
	m.mu.Unlock()

	for _, s := range snaps {
		accounts, _ := m.normalizeAll(s.id, s.raw)
		if len(accounts) == 0 {
			continue
		}
		m.mu.Lock()
		if cur, ok := m.sources[s.id]; ok && bytes.Equal(cur.raw, s.raw) {
			cur.accounts = accounts
		}
		m.mu.Unlock()
	}
}

// mergeUnlockedSectors folds previously known unlock sets into the incoming
// accounts. Sources that cannot observe a character's unlocks report an
// empty set; the union keeps earlier knowledge so a set never shrinks.
func mergeUnlockedSectors(old, current []*fleet.Account) {
	known := make(map[int64][]int)
	for _, account := range old {
		for i := range account.Characters {
			char := &account.Characters[i]
			if len(char.UnlockedSectors) > 0 {
				known[char.CID] = char.UnlockedSectors
			}
		}
	}
	if len(known) == 0 {
		return
	}
	for _, account := range current {
		for i := range account.Characters {
			char := &account.Characters[i]
			prev := known[char.CID]
			if len(prev) == 0 {
				continue
			}
			char.UnlockedSectors = unionSectors(prev, char.UnlockedSectors)
		}
	}
}

// unionSectors returns the sorted union of two sector id sets.
func unionSectors(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	merged := make([]int, 0, len(a)+len(b))
	for _, set := range [2][]int{a, b} {
		for _, id := range set {
			if !seen[id] {
				seen[id] = true
				merged = append(merged, id)
			}
		}
	}
	sort.Ints(merged)
	return merged
}
