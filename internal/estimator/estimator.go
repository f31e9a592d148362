// Package estimator projects how long submarines take to reach a target
// level. The model is phase-driven: progression is split into level bands,
// each with an average experience-per-voyage and voyage duration derived from
// reference sector data, and three discovery-RNG tiers bracket the projection.
package estimator

import (
	"math"

	"fleet_tracker/internal/refdata"
)

// Tier selects the discovery-luck assumption for a projection.
type Tier string

const (
	TierOptimistic  Tier = "optimistic"
	TierExpected    Tier = "expected"
	TierPessimistic Tier = "pessimistic"
)

// Tiers in reporting order.
var Tiers = []Tier{TierOptimistic, TierExpected, TierPessimistic}

// Sector discovery chance per tier.
var discoveryRates = map[Tier]float64{
	TierOptimistic:  0.50,
	TierExpected:    0.25,
	TierPessimistic: 0.10,
}

// Average voyages to discover one sector, the inverse of the rate.
var voyagesPerDiscovery = map[Tier]float64{
	TierOptimistic:  2.0,
	TierExpected:    4.0,
	TierPessimistic: 10.0,
}

// Real-world inefficiency applied to every projection: delayed sends,
// repairs, suboptimal routes.
const inefficiencyMultiplier = 1.18

// Average voyage hours while still unlocking shallow sectors.
const earlyVoyageHours = 14

// maxLevel is the progression cap.
const maxLevel = 125

// MaxSlots is the most submarines one company can field.
const MaxSlots = 4

// phaseDef describes a level band before sector data is folded in.
type phaseDef struct {
	start, end       int
	mapID            int
	rankMin, rankMax int
	rngFactor        float64
}

// Discovery RNG only meaningfully affects the first map; the later maps are
// farmed on known routes.
var phaseDefinitions = []phaseDef{
	{1, 25, 1, 1, 25, 0.40},
	{25, 50, 1, 20, 50, 0.20},
	{50, 75, 2, 50, 70, 0.02},
	{75, 90, 3, 70, 90, 0.01},
	{90, 125, 4, 90, 105, 0.00},
}

type phase struct {
	start, end     int
	expPerVoyage   float64
	hoursPerVoyage float64
	rngFactor      float64
}

// Conservative per-phase throughput when sector data is unavailable.
var fallbackPhases = []phase{
	{1, 25, 200000, 20, 0.40},
	{25, 50, 800000, 50, 0.20},
	{50, 75, 1500000, 60, 0.02},
	{75, 90, 2500000, 80, 0.01},
	{90, 125, 4000000, 90, 0.00},
}

// Slot unlock gates: discovering the gate sector opens the slot. Paths list
// the sectors that still need discovering per gate; earlier gates chain into
// later ones.
type slotGate struct {
	sector   string
	sectorID int
	path     []string
}

var slotGates = map[int]slotGate{
	2: {sector: "J", sectorID: 10, path: []string{"E", "J"}},
	3: {sector: "O", sectorID: 15, path: []string{"N", "O"}},
	4: {sector: "T", sectorID: 20, path: []string{"S", "T"}},
}

// Estimator holds the loaded phase model. Construct once with New and share;
// all methods are read-only.
type Estimator struct {
	expToNext map[int]int64
	phases    []phase
}

// New builds an estimator from reference data. Missing rank rows fall back
// to an approximate experience curve; a phase with no eligible sectors falls
// back to its conservative fixed entry.
func New(ref refdata.Provider) *Estimator {
	e := &Estimator{expToNext: make(map[int]int64, maxLevel)}

	if ref != nil {
		for level := 1; level <= maxLevel; level++ {
			if rank, ok := ref.Rank(level); ok {
				e.expToNext[level] = rank.ExpToNext
			}
		}
	}
	if len(e.expToNext) == 0 {
		e.useFallback()
		return e
	}

	for _, def := range phaseDefinitions {
		var totalExp, totalMinutes float64
		count := 0
		for _, sector := range ref.SectorsByMap(def.mapID) {
			if sector.RankReq < def.rankMin || sector.RankReq > def.rankMax || sector.ExpReward <= 0 {
				continue
			}
			totalExp += float64(sector.ExpReward)
			totalMinutes += float64(sector.SurveyDurationMin)
			count++
		}

		if count == 0 {
			for _, fb := range fallbackPhases {
				if fb.start == def.start {
					e.phases = append(e.phases, fb)
					break
				}
			}
			continue
		}

		// Model a five-point voyage with ~30% travel overhead.
		expPerVoyage := totalExp / float64(count) * 5
		hoursPerVoyage := totalMinutes / float64(count) * 5 * 1.3 / 60

		// Early phases cannot run full routes yet.
		if def.start < 25 {
			expPerVoyage *= 0.6
			hoursPerVoyage *= 0.8
		}

		e.phases = append(e.phases, phase{
			start:          def.start,
			end:            def.end,
			expPerVoyage:   expPerVoyage,
			hoursPerVoyage: hoursPerVoyage,
			rngFactor:      def.rngFactor,
		})
	}

	if len(e.phases) == 0 {
		e.useFallback()
	}
	return e
}

func (e *Estimator) useFallback() {
	for level := 1; level <= maxLevel; level++ {
		switch {
		case level <= 15:
			e.expToNext[level] = int64(60000 + level*8000)
		case level <= 30:
			e.expToNext[level] = int64(120000 + level*10000)
		case level <= 50:
			e.expToNext[level] = int64(200000 + level*12000)
		case level <= 75:
			e.expToNext[level] = int64(350000 + level*15000)
		default:
			e.expToNext[level] = int64(500000 + level*18000)
		}
	}
	e.phases = append([]phase(nil), fallbackPhases...)
}

// ExpInRange returns the total experience needed to go from startLevel to
// endLevel. Levels missing from the rank table contribute nothing.
func (e *Estimator) ExpInRange(startLevel, endLevel int) int64 {
	if startLevel >= endLevel {
		return 0
	}
	var total int64
	for level := startLevel; level < endLevel; level++ {
		total += e.expToNext[level]
	}
	return total
}

// HoursToLevel returns the base hours to level from one level to another,
// before RNG and inefficiency. The sum is phase-additive: splitting a range
// at any point yields the same total.
func (e *Estimator) HoursToLevel(fromLevel, toLevel int) float64 {
	if fromLevel >= toLevel {
		return 0
	}

	total := 0.0
	for _, p := range e.phases {
		if fromLevel >= p.end {
			continue
		}
		if toLevel <= p.start {
			break
		}

		effStart := max(fromLevel, p.start)
		effEnd := min(toLevel, p.end)
		if effStart >= effEnd {
			continue
		}

		exp := float64(e.ExpInRange(effStart, effEnd))
		if p.expPerVoyage > 0 {
			total += exp / p.expPerVoyage * p.hoursPerVoyage
		}
	}
	return total
}

// ApplyRNG scales base hours by the discovery penalty of the phase the level
// sits in: hours * (1 + phaseFactor * (1 - rate)). Phases without discovery
// pressure leave hours unchanged.
func (e *Estimator) ApplyRNG(hours float64, level int, discoveryRate float64) float64 {
	factor := 0.0
	for _, p := range e.phases {
		if p.start <= level && level < p.end {
			factor = p.rngFactor
			break
		}
	}

	if discoveryRate > 0 && discoveryRate < 1 && factor > 0 {
		return hours * (1 + factor*(1-discoveryRate))
	}
	return hours
}

// hoursWithRNG is the full projection for one submarine: base hours, RNG for
// the starting phase, then the inefficiency multiplier.
func (e *Estimator) hoursWithRNG(fromLevel, toLevel int, rate float64) float64 {
	base := e.HoursToLevel(fromLevel, toLevel)
	return e.ApplyRNG(base, fromLevel, rate) * inefficiencyMultiplier
}

// SlotUnlockHours estimates hours until a slot's gate sector is discovered.
// Sectors already in unlockedLetters are skipped, and a gate whose
// prerequisite gate is still locked inherits that chain first.
func (e *Estimator) SlotUnlockHours(slot int, tier Tier, unlockedLetters map[string]bool) float64 {
	gate, ok := slotGates[slot]
	if !ok {
		return 0
	}

	remaining := func(path []string) []string {
		out := make([]string, 0, len(path))
		for _, letter := range path {
			if !unlockedLetters[letter] {
				out = append(out, letter)
			}
		}
		return out
	}

	var needed []string
	switch slot {
	case 2:
		needed = remaining(gate.path)
	case 3:
		if unlockedLetters["J"] {
			needed = remaining(gate.path)
		} else {
			needed = append(remaining(slotGates[2].path), remaining(gate.path)...)
		}
	case 4:
		switch {
		case unlockedLetters["O"]:
			needed = remaining(gate.path)
		case unlockedLetters["J"]:
			needed = append(remaining(slotGates[3].path), remaining(gate.path)...)
		default:
			needed = append(remaining(slotGates[2].path), remaining(slotGates[3].path)...)
			needed = append(needed, remaining(gate.path)...)
		}
	}
	if len(needed) == 0 {
		return 0
	}

	voyages := float64(len(needed)) * voyagesPerDiscovery[tier]
	return voyages * earlyVoyageHours * inefficiencyMultiplier
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
