// Package formula implements the deterministic voyage calculators: speed from
// a part loadout, duration from a route, and resource consumption from both.
// Everything is a pure function of reference data; the same inputs always
// produce the same outputs.
package formula

import "fleet_tracker/internal/refdata"

// Game constants for the duration model.
const (
	// fixedVoyageSeconds is the overhead every voyage pays regardless of route.
	fixedVoyageSeconds = 43200
	// travelTimeConstant scales inter-sector travel against speed.
	travelTimeConstant = 3990
	// surveyTimeConstant scales per-sector survey time against speed.
	surveyTimeConstant = 7000
)

// Game constants for the damage model.
const (
	baseDamageModifier = 335
	damageMultiplier   = 7
	maxDurability      = 30000
)

// Voyages snap to fixed duration intervals.
var durationBuckets = []float64{24, 36, 48, 60, 72, 84, 96}

// Conservative per-day consumption used when a submarine's parts or route
// cannot be resolved. Forecasts must always produce a number.
const (
	defaultTanksPerDay = 9.0
	defaultKitsPerDay  = 1.33
)

// Engine computes durations and consumption against a reference provider.
type Engine struct {
	ref refdata.Provider
}

// NewEngine returns an Engine reading from the given provider.
func NewEngine(ref refdata.Provider) *Engine {
	return &Engine{ref: ref}
}

// Speed returns the total speed for a part loadout at a level: the sum of the
// four parts' speed stat plus the rank bonus. Returns false when any part row
// is missing from reference data.
func (e *Engine) Speed(partRowIDs []int, level int) (int, bool) {
	if len(partRowIDs) < 4 {
		return 0, false
	}

	total := 0
	for _, id := range partRowIDs {
		part, ok := e.ref.Part(id)
		if !ok {
			return 0, false
		}
		total += part.Speed
	}

	// A missing rank row just means no bonus.
	if rank, ok := e.ref.Rank(level); ok {
		total += rank.SpeedBonus
	}
	return total, true
}
