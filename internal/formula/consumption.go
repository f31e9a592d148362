package formula

import (
	"math"

	"fleet_tracker/internal/fleet"
)

// DefaultConsumption is the conservative fallback when parts, route, or
// duration cannot be resolved.
func DefaultConsumption() *fleet.ConsumptionRate {
	return &fleet.ConsumptionRate{
		TanksPerDay: defaultTanksPerDay,
		KitsPerDay:  defaultKitsPerDay,
	}
}

// Consumption computes per-voyage and per-day resource burn for a part
// loadout on a route. durationHours is the bucketed voyage duration; when nil
// (or when reference rows are missing) the fixed conservative default rates
// are returned so forecasts always have a number to work with.
func (e *Engine) Consumption(partRowIDs []int, routePoints []int, durationHours *float64) *fleet.ConsumptionRate {
	if len(partRowIDs) == 0 || len(routePoints) == 0 || durationHours == nil || *durationHours <= 0 {
		return DefaultConsumption()
	}

	totalTanks := 0
	sectorRanks := make([]int, 0, len(routePoints))
	for _, id := range routePoints {
		sector, ok := e.ref.Sector(id)
		if !ok {
			continue
		}
		totalTanks += sector.CeruleumTankReq
		sectorRanks = append(sectorRanks, sector.RankReq)
	}
	if len(sectorRanks) == 0 {
		return DefaultConsumption()
	}

	// Each part takes (335 + sector rank requirement - part rank) * 7 damage
	// per sector; the limiting part is the one taking the most.
	maxPartDamage := 0
	totalRepairMaterials := 0
	for _, id := range partRowIDs {
		part, ok := e.ref.Part(id)
		if !ok {
			continue
		}
		totalRepairMaterials += part.RepairMaterials

		damage := 0
		for _, rankReq := range sectorRanks {
			damage += (baseDamageModifier + rankReq - part.Rank) * damageMultiplier
		}
		if damage > maxPartDamage {
			maxPartDamage = damage
		}
	}
	if maxPartDamage <= 0 {
		return DefaultConsumption()
	}

	voyagesUntilRepair := int(math.Ceil(maxDurability / float64(maxPartDamage)))
	kitsPerVoyage := float64(totalRepairMaterials) / float64(voyagesUntilRepair)
	voyagesPerDay := 24.0 / *durationHours

	return &fleet.ConsumptionRate{
		TanksPerVoyage:     float64(totalTanks),
		KitsPerVoyage:      kitsPerVoyage,
		TanksPerDay:        round1(float64(totalTanks) * voyagesPerDay),
		KitsPerDay:         round2(kitsPerVoyage * voyagesPerDay),
		VoyagesUntilRepair: voyagesUntilRepair,
		DurationHours:      *durationHours,
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
