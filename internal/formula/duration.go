package formula

import (
	"math"

	"fleet_tracker/internal/refdata"
)

// SnapDuration rounds a raw duration to the nearest standard voyage bucket.
// Buckets are scanned ascending; once the difference starts growing the
// closest one has been passed. Non-positive input snaps to the minimum.
func SnapDuration(hours float64) float64 {
	if hours <= 0 {
		return durationBuckets[0]
	}

	closest := durationBuckets[0]
	minDiff := math.Abs(hours - closest)
	for _, bucket := range durationBuckets[1:] {
		diff := math.Abs(hours - bucket)
		if diff < minDiff {
			minDiff = diff
			closest = bucket
		} else if diff > minDiff {
			break
		}
	}
	return closest
}

// Duration computes the bucketed voyage duration in hours for a route and
// part loadout. Returns false when any part or sector is missing from
// reference data; an undefined duration is never reported as zero.
func (e *Engine) Duration(routePoints []int, partRowIDs []int, level int) (float64, bool) {
	if len(routePoints) == 0 {
		return 0, false
	}

	speed, ok := e.Speed(partRowIDs, level)
	if !ok || speed <= 0 {
		return 0, false
	}

	sectors := make([]*refdata.Sector, len(routePoints))
	for i, id := range routePoints {
		sector, ok := e.ref.Sector(id)
		if !ok {
			return 0, false
		}
		sectors[i] = sector
	}

	// The voyage begins at the map's starting point; if reference data has
	// none, the first sector stands in (zero travel for the first leg).
	current, ok := e.ref.StartingSector(sectors[0].MapID)
	if !ok {
		current = sectors[0]
	}

	totalSeconds := int64(fixedVoyageSeconds)
	for _, next := range sectors {
		totalSeconds += travelSeconds(current, next, speed)
		totalSeconds += surveySeconds(next, speed)
		current = next
	}

	return SnapDuration(float64(totalSeconds) / 3600.0), true
}

// DurationPtr is Duration with the undefined case as a nil pointer, the shape
// the domain model stores.
func (e *Engine) DurationPtr(routePoints []int, partRowIDs []int, level int) *float64 {
	hours, ok := e.Duration(routePoints, partRowIDs, level)
	if !ok {
		return nil
	}
	return &hours
}

func travelSeconds(from, to *refdata.Sector, speed int) int64 {
	if speed < 1 {
		speed = 1
	}
	dx := float64(to.X - from.X)
	dy := float64(to.Y - from.Y)
	dz := float64(to.Z - from.Z)
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	return int64(math.Floor(dist * travelTimeConstant / float64(speed*100) * 60))
}

func surveySeconds(sector *refdata.Sector, speed int) int64 {
	if speed < 1 {
		speed = 1
	}
	return int64(math.Floor(float64(sector.SurveyDurationMin) * surveyTimeConstant / float64(speed*100) * 60))
}
