package estimator

import (
	"fmt"
	"math"
	"time"

	"fleet_tracker/internal/fleet"
)

// TierEstimate is one tier's projected time to target.
type TierEstimate struct {
	Hours float64 `json:"hours"`
	Days  float64 `json:"days"`
}

// SubEstimate is the leveling projection for one submarine. Future slots not
// yet unlocked appear as placeholder entries with IsFutureSub set.
type SubEstimate struct {
	SubmarineName   string                `json:"submarine_name"`
	FCID            string                `json:"fc_id"`
	FCName          string                `json:"fc_name"`
	CurrentLevel    int                   `json:"current_level"`
	TargetLevel     int                   `json:"target_level"`
	AlreadyAtTarget bool                  `json:"already_at_target"`
	IsFutureSub     bool                  `json:"is_future_sub,omitempty"`
	UnlockSector    string                `json:"unlock_sector,omitempty"`
	Estimates       map[Tier]TierEstimate `json:"estimates"`
	OnUnlockPlan    bool                  `json:"on_unlock_plan"`
	UnlockPlanName  string                `json:"unlock_plan_name"`
	ExpProgress     float64               `json:"exp_progress"`
	Build           string                `json:"build"`
	VoyageStatus    string                `json:"voyage_status"`
	HoursRemaining  float64               `json:"hours_remaining"`
	Route           string                `json:"route"`
	ReturnTime      *string               `json:"return_time"`
}

// FCEstimate is the company-wide projection: per-submarine estimates plus the
// bottleneck view of when the whole fleet reaches the target.
type FCEstimate struct {
	FCID            string                `json:"fc_id"`
	FCName          string                `json:"fc_name"`
	World           string                `json:"world"`
	SubsAtTarget    int                   `json:"subs_at_target"`
	SubsBelowTarget int                   `json:"subs_below_target"`
	TotalSubs       int                   `json:"total_subs"`
	MaxSubs         int                   `json:"max_subs"`
	PendingUnlocks  int                   `json:"pending_unlocks"`
	SlowestSub      *string               `json:"slowest_sub"`
	Estimates       map[Tier]TierEstimate `json:"estimates"`
	Submarines      []SubEstimate         `json:"submarines"`
}

func zeroEstimates() map[Tier]TierEstimate {
	out := make(map[Tier]TierEstimate, len(Tiers))
	for _, tier := range Tiers {
		out[tier] = TierEstimate{}
	}
	return out
}

// EstimateSub projects one submarine's time to the target level at all tiers.
// now anchors the voyage status and remaining hours.
func (e *Estimator) EstimateSub(sub fleet.Submarine, targetLevel int, fcID, fcName string, now time.Time) SubEstimate {
	est := SubEstimate{
		SubmarineName: sub.Name,
		FCID:          fcID,
		FCName:        fcName,
		CurrentLevel:  sub.Level,
		TargetLevel:   targetLevel,
		OnUnlockPlan:  sub.SelectedRoute != "",
		ExpProgress:   sub.ExpProgress,
		Build:         sub.Build,
		Route:         sub.RouteName,
	}

	status, remaining := fleet.StatusAt(sub.ReturnTime, now)
	est.VoyageStatus = string(status)
	est.HoursRemaining = round2(remaining)
	if sub.ReturnTime > 0 {
		rt := sub.ReturnAt().Format(time.RFC3339)
		est.ReturnTime = &rt
	}

	if sub.Level >= targetLevel {
		est.AlreadyAtTarget = true
		est.Estimates = zeroEstimates()
		return est
	}

	est.Estimates = make(map[Tier]TierEstimate, len(Tiers))
	for _, tier := range Tiers {
		hours := e.hoursWithRNG(sub.Level, targetLevel, discoveryRates[tier])
		est.Estimates[tier] = TierEstimate{
			Hours: round1(hours),
			Days:  round1(hours / 24),
		}
	}
	return est
}

// EstimateFC projects a whole company: every existing submarine, plus
// placeholder entries for locked slots covering both the unlock grind and the
// fresh submarine's leveling. The company estimate per tier is the slowest of
// all of those, since submarines run in parallel.
func (e *Estimator) EstimateFC(subs []fleet.Submarine, targetLevel int, fcID, fcName, world string, unlockedLetters map[string]bool, now time.Time) FCEstimate {
	fcEst := FCEstimate{
		FCID:       fcID,
		FCName:     fcName,
		World:      world,
		TotalSubs:  len(subs),
		MaxSubs:    MaxSlots,
		Estimates:  make(map[Tier]TierEstimate, len(Tiers)),
		Submarines: []SubEstimate{},
	}

	if len(subs) == 0 {
		fcEst.PendingUnlocks = MaxSlots
		fcEst.Estimates = zeroEstimates()
		return fcEst
	}

	tierHours := make(map[Tier][]float64, len(Tiers))
	for _, sub := range subs {
		subEst := e.EstimateSub(sub, targetLevel, fcID, fcName, now)
		fcEst.Submarines = append(fcEst.Submarines, subEst)
		if subEst.AlreadyAtTarget {
			continue
		}
		for _, tier := range Tiers {
			tierHours[tier] = append(tierHours[tier], subEst.Estimates[tier].Hours)
		}
	}

	for slot := 2; slot <= MaxSlots; slot++ {
		if len(subs) >= slot {
			continue
		}
		fcEst.PendingUnlocks++

		gate := slotGates[slot]
		future := SubEstimate{
			SubmarineName: fmt.Sprintf("[Slot %d - Discover Sector %s]", slot, gate.sector),
			FCID:          fcID,
			FCName:        fcName,
			TargetLevel:   targetLevel,
			IsFutureSub:   true,
			UnlockSector:  gate.sector,
			Estimates:     make(map[Tier]TierEstimate, len(Tiers)),
		}
		for _, tier := range Tiers {
			total := e.SlotUnlockHours(slot, tier, unlockedLetters) +
				e.hoursWithRNG(1, targetLevel, discoveryRates[tier])
			future.Estimates[tier] = TierEstimate{
				Hours: round1(total),
				Days:  round1(total / 24),
			}
			tierHours[tier] = append(tierHours[tier], future.Estimates[tier].Hours)
		}
		fcEst.Submarines = append(fcEst.Submarines, future)
	}

	for _, subEst := range fcEst.Submarines {
		if subEst.AlreadyAtTarget {
			fcEst.SubsAtTarget++
		} else if !subEst.IsFutureSub {
			fcEst.SubsBelowTarget++
		}
	}

	for _, tier := range Tiers {
		worst := 0.0
		for _, h := range tierHours[tier] {
			worst = math.Max(worst, h)
		}
		fcEst.Estimates[tier] = TierEstimate{
			Hours: round1(worst),
			Days:  round1(worst / 24),
		}
	}

	if maxExpected := fcEst.Estimates[TierExpected].Hours; maxExpected > 0 {
		for _, subEst := range fcEst.Submarines {
			if subEst.AlreadyAtTarget {
				continue
			}
			if math.Abs(subEst.Estimates[TierExpected].Hours-maxExpected) < 1.0 {
				name := subEst.SubmarineName
				fcEst.SlowestSub = &name
				break
			}
		}
	}
	return fcEst
}
