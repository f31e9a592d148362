package fleet

import (
	"strconv"
	"time"
)

// Status classifies a submarine by time remaining on its voyage. It is
// derived from the wall clock at read time and never persisted, so a stale
// cached Submarine still reads correctly.
type Status string

const (
	// StatusReady means the voyage has completed.
	StatusReady Status = "ready"
	// StatusCompletingSoon means the voyage completes within half an hour.
	StatusCompletingSoon Status = "completing_soon"
	// StatusActive means the voyage is still underway.
	StatusActive Status = "active"
)

// completingSoonWindow is the remaining-time threshold below which an active
// voyage is reported as completing soon.
const completingSoonWindow = 30 * time.Minute

// StatusAt derives a submarine's status and remaining hours from its return
// timestamp and the given wall-clock time. The returned hours are clamped at
// zero once the voyage has completed. Later evaluation times never move a
// status backward: active -> completing_soon -> ready is monotone.
func StatusAt(returnTime int64, now time.Time) (Status, float64) {
	remaining := time.Unix(returnTime, 0).Sub(now)
	switch {
	case remaining <= 0:
		return StatusReady, 0
	case remaining <= completingSoonWindow:
		return StatusCompletingSoon, remaining.Hours()
	default:
		return StatusActive, remaining.Hours()
	}
}

// FCKey renders a free company id the way payloads key their fc_data maps.
func FCKey(fcID int64) string {
	return strconv.FormatInt(fcID, 10)
}
