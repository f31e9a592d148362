// Package activity detects fleet changes between successive ingests and turns
// them into a persistent event log: level ups, build and route changes,
// submarines appearing or vanishing, and sector unlocks.
package activity

import (
	"context"
	"time"
)

// Event types.
const (
	TypeBuildChange      = "build_change"
	TypeLevelUp          = "level_up"
	TypeRouteChange      = "route_change"
	TypeSectorUnlock     = "sector_unlock"
	TypeSubmarineAdded   = "submarine_added"
	TypeSubmarineRemoved = "submarine_removed"
)

// Event is one logged change. OldValue/NewValue hold the before/after for
// change events; Details carries extra JSON context.
type Event struct {
	ID            string    `json:"id"`
	FCID          string    `json:"fc_id"`
	FCName        string    `json:"fc_name,omitempty"`
	Type          string    `json:"activity_type"`
	SubmarineName string    `json:"submarine_name,omitempty"`
	CharacterName string    `json:"character_name,omitempty"`
	OldValue      string    `json:"old_value,omitempty"`
	NewValue      string    `json:"new_value,omitempty"`
	Details       string    `json:"details,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Filter narrows event queries. Zero value means no filtering.
type Filter struct {
	FCIDs []string
	Types []string
}

// Store persists and queries events. Implementations live in the storage
// package.
type Store interface {
	AppendEvents(ctx context.Context, events []Event) error
	RecentEvents(ctx context.Context, limit int, filter Filter) ([]Event, error)
	FCEvents(ctx context.Context, fcID string, page, perPage int, types []string) ([]Event, int, error)
}
