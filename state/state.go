package state

import (
	"context"
)

// Stats is the durable per-provider record held by the quota store.
type Stats struct {
	// Health status as a string, e.g. "disabled_free_tier_exhausted".
	Status string `json:"status"`

	// Calls attempted on the provider's last active day.
	CallsToday int `json:"calls_today"`

	// Calendar date (UTC, 2006-01-02) of the last counter reset.
	LastResetDate string `json:"last_reset_date"`
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Status        *string
	CallsToday    *int
	LastResetDate *string
}

// Store is the quota store consumed by the router. Keys are provider names.
// The store is opaque key/value persistence, not a relational schema.
type Store interface {
	// GetProviderStats returns the persisted stats for a provider, or
	// (nil, nil) when the provider has no record yet.
	GetProviderStats(ctx context.Context, key string) (*Stats, error)

	// UpdateProviderStats applies a partial update, creating the record if
	// it does not exist.
	UpdateProviderStats(ctx context.Context, key string, patch Patch) error
}
