package textgen

// ProviderID identifies one of the fixed completion backends. The set is
// static; tiers are never created or destroyed at runtime.
type ProviderID string

const (
	ProviderGeminiA     ProviderID = "gemini-a"
	ProviderGeminiB     ProviderID = "gemini-b"
	ProviderOpenRouter  ProviderID = "openrouter"
	ProviderHuggingFace ProviderID = "huggingface"
	ProviderReplicate   ProviderID = "replicate"
)

// TierOrder is the fixed fallback priority. Exhausting Gemini credential A
// falls through to credential B before any other vendor is tried.
var TierOrder = []ProviderID{
	ProviderGeminiA,
	ProviderGeminiB,
	ProviderOpenRouter,
	ProviderHuggingFace,
	ProviderReplicate,
}

// Health is the per-provider state machine position.
type Health string

const (
	// HealthHealthy means the provider may be called.
	HealthHealthy Health = "healthy"

	// HealthRateLimited is transient. It is set when a paid-class provider
	// fails within a routing attempt and clears on the next top-level call.
	HealthRateLimited Health = "rate_limited"

	// HealthDisabledFreeTier is sticky. It is persisted to the quota store
	// and survives process restarts until an explicit reset.
	HealthDisabledFreeTier Health = "disabled_free_tier_exhausted"
)

// QuotaClass decides whether quota-style failures disable a provider for the
// rest of the day (free_tier) or only for the current routing attempt (paid).
type QuotaClass string

const (
	QuotaClassFreeTier QuotaClass = "free_tier"
	QuotaClassPaid     QuotaClass = "paid"
)

// DateLayout is the calendar-date form used for daily counter resets.
// All dates are UTC.
const DateLayout = "2006-01-02"

// ProviderState is the mutable per-provider record owned by the router.
type ProviderState struct {
	// Current health. Starts healthy.
	Health Health `json:"health"`

	// Number of calls attempted today, successful or not. Monotonically
	// non-decreasing within a calendar day.
	CallsToday int `json:"calls_today"`

	// Date (DateLayout, UTC) of the last counter reset. When the current
	// date differs, CallsToday resets to zero before any quota check.
	LastResetDate string `json:"last_reset_date"`
}
