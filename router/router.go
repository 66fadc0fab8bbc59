package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobquill/textgen"
	"github.com/jobquill/textgen/monitoring"
	"github.com/jobquill/textgen/provider"
	"github.com/jobquill/textgen/state"
	"github.com/jobquill/textgen/utils"
)

const (
	skipReasonDisabled   = "disabled_free_tier_exhausted"
	skipReasonDailyLimit = "daily_limit_reached"
)

// Tier is one provider's slot in the fixed fallback order.
type Tier struct {
	ID       textgen.ProviderID
	Endpoint provider.CompletionEndpoint

	// Daily call ceiling. Zero means unbounded.
	DailyLimit int

	// Free-tier providers get a sticky, persisted disable on quota
	// failures; paid ones only a transient rate_limited mark.
	QuotaClass textgen.QuotaClass
}

// Router walks the tier list in priority order, consulting per-provider
// health and quota state before each attempt and updating it after. State is
// seeded from the quota store at construction and sticky disables are
// flushed back so they survive restarts.
type Router struct {
	mu             sync.Mutex
	tiers          []Tier
	states         map[textgen.ProviderID]*textgen.ProviderState
	lastSuccessful textgen.ProviderID

	store   state.Store
	clock   clock.Clock
	logger  *zap.SugaredLogger
	metrics *monitoring.Metrics
}

// Option configures a Router.
type Option func(*Router)

// WithClock sets the clock used for daily-boundary detection. Tests use
// clock.NewMock() to cross midnight deterministically.
func WithClock(clk clock.Clock) Option {
	return func(r *Router) { r.clock = clk }
}

// WithMetrics wires Prometheus metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

func New(tiers []Tier, store state.Store, logger *zap.SugaredLogger, opts ...Option) (*Router, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}
	if store == nil {
		return nil, fmt.Errorf("a quota store is required")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	seen := make(map[textgen.ProviderID]bool, len(tiers))
	for _, tier := range tiers {
		if tier.Endpoint == nil {
			return nil, fmt.Errorf("tier %s has no endpoint", tier.ID)
		}
		if seen[tier.ID] {
			return nil, fmt.Errorf("duplicate tier: %s", tier.ID)
		}
		seen[tier.ID] = true
	}

	r := &Router{
		tiers:  tiers,
		states: make(map[textgen.ProviderID]*textgen.ProviderState, len(tiers)),
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = clock.New()
	}

	if err := r.ResetProviderStates(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load provider states: %v", err)
	}
	return r, nil
}

// Route sends the prompt to the first healthy, under-quota provider in tier
// order and returns its completion. Tiers are tried strictly sequentially;
// the first success wins and no further tiers are invoked. Only total
// exhaustion surfaces as an error, as *ExhaustedError.
func (r *Router) Route(ctx context.Context, prompt string) (string, error) {
	requestId := uuid.New().String()
	attempts := make([]Attempt, 0, len(r.tiers))

	r.mu.Lock()
	r.rollDayLocked()
	r.clearTransientLocked()
	r.mu.Unlock()

	for _, tier := range r.tiers {
		r.mu.Lock()
		st := r.states[tier.ID]
		if st.Health == textgen.HealthDisabledFreeTier {
			r.mu.Unlock()
			r.metrics.RecordSkip(string(tier.ID), skipReasonDisabled)
			attempts = append(attempts, Attempt{Provider: tier.ID, Skipped: true, SkipReason: skipReasonDisabled})
			continue
		}
		if tier.DailyLimit > 0 && st.CallsToday >= tier.DailyLimit {
			r.mu.Unlock()
			r.metrics.RecordSkip(string(tier.ID), skipReasonDailyLimit)
			attempts = append(attempts, Attempt{Provider: tier.ID, Skipped: true, SkipReason: skipReasonDailyLimit})
			continue
		}
		st.CallsToday++
		callsToday := st.CallsToday
		resetDate := st.LastResetDate
		r.mu.Unlock()

		r.persistCounter(ctx, tier.ID, callsToday, resetDate)
		r.metrics.RecordAttempt(string(tier.ID))
		r.logger.Infow("Attempting provider",
			"request_id", requestId, "provider", tier.ID, "calls_today", callsToday)

		completion, err := tier.Endpoint.Complete(ctx, prompt)
		if err == nil {
			r.mu.Lock()
			st.Health = textgen.HealthHealthy
			r.lastSuccessful = tier.ID
			r.mu.Unlock()
			r.metrics.RecordSuccess(string(tier.ID))
			r.metrics.SetHealth(string(tier.ID), textgen.HealthHealthy)
			r.logger.Infow("Provider succeeded", "request_id", requestId, "provider", tier.ID)
			return completion, nil
		}

		kind := provider.KindOf(err)
		r.metrics.RecordFailure(string(tier.ID), string(kind))
		r.logger.Warnw("Provider failed",
			"request_id", requestId, "provider", tier.ID, "kind", kind, "error", err)
		r.applyFailure(ctx, tier, kind)
		attempts = append(attempts, Attempt{Provider: tier.ID, Err: err})
	}

	r.logger.Warnw("All providers exhausted", "request_id", requestId, "attempts", len(attempts))
	return "", &ExhaustedError{Attempts: attempts}
}

// applyFailure runs the health transition for a failed attempt: quota-style
// failures on a free-tier provider disable it for the day and flush the
// disable to the store; everything else marks the provider rate_limited for
// the remainder of this routing attempt only.
func (r *Router) applyFailure(ctx context.Context, tier Tier, kind provider.ErrorKind) {
	quotaStyle := kind == provider.RateLimited || kind == provider.BillingError || kind == provider.Timeout
	sticky := quotaStyle && tier.QuotaClass == textgen.QuotaClassFreeTier

	persist := false
	r.mu.Lock()
	st := r.states[tier.ID]
	if sticky {
		if st.Health != textgen.HealthDisabledFreeTier {
			st.Health = textgen.HealthDisabledFreeTier
			persist = true
		}
	} else {
		st.Health = textgen.HealthRateLimited
	}
	health := st.Health
	r.mu.Unlock()

	r.metrics.SetHealth(string(tier.ID), health)
	if !persist {
		return
	}

	patch := state.Patch{Status: utils.ToPtr(string(textgen.HealthDisabledFreeTier))}
	err := r.store.UpdateProviderStats(ctx, string(tier.ID), patch)
	if err != nil {
		// The disable is not durable until the write lands. One retry; if
		// that also fails the next restart simply re-discovers the
		// exhaustion on its first failure.
		err = r.store.UpdateProviderStats(ctx, string(tier.ID), patch)
	}
	if err != nil {
		r.logger.Errorw("Failed to persist provider disable", "provider", tier.ID, "error", err)
		return
	}
	r.logger.Infow("Provider disabled until reset", "provider", tier.ID)
}

// persistCounter mirrors the call counter to the store, best effort.
func (r *Router) persistCounter(ctx context.Context, id textgen.ProviderID, callsToday int, resetDate string) {
	err := r.store.UpdateProviderStats(ctx, string(id), state.Patch{
		CallsToday:    utils.ToPtr(callsToday),
		LastResetDate: utils.ToPtr(resetDate),
	})
	if err != nil {
		r.logger.Warnw("Failed to persist call counter", "provider", id, "error", err)
	}
}

// rollDayLocked resets each provider's counter at the first use after a UTC
// day boundary. Never driven by a timer.
func (r *Router) rollDayLocked() {
	today := r.clock.Now().UTC().Format(textgen.DateLayout)
	for _, st := range r.states {
		if st.LastResetDate != today {
			st.CallsToday = 0
			st.LastResetDate = today
		}
	}
}

// clearTransientLocked lets providers marked rate_limited during a previous
// routing attempt start the new one from healthy. Sticky disables stay.
func (r *Router) clearTransientLocked() {
	for _, st := range r.states {
		if st.Health == textgen.HealthRateLimited {
			st.Health = textgen.HealthHealthy
		}
	}
}

// GetProviderStates returns a copy of every provider's current state.
func (r *Router) GetProviderStates() map[textgen.ProviderID]textgen.ProviderState {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[textgen.ProviderID]textgen.ProviderState, len(r.states))
	for id, st := range r.states {
		snapshot[id] = *st
	}
	return snapshot
}

// LastSuccessfulProvider returns the tier that most recently served a
// completion, or empty if none has yet. Diagnostics only; callers of Route
// are never told which provider answered.
func (r *Router) LastSuccessfulProvider() textgen.ProviderID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSuccessful
}

// ResetProviderStates reinitializes all provider state from the quota store,
// discarding in-memory transient marks while preserving persisted sticky
// disables. Providers without a store record default to healthy with a fresh
// counter.
func (r *Router) ResetProviderStates(ctx context.Context) error {
	today := r.clock.Now().UTC().Format(textgen.DateLayout)

	loaded := make(map[textgen.ProviderID]*textgen.ProviderState, len(r.tiers))
	for _, tier := range r.tiers {
		st := &textgen.ProviderState{
			Health:        textgen.HealthHealthy,
			CallsToday:    0,
			LastResetDate: today,
		}
		stats, err := r.store.GetProviderStats(ctx, string(tier.ID))
		if err != nil {
			return fmt.Errorf("failed to read stats for %s: %v", tier.ID, err)
		}
		if stats != nil {
			// Only the sticky disable round-trips through the store;
			// any other persisted status is treated as healthy.
			if stats.Status == string(textgen.HealthDisabledFreeTier) {
				st.Health = textgen.HealthDisabledFreeTier
			}
			st.CallsToday = stats.CallsToday
			if stats.LastResetDate != "" {
				st.LastResetDate = stats.LastResetDate
			}
		}
		loaded[tier.ID] = st
		r.metrics.SetHealth(string(tier.ID), st.Health)
	}

	r.mu.Lock()
	r.states = loaded
	r.lastSuccessful = ""
	r.rollDayLocked()
	r.mu.Unlock()
	return nil
}

// Shutdown releases every endpoint.
func (r *Router) Shutdown() error {
	var lastErr error
	for _, tier := range r.tiers {
		if err := tier.Endpoint.Shutdown(); err != nil {
			r.logger.Warnw("Failed to shut down endpoint", "provider", tier.ID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}
