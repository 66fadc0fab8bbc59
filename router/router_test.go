package router_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobquill/textgen"
	"github.com/jobquill/textgen/provider"
	"github.com/jobquill/textgen/router"
	"github.com/jobquill/textgen/state"
	"github.com/jobquill/textgen/utils"
)

type stubEndpoint struct {
	name       string
	completion string
	err        error
	calls      int
}

func (s *stubEndpoint) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.completion, nil
}

func (s *stubEndpoint) Provider() string { return s.name }
func (s *stubEndpoint) Shutdown() error  { return nil }

func rateLimitedErr() error {
	return &provider.Error{Kind: provider.RateLimited, StatusCode: http.StatusTooManyRequests, Message: "quota exceeded"}
}

type fixture struct {
	geminiA     *stubEndpoint
	geminiB     *stubEndpoint
	openRouter  *stubEndpoint
	huggingFace *stubEndpoint
	replicate   *stubEndpoint
	store       *state.MemoryStore
	clock       *clock.Mock
}

func (f *fixture) tiers() []router.Tier {
	return []router.Tier{
		{ID: textgen.ProviderGeminiA, Endpoint: f.geminiA, DailyLimit: 1500, QuotaClass: textgen.QuotaClassPaid},
		{ID: textgen.ProviderGeminiB, Endpoint: f.geminiB, DailyLimit: 1500, QuotaClass: textgen.QuotaClassPaid},
		{ID: textgen.ProviderOpenRouter, Endpoint: f.openRouter, DailyLimit: 200, QuotaClass: textgen.QuotaClassPaid},
		{ID: textgen.ProviderHuggingFace, Endpoint: f.huggingFace, DailyLimit: 300, QuotaClass: textgen.QuotaClassFreeTier},
		{ID: textgen.ProviderReplicate, Endpoint: f.replicate, DailyLimit: 100, QuotaClass: textgen.QuotaClassPaid},
	}
}

func newFixture() *fixture {
	return &fixture{
		geminiA:     &stubEndpoint{name: "gemini-a", completion: "from gemini-a"},
		geminiB:     &stubEndpoint{name: "gemini-b", completion: "from gemini-b"},
		openRouter:  &stubEndpoint{name: "openrouter", completion: "from openrouter"},
		huggingFace: &stubEndpoint{name: "huggingface", completion: "from huggingface"},
		replicate:   &stubEndpoint{name: "replicate", completion: "from replicate"},
		store:       state.NewMemoryStore(),
		clock:       clock.NewMock(),
	}
}

func (f *fixture) newRouter(t *testing.T) *router.Router {
	t.Helper()
	r, err := router.New(f.tiers(), f.store, zap.NewNop().Sugar(), router.WithClock(f.clock))
	require.NoError(t, err)
	return r
}

func TestRoute(t *testing.T) {
	ctx := context.Background()

	t.Run("first success wins and short-circuits", func(t *testing.T) {
		f := newFixture()
		r := f.newRouter(t)

		completion, err := r.Route(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, "from gemini-a", completion)
		assert.Equal(t, 1, f.geminiA.calls)
		assert.Zero(t, f.geminiB.calls)
		assert.Zero(t, f.openRouter.calls)
		assert.Zero(t, f.huggingFace.calls)
		assert.Zero(t, f.replicate.calls)
		assert.Equal(t, textgen.ProviderGeminiA, r.LastSuccessfulProvider())
	})

	t.Run("falls through four rate limits to replicate", func(t *testing.T) {
		f := newFixture()
		f.geminiA.err = rateLimitedErr()
		f.geminiB.err = rateLimitedErr()
		f.openRouter.err = rateLimitedErr()
		f.huggingFace.err = rateLimitedErr()
		r := f.newRouter(t)

		completion, err := r.Route(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, "from replicate", completion)
		assert.Equal(t, textgen.ProviderReplicate, r.LastSuccessfulProvider())

		states := r.GetProviderStates()
		assert.Equal(t, textgen.HealthRateLimited, states[textgen.ProviderGeminiA].Health)
		assert.Equal(t, textgen.HealthDisabledFreeTier, states[textgen.ProviderHuggingFace].Health)
		assert.Equal(t, textgen.HealthHealthy, states[textgen.ProviderReplicate].Health)
	})

	t.Run("free tier 429 disables stickily and persists", func(t *testing.T) {
		f := newFixture()
		f.geminiA.err = rateLimitedErr()
		f.geminiB.err = rateLimitedErr()
		f.openRouter.err = rateLimitedErr()
		f.huggingFace.err = rateLimitedErr()
		r := f.newRouter(t)

		_, err := r.Route(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, 1, f.huggingFace.calls)

		stats, err := f.store.GetProviderStats(ctx, "huggingface")
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, string(textgen.HealthDisabledFreeTier), stats.Status)

		// The second call must not touch the HuggingFace adapter at all.
		_, err = r.Route(ctx, "again")
		require.NoError(t, err)
		assert.Equal(t, 1, f.huggingFace.calls)
	})

	t.Run("skips provider already over its daily limit in the store", func(t *testing.T) {
		f := newFixture()
		today := f.clock.Now().UTC().Format(textgen.DateLayout)
		require.NoError(t, f.store.UpdateProviderStats(ctx, "gemini-a", state.Patch{
			CallsToday:    utils.ToPtr(1500),
			LastResetDate: utils.ToPtr(today),
		}))
		r := f.newRouter(t)

		completion, err := r.Route(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, "from gemini-b", completion)
		assert.Zero(t, f.geminiA.calls)
	})

	t.Run("day boundary resets counters and re-enables quota-gated providers", func(t *testing.T) {
		f := newFixture()
		today := f.clock.Now().UTC().Format(textgen.DateLayout)
		require.NoError(t, f.store.UpdateProviderStats(ctx, "gemini-a", state.Patch{
			CallsToday:    utils.ToPtr(1500),
			LastResetDate: utils.ToPtr(today),
		}))
		r := f.newRouter(t)

		completion, err := r.Route(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, "from gemini-b", completion)

		f.clock.Add(24 * time.Hour)

		completion, err = r.Route(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, "from gemini-a", completion)

		states := r.GetProviderStates()
		assert.Equal(t, 1, states[textgen.ProviderGeminiA].CallsToday)
	})

	t.Run("counter increments on failures too", func(t *testing.T) {
		f := newFixture()
		f.geminiA.err = rateLimitedErr()
		r := f.newRouter(t)

		_, err := r.Route(ctx, "hello")
		require.NoError(t, err)
		_, err = r.Route(ctx, "hello")
		require.NoError(t, err)

		states := r.GetProviderStates()
		assert.Equal(t, 2, states[textgen.ProviderGeminiA].CallsToday)
		assert.Equal(t, 2, states[textgen.ProviderGeminiB].CallsToday)
	})

	t.Run("exhaustion returns per-provider outcomes", func(t *testing.T) {
		f := newFixture()
		f.geminiA.err = rateLimitedErr()
		f.geminiB.err = rateLimitedErr()
		f.openRouter.err = &provider.Error{Kind: provider.HardFailure, StatusCode: 500, Message: "boom"}
		f.huggingFace.err = rateLimitedErr()
		f.replicate.err = &provider.Error{Kind: provider.Timeout, Message: "prediction stalled"}
		r := f.newRouter(t)

		_, err := r.Route(ctx, "hello")
		require.Error(t, err)

		var exhausted *router.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Len(t, exhausted.Attempts, 5)
		assert.Contains(t, err.Error(), "all providers exhausted")
		assert.Contains(t, err.Error(), "openrouter")
	})

	t.Run("skipped tiers appear in the aggregate error", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.store.UpdateProviderStats(ctx, "huggingface", state.Patch{
			Status: utils.ToPtr(string(textgen.HealthDisabledFreeTier)),
		}))
		for _, stub := range []*stubEndpoint{f.geminiA, f.geminiB, f.openRouter, f.replicate} {
			stub.err = rateLimitedErr()
		}
		r := f.newRouter(t)

		_, err := r.Route(ctx, "hello")
		var exhausted *router.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		require.Len(t, exhausted.Attempts, 5)
		assert.Zero(t, f.huggingFace.calls)

		var hfAttempt *router.Attempt
		for i := range exhausted.Attempts {
			if exhausted.Attempts[i].Provider == textgen.ProviderHuggingFace {
				hfAttempt = &exhausted.Attempts[i]
			}
		}
		require.NotNil(t, hfAttempt)
		assert.True(t, hfAttempt.Skipped)
		assert.Contains(t, err.Error(), "huggingface: skipped")
	})
}

func TestResetProviderStates(t *testing.T) {
	ctx := context.Background()

	t.Run("discards transient state, preserves sticky disables", func(t *testing.T) {
		f := newFixture()
		f.geminiA.err = rateLimitedErr()
		f.geminiB.err = rateLimitedErr()
		f.openRouter.err = rateLimitedErr()
		f.huggingFace.err = rateLimitedErr()
		r := f.newRouter(t)

		_, err := r.Route(ctx, "hello")
		require.NoError(t, err)

		states := r.GetProviderStates()
		assert.Equal(t, textgen.HealthRateLimited, states[textgen.ProviderOpenRouter].Health)
		assert.Equal(t, textgen.HealthDisabledFreeTier, states[textgen.ProviderHuggingFace].Health)

		require.NoError(t, r.ResetProviderStates(ctx))

		states = r.GetProviderStates()
		assert.Equal(t, textgen.HealthHealthy, states[textgen.ProviderOpenRouter].Health)
		assert.Equal(t, textgen.HealthDisabledFreeTier, states[textgen.ProviderHuggingFace].Health)
		assert.Equal(t, textgen.ProviderID(""), r.LastSuccessfulProvider())
	})

	t.Run("restores counters from the store", func(t *testing.T) {
		f := newFixture()
		r := f.newRouter(t)

		_, err := r.Route(ctx, "hello")
		require.NoError(t, err)

		require.NoError(t, r.ResetProviderStates(ctx))
		states := r.GetProviderStates()
		assert.Equal(t, 1, states[textgen.ProviderGeminiA].CallsToday)
	})
}

func TestNew(t *testing.T) {
	t.Run("rejects empty tier list", func(t *testing.T) {
		_, err := router.New(nil, state.NewMemoryStore(), zap.NewNop().Sugar())
		assert.Error(t, err)
	})

	t.Run("rejects duplicate tiers", func(t *testing.T) {
		stub := &stubEndpoint{name: "gemini-a"}
		tiers := []router.Tier{
			{ID: textgen.ProviderGeminiA, Endpoint: stub},
			{ID: textgen.ProviderGeminiA, Endpoint: stub},
		}
		_, err := router.New(tiers, state.NewMemoryStore(), zap.NewNop().Sugar())
		assert.Error(t, err)
	})

	t.Run("rejects nil store", func(t *testing.T) {
		tiers := []router.Tier{{ID: textgen.ProviderGeminiA, Endpoint: &stubEndpoint{}}}
		_, err := router.New(tiers, nil, zap.NewNop().Sugar())
		assert.Error(t, err)
	})
}

func TestRouteErrorClassification(t *testing.T) {
	// A plain error whose message smells like a quota complaint is treated
	// as rate-limited, so a free-tier provider still gets the sticky
	// disable even when the adapter could not attach a status code.
	f := newFixture()
	f.geminiA.err = rateLimitedErr()
	f.geminiB.err = rateLimitedErr()
	f.openRouter.err = rateLimitedErr()
	f.huggingFace.err = errors.New("model quota exhausted for today")
	r := f.newRouter(t)

	_, err := r.Route(context.Background(), "hello")
	require.NoError(t, err)

	states := r.GetProviderStates()
	assert.Equal(t, textgen.HealthDisabledFreeTier, states[textgen.ProviderHuggingFace].Health)
}
