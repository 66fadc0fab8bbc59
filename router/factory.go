package router

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jobquill/textgen"
	"github.com/jobquill/textgen/config"
	"github.com/jobquill/textgen/provider"
	"github.com/jobquill/textgen/provider/gemini"
	"github.com/jobquill/textgen/provider/huggingface"
	"github.com/jobquill/textgen/provider/openrouter"
	"github.com/jobquill/textgen/provider/replicate"
	"github.com/jobquill/textgen/state"
)

// NewFromConfig builds the five fixed tiers from configuration and assembles
// a Router on top of the given quota store.
func NewFromConfig(cfg *config.Config, store state.Store, logger *zap.SugaredLogger, opts ...Option) (*Router, error) {
	requestTimeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid request timeout: %v", err)
	}
	replicateTimeout, err := time.ParseDuration(cfg.ReplicateTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid replicate timeout: %v", err)
	}
	pollInterval, err := time.ParseDuration(cfg.ReplicatePollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid replicate poll interval: %v", err)
	}

	geminiA, err := gemini.NewEndpoint(string(textgen.ProviderGeminiA), cfg.GeminiApiKeyA, cfg.Models.Gemini)
	if err != nil {
		return nil, fmt.Errorf("failed to build gemini-a endpoint: %v", err)
	}
	geminiB, err := gemini.NewEndpoint(string(textgen.ProviderGeminiB), cfg.GeminiApiKeyB, cfg.Models.Gemini)
	if err != nil {
		return nil, fmt.Errorf("failed to build gemini-b endpoint: %v", err)
	}
	openRouter, err := openrouter.NewEndpoint("", cfg.OpenRouterApiKey, cfg.Models.OpenRouter, requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to build openrouter endpoint: %v", err)
	}
	huggingFace, err := huggingface.NewEndpoint("", cfg.HuggingFaceApiKey, cfg.Models.HuggingFace, requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to build huggingface endpoint: %v", err)
	}
	replicateEndpoint, err := replicate.NewEndpoint("", cfg.ReplicateApiToken, cfg.Models.Replicate, replicateTimeout, pollInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to build replicate endpoint: %v", err)
	}

	endpoints := map[textgen.ProviderID]provider.CompletionEndpoint{
		textgen.ProviderGeminiA:     geminiA,
		textgen.ProviderGeminiB:     geminiB,
		textgen.ProviderOpenRouter:  openRouter,
		textgen.ProviderHuggingFace: huggingFace,
		textgen.ProviderReplicate:   replicateEndpoint,
	}
	limits := map[textgen.ProviderID]int{
		textgen.ProviderGeminiA:     cfg.DailyLimits.GeminiA,
		textgen.ProviderGeminiB:     cfg.DailyLimits.GeminiB,
		textgen.ProviderOpenRouter:  cfg.DailyLimits.OpenRouter,
		textgen.ProviderHuggingFace: cfg.DailyLimits.HuggingFace,
		textgen.ProviderReplicate:   cfg.DailyLimits.Replicate,
	}

	tiers := make([]Tier, 0, len(textgen.TierOrder))
	for _, id := range textgen.TierOrder {
		tiers = append(tiers, Tier{
			ID:         id,
			Endpoint:   endpoints[id],
			DailyLimit: limits[id],
			QuotaClass: cfg.QuotaClassFor(id),
		})
	}

	return New(tiers, store, logger, opts...)
}
