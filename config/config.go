package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jobquill/textgen"
	"github.com/jobquill/textgen/utils/env"
)

// Config is the full library configuration. Values are layered: defaults
// first, then the YAML file, then environment variables.
type Config struct {
	// Valkey (open-source version of Redis) endpoint used as the quota
	// store. E.g., localhost:6379. Empty selects the in-memory store.
	ValkeyEndpoint string `yaml:"valkey_endpoint"`

	// Two independent Gemini credentials occupying the top two tiers.
	GeminiApiKeyA string `yaml:"gemini_api_key_a"`
	GeminiApiKeyB string `yaml:"gemini_api_key_b"`

	// API key to access the OpenRouter gateway.
	OpenRouterApiKey string `yaml:"openrouter_api_key"`

	// API key to access the HuggingFace inference API.
	HuggingFaceApiKey string `yaml:"huggingface_api_key"`

	// API token to access the Replicate predictions API.
	ReplicateApiToken string `yaml:"replicate_api_token"`

	// Per-provider model identifier overrides.
	Models ModelConfig `yaml:"models"`

	// Per-provider daily call ceilings. Zero means unbounded.
	DailyLimits DailyLimitConfig `yaml:"daily_limits"`

	// Maps provider name to "free_tier" or "paid". A free_tier provider is
	// disabled for the day on its first quota failure; a paid one is only
	// skipped for the rest of the current routing attempt.
	QuotaClasses map[string]string `yaml:"quota_classes"`

	// Timeout for each single-shot HTTP call. E.g., 30s
	RequestTimeout string `yaml:"request_timeout"`

	// Overall wall-clock limit for one Replicate prediction. E.g., 15s
	ReplicateTimeout string `yaml:"replicate_timeout"`

	// Sleep between Replicate status polls. E.g., 1s
	ReplicatePollInterval string `yaml:"replicate_poll_interval"`
}

type ModelConfig struct {
	Gemini      string `yaml:"gemini"`
	OpenRouter  string `yaml:"openrouter"`
	HuggingFace string `yaml:"huggingface"`
	Replicate   string `yaml:"replicate"`
}

type DailyLimitConfig struct {
	GeminiA     int `yaml:"gemini_a"`
	GeminiB     int `yaml:"gemini_b"`
	OpenRouter  int `yaml:"openrouter"`
	HuggingFace int `yaml:"huggingface"`
	Replicate   int `yaml:"replicate"`
}

// LoadConfig loads the configuration from the specified path. An empty path
// skips the file layer and uses defaults plus environment variables only.
func LoadConfig(path string, logger *zap.SugaredLogger) (*Config, error) {
	config := Config{
		DailyLimits: DailyLimitConfig{
			GeminiA:     1500,
			GeminiB:     1500,
			OpenRouter:  200,
			HuggingFace: 300,
			Replicate:   100,
		},
		QuotaClasses: map[string]string{
			string(textgen.ProviderHuggingFace): string(textgen.QuotaClassFreeTier),
		},
		RequestTimeout:        "30s",
		ReplicateTimeout:      "15s",
		ReplicatePollInterval: "1s",
	}

	if path != "" {
		logger.Infow("Loading local config", "path", path)
		configData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get config data: %v", err)
		}
		if err := yaml.Unmarshal(configData, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %v", err)
		}
	}

	// Overrides config with environment variables. Therefore, the values
	// from the environment variables precede the values from the YAML file.
	config.ValkeyEndpoint = env.OptionalStringVariable("VALKEY_ENDPOINT", config.ValkeyEndpoint)
	config.GeminiApiKeyA = env.OptionalStringVariable("GEMINI_API_KEY_A", config.GeminiApiKeyA)
	config.GeminiApiKeyB = env.OptionalStringVariable("GEMINI_API_KEY_B", config.GeminiApiKeyB)
	config.OpenRouterApiKey = env.OptionalStringVariable("OPENROUTER_API_KEY", config.OpenRouterApiKey)
	config.HuggingFaceApiKey = env.OptionalStringVariable("HUGGINGFACE_API_KEY", config.HuggingFaceApiKey)
	config.ReplicateApiToken = env.OptionalStringVariable("REPLICATE_API_TOKEN", config.ReplicateApiToken)
	config.Models.Gemini = env.OptionalStringVariable("GEMINI_MODEL", config.Models.Gemini)
	config.Models.OpenRouter = env.OptionalStringVariable("OPENROUTER_MODEL", config.Models.OpenRouter)
	config.Models.HuggingFace = env.OptionalStringVariable("HUGGINGFACE_MODEL", config.Models.HuggingFace)
	config.Models.Replicate = env.OptionalStringVariable("REPLICATE_MODEL", config.Models.Replicate)
	config.DailyLimits.GeminiA = env.OptionalIntVariable("DAILY_LIMIT_GEMINI_A", config.DailyLimits.GeminiA)
	config.DailyLimits.GeminiB = env.OptionalIntVariable("DAILY_LIMIT_GEMINI_B", config.DailyLimits.GeminiB)
	config.DailyLimits.OpenRouter = env.OptionalIntVariable("DAILY_LIMIT_OPENROUTER", config.DailyLimits.OpenRouter)
	config.DailyLimits.HuggingFace = env.OptionalIntVariable("DAILY_LIMIT_HUGGINGFACE", config.DailyLimits.HuggingFace)
	config.DailyLimits.Replicate = env.OptionalIntVariable("DAILY_LIMIT_REPLICATE", config.DailyLimits.Replicate)
	config.RequestTimeout = env.OptionalStringVariable("REQUEST_TIMEOUT", config.RequestTimeout)
	config.ReplicateTimeout = env.OptionalStringVariable("REPLICATE_TIMEOUT", config.ReplicateTimeout)
	config.ReplicatePollInterval = env.OptionalStringVariable("REPLICATE_POLL_INTERVAL", config.ReplicatePollInterval)

	for _, field := range []string{config.RequestTimeout, config.ReplicateTimeout, config.ReplicatePollInterval} {
		if _, err := time.ParseDuration(field); err != nil {
			return nil, fmt.Errorf("invalid duration %q: %v", field, err)
		}
	}

	return &config, nil
}

// QuotaClassFor resolves a provider's quota class, defaulting to paid.
func (c *Config) QuotaClassFor(id textgen.ProviderID) textgen.QuotaClass {
	if c.QuotaClasses[string(id)] == string(textgen.QuotaClassFreeTier) {
		return textgen.QuotaClassFreeTier
	}
	return textgen.QuotaClassPaid
}
