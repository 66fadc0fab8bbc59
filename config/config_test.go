package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobquill/textgen"
)

func TestLoadConfig(t *testing.T) {
	logger := zap.NewNop().Sugar()

	t.Run("defaults without a file", func(t *testing.T) {
		config, err := LoadConfig("", logger)
		require.NoError(t, err)

		assert.Equal(t, 1500, config.DailyLimits.GeminiA)
		assert.Equal(t, 300, config.DailyLimits.HuggingFace)
		assert.Equal(t, "15s", config.ReplicateTimeout)
		assert.Equal(t, "1s", config.ReplicatePollInterval)
		assert.Equal(t, textgen.QuotaClassFreeTier, config.QuotaClassFor(textgen.ProviderHuggingFace))
		assert.Equal(t, textgen.QuotaClassPaid, config.QuotaClassFor(textgen.ProviderGeminiA))
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
gemini_api_key_a: key-a
gemini_api_key_b: key-b
daily_limits:
  huggingface: 10
models:
  replicate: meta/meta-llama-3-70b-instruct
replicate_timeout: 20s
`), 0644))

		config, err := LoadConfig(path, logger)
		require.NoError(t, err)

		assert.Equal(t, "key-a", config.GeminiApiKeyA)
		assert.Equal(t, 10, config.DailyLimits.HuggingFace)
		assert.Equal(t, "meta/meta-llama-3-70b-instruct", config.Models.Replicate)
		assert.Equal(t, "20s", config.ReplicateTimeout)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("openrouter_api_key: from-file\n"), 0644))

		t.Setenv("OPENROUTER_API_KEY", "from-env")
		t.Setenv("DAILY_LIMIT_REPLICATE", "5")

		config, err := LoadConfig(path, logger)
		require.NoError(t, err)

		assert.Equal(t, "from-env", config.OpenRouterApiKey)
		assert.Equal(t, 5, config.DailyLimits.Replicate)
	})

	t.Run("rejects malformed durations", func(t *testing.T) {
		t.Setenv("REPLICATE_POLL_INTERVAL", "soon")

		_, err := LoadConfig("", logger)
		assert.Error(t, err)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), logger)
		assert.Error(t, err)
	})
}
