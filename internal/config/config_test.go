package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost:5432/b2b",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 0, cfg.TaxRateBPS)
	require.Equal(t, 10, cfg.CheckoutRateLimit)
	require.Equal(t, time.Minute, cfg.CheckoutRateWindow)
	require.Equal(t, 4, cfg.RewardProcessConcurrency)
	require.Equal(t, 5*time.Minute, cfg.RewardProcessingLease)
	require.True(t, cfg.Obs.MetricsEnabled)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "9090"
	env["TAX_RATE_BPS"] = "1100"
	env["REWARD_PROCESS_CONCURRENCY"] = "8"
	env["CORS_ALLOWED_ORIGINS"] = "https://admin.example.com, https://shop.example.com"
	env["OBS_ENABLE_PROMETHEUS"] = "false"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 1100, cfg.TaxRateBPS)
	require.Equal(t, 8, cfg.RewardProcessConcurrency)
	require.Equal(t, []string{"https://admin.example.com", "https://shop.example.com"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.Obs.MetricsEnabled)
}

func TestLoadRequiresSecrets(t *testing.T) {
	env := baseEnv()
	env["JWT_SECRET"] = ""
	_, err := config.LoadForTests(env)
	require.Error(t, err)

	env = baseEnv()
	env["TAX_RATE_BPS"] = "20000"
	_, err = config.LoadForTests(env)
	require.Error(t, err)
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	for key, value := range map[string]string{
		"TAX_RATE_BPS":               "10001",
		"CARD_BREAKER_FAILURE_RATIO": "1.5",
		"CHECKOUT_RATE_LIMIT":        "0",
	} {
		env := baseEnv()
		env[key] = value
		_, err := config.LoadForTests(env)
		require.Error(t, err, key)
	}
}
