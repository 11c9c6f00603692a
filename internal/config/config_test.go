package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("APP_BASE_URL", "")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "http://localhost:3000", cfg.AppBaseURL)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("APP_BASE_URL", "https://giftsplit.app/")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_abc")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "https://giftsplit.app", cfg.AppBaseURL)
	assert.Equal(t, "whsec_abc", cfg.StripeWebhookSecret)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
}
