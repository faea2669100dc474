package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "WEBHOOK_URL", "N8N_WEBHOOK_URL", "WEBHOOK_TIMEOUT", "APP_ENV", "LOG_LEVEL", "LOG_FORMAT",
		"RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW_MS", "RATE_LIMIT_SWEEP_SECONDS", "TRUST_PROXY_HEADERS",
		"CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.True(t, cfg.Server.TrustProxyHeaders)
	require.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	require.False(t, cfg.Webhook.Configured())
	require.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
	require.Equal(t, 10, cfg.RateLimit.Limit)
	require.Equal(t, time.Minute, cfg.RateLimit.Window)
	require.Equal(t, EnvDevelopment, cfg.Environment)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "console", cfg.Log.Format)
}

func TestLoadProductionLogging(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoadWebhookFallbackVariable(t *testing.T) {
	clearEnv(t)
	t.Setenv("N8N_WEBHOOK_URL", " https://n8n.example.com/webhook/chat ")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://n8n.example.com/webhook/chat", cfg.Webhook.URL)
	require.True(t, cfg.Webhook.Configured())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/a")
	t.Setenv("N8N_WEBHOOK_URL", "https://hooks.example.com/b")
	t.Setenv("WEBHOOK_TIMEOUT", "5")
	t.Setenv("RATE_LIMIT_MAX", "3")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "1500")
	t.Setenv("RATE_LIMIT_SWEEP_SECONDS", "0")
	t.Setenv("TRUST_PROXY_HEADERS", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	require.Equal(t, "https://hooks.example.com/a", cfg.Webhook.URL)
	require.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	require.Equal(t, 3, cfg.RateLimit.Limit)
	require.Equal(t, 1500*time.Millisecond, cfg.RateLimit.Window)
	require.Zero(t, cfg.RateLimit.SweepInterval)
	require.False(t, cfg.Server.TrustProxyHeaders)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"RATE_LIMIT_MAX":       "0",
		"RATE_LIMIT_WINDOW_MS": "soon",
		"WEBHOOK_TIMEOUT":      "-1",
		"TRUST_PROXY_HEADERS":  "maybe",
		"LOG_FORMAT":           "xml",
		"PORT":                 "80 80",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}
