package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1500, cfg.PollMs)
	assert.Equal(t, 10, cfg.MaxAttempts)
	assert.Equal(t, 2000, cfg.BaseDelayMs)
	assert.Equal(t, 300000, cfg.MaxDelayMs)
	assert.Equal(t, 500, cfg.MonitorMaxLogs)
	assert.Equal(t, 300000, cfg.MonitorMaxAgeMs)
	assert.Equal(t, 0, cfg.AlertThreshold)
	assert.Equal(t, 15000, cfg.MailLogTimeoutMs)
	assert.Equal(t, "8080", cfg.APIPort)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("POLL_MS", "250")
	t.Setenv("MAX_ATTEMPTS", "3")
	t.Setenv("ALERT_THRESHOLD", "5")
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.example.com/alert")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.PollMs)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 5, cfg.AlertThreshold)
	assert.Equal(t, "https://hooks.example.com/alert", cfg.AlertWebhookURL)
}
