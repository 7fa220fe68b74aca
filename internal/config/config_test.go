package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DESK_SITE", "https://support.example.com")
	t.Setenv("DESK_EMAIL", "ops@example.com")
	t.Setenv("DESK_PASSWORD", "secret")
	t.Setenv("ZENDESK_SITE", "https://acme.zendesk.example.com")
	t.Setenv("ZENDESK_EMAIL", "ops@example.com")
	t.Setenv("ZENDESK_TOKEN", "api-token")
	t.Setenv("ZENDESK_AGENT_ID", "agent-1")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Migration.Workers)
	assert.Equal(t, 5, cfg.Migration.MaxRetries)
	assert.Equal(t, 100, cfg.Migration.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Migration.DefaultWait())
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.Status.Enabled)
	assert.Equal(t, "127.0.0.1:8090", cfg.Status.Addr)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIGRATE_WORKERS", "16")
	t.Setenv("MIGRATE_DEFAULT_WAIT_SECONDS", "5")
	t.Setenv("STATUS_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Migration.Workers)
	assert.Equal(t, 5*time.Second, cfg.Migration.DefaultWait())
	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"desk_site", "DESK_SITE"},
		{"zendesk_site", "ZENDESK_SITE"},
		{"agent_id", "ZENDESK_AGENT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.unset)
		})
	}
}

func TestGetEnvAsInt_UnparseableFallsBack(t *testing.T) {
	t.Setenv("MIGRATE_WORKERS", "lots")
	assert.Equal(t, 8, getEnvAsInt("MIGRATE_WORKERS", 8))
}
