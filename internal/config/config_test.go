package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoziy/contratos/crmsync/internal/overlay"
	"github.com/mkoziy/contratos/crmsync/internal/ratelimit"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, 30*time.Minute, cfg.Sync.RunTimeout)
	assert.Equal(t, "currentMonthToDate", cfg.Sync.DefaultWindow)
	assert.True(t, cfg.Sync.AutoSuppressSameDay)
	assert.Equal(t, overlay.BackendDatabase, cfg.Overlay.Backend)
	assert.Equal(t, ratelimit.DefaultConfig(), cfg.RateLimit)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.Redis.Enabled())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Santiago", loc.String())

	assert.Error(t, cfg.RequireCRM())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, "crmsync.yaml", `
crm:
  base_url: https://crm.example.com/api
  timeout: 5s
sync:
  batch_size: 25
  default_window: today
overlay:
  backend: memory
`)
	t.Setenv("CRMSYNC_CRM_TOKEN", "secret")
	t.Setenv("CRMSYNC_SYNC_BATCH_SIZE", "50")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://crm.example.com/api", cfg.CRM.BaseURL)
	assert.Equal(t, "secret", cfg.CRM.Token)
	assert.Equal(t, 5*time.Second, cfg.CRM.Timeout)
	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, "today", cfg.Sync.DefaultWindow)
	assert.Equal(t, overlay.BackendMemory, cfg.Overlay.Backend)
	assert.NoError(t, cfg.RequireCRM())
}

func TestLoadRateLimitFile(t *testing.T) {
	rl := writeFile(t, "limits.yaml", `
rate_limits:
  crm:
    strategy: fixed_delay
    fixed_delay: 2s
`)
	t.Setenv("CRMSYNC_RATE_LIMIT_FILE", rl)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ratelimit.StrategyFixedDelay, cfg.RateLimit.Strategy)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.FixedDelay)
	assert.Equal(t, ratelimit.DefaultConfig().Burst, cfg.RateLimit.Burst)
}

func TestLoadAllowsDisablingRetries(t *testing.T) {
	t.Setenv("CRMSYNC_RATE_LIMIT_MAX_RETRIES", "0")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.RateLimit.MaxRetries)
	assert.Equal(t, ratelimit.DefaultConfig().InitialBackoff, cfg.RateLimit.InitialBackoff)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown window", map[string]string{"CRMSYNC_SYNC_DEFAULT_WINDOW": "yesterday"}},
		{"unknown backend", map[string]string{"CRMSYNC_OVERLAY_BACKEND": "disk"}},
		{"redis backend without addr", map[string]string{"CRMSYNC_OVERLAY_BACKEND": "redis"}},
		{"bad timezone", map[string]string{"CRMSYNC_SYNC_TIMEZONE": "Mars/Olympus"}},
		{"bad crm url", map[string]string{"CRMSYNC_CRM_BASE_URL": "not a url"}},
		{"bad copy address", map[string]string{"CRMSYNC_NOTIFY_INTERNAL_COPY_TO": "nobody"}},
		{"negative retries", map[string]string{"CRMSYNC_RATE_LIMIT_MAX_RETRIES": "-1"}},
		{"unknown strategy", map[string]string{"CRMSYNC_RATE_LIMIT_STRATEGY": "sliding"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
