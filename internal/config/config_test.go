package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.ExpireAfter)
	assert.Equal(t, 5*time.Minute, cfg.ManualExpireAfter)
	assert.Equal(t, []string{"24-session", "48-session"}, cfg.Programs)
	assert.True(t, cfg.SweepEnabled)
	assert.False(t, cfg.Production())
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("SWEEP_INTERVAL", "10s")
	t.Setenv("MANUAL_EXPIRE_AFTER", "15m")
	t.Setenv("PROGRAMS", "24-session, 96-session")
	t.Setenv("STORE_BACKEND", "MEMORY")
	t.Setenv("SWEEP_ENABLED", "false")
	t.Setenv("MEETING_BASE_URL", "https://meet.example.org/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, 15*time.Minute, cfg.ManualExpireAfter)
	assert.Equal(t, 5*time.Minute, cfg.ExpireAfter)
	assert.Equal(t, []string{"24-session", "96-session"}, cfg.Programs)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.False(t, cfg.SweepEnabled)
	assert.Equal(t, "https://meet.example.org", cfg.MeetingBaseURL)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
