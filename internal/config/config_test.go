package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Equal(t, "data/memtest.db", cfg.DatabaseURL)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.JanitorEnabled)
	assert.False(t, cfg.ExportCSV)
	assert.Empty(t, cfg.AdminUserIDs)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"TELEGRAM_BOT_TOKEN": "token",
		"DATABASE_DRIVER":    "postgres",
		"DATABASE_URL":       "postgres://localhost/memtest",
		"ADMIN_USER_IDS":     "42, 7,",
		"SESSION_TTL":        "10m",
		"ENABLE_JANITOR":     "false",
		"EXPORT_CSV":         "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.BotToken)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.True(t, cfg.IsAdmin(42))
	assert.True(t, cfg.IsAdmin(7))
	assert.False(t, cfg.IsAdmin(1))
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.JanitorEnabled)
	assert.True(t, cfg.ExportCSV)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{"DATABASE_DRIVER": "mysql"}},
		{name: "bad admin id", env: map[string]string{"ADMIN_USER_IDS": "abc"}},
		{name: "bad duration", env: map[string]string{"SESSION_TTL": "soon"}},
		{name: "negative duration", env: map[string]string{"JANITOR_INTERVAL": "-1s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MEMTEST_CONFIG_PROBE=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MEMTEST_CONFIG_PROBE") })

	_, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", os.Getenv("MEMTEST_CONFIG_PROBE"))
}
