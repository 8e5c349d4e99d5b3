package infrastructure

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears keys for the test and restores them afterwards.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	unsetEnv(t, "HTTP_ADDR", "DB_DRIVER", "AI_PROVIDER", "AI_TIMEOUT", "OUTBOX_MAX_RETRIES",
		"CALIBRATION_INTERVAL", "DEFAULT_ACCEPT_THRESHOLD", "DEFAULT_REJECT_THRESHOLD")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 5, cfg.Outbox.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.CalibrationInterval)

	defaults := cfg.Thresholds.Defaults()
	assert.Equal(t, 80.0, defaults.AutoAccept)
	assert.Equal(t, 40.0, defaults.AutoReject)
	assert.True(t, defaults.FromDefaults)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	unsetEnv(t, "AI_PROVIDER", "OUTBOX_BATCH_SIZE", "GEMINI_MODELS")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AI_PROVIDER=openai\nOUTBOX_BATCH_SIZE=7\nGEMINI_MODELS=a, b\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, 7, cfg.Outbox.BatchSize)
	assert.Len(t, cfg.AI.GeminiModels, 2)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown driver":       {"DB_DRIVER": "postgres"},
		"unknown provider":     {"AI_PROVIDER": "claude"},
		"zero retries":         {"OUTBOX_MAX_RETRIES": "0"},
		"negative ai timeout":  {"AI_TIMEOUT": "-1s"},
		"overlapping defaults": {"DEFAULT_ACCEPT_THRESHOLD": "40", "DEFAULT_REJECT_THRESHOLD": "60"},
		"bad duration":         {"OUTBOX_INTERVAL": "soon"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}
