package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "store:\n  path: /tmp/wtw.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/wtw.db", cfg.Store.Path)
	assert.Equal(t, 3, cfg.Notify.Attempts)
	assert.Equal(t, 5*time.Second, cfg.Notify.Delay)
	assert.Equal(t, 90*24*time.Hour, cfg.Summary.Window)
	assert.Equal(t, 1000, cfg.Selector.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: firestore
  project_id: wardrobe-prod
notify:
  attempts: 5
  delay: 2s
selector:
  budget: 250ms
`)
	t.Setenv("WTW_TWILIO_FROM", "+15550001111")
	t.Setenv("WTW_JOBS_CONCURRENCY", "8")
	t.Setenv("WTW_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverFirestore, cfg.Store.Driver)
	assert.Equal(t, "wardrobe-prod", cfg.Store.ProjectID)
	assert.Equal(t, 5, cfg.Notify.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Notify.Delay)
	assert.Equal(t, 250*time.Millisecond, cfg.Selector.Budget)
	assert.Equal(t, "+15550001111", cfg.Twilio.From)
	assert.Equal(t, 8, cfg.Jobs.Concurrency)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "store:\n  driver: mongo\n"},
		{"firestore without project", "store:\n  driver: firestore\n"},
		{"zero attempts", "notify:\n  attempts: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
