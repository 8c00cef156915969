package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, 15, cfg.LeadMinutes)
	assert.Equal(t, 5, cfg.UpcomingLimit)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Second load reads the created file back.
	cfg2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Listen, cfg2.Listen)
}

func TestLoad_PartialFileGetsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 0.0.0.0:9000\nweek_start: tuesday\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	// Unknown week start falls back to sunday.
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, "*/15 * * * *", cfg.RefreshCron)
	assert.Equal(t, 90, cfg.HorizonDays)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalize_SnapshotDefaults(t *testing.T) {
	cfg := &Config{Snapshot: &SnapshotConfig{}}
	cfg.Normalize()

	assert.Equal(t, "./var/preview.png", cfg.Snapshot.Output)
	assert.Equal(t, 1024, cfg.Snapshot.Width)
	assert.Equal(t, 768, cfg.Snapshot.Height)
}

func TestLocationAndLead(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Local, cfg.Location())
	assert.Equal(t, 15*time.Minute, cfg.Lead())

	cfg.Timezone = "definitely/not-a-zone"
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}
