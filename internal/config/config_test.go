package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and default filling for settings.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing family id.
	cfg := new(Config)

	err := Validate(cfg)
	require.Error(t, err)

	// Bad battery threshold.
	cfg = &Config{
		FamilyID:         "fam-1",
		BatteryThreshold: 150,
	}

	err = Validate(cfg)
	require.Error(t, err)

	// Okay; defaults applied.
	cfg = &Config{
		FamilyID: "fam-1",
	}

	err = Validate(cfg)
	require.NoError(t, err)
	require.Equal(t, DefaultSampleInterval, cfg.SampleInterval)
	require.Equal(t, DefaultWatchAccuracyCeiling, cfg.WatchAccuracyCeiling)
	require.Equal(t, DefaultBatteryThreshold, cfg.BatteryThreshold)
	require.Equal(t, DefaultAlertDedupWindow, cfg.AlertDedupWindow)
	require.Equal(t, DefaultStoreFilename, cfg.StorePath)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		FamilyID:       "fam-1",
		TrackedMembers: []string{"mem-1", "mem-2"},
		SampleInterval: 15 * time.Second,
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.FamilyID, loaded.FamilyID)
	require.Equal(t, cfg.TrackedMembers, loaded.TrackedMembers)
	require.Equal(t, 15*time.Second, loaded.SampleInterval)

	// Defaults filled on load.
	require.Equal(t, DefaultBatteryCooldown, loaded.BatteryCooldown)
}
