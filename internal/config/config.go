package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters shared by the family-guard services.
type Config struct {
	// FamilyID identifies the family whose zones and alerts this process serves.
	FamilyID string `yaml:"family_id"`
	// TrackedMembers lists member ids the daemon starts tracking on boot.
	TrackedMembers []string `yaml:"tracked_members"`
	// StorePath is the SQLite database location backing the store.
	StorePath string `yaml:"store_path"`
	// RoutePath is the YAML route file fed to the replay locator by the daemon.
	RoutePath string `yaml:"route_path"`
	// SampleInterval is the period between one-shot location acquisitions.
	SampleInterval time.Duration `yaml:"sample_interval"`
	// LocatorTimeout bounds a single coordinate acquisition.
	LocatorTimeout time.Duration `yaml:"locator_timeout"`
	// PersistTimeout bounds a single store write from the sampling loop.
	PersistTimeout time.Duration `yaml:"persist_timeout"`
	// WatchAccuracyCeiling is the worst accepted accuracy (meters) for
	// continuous-watch samples. Interval samples are never filtered.
	WatchAccuracyCeiling float64 `yaml:"watch_accuracy_ceiling"`
	// BatteryThreshold is the battery percentage at or below which alerts fire.
	BatteryThreshold int `yaml:"battery_threshold"`
	// BatteryCooldown is the minimum gap between battery alerts per member.
	BatteryCooldown time.Duration `yaml:"battery_cooldown"`
	// AlertDedupWindow is the span in which near-identical zone alerts merge.
	AlertDedupWindow time.Duration `yaml:"alert_dedup_window"`
	// LogLevel sets the minimum logging level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default filename for guard settings.
	DefaultConfigFilename = "family-guard-settings.yaml"

	// DefaultStoreFilename is the default SQLite database filename.
	DefaultStoreFilename = "family-guard.db"

	// DefaultSampleInterval is the default period between location samples.
	DefaultSampleInterval = 30 * time.Second

	// DefaultLocatorTimeout is the default ceiling for one acquisition.
	DefaultLocatorTimeout = 10 * time.Second

	// DefaultPersistTimeout is the default ceiling for one store write.
	DefaultPersistTimeout = 5 * time.Second

	// DefaultWatchAccuracyCeiling is the default accuracy filter in meters.
	DefaultWatchAccuracyCeiling float64 = 100

	// DefaultBatteryThreshold is the default battery alert percentage.
	DefaultBatteryThreshold = 20

	// DefaultBatteryCooldown is the default gap between battery alerts.
	DefaultBatteryCooldown = 30 * time.Minute

	// DefaultAlertDedupWindow is the default zone-alert merge window.
	DefaultAlertDedupWindow = 10 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errFamilyRequired is returned when the family id is missing.
	errFamilyRequired = errors.New("family id must be provided")
	// errNegativeAccuracy is returned when the accuracy ceiling is negative.
	errNegativeAccuracy = errors.New("watch accuracy ceiling must not be negative")
	// errBadBatteryThreshold is returned when the threshold is outside 0..100.
	errBadBatteryThreshold = errors.New("battery threshold must be between 0 and 100")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.FamilyID == "" {
		return errFamilyRequired
	}

	if cfg.WatchAccuracyCeiling < 0 {
		return errNegativeAccuracy
	}

	if cfg.BatteryThreshold < 0 || cfg.BatteryThreshold > 100 {
		return errBadBatteryThreshold
	}

	if cfg.StorePath == "" {
		cfg.StorePath = DefaultStoreFilename
	}

	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}

	if cfg.LocatorTimeout <= 0 {
		cfg.LocatorTimeout = DefaultLocatorTimeout
	}

	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}

	if cfg.WatchAccuracyCeiling == 0 {
		cfg.WatchAccuracyCeiling = DefaultWatchAccuracyCeiling
	}

	if cfg.BatteryThreshold == 0 {
		cfg.BatteryThreshold = DefaultBatteryThreshold
	}

	if cfg.BatteryCooldown <= 0 {
		cfg.BatteryCooldown = DefaultBatteryCooldown
	}

	if cfg.AlertDedupWindow <= 0 {
		cfg.AlertDedupWindow = DefaultAlertDedupWindow
	}

	return nil
}
