// Package config provides configuration loading for healthsyncd.
//
// Configuration is loaded from a single YAML file specified by the
// --config flag or the HEALTHSYNCD_CONFIG environment variable. When
// neither is set, built-in defaults apply with the data directory
// resolved under the user's XDG data home.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

// EnvConfigPath is the environment variable naming the config file.
const EnvConfigPath = "HEALTHSYNCD_CONFIG"

// Config is the master configuration for healthsyncd.
type Config struct {
	// DataDir holds the encrypted state database and key file.
	DataDir string `yaml:"data_dir"`

	// LogFile is where the daemon writes structured logs. Empty means
	// <data_dir>/healthsyncd.log.
	LogFile string `yaml:"log_file"`

	// Platform forces an adapter ("healthkit", "healthconnect", "none").
	// Empty auto-detects.
	Platform string `yaml:"platform"`

	// HealthKitBridge / HealthConnectBridge override the bridge binary
	// names or paths.
	HealthKitBridge     string `yaml:"healthkit_bridge"`
	HealthConnectBridge string `yaml:"healthconnect_bridge"`

	// CooldownMinutes is the minimum interval between non-forced syncs.
	CooldownMinutes int `yaml:"cooldown_minutes"`

	// SyncIntervalMinutes is the periodic background sync interval.
	SyncIntervalMinutes int `yaml:"sync_interval_minutes"`

	// SettleDelayMillis is the wait between a permission request and the
	// after-snapshot grant query.
	SettleDelayMillis int `yaml:"settle_delay_millis"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:             filepath.Join(xdg.DataHome, "healthsyncd"),
		CooldownMinutes:     15,
		SyncIntervalMinutes: 15,
		SettleDelayMillis:   300,
	}
}

// Load reads the config file at path. An empty path falls back to the
// HEALTHSYNCD_CONFIG environment variable, then to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.CooldownMinutes < 0 || c.SyncIntervalMinutes < 0 || c.SettleDelayMillis < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	switch domain.Platform(c.Platform) {
	case "", domain.PlatformHealthKit, domain.PlatformHealthConnect, domain.PlatformNone:
	default:
		return fmt.Errorf("unknown platform %q", c.Platform)
	}
	return nil
}

// Cooldown returns the cooldown as a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// SyncInterval returns the periodic sync interval as a duration.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// SettleDelay returns the settle delay as a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMillis) * time.Millisecond
}

// ResolvedLogFile returns the log file path, defaulting into DataDir.
func (c Config) ResolvedLogFile() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, "healthsyncd.log")
}
