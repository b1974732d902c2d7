// Package config loads and saves the application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SyncConfig holds settings for the device sync server.
type SyncConfig struct {
	// Enabled controls whether the sync server is started at all.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// SyncCompleted includes completed tasks when pushing to a device.
	SyncCompleted bool `mapstructure:"sync_completed" yaml:"sync_completed"`

	// DayStartHour and DayEndHour bound the working day shown on devices.
	DayStartHour int `mapstructure:"day_start_hour" yaml:"day_start_hour"`
	DayEndHour   int `mapstructure:"day_end_hour" yaml:"day_end_hour"`
}

// FileConfig holds settings for the task file.
type FileConfig struct {
	// Path is the task file location; empty means no file loaded yet.
	Path string `mapstructure:"path" yaml:"path"`

	// AutoSave writes the task file after every change.
	AutoSave bool `mapstructure:"auto_save" yaml:"auto_save"`

	// AutoSaveIntervalSec is the autosave check period in seconds.
	AutoSaveIntervalSec int `mapstructure:"auto_save_interval_sec" yaml:"auto_save_interval_sec"`
}

// StoreConfig holds settings for the local device/session database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Sync  SyncConfig  `mapstructure:"sync" yaml:"sync"`
	File  FileConfig  `mapstructure:"file" yaml:"file"`
	Store StoreConfig `mapstructure:"store" yaml:"store"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/tasknest/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "tasknest", "config.yaml")
}

// DefaultStorePath returns the default path for the sync database.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "tasknest.db")
	}
	return filepath.Join(home, ".config", "tasknest", "tasknest.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Sync: SyncConfig{
			Enabled:      true,
			DayStartHour: 8,
			DayEndHour:   18,
		},
		File:  FileConfig{AutoSave: true, AutoSaveIntervalSec: 300},
		Store: StoreConfig{Path: DefaultStorePath()},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.day_start_hour", 8)
	v.SetDefault("sync.day_end_hour", 18)
	v.SetDefault("file.auto_save", true)
	v.SetDefault("file.auto_save_interval_sec", 300)
	v.SetDefault("store.path", DefaultStorePath())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("sync", cfg.Sync)
	v.Set("file", cfg.File)
	v.Set("store", cfg.Store)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
