// Package config loads the controller core's YAML system
// configuration: loop periods (scaled by power mode), persistent
// store location, wireless surface toggle, metrics port, and logging
// settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PowerMode scales the core's loop periods to trade responsiveness
// for battery life.
type PowerMode string

const (
	PowerNormal        PowerMode = "normal"
	PowerEnergySaving  PowerMode = "energy_saving"
	PowerUltraLow      PowerMode = "ultra_low_power"
)

// LogOutput is one destination in the logging fan-out.
type LogOutput struct {
	Type       string            `yaml:"type"` // console, file
	Path       string            `yaml:"path,omitempty"`
	MaxSizeMB  int               `yaml:"max_size_mb,omitempty"`
	MaxBackups int               `yaml:"max_backups,omitempty"`
	MaxAgeDays int               `yaml:"max_age_days,omitempty"`
	Compress   bool              `yaml:"compress,omitempty"`
	Labels     map[string]string `yaml:"labels,omitempty"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level   string      `yaml:"level"`
	Format  string      `yaml:"format"`
	Outputs []LogOutput `yaml:"outputs"`
}

// Config is the full system configuration.
type Config struct {
	StoreDir        string    `yaml:"store_dir"`
	PowerMode       PowerMode `yaml:"power_mode"`
	WirelessEnabled bool      `yaml:"wireless_enabled"`
	MetricsPort     int       `yaml:"metrics_port"`
	Log             LogConfig `yaml:"log"`
}

// Default returns a sensible baseline configuration.
func Default() Config {
	return Config{
		StoreDir:        "./data",
		PowerMode:       PowerNormal,
		WirelessEnabled: true,
		MetricsPort:     9090,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Outputs: []LogOutput{
				{Type: "console"},
			},
		},
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoopPeriods are the cadences the core's goroutines run at, scaled
// by power mode.
type LoopPeriods struct {
	TaskTick      time.Duration
	SchedulerTick time.Duration
}

// Periods returns the loop cadence for a power mode.
func Periods(mode PowerMode) LoopPeriods {
	switch mode {
	case PowerEnergySaving:
		return LoopPeriods{TaskTick: 2 * time.Second, SchedulerTick: time.Minute}
	case PowerUltraLow:
		return LoopPeriods{TaskTick: 5 * time.Second, SchedulerTick: 5 * time.Minute}
	default:
		return LoopPeriods{TaskTick: time.Second, SchedulerTick: 15 * time.Second}
	}
}
