// Package config loads the daemon configuration from a JSON or YAML file,
// with environment overrides on top. YAML is coerced to JSON so one strict
// decoder (DisallowUnknownFields) covers both formats.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Device    DeviceConfig    `json:"device"`
	Inbound   InboundConfig   `json:"inbound"`
	DeviceLog DeviceLogConfig `json:"devicelog"`
	Sim       SimConfig       `json:"sim"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty" env:"BRIDGED_LOG_LEVEL"`
	Console bool   `json:"console,omitempty" env:"BRIDGED_LOG_CONSOLE"`
	File    string `json:"file,omitempty" env:"BRIDGED_LOG_FILE"`

	// Forward mirrors log lines at or above ForwardLevel onto the bridge
	// event bus, rate limited to ForwardRate lines per second.
	Forward      bool   `json:"forward,omitempty" env:"BRIDGED_LOG_FORWARD"`
	ForwardLevel string `json:"forward_level,omitempty" env:"BRIDGED_LOG_FORWARD_LEVEL"`
	ForwardRate  int    `json:"forward_rate,omitempty" env:"BRIDGED_LOG_FORWARD_RATE"`
}

type StorageConfig struct {
	Driver string `json:"driver,omitempty" env:"BRIDGED_STORAGE_DRIVER"`
	Path   string `json:"path,omitempty" env:"BRIDGED_STORAGE_PATH"`

	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty" env:"BRIDGED_STORAGE_BUSY_TIMEOUT"`
}

type DeviceConfig struct {
	Platform string `json:"platform,omitempty" env:"BRIDGED_DEVICE_PLATFORM"`
	ID       string `json:"id,omitempty" env:"BRIDGED_DEVICE_ID"`
}

type InboundConfig struct {
	SpoolDir string `json:"spool_dir,omitempty" env:"BRIDGED_SPOOL_DIR"`
}

type DeviceLogConfig struct {
	IntervalMs int64 `json:"interval_ms,omitempty" env:"BRIDGED_DEVICELOG_INTERVAL_MS"`
	MaxLines   int   `json:"max_lines,omitempty" env:"BRIDGED_DEVICELOG_MAX_LINES"`
}

// SimConfig tunes the built-in vendor simulator the daemon runs against.
type SimConfig struct {
	// AuthDelay is a Go duration string; empty keeps the simulator default.
	AuthDelay   string `json:"auth_delay,omitempty" env:"BRIDGED_SIM_AUTH_DELAY"`
	PrivacyText string `json:"privacy_text,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:        "info",
			Console:      true,
			File:         "./bridged.log",
			ForwardLevel: "warn",
			ForwardRate:  5,
		},
		Storage: StorageConfig{
			Driver:      "sqlite",
			Path:        "./bridged.db",
			BusyTimeout: "5s",
		},
		Device: DeviceConfig{
			Platform: "android",
		},
		Inbound: InboundConfig{
			SpoolDir: "./spool",
		},
	}
}

// Load reads path, applies environment overrides, and validates. A missing
// file is not an error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, err
	default:
		jsonBytes, format, cerr := coerceToJSONBytes(path, data)
		if cerr != nil {
			return nil, fmt.Errorf("parse %s config %s: %w", format, path, cerr)
		}
		dec := json.NewDecoder(bytes.NewReader(jsonBytes))
		dec.DisallowUnknownFields()
		if derr := dec.Decode(cfg); derr != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, derr)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Storage.Driver != "" && c.Storage.Driver != "sqlite" && c.Storage.Driver != "memory" {
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if _, err := c.StorageBusyTimeout(); err != nil {
		return fmt.Errorf("storage.busy_timeout: %w", err)
	}
	if _, err := c.SimAuthDelay(); err != nil {
		return fmt.Errorf("sim.auth_delay: %w", err)
	}
	if c.DeviceLog.IntervalMs < 0 {
		return errors.New("devicelog.interval_ms must not be negative")
	}
	if c.Logging.ForwardRate < 0 {
		return errors.New("logging.forward_rate must not be negative")
	}
	return nil
}

func (c *Config) StorageBusyTimeout() (time.Duration, error) {
	if c.Storage.BusyTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Storage.BusyTimeout)
}

func (c *Config) SimAuthDelay() (time.Duration, error) {
	if c.Sim.AuthDelay == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Sim.AuthDelay)
}
