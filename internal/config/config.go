// Package config loads the panel configuration from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Adapter    string        `yaml:"adapter"`     // BlueZ controller, e.g. "hci0"
	ScanWindow time.Duration `yaml:"scan_window"` // how long one scan collects devices
	FrameRate  int           `yaml:"frame_rate"`  // control loop frames per second
	Socket     string        `yaml:"socket"`      // remote control socket path
	Logger     LoggerConfig  `yaml:"logger"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
	Output string `yaml:"output"` // stdout, stderr or a file path
}

// Path returns the config file location: $BLUEPANEL_CONFIG, else
// $XDG_CONFIG_HOME/bluepanel/config.yaml.
func Path() string {
	if p := os.Getenv("BLUEPANEL_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "bluepanel", "config.yaml")
}

// SocketPath is the default remote control socket.
func SocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "bluepanel.sock")
}

// LogPath is the default log file. The terminal belongs to the panel while it
// runs, so logs go to a file.
func LogPath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(dir, "bluepanel", "bluepanel.log")
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		Adapter:    "hci0",
		ScanWindow: 6 * time.Second,
		FrameRate:  60,
		Socket:     SocketPath(),
		Logger: LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: LogPath(),
		},
	}
}

// Load reads a YAML config file, applies env var overrides and validates the
// result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps BLUEPANEL_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BLUEPANEL_ADAPTER"); v != "" {
		cfg.Adapter = v
	}
	if v := os.Getenv("BLUEPANEL_SCAN_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BLUEPANEL_SCAN_WINDOW: %w", err)
		}
		cfg.ScanWindow = d
	}
	if v := os.Getenv("BLUEPANEL_SOCKET"); v != "" {
		cfg.Socket = v
	}
	if v := os.Getenv("BLUEPANEL_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("BLUEPANEL_LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	return nil
}

// FrameInterval is the delay between two control loop frames.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}
