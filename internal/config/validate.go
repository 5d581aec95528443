package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg and returns a *ValidationError listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	switch {
	case cfg.Adapter == "":
		ve.Add("adapter must not be empty")
	case strings.ContainsAny(cfg.Adapter, "/ "):
		ve.Add("adapter %q must be a controller name such as hci0", cfg.Adapter)
	}
	if cfg.ScanWindow < time.Second || cfg.ScanWindow > 2*time.Minute {
		ve.Add("scan_window %s must be between 1s and 2m", cfg.ScanWindow)
	}
	if cfg.FrameRate < 1 || cfg.FrameRate > 240 {
		ve.Add("frame_rate %d must be between 1 and 240", cfg.FrameRate)
	}
	if cfg.Socket == "" {
		ve.Add("socket must not be empty")
	}
	validateLogger(cfg.Logger, ve)

	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLogger(l LoggerConfig, ve *ValidationError) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q must be one of debug, info, warn, error", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "console", "json":
	default:
		ve.Add("logger.format %q must be console or json", l.Format)
	}
}
