// Package logger builds the zap logger from config.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mil-ad/bluepanel/internal/config"
)

// New creates a configured *zap.Logger.
// The returned closer syncs the logger and closes any file handle.
func New(cfg config.LoggerConfig) (*zap.Logger, func() error, error) {
	ws, closeOutput, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	log := zap.New(zapcore.NewCore(enc, ws, parseLevel(cfg.Level)), zap.AddCaller())
	closer := func() error {
		// Sync on a terminal returns EINVAL; nothing to report.
		_ = log.Sync()
		return closeOutput()
	}
	return log, closer, nil
}

// parseLevel converts a string level to a zapcore.Level.
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// openOutput returns a WriteSyncer for the specified output target.
func openOutput(output string) (zapcore.WriteSyncer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return zapcore.Lock(os.Stdout), noop, nil
	case "stderr", "":
		return zapcore.Lock(os.Stderr), noop, nil
	default:
		if err := os.MkdirAll(filepath.Dir(output), 0o700); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, err
		}
		return zapcore.Lock(f), f.Close, nil
	}
}
