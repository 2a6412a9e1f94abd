// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

// Config selects the level, format and optional file of the logger.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File, when set, receives every entry in addition to stdout.
	File string `mapstructure:"file"`
}

// New returns a configured logger and a func that closes its log file.
func New(cfg Config) (*log.Logger, func() error, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg Config, stdout io.Writer) (*log.Logger, func() error, error) {
	logger := log.New()
	closeFn := func() error { return nil }

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, closeFn, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: timestampFormat})
	default:
		return nil, closeFn, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logger.SetOutput(stdout)
	if cfg.File == "" {
		return logger, closeFn, nil
	}

	if dir := filepath.Dir(cfg.File); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, closeFn, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, closeFn, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
	}
	logger.SetOutput(io.MultiWriter(stdout, f))
	return logger, f.Close, nil
}
