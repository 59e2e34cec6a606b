// Package logging wires the engine's structured logger to zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls where and how log lines are written.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console, json
	Output string // stdout, stderr, or a file path
}

// DefaultConfig returns sane defaults for interactive use.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: "stdout"}
}

// New builds a zerolog.Logger from cfg. A zero Config behaves like DefaultConfig.
func New(cfg Config) (zerolog.Logger, error) {
	if cfg.Level == "" {
		cfg = DefaultConfig()
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, err
	}

	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Logger{}, err
		}
		out = f
	}

	if strings.ToLower(cfg.Format) != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, nil
}
