package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stickervault/internal/models"
)

// New constructs the process logger from the log section of the config.
func New(cfg models.LogConfig) (zerolog.Logger, error) {
	return newWithWriter(cfg, os.Stdout)
}

func newWithWriter(cfg models.LogConfig, out io.Writer) (zerolog.Logger, error) {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("logging.New: %w", err)
	}

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "stickervault").
		Logger(), nil
}
