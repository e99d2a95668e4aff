// Grounded on tysonthomas9-beads/cmd/bd/daemon_logger.go (slog + lumberjack
// rotating file handler).
package daemon

import (
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig controls log rotation, mirroring the beads daemon logger's
// defaults.
type LoggerConfig struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger builds a slog.Logger that writes JSON lines to a rotating file
// under cfg.Dir, or, when attached is true (e.g. `server start
// --foreground`), plain text lines to stderr instead of the file.
func NewLogger(cfg LoggerConfig, attached bool) (*slog.Logger, error) {
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 50
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays == 0 {
		cfg.MaxAgeDays = 28
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "server.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	var handler slog.Handler
	if attached {
		handler = slog.NewTextHandler(os.Stderr, nil)
	} else {
		handler = slog.NewJSONHandler(rotator, nil)
	}
	return slog.New(handler), nil
}
