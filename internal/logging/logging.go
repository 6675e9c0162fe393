// Package logging configures the process slog logger.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
)

// FileName is the log file created inside the data directory.
const FileName = "sensormon.log"

// Init returns a text logger writing to <dir>/sensormon.log and, when
// console is set, to stdout as well. The returned closer releases the
// file. If the file cannot be opened the logger falls back to stderr.
func Init(dir string, console bool, level slog.Level) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: level}

	if err := os.MkdirAll(dir, 0755); err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		logger.Error("cannot create log dir; logging to stderr only", "error", err)
		return logger, io.NopCloser(nil)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		logger.Error("failed to open log file; logging to stderr only", "error", err)
		return logger, io.NopCloser(nil)
	}

	var w io.Writer = f
	if console {
		w = io.MultiWriter(f, os.Stdout)
	}
	logger := slog.New(slog.NewTextHandler(w, opts))

	// Keep stray stdlib log output away from the terminal UI.
	log.SetOutput(w)
	return logger, f
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
