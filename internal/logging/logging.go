// Package logging provides structured logging for the indexing pipeline.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls the constructed logger's format and level.
type Config struct {
	Level  string // debug, info, warn, error; defaults to info
	Format string // json or text; defaults to json
}

// New builds a *slog.Logger writing to stdout per cfg.
func New(cfg Config) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter builds a *slog.Logger writing to w per cfg.
func NewWithWriter(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithPartition returns a logger scoped to a partition, used throughout the
// orchestrator and indexer so every log line names its partition.
func WithPartition(logger *slog.Logger, partition string) *slog.Logger {
	return logger.With(slog.String("partition", partition))
}

// WithModel returns a logger further scoped to a model within a partition.
func WithModel(logger *slog.Logger, model string) *slog.Logger {
	return logger.With(slog.String("model", model))
}
