// Package logging configures structured diagnostic logging for the
// controller core, using slog with an optional rotating file sink.
// This is engineering/diagnostic logging; the user-facing history log
// is a separate, out-of-scope collaborator.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/greenfield-labs/irrigctl/internal/config"
)

// Init configures the global slog logger from cfg.
func Init(cfg config.LogConfig) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	var writers []io.Writer
	for i, out := range cfg.Outputs {
		w, err := createWriter(out)
		if err != nil {
			return fmt.Errorf("logging: output[%d] (%s): %w", i, out.Type, err)
		}
		writers = append(writers, w)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(io.MultiWriter(writers...), handlerOpts)
	case "json", "":
		handler = slog.NewJSONHandler(io.MultiWriter(writers...), handlerOpts)
	default:
		return fmt.Errorf("logging: unsupported format %q", cfg.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func createWriter(out config.LogOutput) (io.Writer, error) {
	switch strings.ToLower(out.Type) {
	case "console", "stdout", "":
		return os.Stdout, nil
	case "file":
		if out.Path == "" {
			return nil, fmt.Errorf("file output requires a path")
		}
		return &lumberjack.Logger{
			Filename:   out.Path,
			MaxSize:    out.MaxSizeMB,
			MaxBackups: out.MaxBackups,
			MaxAge:     out.MaxAgeDays,
			Compress:   out.Compress,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported output type %q", out.Type)
	}
}
