package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/taskbridge/taskbridge/internal/config"
)

// Log format constants.
const (
	logFormatAuto = "auto"
	logFormatText = "text"
	logFormatJSON = "json"
)

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. When a log file is
// configured, output goes through a size-capped rotating writer instead of
// stderr.
func buildLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil && cfg.LogLevel != "" {
		// Validation already confirmed the level parses.
		_ = level.UnmarshalText([]byte(cfg.LogLevel))
	}

	// CLI flags override config (highest priority).
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	w := logWriter(cfg)
	opts := &slog.HandlerOptions{Level: level}

	if useJSONFormat(cfg, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// logWriter returns stderr, or a rotating file writer when log_file is set.
func logWriter(cfg *config.LoggingConfig) io.Writer {
	if cfg == nil || cfg.LogFile == "" {
		return os.Stderr
	}

	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
}

// useJSONFormat decides the handler format. "auto" picks text on a terminal
// and JSON otherwise, so piped and file output stays machine-parseable.
func useJSONFormat(cfg *config.LoggingConfig, w io.Writer) bool {
	format := logFormatAuto
	if cfg != nil && cfg.LogFormat != "" {
		format = cfg.LogFormat
	}

	switch format {
	case logFormatText:
		return false
	case logFormatJSON:
		return true
	}

	if f, ok := w.(*os.File); ok {
		return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}

	// Rotating file writer: structured output.
	return true
}
