package app

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brianly1003/notepadtt/internal/config"
	"github.com/lmittmann/tint"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogging configures the global zerolog logger and returns the slog
// logger used by the HTTP server. The returned closer flushes the log file,
// if one is configured.
func SetupLogging(cfg config.LoggingConfig, verbose bool, stderr io.Writer) (*slog.Logger, io.Closer) {
	if stderr == nil {
		stderr = os.Stderr
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = stderr
	if cfg.Format != "json" {
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}
	}

	var closer io.Closer = nopCloser{}
	out := console
	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		closer = file
		out = zerolog.MultiLevelWriter(console, file)
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	slogLevel := slog.LevelInfo
	switch {
	case level <= zerolog.DebugLevel:
		slogLevel = slog.LevelDebug
	case level == zerolog.WarnLevel:
		slogLevel = slog.LevelWarn
	case level >= zerolog.ErrorLevel:
		slogLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		var w io.Writer = stderr
		if file != nil {
			w = io.MultiWriter(stderr, file)
		}
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel})
	} else {
		handler = tint.NewHandler(stderr, &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.New(handler), closer
}
