package logger

import (
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

// Options configures the process logger.
type Options struct {
	// DevMode enables human-readable console logging.
	DevMode bool
	Level   string
	// File, when set, adds a rolling JSON log file next to the stderr output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New initializes a new zerolog.Logger.
// An unknown level falls back to info.
func New(opts Options) zerolog.Logger {
	var out io.Writer = os.Stderr

	if opts.DevMode {
		// Human-readable, colorful output for local development
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	if opts.File != "" {
		out = zerolog.MultiLevelWriter(out, RollingFile(opts))
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// RollingFile returns the size-rotated file writer described by opts.
func RollingFile(opts Options) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,  // megabytes
		MaxAge:     opts.MaxAgeDays, // days
		MaxBackups: opts.MaxBackups, // num of files
		LocalTime:  true,
		Compress:   false,
	}
}
