package log

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits of the optional log file.
const (
	maxLogFileSizeMB = 5
	maxLogBackups    = 3
	maxLogAgeDays    = 30
)

// Options configures NewLogger.
type Options struct {
	// Verbose sets the level to Debug instead of Info.
	Verbose bool
	// JSON selects the JSON handler instead of the text handler.
	JSON bool
	// File, when set, receives a rotated copy of the output.
	File string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger creates a sanitizing logger writing to w and, if opts.File is
// set, to a rotated log file. The returned closer releases the file.
func NewLogger(w io.Writer, opts Options) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxLogFileSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(w, rotator)
		closer = rotator
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(NewSecureHandler(handler)), closer
}

// NewSecureLogger creates a sanitizing text logger writing to w.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	logger, _ := NewLogger(w, Options{Verbose: verbose})
	return logger
}
