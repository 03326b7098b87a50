package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the rotated log file. An empty Path keeps output on
// stdout.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func New(lvl string, addSource bool, enviroment string) *slog.Logger {
	return NewWithOutput(lvl, addSource, enviroment, os.Stdout)
}

// NewWithFile behaves like New but writes to a size-rotated file when one is
// configured. The returned closer releases the file and is never nil.
func NewWithFile(lvl string, addSource bool, enviroment string, file FileOptions) (*slog.Logger, io.Closer) {
	if file.Path == "" {
		return New(lvl, addSource, enviroment), nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		Compress:   file.Compress,
		LocalTime:  true,
	}

	return NewWithOutput(lvl, addSource, enviroment, rotator), rotator
}

func NewWithOutput(lvl string, addSource bool, enviroment string, out io.Writer) *slog.Logger {
	level := parseLevel(lvl)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
	}
	var handler slog.Handler

	if strings.ToLower(enviroment) == "prod" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler).With(
		slog.String("environment", enviroment),
	)
}

func parseLevel(level string) slog.Level {

	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
