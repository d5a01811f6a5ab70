package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

// Options controls where log lines go. A zero value logs Info and above to stdout.
type Options struct {
	Debug bool

	// File enables an additional size-rotated log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Init(o Options) {
	level := slog.LevelInfo
	if o.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var out io.Writer = os.Stdout
	if o.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
			MaxAge:     o.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}

	Logger = slog.New(slog.NewTextHandler(out, opts))
	slog.SetDefault(Logger)
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}
