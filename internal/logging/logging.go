package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pion/logging"
)

// Level maps LOG_LEVEL values to slog levels. Unknown values keep the
// production default.
func Level(value string) slog.Level {
	switch value {
	case "dev", "development", "debug", "trace":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	}
	return slog.LevelError // default: production only shows errors
}

func Init() {
	level := slog.LevelError
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = Level(l)
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}

// levelTrace sits below slog.LevelDebug for pion's trace output.
const levelTrace = slog.LevelDebug - 4

// PionFactory hands pion scoped loggers that write to a slog.Logger.
type PionFactory struct {
	log *slog.Logger
}

var _ logging.LoggerFactory = (*PionFactory)(nil)

// NewPionFactory returns a pion LoggerFactory backed by log. A nil log uses
// slog.Default().
func NewPionFactory(log *slog.Logger) *PionFactory {
	if log == nil {
		log = slog.Default()
	}
	return &PionFactory{log: log}
}

func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{log: f.log.With("scope", "pion/"+scope)}
}

type pionLogger struct {
	log *slog.Logger
}

func (l *pionLogger) emit(level slog.Level, msg string) {
	l.log.Log(context.Background(), level, msg)
}

func (l *pionLogger) emitf(level slog.Level, format string, args ...interface{}) {
	if !l.log.Enabled(context.Background(), level) {
		return
	}
	l.log.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Trace(msg string)                          { l.emit(levelTrace, msg) }
func (l *pionLogger) Tracef(format string, args ...interface{}) { l.emitf(levelTrace, format, args...) }
func (l *pionLogger) Debug(msg string)                          { l.emit(slog.LevelDebug, msg) }
func (l *pionLogger) Debugf(format string, args ...interface{}) { l.emitf(slog.LevelDebug, format, args...) }
func (l *pionLogger) Info(msg string)                           { l.emit(slog.LevelInfo, msg) }
func (l *pionLogger) Infof(format string, args ...interface{})  { l.emitf(slog.LevelInfo, format, args...) }
func (l *pionLogger) Warn(msg string)                           { l.emit(slog.LevelWarn, msg) }
func (l *pionLogger) Warnf(format string, args ...interface{})  { l.emitf(slog.LevelWarn, format, args...) }
func (l *pionLogger) Error(msg string)                          { l.emit(slog.LevelError, msg) }
func (l *pionLogger) Errorf(format string, args ...interface{}) { l.emitf(slog.LevelError, format, args...) }
