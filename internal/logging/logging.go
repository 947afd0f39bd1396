// Package logging provides the minimal logging contract used across the
// daemon: component-tagged, printf-style, backed by log/slog.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Logger is the contract every component depends on. It never returns an
// error and never panics: logging must not be a new way for the daemon to
// fail.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// slogLogger adapts log/slog to the Logger contract, tagging every record
// with a component name.
type slogLogger struct {
	component string
	base      *slog.Logger
}

// New creates a Logger backed by slog's text handler writing to w at the
// given level, tagged with component.
func New(component string, level slog.Level, w *os.File) Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &slogLogger{component: component, base: slog.New(handler)}
}

// NewComponentLogger wraps an existing slog.Logger, tagging it with
// component. Used when the daemon shares one underlying handler across
// subsystems.
func NewComponentLogger(component string, base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &slogLogger{component: component, base: base}
}

func (l *slogLogger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
func (l *slogLogger) Info(format string, args ...any)  { l.log(slog.LevelInfo, format, args...) }
func (l *slogLogger) Warn(format string, args ...any)  { l.log(slog.LevelWarn, format, args...) }
func (l *slogLogger) Error(format string, args ...any) { l.log(slog.LevelError, format, args...) }

func (l *slogLogger) log(level slog.Level, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.base.Log(context.Background(), level, msg, "component", l.component)
}

type nop struct{}

func (nop) Debug(string, ...any) {}
func (nop) Info(string, ...any)  {}
func (nop) Warn(string, ...any)  {}
func (nop) Error(string, ...any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nop{} }

// OrNop returns l if non-nil, otherwise a Nop logger. Every constructor in
// this codebase routes its logger argument through this so a nil logger
// never causes a crash.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
