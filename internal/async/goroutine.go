// Package async provides panic-safe goroutine launches shared by every
// background loop in the daemon (scheduler ticks, aggregator runs, the
// notification rule watcher).
package async

import "runtime/debug"

// PanicLogger is the minimal logging contract a background goroutine needs
// to report a recovered panic.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in a goroutine guarded by panic recovery so one subsystem's
// bug cannot take the whole daemon down.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs panic details without crashing the process. Call it
// directly (via defer) in loops that are not started through Go, e.g. the
// top of a cron job callback.
func Recover(logger PanicLogger, name string) {
	r := recover()
	if r == nil {
		return
	}
	if logger == nil {
		return
	}
	if name == "" {
		logger.Error("goroutine panic: %v, stack: %s", r, debug.Stack())
		return
	}
	logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
}
