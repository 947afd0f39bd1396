package aoferrors

import (
	"context"
	"math/rand"
	"time"

	"github.com/Seldon-Engine/aof/internal/logging"
)

// RetryConfig controls the bounded internal retry used around filesystem
// operations classified as TransientIO (a rename losing a race with a
// concurrent repair pass, a momentary EINTR, an NFS hiccup).
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryConfig returns bounded-retry defaults for TransientIO
// classified errors.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// ShouldRetry decides whether the operation should run again. Only
// TransientIO is retried internally; every other kind surfaces immediately.
func ShouldRetry(err error) bool {
	return IsTransient(err)
}

// Retry runs fn up to cfg.MaxAttempts times, sleeping with exponential
// backoff between attempts, stopping early once err is no longer
// classified as retryable or the context is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	return RetryWithLog(ctx, cfg, logging.Nop(), fn)
}

// RetryWithLog is Retry with a logger that receives one Warn line per
// failed attempt (skipped on the final attempt, which returns the error).
func RetryWithLog(ctx context.Context, cfg RetryConfig, logger logging.Logger, fn func(ctx context.Context) error) error {
	logger = logging.OrNop(logger)
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := calculateBackoff(cfg, attempt)
		logger.Warn("retrying after transient error (attempt %d/%d, backoff %v): %v", attempt, cfg.MaxAttempts, delay, lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// RetryWithResult is Retry for functions that also produce a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	return RetryWithResultAndLog(ctx, cfg, logging.Nop(), fn)
}

// RetryWithResultAndLog is RetryWithResult with attempt logging.
func RetryWithResultAndLog[T any](ctx context.Context, cfg RetryConfig, logger logging.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	logger = logging.OrNop(logger)
	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !ShouldRetry(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := calculateBackoff(cfg, attempt)
		logger.Warn("retrying after transient error (attempt %d/%d, backoff %v): %v", attempt, cfg.MaxAttempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}

func calculateBackoff(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= cfg.Multiplier
	}
	if max := float64(cfg.MaxDelay); delay > max {
		delay = max
	}
	if cfg.Jitter {
		delay = delay*0.5 + rand.Float64()*delay*0.5
	}
	return time.Duration(delay)
}

// RetryStats records outcome counters for a retried operation, as returned
// by RetryWithStats.
type RetryStats struct {
	Attempts int
	Succeeded bool
	LastError error
}

// RetryWithStats runs Retry and also returns a RetryStats describing how
// many attempts were made.
func RetryWithStats(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) RetryStats {
	stats := RetryStats{}
	err := RetryWithLog(ctx, cfg, logging.Nop(), func(ctx context.Context) error {
		stats.Attempts++
		return fn(ctx)
	})
	stats.Succeeded = err == nil
	stats.LastError = err
	return stats
}
