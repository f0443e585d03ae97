// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	errorsmod "cosmossdk.io/errors"
	"go.uber.org/zap"
)

// Config describes the backoff schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Default suits short calls against a local marketplace.
func Default() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// Func is a retryable operation.
type Func func(ctx context.Context) error

// Retryable decides whether err is worth another attempt.
type Retryable func(err error) bool

// Always retries every error.
func Always(error) bool { return true }

// Do runs fn until it succeeds, returns a non-retryable error, exhausts
// cfg.MaxAttempts or ctx is cancelled.
func Do(ctx context.Context, cfg Config, logger *zap.Logger, fn Func, retryable Retryable) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if retryable == nil {
		retryable = Always
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}
		if !retryable(err) {
			return err
		}

		delay := cfg.delay(attempt)
		logger.Warn("attempt failed", zap.Int("attempt", attempt), zap.Int("max", cfg.MaxAttempts),
			zap.Duration("backoff", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errorsmod.Wrapf(lastErr, "all %d attempts failed", cfg.MaxAttempts)
}

func (c Config) delay(attempt int) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(c.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	return time.Duration(delay)
}
