package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/claimlens/backend/pkg/errors"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      60 * time.Second,
	}
}

// backOff builds the exponential schedule: delay grows by BackoffFactor
// each attempt and is capped at MaxDelay. Randomization is disabled so the
// schedule is exactly base * factor^attempt.
func (c Config) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.BaseDelay
	b.Multiplier = c.BackoffFactor
	b.MaxInterval = c.MaxDelay
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do executes fn with exponential backoff. Errors classified as permanent
// by pkg/errors (permanent, validation, circuit-open) are returned
// immediately without further attempts; the last error is returned when
// attempts are exhausted. Sleeping is context-aware.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return DoWithLog(ctx, cfg, "", fn, nil)
}

// DoWithLog executes fn with retry and invokes logFn before each delay.
func DoWithLog(ctx context.Context, cfg Config, serviceName string, fn func() error, logFn func(attempt int, err error, nextDelay time.Duration)) error {
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	attempt := 0
	notify := func(err error, next time.Duration) {
		attempt++
		if logFn != nil {
			logFn(attempt, err, next)
		}
	}

	if err := backoff.RetryNotify(op, cfg.backOff(ctx), notify); err != nil {
		if serviceName != "" {
			return fmt.Errorf("%s: %w", serviceName, err)
		}
		return err
	}
	return nil
}
