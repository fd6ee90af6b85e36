// Package retry runs an operation a bounded number of times with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier" validate:"gte=1"`
	Jitter      float64       `mapstructure:"jitter" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the defaults used for remote listings
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Backoff returns the wait before the given attempt (1-based) is retried.
// Jitter is not applied.
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := float64(c.InitialWait) * math.Pow(c.Multiplier, float64(attempt-1))
	if c.MaxWait > 0 && wait > float64(c.MaxWait) {
		wait = float64(c.MaxWait)
	}
	return time.Duration(wait)
}

func (c Config) attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

// RetryableError marks an error that should be retried
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string {
	return e.Err.Error()
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error carries the retryable marker
func IsRetryable(err error) bool {
	var retryable RetryableError
	return errors.As(err, &retryable)
}

// Retryable wraps an error to mark it as retryable
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return RetryableError{Err: err}
}

// Classifier decides whether err should be retried
type Classifier func(err error) bool

// DoWithResult executes fn until it succeeds, returns a non-retryable error,
// or MaxAttempts is reached. A nil classifier uses IsRetryable.
func DoWithResult[T any](ctx context.Context, cfg Config, classify Classifier, fn func() (T, error)) (T, error) {
	if classify == nil {
		classify = IsRetryable
	}

	var (
		result  T
		lastErr error
	)
	for attempt := 1; attempt <= cfg.attempts(); attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		lastErr = err

		if !classify(err) || attempt == cfg.attempts() {
			break
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		wait := float64(cfg.Backoff(attempt))
		if cfg.Jitter > 0 {
			wait += wait * cfg.Jitter * (rand.Float64()*2 - 1)
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(time.Duration(wait)):
		}
	}
	return result, lastErr
}

// Do executes fn with retries
func Do(ctx context.Context, cfg Config, classify Classifier, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, classify, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
