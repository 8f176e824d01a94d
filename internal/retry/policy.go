// Package retry runs an operation until it succeeds, fails permanently, or
// runs out of attempts. The delay and the sleep are injectable so tests run
// without wall-clock waits.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"cryptoDataPipeline/internal/ports"
)

// DelayFunc returns how long to wait after the given failed attempt (1-based).
type DelayFunc func(attempt int) time.Duration

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds how an operation is retried.
type Policy struct {
	MaxAttempts int
	Delay       DelayFunc
	Sleep       SleepFunc
	// Retryable decides whether an error is transient. Defaults to ports.IsTransient.
	Retryable func(error) bool
	// OnRetry is called before each wait, mainly for logging and metrics.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// FixedDelay waits the same duration after every attempt.
func FixedDelay(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// ExponentialDelay doubles the wait after every attempt, starting at min and
// capped at max.
func ExponentialDelay(min, max time.Duration) DelayFunc {
	b := &backoff.Backoff{Min: min, Max: max, Factor: 2}
	return func(attempt int) time.Duration {
		return b.ForAttempt(float64(attempt - 1))
	}
}

// ContextSleep is the production SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoSleep returns immediately unless ctx is already done.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Do runs op until it succeeds or the policy gives up.
// Permanent errors are returned as is. When every attempt failed the returned
// error wraps both ports.ErrRetriesExhausted and the last failure.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay == nil {
		delay = FixedDelay(0)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = ports.IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		d := delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, d, lastErr)
		}
		if err := sleep(ctx, d); err != nil {
			return fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ports.ErrRetriesExhausted, attempts, lastErr)
}
