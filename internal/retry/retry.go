// Package retry wraps network calls with per-attempt timeouts and
// exponential backoff. Only network-class failures are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"auction-sync/internal/biddingerrors"
)

// Default configuration values.
const (
	DefaultMaxRetries        = 3
	DefaultBaseDelay         = 1 * time.Second
	DefaultMaxDelay          = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultTimeout           = 10 * time.Second
)

// Options configures retry behavior.
type Options struct {
	// MaxRetries is the total number of attempts. Values below 1 mean 1.
	MaxRetries int
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps every delay. Zero means no cap.
	MaxDelay time.Duration
	// BackoffMultiplier grows the delay between consecutive attempts.
	BackoffMultiplier float64
	// Timeout bounds each individual attempt. Zero disables it.
	Timeout time.Duration
	// Jitter in [0,1] shortens each delay by a random fraction up to
	// Jitter. Zero keeps the schedule exact.
	Jitter float64
	// OnRetry, if set, is called before each repeated attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultOptions returns default retry configuration.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        DefaultMaxRetries,
		BaseDelay:         DefaultBaseDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		Timeout:           DefaultTimeout,
	}
}

func (o Options) normalize() Options {
	if o.MaxRetries < 1 {
		o.MaxRetries = 1
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = 1
	}
	if o.BaseDelay < 0 {
		o.BaseDelay = 0
	}
	o.Jitter = math.Max(0, math.Min(1, o.Jitter))
	return o
}

// Delay returns the wait before retry number n (n >= 1):
// min(BaseDelay * BackoffMultiplier^(n-1), MaxDelay).
func (o Options) Delay(n int) time.Duration {
	o = o.normalize()
	if n < 1 {
		return 0
	}
	d := float64(o.BaseDelay) * math.Pow(o.BackoffMultiplier, float64(n-1))
	if o.MaxDelay > 0 && d > float64(o.MaxDelay) {
		return o.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (o Options) jittered(n int) time.Duration {
	d := o.Delay(n)
	if o.Jitter == 0 || d == 0 {
		return d
	}
	return d - time.Duration(rand.Float64()*o.Jitter*float64(d))
}

// Do calls fn until it succeeds, fails with a non-retryable error, or
// MaxRetries attempts are used up. The most recent error is returned.
// Cancelling ctx stops the loop between attempts.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	opts = opts.normalize()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := opts.jittered(attempt - 1)
			if opts.OnRetry != nil {
				opts.OnRetry(attempt, delay, lastErr)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry cancelled after %d attempts: %w", attempt-1, ctx.Err())
			case <-timer.C:
			}
		}

		result, err := callWithTimeout(ctx, opts.Timeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil || !biddingerrors.IsRetryable(err) {
			return zero, err
		}
	}

	return zero, lastErr
}

// callWithTimeout runs fn under a per-attempt deadline and reports an
// expired deadline as ErrTimeout.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return result, fmt.Errorf("%w after %s: %v", biddingerrors.ErrTimeout, timeout, err)
	}
	return result, err
}
