// Package retry runs operations under a bounded exponential backoff policy.
//
// Every network call made by hoist goes through Do with either Default or
// Auth. The policy decides retryability; the engine only counts attempts
// and sleeps.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pithecene-io/hoist/apierr"
)

// Policy is an immutable retry configuration. Copy and modify to derive
// a variant; never mutate a shared policy.
type Policy struct {
	// MaxAttempts counts the initial attempt. Values < 1 mean 1.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps every computed delay.
	MaxDelay time.Duration
	// Multiplier grows the delay per attempt. Values < 1 mean 1.
	Multiplier float64
	// Retryable decides whether an error is worth another attempt.
	// Nil means apierr.IsRetryable.
	Retryable func(error) bool
	// OnRetry, if set, is called before each backoff sleep with the
	// attempt that just failed (1-based) and the delay about to be slept.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default values shared by all API calls.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultMultiplier  = 2.0
)

// Default returns the policy used for deployment API calls.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		Retryable:   apierr.IsRetryable,
	}
}

// Auth returns the policy for credential checks: same backoff as Default,
// but 401/403 are never retried.
func Auth() Policy {
	p := Default()
	p.Retryable = func(err error) bool {
		if apierr.IsAuth(err) {
			return false
		}
		return apierr.IsRetryable(err)
	}
	return p
}

// WithOnRetry returns a copy of p that reports retries to fn.
func (p Policy) WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Policy {
	p.OnRetry = fn
	return p
}

// Delay returns the backoff slept after the given failed attempt (1-based):
// min(BaseDelay * Multiplier^(attempt-1), MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return apierr.IsRetryable(err)
	}
	return p.Retryable(err)
}

// ExhaustedError is returned when every attempt failed with a retryable
// error. It unwraps to the last error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempts run out. Non-retryable errors are returned unchanged.
// The backoff sleep is interrupted by ctx.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.attempts()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, errors.Join(ctxErr, err)
		}
		if !p.retryable(err) {
			return zero, err
		}
		if attempt >= attempts {
			if attempts == 1 {
				return zero, err
			}
			return zero, &ExhaustedError{Attempts: attempts, Err: err}
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
