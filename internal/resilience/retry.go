// Package resilience implements the retry policy and circuit breaker
// used to wrap any operation the core calls that may fail transiently
// (a session store write, a downstream fetch the admin API makes, etc).
package resilience

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/allaspectsdev/webcore/internal/errs"
)

// RetryConfig controls the backoff schedule for With.
type RetryConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// FixedRetryConfig returns a policy that waits a constant delay between
// every attempt.
func FixedRetryConfig(maxAttempts int, delay time.Duration) RetryConfig {
	return RetryConfig{MaxAttempts: maxAttempts, BaseDelay: delay, MaxDelay: delay, BackoffMultiplier: 1, Jitter: false}
}

// LinearRetryConfig returns a policy whose delay grows by base on every
// attempt (base, 2*base, 3*base, ...), clamped to maxDelay.
func LinearRetryConfig(maxAttempts int, base, maxDelay time.Duration) RetryConfig {
	return RetryConfig{MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: maxDelay, BackoffMultiplier: 0, Jitter: false}
}

// ExponentialRetryConfig returns a jittered exponential backoff policy,
// matching the reference implementation's default.
func ExponentialRetryConfig(maxAttempts int, base, maxDelay time.Duration) RetryConfig {
	return RetryConfig{MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: maxDelay, BackoffMultiplier: 2, Jitter: true}
}

// calculateDelay computes the backoff duration for the given zero-based
// attempt index. BackoffMultiplier == 0 selects linear growth;
// otherwise it selects base * multiplier^attempt.
func (c RetryConfig) calculateDelay(attempt int) time.Duration {
	if c.BaseDelay <= 0 {
		return 0
	}

	var delay time.Duration
	if c.BackoffMultiplier == 0 {
		delay = c.BaseDelay * time.Duration(attempt+1)
	} else {
		exp := math.Pow(c.BackoffMultiplier, float64(attempt))
		delay = time.Duration(float64(c.BaseDelay) * exp)
	}

	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}

	if c.Jitter && delay > 0 {
		factor := 0.5 + rand.Float64() // uniform in [0.5, 1.5)
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

// sleepWithContext sleeps for d, returning early with ctx.Err() if ctx is
// cancelled first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// With runs fn, retrying up to cfg.MaxAttempts times while fn's error is
// retryable per errs.Retryable (or is an *errs.Error carrying an explicit
// RetryAfter, which overrides the computed backoff). It gives up early if
// ctx is cancelled.
func With(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errs.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		delay := cfg.calculateDelay(attempt)
		if e, ok := errs.As(lastErr); ok && e.RetryAfter > 0 {
			delay = time.Duration(e.RetryAfter) * time.Second
		}
		if err := sleepWithContext(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// IsRetryableStatus reports whether an HTTP status code indicates a
// transient condition worth retrying.
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// RetryAfterDuration parses an HTTP response's Retry-After header,
// accepting either a delay in seconds or an HTTP-date. It returns 0 if
// the header is absent or unparsable.
func RetryAfterDuration(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
