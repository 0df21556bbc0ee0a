package resilience

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/allaspectsdev/webcore/internal/errs"
)

func TestIsRetryableStatus(t *testing.T) {
	retryable := []int{429, 502, 503, 504}
	for _, code := range retryable {
		if !IsRetryableStatus(code) {
			t.Errorf("expected %d to be retryable", code)
		}
	}

	nonRetryable := []int{200, 201, 400, 401, 403, 404, 500}
	for _, code := range nonRetryable {
		if IsRetryableStatus(code) {
			t.Errorf("expected %d to NOT be retryable", code)
		}
	}
}

func TestCalculateDelay_Exponential(t *testing.T) {
	cfg := ExponentialRetryConfig(10, 100*time.Millisecond, 10*time.Second)

	// Attempt 0: jittered around base (50ms-150ms).
	for i := 0; i < 100; i++ {
		d := cfg.calculateDelay(0)
		if d < 50*time.Millisecond || d >= 150*time.Millisecond {
			t.Fatalf("attempt 0: delay %v out of range [50ms, 150ms)", d)
		}
	}

	// Attempt 5: base * 2^5 = 3200ms, jittered, still under maxDelay.
	for i := 0; i < 100; i++ {
		d := cfg.calculateDelay(5)
		if d < 0 || d > 10*time.Second {
			t.Fatalf("attempt 5: delay %v out of range", d)
		}
	}

	// Attempt 20: delay capped at maxDelay before jitter, so never exceeds 1.5x max.
	for i := 0; i < 100; i++ {
		d := cfg.calculateDelay(20)
		if d < 0 || d > 15*time.Second {
			t.Fatalf("attempt 20: delay %v out of range", d)
		}
	}

	// Zero base returns zero.
	zero := RetryConfig{BaseDelay: 0, MaxDelay: 10 * time.Second}
	if d := zero.calculateDelay(0); d != 0 {
		t.Fatalf("zero base: expected 0, got %v", d)
	}
}

func TestCalculateDelay_Linear(t *testing.T) {
	cfg := LinearRetryConfig(5, 100*time.Millisecond, time.Second)

	if d := cfg.calculateDelay(0); d != 100*time.Millisecond {
		t.Fatalf("attempt 0: expected 100ms, got %v", d)
	}
	if d := cfg.calculateDelay(1); d != 200*time.Millisecond {
		t.Fatalf("attempt 1: expected 200ms, got %v", d)
	}
	if d := cfg.calculateDelay(20); d != time.Second {
		t.Fatalf("attempt 20: expected capped at 1s, got %v", d)
	}
}

func TestCalculateDelay_Fixed(t *testing.T) {
	cfg := FixedRetryConfig(5, 250*time.Millisecond)
	for attempt := 0; attempt < 5; attempt++ {
		if d := cfg.calculateDelay(attempt); d != 250*time.Millisecond {
			t.Fatalf("attempt %d: expected fixed 250ms, got %v", attempt, d)
		}
	}
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepWithContext(ctx, 10*time.Second)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected context cancelled error")
	}
	if elapsed > 1*time.Second {
		t.Fatalf("sleep should have returned immediately; took %v", elapsed)
	}
}

func TestSleepWithContext_Completes(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	err := sleepWithContext(ctx, 10*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 10*time.Millisecond {
		t.Fatalf("sleep should have waited at least 10ms; took %v", elapsed)
	}
}

func TestRetryAfterDuration(t *testing.T) {
	if d := RetryAfterDuration(nil); d != 0 {
		t.Fatalf("nil response: expected 0, got %v", d)
	}

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "5")
	if d := RetryAfterDuration(resp); d != 5*time.Second {
		t.Fatalf("expected 5s, got %v", d)
	}

	resp2 := &http.Response{Header: http.Header{}}
	if d := RetryAfterDuration(resp2); d != 0 {
		t.Fatalf("no header: expected 0, got %v", d)
	}
}

func TestWith_SucceedsFirstTry(t *testing.T) {
	calls := 0
	cfg := FixedRetryConfig(3, time.Millisecond)
	err := With(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestWith_RetriesRetryableError(t *testing.T) {
	calls := 0
	cfg := FixedRetryConfig(3, time.Millisecond)
	err := With(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.New(errs.Network, "connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWith_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	cfg := FixedRetryConfig(5, time.Millisecond)
	err := With(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errs.New(errs.Validation, "bad input")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retry for non-retryable error), got %d", calls)
	}
}

func TestWith_ExhaustsAttempts(t *testing.T) {
	calls := 0
	cfg := FixedRetryConfig(3, time.Millisecond)
	err := With(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errs.New(errs.Timeout, "deadline exceeded")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWith_HonorsRetryAfter(t *testing.T) {
	calls := 0
	cfg := FixedRetryConfig(2, time.Hour) // huge base delay, should be overridden
	start := time.Now()
	err := With(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errs.New(errs.RateLimit, "slow down").WithRetryAfter(1)
		}
		return nil
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < time.Second || elapsed > 2*time.Second {
		t.Fatalf("RetryAfter(1) should replace the one-hour delay with one second; took %v", elapsed)
	}
}

func TestWith_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := FixedRetryConfig(5, time.Hour)
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := With(ctx, cfg, func(ctx context.Context) error {
		calls++
		return errs.New(errs.Network, "down")
	})
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call before cancellation interrupted the wait, got %d", calls)
	}
}
