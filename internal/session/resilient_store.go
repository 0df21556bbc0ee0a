package session

import (
	"context"
	"time"

	"github.com/allaspectsdev/webcore/internal/errs"
	"github.com/allaspectsdev/webcore/internal/resilience"
)

// ResilientStore wraps a Store with retry and circuit-breaker protection,
// for backends whose I/O can fail transiently (a locked sqlite file, a
// disk under momentary pressure). Every operation is retried per retry,
// and the circuit breaker trips after repeated failures so a struggling
// store fails fast instead of piling up retries.
type ResilientStore struct {
	inner   Store
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	onState func(state resilience.CBState)
}

// NewResilientStore wraps inner. onState, if non-nil, is invoked after
// every guarded call with the breaker's current state, so a caller can
// mirror it into a metrics gauge.
func NewResilientStore(inner Store, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker, onState func(state resilience.CBState)) *ResilientStore {
	return &ResilientStore{inner: inner, retry: retry, breaker: breaker, onState: onState}
}

func (s *ResilientStore) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.breaker.Guard(func() error {
		return resilience.With(ctx, s.retry, func(ctx context.Context) error {
			if ferr := fn(ctx); ferr != nil {
				return errs.Wrap(errs.Network, "session store operation failed", ferr)
			}
			return nil
		})
	})
	if s.onState != nil {
		s.onState(s.breaker.State())
	}
	return err
}

// Get implements Store.
func (s *ResilientStore) Get(ctx context.Context, id string, fp *Fingerprint) (*Data, error) {
	var data *Data
	err := s.guard(ctx, func(ctx context.Context) error {
		d, gerr := s.inner.Get(ctx, id, fp)
		data = d
		return gerr
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set implements Store.
func (s *ResilientStore) Set(ctx context.Context, id string, data *Data, ttl time.Duration) error {
	return s.guard(ctx, func(ctx context.Context) error {
		return s.inner.Set(ctx, id, data, ttl)
	})
}

// Delete implements Store.
func (s *ResilientStore) Delete(ctx context.Context, id string) error {
	return s.guard(ctx, func(ctx context.Context) error {
		return s.inner.Delete(ctx, id)
	})
}

// Exists implements Store.
func (s *ResilientStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.guard(ctx, func(ctx context.Context) error {
		e, eerr := s.inner.Exists(ctx, id)
		exists = e
		return eerr
	})
	return exists, err
}

// CleanupExpired implements Store.
func (s *ResilientStore) CleanupExpired(ctx context.Context) (int, error) {
	var n int
	err := s.guard(ctx, func(ctx context.Context) error {
		removed, cerr := s.inner.CleanupExpired(ctx)
		n = removed
		return cerr
	})
	return n, err
}

// BackendName implements Store.
func (s *ResilientStore) BackendName() string {
	return s.inner.BackendName()
}

// Stats implements Store.
func (s *ResilientStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.guard(ctx, func(ctx context.Context) error {
		st, serr := s.inner.Stats(ctx)
		stats = st
		return serr
	})
	return stats, err
}
