package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/allaspectsdev/webcore/internal/tracing"
	"github.com/allaspectsdev/webcore/internal/webctx"
)

// recoverMiddleware runs fn inside a deferred recover so a panicking
// middleware slot does not crash the process. A panic is converted into
// an error naming the offending middleware.
func recoverMiddleware(name string, fn func() (Result, error)) (result Result, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("middleware %s: panic: %v", name, r)
		}
	}()
	return fn()
}

// Chain is the priority-ordered registry. Middleware slots run inbound in
// ascending priority order; the outbound phase runs over the same slot
// set in the same order, not reversed.
type Chain struct {
	middlewares []Middleware

	mu      sync.RWMutex
	timings map[string]time.Duration
}

// NewChain builds a Chain from middlewares, sorted by ascending
// Priority().
func NewChain(middlewares ...Middleware) *Chain {
	sorted := append([]Middleware(nil), middlewares...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Chain{
		middlewares: sorted,
		timings:     make(map[string]time.Duration),
	}
}

// ProcessRequest runs each enabled middleware's ProcessRequest in
// ascending priority order. It returns the index of the last slot that
// ran (so ProcessResponse knows which outbound slots to visit), whether
// the chain should stop entirely (Stop) rather than proceed to the route
// handler, and the names of any slots that captured the response.
type RequestOutcome struct {
	RanUpTo  int      // inclusive index into the sorted slot list
	Stopped  bool     // true if a slot returned Stop
	Captured []string // names of slots that returned Capture, in run order
}

func (c *Chain) ProcessRequest(ctx context.Context, rc *webctx.Context) (RequestOutcome, error) {
	outcome := RequestOutcome{RanUpTo: -1}

	for i, mw := range c.middlewares {
		if !mw.Enabled() {
			continue
		}

		name := mw.Name()
		mwCtx, mwSpan := tracing.StartMiddlewareSpan(ctx, name, "request")
		start := time.Now()

		result, err := recoverMiddleware(name, func() (Result, error) {
			return mw.ProcessRequest(mwCtx, rc)
		})
		elapsed := time.Since(start)

		c.recordTiming(name, elapsed)
		outcome.RanUpTo = i

		if err != nil {
			tracing.RecordError(mwCtx, err)
			mwSpan.End()
			return outcome, fmt.Errorf("middleware %s: request processing failed: %w", name, err)
		}
		mwSpan.End()

		switch result {
		case Stop:
			outcome.Stopped = true
			return outcome, nil
		case Capture:
			// The slot already wrote a response, but inbound dispatch
			// keeps going: later slots (and the route handler, gated by
			// rc.Responded() at the call site) still get a chance to run.
			outcome.Captured = append(outcome.Captured, name)
		}
	}

	return outcome, nil
}

// ProcessResponse runs the outbound phase over the slots that ran
// inbound (indices 0..=ranUpTo), in the same ascending order, honoring a
// Stop result by halting immediately.
func (c *Chain) ProcessResponse(ctx context.Context, rc *webctx.Context, ranUpTo int) error {
	if ranUpTo < 0 {
		return nil
	}

	for i := 0; i <= ranUpTo && i < len(c.middlewares); i++ {
		mw := c.middlewares[i]
		if !mw.Enabled() {
			continue
		}

		name := mw.Name()
		mwCtx, mwSpan := tracing.StartMiddlewareSpan(ctx, name, "response")
		start := time.Now()

		result, err := recoverMiddleware(name, func() (Result, error) {
			return mw.ProcessResponse(mwCtx, rc)
		})
		elapsed := time.Since(start)

		c.recordTiming(name+".response", elapsed)

		if err != nil {
			tracing.RecordError(mwCtx, err)
			mwSpan.End()
			return fmt.Errorf("middleware %s: response processing failed: %w", name, err)
		}
		mwSpan.End()

		if result == Stop {
			return nil
		}
	}

	return nil
}

// Timings returns a snapshot of the latest per-slot execution times.
func (c *Chain) Timings() map[string]time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]time.Duration, len(c.timings))
	for k, v := range c.timings {
		snapshot[k] = v
	}
	return snapshot
}

// Middlewares returns the ordered slot list.
func (c *Chain) Middlewares() []Middleware {
	result := make([]Middleware, len(c.middlewares))
	copy(result, c.middlewares)
	return result
}

func (c *Chain) recordTiming(name string, d time.Duration) {
	c.mu.Lock()
	c.timings[name] = d
	c.mu.Unlock()
}
