// Package pipeline implements the priority-ordered middleware registry
// and chain: an inbound phase that can short-circuit the route handler,
// and an outbound phase that runs over the same slots in the same order.
package pipeline

import (
	"context"

	"github.com/allaspectsdev/webcore/internal/webctx"
)

// Result is what a middleware slot tells the Chain to do next.
type Result int

const (
	// Continue lets the chain proceed to the next slot (inbound) or the
	// route handler (if this was the last inbound slot).
	Continue Result = iota
	// Capture means this slot wrote a response itself (e.g. a cache
	// hit). Inbound dispatch still proceeds to the next slot — Capture
	// only guarantees that this slot's outbound phase runs and that the
	// route handler is skipped, via rc.Responded(), once a response has
	// already been written.
	Capture
	// Stop means this slot wrote a response and no further slot —
	// inbound or outbound — should run.
	Stop
)

// Middleware is one priority-ordered slot in the pipeline.
type Middleware interface {
	// Name uniquely identifies this middleware, used for timing and
	// logging.
	Name() string
	// Priority orders slots ascending; lower values run first inbound
	// and first outbound.
	Priority() int
	// Enabled reports whether this slot is active.
	Enabled() bool
	// ProcessRequest runs during the inbound phase.
	ProcessRequest(ctx context.Context, rc *webctx.Context) (Result, error)
	// ProcessResponse runs during the outbound phase, over the same
	// slot set in the same ascending-priority order as the inbound
	// phase.
	ProcessResponse(ctx context.Context, rc *webctx.Context) (Result, error)
}
