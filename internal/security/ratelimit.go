// Package security provides pipeline middleware that enforces request-level
// policy: currently per-route rate limiting.
package security

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/allaspectsdev/webcore/internal/config"
	"github.com/allaspectsdev/webcore/internal/pipeline"
	"github.com/allaspectsdev/webcore/internal/webctx"
)

// tokenBucket implements a token-bucket rate limiter for a single key.
type tokenBucket struct {
	rate       float64 // tokens per second
	burst      int     // max burst size
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// allow attempts to consume one token from the bucket. It returns true if
// the request is allowed, or false if the bucket is empty (rate limited).
func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}

	if tb.tokens < 1.0 {
		return false
	}

	tb.tokens -= 1.0
	return true
}

// RateLimitMiddleware is a pipeline.Middleware that enforces token-bucket
// rate limits keyed by client IP, with overrides per exact request path.
type RateLimitMiddleware struct {
	priority     int
	limiters     map[string]*tokenBucket // keyed by "route|clientIP"
	routeLimits  map[string]config.RouteRateLimit
	defaultRate  float64
	defaultBurst int
	enabled      bool
	mu           sync.RWMutex
}

var _ pipeline.Middleware = (*RateLimitMiddleware)(nil)

// NewRateLimitMiddleware creates a RateLimitMiddleware from the resolved
// rate limit config. priority determines this slot's position in the
// pipeline (lower runs earlier).
func NewRateLimitMiddleware(priority int, cfg config.RateLimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		priority:     priority,
		limiters:     make(map[string]*tokenBucket),
		routeLimits:  cfg.RouteLimits,
		defaultRate:  cfg.DefaultRate,
		defaultBurst: cfg.DefaultBurst,
		enabled:      cfg.Enabled,
	}
}

func (rl *RateLimitMiddleware) Name() string  { return "ratelimit" }
func (rl *RateLimitMiddleware) Priority() int { return rl.priority }
func (rl *RateLimitMiddleware) Enabled() bool { return rl.enabled }

// ProcessRequest checks the caller's bucket for the matched route. If the
// rate limit is exceeded, it writes a 429 directly and stops the chain.
func (rl *RateLimitMiddleware) ProcessRequest(ctx context.Context, rc *webctx.Context) (pipeline.Result, error) {
	route := rc.Request.URL.Path
	key := route + "|" + clientIP(rc.Request.RemoteAddr)

	rate, burst := rl.limitsFor(route)
	bucket := rl.getOrCreateBucket(key, rate, burst)

	if !bucket.allow() {
		retryAfter := 1.0 / rate
		if retryAfter < 0.1 {
			retryAfter = 0.1
		}
		rc.TooManyRequests(retryAfter, fmt.Sprintf("rate limit of %.1f req/s exceeded", rate))
		return pipeline.Stop, nil
	}

	return pipeline.Continue, nil
}

// ProcessResponse is a no-op for rate limiting.
func (rl *RateLimitMiddleware) ProcessResponse(ctx context.Context, rc *webctx.Context) (pipeline.Result, error) {
	return pipeline.Continue, nil
}

// limitsFor returns the configured rate/burst for a route, falling back to
// the middleware's default.
func (rl *RateLimitMiddleware) limitsFor(route string) (float64, int) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if rl, ok := rl.routeLimits[route]; ok {
		return rl.Rate, rl.Burst
	}
	return rl.defaultRate, rl.defaultBurst
}

// getOrCreateBucket returns the token bucket for a key, creating one with
// the given rate/burst if it does not exist yet.
func (rl *RateLimitMiddleware) getOrCreateBucket(key string, rate float64, burst int) *tokenBucket {
	rl.mu.RLock()
	bucket, ok := rl.limiters[key]
	rl.mu.RUnlock()

	if ok {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if bucket, ok = rl.limiters[key]; ok {
		return bucket
	}

	bucket = newTokenBucket(rate, burst)
	rl.limiters[key] = bucket
	return bucket
}

// Reconfigure replaces the default rate/burst and per-route overrides. This
// is called when the config is hot-reloaded.
func (rl *RateLimitMiddleware) Reconfigure(cfg config.RateLimitConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.defaultRate = cfg.DefaultRate
	rl.defaultBurst = cfg.DefaultBurst
	rl.routeLimits = cfg.RouteLimits
	rl.limiters = make(map[string]*tokenBucket)
}

// clientIP extracts the host portion of a RemoteAddr, stripping the port.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return host
}
