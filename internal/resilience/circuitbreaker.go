package resilience

import (
	"sync"
	"time"

	"github.com/allaspectsdev/webcore/internal/errs"
)

// CBState represents the state of a circuit breaker.
type CBState int

const (
	// CBClosed means the circuit is healthy; calls flow through.
	CBClosed CBState = iota
	// CBOpen means the circuit has tripped; calls are rejected.
	CBOpen
	// CBHalfOpen means the circuit is testing recovery; a bounded number
	// of calls are allowed through to probe it.
	CBHalfOpen
)

func (s CBState) String() string {
	switch s {
	case CBClosed:
		return "closed"
	case CBOpen:
		return "open"
	case CBHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls when a breaker trips and how it probes
// recovery.
type CircuitBreakerConfig struct {
	FailureThreshold int           // Closed -> Open after this many consecutive failures
	SuccessThreshold int           // HalfOpen -> Closed after this many consecutive successes
	HalfOpenMaxCalls int           // HalfOpen -> Open if this many calls complete without enough successes
	ResetTimeout     time.Duration // Open -> HalfOpen after this much time elapses
}

// CircuitBreaker implements a named operation's three-state breaker:
// Closed → Open (after FailureThreshold consecutive failures)
// Open → HalfOpen (after ResetTimeout elapses)
// HalfOpen → Closed (after SuccessThreshold consecutive successes)
// HalfOpen → Open (on any failure, or after HalfOpenMaxCalls probes with
// insufficient successes).
type CircuitBreaker struct {
	mu    sync.Mutex
	cfg   CircuitBreakerConfig
	state CBState

	failureCount  int
	successCount  int
	halfOpenCalls int
	openedAt      time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = cfg.SuccessThreshold
	}
	return &CircuitBreaker{state: CBClosed, cfg: cfg}
}

// Allow reports whether a call should be permitted through the circuit.
// In the Open state, it transitions to HalfOpen once the reset timeout
// has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CBClosed:
		return true
	case CBOpen:
		if time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
			cb.toHalfOpenLocked()
			return true
		}
		return false
	case CBHalfOpen:
		return cb.halfOpenCalls < cb.cfg.HalfOpenMaxCalls
	default:
		return true
	}
}

// RecordSuccess records a successful call. In HalfOpen state, after
// enough consecutive successes the circuit transitions back to Closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0

	switch cb.state {
	case CBHalfOpen:
		cb.halfOpenCalls++
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.toClosedLocked()
		} else if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			cb.toOpenLocked()
		}
	}
}

// RecordFailure records a failed call. In Closed state, transitions to
// Open after the failure threshold is reached. In HalfOpen state,
// transitions directly back to Open.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CBClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.toOpenLocked()
		}
	case CBHalfOpen:
		cb.halfOpenCalls++
		cb.toOpenLocked()
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Guard rejects the call with a typed ExternalService error if the
// circuit is open; otherwise it runs fn and records the outcome.
func (cb *CircuitBreaker) Guard(fn func() error) error {
	if !cb.Allow() {
		return errs.New(errs.ExternalService, "circuit breaker open").WithRetryAfter(int(cb.cfg.ResetTimeout.Seconds()))
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

func (cb *CircuitBreaker) toOpenLocked() {
	cb.state = CBOpen
	cb.openedAt = time.Now()
	cb.successCount = 0
	cb.halfOpenCalls = 0
}

func (cb *CircuitBreaker) toHalfOpenLocked() {
	cb.state = CBHalfOpen
	cb.successCount = 0
	cb.halfOpenCalls = 0
}

func (cb *CircuitBreaker) toClosedLocked() {
	cb.state = CBClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0
}

// CircuitBreakerRegistry is a thread-safe registry of named circuit
// breakers, one per guarded operation (a session store, a route's
// upstream dependency, ...). Breakers are created lazily on first
// access via Get.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a new registry with the given
// default configuration applied to every breaker it creates.
func NewCircuitBreakerRegistry(cfg CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the circuit breaker for the given name, creating one if
// necessary.
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(r.cfg)
		r.breakers[name] = cb
	}
	return cb
}
