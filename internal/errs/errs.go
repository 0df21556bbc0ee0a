// Package errs provides the typed error taxonomy shared by the cache,
// session, router, and resilience packages.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies an Error for retry and response-mapping decisions.
type Kind string

const (
	Validation      Kind = "validation"
	NotFound        Kind = "not_found"
	Timeout         Kind = "timeout"
	RateLimit       Kind = "rate_limit"
	Network         Kind = "network"
	ExternalService Kind = "external_service"
	Serialization   Kind = "serialization"
	Internal        Kind = "internal"
)

// retryableKinds lists the Kinds that are safe to retry without additional
// context from the caller.
var retryableKinds = map[Kind]bool{
	Timeout:         true,
	Network:         true,
	ExternalService: true,
	RateLimit:       true,
}

// Error is the structured error type returned by this module's packages.
// It wraps an underlying cause (if any) and carries enough information for
// callers to render an HTTP status or decide whether to retry.
type Error struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
	Err        error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether an operation that produced this error is safe
// to retry. RateLimit errors are retryable only once RetryAfter has elapsed;
// the resilience package is responsible for honoring that delay.
func (e *Error) Retryable() bool {
	return retryableKinds[e.Kind]
}

// ToJSON renders the error as a JSON object suitable for an HTTP response
// body.
func (e *Error) ToJSON() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return []byte(`{"kind":"internal","message":"failed to marshal error"}`)
	}
	return b
}

// New builds an *Error of the given Kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given Kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// WithRetryAfter attaches a retry-after hint, in seconds, to a RateLimit
// error.
func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

// Retryable reports whether err (or any error it wraps) carries a Kind that
// is generically safe to retry.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// As extracts the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
