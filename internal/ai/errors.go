package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureClass categorizes a provider call failure. Rate limit, timeout and
// server failures are transient and worth retrying; permanent failures
// (malformed request, bad credentials) are not.
type FailureClass int

const (
	FailureRateLimit FailureClass = iota
	FailureTimeout
	FailureServer
	FailurePermanent
)

func (c FailureClass) String() string {
	switch c {
	case FailureRateLimit:
		return "rate_limit"
	case FailureTimeout:
		return "timeout"
	case FailureServer:
		return "server"
	case FailurePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CallError is a typed provider call failure carrying its failure class.
type CallError struct {
	Class FailureClass
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *CallError) Retryable() bool {
	return e.Class != FailurePermanent
}

// NewCallError wraps err with the given failure class.
func NewCallError(class FailureClass, err error) *CallError {
	return &CallError{Class: class, Err: err}
}

// FromHTTPStatus maps an HTTP status code to a typed call failure.
func FromHTTPStatus(status int, body string) *CallError {
	err := fmt.Errorf("API error (status %d): %s", status, body)
	switch {
	case status == http.StatusTooManyRequests:
		return NewCallError(FailureRateLimit, err)
	case status == http.StatusRequestTimeout:
		return NewCallError(FailureTimeout, err)
	case status >= 500:
		return NewCallError(FailureServer, err)
	default:
		return NewCallError(FailurePermanent, err)
	}
}

// Classify turns an arbitrary provider error into a typed call failure.
// Already-typed errors pass through; context deadlines and network timeouts
// become timeout failures; everything else is treated as a transient server
// failure so the caller can retry.
func Classify(err error) *CallError {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewCallError(FailureTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewCallError(FailureTimeout, err)
	}
	return NewCallError(FailureServer, err)
}
