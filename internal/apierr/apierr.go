// Package apierr implements the core's error taxonomy: every user-visible
// failure carries a stable code, a retryability flag, and an optional
// retry-after hint so callers never have to string-match messages.
package apierr

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. Values are stable across releases.
type Code string

const (
	CodeInvalidInput        Code = "invalid_input"
	CodeLowConfidence       Code = "low_confidence"
	CodeNoNodesNearPosition Code = "no_nodes_near_position"
	CodeNoRouteFound        Code = "no_route_found"
	CodeRouteTimeout        Code = "route_timeout"
	CodeRouteCancelled      Code = "route_cancelled"
	CodeZoneNotFound        Code = "zone_not_found"
	CodeZoneConflict        Code = "zone_conflict"
	CodePoseLost            Code = "pose_lost"
	CodeUnauthorized        Code = "unauthorized"
	CodeInternal            Code = "internal"
)

// retryable reports the default retry semantics for each code. Call
// sites may still override RetryAfterMs on a per-instance basis.
var retryable = map[Code]bool{
	CodeInvalidInput:        false,
	CodeLowConfidence:       true,
	CodeNoNodesNearPosition: false,
	CodeNoRouteFound:        false,
	CodeRouteTimeout:        true,
	CodeRouteCancelled:      false,
	CodeZoneNotFound:        false,
	CodeZoneConflict:        false,
	CodePoseLost:            true,
	CodeUnauthorized:        false,
	CodeInternal:            true,
}

// Error is the single error type returned across component boundaries.
type Error struct {
	Code         Code
	Message      string
	Retryable    bool
	RetryAfterMs int
	Cause        error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with the default retryability for code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable[code]}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap builds an Error around an underlying cause.
func Wrap(code Code, cause error, message string) *Error {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithRetryAfter returns a copy of e with an explicit retry-after hint.
func (e *Error) WithRetryAfter(ms int) *Error {
	c := *e
	c.Retryable = true
	c.RetryAfterMs = ms
	return &c
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the Code of err, or CodeInternal if err is not an *Error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
