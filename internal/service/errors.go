package service

import (
	"errors"
	"fmt"
)

// ErrorKindHeader carries the ErrorKind on failed inbound responses.
const ErrorKindHeader = "X-Gateway-Error"

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindUnknownOperation ErrorKind = "unknown_operation"
	KindAuthFailure      ErrorKind = "auth_failure"
	KindUnrecognizedHost ErrorKind = "unrecognized_host"
	KindBackendLogical   ErrorKind = "backend_logical_failure"
	KindTransport        ErrorKind = "transport_failure"
	KindInvalidRequest   ErrorKind = "invalid_request"
)

var (
	// ErrUnknownOperation is returned for an operation ID outside the recognized set.
	ErrUnknownOperation = errors.New("unknown operation ID")
	// ErrAuthFailed is returned when no session could be obtained.
	ErrAuthFailed = errors.New("failed to get sessionId")
	// ErrBackendStatus is returned when the backend envelope reports a failure.
	ErrBackendStatus = errors.New("backend reported failure")
	// ErrBackendHTTP is returned for a non-2xx backend response.
	ErrBackendHTTP = errors.New("backend returned non-success status")
	// ErrInvalidRequest is returned when the inbound request cannot be forwarded.
	ErrInvalidRequest = errors.New("invalid request")
)

// GatewayError is the single error type returned by Dispatch. Body holds the
// raw backend response when one was received.
type GatewayError struct {
	Kind ErrorKind
	Op   string
	Body []byte
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Diagnostic returns the text shown to the caller: the raw backend body when
// there is one, the error text otherwise.
func (e *GatewayError) Diagnostic() string {
	if len(e.Body) > 0 {
		return string(e.Body)
	}
	return e.Err.Error()
}

// KindOf returns the kind of a *GatewayError in err's chain, or KindTransport.
func KindOf(err error) ErrorKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransport
}

func newError(kind ErrorKind, op string, body []byte, err error) *GatewayError {
	return &GatewayError{Kind: kind, Op: op, Body: body, Err: err}
}
