package api

import (
	"errors"
	"fmt"
)

// Kind classifies why a backend call failed.
type Kind int

const (
	// KindNetwork means the request never completed.
	KindNetwork Kind = iota + 1
	// KindServer means the backend answered with a non-2xx status.
	KindServer
	// KindMalformed means a 2xx body did not have the expected shape.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network_failure"
	case KindServer:
		return "server_error"
	case KindMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

var (
	ErrNetwork   = errors.New("network failure")
	ErrServer    = errors.New("server error")
	ErrMalformed = errors.New("malformed response")
)

// Error is returned by every Client method that fails.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindServer {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match on the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrServer:
		return e.Kind == KindServer
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

// KindOf extracts the failure kind from err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
