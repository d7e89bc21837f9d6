package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// NetworkErrorKind classifies a failed upstream call
type NetworkErrorKind string

// Network error kinds
const (
	Unreachable NetworkErrorKind = "unreachable"
	BadResponse NetworkErrorKind = "bad_response"
	Timeout     NetworkErrorKind = "timeout"
)

// NetworkError is returned by every upstream client in this module
type NetworkError struct {
	Kind   NetworkErrorKind
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a NetworkError of the given kind
func IsKind(err error, kind NetworkErrorKind) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Kind == kind
}

// classify maps a transport error to a NetworkError
func classify(op string, err error) *NetworkError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Kind: Timeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &NetworkError{Kind: Timeout, Op: op, Err: err}
	}
	return &NetworkError{Kind: Unreachable, Op: op, Err: err}
}
