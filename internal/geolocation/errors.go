package geolocation

import "fmt"

// ErrorKind classifies a failed acquisition
type ErrorKind string

// Location error kinds
const (
	Unsupported         ErrorKind = "unsupported"
	InsecureContext     ErrorKind = "insecure_context"
	PermissionDenied    ErrorKind = "permission_denied"
	PositionUnavailable ErrorKind = "position_unavailable"
	Timeout             ErrorKind = "timeout"
	Unknown             ErrorKind = "unknown"
)

// Platform error codes reported by watchers
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// LocationError is the only error type Acquire returns besides context errors
type LocationError struct {
	Kind    ErrorKind
	Message string
}

// Sentinels for errors.Is comparisons
var (
	ErrUnsupported         = &LocationError{Kind: Unsupported}
	ErrInsecureContext     = &LocationError{Kind: InsecureContext}
	ErrPermissionDenied    = &LocationError{Kind: PermissionDenied}
	ErrPositionUnavailable = &LocationError{Kind: PositionUnavailable}
	ErrTimeout             = &LocationError{Kind: Timeout}
	ErrUnknown             = &LocationError{Kind: Unknown}
)

func (e *LocationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("location: %s", e.Kind)
	}
	return fmt.Sprintf("location: %s: %s", e.Kind, e.Message)
}

// Is matches any LocationError of the same kind
func (e *LocationError) Is(target error) bool {
	t, ok := target.(*LocationError)
	return ok && t.Kind == e.Kind
}

// UserMessage returns advisory text suitable for showing next to the form
func (e *LocationError) UserMessage() string {
	switch e.Kind {
	case Unsupported:
		return "Geolocation is not supported on this device. Please enter your location manually."
	case InsecureContext:
		return "Location access requires a secure connection (HTTPS). Please enter your location manually."
	case PermissionDenied:
		return "Location permission denied. Please allow location access or enter your location manually."
	case PositionUnavailable:
		return "Location information is unavailable. Please try again or enter your location manually."
	case Timeout:
		return "Location request timed out. Please try again or enter your location manually."
	default:
		return "An unknown error occurred while getting your location."
	}
}

func newError(kind ErrorKind, msg string) *LocationError {
	return &LocationError{Kind: kind, Message: msg}
}

// fromCode maps a platform error code to a LocationError
func fromCode(code int, msg string) *LocationError {
	switch code {
	case CodePermissionDenied:
		return newError(PermissionDenied, msg)
	case CodePositionUnavailable:
		return newError(PositionUnavailable, msg)
	case CodeTimeout:
		return newError(Timeout, msg)
	default:
		return newError(Unknown, msg)
	}
}
