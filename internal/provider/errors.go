package provider

import (
	"errors"
	"fmt"
)

// Failure kinds. Callers branch on these with errors.Is.
var (
	ErrAuthFailure = errors.New("provider authentication failed")
	ErrForbidden   = errors.New("provider refused the request")
	ErrRateLimited = errors.New("provider rate limit reached")
	ErrUnavailable = errors.New("provider unavailable")
	ErrGeneric     = errors.New("provider request failed")
)

// Error is a classified provider failure
type Error struct {
	Kind       error
	StatusCode int
	Endpoint   string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Endpoint, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or nil when err is not a provider error
func KindOf(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return nil
}

// IsTransient reports whether retrying later may succeed
func IsTransient(err error) bool {
	switch KindOf(err) {
	case ErrUnavailable, ErrRateLimited, ErrGeneric:
		return true
	}
	return false
}

func classifyStatus(code int) error {
	switch {
	case code == 401:
		return ErrAuthFailure
	case code == 403:
		return ErrForbidden
	case code == 429:
		return ErrRateLimited
	case code >= 500:
		return ErrUnavailable
	default:
		return ErrGeneric
	}
}
