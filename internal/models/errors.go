package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors surfaced to the request layer
var (
	ErrNotFound  = errors.New("transaction not found")
	ErrForbidden = errors.New("transaction does not belong to user")
)

// ValidationError reports a malformed request field. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidationError returns true if err wraps a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// LimitExceededError is the structured denial produced by the quota engine.
// It carries the caps and usage in effect when the decision was made.
type LimitExceededError struct {
	UserId       string
	Type         TransactionType
	Amount       decimal.Decimal
	Reason       string
	Limits       TypeLimits
	CurrentUsage Usage
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("limit exceeded for %s %s of %s: %s", e.UserId, e.Type, e.Amount.String(), e.Reason)
}

// IsLimitExceededError returns true if err wraps a LimitExceededError
func IsLimitExceededError(err error) bool {
	var le *LimitExceededError
	return errors.As(err, &le)
}
