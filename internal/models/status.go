package models

import (
	"fmt"
	"strings"
)

// TransactionType identifies what a transaction moves
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"
	TransactionTypeWithdraw TransactionType = "WITHDRAW"
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// TransactionTypes lists every type in display order
var TransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypeWithdraw,
	TransactionTypeTransfer,
}

// ParseTransactionType accepts any casing of a known type
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeTransfer:
		return t, nil
	}
	return "", NewValidationError("type", fmt.Sprintf("unknown transaction type %q", s))
}

// TransactionStatus is the local lifecycle state of a transaction
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
	StatusExpired    TransactionStatus = "EXPIRED"
)

// OpenStatuses are the non-terminal states
var OpenStatuses = []TransactionStatus{StatusPending, StatusProcessing}

// UsageStatuses are the states whose amounts count against a user's quota
var UsageStatuses = []TransactionStatus{StatusCompleted, StatusProcessing}

// IsTerminal reports whether no further transition is allowed
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
// PROCESSING may loop onto itself; terminal states are sinks.
func CanTransition(from, to TransactionStatus) bool {
	switch from {
	case StatusPending, StatusProcessing:
		return to == StatusProcessing || to.IsTerminal()
	default:
		return false
	}
}
