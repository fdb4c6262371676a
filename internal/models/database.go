package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents an activated account
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Transaction is the durable record of one deposit, withdraw or transfer request
type Transaction struct {
	Id           string              `db:"id"`
	UserId       string              `db:"user_id"`
	Type         TransactionType     `db:"type"`
	Status       TransactionStatus   `db:"status"`
	Amount       decimal.Decimal     `db:"amount"`
	ExternalId   string              `db:"external_id"`
	Metadata     TransactionMetadata `db:"metadata"`
	ErrorMessage string              `db:"error_message"`
	CreatedAt    time.Time           `db:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at"`
	ProcessedAt  *time.Time          `db:"processed_at"`
}

// HasExternalId reports whether the provider has accepted the request
func (t *Transaction) HasExternalId() bool {
	return t.ExternalId != ""
}

// TypeLimits are the caps that apply to one transaction type
type TypeLimits struct {
	PerTransaction decimal.Decimal `json:"per_transaction" yaml:"per_transaction"`
	Daily          decimal.Decimal `json:"daily" yaml:"daily"`
	Monthly        decimal.Decimal `json:"monthly" yaml:"monthly"`
}

// Scale returns a copy of the caps multiplied by factor
func (l TypeLimits) Scale(factor decimal.Decimal) TypeLimits {
	return TypeLimits{
		PerTransaction: l.PerTransaction.Mul(factor),
		Daily:          l.Daily.Mul(factor),
		Monthly:        l.Monthly.Mul(factor),
	}
}

// LimitProfile is a full set of caps applied to a user at once
type LimitProfile struct {
	Deposit  TypeLimits `yaml:"deposit"`
	Withdraw TypeLimits `yaml:"withdraw"`
	Transfer TypeLimits `yaml:"transfer"`
}

// For returns the caps of the given type
func (p LimitProfile) For(t TransactionType) TypeLimits {
	switch t {
	case TransactionTypeWithdraw:
		return p.Withdraw
	case TransactionTypeTransfer:
		return p.Transfer
	default:
		return p.Deposit
	}
}

// UserLimit is the per-user quota configuration
type UserLimit struct {
	UserId         string       `db:"user_id"`
	Limits         LimitProfile `db:"-"`
	IsFirstDay     bool         `db:"is_first_day"`
	IsKycVerified  bool         `db:"is_kyc_verified"`
	IsHighRiskUser bool         `db:"is_high_risk_user"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

// UserReputation tracks settled volume and the resulting limit tier
type UserReputation struct {
	UserId              string          `db:"user_id"`
	ReputationScore     decimal.Decimal `db:"reputation_score"`
	TotalApprovedVolume decimal.Decimal `db:"total_approved_volume"`
	TotalApprovedCount  int64           `db:"total_approved_count"`
	TotalRejectedCount  int64           `db:"total_rejected_count"`
	CurrentDailyLimit   decimal.Decimal `db:"current_daily_limit"`
	LimitTier           int             `db:"limit_tier"`
	NextLimitThreshold  decimal.Decimal `db:"next_limit_threshold"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

// Setting is one versioned runtime configuration value
type Setting struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	Version   int64     `db:"version"`
	UpdatedAt time.Time `db:"updated_at"`
}

// JournalEntry is one side of a double-entry posting for a settled transaction
type JournalEntry struct {
	Id            string          `db:"id"`
	TransactionId string          `db:"transaction_id"`
	AccountType   string          `db:"account_type"`
	AccountId     string          `db:"account_id"`
	DebitAmount   decimal.Decimal `db:"debit_amount"`
	CreditAmount  decimal.Decimal `db:"credit_amount"`
	CreatedAt     time.Time       `db:"created_at"`
}
