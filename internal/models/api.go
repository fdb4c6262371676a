/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Usage is the amount already consumed against the daily and monthly caps
type Usage struct {
	Daily   decimal.Decimal `json:"daily"`
	Monthly decimal.Decimal `json:"monthly"`
}

// LimitCheckResult is the outcome of a quota decision
type LimitCheckResult struct {
	Allowed      bool        `json:"allowed"`
	Reason       string      `json:"reason,omitempty"`
	CurrentUsage *Usage      `json:"current_usage,omitempty"`
	Limits       *TypeLimits `json:"limits,omitempty"`
}

// LimitOverrides is a partial update of a user's limit configuration.
// Nil fields are left unchanged.
type LimitOverrides struct {
	Deposit        *TypeLimitOverrides `json:"deposit,omitempty"`
	Withdraw       *TypeLimitOverrides `json:"withdraw,omitempty"`
	Transfer       *TypeLimitOverrides `json:"transfer,omitempty"`
	IsFirstDay     *bool               `json:"is_first_day,omitempty"`
	IsKycVerified  *bool               `json:"is_kyc_verified,omitempty"`
	IsHighRiskUser *bool               `json:"is_high_risk_user,omitempty"`
}

// TypeLimitOverrides is a partial update of the caps of one type
type TypeLimitOverrides struct {
	PerTransaction *decimal.Decimal `json:"per_transaction,omitempty"`
	Daily          *decimal.Decimal `json:"daily,omitempty"`
	Monthly        *decimal.Decimal `json:"monthly,omitempty"`
}

// LimitsSummary is what a user sees about their own quotas
type LimitsSummary struct {
	Limits         LimitProfile                        `json:"limits"`
	DailyUsage     map[TransactionType]decimal.Decimal `json:"daily_usage"`
	MonthlyUsage   map[TransactionType]decimal.Decimal `json:"monthly_usage"`
	IsFirstDay     bool                                `json:"is_first_day"`
	IsKycVerified  bool                                `json:"is_kyc_verified"`
	IsHighRiskUser bool                                `json:"is_high_risk_user"`
}

// CreateTransactionRequest is a request to move funds through the provider
type CreateTransactionRequest struct {
	UserId      string          `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	Description string          `json:"description,omitempty"`
}

// CreateTransactionResult is returned once the provider accepted the request
type CreateTransactionResult struct {
	TransactionId string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	QRCopyPaste   string            `json:"qr_copy_paste,omitempty"`
	QRImageURL    string            `json:"qr_image_url,omitempty"`
}

// StatusResult is the outcome of a status check
type StatusResult struct {
	TransactionId string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Amount        decimal.Decimal   `json:"amount"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
	Message       string            `json:"message"`
	// ShouldRetry is set when the provider could not be reached and the
	// returned status is the last one persisted locally.
	ShouldRetry bool `json:"should_retry"`
	// CanPoll is false while the provider has not assigned an external id.
	CanPoll bool `json:"can_poll"`
	Changed bool `json:"changed"`
}

// SweepResult summarises one cleanup run
type SweepResult struct {
	Examined int           `json:"examined"`
	Expired  int           `json:"expired"`
	Failed   int           `json:"failed"`
	Cutoff   time.Time     `json:"cutoff"`
	Duration time.Duration `json:"duration"`
}

// CleanupStats buckets open transactions around the expiry cutoff
type CleanupStats struct {
	TotalPending    int       `json:"total_pending"`
	ReadyToExpire   int       `json:"ready_to_expire"`
	RecentlyPending int       `json:"recently_pending"`
	AlreadyExpired  int       `json:"already_expired"`
	Cutoff          time.Time `json:"cutoff"`
}

// ReconcileResult summarises one bulk reconciliation sweep
type ReconcileResult struct {
	Checked  int `json:"checked"`
	Changed  int `json:"changed"`
	Deferred int `json:"deferred"`
	Failed   int `json:"failed"`
}
