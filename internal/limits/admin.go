package limits

import (
	"context"
	"fmt"

	"pix-settlement-bridge/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdjustLimits applies an operator's partial update to a user's caps and flags
func (e *Engine) AdjustLimits(ctx context.Context, userId string, overrides models.LimitOverrides) (*models.UserLimit, error) {
	return e.update(ctx, userId, "adjust", func(limit *models.UserLimit) error {
		for _, t := range models.TransactionTypes {
			o := overridesFor(overrides, t)
			if o == nil {
				continue
			}
			caps := typeLimitsPtr(&limit.Limits, t)
			applyOverride(&caps.PerTransaction, o.PerTransaction)
			applyOverride(&caps.Daily, o.Daily)
			applyOverride(&caps.Monthly, o.Monthly)
			if err := validateCaps(t, *caps); err != nil {
				return err
			}
		}
		if overrides.IsFirstDay != nil {
			limit.IsFirstDay = *overrides.IsFirstDay
		}
		if overrides.IsKycVerified != nil {
			limit.IsKycVerified = *overrides.IsKycVerified
		}
		if overrides.IsHighRiskUser != nil {
			limit.IsHighRiskUser = *overrides.IsHighRiskUser
		}
		return nil
	})
}

// ResetFirstDay puts a user back on first-day caps
func (e *Engine) ResetFirstDay(ctx context.Context, userId string) (*models.UserLimit, error) {
	return e.update(ctx, userId, "reset-first-day", func(limit *models.UserLimit) error {
		limit.Limits = e.profiles.FirstDay
		limit.IsFirstDay = true
		return nil
	})
}

// ApplyVerifiedLimits moves a KYC-verified user to the verified profile
func (e *Engine) ApplyVerifiedLimits(ctx context.Context, userId string) (*models.UserLimit, error) {
	return e.update(ctx, userId, "apply-verified", func(limit *models.UserLimit) error {
		limit.Limits = e.profiles.Verified
		limit.IsKycVerified = true
		limit.IsFirstDay = false
		return nil
	})
}

func (e *Engine) update(ctx context.Context, userId, operation string, fn func(*models.UserLimit) error) (*models.UserLimit, error) {
	if userId == "" {
		return nil, models.NewValidationError("user_id", "is required")
	}

	unlock := e.locks.Lock(userId)
	defer unlock()

	limit, err := e.store.GetOrCreateUserLimit(ctx, userId, e.profiles.FirstDay)
	if err != nil {
		return nil, fmt.Errorf("failed to load limits for %s: %w", userId, err)
	}
	if err := fn(limit); err != nil {
		return nil, err
	}
	if err := e.store.SaveUserLimit(ctx, limit); err != nil {
		return nil, err
	}

	zap.L().Info("User limits changed by operator",
		zap.String("user_id", userId),
		zap.String("operation", operation))
	return limit, nil
}

func overridesFor(o models.LimitOverrides, t models.TransactionType) *models.TypeLimitOverrides {
	switch t {
	case models.TransactionTypeWithdraw:
		return o.Withdraw
	case models.TransactionTypeTransfer:
		return o.Transfer
	default:
		return o.Deposit
	}
}

func applyOverride(dst *decimal.Decimal, src *decimal.Decimal) {
	if src != nil {
		*dst = *src
	}
}

func validateCaps(t models.TransactionType, caps models.TypeLimits) error {
	if !caps.PerTransaction.IsPositive() || !caps.Daily.IsPositive() || !caps.Monthly.IsPositive() {
		return models.NewValidationError(string(t), "limits must be positive")
	}
	if caps.Daily.GreaterThan(caps.Monthly) {
		return models.NewValidationError(string(t), fmt.Sprintf("daily limit %s exceeds monthly limit %s", caps.Daily, caps.Monthly))
	}
	return nil
}
