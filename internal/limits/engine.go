// Package limits decides whether a user may move an amount, given their
// configured caps and the usage derived from their transaction history.
package limits

import (
	"context"
	"fmt"
	"time"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is what the engine reads and writes
type Store interface {
	SumAmounts(ctx context.Context, q store.UsageQuery) (decimal.Decimal, error)
	store.UserLimitStore
}

type Engine struct {
	store          Store
	profiles       models.LimitsDefinition
	firstDayCap    decimal.Decimal
	highRiskFactor decimal.Decimal
	location       *time.Location
	now            func() time.Time
	locks          *UserLocker
}

func NewEngine(s Store, profiles models.LimitsDefinition, cfg models.LimitsConfig) *Engine {
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	return &Engine{
		store:          s,
		profiles:       profiles,
		firstDayCap:    cfg.FirstDayDepositCap,
		highRiskFactor: cfg.HighRiskFactor,
		location:       location,
		now:            time.Now,
		locks:          NewUserLocker(),
	}
}

// WithClock replaces the time source used to place the day and month windows
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Profiles returns the limit profiles the engine applies
func (e *Engine) Profiles() models.LimitsDefinition {
	return e.profiles
}

// Locker returns the per-user lock the engine uses for its own read-modify-write
// updates. Callers creating transactions hold it across Validate and the insert.
func (e *Engine) Locker() *UserLocker {
	return e.locks
}

// Validate applies the quota checks in order; the first failing check decides.
// A denial is reported in the result, not as an error.
func (e *Engine) Validate(ctx context.Context, userId string, txType models.TransactionType, amount decimal.Decimal) (*models.LimitCheckResult, error) {
	if userId == "" {
		return nil, models.NewValidationError("user_id", "is required")
	}
	if _, err := models.ParseTransactionType(string(txType)); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, models.NewValidationError("amount", "must be positive")
	}

	limit, err := e.store.GetOrCreateUserLimit(ctx, userId, e.profiles.FirstDay)
	if err != nil {
		return nil, fmt.Errorf("failed to load limits for %s: %w", userId, err)
	}

	usage, err := e.usage(ctx, userId, txType)
	if err != nil {
		return nil, err
	}

	caps := limit.Limits.For(txType)
	if result := checkCaps(caps, usage, amount, ""); result != nil {
		return e.deny(userId, txType, amount, result), nil
	}

	if limit.IsFirstDay && txType == models.TransactionTypeDeposit && amount.GreaterThan(e.firstDayCap) {
		return e.deny(userId, txType, amount, &models.LimitCheckResult{
			Reason:       fmt.Sprintf("first-day deposits are capped at %s", e.firstDayCap),
			CurrentUsage: &usage,
			Limits:       &caps,
		}), nil
	}

	if limit.IsHighRiskUser {
		caps = caps.Scale(e.highRiskFactor)
		if result := checkCaps(caps, usage, amount, "high-risk account: "); result != nil {
			return e.deny(userId, txType, amount, result), nil
		}
	}

	return &models.LimitCheckResult{
		Allowed:      true,
		CurrentUsage: &usage,
		Limits:       &caps,
	}, nil
}

// ValidateOrError is Validate with a denial turned into *models.LimitExceededError
func (e *Engine) ValidateOrError(ctx context.Context, userId string, txType models.TransactionType, amount decimal.Decimal) error {
	result, err := e.Validate(ctx, userId, txType, amount)
	if err != nil {
		return err
	}
	if result.Allowed {
		return nil
	}
	return &models.LimitExceededError{
		UserId:       userId,
		Type:         txType,
		Amount:       amount,
		Reason:       result.Reason,
		Limits:       *result.Limits,
		CurrentUsage: *result.CurrentUsage,
	}
}

func checkCaps(caps models.TypeLimits, usage models.Usage, amount decimal.Decimal, prefix string) *models.LimitCheckResult {
	var reason string
	switch {
	case amount.GreaterThan(caps.PerTransaction):
		reason = fmt.Sprintf("amount %s exceeds the per-transaction limit of %s", amount, caps.PerTransaction)
	case usage.Daily.Add(amount).GreaterThan(caps.Daily):
		reason = fmt.Sprintf("daily limit of %s would be exceeded (%s already used today)", caps.Daily, usage.Daily)
	case usage.Monthly.Add(amount).GreaterThan(caps.Monthly):
		reason = fmt.Sprintf("monthly limit of %s would be exceeded (%s already used this month)", caps.Monthly, usage.Monthly)
	default:
		return nil
	}
	return &models.LimitCheckResult{
		Reason:       prefix + reason,
		CurrentUsage: &usage,
		Limits:       &caps,
	}
}

func (e *Engine) deny(userId string, txType models.TransactionType, amount decimal.Decimal, result *models.LimitCheckResult) *models.LimitCheckResult {
	result.Allowed = false
	zap.L().Info("Limit check denied",
		zap.String("user_id", userId),
		zap.String("type", string(txType)),
		zap.String("amount", amount.String()),
		zap.String("reason", result.Reason))
	return result
}

// usage sums COMPLETED and PROCESSING amounts since the start of the current
// day and month in the engine's time zone.
func (e *Engine) usage(ctx context.Context, userId string, txType models.TransactionType) (models.Usage, error) {
	dayStart, monthStart := e.windows()

	daily, err := e.store.SumAmounts(ctx, store.UsageQuery{
		UserId:   userId,
		Type:     txType,
		Statuses: models.UsageStatuses,
		Since:    dayStart,
	})
	if err != nil {
		return models.Usage{}, fmt.Errorf("failed to compute daily usage: %w", err)
	}

	monthly, err := e.store.SumAmounts(ctx, store.UsageQuery{
		UserId:   userId,
		Type:     txType,
		Statuses: models.UsageStatuses,
		Since:    monthStart,
	})
	if err != nil {
		return models.Usage{}, fmt.Errorf("failed to compute monthly usage: %w", err)
	}

	return models.Usage{Daily: daily, Monthly: monthly}, nil
}

func (e *Engine) windows() (time.Time, time.Time) {
	now := e.now().In(e.location)
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.location), time.Date(y, m, 1, 0, 0, 0, 0, e.location)
}

// OnSettlementSuccess lifts first-day caps after the user's first settled deposit.
// The flag flip is a conditional update, so concurrent settlements apply it once.
func (e *Engine) OnSettlementSuccess(ctx context.Context, userId string, txType models.TransactionType) error {
	if txType != models.TransactionTypeDeposit {
		return nil
	}

	limit, err := e.store.GetOrCreateUserLimit(ctx, userId, e.profiles.FirstDay)
	if err != nil {
		return fmt.Errorf("failed to load limits for %s: %w", userId, err)
	}
	if !limit.IsFirstDay {
		return nil
	}

	lifted, err := e.store.CompleteFirstDay(ctx, userId, e.profiles.Standard)
	if err != nil {
		return fmt.Errorf("failed to lift first-day limits for %s: %w", userId, err)
	}
	if lifted {
		zap.L().Info("First settled deposit, standard limits applied", zap.String("user_id", userId))
	}
	return nil
}

// GetLimitsSummary reports a user's caps, flags and usage for every type
func (e *Engine) GetLimitsSummary(ctx context.Context, userId string) (*models.LimitsSummary, error) {
	limit, err := e.store.GetOrCreateUserLimit(ctx, userId, e.profiles.FirstDay)
	if err != nil {
		return nil, fmt.Errorf("failed to load limits for %s: %w", userId, err)
	}

	summary := &models.LimitsSummary{
		Limits:         limit.Limits,
		DailyUsage:     make(map[models.TransactionType]decimal.Decimal, len(models.TransactionTypes)),
		MonthlyUsage:   make(map[models.TransactionType]decimal.Decimal, len(models.TransactionTypes)),
		IsFirstDay:     limit.IsFirstDay,
		IsKycVerified:  limit.IsKycVerified,
		IsHighRiskUser: limit.IsHighRiskUser,
	}
	for _, t := range models.TransactionTypes {
		usage, err := e.usage(ctx, userId, t)
		if err != nil {
			return nil, err
		}
		summary.DailyUsage[t] = usage.Daily
		summary.MonthlyUsage[t] = usage.Monthly
	}
	return summary, nil
}

// RaiseDailyLimit grows the daily cap of txType to limit. It never lowers a cap
// and does nothing while the user is still on first-day limits. It reports
// whether the cap changed.
func (e *Engine) RaiseDailyLimit(ctx context.Context, userId string, txType models.TransactionType, limit decimal.Decimal) (bool, error) {
	unlock := e.locks.Lock(userId)
	defer unlock()

	current, err := e.store.GetOrCreateUserLimit(ctx, userId, e.profiles.FirstDay)
	if err != nil {
		return false, fmt.Errorf("failed to load limits for %s: %w", userId, err)
	}
	if current.IsFirstDay {
		zap.L().Debug("Skipping daily limit raise during first day", zap.String("user_id", userId))
		return false, nil
	}

	caps := typeLimitsPtr(&current.Limits, txType)
	if !limit.GreaterThan(caps.Daily) {
		return false, nil
	}
	caps.Daily = limit
	if caps.Monthly.LessThan(limit) {
		caps.Monthly = limit
	}

	if err := e.store.SaveUserLimit(ctx, current); err != nil {
		return false, err
	}

	zap.L().Info("Daily limit raised",
		zap.String("user_id", userId),
		zap.String("type", string(txType)),
		zap.String("daily", limit.String()))
	return true, nil
}

func typeLimitsPtr(p *models.LimitProfile, t models.TransactionType) *models.TypeLimits {
	switch t {
	case models.TransactionTypeWithdraw:
		return &p.Withdraw
	case models.TransactionTypeTransfer:
		return &p.Transfer
	default:
		return &p.Deposit
	}
}
