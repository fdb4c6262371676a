// Package reputation tracks settled outcomes per user and grows their daily
// deposit limit as cumulative approved volume crosses the tier thresholds.
package reputation

import (
	"context"
	"fmt"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// TierSource returns the current tier table; read on every outcome
type TierSource interface {
	TierTable(ctx context.Context) models.TierTable
}

// LimitRaiser grows a user's daily cap when they reach a new tier
type LimitRaiser interface {
	RaiseDailyLimit(ctx context.Context, userId string, txType models.TransactionType, limit decimal.Decimal) (bool, error)
}

type Manager struct {
	store  store.ReputationStore
	tiers  TierSource
	limits LimitRaiser
}

func NewManager(s store.ReputationStore, tiers TierSource, limits LimitRaiser) *Manager {
	return &Manager{store: s, tiers: tiers, limits: limits}
}

func (m *Manager) initial(table models.TierTable) models.UserReputation {
	return models.UserReputation{
		ReputationScore:     decimal.Zero,
		TotalApprovedVolume: decimal.Zero,
		CurrentDailyLimit:   table.DailyLimit(0),
		NextLimitThreshold:  table.Threshold(0),
	}
}

// Initial is the reputation row written when an account is activated
func (m *Manager) Initial(ctx context.Context) models.UserReputation {
	return m.initial(m.tiers.TierTable(ctx))
}

func (m *Manager) Get(ctx context.Context, userId string) (*models.UserReputation, error) {
	return m.store.GetOrCreateReputation(ctx, userId, m.Initial(ctx))
}

// OnSuccess records a settled deposit. Crossing the next threshold advances
// the user one tier and raises their deposit daily cap to the tier's limit.
func (m *Manager) OnSuccess(ctx context.Context, tx *models.Transaction) error {
	if tx.Type != models.TransactionTypeDeposit {
		return nil
	}

	table := m.tiers.TierTable(ctx)
	advanced := false
	rep, err := m.store.UpdateReputation(ctx, tx.UserId, m.initial(table), func(rep *models.UserReputation) error {
		rep.TotalApprovedVolume = rep.TotalApprovedVolume.Add(tx.Amount)
		rep.TotalApprovedCount++
		rep.ReputationScore = Score(rep.TotalApprovedCount, rep.TotalRejectedCount, rep.ReputationScore)

		if rep.LimitTier < table.MaxTier() &&
			rep.NextLimitThreshold.IsPositive() &&
			rep.TotalApprovedVolume.GreaterThanOrEqual(rep.NextLimitThreshold) {
			rep.LimitTier++
			rep.CurrentDailyLimit = table.DailyLimit(rep.LimitTier)
			rep.NextLimitThreshold = table.Threshold(rep.LimitTier)
			advanced = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record success for %s: %w", tx.UserId, err)
	}

	zap.L().Info("Reputation updated after settlement",
		zap.String("user_id", tx.UserId),
		zap.String("transaction_id", tx.Id),
		zap.String("score", rep.ReputationScore.String()),
		zap.String("approved_volume", rep.TotalApprovedVolume.String()),
		zap.Int("tier", rep.LimitTier))

	if !advanced {
		return nil
	}

	zap.L().Info("User advanced to a new limit tier",
		zap.String("user_id", tx.UserId),
		zap.Int("tier", rep.LimitTier),
		zap.String("daily_limit", rep.CurrentDailyLimit.String()))

	if _, err := m.limits.RaiseDailyLimit(ctx, tx.UserId, models.TransactionTypeDeposit, rep.CurrentDailyLimit); err != nil {
		return fmt.Errorf("tier advanced but daily limit not raised for %s: %w", tx.UserId, err)
	}
	return nil
}

// OnFailure records a rejected deposit
func (m *Manager) OnFailure(ctx context.Context, userId string) error {
	rep, err := m.store.UpdateReputation(ctx, userId, m.Initial(ctx), func(rep *models.UserReputation) error {
		rep.TotalRejectedCount++
		rep.ReputationScore = Score(rep.TotalApprovedCount, rep.TotalRejectedCount, rep.ReputationScore)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record failure for %s: %w", userId, err)
	}

	zap.L().Info("Reputation lowered after failed deposit",
		zap.String("user_id", userId),
		zap.String("score", rep.ReputationScore.String()),
		zap.Int64("rejected", rep.TotalRejectedCount))
	return nil
}

// SetTier is the operator override: it places the user at tier regardless of
// volume. A nil dailyLimit takes the tier's limit from the table.
func (m *Manager) SetTier(ctx context.Context, userId string, tier int, dailyLimit *decimal.Decimal) (*models.UserReputation, error) {
	table := m.tiers.TierTable(ctx)
	if tier < 0 || tier > table.MaxTier() {
		return nil, models.NewValidationError("tier", fmt.Sprintf("must be between 0 and %d", table.MaxTier()))
	}
	limit := table.DailyLimit(tier)
	if dailyLimit != nil {
		if !dailyLimit.IsPositive() {
			return nil, models.NewValidationError("daily_limit", "must be positive")
		}
		limit = *dailyLimit
	}

	rep, err := m.store.UpdateReputation(ctx, userId, m.initial(table), func(rep *models.UserReputation) error {
		rep.LimitTier = tier
		rep.CurrentDailyLimit = limit
		rep.NextLimitThreshold = table.Threshold(tier)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set tier for %s: %w", userId, err)
	}

	zap.L().Info("Limit tier set by operator",
		zap.String("user_id", userId),
		zap.Int("tier", tier),
		zap.String("daily_limit", limit.String()))
	return rep, nil
}

// Score is 100 * approved / (approved + rejected), clamped to [0, 100] and
// rounded to two places. With no outcomes the previous score is kept.
func Score(approved, rejected int64, previous decimal.Decimal) decimal.Decimal {
	total := approved + rejected
	if total <= 0 {
		return previous
	}
	score := hundred.Mul(decimal.NewFromInt(approved)).Div(decimal.NewFromInt(total)).Round(2)
	if score.IsNegative() {
		return decimal.Zero
	}
	if score.GreaterThan(hundred) {
		return hundred
	}
	return score
}
