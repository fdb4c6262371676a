package api

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUserExists is returned when activating an email that already has an account
var ErrUserExists = errors.New("user already exists")

// ActivateUser creates an account together with its first-day limits and an
// initial reputation row.
func (s *PaymentService) ActivateUser(ctx context.Context, name, email string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, models.NewValidationError("name", "is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, models.NewValidationError("email", "is not a valid address")
	}

	user, err := s.store.CreateUser(ctx, store.CreateUserParams{
		UserId:     uuid.New().String(),
		Name:       name,
		Email:      email,
		Limits:     s.limits.Profiles().FirstDay,
		Reputation: s.reputation.Initial(ctx),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return nil, fmt.Errorf("%s: %w", email, ErrUserExists)
		}
		return nil, fmt.Errorf("failed to activate user: %w", err)
	}

	zap.L().Info("User activated",
		zap.String("user_id", user.Id),
		zap.String("email", user.Email))
	return user, nil
}

func (s *PaymentService) AdjustLimits(ctx context.Context, userId string, overrides models.LimitOverrides) (*models.UserLimit, error) {
	return s.limits.AdjustLimits(ctx, userId, overrides)
}

func (s *PaymentService) ResetFirstDay(ctx context.Context, userId string) (*models.UserLimit, error) {
	return s.limits.ResetFirstDay(ctx, userId)
}

func (s *PaymentService) ApplyVerifiedLimits(ctx context.Context, userId string) (*models.UserLimit, error) {
	return s.limits.ApplyVerifiedLimits(ctx, userId)
}

// SetReputationTier places a user on a tier; a nil dailyLimit uses the tier's default
func (s *PaymentService) SetReputationTier(ctx context.Context, userId string, tier int, dailyLimit *decimal.Decimal) (*models.UserReputation, error) {
	if userId == "" {
		return nil, models.NewValidationError("user_id", "is required")
	}
	return s.reputation.SetTier(ctx, userId, tier, dailyLimit)
}

func (s *PaymentService) GetReputation(ctx context.Context, userId string) (*models.UserReputation, error) {
	if userId == "" {
		return nil, models.NewValidationError("user_id", "is required")
	}
	return s.reputation.Get(ctx, userId)
}

func (s *PaymentService) RunCleanup(ctx context.Context) (*models.SweepResult, error) {
	return s.sweeper.Sweep(ctx)
}

func (s *PaymentService) CleanupStats(ctx context.Context) (*models.CleanupStats, error) {
	return s.sweeper.Stats(ctx)
}
