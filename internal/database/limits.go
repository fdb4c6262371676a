package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"go.uber.org/zap"
)

func profileArgs(p models.LimitProfile) []any {
	return []any{
		p.Deposit.PerTransaction.String(), p.Deposit.Daily.String(), p.Deposit.Monthly.String(),
		p.Withdraw.PerTransaction.String(), p.Withdraw.Daily.String(), p.Withdraw.Monthly.String(),
		p.Transfer.PerTransaction.String(), p.Transfer.Daily.String(), p.Transfer.Monthly.String(),
	}
}

func userLimitArgs(userId string, p models.LimitProfile, now time.Time) []any {
	args := append([]any{userId}, profileArgs(p)...)
	return append(args, now, now)
}

func scanUserLimit(row rowScanner) (*models.UserLimit, error) {
	var l models.UserLimit
	err := row.Scan(&l.UserId,
		&l.Limits.Deposit.PerTransaction, &l.Limits.Deposit.Daily, &l.Limits.Deposit.Monthly,
		&l.Limits.Withdraw.PerTransaction, &l.Limits.Withdraw.Daily, &l.Limits.Withdraw.Monthly,
		&l.Limits.Transfer.PerTransaction, &l.Limits.Transfer.Daily, &l.Limits.Transfer.Monthly,
		&l.IsFirstDay, &l.IsKycVerified, &l.IsHighRiskUser,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Service) getUserLimit(ctx context.Context, userId string) (*models.UserLimit, error) {
	l, err := scanUserLimit(s.db.QueryRowContext(ctx, queryGetUserLimit, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user limits %s: %w", userId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query user limits: %w", err)
	}
	return l, nil
}

// GetOrCreateUserLimit returns the stored limits, inserting a first-day row built from defaults on first use.
func (s *Service) GetOrCreateUserLimit(ctx context.Context, userId string, defaults models.LimitProfile) (*models.UserLimit, error) {
	l, err := s.getUserLimit(ctx, userId)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	zap.L().Info("Creating default user limits", zap.String("user_id", userId))
	// INSERT OR IGNORE: a concurrent creator wins and we read its row back
	if _, err := s.db.ExecContext(ctx, queryInsertUserLimit, userLimitArgs(userId, defaults, s.timestamp())...); err != nil {
		return nil, fmt.Errorf("unable to insert user limits: %w", err)
	}
	return s.getUserLimit(ctx, userId)
}

func (s *Service) SaveUserLimit(ctx context.Context, limit *models.UserLimit) error {
	args := profileArgs(limit.Limits)
	args = append(args, limit.IsFirstDay, limit.IsKycVerified, limit.IsHighRiskUser, s.timestamp(), limit.UserId)

	result, err := s.db.ExecContext(ctx, queryUpdateUserLimit, args...)
	if err != nil {
		return fmt.Errorf("unable to update user limits: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user limits %s: %w", limit.UserId, store.ErrNotFound)
	}

	zap.L().Info("User limits updated",
		zap.String("user_id", limit.UserId),
		zap.Bool("is_first_day", limit.IsFirstDay),
		zap.Bool("is_kyc_verified", limit.IsKycVerified),
		zap.Bool("is_high_risk_user", limit.IsHighRiskUser))
	return nil
}

func (s *Service) CompleteFirstDay(ctx context.Context, userId string, standard models.LimitProfile) (bool, error) {
	args := profileArgs(standard)
	args = append(args, s.timestamp(), userId)

	result, err := s.db.ExecContext(ctx, queryCompleteFirstDay, args...)
	if err != nil {
		return false, fmt.Errorf("unable to complete first day: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		zap.L().Info("First-day limits lifted", zap.String("user_id", userId))
	}
	return rowsAffected > 0, nil
}
