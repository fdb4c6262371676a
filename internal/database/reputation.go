package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"
)

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func reputationInsertArgs(r models.UserReputation, now time.Time) []any {
	return []any{
		r.UserId, r.ReputationScore.String(), r.TotalApprovedVolume.String(),
		r.TotalApprovedCount, r.TotalRejectedCount, r.CurrentDailyLimit.String(),
		r.LimitTier, r.NextLimitThreshold.String(), now, now,
	}
}

func getReputation(ctx context.Context, q queryRower, userId string) (*models.UserReputation, error) {
	var r models.UserReputation
	err := q.QueryRowContext(ctx, queryGetReputation, userId).Scan(
		&r.UserId, &r.ReputationScore, &r.TotalApprovedVolume, &r.TotalApprovedCount,
		&r.TotalRejectedCount, &r.CurrentDailyLimit, &r.LimitTier, &r.NextLimitThreshold,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reputation %s: %w", userId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query reputation: %w", err)
	}
	return &r, nil
}

func (s *Service) GetOrCreateReputation(ctx context.Context, userId string, initial models.UserReputation) (*models.UserReputation, error) {
	r, err := getReputation(ctx, s.db, userId)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	initial.UserId = userId
	if _, err := s.db.ExecContext(ctx, queryInsertReputation, reputationInsertArgs(initial, s.timestamp())...); err != nil {
		return nil, fmt.Errorf("unable to insert reputation: %w", err)
	}
	return getReputation(ctx, s.db, userId)
}

// UpdateReputation loads (or creates) the row, lets fn mutate it and writes it back,
// all under one write transaction so concurrent outcomes are never lost.
func (s *Service) UpdateReputation(ctx context.Context, userId string, initial models.UserReputation, fn func(rep *models.UserReputation) error) (*models.UserReputation, error) {
	now := s.timestamp()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer rollback(dbTx)

	initial.UserId = userId
	if _, err := dbTx.ExecContext(ctx, queryInsertReputation, reputationInsertArgs(initial, now)...); err != nil {
		return nil, fmt.Errorf("unable to insert reputation: %w", err)
	}

	rep, err := getReputation(ctx, dbTx, userId)
	if err != nil {
		return nil, err
	}
	if err := fn(rep); err != nil {
		return nil, err
	}

	_, err = dbTx.ExecContext(ctx, queryUpdateReputation,
		rep.ReputationScore.String(), rep.TotalApprovedVolume.String(), rep.TotalApprovedCount,
		rep.TotalRejectedCount, rep.CurrentDailyLimit.String(), rep.LimitTier,
		rep.NextLimitThreshold.String(), now, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to update reputation: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("unable to commit reputation: %w", err)
	}

	rep.UpdatedAt = now
	return rep, nil
}
