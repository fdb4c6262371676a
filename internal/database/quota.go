package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// QuotaCounter persists daily call counters in SQLite so every process sharing
// the database draws from the same provider quota.
type QuotaCounter struct {
	db *sql.DB
}

// QuotaCounter returns a counter backed by this database
func (s *Service) QuotaCounter() *QuotaCounter {
	return &QuotaCounter{db: s.db}
}

// Take consumes one call from key's quota for day. It reports false, without
// consuming, once limit calls have been taken.
func (q *QuotaCounter) Take(ctx context.Context, key, day string, limit int) (bool, error) {
	result, err := q.db.ExecContext(ctx, queryTakeQuota, key, day, limit)
	if err != nil {
		return false, fmt.Errorf("unable to take quota: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Used returns how many calls have been taken from key's quota for day
func (q *QuotaCounter) Used(ctx context.Context, key, day string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, queryGetQuota, key, day).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("unable to read quota: %w", err)
	}
	return count, nil
}
