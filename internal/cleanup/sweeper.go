// Package cleanup expires transactions that stayed open longer than the
// configured timeout.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"go.uber.org/zap"
)

const defaultBatchSize = 200

type Store interface {
	ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
	ApplyTransition(ctx context.Context, params store.TransitionParams) (*models.Transaction, error)
	CountByStatus(ctx context.Context, statuses []models.TransactionStatus, createdBefore, createdAfter *time.Time) (int, error)
}

type Sweeper struct {
	store     Store
	timeout   time.Duration
	batchSize int
	now       func() time.Time
}

func NewSweeper(s Store, timeout time.Duration) *Sweeper {
	return &Sweeper{
		store:     s,
		timeout:   timeout,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

func (s *Sweeper) WithBatchSize(n int) *Sweeper {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Timeout is how long a transaction may stay open
func (s *Sweeper) Timeout() time.Duration {
	return s.timeout
}

// Sweep expires every open transaction created strictly before now - timeout.
// Each row is expired with a compare-and-set, so a row the reconciler settles
// meanwhile is left alone. Row failures are counted and do not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (*models.SweepResult, error) {
	started := s.now()
	cutoff := started.Add(-s.timeout)
	result := &models.SweepResult{Cutoff: cutoff}
	message := fmt.Sprintf("expired after %s without confirmation", s.timeout)

	skip := map[string]bool{}
	for {
		page, err := s.store.ListOpenBefore(ctx, cutoff, s.batchSize+len(skip))
		if err != nil {
			return result, fmt.Errorf("failed to list expired transactions: %w", err)
		}

		progress := false
		for _, tx := range page {
			if skip[tx.Id] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return result, err
			}

			result.Examined++
			_, err := s.store.ApplyTransition(ctx, store.TransitionParams{
				TransactionId: tx.Id,
				From:          tx.Status,
				To:            models.StatusExpired,
				ErrorMessage:  message,
				At:            s.now(),
			})
			switch {
			case err == nil:
				result.Expired++
				progress = true
				zap.L().Info("Transaction expired",
					zap.String("transaction_id", tx.Id),
					zap.String("user_id", tx.UserId),
					zap.String("from", string(tx.Status)),
					zap.Time("created_at", tx.CreatedAt))
			case errors.Is(err, store.ErrConcurrentModification):
				progress = true
				zap.L().Debug("Transaction moved before it could be expired",
					zap.String("transaction_id", tx.Id))
			default:
				result.Failed++
				skip[tx.Id] = true
				zap.L().Error("Failed to expire transaction",
					zap.String("transaction_id", tx.Id),
					zap.Error(err))
			}
		}

		if len(page) < s.batchSize+len(skip) || !progress {
			break
		}
	}

	result.Duration = s.now().Sub(started)
	zap.L().Info("Cleanup sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int("examined", result.Examined),
		zap.Int("expired", result.Expired),
		zap.Int("failed", result.Failed))
	return result, nil
}

// Stats buckets open transactions around the current cutoff
func (s *Sweeper) Stats(ctx context.Context) (*models.CleanupStats, error) {
	cutoff := s.now().Add(-s.timeout)
	stats := &models.CleanupStats{Cutoff: cutoff}

	counts := []struct {
		dst      *int
		statuses []models.TransactionStatus
		before   *time.Time
		after    *time.Time
	}{
		{&stats.TotalPending, models.OpenStatuses, nil, nil},
		{&stats.ReadyToExpire, models.OpenStatuses, &cutoff, nil},
		{&stats.RecentlyPending, models.OpenStatuses, nil, &cutoff},
		{&stats.AlreadyExpired, []models.TransactionStatus{models.StatusExpired}, nil, nil},
	}
	for _, c := range counts {
		n, err := s.store.CountByStatus(ctx, c.statuses, c.before, c.after)
		if err != nil {
			return nil, fmt.Errorf("failed to count transactions: %w", err)
		}
		*c.dst = n
	}
	return stats, nil
}
