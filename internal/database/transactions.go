package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var txType, status string
	var externalId sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(&tx.Id, &tx.UserId, &txType, &status, &tx.Amount, &externalId,
		&tx.Metadata, &tx.ErrorMessage, &tx.CreatedAt, &tx.UpdatedAt, &processedAt)
	if err != nil {
		return nil, err
	}

	tx.Type = models.TransactionType(txType)
	tx.Status = models.TransactionStatus(status)
	tx.ExternalId = externalId.String
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		tx.ProcessedAt = &t
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return &tx, nil
}

// CreateTransaction inserts a new transaction row. Id and timestamps are filled in when empty.
func (s *Service) CreateTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	row := *tx
	if row.Id == "" {
		row.Id = uuid.New().String()
	}
	if row.Status == "" {
		row.Status = models.StatusPending
	}
	now := s.timestamp()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.CreatedAt = row.CreatedAt.UTC()
	row.UpdatedAt = row.CreatedAt

	zap.L().Info("Creating transaction",
		zap.String("transaction_id", row.Id),
		zap.String("user_id", row.UserId),
		zap.String("type", string(row.Type)),
		zap.String("amount", row.Amount.String()))

	var processedAt any
	if row.ProcessedAt != nil {
		processedAt = row.ProcessedAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, queryInsertTransaction,
		row.Id, row.UserId, string(row.Type), string(row.Status), row.Amount.String(),
		nullString(row.ExternalId), row.Metadata, row.ErrorMessage,
		row.CreatedAt, row.UpdatedAt, processedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	return s.GetTransaction(ctx, row.Id)
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, queryGetTransaction, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (s *Service) GetTransactionByExternalId(ctx context.Context, externalId string) (*models.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, queryGetTransactionByExternalId, externalId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("external id %s: %w", externalId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction by external id: %w", err)
	}
	return tx, nil
}

// AttachExternalId records the provider id and moves the row from PENDING to PROCESSING.
// Re-attaching the same id is a no-op; a different id is rejected.
func (s *Service) AttachExternalId(ctx context.Context, id, externalId string, metadata models.TransactionMetadata) (*models.Transaction, error) {
	if externalId == "" {
		return nil, fmt.Errorf("external id cannot be empty")
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(dbTx)

	var status string
	var current sql.NullString
	var stored models.TransactionMetadata
	err = dbTx.QueryRowContext(ctx, queryLockTransaction, id).Scan(&status, &current, &stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read transaction: %w", err)
	}

	if current.Valid {
		if current.String == externalId {
			if err := dbTx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return s.GetTransaction(ctx, id)
		}
		return nil, fmt.Errorf("transaction %s has %s: %w", id, current.String, store.ErrExternalIdAssigned)
	}
	if models.TransactionStatus(status) != models.StatusPending {
		return nil, fmt.Errorf("transaction %s is %s: %w", id, status, store.ErrInvalidTransition)
	}

	stored.Merge(metadata)
	result, err := dbTx.ExecContext(ctx, queryAttachExternalId,
		externalId, string(models.StatusProcessing), stored, s.timestamp(),
		id, string(models.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to attach external id: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("attach external id failed - %w", store.ErrConcurrentModification)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("External id attached",
		zap.String("transaction_id", id),
		zap.String("external_id", externalId))

	return s.GetTransaction(ctx, id)
}

// ApplyTransition atomically moves a transaction from params.From to params.To,
// merging metadata and stamping processed_at on the first terminal transition.
func (s *Service) ApplyTransition(ctx context.Context, params store.TransitionParams) (*models.Transaction, error) {
	if !models.CanTransition(params.From, params.To) {
		return nil, fmt.Errorf("%s -> %s: %w", params.From, params.To, store.ErrInvalidTransition)
	}

	at := params.At
	if at.IsZero() {
		at = s.timestamp()
	}
	at = at.UTC()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(dbTx)

	var status string
	var externalId sql.NullString
	var stored models.TransactionMetadata
	err = dbTx.QueryRowContext(ctx, queryLockTransaction, params.TransactionId).Scan(&status, &externalId, &stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", params.TransactionId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read transaction: %w", err)
	}
	if models.TransactionStatus(status) != params.From {
		return nil, fmt.Errorf("transaction %s is %s, expected %s: %w",
			params.TransactionId, status, params.From, store.ErrConcurrentModification)
	}

	stored.Merge(params.Metadata)
	result, err := dbTx.ExecContext(ctx, queryApplyTransition,
		string(params.To),
		stored,
		params.ErrorMessage, params.ErrorMessage,
		params.To.IsTerminal(), at,
		at,
		params.TransactionId, string(params.From))
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("status update failed - %w", store.ErrConcurrentModification)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Transaction status updated",
		zap.String("transaction_id", params.TransactionId),
		zap.String("from", string(params.From)),
		zap.String("to", string(params.To)))

	return s.GetTransaction(ctx, params.TransactionId)
}

// SumAmounts adds up the amounts matching q. Amounts are summed as decimals,
// never by the database, so the result is exact.
func (s *Service) SumAmounts(ctx context.Context, q store.UsageQuery) (decimal.Decimal, error) {
	query := `SELECT amount FROM transactions WHERE user_id = ? AND type = ? AND created_at >= ?`
	args := []any{q.UserId, string(q.Type), q.Since.UTC()}
	if len(q.Statuses) > 0 {
		query += " AND status IN (" + placeholders(len(q.Statuses)) + ")"
		for _, st := range q.Statuses {
			args = append(args, string(st))
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query usage: %w", err)
	}
	defer closeRows(rows)

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating usage rows: %w", err)
	}
	return total, nil
}

// ListOpenBefore returns PENDING/PROCESSING rows created strictly before cutoff, oldest first.
func (s *Service) ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	return s.listTransactions(ctx, queryListOpenBefore, cutoff.UTC(), limit)
}

// ListOpenWithExternalId returns open rows the provider knows about, never-polled
// rows first, then least recently polled.
func (s *Service) ListOpenWithExternalId(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	return s.listTransactions(ctx, queryListOpenWithExternalId, createdBefore.UTC(), limit)
}

// MarkPolled records that the provider was asked about a transaction. It does
// not touch status or updated_at.
func (s *Service) MarkPolled(ctx context.Context, id string, at time.Time) error {
	if at.IsZero() {
		at = s.timestamp()
	}
	result, err := s.db.ExecContext(ctx, queryMarkPolled, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark transaction polled: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Service) listTransactions(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer closeRows(rows)

	var transactions []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *tx)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

// CountByStatus counts rows in the given statuses, optionally bounded by creation time
// (createdBefore exclusive, createdAfter inclusive).
func (s *Service) CountByStatus(ctx context.Context, statuses []models.TransactionStatus, createdBefore, createdAfter *time.Time) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	query := "SELECT COUNT(*) FROM transactions WHERE status IN (" + placeholders(len(statuses)) + ")"
	args := make([]any, 0, len(statuses)+2)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	if createdBefore != nil {
		query += " AND created_at < ?"
		args = append(args, createdBefore.UTC())
	}
	if createdAfter != nil {
		query += " AND created_at >= ?"
		args = append(args, createdAfter.UTC())
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
