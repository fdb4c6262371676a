package database

import (
	"context"
	"fmt"

	"pix-settlement-bridge/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	AccountTypeProviderClearing = "provider_clearing"
	AccountTypeUserSettled      = "user_settled"
	providerAccountId           = "provider"
)

// RecordSettlement posts a balanced pair of journal entries for a completed
// transaction. Posting the same transaction twice is a no-op.
func (s *Service) RecordSettlement(ctx context.Context, tx *models.Transaction) error {
	if tx.Status != models.StatusCompleted {
		return fmt.Errorf("transaction %s is %s, only completed transactions are journaled", tx.Id, tx.Status)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(dbTx)

	var existing int
	if err := dbTx.QueryRowContext(ctx, queryCountJournalEntries, tx.Id).Scan(&existing); err != nil {
		return fmt.Errorf("failed to check journal entries: %w", err)
	}
	if existing > 0 {
		zap.L().Debug("Settlement already journaled", zap.String("transaction_id", tx.Id))
		return nil
	}

	// Deposits: the provider owes what the payer sent, the user is owed the same.
	// Outbound types post the mirror image.
	debitAccount, debitId := AccountTypeProviderClearing, providerAccountId
	creditAccount, creditId := AccountTypeUserSettled, tx.UserId
	if tx.Type != models.TransactionTypeDeposit {
		debitAccount, debitId, creditAccount, creditId = creditAccount, creditId, debitAccount, debitId
	}

	now := s.timestamp()
	entries := []models.JournalEntry{
		{Id: uuid.New().String(), TransactionId: tx.Id, AccountType: debitAccount, AccountId: debitId, DebitAmount: tx.Amount, CreditAmount: decimal.Zero},
		{Id: uuid.New().String(), TransactionId: tx.Id, AccountType: creditAccount, AccountId: creditId, DebitAmount: decimal.Zero, CreditAmount: tx.Amount},
	}
	for _, e := range entries {
		_, err := dbTx.ExecContext(ctx, queryInsertJournalEntry,
			e.Id, e.TransactionId, e.AccountType, e.AccountId,
			e.DebitAmount.String(), e.CreditAmount.String(), now)
		if err != nil {
			return fmt.Errorf("failed to insert journal entry: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal entries: %w", err)
	}

	zap.L().Info("Settlement journaled",
		zap.String("transaction_id", tx.Id),
		zap.String("user_id", tx.UserId),
		zap.String("amount", tx.Amount.String()))
	return nil
}

func (s *Service) GetJournalEntries(ctx context.Context, transactionId string) ([]models.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetJournalEntries, transactionId)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer closeRows(rows)

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.Id, &e.TransactionId, &e.AccountType, &e.AccountId,
			&e.DebitAmount, &e.CreditAmount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}
	return entries, nil
}
