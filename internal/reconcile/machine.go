// Package reconcile drives transactions from PENDING/PROCESSING to a terminal
// status by asking the provider and mapping its answer onto the local lifecycle.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/provider"
	"pix-settlement-bridge/internal/store"

	"go.uber.org/zap"
)

// Store is the slice of the transaction store the machine uses
type Store interface {
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetTransactionByExternalId(ctx context.Context, externalId string) (*models.Transaction, error)
	ApplyTransition(ctx context.Context, params store.TransitionParams) (*models.Transaction, error)
	ListOpenWithExternalId(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error)
	MarkPolled(ctx context.Context, id string, at time.Time) error
}

type StatusProvider interface {
	GetStatus(ctx context.Context, externalId string) (*provider.DepositStatus, error)
}

type LimitHook interface {
	OnSettlementSuccess(ctx context.Context, userId string, txType models.TransactionType) error
}

type ReputationHook interface {
	OnSuccess(ctx context.Context, tx *models.Transaction) error
	OnFailure(ctx context.Context, userId string) error
}

type Machine struct {
	store      Store
	provider   StatusProvider
	limits     LimitHook
	reputation ReputationHook
	journal    store.SettlementJournal
	now        func() time.Time
}

func NewMachine(s Store, p StatusProvider, limits LimitHook, reputation ReputationHook, journal store.SettlementJournal) *Machine {
	return &Machine{
		store:      s,
		provider:   p,
		limits:     limits,
		reputation: reputation,
		journal:    journal,
		now:        time.Now,
	}
}

func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// CheckStatus reconciles a transaction on behalf of its owner
func (m *Machine) CheckStatus(ctx context.Context, transactionId, userId string) (*models.StatusResult, error) {
	tx, err := m.load(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if tx.UserId != userId {
		return nil, fmt.Errorf("transaction %s: %w", transactionId, models.ErrForbidden)
	}
	return m.reconcile(ctx, tx)
}

// CheckAsSystem reconciles a transaction without an ownership check
func (m *Machine) CheckAsSystem(ctx context.Context, transactionId string) (*models.StatusResult, error) {
	tx, err := m.load(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	return m.reconcile(ctx, tx)
}

// HandleHint reacts to a provider notification by polling the provider.
// The notification itself only says which deposit to look at.
func (m *Machine) HandleHint(ctx context.Context, externalId string) (*models.StatusResult, error) {
	tx, err := m.store.GetTransactionByExternalId(ctx, externalId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("external id %s: %w", externalId, models.ErrNotFound)
		}
		return nil, err
	}
	return m.reconcile(ctx, tx)
}

// ReconcileOpen polls up to batch open transactions that the provider knows
// about and that are at least minAge old, least recently polled first. Row
// failures are logged and skipped; a rejected credential stops the sweep.
func (m *Machine) ReconcileOpen(ctx context.Context, minAge time.Duration, batch int) (*models.ReconcileResult, error) {
	open, err := m.store.ListOpenWithExternalId(ctx, m.now().Add(-minAge), batch)
	if err != nil {
		return nil, fmt.Errorf("failed to list open transactions: %w", err)
	}

	result := &models.ReconcileResult{}
	for i := range open {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		tx := &open[i]
		status, err := m.reconcile(ctx, tx)
		result.Checked++
		if err != nil {
			result.Failed++
			if errors.Is(err, provider.ErrAuthFailure) {
				return result, err
			}
			zap.L().Error("Failed to reconcile transaction",
				zap.String("transaction_id", tx.Id),
				zap.Error(err))
			continue
		}
		if status.ShouldRetry {
			result.Deferred++
		}
		if status.Changed {
			result.Changed++
		}
	}
	return result, nil
}

func (m *Machine) load(ctx context.Context, transactionId string) (*models.Transaction, error) {
	tx, err := m.store.GetTransaction(ctx, transactionId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", transactionId, models.ErrNotFound)
		}
		return nil, err
	}
	return tx, nil
}

func (m *Machine) reconcile(ctx context.Context, tx *models.Transaction) (*models.StatusResult, error) {
	if tx.Status.IsTerminal() {
		return result(tx, false), nil
	}

	if !tx.HasExternalId() {
		r := result(tx, false)
		r.CanPoll = false
		r.Message = "the provider has not confirmed this request yet"
		return r, nil
	}

	remote, err := m.provider.GetStatus(ctx, tx.ExternalId)
	// stamped whatever the answer, so the bulk sweep moves on to other rows
	if markErr := m.store.MarkPolled(ctx, tx.Id, m.now()); markErr != nil {
		zap.L().Warn("Failed to record poll time",
			zap.String("transaction_id", tx.Id),
			zap.Error(markErr))
	}
	if err != nil {
		// rejected credentials or permissions need an operator, not a retry
		if !provider.IsTransient(err) {
			zap.L().Error("Provider refused status check",
				zap.String("transaction_id", tx.Id),
				zap.Error(err))
			return nil, fmt.Errorf("status check for %s: %w", tx.Id, err)
		}
		zap.L().Warn("Status check failed, returning last known status",
			zap.String("transaction_id", tx.Id),
			zap.String("status", string(tx.Status)),
			zap.Error(err))
		r := result(tx, false)
		r.ShouldRetry = true
		return r, nil
	}

	target, known := MapProviderStatus(remote.Status)
	if !known {
		zap.L().Warn("Unknown provider status, leaving transaction unchanged",
			zap.String("transaction_id", tx.Id),
			zap.String("provider_status", remote.Status))
		target = tx.Status
	}

	patch := models.TransactionMetadata{
		PayerName:      models.StringPtr(remote.PayerName),
		PayerTaxId:     models.StringPtr(remote.PayerTaxId),
		BlockchainTxId: models.StringPtr(remote.BlockchainTxId),
		ProviderStatus: models.StringPtr(remote.Status),
	}

	if target == tx.Status {
		merged := tx.Metadata
		merged.Merge(patch)
		if merged.Equal(tx.Metadata) || !models.CanTransition(tx.Status, target) {
			return result(tx, false), nil
		}
	}

	params := store.TransitionParams{
		TransactionId: tx.Id,
		From:          tx.Status,
		To:            target,
		Metadata:      patch,
		At:            m.now(),
	}
	if target == models.StatusFailed {
		params.ErrorMessage = fmt.Sprintf("provider reported %s", remote.Status)
	}

	updated, err := m.store.ApplyTransition(ctx, params)
	if err != nil {
		if errors.Is(err, store.ErrConcurrentModification) {
			// another checker got there first and owns the side effects
			current, getErr := m.store.GetTransaction(ctx, tx.Id)
			if getErr != nil {
				return nil, getErr
			}
			return result(current, false), nil
		}
		return nil, fmt.Errorf("failed to update transaction %s: %w", tx.Id, err)
	}

	changed := updated.Status != tx.Status
	if changed {
		zap.L().Info("Transaction reconciled",
			zap.String("transaction_id", updated.Id),
			zap.String("from", string(tx.Status)),
			zap.String("to", string(updated.Status)),
			zap.String("provider_status", remote.Status))
		m.afterTransition(ctx, updated)
	}

	return result(updated, changed), nil
}

// afterTransition runs the settlement side effects. Only the writer whose
// compare-and-set moved the row gets here, so each runs once per transaction.
// Failures are logged and never undo the transition.
func (m *Machine) afterTransition(ctx context.Context, tx *models.Transaction) {
	switch tx.Status {
	case models.StatusCompleted:
		if err := m.limits.OnSettlementSuccess(ctx, tx.UserId, tx.Type); err != nil {
			zap.L().Error("Failed to apply settlement to limits", zap.String("transaction_id", tx.Id), zap.Error(err))
		}
		if err := m.reputation.OnSuccess(ctx, tx); err != nil {
			zap.L().Error("Failed to apply settlement to reputation", zap.String("transaction_id", tx.Id), zap.Error(err))
		}
		if m.journal != nil {
			if err := m.journal.RecordSettlement(ctx, tx); err != nil {
				zap.L().Error("Failed to journal settlement", zap.String("transaction_id", tx.Id), zap.Error(err))
			}
		}
	case models.StatusFailed:
		if tx.Type != models.TransactionTypeDeposit {
			return
		}
		if err := m.reputation.OnFailure(ctx, tx.UserId); err != nil {
			zap.L().Error("Failed to apply failure to reputation", zap.String("transaction_id", tx.Id), zap.Error(err))
		}
	}
}

func result(tx *models.Transaction, changed bool) *models.StatusResult {
	return &models.StatusResult{
		TransactionId: tx.Id,
		Status:        tx.Status,
		Amount:        tx.Amount,
		ProcessedAt:   tx.ProcessedAt,
		Message:       statusMessage(tx),
		CanPoll:       !tx.Status.IsTerminal() && tx.HasExternalId(),
		Changed:       changed,
	}
}
