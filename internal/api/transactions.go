package api

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"pix-settlement-bridge/internal/config"
	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"go.uber.org/zap"
)

const (
	maxDestinationLength = 128
	maxDescriptionLength = 140
)

// CreateTransaction checks the user's quota, records the request and asks the
// provider for a payment code. Only deposits are provider-backed.
//
// The user's lock is held from the quota check until the row reaches
// PROCESSING, the first state that counts against usage, so two concurrent
// requests cannot both spend the same headroom.
func (s *PaymentService) CreateTransaction(ctx context.Context, req models.CreateTransactionRequest) (*models.CreateTransactionResult, error) {
	txType, err := models.ParseTransactionType(string(req.Type))
	if err != nil {
		return nil, err
	}
	if txType != models.TransactionTypeDeposit {
		return nil, models.NewValidationError("type", fmt.Sprintf("%s is not supported by the provider", txType))
	}
	if req.UserId == "" {
		return nil, models.NewValidationError("user_id", "is required")
	}
	if !req.Amount.IsPositive() {
		return nil, models.NewValidationError("amount", "must be positive")
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, models.NewValidationError("amount", "must have at most two decimal places")
	}
	// trailing zeros ("450.000") are accepted and stored at centavo scale
	amount := req.Amount.Round(2)
	if len(req.Description) > maxDescriptionLength {
		return nil, models.NewValidationError("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}

	destination := strings.TrimSpace(req.Destination)
	if err := s.validateDestination(ctx, destination); err != nil {
		return nil, err
	}

	unlock := s.limits.Locker().Lock(req.UserId)
	defer unlock()

	if err := s.limits.ValidateOrError(ctx, req.UserId, txType, amount); err != nil {
		return nil, err
	}

	tx, err := s.store.CreateTransaction(ctx, &models.Transaction{
		UserId: req.UserId,
		Type:   txType,
		Status: models.StatusPending,
		Amount: amount,
		Metadata: models.TransactionMetadata{
			Destination: models.StringPtr(destination),
			Description: models.StringPtr(req.Description),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	deposit, err := s.provider.CreateDeposit(ctx, amount, destination, req.Description)
	if err != nil {
		s.markFailed(ctx, tx, err)
		return nil, fmt.Errorf("provider rejected deposit %s: %w", tx.Id, err)
	}

	tx, err = s.store.AttachExternalId(ctx, tx.Id, deposit.Id, models.TransactionMetadata{
		QRCopyPaste: models.StringPtr(deposit.QRCopyPaste),
		QRImageURL:  models.StringPtr(deposit.QRImageURL),
	})
	if err != nil {
		// the provider holds a live charge this row does not point at
		zap.L().Error("Deposit accepted by provider but not recorded, reconcile manually",
			zap.String("transaction_id", tx.Id),
			zap.String("user_id", tx.UserId),
			zap.String("external_id", deposit.Id),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to attach provider id %s to %s: %w", deposit.Id, tx.Id, err)
	}

	zap.L().Info("Deposit created",
		zap.String("transaction_id", tx.Id),
		zap.String("user_id", tx.UserId),
		zap.String("external_id", tx.ExternalId),
		zap.String("amount", tx.Amount.String()))

	return &models.CreateTransactionResult{
		TransactionId: tx.Id,
		Status:        tx.Status,
		QRCopyPaste:   deposit.QRCopyPaste,
		QRImageURL:    deposit.QRImageURL,
	}, nil
}

func (s *PaymentService) markFailed(ctx context.Context, tx *models.Transaction, cause error) {
	_, err := s.store.ApplyTransition(ctx, store.TransitionParams{
		TransactionId: tx.Id,
		From:          models.StatusPending,
		To:            models.StatusFailed,
		ErrorMessage:  fmt.Sprintf("provider error: %v", cause),
	})
	if err != nil {
		zap.L().Error("Failed to mark transaction as failed",
			zap.String("transaction_id", tx.Id),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

// validateDestination rejects malformed addresses locally and, when the
// remote check is switched on, asks the provider as well.
func (s *PaymentService) validateDestination(ctx context.Context, destination string) error {
	if destination == "" {
		return models.NewValidationError("destination", "is required")
	}
	if len(destination) > maxDestinationLength {
		return models.NewValidationError("destination", fmt.Sprintf("must be at most %d characters", maxDestinationLength))
	}
	for _, r := range destination {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return models.NewValidationError("destination", "must be alphanumeric")
		}
	}

	if s.features == nil || !s.features.FeatureEnabled(ctx, config.FeatureRemoteAddressValidation) {
		return nil
	}
	valid, err := s.provider.ValidateDestinationAddress(ctx, destination)
	if err != nil {
		return fmt.Errorf("failed to validate destination: %w", err)
	}
	if !valid {
		return models.NewValidationError("destination", "rejected by the provider")
	}
	return nil
}
