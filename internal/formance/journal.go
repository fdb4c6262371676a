package formance

import (
	"context"
	"fmt"

	"pix-settlement-bridge/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Amounts are BRL in centavos.
const (
	settlementAsset     = "BRL/2"
	settlementPrecision = 2
)

// Deposits move value from the provider's clearing account to the user.
// Outbound types post the mirror image.
const numscriptSettlement = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $transaction_id
  string $transaction_type
  string $external_id
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("event_type", "settlement")
set_tx_meta("transaction_id", $transaction_id)
set_tx_meta("transaction_type", $transaction_type)
set_tx_meta("external_id", $external_id)
`

// RecordSettlement posts a completed transaction to the ledger. The
// transaction id is the Formance reference, so replays are no-ops.
func (s *Service) RecordSettlement(ctx context.Context, tx *models.Transaction) error {
	postTx, err := settlementPosting(tx)
	if err != nil {
		return err
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Settlement already journaled", zap.String("transaction_id", tx.Id))
			return nil
		}
		return fmt.Errorf("error recording settlement: %w", err)
	}

	zap.L().Info("Settlement recorded in Formance",
		zap.String("transaction_id", tx.Id),
		zap.String("user_id", tx.UserId),
		zap.String("amount", tx.Amount.String()))
	return nil
}

func settlementPosting(tx *models.Transaction) (shared.V2PostTransaction, error) {
	if tx.Status != models.StatusCompleted {
		return shared.V2PostTransaction{}, fmt.Errorf("transaction %s is %s, only completed transactions are journaled", tx.Id, tx.Status)
	}

	source, destination := "provider:clearing", "users:"+tx.UserId+":settled"
	if tx.Type != models.TransactionTypeDeposit {
		source, destination = destination, source
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(tx.Id + "-settled"),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptSettlement,
			Vars: map[string]string{
				"asset":            settlementAsset,
				"amount":           tx.Amount.Shift(settlementPrecision).BigInt().String(),
				"source":           source,
				"destination":      destination,
				"transaction_id":   tx.Id,
				"transaction_type": string(tx.Type),
				"external_id":      tx.ExternalId,
			},
		},
	}
	if tx.ProcessedAt != nil {
		postTx.Timestamp = tx.ProcessedAt
	}
	return postTx, nil
}
