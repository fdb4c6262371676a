package reconcile

import (
	"strings"

	"pix-settlement-bridge/internal/models"
)

// Provider status vocabulary
const (
	ProviderStatusSent        = "depix_sent"
	ProviderStatusCanceled    = "canceled"
	ProviderStatusError       = "error"
	ProviderStatusExpired     = "expired"
	ProviderStatusUnderReview = "under_review"
	ProviderStatusPending     = "pending"
	ProviderStatusRefunded    = "refunded"
)

var providerStatuses = map[string]models.TransactionStatus{
	ProviderStatusSent:        models.StatusCompleted,
	ProviderStatusCanceled:    models.StatusFailed,
	ProviderStatusError:       models.StatusFailed,
	ProviderStatusExpired:     models.StatusExpired,
	ProviderStatusUnderReview: models.StatusProcessing,
	ProviderStatusPending:     models.StatusProcessing,
	ProviderStatusRefunded:    models.StatusFailed,
}

// MapProviderStatus translates a provider status into a local one.
// ok is false for statuses the bridge does not know.
func MapProviderStatus(status string) (models.TransactionStatus, bool) {
	local, ok := providerStatuses[strings.ToLower(strings.TrimSpace(status))]
	return local, ok
}

func statusMessage(tx *models.Transaction) string {
	switch tx.Status {
	case models.StatusPending:
		return "waiting for the provider to accept the request"
	case models.StatusProcessing:
		return "waiting for payment confirmation"
	case models.StatusCompleted:
		return "payment settled"
	case models.StatusFailed:
		if tx.ErrorMessage != "" {
			return tx.ErrorMessage
		}
		return "payment failed"
	case models.StatusExpired:
		return "payment window expired"
	case models.StatusCancelled:
		return "payment cancelled"
	}
	return string(tx.Status)
}
