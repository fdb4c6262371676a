package store

import (
	"context"
	"errors"
	"time"

	"pix-settlement-bridge/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("record not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrExternalIdAssigned     = errors.New("external id already assigned")
	ErrDuplicateUser          = errors.New("user already exists")
)

// TransitionParams describes one compare-and-set status change.
// The update only applies while the stored status still equals From.
type TransitionParams struct {
	TransactionId string
	From          models.TransactionStatus
	To            models.TransactionStatus
	// Metadata is merged key by key into the stored metadata.
	Metadata     models.TransactionMetadata
	ErrorMessage string
	At           time.Time
}

// UsageQuery selects the rows whose amounts count against a quota window
type UsageQuery struct {
	UserId   string
	Type     models.TransactionType
	Statuses []models.TransactionStatus
	Since    time.Time
}

// TransactionStore is the durable record of transactions
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetTransactionByExternalId(ctx context.Context, externalId string) (*models.Transaction, error)
	// AttachExternalId assigns the provider id (once) and moves PENDING to PROCESSING.
	AttachExternalId(ctx context.Context, id, externalId string, metadata models.TransactionMetadata) (*models.Transaction, error)
	// ApplyTransition returns ErrConcurrentModification when the stored status is no longer From.
	ApplyTransition(ctx context.Context, params TransitionParams) (*models.Transaction, error)
	SumAmounts(ctx context.Context, q UsageQuery) (decimal.Decimal, error)
	ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
	// ListOpenWithExternalId orders by last poll, so repeated batches rotate through every open row.
	ListOpenWithExternalId(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error)
	MarkPolled(ctx context.Context, id string, at time.Time) error
	CountByStatus(ctx context.Context, statuses []models.TransactionStatus, createdBefore, createdAfter *time.Time) (int, error)
}

// UserLimitStore holds per-user quota configuration
type UserLimitStore interface {
	// GetOrCreateUserLimit returns the stored row, inserting defaults on first use.
	GetOrCreateUserLimit(ctx context.Context, userId string, defaults models.LimitProfile) (*models.UserLimit, error)
	SaveUserLimit(ctx context.Context, limit *models.UserLimit) error
	// CompleteFirstDay flips is_first_day and applies the standard profile.
	// It reports false when the flag was already cleared.
	CompleteFirstDay(ctx context.Context, userId string, standard models.LimitProfile) (bool, error)
}

// ReputationStore holds per-user reputation
type ReputationStore interface {
	GetOrCreateReputation(ctx context.Context, userId string, initial models.UserReputation) (*models.UserReputation, error)
	// UpdateReputation runs fn against the row inside one database transaction.
	UpdateReputation(ctx context.Context, userId string, initial models.UserReputation, fn func(rep *models.UserReputation) error) (*models.UserReputation, error)
}

// SettingsStore holds versioned runtime configuration values
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	PutSetting(ctx context.Context, key, value string) (*models.Setting, error)
	ListSettings(ctx context.Context) ([]models.Setting, error)
}

// UserStore holds activated accounts
type UserStore interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// CreateUser activates an account together with its limit and reputation rows.
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
}

// CreateUserParams contains the rows written when an account is activated
type CreateUserParams struct {
	UserId     string
	Name       string
	Email      string
	Limits     models.LimitProfile
	Reputation models.UserReputation
}

// SettlementJournal records settled transactions in a ledger
type SettlementJournal interface {
	RecordSettlement(ctx context.Context, tx *models.Transaction) error
}

// Store is everything the bridge persists
type Store interface {
	TransactionStore
	UserLimitStore
	ReputationStore
	SettingsStore
	UserStore
	SettlementJournal
	Ping(ctx context.Context) error
	Close()
}
