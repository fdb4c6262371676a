package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDb(t *testing.T) *Service {
	t.Helper()
	service, err := NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(service.Close)
	return service
}

func newDeposit(userId, amount string) *models.Transaction {
	return &models.Transaction{
		UserId: userId,
		Type:   models.TransactionTypeDeposit,
		Amount: decimal.RequireFromString(amount),
		Metadata: models.TransactionMetadata{
			Destination: models.StringPtr("lq1qqexample"),
		},
	}
}

func TestCreateTransaction_DefaultsToPending(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	tx, err := service.CreateTransaction(ctx, newDeposit("user1", "150.25"))
	require.NoError(t, err)

	assert.NotEmpty(t, tx.Id)
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("150.25")))
	assert.False(t, tx.HasExternalId())
	assert.Nil(t, tx.ProcessedAt)
	assert.Equal(t, "lq1qqexample", models.StringValue(tx.Metadata.Destination))
}

func TestGetTransaction_NotFound(t *testing.T) {
	service := setupTestDb(t)

	_, err := service.GetTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = service.GetTransactionByExternalId(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAttachExternalId(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	tx, err := service.CreateTransaction(ctx, newDeposit("user1", "10"))
	require.NoError(t, err)

	attached, err := service.AttachExternalId(ctx, tx.Id, "ext-1", models.TransactionMetadata{
		QRCopyPaste: models.StringPtr("00020101..."),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, attached.Status)
	assert.Equal(t, "ext-1", attached.ExternalId)
	assert.Equal(t, "00020101...", models.StringValue(attached.Metadata.QRCopyPaste))
	assert.Equal(t, "lq1qqexample", models.StringValue(attached.Metadata.Destination))

	// same id again is a no-op
	again, err := service.AttachExternalId(ctx, tx.Id, "ext-1", models.TransactionMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", again.ExternalId)

	_, err = service.AttachExternalId(ctx, tx.Id, "ext-2", models.TransactionMetadata{})
	assert.ErrorIs(t, err, store.ErrExternalIdAssigned)

	byExternal, err := service.GetTransactionByExternalId(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, tx.Id, byExternal.Id)
}

func TestApplyTransition_CompareAndSet(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	tx, err := service.CreateTransaction(ctx, newDeposit("user1", "10"))
	require.NoError(t, err)
	_, err = service.AttachExternalId(ctx, tx.Id, "ext-1", models.TransactionMetadata{})
	require.NoError(t, err)

	done, err := service.ApplyTransition(ctx, store.TransitionParams{
		TransactionId: tx.Id,
		From:          models.StatusProcessing,
		To:            models.StatusCompleted,
		Metadata:      models.TransactionMetadata{PayerName: models.StringPtr("Maria")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.NotNil(t, done.ProcessedAt)
	assert.Equal(t, "Maria", models.StringValue(done.Metadata.PayerName))

	// stale writer loses
	_, err = service.ApplyTransition(ctx, store.TransitionParams{
		TransactionId: tx.Id,
		From:          models.StatusProcessing,
		To:            models.StatusFailed,
	})
	assert.ErrorIs(t, err, store.ErrConcurrentModification)

	// terminal states are sinks
	_, err = service.ApplyTransition(ctx, store.TransitionParams{
		TransactionId: tx.Id,
		From:          models.StatusCompleted,
		To:            models.StatusFailed,
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	after, err := service.GetTransaction(ctx, tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, after.Status)
}

func TestApplyTransition_ConcurrentWritersExactlyOneWins(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	tx, err := service.CreateTransaction(ctx, newDeposit("user1", "10"))
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.ApplyTransition(ctx, store.TransitionParams{
				TransactionId: tx.Id,
				From:          models.StatusPending,
				To:            models.StatusExpired,
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestSumAmounts_CountsOnlyUsageStatusesInWindow(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	service.WithClock(func() time.Time { return now })

	create := func(amount string, createdAt time.Time, status models.TransactionStatus) {
		tx := newDeposit("user1", amount)
		tx.CreatedAt = createdAt
		tx.Status = status
		_, err := service.CreateTransaction(ctx, tx)
		require.NoError(t, err)
	}

	create("100.10", now.Add(-time.Hour), models.StatusCompleted)
	create("50.05", now.Add(-2*time.Hour), models.StatusProcessing)
	create("999", now.Add(-time.Hour), models.StatusFailed)
	create("999", now.Add(-time.Hour), models.StatusPending)
	create("70", now.Add(-48*time.Hour), models.StatusCompleted)

	daily, err := service.SumAmounts(ctx, store.UsageQuery{
		UserId:   "user1",
		Type:     models.TransactionTypeDeposit,
		Statuses: models.UsageStatuses,
		Since:    now.Truncate(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "150.15", daily.String())

	monthly, err := service.SumAmounts(ctx, store.UsageQuery{
		UserId:   "user1",
		Type:     models.TransactionTypeDeposit,
		Statuses: models.UsageStatuses,
		Since:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "220.15", monthly.String())

	other, err := service.SumAmounts(ctx, store.UsageQuery{
		UserId:   "user2",
		Type:     models.TransactionTypeDeposit,
		Statuses: models.UsageStatuses,
		Since:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, other.IsZero())
}

func TestListOpenBeforeAndCount(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	cutoff := now.Add(-30 * time.Minute)

	old := newDeposit("user1", "1")
	old.CreatedAt = cutoff.Add(-time.Second)
	oldTx, err := service.CreateTransaction(ctx, old)
	require.NoError(t, err)

	boundary := newDeposit("user1", "2")
	boundary.CreatedAt = cutoff
	_, err = service.CreateTransaction(ctx, boundary)
	require.NoError(t, err)

	fresh := newDeposit("user1", "3")
	fresh.CreatedAt = now
	_, err = service.CreateTransaction(ctx, fresh)
	require.NoError(t, err)

	open, err := service.ListOpenBefore(ctx, cutoff, 100)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, oldTx.Id, open[0].Id)

	ready, err := service.CountByStatus(ctx, models.OpenStatuses, &cutoff, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ready)

	recent, err := service.CountByStatus(ctx, models.OpenStatuses, nil, &cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, recent)
}

func TestListOpenWithExternalId_LeastRecentlyPolledFirst(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

	ids := make([]string, 3)
	for i := range ids {
		tx := newDeposit("user1", "10")
		tx.CreatedAt = now.Add(time.Duration(i-10) * time.Minute)
		created, err := service.CreateTransaction(ctx, tx)
		require.NoError(t, err)
		_, err = service.AttachExternalId(ctx, created.Id, "ext-"+created.Id, models.TransactionMetadata{})
		require.NoError(t, err)
		ids[i] = created.Id
	}

	// polling leaves status and updated_at alone but moves the row to the back
	before, err := service.GetTransaction(ctx, ids[0])
	require.NoError(t, err)
	require.NoError(t, service.MarkPolled(ctx, ids[0], now))
	after, err := service.GetTransaction(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, models.StatusProcessing, after.Status)

	open, err := service.ListOpenWithExternalId(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, ids[1], open[0].Id)
	assert.Equal(t, ids[2], open[1].Id)

	require.NoError(t, service.MarkPolled(ctx, ids[1], now.Add(time.Second)))
	require.NoError(t, service.MarkPolled(ctx, ids[2], now.Add(2*time.Second)))
	open, err = service.ListOpenWithExternalId(ctx, now, 3)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, []string{ids[0], ids[1], ids[2]}, []string{open[0].Id, open[1].Id, open[2].Id})

	assert.ErrorIs(t, service.MarkPolled(ctx, "missing", now), store.ErrNotFound)
}
