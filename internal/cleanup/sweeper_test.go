package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"pix-settlement-bridge/internal/database"
	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"
	"pix-settlement-bridge/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timeout = 30 * time.Minute

type fixture struct {
	db      *database.Service
	clock   *testutil.Clock
	sweeper *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDatabase(t)
	clock := testutil.NewClock(time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	return &fixture{
		db:      db,
		clock:   clock,
		sweeper: NewSweeper(db, timeout).WithClock(clock.Now),
	}
}

func (f *fixture) open(t *testing.T, age time.Duration, status models.TransactionStatus) *models.Transaction {
	t.Helper()
	tx, err := f.db.CreateTransaction(context.Background(), &models.Transaction{
		UserId:    "u1",
		Type:      models.TransactionTypeDeposit,
		Status:    status,
		Amount:    testutil.D("10"),
		CreatedAt: f.clock.Now().Add(-age),
	})
	require.NoError(t, err)
	return tx
}

func (f *fixture) status(t *testing.T, id string) models.TransactionStatus {
	t.Helper()
	tx, err := f.db.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return tx.Status
}

func TestSweep_ExpiresOnlyPastTimeout(t *testing.T) {
	f := newFixture(t)
	old := f.open(t, timeout+time.Second, models.StatusPending)
	oldProcessing := f.open(t, 2*timeout, models.StatusProcessing)
	young := f.open(t, timeout-time.Second, models.StatusPending)
	settled := f.open(t, 2*timeout, models.StatusCompleted)

	result, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Examined)
	assert.Equal(t, 2, result.Expired)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, f.clock.Now().Add(-timeout), result.Cutoff)

	assert.Equal(t, models.StatusExpired, f.status(t, old.Id))
	assert.Equal(t, models.StatusExpired, f.status(t, oldProcessing.Id))
	assert.Equal(t, models.StatusPending, f.status(t, young.Id))
	assert.Equal(t, models.StatusCompleted, f.status(t, settled.Id))

	expired, err := f.db.GetTransaction(context.Background(), old.Id)
	require.NoError(t, err)
	assert.NotNil(t, expired.ProcessedAt)
	assert.Contains(t, expired.ErrorMessage, "expired after 30m0s")
}

func TestSweep_IsRepeatable(t *testing.T) {
	f := newFixture(t)
	f.open(t, time.Hour, models.StatusPending)

	_, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)

	result, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Examined)
	assert.Equal(t, 0, result.Expired)
}

func TestSweep_PagesThroughBacklog(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 7; i++ {
		f.open(t, time.Hour+time.Duration(i)*time.Second, models.StatusPending)
	}

	result, err := f.sweeper.WithBatchSize(3).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, result.Expired)
}

// racingStore settles the first row just before the sweeper tries to expire it
type racingStore struct {
	*database.Service
	raced bool
}

func (r *racingStore) ApplyTransition(ctx context.Context, params store.TransitionParams) (*models.Transaction, error) {
	if !r.raced {
		r.raced = true
		_, err := r.Service.ApplyTransition(ctx, store.TransitionParams{
			TransactionId: params.TransactionId,
			From:          params.From,
			To:            models.StatusCompleted,
		})
		if err != nil {
			return nil, err
		}
	}
	return r.Service.ApplyTransition(ctx, params)
}

func TestSweep_LeavesConcurrentlySettledRowAlone(t *testing.T) {
	f := newFixture(t)
	tx := f.open(t, time.Hour, models.StatusProcessing)

	sweeper := NewSweeper(&racingStore{Service: f.db}, timeout).WithClock(f.clock.Now)
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Expired)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, models.StatusCompleted, f.status(t, tx.Id))
}

type brokenStore struct {
	*database.Service
}

func (b *brokenStore) ApplyTransition(context.Context, store.TransitionParams) (*models.Transaction, error) {
	return nil, errors.New("disk full")
}

func TestSweep_CountsRowFailures(t *testing.T) {
	f := newFixture(t)
	f.open(t, time.Hour, models.StatusPending)
	f.open(t, 2*time.Hour, models.StatusPending)

	sweeper := NewSweeper(&brokenStore{Service: f.db}, timeout).WithClock(f.clock.Now)
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Examined)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, result.Expired)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.open(t, timeout+time.Second, models.StatusPending)
	f.open(t, 2*timeout, models.StatusProcessing)
	f.open(t, timeout-time.Second, models.StatusPending)
	f.open(t, time.Minute, models.StatusProcessing)
	f.open(t, 2*timeout, models.StatusExpired)
	f.open(t, 2*timeout, models.StatusCompleted)

	stats, err := f.sweeper.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalPending)
	assert.Equal(t, 2, stats.ReadyToExpire)
	assert.Equal(t, 2, stats.RecentlyPending)
	assert.Equal(t, 1, stats.AlreadyExpired)

	_, err = f.sweeper.Sweep(context.Background())
	require.NoError(t, err)

	stats, err = f.sweeper.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPending)
	assert.Equal(t, 0, stats.ReadyToExpire)
	assert.Equal(t, 3, stats.AlreadyExpired)
}
