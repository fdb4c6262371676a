package database

import (
	"context"
	"errors"
	"testing"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile(perTx, daily, monthly int64) models.LimitProfile {
	l := models.TypeLimits{
		PerTransaction: decimal.NewFromInt(perTx),
		Daily:          decimal.NewFromInt(daily),
		Monthly:        decimal.NewFromInt(monthly),
	}
	return models.LimitProfile{Deposit: l, Withdraw: l, Transfer: l}
}

func TestCreateUser_ProvisionsLimitsAndReputation(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	user, err := service.CreateUser(ctx, store.CreateUserParams{
		UserId: "u1",
		Name:   "Ana",
		Email:  "ana@example.com",
		Limits: testProfile(5000, 5000, 50000),
		Reputation: models.UserReputation{
			ReputationScore:   decimal.NewFromInt(50),
			CurrentDailyLimit: decimal.NewFromInt(500),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)

	limits, err := service.GetOrCreateUserLimit(ctx, "u1", testProfile(1, 1, 1))
	require.NoError(t, err)
	assert.True(t, limits.IsFirstDay)
	assert.Equal(t, "5000", limits.Limits.Deposit.Daily.String())

	rep, err := service.GetOrCreateReputation(ctx, "u1", models.UserReputation{})
	require.NoError(t, err)
	assert.Equal(t, "500", rep.CurrentDailyLimit.String())

	_, err = service.CreateUser(ctx, store.CreateUserParams{UserId: "u2", Name: "Ana", Email: "ana@example.com"})
	assert.ErrorIs(t, err, store.ErrDuplicateUser)

	_, err = service.GetUserById(ctx, "u2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	users, err := service.GetUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUserLimits_SaveAndCompleteFirstDay(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	limits, err := service.GetOrCreateUserLimit(ctx, "u1", testProfile(5000, 5000, 50000))
	require.NoError(t, err)
	assert.True(t, limits.IsFirstDay)

	limits.IsHighRiskUser = true
	require.NoError(t, service.SaveUserLimit(ctx, limits))

	lifted, err := service.CompleteFirstDay(ctx, "u1", testProfile(10000, 10000, 100000))
	require.NoError(t, err)
	assert.True(t, lifted)

	again, err := service.CompleteFirstDay(ctx, "u1", testProfile(1, 1, 1))
	require.NoError(t, err)
	assert.False(t, again)

	stored, err := service.GetOrCreateUserLimit(ctx, "u1", testProfile(1, 1, 1))
	require.NoError(t, err)
	assert.False(t, stored.IsFirstDay)
	assert.True(t, stored.IsHighRiskUser)
	assert.Equal(t, "10000", stored.Limits.Deposit.Daily.String())

	err = service.SaveUserLimit(ctx, &models.UserLimit{UserId: "nobody"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateReputation_AbortsOnCallbackError(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	initial := models.UserReputation{ReputationScore: decimal.NewFromInt(50)}

	rep, err := service.UpdateReputation(ctx, "u1", initial, func(r *models.UserReputation) error {
		r.TotalApprovedCount++
		r.TotalApprovedVolume = r.TotalApprovedVolume.Add(decimal.NewFromInt(100))
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, rep.TotalApprovedCount)

	boom := errors.New("boom")
	_, err = service.UpdateReputation(ctx, "u1", initial, func(r *models.UserReputation) error {
		r.TotalApprovedCount = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := service.GetOrCreateReputation(ctx, "u1", initial)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.TotalApprovedCount)
	assert.Equal(t, "100", stored.TotalApprovedVolume.String())
}

func TestSettings_VersionBumpsOnWrite(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	_, err := service.GetSetting(ctx, "provider.api_token")
	assert.ErrorIs(t, err, store.ErrNotFound)

	first, err := service.PutSetting(ctx, "provider.api_token", "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Version)

	second, err := service.PutSetting(ctx, "provider.api_token", "b")
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.Version)
	assert.Equal(t, "b", second.Value)

	all, err := service.ListSettings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestQuotaCounter_StopsAtLimit(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	counter := service.QuotaCounter()

	for i := 0; i < 3; i++ {
		ok, err := counter.Take(ctx, "deposit", "2025-03-10", 3)
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i)
	}

	ok, err := counter.Take(ctx, "deposit", "2025-03-10", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	used, err := counter.Used(ctx, "deposit", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, 3, used)

	// a new day starts a fresh counter
	ok, err = counter.Take(ctx, "deposit", "2025-03-11", 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordSettlement_Idempotent(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	tx := newDeposit("u1", "42.50")
	tx.Status = models.StatusCompleted
	created, err := service.CreateTransaction(ctx, tx)
	require.NoError(t, err)

	require.NoError(t, service.RecordSettlement(ctx, created))
	require.NoError(t, service.RecordSettlement(ctx, created))

	entries, err := service.GetJournalEntries(ctx, created.Id)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	debits, credits := decimal.Zero, decimal.Zero
	for _, e := range entries {
		debits = debits.Add(e.DebitAmount)
		credits = credits.Add(e.CreditAmount)
	}
	assert.True(t, debits.Equal(credits))
	assert.Equal(t, "42.5", debits.String())

	pending := newDeposit("u1", "1")
	open, err := service.CreateTransaction(ctx, pending)
	require.NoError(t, err)
	assert.Error(t, service.RecordSettlement(ctx, open))
}
