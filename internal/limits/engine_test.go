package limits

import (
	"context"
	"sync"
	"testing"
	"time"

	"pix-settlement-bridge/internal/database"
	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var d = testutil.D

func caps(perTx, daily, monthly string) models.TypeLimits {
	return models.TypeLimits{PerTransaction: d(perTx), Daily: d(daily), Monthly: d(monthly)}
}

func testProfiles() models.LimitsDefinition {
	outbound := caps("1000", "1000", "10000")
	return models.LimitsDefinition{
		FirstDay: models.LimitProfile{Deposit: caps("5000", "5000", "50000"), Withdraw: outbound, Transfer: outbound},
		Standard: models.LimitProfile{Deposit: caps("5000", "10000", "100000"), Withdraw: outbound, Transfer: outbound},
		Verified: models.LimitProfile{Deposit: caps("50000", "50000", "500000"), Withdraw: outbound, Transfer: outbound},
	}
}

type fixture struct {
	db     *database.Service
	engine *Engine
	clock  *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewClock(time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	db := testutil.NewDatabase(t)
	engine := NewEngine(db, testProfiles(), models.LimitsConfig{
		FirstDayDepositCap: d("500"),
		HighRiskFactor:     d("0.5"),
		Location:           time.UTC,
	}).WithClock(clock.Now)
	return &fixture{db: db, engine: engine, clock: clock}
}

func (f *fixture) settled(t *testing.T, userId string, txType models.TransactionType, amount string, status models.TransactionStatus, at time.Time) {
	t.Helper()
	_, err := f.db.CreateTransaction(context.Background(), &models.Transaction{
		UserId:    userId,
		Type:      txType,
		Status:    status,
		Amount:    d(amount),
		CreatedAt: at,
	})
	require.NoError(t, err)
}

func (f *fixture) standardUser(t *testing.T, userId string) {
	t.Helper()
	limit, err := f.db.GetOrCreateUserLimit(context.Background(), userId, testProfiles().Standard)
	require.NoError(t, err)
	limit.IsFirstDay = false
	require.NoError(t, f.db.SaveUserLimit(context.Background(), limit))
}

func TestValidate_AllowedWithinEveryCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.standardUser(t, "u1")
	f.settled(t, "u1", models.TransactionTypeDeposit, "3000", models.StatusCompleted, f.clock.Now().Add(-time.Hour))

	// exactly reaching the daily cap is allowed
	result, err := f.engine.Validate(ctx, "u1", models.TransactionTypeDeposit, d("5000"))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "3000", result.CurrentUsage.Daily.String())
	assert.Equal(t, "10000", result.Limits.Daily.String())
}

func TestValidate_ChecksInOrder(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		prior  string
		reason string
	}{
		{"per transaction", "5000.01", "0", "per-transaction"},
		{"daily", "2000", "9000", "daily limit"},
		{"monthly", "2000", "0", "monthly limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.standardUser(t, "u1")

			now := f.clock.Now()
			if tt.prior != "0" {
				f.settled(t, "u1", models.TransactionTypeDeposit, tt.prior, models.StatusProcessing, now.Add(-time.Hour))
			}
			if tt.name == "monthly" {
				// earlier this month, so only the monthly window sees it
				f.settled(t, "u1", models.TransactionTypeDeposit, "99000",
					models.StatusCompleted, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
			}

			result, err := f.engine.Validate(ctx, "u1", models.TransactionTypeDeposit, d(tt.amount))
			require.NoError(t, err)
			assert.False(t, result.Allowed)
			assert.Contains(t, result.Reason, tt.reason)
			require.NotNil(t, result.CurrentUsage)
			require.NotNil(t, result.Limits)
		})
	}
}

func TestValidate_IgnoresFailedAndOtherWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.standardUser(t, "u1")
	now := f.clock.Now()

	f.settled(t, "u1", models.TransactionTypeDeposit, "9000", models.StatusFailed, now.Add(-time.Hour))
	f.settled(t, "u1", models.TransactionTypeDeposit, "9000", models.StatusExpired, now.Add(-time.Hour))
	f.settled(t, "u1", models.TransactionTypeDeposit, "9000", models.StatusPending, now.Add(-time.Hour))
	f.settled(t, "u1", models.TransactionTypeDeposit, "9000", models.StatusCompleted, now.Add(-24*time.Hour))
	f.settled(t, "u1", models.TransactionTypeWithdraw, "900", models.StatusCompleted, now.Add(-time.Hour))

	result, err := f.engine.Validate(ctx, "u1", models.TransactionTypeDeposit, d("5000"))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.True(t, result.CurrentUsage.Daily.IsZero())
	assert.Equal(t, "9000", result.CurrentUsage.Monthly.String())
}

func TestValidate_FirstDayCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	denied, err := f.engine.Validate(ctx, "fresh", models.TransactionTypeDeposit, d("501"))
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Contains(t, denied.Reason, "500")
	assert.Equal(t, "5000", denied.Limits.Daily.String())

	allowed, err := f.engine.Validate(ctx, "fresh", models.TransactionTypeDeposit, d("500"))
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)

	// the first-day ceiling only applies to deposits
	withdraw, err := f.engine.Validate(ctx, "fresh", models.TransactionTypeWithdraw, d("900"))
	require.NoError(t, err)
	assert.True(t, withdraw.Allowed)
}

func TestValidate_HighRiskReportsHalvedCaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.standardUser(t, "risky")

	highRisk := true
	_, err := f.engine.AdjustLimits(ctx, "risky", models.LimitOverrides{IsHighRiskUser: &highRisk})
	require.NoError(t, err)

	// allowed nominally (daily 10000) but not under the halved daily cap of 5000
	f.settled(t, "risky", models.TransactionTypeDeposit, "4000", models.StatusCompleted, f.clock.Now().Add(-time.Hour))

	result, err := f.engine.Validate(ctx, "risky", models.TransactionTypeDeposit, d("1500"))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "high-risk")
	assert.Equal(t, "5000", result.Limits.Daily.String())
	assert.Equal(t, "2500", result.Limits.PerTransaction.String())
	assert.Equal(t, "50000", result.Limits.Monthly.String())

	ok, err := f.engine.Validate(ctx, "risky", models.TransactionTypeDeposit, d("1000"))
	require.NoError(t, err)
	assert.True(t, ok.Allowed)
	assert.Equal(t, "5000", ok.Limits.Daily.String())
}

func TestValidate_RejectsMalformedInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Validate(ctx, "u1", models.TransactionTypeDeposit, d("0"))
	assert.True(t, models.IsValidationError(err))

	_, err = f.engine.Validate(ctx, "u1", models.TransactionType("REFUND"), d("10"))
	assert.True(t, models.IsValidationError(err))

	_, err = f.engine.Validate(ctx, "", models.TransactionTypeDeposit, d("10"))
	assert.True(t, models.IsValidationError(err))
}

func TestValidateOrError_CarriesPayload(t *testing.T) {
	f := newFixture(t)

	err := f.engine.ValidateOrError(context.Background(), "fresh", models.TransactionTypeDeposit, d("600"))
	require.Error(t, err)
	require.True(t, models.IsLimitExceededError(err))

	var le *models.LimitExceededError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "600", le.Amount.String())
	assert.Equal(t, "5000", le.Limits.Daily.String())
	assert.True(t, le.CurrentUsage.Daily.IsZero())

	assert.NoError(t, f.engine.ValidateOrError(context.Background(), "fresh", models.TransactionTypeDeposit, d("450")))
}

func TestOnSettlementSuccess_LiftsFirstDayOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Validate(ctx, "u1", models.TransactionTypeDeposit, d("100"))
	require.NoError(t, err)

	require.NoError(t, f.engine.OnSettlementSuccess(ctx, "u1", models.TransactionTypeWithdraw))
	summary, err := f.engine.GetLimitsSummary(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, summary.IsFirstDay)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.OnSettlementSuccess(ctx, "u1", models.TransactionTypeDeposit))
		}()
	}
	wg.Wait()

	summary, err = f.engine.GetLimitsSummary(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, summary.IsFirstDay)
	assert.Equal(t, "10000", summary.Limits.Deposit.Daily.String())
}

func TestGetLimitsSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	f.settled(t, "u1", models.TransactionTypeDeposit, "120.50", models.StatusCompleted, now.Add(-time.Hour))
	f.settled(t, "u1", models.TransactionTypeTransfer, "30", models.StatusProcessing, now.Add(-48*time.Hour))

	summary, err := f.engine.GetLimitsSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "120.5", summary.DailyUsage[models.TransactionTypeDeposit].String())
	assert.True(t, summary.DailyUsage[models.TransactionTypeTransfer].IsZero())
	assert.Equal(t, "30", summary.MonthlyUsage[models.TransactionTypeTransfer].String())
	assert.True(t, summary.MonthlyUsage[models.TransactionTypeWithdraw].IsZero())
}

func TestRaiseDailyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raised, err := f.engine.RaiseDailyLimit(ctx, "u1", models.TransactionTypeDeposit, d("20000"))
	require.NoError(t, err)
	assert.False(t, raised, "first-day users keep first-day caps")

	f.standardUser(t, "u1")
	raised, err = f.engine.RaiseDailyLimit(ctx, "u1", models.TransactionTypeDeposit, d("2500"))
	require.NoError(t, err)
	assert.False(t, raised, "never lowers a cap")

	raised, err = f.engine.RaiseDailyLimit(ctx, "u1", models.TransactionTypeDeposit, d("200000"))
	require.NoError(t, err)
	assert.True(t, raised)

	summary, err := f.engine.GetLimitsSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "200000", summary.Limits.Deposit.Daily.String())
	assert.Equal(t, "200000", summary.Limits.Deposit.Monthly.String())
}

func TestAdminOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	verified, err := f.engine.ApplyVerifiedLimits(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, verified.IsKycVerified)
	assert.False(t, verified.IsFirstDay)
	assert.Equal(t, "50000", verified.Limits.Deposit.Daily.String())

	reset, err := f.engine.ResetFirstDay(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, reset.IsFirstDay)
	assert.Equal(t, "5000", reset.Limits.Deposit.Daily.String())

	daily := d("7000")
	adjusted, err := f.engine.AdjustLimits(ctx, "u1", models.LimitOverrides{
		Deposit: &models.TypeLimitOverrides{Daily: &daily},
	})
	require.NoError(t, err)
	assert.Equal(t, "7000", adjusted.Limits.Deposit.Daily.String())
	assert.Equal(t, "5000", adjusted.Limits.Deposit.PerTransaction.String())

	tooHigh := d("60000")
	_, err = f.engine.AdjustLimits(ctx, "u1", models.LimitOverrides{
		Deposit: &models.TypeLimitOverrides{Daily: &tooHigh},
	})
	assert.True(t, models.IsValidationError(err))

	negative := decimal.NewFromInt(-1)
	_, err = f.engine.AdjustLimits(ctx, "u1", models.LimitOverrides{
		Withdraw: &models.TypeLimitOverrides{PerTransaction: &negative},
	})
	assert.True(t, models.IsValidationError(err))
}

func TestUserLocker_SerializesPerUser(t *testing.T) {
	locker := NewUserLocker()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("u1")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, locker.size())

	// other users are not blocked
	unlockA := locker.Lock("a")
	unlockB := locker.Lock("b")
	unlockB()
	unlockA()
}

func (l *UserLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
