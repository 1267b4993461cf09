package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxly/internal/domain"
	"taxly/internal/models"
	"taxly/internal/repository"
	"taxly/internal/testutil"

	"gorm.io/gorm"
)

func newSubscriptionService(db *gorm.DB) *SubscriptionService {
	return NewSubscriptionService(
		repository.NewSubscriptionRepository(db),
		repository.NewUserRepository(db),
		newCreditService(db),
	)
}

func paidFixture(t *testing.T, db *gorm.DB, userID uint, amount int) *models.Payment {
	t.Helper()
	return testutil.NewPayment(t, db, userID,
		testutil.WithAmount(amount),
		testutil.WithPaymentStatus(domain.PaymentPaid))
}

func TestSubscriptionService_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db)
	key := "bk-1"

	sub, err := svc.Create(user.ID, "basic", &key, nil)
	require.NoError(t, err)
	assert.Equal(t, "basic", sub.Tier)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	assert.Equal(t, 100, sub.MonthlyCreditQuota)
	require.NotNil(t, sub.NextBillingDate)
	assert.Equal(t, sub.BillingCycleEnd, *sub.NextBillingDate)

	// quota granted immediately, expiring at cycle end
	assert.Equal(t, 100, userBalance(t, db, user.ID))
	var grant models.CreditTransaction
	require.NoError(t, db.Where("user_id = ? AND type = ?", user.ID, domain.TransactionSubscriptionGrant).First(&grant).Error)
	require.NotNil(t, grant.ExpiresAt)
	assert.WithinDuration(t, sub.BillingCycleEnd, *grant.ExpiresAt, time.Second)

	var u models.User
	require.NoError(t, db.First(&u, user.ID).Error)
	assert.Equal(t, "basic", u.SubscriptionTier)
}

func TestSubscriptionService_Create_InvalidTier(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db)

	_, err := svc.Create(user.ID, "platinum", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidTier)

	_, err = svc.Create(user.ID, "enterprise", nil, nil)
	assert.ErrorIs(t, err, ErrCustomTier)
}

func TestSubscriptionService_Lifecycle_CancelThenReactivate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db)

	_, err := svc.Create(user.ID, "basic", nil, nil)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(user.ID, "too expensive")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCancelled, cancelled.Status)
	assert.Nil(t, cancelled.NextBillingDate)

	// tier benefits survive until cycle end
	var u models.User
	require.NoError(t, db.First(&u, user.ID).Error)
	assert.Equal(t, "basic", u.SubscriptionTier)

	reactivated, err := svc.Reactivate(user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, reactivated.Status)
	require.NotNil(t, reactivated.NextBillingDate)
	assert.WithinDuration(t, reactivated.BillingCycleEnd, *reactivated.NextBillingDate, time.Second)
}

func TestSubscriptionService_Reactivate_AfterCycleEndFails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db)
	testutil.NewSubscription(t, db, user.ID,
		testutil.WithStatus(domain.SubscriptionCancelled),
		testutil.WithCycle(time.Now().AddDate(0, -1, 0), time.Now().Add(-time.Hour)))

	_, err := svc.Reactivate(user.ID)
	assert.ErrorIs(t, err, ErrCannotReactivate)
}

func TestSubscriptionService_Cancel_RequiresActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db)
	testutil.NewSubscription(t, db, user.ID, testutil.WithStatus(domain.SubscriptionSuspended))

	_, err := svc.Cancel(user.ID, "")
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestSubscriptionService_Downgrade_OnlySetsPendingTier(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db, testutil.WithTier("pro"))
	testutil.NewSubscription(t, db, user.ID, testutil.WithSubTier("pro"))

	sub, err := svc.ChangeTier(user.ID, "basic", nil)
	require.NoError(t, err)
	require.NotNil(t, sub.PendingTier)
	assert.Equal(t, "basic", *sub.PendingTier)
	assert.Equal(t, "pro", sub.Tier)
	assert.Equal(t, 500, sub.MonthlyCreditQuota)
	assert.Equal(t, 99000, sub.Price)
	assert.EqualValues(t, 0, ledgerCount(t, db, user.ID))
}

func TestSubscriptionService_DowngradeCancellation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db, testutil.WithTier("pro"))
	testutil.NewSubscription(t, db, user.ID,
		testutil.WithSubTier("pro"),
		testutil.WithPendingTier("basic"))

	sub, err := svc.ChangeTier(user.ID, "pro", nil)
	require.NoError(t, err)
	assert.Nil(t, sub.PendingTier)
	assert.Equal(t, "pro", sub.Tier)
	assert.EqualValues(t, 0, ledgerCount(t, db, user.ID))
}

func TestSubscriptionService_ChangeTier_SamePriceRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db, testutil.WithTier("basic"))
	testutil.NewSubscription(t, db, user.ID, testutil.WithSubTier("basic"))

	_, err := svc.ChangeTier(user.ID, "basic", nil)
	assert.ErrorIs(t, err, ErrInvalidTierChange)
}

func TestSubscriptionService_Upgrade_RequiresPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db, testutil.WithTier("basic"))
	testutil.NewSubscription(t, db, user.ID, testutil.WithSubTier("basic"))

	_, err := svc.ChangeTier(user.ID, "pro", nil)
	assert.ErrorIs(t, err, ErrPaymentRequired)
}

func TestSubscriptionService_Upgrade_AppliesImmediately(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db, testutil.WithTier("basic"))
	now := time.Now()
	start := now.AddDate(0, 0, -15)
	end := now.AddDate(0, 0, 15)
	fixture := testutil.NewSubscription(t, db, user.ID,
		testutil.WithSubTier("basic"),
		testutil.WithCycle(start, end))
	payment := paidFixture(t, db, user.ID, 35000)

	sub, err := svc.ChangeTier(user.ID, "pro", payment)
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.Tier)
	assert.Equal(t, 500, sub.MonthlyCreditQuota)
	assert.Equal(t, 99000, sub.Price)
	assert.Nil(t, sub.PendingTier)

	// half the cycle remains: floor(500 * 15/30) prorated credits,
	// expiring at the unchanged cycle end
	var grant models.CreditTransaction
	require.NoError(t, db.Where("user_id = ? AND type = ?", user.ID, domain.TransactionSubscriptionGrant).First(&grant).Error)
	assert.Equal(t, 250, grant.Amount)
	require.NotNil(t, grant.ExpiresAt)
	assert.WithinDuration(t, fixture.BillingCycleEnd, *grant.ExpiresAt, time.Second)

	var u models.User
	require.NoError(t, db.First(&u, user.ID).Error)
	assert.Equal(t, "pro", u.SubscriptionTier)
}

func TestProrate_HalfCycleUpgrade(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)
	now := start.AddDate(0, 0, 15)

	remaining, total, charge, credits := prorate(start, end, now, 0, 10000, 300)
	assert.Equal(t, 15, remaining)
	assert.Equal(t, 30, total)
	assert.Equal(t, 5000, charge)
	assert.Equal(t, 150, credits)
}

func TestProrate_ChargeRoundsUpCreditsRoundDown(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)
	now := end.AddDate(0, 0, -7)

	remaining, total, charge, credits := prorate(start, end, now, 29000, 99000, 500)
	assert.Equal(t, 7, remaining)
	assert.Equal(t, 30, total)
	// 70000 * 7/30 = 16333.33 rounds up, 500 * 7/30 = 116.67 rounds down
	assert.Equal(t, 16334, charge)
	assert.Equal(t, 116, credits)
}

func TestSubscriptionService_Quote(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db, testutil.WithTier("basic"))
	now := time.Now()
	testutil.NewSubscription(t, db, user.ID,
		testutil.WithSubTier("basic"),
		testutil.WithCycle(now.AddDate(0, 0, -15), now.AddDate(0, 0, 15)))

	quote, err := svc.Quote(user.ID, "pro")
	require.NoError(t, err)
	assert.True(t, quote.IsUpgrade)
	assert.Equal(t, 15, quote.RemainingDays)
	assert.Equal(t, 30, quote.TotalDays)
	assert.Equal(t, 35000, quote.AdditionalCharge)
	assert.Equal(t, 250, quote.ProratedCredits)
}

func TestSubscriptionService_Renew_PromotesPendingDowngrade(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db, testutil.WithTier("pro"))
	sub := testutil.NewSubscription(t, db, user.ID,
		testutil.WithSubTier("pro"),
		testutil.WithPendingTier("basic"),
		testutil.WithCycle(time.Now().AddDate(0, -1, 0), time.Now().Add(-time.Hour)))

	require.NoError(t, svc.Renew(sub))

	assert.Equal(t, "basic", sub.Tier)
	assert.Nil(t, sub.PendingTier)
	assert.Equal(t, 100, sub.MonthlyCreditQuota)
	assert.Equal(t, 29000, sub.Price)
	assert.True(t, sub.BillingCycleEnd.After(time.Now()))

	// the new cycle grants the downgraded tier's quota
	assert.Equal(t, 100, userBalance(t, db, user.ID))

	var u models.User
	require.NoError(t, db.First(&u, user.ID).Error)
	assert.Equal(t, "basic", u.SubscriptionTier)
}

func TestSubscriptionService_Renew_RollsCycleForward(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db, testutil.WithTier("basic"))
	sub := testutil.NewSubscription(t, db, user.ID,
		testutil.WithSubTier("basic"),
		testutil.WithCycle(time.Now().AddDate(0, -1, 0), time.Now().Add(-time.Hour)))

	require.NoError(t, svc.Renew(sub))
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	require.NotNil(t, sub.NextBillingDate)
	assert.WithinDuration(t, time.Now().AddDate(0, 1, 0), *sub.NextBillingDate, time.Minute)
	assert.Equal(t, 100, userBalance(t, db, user.ID))
}

func TestSubscriptionService_Expire_ResetsUserToFree(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db, testutil.WithTier("basic"))
	sub := testutil.NewSubscription(t, db, user.ID,
		testutil.WithSubTier("basic"),
		testutil.WithStatus(domain.SubscriptionCancelled))

	require.NoError(t, svc.Expire(sub))
	assert.Equal(t, domain.SubscriptionExpired, sub.Status)

	var u models.User
	require.NoError(t, db.First(&u, user.ID).Error)
	assert.Equal(t, domain.TierFree, u.SubscriptionTier)
}

func TestSubscriptionService_Suspend(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newSubscriptionService(db)
	user := testutil.NewUser(t, db)
	sub := testutil.NewSubscription(t, db, user.ID)

	require.NoError(t, svc.Suspend(sub, "card declined"))
	assert.Equal(t, domain.SubscriptionSuspended, sub.Status)
	assert.Equal(t, "card declined", sub.StatusReason)
	assert.Nil(t, sub.NextBillingDate)
}
