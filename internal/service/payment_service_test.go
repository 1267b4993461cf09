package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxly/config"
	"taxly/internal/domain"
	"taxly/internal/models"
	"taxly/internal/repository"
	"taxly/internal/testutil"
	"taxly/pkg/nicepay"

	"gorm.io/gorm"
)

func newPaymentService(db *gorm.DB, gateway nicepay.Client) *PaymentService {
	cfg := &config.Config{}
	cfg.URLs.BackendURL = "http://localhost:8080"
	creditSvc := newCreditService(db)
	subSvc := newSubscriptionService(db)
	return NewPaymentService(cfg, gateway,
		repository.NewPaymentRepository(db),
		repository.NewSubscriptionRepository(db),
		creditSvc, subSvc)
}

func TestPaymentService_PrepareCreditPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stub := nicepay.NewStub()
	svc := newPaymentService(db, stub)
	user := testutil.NewUser(t, db)

	payment, result, err := svc.PrepareCreditPayment(context.Background(), user.ID, "pack_100")
	require.NoError(t, err)
	assert.Equal(t, 29000, payment.Amount)
	assert.Equal(t, domain.PaymentPending, payment.Status)
	assert.Contains(t, payment.Metadata, `"credits":110`)
	assert.NotEmpty(t, result.ClientToken)
	assert.Equal(t, []string{payment.OrderID}, stub.PreparedOrders)
}

func TestPaymentService_PrepareCreditPayment_UnknownPack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db)

	_, _, err := svc.PrepareCreditPayment(context.Background(), user.ID, "pack_9000")
	assert.ErrorIs(t, err, ErrInvalidCreditPack)
}

func TestPaymentService_PrepareCreditPayment_GatewayFailureMarksFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stub := nicepay.NewStub()
	stub.PrepareErr = &nicepay.APIError{Code: "S500", Message: "gateway down"}
	svc := newPaymentService(db, stub)
	user := testutil.NewUser(t, db)

	_, _, err := svc.PrepareCreditPayment(context.Background(), user.ID, "pack_50")
	require.Error(t, err)

	var p models.Payment
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&p).Error)
	assert.Equal(t, domain.PaymentFailed, p.Status)
	assert.Equal(t, "S500", p.FailCode)
}

func TestPaymentService_Approve_GrantsCreditsOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db)

	pending, _, err := svc.PrepareCreditPayment(context.Background(), user.ID, "pack_50")
	require.NoError(t, err)

	paid, err := svc.ApprovePayment(context.Background(), user.ID, pending.OrderID, "tid-1", pending.Amount)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, paid.Status)
	assert.Equal(t, "tid-1", paid.TID)
	assert.Equal(t, 50, userBalance(t, db, user.ID))

	// duplicate confirmation: no second grant
	_, err = svc.ApprovePayment(context.Background(), user.ID, pending.OrderID, "tid-1", pending.Amount)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, 50, userBalance(t, db, user.ID))
	assert.EqualValues(t, 1, ledgerCount(t, db, user.ID))
}

func TestPaymentService_Approve_OwnershipEnforced(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	owner := testutil.NewUser(t, db)
	other := testutil.NewUser(t, db)
	pending := testutil.NewPayment(t, db, owner.ID)

	_, err := svc.ApprovePayment(context.Background(), other.ID, pending.OrderID, "tid-1", pending.Amount)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPaymentService_Approve_AmountMismatchFailsPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db)
	pending := testutil.NewPayment(t, db, user.ID, testutil.WithAmount(15000))

	_, err := svc.ApprovePayment(context.Background(), user.ID, pending.OrderID, "tid-1", 14000)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	var p models.Payment
	require.NoError(t, db.First(&p, pending.ID).Error)
	assert.Equal(t, domain.PaymentFailed, p.Status)
	assert.Equal(t, "AMOUNT_MISMATCH", p.FailCode)
	assert.Equal(t, 0, userBalance(t, db, user.ID))
}

func TestPaymentService_Approve_GatewayFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stub := nicepay.NewStub()
	stub.ApproveErr = &nicepay.APIError{Code: "P400", Message: "card declined"}
	svc := newPaymentService(db, stub)
	user := testutil.NewUser(t, db)
	pending := testutil.NewPayment(t, db, user.ID)

	_, err := svc.ApprovePayment(context.Background(), user.ID, pending.OrderID, "tid-1", pending.Amount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card declined")

	var p models.Payment
	require.NoError(t, db.First(&p, pending.ID).Error)
	assert.Equal(t, domain.PaymentFailed, p.Status)
	assert.Equal(t, "P400", p.FailCode)
}

func TestPaymentService_Approve_CreatesSubscriptionWithBillingKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db)

	pending, _, err := svc.PrepareSubscriptionPayment(context.Background(), user.ID, "basic")
	require.NoError(t, err)
	assert.Equal(t, 29000, pending.Amount)

	_, err = svc.ApprovePayment(context.Background(), user.ID, pending.OrderID, "tid-sub", pending.Amount)
	require.NoError(t, err)

	var sub models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&sub).Error)
	assert.Equal(t, "basic", sub.Tier)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	require.NotNil(t, sub.BillingKey)
	assert.Equal(t, "stub-billing-key", *sub.BillingKey)
	assert.Equal(t, 100, userBalance(t, db, user.ID))
}

func TestPaymentService_ApproveUpgrade_AppliesTierChange(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db, testutil.WithTier("basic"))
	testutil.NewSubscription(t, db, user.ID,
		testutil.WithSubTier("basic"),
		testutil.WithCycle(time.Now().AddDate(0, 0, -15), time.Now().AddDate(0, 0, 15)))

	pending, _, quote, err := svc.PrepareTierUpgradePayment(context.Background(), user.ID, "pro")
	require.NoError(t, err)
	assert.Equal(t, quote.AdditionalCharge, pending.Amount)

	_, err = svc.ApprovePayment(context.Background(), user.ID, pending.OrderID, "tid-up", pending.Amount)
	require.NoError(t, err)

	var sub models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&sub).Error)
	assert.Equal(t, "pro", sub.Tier)
	assert.Equal(t, quote.ProratedCredits, userBalance(t, db, user.ID))
}

func TestPaymentService_Webhook_RejectsSubscriptionOrders(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db)
	pending := testutil.NewPayment(t, db, user.ID,
		testutil.WithPaymentType(domain.PaymentTypeSubscription, `{"tier":"basic"}`),
		testutil.WithAmount(29000))

	_, err := svc.HandleWebhook(WebhookNotification{
		OrderID: pending.OrderID,
		TID:     "tid-vbank",
		Amount:  pending.Amount,
		Status:  "paid",
	})
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)

	var p models.Payment
	require.NoError(t, db.First(&p, pending.ID).Error)
	assert.Equal(t, domain.PaymentPending, p.Status)

	var count int64
	db.Model(&models.Subscription{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestPaymentService_Webhook_SettlesCreditOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db)
	pending := testutil.NewPayment(t, db, user.ID)

	noti := WebhookNotification{
		OrderID:   pending.OrderID,
		TID:       "tid-vbank",
		Amount:    pending.Amount,
		Status:    "paid",
		PayMethod: "vbank",
	}
	paid, err := svc.HandleWebhook(noti)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, paid.Status)
	assert.Equal(t, 50, userBalance(t, db, user.ID))

	// duplicate notification settles nothing twice
	_, err = svc.HandleWebhook(noti)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, 50, userBalance(t, db, user.ID))
}

func TestPaymentService_CancelPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db)
	paid := testutil.NewPayment(t, db, user.ID, testutil.WithPaymentStatus(domain.PaymentPaid))

	cancelled, err := svc.CancelPayment(context.Background(), user.ID, false, paid.ID, "user request")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCancelled, cancelled.Status)
}

func TestPaymentService_CancelPayment_PendingRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db)
	pending := testutil.NewPayment(t, db, user.ID)

	_, err := svc.CancelPayment(context.Background(), user.ID, false, pending.ID, "")
	assert.ErrorIs(t, err, ErrCannotCancel)
}

func TestPaymentService_RenewSubscriptions_IsolatesFailures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stub := nicepay.NewStub()
	stub.FailBillingKeys = map[string]string{"bad-key": "expired card"}
	svc := newPaymentService(db, stub)

	good := testutil.NewUser(t, db, testutil.WithTier("basic"))
	bad := testutil.NewUser(t, db, testutil.WithTier("basic"))
	pastCycle := testutil.WithCycle(time.Now().AddDate(0, -1, 0), time.Now().Add(-time.Hour))
	goodSub := testutil.NewSubscription(t, db, good.ID,
		testutil.WithSubTier("basic"), pastCycle, testutil.WithBillingKey("good-key"))
	badSub := testutil.NewSubscription(t, db, bad.ID,
		testutil.WithSubTier("basic"), pastCycle, testutil.WithBillingKey("bad-key"))

	result, err := svc.RenewSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)

	var renewed models.Subscription
	require.NoError(t, db.First(&renewed, goodSub.ID).Error)
	assert.Equal(t, domain.SubscriptionActive, renewed.Status)
	assert.True(t, renewed.BillingCycleEnd.After(time.Now()))
	assert.Equal(t, 100, userBalance(t, db, good.ID))

	var suspended models.Subscription
	require.NoError(t, db.First(&suspended, badSub.ID).Error)
	assert.Equal(t, domain.SubscriptionSuspended, suspended.Status)
	assert.Equal(t, 0, userBalance(t, db, bad.ID))

	// each outcome leaves its payment row
	var paidCount, failedCount int64
	db.Model(&models.Payment{}).Where("status = ?", domain.PaymentPaid).Count(&paidCount)
	db.Model(&models.Payment{}).Where("status = ?", domain.PaymentFailed).Count(&failedCount)
	assert.EqualValues(t, 1, paidCount)
	assert.EqualValues(t, 1, failedCount)
}

func TestPaymentService_RenewSubscriptions_ChargesPendingTierPrice(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db, testutil.WithTier("pro"))
	testutil.NewSubscription(t, db, user.ID,
		testutil.WithSubTier("pro"),
		testutil.WithPendingTier("basic"),
		testutil.WithCycle(time.Now().AddDate(0, -1, 0), time.Now().Add(-time.Hour)),
		testutil.WithBillingKey("good-key"))

	result, err := svc.RenewSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)

	var p models.Payment
	require.NoError(t, db.Where("user_id = ? AND status = ?", user.ID, domain.PaymentPaid).First(&p).Error)
	assert.Equal(t, 29000, p.Amount)
	assert.Equal(t, "basic", p.RelatedID)

	var sub models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&sub).Error)
	assert.Equal(t, "basic", sub.Tier)
	assert.Nil(t, sub.PendingTier)
}

func TestPaymentService_RenewSubscriptions_MissingBillingKeySuspends(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db)
	sub := testutil.NewSubscription(t, db, user.ID,
		testutil.WithCycle(time.Now().AddDate(0, -1, 0), time.Now().Add(-time.Hour)))

	result, err := svc.RenewSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	var reloaded models.Subscription
	require.NoError(t, db.First(&reloaded, sub.ID).Error)
	assert.Equal(t, domain.SubscriptionSuspended, reloaded.Status)
}

func TestPaymentService_ExpireSubscriptions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newPaymentService(db, nicepay.NewStub())
	user := testutil.NewUser(t, db, testutil.WithTier("basic"))
	sub := testutil.NewSubscription(t, db, user.ID,
		testutil.WithSubTier("basic"),
		testutil.WithStatus(domain.SubscriptionCancelled),
		testutil.WithCycle(time.Now().AddDate(0, -1, 0), time.Now().Add(-time.Hour)))
	// still inside its cycle: not a candidate
	active := testutil.NewUser(t, db, testutil.WithTier("basic"))
	keep := testutil.NewSubscription(t, db, active.ID, testutil.WithSubTier("basic"))

	result, err := svc.ExpireSubscriptions()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Success)

	var expired models.Subscription
	require.NoError(t, db.First(&expired, sub.ID).Error)
	assert.Equal(t, domain.SubscriptionExpired, expired.Status)

	var u models.User
	require.NoError(t, db.First(&u, user.ID).Error)
	assert.Equal(t, domain.TierFree, u.SubscriptionTier)

	var untouched models.Subscription
	require.NoError(t, db.First(&untouched, keep.ID).Error)
	assert.Equal(t, domain.SubscriptionActive, untouched.Status)
}
