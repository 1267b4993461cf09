package testutil

import (
	"fmt"
	"testing"
	"time"

	"taxly/internal/domain"
	"taxly/internal/models"

	"gorm.io/gorm"
)

// NewUser inserts a test user with sensible defaults.
func NewUser(t *testing.T, db *gorm.DB, opts ...func(*models.User)) *models.User {
	t.Helper()

	user := &models.User{
		Email:            fmt.Sprintf("test_%d@example.com", time.Now().UnixNano()),
		PasswordHash:     "$2a$10$abcdefghijklmnopqrstuvwxyz123456", // bcrypt hash placeholder
		Name:             "Test User",
		Role:             domain.RoleUser,
		SubscriptionTier: domain.TierFree,
		IsActive:         true,
	}
	for _, opt := range opts {
		opt(user)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// WithBalance sets the starting credit balance.
func WithBalance(balance int) func(*models.User) {
	return func(u *models.User) {
		u.CreditBalance = balance
	}
}

// WithRole sets the user role.
func WithRole(role string) func(*models.User) {
	return func(u *models.User) {
		u.Role = role
	}
}

// WithTier sets the denormalized subscription tier.
func WithTier(tier string) func(*models.User) {
	return func(u *models.User) {
		u.SubscriptionTier = tier
	}
}

// NewSubscription inserts an active subscription for the user.
func NewSubscription(t *testing.T, db *gorm.DB, userID uint, opts ...func(*models.Subscription)) *models.Subscription {
	t.Helper()

	now := time.Now()
	end := now.AddDate(0, 1, 0)
	next := end
	tier, _ := domain.TierByKey("basic")
	sub := &models.Subscription{
		UserID:             userID,
		Tier:               tier.Key,
		Status:             domain.SubscriptionActive,
		BillingCycleStart:  now,
		BillingCycleEnd:    end,
		NextBillingDate:    &next,
		MonthlyCreditQuota: tier.Quota(),
		Price:              tier.PriceOrZero(),
	}
	for _, opt := range opts {
		opt(sub)
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}
	return sub
}

// WithSubTier sets the subscription tier fields from the tier table.
func WithSubTier(key string) func(*models.Subscription) {
	return func(s *models.Subscription) {
		tier, ok := domain.TierByKey(key)
		if !ok {
			return
		}
		s.Tier = tier.Key
		s.MonthlyCreditQuota = tier.Quota()
		s.Price = tier.PriceOrZero()
	}
}

// WithStatus sets the subscription status.
func WithStatus(status string) func(*models.Subscription) {
	return func(s *models.Subscription) {
		s.Status = status
	}
}

// WithCycle sets the billing window and next billing date.
func WithCycle(start, end time.Time) func(*models.Subscription) {
	return func(s *models.Subscription) {
		next := end
		s.BillingCycleStart = start
		s.BillingCycleEnd = end
		s.NextBillingDate = &next
	}
}

// WithBillingKey sets the recurring-charge token.
func WithBillingKey(key string) func(*models.Subscription) {
	return func(s *models.Subscription) {
		s.BillingKey = &key
	}
}

// WithPendingTier queues a downgrade.
func WithPendingTier(key string) func(*models.Subscription) {
	return func(s *models.Subscription) {
		s.PendingTier = &key
	}
}

// NewPayment inserts a pending payment row.
func NewPayment(t *testing.T, db *gorm.DB, userID uint, opts ...func(*models.Payment)) *models.Payment {
	t.Helper()

	p := &models.Payment{
		UserID:      userID,
		OrderID:     fmt.Sprintf("CREDIT_%d_test", time.Now().UnixNano()),
		OrderName:   "Test order",
		Amount:      15000,
		PaymentType: domain.PaymentTypeOneTimeCredit,
		RelatedID:   "pack_50",
		Status:      domain.PaymentPending,
		Metadata:    `{"credits":50}`,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}
	return p
}

// WithPaymentType sets the payment type and metadata together.
func WithPaymentType(paymentType, metadata string) func(*models.Payment) {
	return func(p *models.Payment) {
		p.PaymentType = paymentType
		p.Metadata = metadata
	}
}

// WithAmount sets the order amount.
func WithAmount(amount int) func(*models.Payment) {
	return func(p *models.Payment) {
		p.Amount = amount
	}
}

// WithPaymentStatus sets the payment status.
func WithPaymentStatus(status string) func(*models.Payment) {
	return func(p *models.Payment) {
		p.Status = status
	}
}
