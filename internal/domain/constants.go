package domain

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Credit transaction types (credit_transactions.type)
const (
	TransactionPurchase          = "purchase"
	TransactionUsage             = "usage"
	TransactionSubscriptionGrant = "subscription_grant"
	TransactionAdminGrant        = "admin_grant"
	TransactionExpiration        = "expiration"
	TransactionRefund            = "refund"
)

// Subscription statuses
const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionSuspended = "suspended"
	SubscriptionExpired   = "expired"
)

// Payment statuses
const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentFailed    = "failed"
	PaymentCancelled = "cancelled"
	PaymentRefunded  = "refunded"
)

// Payment types (what a paid order buys)
const (
	PaymentTypeOneTimeCredit       = "one_time_credit"
	PaymentTypeSubscription        = "subscription"
	PaymentTypeSubscriptionRenewal = "subscription_renewal"
)

// Billing cycles
const (
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
	CycleHourly  = "hourly" // ops-only cycle for exercising the renewal job, see tiers.go
)

// Credits deducted per certificate connection test
const CreditCostConnectionTest = 5
