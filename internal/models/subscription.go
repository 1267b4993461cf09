package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription is one-per-user, not historized. A downgrade only sets
// PendingTier; renewal promotes it before computing the next cycle.
type Subscription struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	UserID             uint           `gorm:"uniqueIndex;not null" json:"user_id"`
	Tier               string         `gorm:"size:30;not null" json:"tier"`
	PendingTier        *string        `gorm:"size:30" json:"pending_tier"`
	Status             string         `gorm:"size:20;not null;default:'active';index" json:"status"` // active, cancelled, suspended, expired
	StatusReason       string         `gorm:"size:255" json:"status_reason,omitempty"`
	BillingKey         *string        `gorm:"size:128" json:"-"`
	BillingCycleStart  time.Time      `gorm:"not null" json:"billing_cycle_start"`
	BillingCycleEnd    time.Time      `gorm:"not null;index" json:"billing_cycle_end"`
	NextBillingDate    *time.Time     `gorm:"index" json:"next_billing_date"` // nil = no further auto-renewal
	MonthlyCreditQuota int            `gorm:"not null;default:0" json:"monthly_credit_quota"`
	Price              int            `gorm:"not null;default:0" json:"price"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
