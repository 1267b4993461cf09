package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment is one row per gateway order attempt. Created pending before the
// checkout redirect, then moved to exactly one terminal state.
type Payment struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	OrderID     string         `gorm:"size:128;uniqueIndex;not null" json:"order_id"`
	OrderName   string         `gorm:"size:255" json:"order_name"`
	Amount      int            `gorm:"not null" json:"amount"`
	PaymentType string         `gorm:"size:30;not null;index" json:"payment_type"` // one_time_credit, subscription, subscription_renewal
	RelatedID   string         `gorm:"size:64" json:"related_id"`                  // credit-pack id or tier key
	TID         string         `gorm:"size:100;index" json:"tid"`                  // gateway transaction id, set on success
	PayMethod   string         `gorm:"size:30" json:"pay_method"`
	CardName    string         `gorm:"size:50" json:"card_name"`
	CardNum     string         `gorm:"size:30" json:"card_num"`
	Status      string         `gorm:"size:20;not null;default:'pending';index" json:"status"` // pending, paid, failed, cancelled, refunded
	BillingKey  *string        `gorm:"size:128" json:"-"`
	PaidAt      *time.Time     `json:"paid_at"`
	CancelledAt *time.Time     `json:"cancelled_at"`
	RefundedAt  *time.Time     `json:"refunded_at"`
	FailCode    string         `gorm:"size:50" json:"fail_code,omitempty"`
	FailMessage string         `gorm:"size:255" json:"fail_message,omitempty"`
	Metadata    string         `gorm:"type:text" json:"metadata"` // JSON: credits count or tier for the side-effect dispatch
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}
