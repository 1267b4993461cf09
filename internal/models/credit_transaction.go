package models

import (
	"time"
)

// CreditTransaction is an append-only ledger entry. Rows are never updated:
// BalanceAfter is the balance snapshot taken when the row was inserted.
type CreditTransaction struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index" json:"user_id"`
	Amount       int        `gorm:"not null" json:"amount"` // positive = credit, negative = debit
	BalanceAfter int        `gorm:"not null" json:"balance_after"`
	Type         string     `gorm:"size:30;not null;index" json:"type"` // purchase, usage, subscription_grant, admin_grant, expiration, refund
	Description  string     `gorm:"size:255" json:"description"`
	RelatedID    *uint      `gorm:"index" json:"related_id"`      // payment/subscription/grant row this entry refers to
	ExpiresAt    *time.Time `gorm:"index" json:"expires_at"`      // only subscription_grant entries expire
	Metadata     string     `gorm:"type:text" json:"metadata"`    // JSON
	CreatedAt    time.Time  `json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (CreditTransaction) TableName() string {
	return "credit_transactions"
}
