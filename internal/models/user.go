package models

import (
	"time"

	"taxly/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Email            string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash     string         `gorm:"size:255" json:"-"`
	Name             string         `gorm:"size:100" json:"name"`
	Role             string         `gorm:"size:20;not null;default:'user';index" json:"role"` // user | admin
	CreditBalance    int            `gorm:"not null;default:0" json:"credit_balance"`          // cache of the ledger sum; written only by the credit service
	SubscriptionTier string         `gorm:"size:30;not null;default:'free'" json:"subscription_tier"`
	IsActive         bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool { return u.Role == domain.RoleAdmin }
