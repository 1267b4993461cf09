package models

import (
	"time"

	"gorm.io/gorm"
)

// TaxCredential stores a tax-authority certificate bundle. The certificate,
// private key and certificate password are JSON-bundled and encrypted once
// with AES-256-GCM; only the single ciphertext is stored.
type TaxCredential struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	ClientID        string         `gorm:"size:10;not null;index" json:"client_id"` // 10-digit business registration number
	EncryptedBundle string         `gorm:"type:text;not null" json:"-"`
	EncryptionIV    string         `gorm:"size:32;not null" json:"-"`
	EncryptionTag   string         `gorm:"size:40;not null" json:"-"`
	CertName        string         `gorm:"size:100" json:"cert_name"`
	CertType        string         `gorm:"size:30" json:"cert_type"`
	IsActive        bool           `gorm:"not null;default:true;index" json:"is_active"`
	ExpiresAt       *time.Time     `json:"expires_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (TaxCredential) TableName() string {
	return "tax_credentials"
}
