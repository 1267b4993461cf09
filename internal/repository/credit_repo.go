package repository

import (
	"time"

	"taxly/internal/domain"
	"taxly/internal/models"

	"gorm.io/gorm"
)

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// ListByUser returns a reverse-chronological page, optionally filtered by type.
func (r *CreditRepository) ListByUser(userID uint, limit, offset int, txType string) ([]models.CreditTransaction, error) {
	q := r.db.Where("user_id = ?", userID)
	if txType != "" {
		q = q.Where("type = ?", txType)
	}
	var rows []models.CreditTransaction
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error
	return rows, err
}

func (r *CreditRepository) CountByUser(userID uint, txType string) (int64, error) {
	q := r.db.Model(&models.CreditTransaction{}).Where("user_id = ?", userID)
	if txType != "" {
		q = q.Where("type = ?", txType)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// FindExpiredGrants returns subscription_grant entries whose expiry has passed
// and that have no compensating expiration entry yet. The compensation entry's
// related_id points at the grant, which is what makes the sweep idempotent.
func (r *CreditRepository) FindExpiredGrants(now time.Time) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := r.db.
		Where("type = ? AND expires_at IS NOT NULL AND expires_at <= ?", domain.TransactionSubscriptionGrant, now).
		Where("id NOT IN (?)", r.db.Model(&models.CreditTransaction{}).
			Select("related_id").
			Where("type = ? AND related_id IS NOT NULL", domain.TransactionExpiration)).
		Order("id").
		Find(&rows).Error
	return rows, err
}
