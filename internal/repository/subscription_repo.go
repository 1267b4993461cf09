package repository

import (
	"time"

	"taxly/internal/domain"
	"taxly/internal/models"

	"gorm.io/gorm"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(s *models.Subscription) error {
	return r.db.Create(s).Error
}

func (r *SubscriptionRepository) Save(s *models.Subscription) error {
	return r.db.Save(s).Error
}

func (r *SubscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) GetByUserID(userID uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// FindDueForRenewal returns active subscriptions whose next billing date has
// passed. The range predicate runs in SQL, not in application code.
func (r *SubscriptionRepository) FindDueForRenewal(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND next_billing_date IS NOT NULL AND next_billing_date <= ?", domain.SubscriptionActive, now).
		Order("next_billing_date").
		Find(&subs).Error
	return subs, err
}

// FindExpired returns cancelled or suspended subscriptions whose cycle has
// ended; these are candidates for the terminal expire transition.
func (r *SubscriptionRepository) FindExpired(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status IN ? AND billing_cycle_end < ?",
			[]string{domain.SubscriptionCancelled, domain.SubscriptionSuspended}, now).
		Order("billing_cycle_end").
		Find(&subs).Error
	return subs, err
}
