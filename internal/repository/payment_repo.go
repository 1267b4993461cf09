package repository

import (
	"time"

	"taxly/internal/domain"
	"taxly/internal/models"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByOrderID(orderID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByUser(userID uint, limit, offset int, status string) ([]models.Payment, int64, error) {
	q := r.db.Model(&models.Payment{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Payment
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error
	return rows, total, err
}

// PaidFields is what a successful gateway approval records on the row.
type PaidFields struct {
	TID        string
	PayMethod  string
	CardName   string
	CardNum    string
	BillingKey *string
}

// MarkPaid performs the paid transition conditionally: the WHERE clause
// excludes rows already paid, so two racing approvals cannot both win.
// Returns false when the row was already paid (or gone).
func (r *PaymentRepository) MarkPaid(id uint, f PaidFields) (bool, error) {
	now := time.Now()
	res := r.db.Model(&models.Payment{}).
		Where("id = ? AND status <> ?", id, domain.PaymentPaid).
		Updates(map[string]interface{}{
			"status":      domain.PaymentPaid,
			"t_id":        f.TID,
			"pay_method":  f.PayMethod,
			"card_name":   f.CardName,
			"card_num":    f.CardNum,
			"billing_key": f.BillingKey,
			"paid_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PaymentRepository) MarkFailed(id uint, failCode, failMessage string) error {
	return r.db.Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       domain.PaymentFailed,
			"fail_code":    failCode,
			"fail_message": failMessage,
		}).Error
}

func (r *PaymentRepository) MarkCancelled(id uint) error {
	now := time.Now()
	return r.db.Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       domain.PaymentCancelled,
			"cancelled_at": now,
		}).Error
}

func (r *PaymentRepository) MarkRefunded(id uint) error {
	now := time.Now()
	return r.db.Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      domain.PaymentRefunded,
			"refunded_at": now,
		}).Error
}
