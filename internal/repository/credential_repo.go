package repository

import (
	"taxly/internal/models"

	"gorm.io/gorm"
)

type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Create(c *models.TaxCredential) error {
	return r.db.Create(c).Error
}

func (r *CredentialRepository) GetByID(id uint) (*models.TaxCredential, error) {
	var c models.TaxCredential
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CredentialRepository) ListByUser(userID uint) ([]models.TaxCredential, error) {
	var rows []models.TaxCredential
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// GetActiveByClientID looks a credential up by the business registration
// number it was stored under. Newest active row wins when duplicates exist.
func (r *CredentialRepository) GetActiveByClientID(clientID string) (*models.TaxCredential, error) {
	var c models.TaxCredential
	err := r.db.Where("client_id = ? AND is_active = ?", clientID, true).
		Order("created_at DESC").First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CredentialRepository) Save(c *models.TaxCredential) error {
	return r.db.Save(c).Error
}

func (r *CredentialRepository) Delete(id uint) error {
	return r.db.Delete(&models.TaxCredential{}, id).Error
}
