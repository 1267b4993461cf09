package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"taxly/internal/models"
	"taxly/internal/repository"
	"taxly/pkg/encryption"

	"gorm.io/gorm"
)

var (
	ErrInvalidClientID    = errors.New("client id must be a 10-digit business registration number")
	ErrCredentialNotFound = errors.New("credential not found")
)

var clientIDPattern = regexp.MustCompile(`^\d{10}$`)

// credentialBundle is the plaintext that gets encrypted as one blob.
type credentialBundle struct {
	CertData     string `json:"certData"`
	PrivateKey   string `json:"privateKey"`
	CertPassword string `json:"certPassword"`
}

// DecryptedCredential is what the workflow-automation consumer receives in
// exchange for a business registration number.
type DecryptedCredential struct {
	ClientID     string `json:"client_id"`
	CertName     string `json:"cert_name"`
	CertType     string `json:"cert_type"`
	CertData     string `json:"cert_data"`
	PrivateKey   string `json:"private_key"`
	CertPassword string `json:"cert_password"`
}

type CredentialService struct {
	repo *repository.CredentialRepository
	enc  *encryption.Service
}

func NewCredentialService(repo *repository.CredentialRepository, enc *encryption.Service) *CredentialService {
	return &CredentialService{repo: repo, enc: enc}
}

type CreateCredentialInput struct {
	ClientID     string
	CertData     string
	PrivateKey   string
	CertPassword string
	CertName     string
	CertType     string
	ExpiresAt    *time.Time
}

func (s *CredentialService) Create(userID uint, in CreateCredentialInput) (*models.TaxCredential, error) {
	if !clientIDPattern.MatchString(in.ClientID) {
		return nil, ErrInvalidClientID
	}
	if in.CertData == "" || in.PrivateKey == "" {
		return nil, errors.New("certificate and private key are required")
	}
	plaintext, err := json.Marshal(credentialBundle{
		CertData:     in.CertData,
		PrivateKey:   in.PrivateKey,
		CertPassword: in.CertPassword,
	})
	if err != nil {
		return nil, err
	}
	enc, err := s.enc.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential bundle: %w", err)
	}
	c := &models.TaxCredential{
		UserID:          userID,
		ClientID:        in.ClientID,
		EncryptedBundle: enc.Ciphertext,
		EncryptionIV:    enc.IV,
		EncryptionTag:   enc.Tag,
		CertName:        in.CertName,
		CertType:        in.CertType,
		IsActive:        true,
		ExpiresAt:       in.ExpiresAt,
	}
	if err := s.repo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CredentialService) decrypt(c *models.TaxCredential) (*DecryptedCredential, error) {
	plaintext, err := s.enc.Decrypt(&encryption.Encrypted{
		Ciphertext: c.EncryptedBundle,
		IV:         c.EncryptionIV,
		Tag:        c.EncryptionTag,
	})
	if err != nil {
		return nil, err
	}
	var bundle credentialBundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return nil, fmt.Errorf("parse credential bundle: %w", err)
	}
	return &DecryptedCredential{
		ClientID:     c.ClientID,
		CertName:     c.CertName,
		CertType:     c.CertType,
		CertData:     bundle.CertData,
		PrivateKey:   bundle.PrivateKey,
		CertPassword: bundle.CertPassword,
	}, nil
}

// DecryptByClientID trades an active credential's business id for the usable
// certificate material.
func (s *CredentialService) DecryptByClientID(clientID string) (*DecryptedCredential, error) {
	if !clientIDPattern.MatchString(clientID) {
		return nil, ErrInvalidClientID
	}
	c, err := s.repo.GetActiveByClientID(clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return s.decrypt(c)
}

func (s *CredentialService) List(userID uint) ([]models.TaxCredential, error) {
	return s.repo.ListByUser(userID)
}

func (s *CredentialService) getOwned(userID, id uint) (*models.TaxCredential, error) {
	c, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *CredentialService) Get(userID, id uint) (*models.TaxCredential, error) {
	return s.getOwned(userID, id)
}

func (s *CredentialService) Deactivate(userID, id uint) (*models.TaxCredential, error) {
	c, err := s.getOwned(userID, id)
	if err != nil {
		return nil, err
	}
	c.IsActive = false
	if err := s.repo.Save(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CredentialService) Delete(userID, id uint) error {
	c, err := s.getOwned(userID, id)
	if err != nil {
		return err
	}
	return s.repo.Delete(c.ID)
}

// TestConnection verifies a stored credential still decrypts and has not
// passed its certificate expiry. The metered connection check behind
// RequireCredit.
func (s *CredentialService) TestConnection(userID, id uint) (*models.TaxCredential, error) {
	c, err := s.getOwned(userID, id)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, ErrCredentialNotFound
	}
	if _, err := s.decrypt(c); err != nil {
		return nil, err
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now()) {
		return nil, errors.New("certificate has expired")
	}
	return c, nil
}
