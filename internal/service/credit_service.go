package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"taxly/internal/domain"
	"taxly/internal/models"
	"taxly/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// BatchResult summarizes a cron-driven batch run.
type BatchResult struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// CreditService owns all writes to users.credit_balance and the
// credit_transactions ledger. Nothing else may touch those columns.
type CreditService struct {
	db         *gorm.DB
	userRepo   *repository.UserRepository
	creditRepo *repository.CreditRepository
}

func NewCreditService(db *gorm.DB, userRepo *repository.UserRepository, creditRepo *repository.CreditRepository) *CreditService {
	return &CreditService{db: db, userRepo: userRepo, creditRepo: creditRepo}
}

// CreateParams describes one ledger entry. Amount is signed: positive grants,
// negative deducts.
type CreateParams struct {
	UserID      uint
	Amount      int
	Type        string
	Description string
	RelatedID   *uint
	ExpiresAt   *time.Time
	Metadata    map[string]interface{}
}

// Create appends one ledger entry and adjusts the cached balance in the same
// transaction. The balance update is a guarded atomic increment, so two
// concurrent deductions cannot both read the same starting balance: the one
// that would go negative simply matches zero rows.
func (s *CreditService) Create(p CreateParams) (*models.CreditTransaction, error) {
	var entry *models.CreditTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, p.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND credit_balance + ? >= 0", p.UserID, p.Amount).
			Update("credit_balance", gorm.Expr("credit_balance + ?", p.Amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientCredits
		}

		// Read back inside the transaction so balance_after is the true
		// post-increment snapshot even under concurrent writers.
		if err := tx.First(&user, p.UserID).Error; err != nil {
			return err
		}

		metadata := ""
		if len(p.Metadata) > 0 {
			raw, err := json.Marshal(p.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
			metadata = string(raw)
		}

		entry = &models.CreditTransaction{
			UserID:       p.UserID,
			Amount:       p.Amount,
			BalanceAfter: user.CreditBalance,
			Type:         p.Type,
			Description:  p.Description,
			RelatedID:    p.RelatedID,
			ExpiresAt:    p.ExpiresAt,
			Metadata:     metadata,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Deduct consumes credits for a metered action. Amount must be positive;
// it is negated internally.
func (s *CreditService) Deduct(userID uint, amount int, description string, relatedID *uint) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.Create(CreateParams{
		UserID:      userID,
		Amount:      -amount,
		Type:        domain.TransactionUsage,
		Description: description,
		RelatedID:   relatedID,
	})
}

// Charge grants purchased credits. They never expire.
func (s *CreditService) Charge(userID uint, amount int, description string, relatedID *uint) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.Create(CreateParams{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TransactionPurchase,
		Description: description,
		RelatedID:   relatedID,
	})
}

// GrantSubscription grants a billing cycle's credit quota, expiring at the
// cycle end.
func (s *CreditService) GrantSubscription(userID uint, amount int, description string, relatedID *uint, expiresAt time.Time) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.Create(CreateParams{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TransactionSubscriptionGrant,
		Description: description,
		RelatedID:   relatedID,
		ExpiresAt:   &expiresAt,
	})
}

// AdminGrant adjusts a balance by a signed amount on behalf of an operator.
// A negative amount that would push the balance below zero is rejected like
// any other deduction.
func (s *CreditService) AdminGrant(userID uint, amount int, description string, adminID uint) (*models.CreditTransaction, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	return s.Create(CreateParams{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TransactionAdminGrant,
		Description: description,
		Metadata:    map[string]interface{}{"granted_by": adminID},
	})
}

// GetBalance returns the cached balance and current tier. A missing user
// reads as an empty free account.
func (s *CreditService) GetBalance(userID uint) (int, string, error) {
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.TierFree, nil
		}
		return 0, "", err
	}
	return u.CreditBalance, u.SubscriptionTier, nil
}

// History returns a reverse-chronological page of ledger entries.
func (s *CreditService) History(userID uint, limit, offset int, txType string) ([]models.CreditTransaction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.creditRepo.ListByUser(userID, limit, offset, txType)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.creditRepo.CountByUser(userID, txType)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ExpireCredits writes one compensating expiration entry per expired
// subscription grant. The compensation's related_id is the grant's row id,
// which makes re-running the sweep a no-op for grants already compensated.
// The deduction is capped at the current balance: credits already spent
// cannot be clawed back below zero, but the marker row is still written.
func (s *CreditService) ExpireCredits(now time.Time) (*BatchResult, error) {
	grants, err := s.creditRepo.FindExpiredGrants(now)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Total: len(grants), Errors: []string{}}
	for _, grant := range grants {
		balance, _, err := s.GetBalance(grant.UserID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("grant %d: %v", grant.ID, err))
			continue
		}
		deduction := grant.Amount
		if deduction > balance {
			deduction = balance
		}
		grantID := grant.ID
		_, err = s.Create(CreateParams{
			UserID:      grant.UserID,
			Amount:      -deduction,
			Type:        domain.TransactionExpiration,
			Description: fmt.Sprintf("Expired subscription credits (%s)", grant.ExpiresAt.Format("2006-01-02")),
			RelatedID:   &grantID,
		})
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("grant %d: %v", grant.ID, err))
			log.Printf("[credits] expire sweep failed for grant %d: %v", grant.ID, err)
			continue
		}
		result.Success++
	}
	return result, nil
}
