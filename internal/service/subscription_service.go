package service

import (
	"errors"
	"fmt"
	"time"

	"taxly/internal/domain"
	"taxly/internal/models"
	"taxly/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrInvalidTier          = errors.New("unknown subscription tier")
	ErrCustomTier           = errors.New("tier requires contacting sales")
	ErrInvalidTierChange    = errors.New("tier change must be an upgrade or a downgrade")
	ErrPaymentRequired      = errors.New("upgrade requires an approved payment")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrCannotReactivate     = errors.New("subscription cannot be reactivated")
)

type SubscriptionService struct {
	subRepo   *repository.SubscriptionRepository
	userRepo  *repository.UserRepository
	creditSvc *CreditService
}

func NewSubscriptionService(subRepo *repository.SubscriptionRepository, userRepo *repository.UserRepository, creditSvc *CreditService) *SubscriptionService {
	return &SubscriptionService{subRepo: subRepo, userRepo: userRepo, creditSvc: creditSvc}
}

func (s *SubscriptionService) GetByUserID(userID uint) (*models.Subscription, error) {
	sub, err := s.subRepo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// Create starts a subscription on the given tier. A user has at most one
// subscription row; starting a new one after an expiry reuses the row.
// The tier's credit quota is granted immediately, expiring at cycle end.
func (s *SubscriptionService) Create(userID uint, tierKey string, billingKey *string, startDate *time.Time) (*models.Subscription, error) {
	tier, ok := domain.TierByKey(tierKey)
	if !ok {
		return nil, ErrInvalidTier
	}
	if tier.IsCustom {
		return nil, ErrCustomTier
	}

	start := time.Now()
	if startDate != nil {
		start = *startDate
	}
	end := domain.CycleEnd(start, tier.BillingCycle)
	next := end

	sub, err := s.subRepo.GetByUserID(userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		sub = &models.Subscription{UserID: userID}
	}
	sub.Tier = tier.Key
	sub.PendingTier = nil
	sub.Status = domain.SubscriptionActive
	sub.StatusReason = ""
	sub.BillingKey = billingKey
	sub.BillingCycleStart = start
	sub.BillingCycleEnd = end
	sub.NextBillingDate = &next
	sub.MonthlyCreditQuota = tier.Quota()
	sub.Price = tier.PriceOrZero()

	if sub.ID == 0 {
		err = s.subRepo.Create(sub)
	} else {
		err = s.subRepo.Save(sub)
	}
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateSubscriptionTier(userID, tier.Key); err != nil {
		return nil, err
	}

	if quota := tier.Quota(); quota > 0 {
		subID := sub.ID
		_, err := s.creditSvc.GrantSubscription(userID, quota,
			fmt.Sprintf("%s subscription credits", tier.Name), &subID, end)
		if err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// Cancel stops future billing. The user keeps tier benefits until the cycle
// ends, so users.subscription_tier is left alone.
func (s *SubscriptionService) Cancel(userID uint, reason string) (*models.Subscription, error) {
	sub, err := s.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionActive {
		return nil, ErrNoActiveSubscription
	}
	sub.Status = domain.SubscriptionCancelled
	sub.StatusReason = reason
	sub.NextBillingDate = nil
	if err := s.subRepo.Save(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Reactivate resumes a cancelled subscription before its cycle ends. Billing
// picks up exactly where it would have: the next charge lands at cycle end.
func (s *SubscriptionService) Reactivate(userID uint) (*models.Subscription, error) {
	sub, err := s.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionCancelled || sub.BillingCycleEnd.Before(time.Now()) {
		return nil, ErrCannotReactivate
	}
	next := sub.BillingCycleEnd
	sub.Status = domain.SubscriptionActive
	sub.StatusReason = ""
	sub.NextBillingDate = &next
	if err := s.subRepo.Save(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Renew rolls the billing cycle forward from now and grants the cycle's
// credits. A pending downgrade is promoted first, so the new cycle runs on
// the deferred tier.
func (s *SubscriptionService) Renew(sub *models.Subscription) error {
	if sub.PendingTier != nil {
		pending, ok := domain.TierByKey(*sub.PendingTier)
		if !ok {
			return ErrInvalidTier
		}
		sub.Tier = pending.Key
		sub.MonthlyCreditQuota = pending.Quota()
		sub.Price = pending.PriceOrZero()
		sub.PendingTier = nil
		if err := s.userRepo.UpdateSubscriptionTier(sub.UserID, pending.Key); err != nil {
			return err
		}
	}
	tier, ok := domain.TierByKey(sub.Tier)
	if !ok {
		return ErrInvalidTier
	}

	now := time.Now()
	end := domain.CycleEnd(now, tier.BillingCycle)
	next := end
	sub.Status = domain.SubscriptionActive
	sub.StatusReason = ""
	sub.BillingCycleStart = now
	sub.BillingCycleEnd = end
	sub.NextBillingDate = &next
	if err := s.subRepo.Save(sub); err != nil {
		return err
	}

	if quota := sub.MonthlyCreditQuota; quota > 0 {
		subID := sub.ID
		_, err := s.creditSvc.GrantSubscription(sub.UserID, quota,
			fmt.Sprintf("%s subscription renewal credits", tier.Name), &subID, end)
		if err != nil {
			return err
		}
	}
	return nil
}

// Suspend parks a subscription after a failed recurring charge.
func (s *SubscriptionService) Suspend(sub *models.Subscription, reason string) error {
	sub.Status = domain.SubscriptionSuspended
	sub.StatusReason = reason
	sub.NextBillingDate = nil
	return s.subRepo.Save(sub)
}

// Expire is terminal: the user drops back to the free tier.
func (s *SubscriptionService) Expire(sub *models.Subscription) error {
	sub.Status = domain.SubscriptionExpired
	sub.NextBillingDate = nil
	if err := s.subRepo.Save(sub); err != nil {
		return err
	}
	return s.userRepo.UpdateSubscriptionTier(sub.UserID, domain.TierFree)
}

// TierChangeQuote is the prorated cost of switching tiers mid-cycle.
type TierChangeQuote struct {
	CurrentTier      string `json:"current_tier"`
	NewTier          string `json:"new_tier"`
	IsUpgrade        bool   `json:"is_upgrade"`
	RemainingDays    int    `json:"remaining_days"`
	TotalDays        int    `json:"total_days"`
	AdditionalCharge int    `json:"additional_charge"`
	ProratedCredits  int    `json:"prorated_credits"`
}

func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// prorate computes the partial-cycle charge and credits for moving from the
// current price/quota to a new tier. Day counts are ceil-rounded; the charge
// rounds up and the credit grant rounds down.
func prorate(cycleStart, cycleEnd, now time.Time, oldPrice, newPrice, newQuota int) (remainingDays, totalDays, charge, credits int) {
	totalDays = ceilDays(cycleEnd.Sub(cycleStart))
	remainingDays = ceilDays(cycleEnd.Sub(now))
	if totalDays <= 0 {
		totalDays = 1
	}
	if remainingDays > totalDays {
		remainingDays = totalDays
	}
	diff := newPrice - oldPrice
	if diff > 0 {
		charge = (diff*remainingDays + totalDays - 1) / totalDays
	}
	credits = newQuota * remainingDays / totalDays
	return remainingDays, totalDays, charge, credits
}

// Quote computes what an immediate switch to newTier would cost. Used by the
// upgrade checkout to price the order before any payment exists.
func (s *SubscriptionService) Quote(userID uint, newTierKey string) (*TierChangeQuote, error) {
	sub, err := s.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionActive {
		return nil, ErrNoActiveSubscription
	}
	newTier, ok := domain.TierByKey(newTierKey)
	if !ok {
		return nil, ErrInvalidTier
	}
	if newTier.IsCustom {
		return nil, ErrCustomTier
	}

	effective := sub.Tier
	if sub.PendingTier != nil {
		effective = *sub.PendingTier
	}
	effTier, ok := domain.TierByKey(effective)
	if !ok {
		return nil, ErrInvalidTier
	}
	if newTier.PriceOrZero() == effTier.PriceOrZero() && newTierKey != sub.Tier {
		return nil, ErrInvalidTierChange
	}

	remaining, total, charge, credits := prorate(
		sub.BillingCycleStart, sub.BillingCycleEnd, time.Now(),
		sub.Price, newTier.PriceOrZero(), newTier.Quota())
	return &TierChangeQuote{
		CurrentTier:      sub.Tier,
		NewTier:          newTierKey,
		IsUpgrade:        newTier.PriceOrZero() > effTier.PriceOrZero(),
		RemainingDays:    remaining,
		TotalDays:        total,
		AdditionalCharge: charge,
		ProratedCredits:  credits,
	}, nil
}

// ChangeTier applies a tier switch. Upgrades take effect immediately and
// require an approved payment for the prorated charge; downgrades only queue
// pendingTier, which Renew promotes at the next cycle. Selecting the current
// tier while a downgrade is pending cancels the downgrade.
func (s *SubscriptionService) ChangeTier(userID uint, newTierKey string, payment *models.Payment) (*models.Subscription, error) {
	sub, err := s.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionActive {
		return nil, ErrNoActiveSubscription
	}
	newTier, ok := domain.TierByKey(newTierKey)
	if !ok {
		return nil, ErrInvalidTier
	}
	if newTier.IsCustom {
		return nil, ErrCustomTier
	}

	if sub.PendingTier != nil && newTierKey == sub.Tier {
		sub.PendingTier = nil
		if err := s.subRepo.Save(sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	// A queued downgrade means the user is already committed to pendingTier;
	// the comparison runs against that, not the tier still in effect.
	effective := sub.Tier
	if sub.PendingTier != nil {
		effective = *sub.PendingTier
	}
	effTier, ok := domain.TierByKey(effective)
	if !ok {
		return nil, ErrInvalidTier
	}

	switch {
	case newTier.PriceOrZero() == effTier.PriceOrZero():
		return nil, ErrInvalidTierChange
	case newTier.PriceOrZero() > effTier.PriceOrZero():
		if payment == nil || payment.Status != domain.PaymentPaid {
			return nil, ErrPaymentRequired
		}
		_, _, _, credits := prorate(
			sub.BillingCycleStart, sub.BillingCycleEnd, time.Now(),
			sub.Price, newTier.PriceOrZero(), newTier.Quota())

		sub.Tier = newTier.Key
		sub.PendingTier = nil
		sub.MonthlyCreditQuota = newTier.Quota()
		sub.Price = newTier.PriceOrZero()
		if err := s.subRepo.Save(sub); err != nil {
			return nil, err
		}
		if err := s.userRepo.UpdateSubscriptionTier(userID, newTier.Key); err != nil {
			return nil, err
		}
		if credits > 0 {
			subID := sub.ID
			// Prorated credits die at the current cycle end; the full quota
			// starts only with the next renewal.
			_, err := s.creditSvc.GrantSubscription(userID, credits,
				fmt.Sprintf("Prorated %s upgrade credits", newTier.Name), &subID, sub.BillingCycleEnd)
			if err != nil {
				return nil, err
			}
		}
		return sub, nil
	default:
		pending := newTier.Key
		sub.PendingTier = &pending
		if err := s.subRepo.Save(sub); err != nil {
			return nil, err
		}
		return sub, nil
	}
}
