package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"taxly/config"
	"taxly/internal/domain"
	"taxly/internal/models"
	"taxly/internal/repository"
	"taxly/pkg/nicepay"

	"github.com/google/uuid"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrForbidden            = errors.New("forbidden")
	ErrAlreadyPaid          = errors.New("payment already processed")
	ErrAmountMismatch       = errors.New("payment amount mismatch")
	ErrInvalidCreditPack    = errors.New("unknown credit pack")
	ErrInvalidPaymentMethod = errors.New("payment method not allowed for this payment type")
	ErrCannotCancel         = errors.New("only paid payments can be cancelled")
)

type PaymentService struct {
	cfg         *config.Config
	gateway     nicepay.Client
	paymentRepo *repository.PaymentRepository
	subRepo     *repository.SubscriptionRepository
	creditSvc   *CreditService
	subSvc      *SubscriptionService
}

func NewPaymentService(cfg *config.Config, gateway nicepay.Client, paymentRepo *repository.PaymentRepository,
	subRepo *repository.SubscriptionRepository, creditSvc *CreditService, subSvc *SubscriptionService) *PaymentService {
	return &PaymentService{
		cfg:         cfg,
		gateway:     gateway,
		paymentRepo: paymentRepo,
		subRepo:     subRepo,
		creditSvc:   creditSvc,
		subSvc:      subSvc,
	}
}

// paymentMetadata is what the approval path needs to dispatch the side effect.
type paymentMetadata struct {
	Credits int    `json:"credits,omitempty"`
	Tier    string `json:"tier,omitempty"`
	Upgrade bool   `json:"upgrade,omitempty"`
}

// newOrderID builds the externally-visible idempotency key,
// e.g. CREDIT_1756452000000_1a2b3c4d.
func newOrderID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

func (s *PaymentService) returnURL() string {
	return s.cfg.URLs.BackendURL + "/api/v1/payments/approve"
}

func (s *PaymentService) preparePending(ctx context.Context, p *models.Payment, directPayMethod string) (*nicepay.PrepareResult, error) {
	if err := s.paymentRepo.Create(p); err != nil {
		return nil, err
	}
	result, err := s.gateway.PreparePayment(ctx, nicepay.PrepareRequest{
		OrderID:         p.OrderID,
		Amount:          p.Amount,
		GoodsName:       p.OrderName,
		ReturnURL:       s.returnURL(),
		MallUserID:      fmt.Sprintf("%d", p.UserID),
		DirectPayMethod: directPayMethod,
	})
	if err != nil {
		if markErr := s.paymentRepo.MarkFailed(p.ID, gatewayErrCode(err), err.Error()); markErr != nil {
			log.Printf("[payment] mark failed %s: %v", p.OrderID, markErr)
		}
		return nil, fmt.Errorf("gateway prepare: %w", err)
	}
	return result, nil
}

func gatewayErrCode(err error) string {
	var apiErr *nicepay.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "GATEWAY_ERROR"
}

// PrepareCreditPayment opens a checkout for a one-time credit pack.
func (s *PaymentService) PrepareCreditPayment(ctx context.Context, userID uint, packID string) (*models.Payment, *nicepay.PrepareResult, error) {
	pack, ok := domain.CreditPackByID(packID)
	if !ok {
		return nil, nil, ErrInvalidCreditPack
	}
	credits := pack.Credits + pack.Bonus
	meta, _ := json.Marshal(paymentMetadata{Credits: credits})
	p := &models.Payment{
		UserID:      userID,
		OrderID:     newOrderID("CREDIT"),
		OrderName:   fmt.Sprintf("Taxly credits x%d", credits),
		Amount:      pack.Price,
		PaymentType: domain.PaymentTypeOneTimeCredit,
		RelatedID:   pack.ID,
		Status:      domain.PaymentPending,
		Metadata:    string(meta),
	}
	result, err := s.preparePending(ctx, p, "")
	if err != nil {
		return nil, nil, err
	}
	return p, result, nil
}

// PrepareSubscriptionPayment opens a checkout for a new subscription.
// Card only: the recurring charge needs the billing key a card payment issues.
func (s *PaymentService) PrepareSubscriptionPayment(ctx context.Context, userID uint, tierKey string) (*models.Payment, *nicepay.PrepareResult, error) {
	tier, ok := domain.TierByKey(tierKey)
	if !ok {
		return nil, nil, ErrInvalidTier
	}
	if tier.IsCustom {
		return nil, nil, ErrCustomTier
	}
	if tier.PriceOrZero() <= 0 {
		return nil, nil, ErrInvalidTier
	}
	meta, _ := json.Marshal(paymentMetadata{Tier: tier.Key})
	p := &models.Payment{
		UserID:      userID,
		OrderID:     newOrderID("SUB_" + strings.ToUpper(tier.Key)),
		OrderName:   fmt.Sprintf("Taxly %s subscription", tier.Name),
		Amount:      tier.PriceOrZero(),
		PaymentType: domain.PaymentTypeSubscription,
		RelatedID:   tier.Key,
		Status:      domain.PaymentPending,
		Metadata:    string(meta),
	}
	result, err := s.preparePending(ctx, p, "CARD")
	if err != nil {
		return nil, nil, err
	}
	return p, result, nil
}

// PrepareTierUpgradePayment opens a checkout for the prorated difference of
// an immediate upgrade. The quote is recomputed server-side; the client never
// supplies the amount.
func (s *PaymentService) PrepareTierUpgradePayment(ctx context.Context, userID uint, newTierKey string) (*models.Payment, *nicepay.PrepareResult, *TierChangeQuote, error) {
	quote, err := s.subSvc.Quote(userID, newTierKey)
	if err != nil {
		return nil, nil, nil, err
	}
	if !quote.IsUpgrade || quote.AdditionalCharge <= 0 {
		return nil, nil, nil, ErrInvalidTierChange
	}
	meta, _ := json.Marshal(paymentMetadata{Tier: newTierKey, Upgrade: true})
	p := &models.Payment{
		UserID:      userID,
		OrderID:     newOrderID("UPGRADE"),
		OrderName:   fmt.Sprintf("Taxly upgrade to %s", newTierKey),
		Amount:      quote.AdditionalCharge,
		PaymentType: domain.PaymentTypeSubscription,
		RelatedID:   newTierKey,
		Status:      domain.PaymentPending,
		Metadata:    string(meta),
	}
	result, err := s.preparePending(ctx, p, "CARD")
	if err != nil {
		return nil, nil, nil, err
	}
	return p, result, quote, nil
}

// ApprovePayment confirms an order after the gateway redirect and dispatches
// its side effect exactly once. The paid transition is a conditional update,
// so a duplicate or racing approval loses and reads back AlreadyPaid.
func (s *PaymentService) ApprovePayment(ctx context.Context, callerID uint, orderID, tid string, amount int) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByOrderID(orderID)
	if err != nil {
		return nil, ErrPaymentNotFound
	}
	if payment.UserID != callerID {
		return nil, ErrForbidden
	}
	if payment.Status == domain.PaymentPaid {
		return payment, ErrAlreadyPaid
	}
	if amount != payment.Amount {
		if err := s.paymentRepo.MarkFailed(payment.ID, "AMOUNT_MISMATCH",
			fmt.Sprintf("expected %d, got %d", payment.Amount, amount)); err != nil {
			log.Printf("[payment] mark failed %s: %v", orderID, err)
		}
		return nil, ErrAmountMismatch
	}

	approved, err := s.gateway.ApprovePayment(ctx, tid, amount)
	if err != nil {
		if markErr := s.paymentRepo.MarkFailed(payment.ID, gatewayErrCode(err), err.Error()); markErr != nil {
			log.Printf("[payment] mark failed %s: %v", orderID, markErr)
		}
		return nil, fmt.Errorf("gateway approve: %w", err)
	}

	fields := repository.PaidFields{
		TID:       approved.TID,
		PayMethod: approved.PayMethod,
	}
	if approved.Card != nil {
		fields.CardName = approved.Card.CardName
		fields.CardNum = approved.Card.CardNum
	}
	if approved.BillingKey != "" {
		key := approved.BillingKey
		fields.BillingKey = &key
	}
	won, err := s.paymentRepo.MarkPaid(payment.ID, fields)
	if err != nil {
		return nil, err
	}
	if !won {
		return payment, ErrAlreadyPaid
	}

	payment.Status = domain.PaymentPaid
	payment.TID = fields.TID
	payment.PayMethod = fields.PayMethod
	payment.CardName = fields.CardName
	payment.CardNum = fields.CardNum
	payment.BillingKey = fields.BillingKey
	now := time.Now()
	payment.PaidAt = &now

	if err := s.dispatchSideEffect(payment); err != nil {
		// Payment is already settled with the gateway; never roll it back.
		log.Printf("[payment] side effect failed for %s: %v", orderID, err)
		return payment, err
	}
	return payment, nil
}

func (s *PaymentService) dispatchSideEffect(payment *models.Payment) error {
	var meta paymentMetadata
	if payment.Metadata != "" {
		if err := json.Unmarshal([]byte(payment.Metadata), &meta); err != nil {
			return fmt.Errorf("parse payment metadata: %w", err)
		}
	}
	switch payment.PaymentType {
	case domain.PaymentTypeOneTimeCredit:
		if meta.Credits <= 0 {
			return fmt.Errorf("payment %s has no credits in metadata", payment.OrderID)
		}
		_, err := s.creditSvc.Charge(payment.UserID, meta.Credits,
			fmt.Sprintf("Credit pack purchase (%s)", payment.RelatedID), &payment.ID)
		return err
	case domain.PaymentTypeSubscription:
		if meta.Tier == "" {
			return fmt.Errorf("payment %s has no tier in metadata", payment.OrderID)
		}
		if meta.Upgrade {
			_, err := s.subSvc.ChangeTier(payment.UserID, meta.Tier, payment)
			return err
		}
		_, err := s.subSvc.Create(payment.UserID, meta.Tier, payment.BillingKey, nil)
		return err
	default:
		return fmt.Errorf("payment %s has unexpected type %s", payment.OrderID, payment.PaymentType)
	}
}

// CancelPayment refunds a settled order through the gateway.
// Granted credits are not clawed back here; operators adjust via admin grant.
func (s *PaymentService) CancelPayment(ctx context.Context, callerID uint, isAdmin bool, paymentID uint, reason string) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return nil, ErrPaymentNotFound
	}
	if payment.UserID != callerID && !isAdmin {
		return nil, ErrForbidden
	}
	if payment.Status != domain.PaymentPaid {
		return nil, ErrCannotCancel
	}
	if _, err := s.gateway.CancelPayment(ctx, payment.TID, payment.Amount, reason); err != nil {
		return nil, fmt.Errorf("gateway cancel: %w", err)
	}
	if err := s.paymentRepo.MarkCancelled(payment.ID); err != nil {
		return nil, err
	}
	payment.Status = domain.PaymentCancelled
	return payment, nil
}

// WebhookNotification is the subset of the gateway's server-to-server
// callback the orchestration consumes.
type WebhookNotification struct {
	OrderID   string `json:"orderId"`
	TID       string `json:"tid"`
	Amount    int    `json:"amount"`
	Status    string `json:"status"`
	PayMethod string `json:"payMethod"`
}

// HandleWebhook settles payment methods with no client return flow, such as
// virtual-account deposits. Subscription orders are rejected outright: they
// need the billing key a card approval issues, which a deposit notification
// cannot carry.
func (s *PaymentService) HandleWebhook(noti WebhookNotification) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByOrderID(noti.OrderID)
	if err != nil {
		return nil, ErrPaymentNotFound
	}
	if payment.PaymentType == domain.PaymentTypeSubscription {
		return nil, ErrInvalidPaymentMethod
	}
	if payment.Status == domain.PaymentPaid {
		return payment, ErrAlreadyPaid
	}
	if noti.Amount != payment.Amount {
		if err := s.paymentRepo.MarkFailed(payment.ID, "AMOUNT_MISMATCH",
			fmt.Sprintf("expected %d, got %d", payment.Amount, noti.Amount)); err != nil {
			log.Printf("[webhook] mark failed %s: %v", noti.OrderID, err)
		}
		return nil, ErrAmountMismatch
	}

	won, err := s.paymentRepo.MarkPaid(payment.ID, repository.PaidFields{
		TID:       noti.TID,
		PayMethod: noti.PayMethod,
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return payment, ErrAlreadyPaid
	}
	payment.Status = domain.PaymentPaid
	payment.TID = noti.TID
	payment.PayMethod = noti.PayMethod

	if err := s.dispatchSideEffect(payment); err != nil {
		log.Printf("[webhook] side effect failed for %s: %v", noti.OrderID, err)
		return payment, err
	}
	return payment, nil
}

// History returns a reverse-chronological page of a user's payments.
func (s *PaymentService) History(userID uint, limit, offset int, status string) ([]models.Payment, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.paymentRepo.ListByUser(userID, limit, offset, status)
}

// RenewSubscriptions charges every due subscription through its billing key.
// One bad key suspends that subscription and the loop moves on; a batch never
// aborts halfway.
func (s *PaymentService) RenewSubscriptions(ctx context.Context) (*BatchResult, error) {
	due, err := s.subRepo.FindDueForRenewal(time.Now())
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Total: len(due), Errors: []string{}}
	for i := range due {
		sub := &due[i]
		if err := s.renewOne(ctx, sub); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("subscription %d: %v", sub.ID, err))
			log.Printf("[renewal] subscription %d: %v", sub.ID, err)
			if suspendErr := s.subSvc.Suspend(sub, err.Error()); suspendErr != nil {
				log.Printf("[renewal] suspend %d: %v", sub.ID, suspendErr)
			}
			continue
		}
		result.Success++
	}
	return result, nil
}

func (s *PaymentService) renewOne(ctx context.Context, sub *models.Subscription) error {
	if sub.BillingKey == nil || *sub.BillingKey == "" {
		return errors.New("no billing key on file")
	}
	// The new cycle runs on the pending tier if a downgrade is queued, so
	// that is the price to charge.
	chargeTierKey := sub.Tier
	if sub.PendingTier != nil {
		chargeTierKey = *sub.PendingTier
	}
	tier, ok := domain.TierByKey(chargeTierKey)
	if !ok {
		return ErrInvalidTier
	}

	orderID := newOrderID("RENEW")
	charged, err := s.gateway.PayWithBillingKey(ctx, nicepay.BillingChargeRequest{
		BillingKey: *sub.BillingKey,
		OrderID:    orderID,
		Amount:     tier.PriceOrZero(),
		GoodsName:  fmt.Sprintf("Taxly %s renewal", tier.Name),
		MallUserID: fmt.Sprintf("%d", sub.UserID),
	})
	if err != nil {
		failed := &models.Payment{
			UserID:      sub.UserID,
			OrderID:     orderID,
			OrderName:   fmt.Sprintf("Taxly %s renewal", tier.Name),
			Amount:      tier.PriceOrZero(),
			PaymentType: domain.PaymentTypeSubscriptionRenewal,
			RelatedID:   tier.Key,
			Status:      domain.PaymentFailed,
			FailCode:    gatewayErrCode(err),
			FailMessage: err.Error(),
		}
		if createErr := s.paymentRepo.Create(failed); createErr != nil {
			log.Printf("[renewal] record failed charge %s: %v", orderID, createErr)
		}
		return err
	}

	// The charge already completed, so the row is born paid; there is no
	// pending/approve leg for billing-key payments.
	now := time.Now()
	paid := &models.Payment{
		UserID:      sub.UserID,
		OrderID:     orderID,
		OrderName:   fmt.Sprintf("Taxly %s renewal", tier.Name),
		Amount:      charged.Amount,
		PaymentType: domain.PaymentTypeSubscriptionRenewal,
		RelatedID:   tier.Key,
		TID:         charged.TID,
		Status:      domain.PaymentPaid,
		PaidAt:      &now,
	}
	if err := s.paymentRepo.Create(paid); err != nil {
		return err
	}
	return s.subSvc.Renew(sub)
}

// ExpireSubscriptions terminates cancelled and suspended subscriptions whose
// cycle has ended, dropping those users to the free tier.
func (s *PaymentService) ExpireSubscriptions() (*BatchResult, error) {
	stale, err := s.subRepo.FindExpired(time.Now())
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Total: len(stale), Errors: []string{}}
	for i := range stale {
		sub := &stale[i]
		if err := s.subSvc.Expire(sub); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("subscription %d: %v", sub.ID, err))
			log.Printf("[expiry] subscription %d: %v", sub.ID, err)
			continue
		}
		result.Success++
	}
	return result, nil
}
