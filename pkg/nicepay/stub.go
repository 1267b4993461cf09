package nicepay

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Stub is an in-memory gateway for development and tests. Failures can be
// injected per operation or per billing key.
type Stub struct {
	mu sync.Mutex

	PrepareErr error
	ApproveErr error
	CancelErr  error
	ChargeErr  error

	// FailBillingKeys maps a billing key to the error message its charge fails with.
	FailBillingKeys map[string]string

	// BillingKey returned from ApprovePayment (simulates a card tokenization).
	BillingKey string

	PreparedOrders []string
	ApprovedTIDs   []string
	ChargedOrders  []string
	DeletedKeys    []string
}

func NewStub() *Stub {
	return &Stub{BillingKey: "stub-billing-key"}
}

func (s *Stub) PreparePayment(ctx context.Context, req PrepareRequest) (*PrepareResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PrepareErr != nil {
		return nil, s.PrepareErr
	}
	s.PreparedOrders = append(s.PreparedOrders, req.OrderID)
	return &PrepareResult{
		ClientToken: fmt.Sprintf("stub-token-%d", time.Now().UnixNano()),
		OrderID:     req.OrderID,
	}, nil
}

func (s *Stub) ApprovePayment(ctx context.Context, tid string, amount int) (*ApproveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ApproveErr != nil {
		return nil, s.ApproveErr
	}
	s.ApprovedTIDs = append(s.ApprovedTIDs, tid)
	return &ApproveResult{
		TID:        tid,
		Amount:     amount,
		PaidAt:     time.Now().Format(time.RFC3339),
		PayMethod:  "card",
		BillingKey: s.BillingKey,
		Card: &struct {
			CardName string `json:"cardName"`
			CardNum  string `json:"cardNum"`
		}{CardName: "StubCard", CardNum: "1234-****-****-5678"},
	}, nil
}

func (s *Stub) CancelPayment(ctx context.Context, tid string, amount int, reason string) (*CancelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CancelErr != nil {
		return nil, s.CancelErr
	}
	return &CancelResult{TID: tid, CancelledAt: time.Now().Format(time.RFC3339), CancelAmount: amount}, nil
}

func (s *Stub) PayWithBillingKey(ctx context.Context, req BillingChargeRequest) (*ChargeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ChargeErr != nil {
		return nil, s.ChargeErr
	}
	if msg, ok := s.FailBillingKeys[req.BillingKey]; ok {
		return nil, &APIError{Code: "F1001", Message: msg}
	}
	s.ChargedOrders = append(s.ChargedOrders, req.OrderID)
	return &ChargeResult{
		TID:     fmt.Sprintf("stub-tid-%d", time.Now().UnixNano()),
		OrderID: req.OrderID,
		Amount:  req.Amount,
		PaidAt:  time.Now().Format(time.RFC3339),
	}, nil
}

func (s *Stub) DeleteBillingKey(ctx context.Context, billingKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeletedKeys = append(s.DeletedKeys, billingKey)
	return nil
}

func (s *Stub) GetPayment(ctx context.Context, tid string) (*PaymentInfo, error) {
	return &PaymentInfo{TID: tid, Status: "paid", PayMethod: "card"}, nil
}
