package nicepay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is the payment-gateway surface the orchestration layer depends on.
type Client interface {
	PreparePayment(ctx context.Context, req PrepareRequest) (*PrepareResult, error)
	ApprovePayment(ctx context.Context, tid string, amount int) (*ApproveResult, error)
	CancelPayment(ctx context.Context, tid string, amount int, reason string) (*CancelResult, error)
	PayWithBillingKey(ctx context.Context, req BillingChargeRequest) (*ChargeResult, error)
	DeleteBillingKey(ctx context.Context, billingKey string) error
	GetPayment(ctx context.Context, tid string) (*PaymentInfo, error)
}

type PrepareRequest struct {
	OrderID         string `json:"orderId"`
	Amount          int    `json:"amount"`
	GoodsName       string `json:"goodsName"`
	ReturnURL       string `json:"returnUrl"`
	MallUserID      string `json:"mallUserId"`
	DirectPayMethod string `json:"payMethod,omitempty"` // e.g. CARD to disallow virtual accounts
}

type PrepareResult struct {
	ClientToken string `json:"clientToken"`
	OrderID     string `json:"orderId"`
}

type ApproveResult struct {
	TID        string `json:"tid"`
	OrderID    string `json:"orderId"`
	Amount     int    `json:"amount"`
	PaidAt     string `json:"paidAt"`
	PayMethod  string `json:"payMethod"`
	BillingKey string `json:"billingKey"` // set for card payments usable for recurring charges
	Card       *struct {
		CardName string `json:"cardName"`
		CardNum  string `json:"cardNum"`
	} `json:"card"`
}

type CancelResult struct {
	TID          string `json:"tid"`
	CancelledAt  string `json:"cancelledAt"`
	CancelAmount int    `json:"cancelAmount"`
}

type BillingChargeRequest struct {
	BillingKey string `json:"billingKey"`
	OrderID    string `json:"orderId"`
	Amount     int    `json:"amount"`
	GoodsName  string `json:"goodsName"`
	MallUserID string `json:"mallUserId"`
}

type ChargeResult struct {
	TID     string `json:"tid"`
	OrderID string `json:"orderId"`
	Amount  int    `json:"amount"`
	PaidAt  string `json:"paidAt"`
}

type PaymentInfo struct {
	TID       string `json:"tid"`
	OrderID   string `json:"orderId"`
	Amount    int    `json:"amount"`
	Status    string `json:"status"`
	PayMethod string `json:"payMethod"`
}

// APIError carries the gateway's own error code/message so callers can surface
// it verbatim.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("nicepay error %s", e.Code)
}

// HTTPClient talks to the NicePay REST API with Basic auth
// (base64 of clientID:secretKey).
type HTTPClient struct {
	clientID  string
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewHTTPClient(clientID, secretKey, baseURL string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.nicepay.co.kr"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		clientID:  clientID,
		secretKey: secretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	creds := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+creds)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		if json.Unmarshal(respBody, apiErr) != nil || (apiErr.Code == "" && apiErr.Message == "") {
			apiErr.Message = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}
		log.Printf("[NICEPAY] %s %s failed: status=%d code=%s msg=%s", method, path, resp.StatusCode, apiErr.Code, apiErr.Message)
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) PreparePayment(ctx context.Context, req PrepareRequest) (*PrepareResult, error) {
	var out PrepareResult
	if err := c.do(ctx, http.MethodPost, "/v1/payments/ready", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ApprovePayment(ctx context.Context, tid string, amount int) (*ApproveResult, error) {
	var out ApproveResult
	body := map[string]int{"amount": amount}
	if err := c.do(ctx, http.MethodPost, "/v1/payments/"+tid, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CancelPayment(ctx context.Context, tid string, amount int, reason string) (*CancelResult, error) {
	var out CancelResult
	body := map[string]interface{}{
		"amount":              amount,
		"reason":              reason,
		"cancelTaxFreeAmount": 0,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/payments/"+tid+"/cancel", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) PayWithBillingKey(ctx context.Context, req BillingChargeRequest) (*ChargeResult, error) {
	var out ChargeResult
	if err := c.do(ctx, http.MethodPost, "/v1/subscribe/payments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteBillingKey(ctx context.Context, billingKey string) error {
	return c.do(ctx, http.MethodDelete, "/v1/subscribe/"+billingKey, nil, nil)
}

func (c *HTTPClient) GetPayment(ctx context.Context, tid string) (*PaymentInfo, error) {
	var out PaymentInfo
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+tid, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
