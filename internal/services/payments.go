package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"custodia/internal/escrow"
)

// PaymentAuthorizer is the slice of the payment gateway the escrow service
// needs: collect the buyer's funds into custody, pay the seller out, and
// refund the buyer when a dispute goes their way.
type PaymentAuthorizer interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
	Refund(ctx context.Context, reference string, amount float64) error
}

type ChargeRequest struct {
	TransactionID string
	BuyerID       uint
	Method        escrow.PaymentMethod
	Amount        float64
	Currency      escrow.Currency
}

type ChargeResult struct {
	Reference string
	Status    string
}

type PayoutRequest struct {
	TransactionID string
	SellerID      uint
	Amount        float64
	Currency      escrow.Currency
	Reason        string
}

type PayoutResult struct {
	Reference string
	Status    string
}

// GatewayService talks to the payment processor's REST API.
type GatewayService struct {
	SecretKey string
	BaseURL   string
	client    *http.Client
}

// Gateway API response structures
type gatewayResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

type chargeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"` // minor units (centavos)
		Currency  string `json:"currency"`
	} `json:"data"`
}

type payoutResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

// NewGatewayService creates a new payment gateway client
func NewGatewayService() *GatewayService {
	baseURL := os.Getenv("PAYMENT_GATEWAY_URL")
	if baseURL == "" {
		baseURL = "https://api.pagos.example.com"
	}
	return &GatewayService{
		SecretKey: os.Getenv("PAYMENT_GATEWAY_SECRET"),
		BaseURL:   baseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// makeRequest makes an HTTP request to the gateway API
func (gs *GatewayService) makeRequest(ctx context.Context, method, endpoint string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, gs.BaseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+gs.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	return gs.client.Do(req)
}

// Charge collects the buyer's payment into the custody account. Amounts are
// sent in minor units (centavos).
func (gs *GatewayService) Charge(ctx context.Context, cr ChargeRequest) (*ChargeResult, error) {
	payload := map[string]interface{}{
		"amount":    int64(cr.Amount * 100),
		"currency":  string(cr.Currency),
		"method":    string(cr.Method),
		"reference": cr.TransactionID,
		"metadata": map[string]interface{}{
			"buyer_id": cr.BuyerID,
			"purpose":  "escrow_custody",
		},
	}

	resp, err := gs.makeRequest(ctx, "POST", "/charges", payload)
	if err != nil {
		return nil, &escrow.PaymentFailedError{Reason: "gateway unreachable", Err: err}
	}
	defer resp.Body.Close()

	var result chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !result.Status {
		return nil, &escrow.PaymentFailedError{Reason: result.Message}
	}
	if result.Data.Status != "succeeded" {
		return nil, &escrow.PaymentFailedError{Reason: "charge " + result.Data.Status}
	}

	return &ChargeResult{
		Reference: result.Data.Reference,
		Status:    result.Data.Status,
	}, nil
}

// Payout transfers released funds to the seller.
func (gs *GatewayService) Payout(ctx context.Context, pr PayoutRequest) (*PayoutResult, error) {
	payload := map[string]interface{}{
		"amount":    int64(pr.Amount * 100),
		"currency":  string(pr.Currency),
		"reference": pr.TransactionID,
		"reason":    pr.Reason,
		"metadata": map[string]interface{}{
			"seller_id": pr.SellerID,
		},
	}

	resp, err := gs.makeRequest(ctx, "POST", "/payouts", payload)
	if err != nil {
		return nil, fmt.Errorf("gateway payout: %w", err)
	}
	defer resp.Body.Close()

	var result payoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !result.Status {
		return nil, fmt.Errorf("gateway error: %s", result.Message)
	}

	return &PayoutResult{
		Reference: result.Data.Reference,
		Status:    result.Data.Status,
	}, nil
}

// Refund returns a collected charge to the buyer.
func (gs *GatewayService) Refund(ctx context.Context, reference string, amount float64) error {
	payload := map[string]interface{}{
		"reference": reference,
		"amount":    int64(amount * 100),
	}

	resp, err := gs.makeRequest(ctx, "POST", "/refunds", payload)
	if err != nil {
		return fmt.Errorf("gateway refund: %w", err)
	}
	defer resp.Body.Close()

	var result gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !result.Status {
		return fmt.Errorf("gateway error: %s", result.Message)
	}

	return nil
}
