package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// cashfreeAPIVersion pins the v3 REST contract this adapter is written
// against.
const cashfreeAPIVersion = "2023-08-01"

// CashfreeConfig holds the Cashfree v3 credentials.
type CashfreeConfig struct {
	AppID     string // x-client-id
	SecretKey string // x-client-secret, also the webhook HMAC key
	BaseURL   string // e.g. https://sandbox.cashfree.com/pg
	ReturnURL string
}

// CashfreeAdapter implements Gateway against the Cashfree v3 REST API.
type CashfreeAdapter struct {
	cfg        CashfreeConfig
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewCashfreeAdapter(cfg CashfreeConfig, logger *zap.SugaredLogger) *CashfreeAdapter {
	return &CashfreeAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (c *CashfreeAdapter) Name() string { return NameCashfree }

func (c *CashfreeAdapter) checkConfig() error {
	if c.cfg.AppID == "" || c.cfg.SecretKey == "" {
		return &ConfigurationError{Gateway: NameCashfree, Missing: "app id/secret key"}
	}
	return nil
}

// CreateOrder creates a Cashfree order and returns the payment session id
// the client passes to the checkout SDK. Cashfree's wire format carries
// amounts in major units; the unified envelope stays in minor units.
func (c *CashfreeAdapter) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	orderID := "order_" + uuid.NewString()
	amount := ToMinorUnits(req.Amount)

	body, _ := json.Marshal(map[string]interface{}{
		"order_id":       orderID,
		"order_amount":   ToMajorUnits(amount),
		"order_currency": req.Currency,
		"order_note":     req.Description,
		"customer_details": map[string]string{
			"customer_id":    sanitizeUserID(req.Customer.Email),
			"customer_name":  req.Customer.Name,
			"customer_email": req.Customer.Email,
			"customer_phone": req.Customer.Phone,
		},
		"order_meta": map[string]string{
			"return_url": fmt.Sprintf("%s?order_id=%s", c.cfg.ReturnURL, orderID),
		},
	})

	respBody, statusCode, err := c.do(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return nil, err
	}

	var res struct {
		OrderID          string  `json:"order_id"`
		OrderAmount      float64 `json:"order_amount"`
		OrderCurrency    string  `json:"order_currency"`
		OrderStatus      string  `json:"order_status"`
		PaymentSessionID string  `json:"payment_session_id"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &UpstreamError{Gateway: NameCashfree, StatusCode: statusCode, Message: "unparseable order response"}
	}

	c.logger.Infow("cashfree order created", "order_id", res.OrderID, "status", res.OrderStatus)

	return &Order{
		Gateway:     NameCashfree,
		OrderID:     res.OrderID,
		Amount:      amount,
		Currency:    req.Currency,
		Status:      mapCashfreeOrderStatus(res.OrderStatus),
		CheckoutKey: res.PaymentSessionID,
	}, nil
}

// VerifyPayment for Cashfree is a server-to-server order lookup.
func (c *CashfreeAdapter) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	if req.OrderID == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "required for cashfree verification"}
	}
	return c.CheckStatus(ctx, req.OrderID)
}

// CheckStatus fetches the order from the v3 orders endpoint.
func (c *CashfreeAdapter) CheckStatus(ctx context.Context, orderID string) (*VerificationResult, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	respBody, statusCode, err := c.do(ctx, http.MethodGet, "/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}

	var res struct {
		OrderStatus string  `json:"order_status"`
		OrderAmount float64 `json:"order_amount"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &UpstreamError{Gateway: NameCashfree, StatusCode: statusCode, Message: "unparseable order response"}
	}

	status := mapCashfreeOrderStatus(res.OrderStatus)
	return &VerificationResult{
		Success:   status == StatusCompleted,
		Status:    status,
		Amount:    ToMinorUnits(res.OrderAmount),
		Timestamp: time.Now(),
	}, nil
}

// HandleWebhook authenticates the x-webhook-signature header. Per the v3
// contract the signature is base64(HMAC-SHA256(timestamp + rawBody)) keyed
// with the API secret, with the timestamp taken from
// x-webhook-timestamp.
func (c *CashfreeAdapter) HandleWebhook(body []byte, headers map[string]string) WebhookResult {
	sig := headerValue(headers, "x-webhook-signature")
	ts := headerValue(headers, "x-webhook-timestamp")
	if sig == "" || ts == "" || c.cfg.SecretKey == "" {
		c.logger.Warnw("cashfree webhook rejected", "reason", "missing signature headers or secret")
		return WebhookResult{Valid: false}
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(ts))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		c.logger.Warnw("cashfree webhook signature mismatch")
		return WebhookResult{Valid: false}
	}

	var envelope struct {
		Type string `json:"type"`
		Data struct {
			Order struct {
				OrderID string `json:"order_id"`
			} `json:"order"`
			Payment struct {
				CfPaymentID   json.Number `json:"cf_payment_id"`
				PaymentStatus string      `json:"payment_status"`
			} `json:"payment"`
			Refund struct {
				RefundID string `json:"refund_id"`
			} `json:"refund"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.Errorw("cashfree webhook body unparseable", "error", err)
		return WebhookResult{Valid: false}
	}

	result := WebhookResult{Valid: true, EventType: envelope.Type, RelatedID: envelope.Data.Order.OrderID}

	switch envelope.Type {
	case "PAYMENT_SUCCESS_WEBHOOK":
		result.Processed = true
		result.Status = StatusCompleted
	case "PAYMENT_FAILED_WEBHOOK", "PAYMENT_USER_DROPPED_WEBHOOK":
		result.Processed = true
		result.Status = StatusFailed
	case "REFUND_STATUS_WEBHOOK":
		result.Processed = true
		result.Status = StatusRefunded
		if envelope.Data.Refund.RefundID != "" {
			result.RelatedID = envelope.Data.Refund.RefundID
		}
	default:
		c.logger.Infow("cashfree webhook event not handled", "type", envelope.Type)
	}

	return result
}

// Refund creates a refund against the order.
func (c *CashfreeAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	refundID := "refund_" + uuid.NewString()
	body, _ := json.Marshal(map[string]interface{}{
		"refund_id":     refundID,
		"refund_amount": ToMajorUnits(req.Amount),
	})

	respBody, statusCode, err := c.do(ctx, http.MethodPost, "/orders/"+req.PaymentID+"/refunds", body)
	if err != nil {
		return nil, err
	}

	var res struct {
		RefundID     string  `json:"refund_id"`
		RefundStatus string  `json:"refund_status"`
		RefundAmount float64 `json:"refund_amount"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &UpstreamError{Gateway: NameCashfree, StatusCode: statusCode, Message: "unparseable refund response"}
	}

	c.logger.Infow("cashfree refund created", "refund_id", res.RefundID, "order_id", req.PaymentID, "status", res.RefundStatus)

	status := StatusInitiated
	if res.RefundStatus == "SUCCESS" {
		status = StatusRefunded
	}
	return &RefundResult{RefundID: res.RefundID, Amount: req.Amount, Status: status}, nil
}

func (c *CashfreeAdapter) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("cashfree: build request: %w", err)
	}
	req.Header.Set("x-client-id", c.cfg.AppID)
	req.Header.Set("x-client-secret", c.cfg.SecretKey)
	req.Header.Set("x-api-version", cashfreeAPIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &UpstreamError{Gateway: NameCashfree, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &UpstreamError{Gateway: NameCashfree, StatusCode: resp.StatusCode, Message: "failed to read response"}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, resp.StatusCode, &UpstreamError{Gateway: NameCashfree, StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, resp.StatusCode, nil
}

func mapCashfreeOrderStatus(status string) Status {
	switch status {
	case "ACTIVE":
		return StatusCreated
	case "PAID":
		return StatusCompleted
	case "EXPIRED", "TERMINATED", "TERMINATION_REQUESTED":
		return StatusFailed
	default:
		return StatusCreated
	}
}
