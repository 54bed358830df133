package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	rzp "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"
)

// RazorpayConfig holds the Razorpay credentials. KeyID doubles as the
// publishable checkout key handed to the client.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

// RazorpayAdapter implements Gateway on top of the official Razorpay SDK.
type RazorpayAdapter struct {
	cfg    RazorpayConfig
	client *rzp.Client
	logger *zap.SugaredLogger
}

func NewRazorpayAdapter(cfg RazorpayConfig, logger *zap.SugaredLogger) *RazorpayAdapter {
	return &RazorpayAdapter{
		cfg:    cfg,
		client: rzp.NewClient(cfg.KeyID, cfg.KeySecret),
		logger: logger,
	}
}

func (a *RazorpayAdapter) Name() string { return NameRazorpay }

func (a *RazorpayAdapter) checkConfig() error {
	if a.cfg.KeyID == "" || a.cfg.KeySecret == "" {
		return &ConfigurationError{Gateway: NameRazorpay, Missing: "key id/secret"}
	}
	return nil
}

// CreateOrder creates a Razorpay order and returns the publishable key the
// client needs to open the checkout widget.
func (a *RazorpayAdapter) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := a.checkConfig(); err != nil {
		return nil, err
	}

	amount := ToMinorUnits(req.Amount)
	body := map[string]interface{}{
		"amount":   amount,
		"currency": req.Currency,
		"receipt":  "rcpt_" + uuid.NewString()[:13],
		"notes": map[string]interface{}{
			"customer_name":  req.Customer.Name,
			"customer_email": req.Customer.Email,
			"customer_phone": req.Customer.Phone,
			"description":    req.Description,
		},
	}

	result, err := a.client.Order.Create(body, nil)
	if err != nil {
		a.logger.Errorw("razorpay create order failed", "error", err)
		return nil, &UpstreamError{Gateway: NameRazorpay, Message: err.Error()}
	}

	orderID, _ := result["id"].(string)
	a.logger.Infow("razorpay order created", "order_id", orderID, "amount", amount)

	return &Order{
		Gateway:     NameRazorpay,
		OrderID:     orderID,
		Amount:      amount,
		Currency:    req.Currency,
		Status:      StatusCreated,
		CheckoutKey: a.cfg.KeyID,
	}, nil
}

// VerifyPayment checks the checkout callback signature delivered to the
// client after a successful payment.
func (a *RazorpayAdapter) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, &ValidationError{Field: "order_id/payment_id/signature", Reason: "required for razorpay verification"}
	}
	if err := a.checkConfig(); err != nil {
		return nil, err
	}

	if !a.verifySignature(req.OrderID, req.PaymentID, req.Signature) {
		a.logger.Warnw("razorpay payment signature mismatch", "order_id", req.OrderID, "payment_id", req.PaymentID)
		return nil, &SignatureMismatchError{Gateway: NameRazorpay, Context: "payment verification"}
	}

	return &VerificationResult{
		Success:   true,
		Status:    StatusCaptured,
		Timestamp: time.Now(),
	}, nil
}

// verifySignature computes HMAC-SHA256 over "{orderID}|{paymentID}" with
// the key secret and compares against the supplied hex digest. hmac.Equal
// keeps the comparison constant-time.
func (a *RazorpayAdapter) verifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(a.cfg.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CheckStatus fetches payment details from Razorpay and maps them into the
// unified result.
func (a *RazorpayAdapter) CheckStatus(ctx context.Context, paymentID string) (*VerificationResult, error) {
	if err := a.checkConfig(); err != nil {
		return nil, err
	}

	result, err := a.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		a.logger.Errorw("razorpay fetch payment failed", "payment_id", paymentID, "error", err)
		return nil, &UpstreamError{Gateway: NameRazorpay, Message: err.Error()}
	}

	upstream, _ := result["status"].(string)
	status := mapRazorpayStatus(upstream)

	res := &VerificationResult{
		Success:   status == StatusCaptured,
		Status:    status,
		Timestamp: time.Now(),
	}
	if v, ok := result["amount"].(float64); ok {
		res.Amount = int64(v)
	}
	if v, ok := result["created_at"].(float64); ok {
		res.Timestamp = time.Unix(int64(v), 0)
	}
	return res, nil
}

// HandleWebhook authenticates the X-Razorpay-Signature header (HMAC-SHA256
// over the raw JSON body, which is the canonical serialization the gateway
// signed) and normalizes the event.
func (a *RazorpayAdapter) HandleWebhook(body []byte, headers map[string]string) WebhookResult {
	sig := headerValue(headers, "X-Razorpay-Signature")
	if sig == "" || a.cfg.WebhookSecret == "" {
		a.logger.Warnw("razorpay webhook rejected", "reason", "missing signature or webhook secret")
		return WebhookResult{Valid: false}
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		a.logger.Warnw("razorpay webhook signature mismatch")
		return WebhookResult{Valid: false}
	}

	var envelope struct {
		Event   string                            `json:"event"`
		Payload map[string]map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		a.logger.Errorw("razorpay webhook body unparseable", "error", err)
		return WebhookResult{Valid: false}
	}

	result := WebhookResult{Valid: true, EventType: envelope.Event}

	payment := razorpayEntity(envelope.Payload, "payment")
	refund := razorpayEntity(envelope.Payload, "refund")
	if id, ok := payment["id"].(string); ok {
		result.RelatedID = id
	}

	switch envelope.Event {
	case "payment.authorized":
		result.Processed = true
		result.Status = StatusInitiated
	case "payment.captured":
		result.Processed = true
		result.Status = StatusCaptured
	case "payment.failed":
		result.Processed = true
		result.Status = StatusFailed
	case "refund.created":
		result.Processed = true
		result.Status = StatusRefunded
		if id, ok := refund["id"].(string); ok {
			result.RelatedID = id
		}
	default:
		// Unknown events are authentic but left unprocessed.
		a.logger.Infow("razorpay webhook event not handled", "event", envelope.Event)
	}

	return result
}

// Refund is not offered through this adapter; refunds are issued from the
// Razorpay dashboard.
func (a *RazorpayAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return nil, fmt.Errorf("razorpay: %w", ErrNotSupported)
}

func mapRazorpayStatus(status string) Status {
	switch status {
	case "created":
		return StatusCreated
	case "authorized":
		return StatusInitiated
	case "captured":
		return StatusCaptured
	case "refunded":
		return StatusRefunded
	case "failed":
		return StatusFailed
	default:
		return StatusCreated
	}
}

// razorpayEntity digs the "entity" object out of the nested webhook
// payload for the given key.
func razorpayEntity(payload map[string]map[string]interface{}, key string) map[string]interface{} {
	obj, ok := payload[key]
	if !ok {
		return map[string]interface{}{}
	}
	entity, ok := obj["entity"].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return entity
}
