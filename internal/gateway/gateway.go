package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Gateway name constants, used as the discriminator in incoming requests.
const (
	NameRazorpay = "razorpay"
	NamePhonePe  = "phonepe"
	NameCashfree = "cashfree"
)

// Status is the normalized payment lifecycle state shared by all gateways.
type Status string

const (
	StatusCreated   Status = "created"
	StatusInitiated Status = "initiated"
	StatusCaptured  Status = "captured"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Customer identifies the paying customer on a new order.
type Customer struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,inmobile"`
}

// CreateOrderRequest is the gateway-agnostic order creation request.
// Amount is in major units (rupees); adapters convert to minor units.
type CreateOrderRequest struct {
	Amount      float64  `json:"amount" validate:"required,gt=0"`
	Currency    string   `json:"currency"`
	Customer    Customer `json:"customer" validate:"required"`
	Description string   `json:"description"`
	Gateway     string   `json:"gateway" validate:"required"`
}

// Order is the unified envelope returned by every adapter after creating
// an order. Exactly one of CheckoutKey / RedirectURL is the follow-up
// action the client needs: Razorpay and Cashfree hand back a checkout
// credential, PhonePe hands back a hosted pay-page URL.
type Order struct {
	Gateway     string `json:"gateway"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"` // minor units (paise)
	Currency    string `json:"currency"`
	Status      Status `json:"status"`
	CheckoutKey string `json:"checkout_key,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	MerchantID  string `json:"merchant_id,omitempty"`
}

// VerifyRequest carries the gateway-specific proof of a completed payment:
// (OrderID, PaymentID, Signature) for Razorpay, TransactionID (or OrderID)
// for PhonePe, OrderID for Cashfree.
type VerifyRequest struct {
	Gateway       string `json:"gateway" validate:"required"`
	OrderID       string `json:"order_id,omitempty"`
	PaymentID     string `json:"payment_id,omitempty"`
	Signature     string `json:"signature,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// VerificationResult is the normalized outcome of a verification or
// status lookup.
type VerificationResult struct {
	Success   bool      `json:"success"`
	Status    Status    `json:"status"`
	Amount    int64     `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// WebhookResult is the normalized outcome of an inbound gateway callback.
// Valid reports whether the callback authenticated; Processed whether the
// event type was recognized and mapped. Unknown event types are valid but
// unprocessed, never an error.
type WebhookResult struct {
	Valid     bool   `json:"valid"`
	Processed bool   `json:"processed"`
	EventType string `json:"event_type,omitempty"`
	RelatedID string `json:"related_id,omitempty"`
	Status    Status `json:"status,omitempty"`
}

// RefundRequest asks a gateway to refund a captured payment.
// PaymentID is the gateway payment id for Razorpay/Cashfree and the
// original merchant transaction id for PhonePe. Amount is in minor units.
type RefundRequest struct {
	Gateway   string `json:"gateway" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
}

// RefundResult is the unified refund envelope.
type RefundResult struct {
	RefundID string `json:"refund_id"`
	Amount   int64  `json:"amount"`
	Status   Status `json:"status"`
}

// Gateway is the common contract every payment adapter implements.
//
// HandleWebhook never returns an error: gateways retry aggressively on
// non-200 responses, so adapters absorb their own failures into a
// {Valid:false} result and the HTTP layer can always acknowledge.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	VerifyPayment(ctx context.Context, req VerifyRequest) (*VerificationResult, error)
	CheckStatus(ctx context.Context, id string) (*VerificationResult, error)
	HandleWebhook(body []byte, headers map[string]string) WebhookResult
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// headerValue looks up a header in a case-insensitive way. Webhook headers
// arrive through different proxies with inconsistent casing.
func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	if v, ok := headers[strings.ToLower(key)]; ok {
		return v
	}
	if v, ok := headers[http.CanonicalHeaderKey(key)]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
