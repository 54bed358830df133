package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PhonePeConfig holds the salt-based (legacy) PhonePe credentials.
type PhonePeConfig struct {
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	BaseURL     string // e.g. https://api-preprod.phonepe.com/apis/pg-sandbox
	RedirectURL string // customer-facing page the pay page returns to
	CallbackURL string // this system's own phonepe webhook endpoint
	WebhookUser string
	WebhookPass string
}

// PhonePeAdapter implements Gateway against the salt-signed PhonePe API.
type PhonePeAdapter struct {
	cfg        PhonePeConfig
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewPhonePeAdapter(cfg PhonePeConfig, logger *zap.SugaredLogger) *PhonePeAdapter {
	return &PhonePeAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (p *PhonePeAdapter) Name() string { return NamePhonePe }

func (p *PhonePeAdapter) checkConfig() error {
	if p.cfg.MerchantID == "" || p.cfg.SaltKey == "" {
		return &ConfigurationError{Gateway: NamePhonePe, Missing: "merchant id/salt key"}
	}
	return nil
}

// phonePeSignature is the X-VERIFY value: SHA256 over the base64 payload
// concatenated with the salt key, hex encoded, suffixed with the salt
// index. The same value signs outbound requests and authenticates inbound
// webhooks.
func phonePeSignature(payload, saltKey, saltIndex string) string {
	sum := sha256.Sum256([]byte(payload + saltKey))
	return hex.EncodeToString(sum[:]) + "###" + saltIndex
}

func (p *PhonePeAdapter) sign(payload string) string {
	return phonePeSignature(payload, p.cfg.SaltKey, p.cfg.SaltIndex)
}

// sanitizeUserID derives a merchant-user-id from the customer email by
// stripping everything that is not alphanumeric.
func sanitizeUserID(email string) string {
	var b strings.Builder
	for _, r := range email {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CreateOrder initiates a PhonePe pay-page transaction and returns the
// hosted redirect URL.
func (p *PhonePeAdapter) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := p.checkConfig(); err != nil {
		return nil, err
	}

	txnID := fmt.Sprintf("TXN_%s_%d", p.cfg.MerchantID, time.Now().UnixMilli())
	amount := ToMinorUnits(req.Amount)

	payload := map[string]interface{}{
		"merchantId":            p.cfg.MerchantID,
		"merchantTransactionId": txnID,
		"merchantUserId":        sanitizeUserID(req.Customer.Email),
		"amount":                amount,
		"redirectUrl":           fmt.Sprintf("%s?transactionId=%s", p.cfg.RedirectURL, txnID),
		"redirectMode":          "REDIRECT",
		"callbackUrl":           p.cfg.CallbackURL,
		"mobileNumber":          req.Customer.Phone,
		"paymentInstrument":     map[string]string{"type": "PAY_PAGE"},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("phonepe: marshal pay payload: %w", err)
	}
	b64 := base64.StdEncoding.EncodeToString(raw)

	body, _ := json.Marshal(map[string]string{"request": b64})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/pg/v1/pay", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("phonepe: build pay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", p.sign(b64))

	respBody, statusCode, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	var res struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    struct {
			InstrumentResponse struct {
				RedirectInfo struct {
					URL string `json:"url"`
				} `json:"redirectInfo"`
			} `json:"instrumentResponse"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &UpstreamError{Gateway: NamePhonePe, StatusCode: statusCode, Message: "unparseable pay response"}
	}

	status := StatusInitiated
	if !res.Success {
		status = StatusFailed
		p.logger.Warnw("phonepe pay not accepted", "txn_id", txnID, "code", res.Code, "message", res.Message)
	} else {
		p.logger.Infow("phonepe transaction initiated", "txn_id", txnID, "amount", amount)
	}

	return &Order{
		Gateway:     NamePhonePe,
		OrderID:     txnID,
		Amount:      amount,
		Currency:    req.Currency,
		Status:      status,
		RedirectURL: res.Data.InstrumentResponse.RedirectInfo.URL,
		MerchantID:  p.cfg.MerchantID,
	}, nil
}

// VerifyPayment for PhonePe is a server-to-server status check on the
// transaction id; the gateway exposes no client-side signature.
func (p *PhonePeAdapter) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	id := req.TransactionID
	if id == "" {
		id = req.OrderID
	}
	if id == "" {
		return nil, &ValidationError{Field: "transaction_id", Reason: "required for phonepe verification"}
	}
	return p.CheckStatus(ctx, id)
}

// CheckStatus queries the transaction status endpoint, signed the same way
// as the pay call.
func (p *PhonePeAdapter) CheckStatus(ctx context.Context, txnID string) (*VerificationResult, error) {
	if err := p.checkConfig(); err != nil {
		return nil, err
	}

	query, _ := json.Marshal(map[string]string{
		"merchantId":            p.cfg.MerchantID,
		"merchantTransactionId": txnID,
	})
	b64 := base64.StdEncoding.EncodeToString(query)

	url := fmt.Sprintf("%s/pg/v1/status/%s/%s", p.cfg.BaseURL, p.cfg.MerchantID, txnID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("phonepe: build status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", p.sign(b64))
	httpReq.Header.Set("X-MERCHANT-ID", p.cfg.MerchantID)

	respBody, statusCode, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	var res struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    struct {
			State  string `json:"state"`
			Amount int64  `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &UpstreamError{Gateway: NamePhonePe, StatusCode: statusCode, Message: "unparseable status response"}
	}
	if !res.Success && res.Data.State == "" {
		return nil, &UpstreamError{Gateway: NamePhonePe, StatusCode: statusCode, Message: res.Message}
	}

	return &VerificationResult{
		Success:   res.Data.State == "COMPLETED",
		Status:    mapPhonePeState(res.Data.State),
		Amount:    res.Data.Amount,
		Timestamp: time.Now(),
	}, nil
}

// HandleWebhook authenticates the callback in two stages: the Basic-Auth
// header against the configured webhook credentials, then the X-VERIFY
// signature over the raw JSON body. Only then is the nested base64
// response decoded and trusted.
func (p *PhonePeAdapter) HandleWebhook(body []byte, headers map[string]string) WebhookResult {
	auth := strings.TrimPrefix(headerValue(headers, "Authorization"), "Basic ")
	expectedAuth := base64.StdEncoding.EncodeToString([]byte(p.cfg.WebhookUser + ":" + p.cfg.WebhookPass))
	if p.cfg.WebhookUser == "" || auth != expectedAuth {
		p.logger.Warnw("phonepe webhook basic auth rejected")
		return WebhookResult{Valid: false}
	}

	xVerify := headerValue(headers, "X-Verify")
	if xVerify == "" || xVerify != p.sign(string(body)) {
		p.logger.Warnw("phonepe webhook x-verify mismatch")
		return WebhookResult{Valid: false}
	}

	var envelope struct {
		Response string `json:"response"`
		Data     struct {
			Response string `json:"response"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		p.logger.Errorw("phonepe webhook body unparseable", "error", err)
		return WebhookResult{Valid: false}
	}
	encoded := envelope.Data.Response
	if encoded == "" {
		encoded = envelope.Response
	}

	// The callback nests its payload base64-encoded; fall back to the raw
	// string when it arrives already decoded.
	inner := []byte(encoded)
	if decoded, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		inner = decoded
	}

	var payload struct {
		Code string `json:"code"`
		Data struct {
			MerchantTransactionID string `json:"merchantTransactionId"`
			TransactionID         string `json:"transactionId"`
			State                 string `json:"state"`
			ResponseCode          string `json:"responseCode"`
			Amount                int64  `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(inner, &payload); err != nil {
		p.logger.Errorw("phonepe webhook payload unparseable", "error", err)
		return WebhookResult{Valid: true, Processed: false}
	}

	relatedID := payload.Data.MerchantTransactionID
	if relatedID == "" {
		relatedID = payload.Data.TransactionID
	}

	return WebhookResult{
		Valid:     true,
		Processed: true,
		EventType: payload.Code,
		RelatedID: relatedID,
		Status:    mapPhonePeState(payload.Data.State),
	}
}

// Refund initiates a refund with a generated REFUND_{epochMillis} id.
func (p *PhonePeAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := p.checkConfig(); err != nil {
		return nil, err
	}

	refundID := fmt.Sprintf("REFUND_%d", time.Now().UnixMilli())
	payload := map[string]interface{}{
		"merchantId":            p.cfg.MerchantID,
		"merchantTransactionId": refundID,
		"originalTransactionId": req.PaymentID,
		"amount":                req.Amount,
		"callbackUrl":           p.cfg.CallbackURL,
	}
	raw, _ := json.Marshal(payload)
	b64 := base64.StdEncoding.EncodeToString(raw)

	body, _ := json.Marshal(map[string]string{"request": b64})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/pg/v1/refund", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("phonepe: build refund request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", p.sign(b64))

	respBody, statusCode, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	var res struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			State string `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &UpstreamError{Gateway: NamePhonePe, StatusCode: statusCode, Message: "unparseable refund response"}
	}
	if !res.Success {
		return nil, &UpstreamError{Gateway: NamePhonePe, StatusCode: statusCode, Message: res.Message}
	}

	p.logger.Infow("phonepe refund initiated", "refund_id", refundID, "original_txn_id", req.PaymentID, "amount", req.Amount)

	status := StatusInitiated
	if res.Data.State == "COMPLETED" {
		status = StatusRefunded
	}
	return &RefundResult{RefundID: refundID, Amount: req.Amount, Status: status}, nil
}

func (p *PhonePeAdapter) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, &UpstreamError{Gateway: NamePhonePe, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &UpstreamError{Gateway: NamePhonePe, StatusCode: resp.StatusCode, Message: "failed to read response"}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, resp.StatusCode, &UpstreamError{Gateway: NamePhonePe, StatusCode: resp.StatusCode, Message: string(body)}
	}
	return body, resp.StatusCode, nil
}

func mapPhonePeState(state string) Status {
	switch state {
	case "COMPLETED":
		return StatusCompleted
	case "PENDING":
		return StatusInitiated
	case "FAILED":
		return StatusFailed
	default:
		return StatusInitiated
	}
}
