package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// PhonePeOAuthConfig holds the OAuth-based (current generation) PhonePe
// credentials. Deployments pick either this variant or the salt-based one.
type PhonePeOAuthConfig struct {
	ClientID      string
	ClientSecret  string
	ClientVersion string
	MerchantID    string
	AuthBaseURL   string // e.g. https://api.phonepe.com/apis/identity-manager
	BaseURL       string // e.g. https://api.phonepe.com/apis/pg
	RedirectURL   string
	WebhookUser   string
	WebhookPass   string
}

// tokenCache is the process-wide access token store, owned by one adapter
// instance. Refresh is single-flighted so concurrent cache misses trigger
// one fetch; everyone else waits on its result. The mutex is never held
// across the network call.
type tokenCache struct {
	mu        sync.Mutex
	group     singleflight.Group
	token     string
	expiresAt time.Time
}

func (c *tokenCache) get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *tokenCache) set(token string, expiresIn int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	// 60 second safety margin so a token is never used at the edge of its
	// lifetime.
	c.expiresAt = time.Now().Add(time.Duration(expiresIn-60) * time.Second)
}

// PhonePeOAuthAdapter implements Gateway against the OAuth-authenticated
// PhonePe API. Unlike the upstream pass-through behavior this variant is
// modeled on, every response is mapped into the unified envelope.
type PhonePeOAuthAdapter struct {
	cfg        PhonePeOAuthConfig
	httpClient *http.Client
	tokens     *tokenCache
	logger     *zap.SugaredLogger
}

func NewPhonePeOAuthAdapter(cfg PhonePeOAuthConfig, logger *zap.SugaredLogger) *PhonePeOAuthAdapter {
	return &PhonePeOAuthAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     &tokenCache{},
		logger:     logger,
	}
}

func (p *PhonePeOAuthAdapter) Name() string { return NamePhonePe }

func (p *PhonePeOAuthAdapter) checkConfig() error {
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		return &ConfigurationError{Gateway: NamePhonePe, Missing: "oauth client id/secret"}
	}
	return nil
}

// accessToken returns the cached token or fetches a fresh one. Concurrent
// callers within the same expiry window share a single fetch.
func (p *PhonePeOAuthAdapter) accessToken(ctx context.Context) (string, error) {
	if token, ok := p.tokens.get(); ok {
		return token, nil
	}

	v, err, _ := p.tokens.group.Do("token", func() (interface{}, error) {
		// Re-check inside the flight: a caller queued behind a finished
		// refresh should not fetch again.
		if token, ok := p.tokens.get(); ok {
			return token, nil
		}
		return p.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *PhonePeOAuthAdapter) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("client_version", p.cfg.ClientVersion)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.AuthBaseURL+"/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("phonepe: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Gateway: NamePhonePe, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{Gateway: NamePhonePe, StatusCode: resp.StatusCode, Message: string(body)}
	}

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", &UpstreamError{Gateway: NamePhonePe, StatusCode: resp.StatusCode, Message: "unparseable token response"}
	}
	if res.AccessToken == "" {
		return "", &UpstreamError{Gateway: NamePhonePe, StatusCode: resp.StatusCode, Message: "token response missing access_token"}
	}

	p.tokens.set(res.AccessToken, res.ExpiresIn)
	p.logger.Infow("phonepe oauth token refreshed", "expires_in", res.ExpiresIn)
	return res.AccessToken, nil
}

func (p *PhonePeOAuthAdapter) authedRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("phonepe: build request: %w", err)
	}
	// PhonePe's OAuth APIs use the O-Bearer authorization scheme.
	req.Header.Set("Authorization", "O-Bearer "+token)
	req.Header.Set("X-CLIENT-VERSION", p.cfg.ClientVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// CreateOrder starts a hosted checkout through the OAuth pay API.
func (p *PhonePeOAuthAdapter) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := p.checkConfig(); err != nil {
		return nil, err
	}

	orderID := fmt.Sprintf("TXN_%s_%d", p.cfg.MerchantID, time.Now().UnixMilli())
	amount := ToMinorUnits(req.Amount)

	payload, _ := json.Marshal(map[string]interface{}{
		"merchantOrderId": orderID,
		"amount":          amount,
		"metaInfo": map[string]string{
			"udf1": sanitizeUserID(req.Customer.Email),
			"udf2": req.Description,
		},
		"paymentFlow": map[string]interface{}{
			"type": "PG_CHECKOUT",
			"merchantUrls": map[string]string{
				"redirectUrl": fmt.Sprintf("%s?transactionId=%s", p.cfg.RedirectURL, orderID),
			},
		},
	})

	httpReq, err := p.authedRequest(ctx, http.MethodPost, p.cfg.BaseURL+"/checkout/v2/pay", payload)
	if err != nil {
		return nil, err
	}

	respBody, statusCode, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	var res struct {
		State       string `json:"state"`
		RedirectURL string `json:"redirectUrl"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &UpstreamError{Gateway: NamePhonePe, StatusCode: statusCode, Message: "unparseable pay response"}
	}

	p.logger.Infow("phonepe order created", "order_id", orderID, "state", res.State)

	return &Order{
		Gateway:     NamePhonePe,
		OrderID:     orderID,
		Amount:      amount,
		Currency:    req.Currency,
		Status:      mapPhonePeState(res.State),
		RedirectURL: res.RedirectURL,
		MerchantID:  p.cfg.MerchantID,
	}, nil
}

func (p *PhonePeOAuthAdapter) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	id := req.TransactionID
	if id == "" {
		id = req.OrderID
	}
	if id == "" {
		return nil, &ValidationError{Field: "transaction_id", Reason: "required for phonepe verification"}
	}
	return p.CheckStatus(ctx, id)
}

// CheckStatus looks up the merchant order status.
func (p *PhonePeOAuthAdapter) CheckStatus(ctx context.Context, orderID string) (*VerificationResult, error) {
	if err := p.checkConfig(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/checkout/v2/order/%s/status", p.cfg.BaseURL, orderID)
	httpReq, err := p.authedRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	respBody, statusCode, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	var res struct {
		State  string `json:"state"`
		Amount int64  `json:"amount"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &UpstreamError{Gateway: NamePhonePe, StatusCode: statusCode, Message: "unparseable status response"}
	}

	return &VerificationResult{
		Success:   res.State == "COMPLETED",
		Status:    mapPhonePeState(res.State),
		Amount:    res.Amount,
		Timestamp: time.Now(),
	}, nil
}

// HandleWebhook verifies the Authorization header against
// SHA256("{user}:{pass}") when webhook credentials are configured. The
// upstream API offers no payload signature in this mode; running without
// credentials accepts callbacks unauthenticated and is logged loudly.
func (p *PhonePeOAuthAdapter) HandleWebhook(body []byte, headers map[string]string) WebhookResult {
	if p.cfg.WebhookUser != "" {
		sum := sha256.Sum256([]byte(p.cfg.WebhookUser + ":" + p.cfg.WebhookPass))
		expected := hex.EncodeToString(sum[:])
		if !strings.EqualFold(headerValue(headers, "Authorization"), expected) {
			p.logger.Warnw("phonepe webhook authorization rejected")
			return WebhookResult{Valid: false}
		}
	} else {
		p.logger.Warnw("phonepe webhook accepted without verification", "reason", "webhook credentials not configured")
	}

	var envelope struct {
		Event   string `json:"event"`
		Type    string `json:"type"`
		Payload struct {
			MerchantOrderID string `json:"merchantOrderId"`
			OrderID         string `json:"orderId"`
			State           string `json:"state"`
		} `json:"payload"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		p.logger.Errorw("phonepe webhook body unparseable", "error", err)
		return WebhookResult{Valid: false}
	}

	eventType := envelope.Event
	if eventType == "" {
		eventType = envelope.Type
	}

	// Nothing recognizable in the payload: authenticated but unprocessed.
	if envelope.Payload.State == "" && len(envelope.Data) == 0 {
		return WebhookResult{Valid: true, Processed: false, EventType: eventType}
	}

	relatedID := envelope.Payload.MerchantOrderID
	if relatedID == "" {
		relatedID = envelope.Payload.OrderID
	}

	return WebhookResult{
		Valid:     true,
		Processed: envelope.Payload.State != "",
		EventType: eventType,
		RelatedID: relatedID,
		Status:    mapPhonePeState(envelope.Payload.State),
	}
}

// Refund issues a refund against the original merchant order.
func (p *PhonePeOAuthAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := p.checkConfig(); err != nil {
		return nil, err
	}

	refundID := fmt.Sprintf("REFUND_%d", time.Now().UnixMilli())
	payload, _ := json.Marshal(map[string]interface{}{
		"merchantRefundId":        refundID,
		"originalMerchantOrderId": req.PaymentID,
		"amount":                  req.Amount,
	})

	httpReq, err := p.authedRequest(ctx, http.MethodPost, p.cfg.BaseURL+"/payments/v2/refund", payload)
	if err != nil {
		return nil, err
	}

	respBody, statusCode, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	var res struct {
		RefundID string `json:"refundId"`
		State    string `json:"state"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, &UpstreamError{Gateway: NamePhonePe, StatusCode: statusCode, Message: "unparseable refund response"}
	}

	p.logger.Infow("phonepe refund initiated", "refund_id", refundID, "original_order_id", req.PaymentID)

	status := StatusInitiated
	if res.State == "COMPLETED" {
		status = StatusRefunded
	}
	return &RefundResult{RefundID: refundID, Amount: req.Amount, Status: status}, nil
}

func (p *PhonePeOAuthAdapter) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, &UpstreamError{Gateway: NamePhonePe, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &UpstreamError{Gateway: NamePhonePe, StatusCode: resp.StatusCode, Message: "failed to read response"}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, &UpstreamError{Gateway: NamePhonePe, StatusCode: resp.StatusCode, Message: string(body)}
	}
	return body, resp.StatusCode, nil
}
