package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"testing"

	"storepay/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestGatewayWebhookAlwaysAcknowledges(t *testing.T) {
	app := newTestApplication(t)
	mux := app.mount()

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_123","order_id":"order_123","amount":49900}}}}`)

	t.Run("signed callback", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/v1/webhooks/razorpay", bytes.NewReader(body))
		req.Header.Set("X-Razorpay-Signature", signBody("whsec_test", body))
		rr := executeRequest(req, mux)

		checkResponseCode(t, http.StatusOK, rr.Code)

		var result gateway.WebhookResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.True(t, result.Valid)
		assert.True(t, result.Processed)
		assert.Equal(t, "pay_123", result.RelatedID)
	})

	t.Run("bad signature is 200 with valid false", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/v1/webhooks/razorpay", bytes.NewReader(body))
		req.Header.Set("X-Razorpay-Signature", "deadbeef")
		rr := executeRequest(req, mux)

		checkResponseCode(t, http.StatusOK, rr.Code)

		var result gateway.WebhookResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.False(t, result.Valid)
	})

	t.Run("unknown gateway is 200 with valid false", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/v1/webhooks/paypal", bytes.NewReader(body))
		rr := executeRequest(req, mux)

		checkResponseCode(t, http.StatusOK, rr.Code)

		var result gateway.WebhookResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.False(t, result.Valid)
	})

	t.Run("garbage body is 200 with valid false", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/v1/webhooks/razorpay", bytes.NewReader([]byte(`]]]`)))
		rr := executeRequest(req, mux)

		checkResponseCode(t, http.StatusOK, rr.Code)

		var result gateway.WebhookResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.False(t, result.Valid)
	})
}
