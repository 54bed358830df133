package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPhonePeOAuth(baseURL string) *PhonePeOAuthAdapter {
	return NewPhonePeOAuthAdapter(PhonePeOAuthConfig{
		ClientID:      "client_1",
		ClientSecret:  "secret_1",
		ClientVersion: "1",
		MerchantID:    "M1",
		AuthBaseURL:   baseURL,
		BaseURL:       baseURL,
		RedirectURL:   "https://shop.example.com/payment/status",
		WebhookUser:   "hookuser",
		WebhookPass:   "hookpass",
	}, zap.NewNop().Sugar())
}

func TestPhonePeOAuthTokenSingleFlight(t *testing.T) {
	var fetches atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_1", r.PostForm.Get("client_id"))
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		fetches.Add(1)
		time.Sleep(20 * time.Millisecond) // widen the race window
		writeTestJSON(w, map[string]interface{}{"access_token": "tok_1", "expires_in": 3600})
	}))
	defer srv.Close()

	a := newTestPhonePeOAuth(srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := a.accessToken(t.Context())
			assert.NoError(t, err)
			assert.Equal(t, "tok_1", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), fetches.Load(), "concurrent cache misses must share one fetch")

	// A call before expiry reuses the cached token without a network call.
	token, err := a.accessToken(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "tok_1", token)
	assert.Equal(t, int64(1), fetches.Load())
}

func TestPhonePeOAuthTokenRefreshAfterExpiry(t *testing.T) {
	var fetches atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		writeTestJSON(w, map[string]interface{}{"access_token": "tok_1", "expires_in": 3600})
	}))
	defer srv.Close()

	a := newTestPhonePeOAuth(srv.URL)

	_, err := a.accessToken(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(1), fetches.Load())

	// Force the cached token past its expiry.
	a.tokens.mu.Lock()
	a.tokens.expiresAt = time.Now().Add(-time.Second)
	a.tokens.mu.Unlock()

	_, err = a.accessToken(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetches.Load())
}

func TestPhonePeOAuthTokenExpiryMargin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, map[string]interface{}{"access_token": "tok_1", "expires_in": 3600})
	}))
	defer srv.Close()

	a := newTestPhonePeOAuth(srv.URL)
	before := time.Now()
	_, err := a.accessToken(t.Context())
	require.NoError(t, err)

	a.tokens.mu.Lock()
	expiresAt := a.tokens.expiresAt
	a.tokens.mu.Unlock()

	// Expiry is expires_in minus the 60 second safety margin.
	assert.WithinDuration(t, before.Add(3540*time.Second), expiresAt, 2*time.Second)
}

func TestPhonePeOAuthTokenFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := newTestPhonePeOAuth(srv.URL)
	_, err := a.accessToken(t.Context())
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
}

func TestPhonePeOAuthCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth/token":
			writeTestJSON(w, map[string]interface{}{"access_token": "tok_1", "expires_in": 3600})
		case "/checkout/v2/pay":
			assert.Equal(t, "O-Bearer tok_1", r.Header.Get("Authorization"))
			assert.Equal(t, "1", r.Header.Get("X-CLIENT-VERSION"))
			writeTestJSON(w, map[string]interface{}{
				"state":       "PENDING",
				"redirectUrl": "https://mercury.phonepe.com/transact/abc",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := newTestPhonePeOAuth(srv.URL)
	order, err := a.CreateOrder(t.Context(), CreateOrderRequest{
		Gateway:  NamePhonePe,
		Amount:   499,
		Currency: "INR",
		Customer: Customer{Name: "Asha", Email: "asha@example.com", Phone: "9876543210"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInitiated, order.Status)
	assert.Equal(t, int64(49900), order.Amount)
	assert.Equal(t, "https://mercury.phonepe.com/transact/abc", order.RedirectURL)
	assert.True(t, strings.HasPrefix(order.OrderID, "TXN_M1_"))
}

func TestPhonePeOAuthCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth/token":
			writeTestJSON(w, map[string]interface{}{"access_token": "tok_1", "expires_in": 3600})
		case "/checkout/v2/order/TXN_M1_42/status":
			assert.Equal(t, "O-Bearer tok_1", r.Header.Get("Authorization"))
			writeTestJSON(w, map[string]interface{}{"state": "COMPLETED", "amount": 49900})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := newTestPhonePeOAuth(srv.URL)
	result, err := a.CheckStatus(t.Context(), "TXN_M1_42")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, int64(49900), result.Amount)
}

func TestPhonePeOAuthWebhook(t *testing.T) {
	a := newTestPhonePeOAuth("http://unused")

	validAuth := sha256Hex("hookuser:hookpass")
	body := []byte(`{"event":"checkout.order.completed","payload":{"merchantOrderId":"TXN_M1_42","state":"COMPLETED"}}`)

	t.Run("authorized callback", func(t *testing.T) {
		result := a.HandleWebhook(body, map[string]string{"Authorization": validAuth})
		assert.True(t, result.Valid)
		assert.True(t, result.Processed)
		assert.Equal(t, "checkout.order.completed", result.EventType)
		assert.Equal(t, "TXN_M1_42", result.RelatedID)
		assert.Equal(t, StatusCompleted, result.Status)
	})

	t.Run("wrong authorization hash", func(t *testing.T) {
		result := a.HandleWebhook(body, map[string]string{"Authorization": sha256Hex("hookuser:wrong")})
		assert.False(t, result.Valid)
	})

	t.Run("missing authorization", func(t *testing.T) {
		result := a.HandleWebhook(body, nil)
		assert.False(t, result.Valid)
	})

	t.Run("payload without data is unprocessed", func(t *testing.T) {
		result := a.HandleWebhook([]byte(`{"event":"pg.order.failed"}`), map[string]string{"Authorization": validAuth})
		assert.True(t, result.Valid)
		assert.False(t, result.Processed)
	})

	t.Run("malformed body never panics", func(t *testing.T) {
		assert.NotPanics(t, func() {
			result := a.HandleWebhook([]byte(`not json`), map[string]string{"Authorization": validAuth})
			assert.False(t, result.Valid)
		})
	})

	t.Run("unconfigured credentials accept but do not process garbage", func(t *testing.T) {
		open := NewPhonePeOAuthAdapter(PhonePeOAuthConfig{ClientID: "c", ClientSecret: "s"}, zap.NewNop().Sugar())
		result := open.HandleWebhook([]byte(`{"event":"x"}`), nil)
		assert.True(t, result.Valid)
		assert.False(t, result.Processed)
	})
}
