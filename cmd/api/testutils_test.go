package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storepay/internal/gateway"
	"storepay/internal/ratelimiter"

	"go.uber.org/zap"
)

func newTestApplication(t *testing.T) *application {
	t.Helper()

	logger := zap.NewNop().Sugar()

	router := gateway.NewRouter(logger)
	router.Register(gateway.NewRazorpayAdapter(gateway.RazorpayConfig{
		KeyID:         "rzp_test_key",
		KeySecret:     "s3cr3t",
		WebhookSecret: "whsec_test",
	}, logger))

	return &application{
		config: config{
			addr: ":8080",
			env:  "test",
			auth: authConfig{basic: basicConfig{user: "admin", pass: "admin"}},
			rateLimiter: rateLimiterConfig{
				requestsPerTimeFrame: 100,
				timeFrame:            time.Second * 5,
				enabled:              false,
			},
		},
		logger:      logger,
		gateways:    router,
		rateLimiter: ratelimiter.NewFixedWindowLimiter(100, time.Second*5),
	}
}

func executeRequest(req *http.Request, mux http.Handler) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func checkResponseCode(t *testing.T, expected, actual int) {
	t.Helper()
	if expected != actual {
		t.Errorf("expected response code %d, got %d", expected, actual)
	}
}
