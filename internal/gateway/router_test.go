package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeGateway records calls so tests can assert the router never reaches
// an adapter on invalid input.
type fakeGateway struct {
	name         string
	createCalls  int
	webhookCalls int
	panicWebhook bool
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	f.createCalls++
	return &Order{Gateway: f.name, OrderID: "fake_order", Amount: ToMinorUnits(req.Amount), Currency: req.Currency, Status: StatusCreated}, nil
}

func (f *fakeGateway) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	return &VerificationResult{Success: true, Status: StatusCaptured}, nil
}

func (f *fakeGateway) CheckStatus(ctx context.Context, id string) (*VerificationResult, error) {
	return &VerificationResult{Success: true, Status: StatusCompleted}, nil
}

func (f *fakeGateway) HandleWebhook(body []byte, headers map[string]string) WebhookResult {
	f.webhookCalls++
	if f.panicWebhook {
		panic("boom")
	}
	return WebhookResult{Valid: true, Processed: true}
}

func (f *fakeGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return &RefundResult{RefundID: "fake_refund", Amount: req.Amount, Status: StatusRefunded}, nil
}

func newTestRouter(gateways ...Gateway) *Router {
	rt := NewRouter(zap.NewNop().Sugar())
	for _, gw := range gateways {
		rt.Register(gw)
	}
	return rt
}

func TestRouterRejectsUnsupportedGateway(t *testing.T) {
	fake := &fakeGateway{name: NameRazorpay}
	rt := newTestRouter(fake)

	_, err := rt.CreateOrder(context.Background(), CreateOrderRequest{Gateway: "paypal", Amount: 100})
	require.Error(t, err)

	var unsupported *UnsupportedGatewayError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "paypal", unsupported.Gateway)
	assert.Zero(t, fake.createCalls, "no adapter should be called for an unknown gateway")
}

func TestRouterRejectsNonPositiveAmount(t *testing.T) {
	fake := &fakeGateway{name: NameRazorpay}
	rt := newTestRouter(fake)

	for _, amount := range []float64{0, -1} {
		_, err := rt.CreateOrder(context.Background(), CreateOrderRequest{Gateway: NameRazorpay, Amount: amount})
		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
	}
	assert.Zero(t, fake.createCalls)
}

func TestRouterDispatchesByDiscriminator(t *testing.T) {
	razorpay := &fakeGateway{name: NameRazorpay}
	phonepe := &fakeGateway{name: NamePhonePe}
	rt := newTestRouter(razorpay, phonepe)

	order, err := rt.CreateOrder(context.Background(), CreateOrderRequest{Gateway: NamePhonePe, Amount: 499, Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, NamePhonePe, order.Gateway)
	assert.Equal(t, 1, phonepe.createCalls)
	assert.Zero(t, razorpay.createCalls)
}

func TestRouterCheckStatusRequiresID(t *testing.T) {
	rt := newTestRouter(&fakeGateway{name: NameCashfree})

	_, err := rt.CheckStatus(context.Background(), NameCashfree, "")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestRouterWebhookUnknownGatewayIsInvalidNotError(t *testing.T) {
	rt := newTestRouter()

	result := rt.HandleWebhook("paypal", []byte(`{}`), nil)
	assert.False(t, result.Valid)
}

func TestRouterWebhookAbsorbsPanics(t *testing.T) {
	fake := &fakeGateway{name: NameRazorpay, panicWebhook: true}
	rt := newTestRouter(fake)

	assert.NotPanics(t, func() {
		result := rt.HandleWebhook(NameRazorpay, []byte(`{}`), nil)
		assert.False(t, result.Valid)
	})
	assert.Equal(t, 1, fake.webhookCalls)
}
