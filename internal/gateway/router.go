package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Router dispatches generic payment requests to the adapter named by the
// request's gateway discriminator. It owns no state beyond the registry
// and is the only coupling point between adapters and the HTTP layer.
type Router struct {
	gateways map[string]Gateway
	logger   *zap.SugaredLogger
}

func NewRouter(logger *zap.SugaredLogger) *Router {
	return &Router{
		gateways: make(map[string]Gateway),
		logger:   logger,
	}
}

// Register adds an adapter under its own name. Registration happens once
// at startup; the map is read-only afterwards.
func (rt *Router) Register(gw Gateway) {
	rt.gateways[gw.Name()] = gw
}

// Resolve returns the adapter for the given name or an
// UnsupportedGatewayError. Unknown names are rejected here, before any
// adapter is called.
func (rt *Router) Resolve(name string) (Gateway, error) {
	gw, ok := rt.gateways[name]
	if !ok {
		return nil, &UnsupportedGatewayError{Gateway: name}
	}
	return gw, nil
}

func (rt *Router) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	gw, err := rt.Resolve(req.Gateway)
	if err != nil {
		return nil, err
	}
	return gw.CreateOrder(ctx, req)
}

func (rt *Router) VerifyPayment(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	gw, err := rt.Resolve(req.Gateway)
	if err != nil {
		return nil, err
	}
	return gw.VerifyPayment(ctx, req)
}

func (rt *Router) CheckStatus(ctx context.Context, name, id string) (*VerificationResult, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	gw, err := rt.Resolve(name)
	if err != nil {
		return nil, err
	}
	return gw.CheckStatus(ctx, id)
}

func (rt *Router) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	gw, err := rt.Resolve(req.Gateway)
	if err != nil {
		return nil, err
	}
	return gw.Refund(ctx, req)
}

// HandleWebhook dispatches an inbound callback and always yields a result.
// Failures, including a panicking adapter, are logged and folded into
// {Valid:false} so the webhook endpoint can unconditionally acknowledge
// with a 200 and stop the gateway's retry storm.
func (rt *Router) HandleWebhook(name string, body []byte, headers map[string]string) (result WebhookResult) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.logger.Errorw("webhook handler panicked", "gateway", name, "panic", fmt.Sprint(rec))
			result = WebhookResult{Valid: false}
		}
	}()

	gw, err := rt.Resolve(name)
	if err != nil {
		rt.logger.Warnw("webhook for unknown gateway", "gateway", name)
		return WebhookResult{Valid: false}
	}
	return gw.HandleWebhook(body, headers)
}
