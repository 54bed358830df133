package main

import (
	"errors"
	"net/http"

	"storepay/internal/gateway"
)

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("internal error", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	writeJSONError(w, http.StatusInternalServerError, "the server encountered a problem")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("bad request", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized basic error", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter string) {
	app.logger.Warnw("rate limit exceeded", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
	w.Header().Set("Retry-After", retryAfter)
	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry after: "+retryAfter)
}

// gatewayErrorResponse maps the gateway error taxonomy onto HTTP statuses:
// caller mistakes are 4xx, upstream failures are 502, missing credentials
// fail the specific operation with 503 instead of crashing the process.
func (app *application) gatewayErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr  *gateway.ValidationError
		unsupportedErr *gateway.UnsupportedGatewayError
		signatureErr   *gateway.SignatureMismatchError
		upstreamErr    *gateway.UpstreamError
		configErr      *gateway.ConfigurationError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &unsupportedErr):
		app.badRequestResponse(w, r, err)
	case errors.As(err, &signatureErr):
		app.logger.Warnw("signature mismatch", "path", r.URL.Path, "error", err.Error())
		writeJSONError(w, http.StatusBadRequest, "payment verification failed")
	case errors.As(err, &upstreamErr):
		app.logger.Errorw("upstream gateway failure", "path", r.URL.Path, "error", err.Error())
		writeJSONError(w, http.StatusBadGateway, "payment gateway is unavailable")
	case errors.As(err, &configErr):
		app.logger.Errorw("gateway misconfigured", "path", r.URL.Path, "error", err.Error())
		writeJSONError(w, http.StatusServiceUnavailable, "payment gateway is not configured")
	case errors.Is(err, gateway.ErrNotSupported):
		writeJSONError(w, http.StatusNotImplemented, err.Error())
	default:
		app.internalServerError(w, r, err)
	}
}
