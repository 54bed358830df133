package main

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// gatewayWebhookHandler receives asynchronous callbacks from a gateway.
// It always answers 200 with the normalized result: a non-200 would make
// the gateway retry, and authentication failures are already expressed as
// {valid:false} in the body.
func (app *application) gatewayWebhookHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "gateway")

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_578)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		app.logger.Warnw("webhook body unreadable", "gateway", name, "error", err)
		body = nil
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	result := app.gateways.HandleWebhook(name, body, headers)
	if !result.Valid {
		app.logger.Warnw("webhook rejected", "gateway", name)
	}

	writeJSON(w, http.StatusOK, result)
}
