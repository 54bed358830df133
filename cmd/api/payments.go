package main

import (
	"net/http"

	"storepay/internal/gateway"

	"github.com/go-chi/chi/v5"
)

func (app *application) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var payload gateway.CreateOrderRequest
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if payload.Currency == "" {
		payload.Currency = "INR"
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	order, err := app.gateways.CreateOrder(r.Context(), payload)
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, order); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) verifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var payload gateway.VerifyRequest
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	result, err := app.gateways.VerifyPayment(r.Context(), payload)
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, result); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) paymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "gateway")
	id := chi.URLParam(r, "id")

	result, err := app.gateways.CheckStatus(r.Context(), name, id)
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, result); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) refundHandler(w http.ResponseWriter, r *http.Request) {
	var payload gateway.RefundRequest
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	result, err := app.gateways.Refund(r.Context(), payload)
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, result); err != nil {
		app.internalServerError(w, r, err)
	}
}
