package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

type errorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, errorBody{
		Error:   http.StatusText(status),
		Kind:    kind,
		Message: message,
	})
}

// statusFor maps an orchestrator error kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusUnprocessableEntity
	case "no_shipping_available", "no_payment_available", "busy", "step_locked",
		"session_closed", "no_external_payment":
		return http.StatusConflict
	case "order_placement_failed", "payment_capture_failed", "webview_load_error":
		return http.StatusBadGateway
	case "payment_cancelled":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	kind := checkout.Kind(err)
	respondError(w, statusFor(kind), kind, checkout.ErrorMessage(err))
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
