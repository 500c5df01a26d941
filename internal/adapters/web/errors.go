package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"billing-ledger/internal/core"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, r, errorResponse{Error: message, Code: code}, status)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, resp errorResponse, status int) {
	resp.RequestID = requestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps a core error kind onto an HTTP status and error code.
// Anything unrecognised is logged and reported as a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *core.ValidationError
	var nf *core.NotFoundError
	switch {
	case errors.As(err, &ve):
		code := "VALIDATION_FAILED"
		if errors.Is(err, core.ErrOverpayment) {
			code = "OVERPAYMENT"
		}
		writeErrorResponse(w, r, errorResponse{Error: ve.Error(), Code: code, Field: ve.Field}, http.StatusUnprocessableEntity)
	case errors.As(err, &nf):
		writeError(w, r, nf.Error(), "NOT_FOUND", http.StatusNotFound)
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, r, "internal server error", "INTERNAL", http.StatusInternalServerError)
	}
}
