package httputil

import (
	"encoding/json"
	"net/http"
)

// Machine-readable codes written by the helpers in this package.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInternal       = "internal"
)

// ErrorResponse is the body of every error reply. Code is a stable machine-readable reason;
// Error is the message shown to the user.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON encodes data as the reply body. Headers are committed before encoding, so an
// encoding failure can only be reported to the caller.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess replies 200 with data
func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, data)
}

func WriteNoContent(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorCode replies with an ErrorResponse
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// WriteBadRequest rejects a request the handler could not make sense of
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, message)
}

// WriteInternalError replies 500 without exposing the cause
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}
