package api

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorCode identifies a class of API error
type ErrorCode string

const (
	ErrCodeBadRequest       ErrorCode = "bad_request"
	ErrCodeUnauthorized     ErrorCode = "unauthorized"
	ErrCodeNotFound         ErrorCode = "not_found"
	ErrCodeMethodNotAllowed ErrorCode = "method_not_allowed"
	ErrCodeRateLimit        ErrorCode = "rate_limited"
	ErrCodeInternal         ErrorCode = "internal_error"
)

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Status  string    `json:"status"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// WriteError writes an error response and logs server-side failures
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code ErrorCode, message string) {
	if statusCode >= 500 {
		log.Error().
			Str("request_id", GetRequestID(r)).
			Str("path", r.URL.Path).
			Str("code", string(code)).
			Str("message", message).
			Msg("Request failed")
	}

	WriteJSON(w, statusCode, ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

// BadRequest writes a 400 response
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized writes a 401 response
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// NotFound writes a 404 response
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, ErrCodeNotFound, message)
}

// MethodNotAllowed writes a 405 response
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
}

// InternalError writes a 500 response
func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, message)
}
