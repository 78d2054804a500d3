package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// Error codes of the JSON error body.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidOrExpired   = "INVALID_OR_EXPIRED"
	CodeReuseDetected      = "REUSE_DETECTED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, errorBody{Error: e})
}

// writeError maps a service error to its status and code. Messages are
// fixed per code so that the wire never carries internal detail.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *common.ValidationError

	switch {
	case errors.As(err, &ve):
		writeAPIError(w, http.StatusBadRequest, apiError{Code: CodeValidation, Message: ve.Field + " " + ve.Message, Field: ve.Field})
	case errors.Is(err, common.ErrValidation):
		writeAPIError(w, http.StatusBadRequest, apiError{Code: CodeValidation, Message: "invalid request"})
	case errors.Is(err, common.ErrAlreadyExists):
		writeAPIError(w, http.StatusConflict, apiError{Code: CodeAlreadyExists, Message: "email is already registered", Field: "email"})
	case errors.Is(err, common.ErrInvalidCredentials):
		writeAPIError(w, http.StatusUnauthorized, apiError{Code: CodeInvalidCredentials, Message: "invalid email or password"})
	case errors.Is(err, common.ErrRefreshTokenReuseDetected):
		writeAPIError(w, http.StatusForbidden, apiError{Code: CodeReuseDetected, Message: "refresh token reuse detected"})
	case errors.Is(err, common.ErrInvalidRefreshToken), errors.Is(err, common.ErrRefreshTokenExpired):
		writeAPIError(w, http.StatusUnauthorized, apiError{Code: CodeInvalidOrExpired, Message: "invalid or expired refresh token"})
	case errors.Is(err, common.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", common.BearerScheme)
		writeAPIError(w, http.StatusUnauthorized, apiError{Code: CodeUnauthorized, Message: "could not validate credentials"})
	case errors.Is(err, common.ErrForbidden):
		writeAPIError(w, http.StatusForbidden, apiError{Code: CodeForbidden, Message: "inactive user"})
	case errors.Is(err, common.ErrTooManyAttempts):
		writeAPIError(w, http.StatusTooManyRequests, apiError{Code: CodeTooManyAttempts, Message: "too many failed login attempts"})
	case errors.Is(err, common.ErrStoreUnavailable):
		s.logger.Error(r.Context(), "store unavailable", "path", r.URL.Path, "error", err)
		writeAPIError(w, http.StatusServiceUnavailable, apiError{Code: CodeStoreUnavailable, Message: "service temporarily unavailable"})
	default:
		s.logger.Error(r.Context(), "internal error", "path", r.URL.Path, "error", err)
		writeAPIError(w, http.StatusInternalServerError, apiError{Code: CodeInternal, Message: "internal error"})
	}
}
