// Package httpjson centralizes JSON request/response handling so handlers
// stay thin and error envelopes stay consistent.
package httpjson

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "github.com/pep-dortmund/member-database/pkg/domain-errors"
)

// Write encodes a response with the given status.
func Write(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// best-effort fallback; don't override status for the caller
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// Decode parses a JSON request body into T.
func Decode[T any](r *http.Request) (*T, error) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return &req, nil
}

// WriteError maps a domain error to an HTTP status and a JSON envelope.
// Invalid tokens deliberately collapse into a generic not-found response so
// the reply does not reveal whether a token was malformed, forged, or minted
// for a different purpose.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	msg := "internal error"

	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		code = domainErr.Code
		msg = domainErr.Message
	}

	if code == dErrors.CodeInvalidToken {
		code = dErrors.CodeNotFound
		msg = "not found"
	}

	Write(w, statusFor(code), map[string]string{
		"error":             string(code),
		"error_description": msg,
	})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeValidation, dErrors.CodeConfiguration:
		return http.StatusUnprocessableEntity
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeRegistrationClosed:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
