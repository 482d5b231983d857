package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "visitproof/pkg/domain-errors"
)

// ErrorResponse is the common error body. Details carries the domain message,
// never the wrapped infrastructure error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// InternalErrorDetails is the fixed details text of every internal error body.
const InternalErrorDetails = "An unexpected error occurred, please retry"

// WriteError centralizes domain error translation to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWithDetails(w, err, InternalErrorDetails)
}

// WriteErrorWithDetails is WriteError with a caller-chosen details text for
// internal errors. Internal messages describe which dependency failed, so
// callers only ever see internalDetails.
func WriteErrorWithDetails(w http.ResponseWriter, err error, internalDetails string) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) && domainErr.Code != dErrors.CodeInternal {
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), ErrorResponse{
			Error:   DomainCodeToHTTPCode(domainErr.Code),
			Details: domainErr.Message,
		})
		return
	}

	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   DomainCodeToHTTPCode(dErrors.CodeInternal),
		Details: internalDetails,
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the "error" field of JSON responses.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest:
		return "bad_request"
	case dErrors.CodeValidation:
		return "validation_error"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeTimeout:
		return "timeout"
	case dErrors.CodeUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}
