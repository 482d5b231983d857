package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "visitproof/pkg/domain-errors"
)

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that trim or canonicalize
// their fields before validation.
type Normalizable interface {
	Normalize()
}

// DecodeJSON decodes a single JSON object from the request body into T.
// On failure it writes a 400 response and returns nil, false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := decodeBody(r.Body, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}

func decodeBody(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return dErrors.New(dErrors.CodeBadRequest, "request body is required")
		case errors.As(err, &tooLarge):
			return dErrors.New(dErrors.CodeBadRequest, "request body is too large")
		default:
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
		}
	}
	if dec.More() {
		return dErrors.New(dErrors.CodeBadRequest, "request body must contain a single JSON object")
	}
	return nil
}

// PrepareRequest normalizes and then validates req. Plain validation errors
// are reported as validation failures.
func PrepareRequest(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	v, ok := req.(Validatable)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	if _, coded := dErrors.CodeOf(err); coded {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
}
