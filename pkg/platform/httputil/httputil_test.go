package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "visitproof/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("domain error carries details", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeConflict, "already collected"))

		require.Equal(t, http.StatusConflict, w.Code)
		var body ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "conflict", body.Error)
		assert.Equal(t, "already collected", body.Details)
	})

	t.Run("internal domain error hides its message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeInternal, "failed to record credential"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "record credential")
		assert.NotContains(t, w.Body.String(), "refused")
		assert.JSONEq(t, `{"error":"internal_error","details":"`+InternalErrorDetails+`"}`, w.Body.String())
	})

	t.Run("internal error details can be chosen by the caller", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteErrorWithDetails(w, errors.New("timeout"), "Failed to record credential, please retry")

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"internal_error","details":"Failed to record credential, please retry"}`, w.Body.String())
	})

	t.Run("unexpected error hides cause", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("pq: connection reset by peer"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
		assert.Contains(t, w.Body.String(), "internal_error")
	})
}

func TestDomainCodeToHTTPStatus(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeNotFound:     http.StatusNotFound,
		dErrors.CodeValidation:   http.StatusBadRequest,
		dErrors.CodeForbidden:    http.StatusForbidden,
		dErrors.CodeTimeout:      http.StatusGatewayTimeout,
		dErrors.CodeUnavailable:  http.StatusServiceUnavailable,
		dErrors.CodeUnauthorized: http.StatusUnauthorized,
		dErrors.Code("unknown"):  http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, DomainCodeToHTTPStatus(code), string(code))
	}
}

type sampleRequest struct {
	Name string `json:"name"`
}

func (r *sampleRequest) Normalize() { r.Name = strings.TrimSpace(r.Name) }

func (r *sampleRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func TestPrepareRequest(t *testing.T) {
	t.Run("normalizes before validating", func(t *testing.T) {
		req := &sampleRequest{Name: "  L1  "}

		require.NoError(t, PrepareRequest(req))
		assert.Equal(t, "L1", req.Name)
	})

	t.Run("plain validation error becomes a validation code", func(t *testing.T) {
		err := PrepareRequest(&sampleRequest{Name: "   "})

		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("types without hooks pass", func(t *testing.T) {
		require.NoError(t, PrepareRequest(&struct{}{}))
	})
}

func TestDecodeJSON(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		name    string
		body    string
		details string
	}{
		{"empty body", ``, "request body is required"},
		{"malformed", `{"name":`, "invalid request body"},
		{"two objects", `{"name":"a"}{"name":"b"}`, "request body must contain a single JSON object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			_, ok := DecodeJSON[sampleRequest](w, r, logger, r.Context(), "req-1")
			require.False(t, ok)
			require.Equal(t, http.StatusBadRequest, w.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tc.details, body.Details)
		})
	}

	t.Run("oversized body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`"}`))
		w := httptest.NewRecorder()
		r.Body = http.MaxBytesReader(w, r.Body, 16)

		_, ok := DecodeJSON[sampleRequest](w, r, logger, r.Context(), "req-1")
		require.False(t, ok)
		assert.Contains(t, w.Body.String(), "too large")
	})
}
