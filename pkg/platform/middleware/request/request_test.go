package request

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitproof/pkg/requestcontext"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	t.Run("keeps valid client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "scan-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, "scan-123", seen)
		assert.Equal(t, "scan-123", w.Header().Get("X-Request-ID"))
	})

	t.Run("replaces injected id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "bad\nid")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.NotEqual(t, "bad\nid", seen)
		assert.Len(t, seen, 36)
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("a", MaxRequestIDLength+1))
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Len(t, seen, 36)
	})
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, internalErrorBody, w.Body.String())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	serve := func(path string, status int) map[string]any {
		buf.Reset()
		h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req = req.WithContext(requestcontext.WithRequestID(req.Context(), "req-1"))
		h.ServeHTTP(httptest.NewRecorder(), req)
		if buf.Len() == 0 {
			return nil
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		return entry
	}

	t.Run("client error logs at warn", func(t *testing.T) {
		entry := serve("/stamps/collect", http.StatusForbidden)
		require.NotNil(t, entry)
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "req-1", entry["request_id"])
		assert.EqualValues(t, http.StatusForbidden, entry["status"])
	})

	t.Run("server error logs at error", func(t *testing.T) {
		entry := serve("/stamps/collect", http.StatusInternalServerError)
		require.NotNil(t, entry)
		assert.Equal(t, "ERROR", entry["level"])
	})

	t.Run("healthy probe is not logged", func(t *testing.T) {
		assert.Nil(t, serve("/health/live", http.StatusOK))
	})
}

func TestTimeout(t *testing.T) {
	h := Timeout(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, timeoutBody, w.Body.String())
}

func TestContentTypeJSON(t *testing.T) {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name        string
		contentType string
		want        int
	}{
		{"json", "application/json", http.StatusNoContent},
		{"json with charset", "application/json; charset=utf-8", http.StatusNoContent},
		{"missing", "", http.StatusNoContent},
		{"form", "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestLatencyMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer(reg)
	h := LatencyMiddleware(m, func(*http.Request) string { return "/stamps/collect" })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/stamps/collect", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m.EndpointLatency))
	count, err := testutil.GatherAndCount(reg, "visitproof_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	t.Run("nil metrics passes through", func(t *testing.T) {
		called := false
		LatencyMiddleware(nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })).
			ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.True(t, called)
	})
}
