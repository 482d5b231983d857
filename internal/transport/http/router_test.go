package httptransport

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitproof/internal/platform/health"
	"visitproof/pkg/platform/httputil"
	"visitproof/pkg/requestcontext"
	"visitproof/pkg/testutil"
)

type echoRoutes struct{}

func (echoRoutes) Register(r chi.Router) {
	r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"request_id": requestcontext.RequestID(r.Context()),
			"device":     requestcontext.Device(r.Context()),
		})
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func newTestRouter() http.Handler {
	return NewRouter(RouterConfig{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		MetricsHandler: http.NotFoundHandler(),
		Health:         health.New("test"),
		Routes:         []Registrar{echoRoutes{}},
	})
}

func TestNewRouter(t *testing.T) {
	router := newTestRouter()

	t.Run("request id is propagated", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodGet, "/echo", nil)
		req.Header.Set("X-Request-ID", "req-123")
		req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")

		rr := testutil.DoRequest(router, req)

		require.Equal(t, http.StatusOK, rr.Code)
		body := testutil.UnmarshalJSONMap(t, rr)
		assert.Equal(t, "req-123", body["request_id"])
		assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
		assert.NotEmpty(t, body["device"])
	})

	t.Run("health probes are mounted", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("panics become 500", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
