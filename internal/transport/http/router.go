package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visitproof/pkg/platform/middleware/metadata"
	"visitproof/pkg/platform/middleware/request"
)

// Registrar mounts a bounded context's routes.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries everything the public router needs. Metrics and
// MetricsHandler are optional.
type RouterConfig struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	Metrics        *request.Metrics
	MetricsHandler http.Handler
	Health         Registrar
	Routes         []Registrar
}

// NewRouter wires the middleware chain shared by every endpoint and mounts
// the health probes, /metrics and the domain routes. The handlers stay thin
// and delegate to services.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(cfg.Logger))
	r.Use(request.LatencyMiddleware(cfg.Metrics, routePattern))

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(request.Timeout(cfg.RequestTimeout))
		}
		for _, routes := range cfg.Routes {
			routes.Register(r)
		}
	})
	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
