// Package health provides liveness, readiness and status endpoints.
package health

import (
	"context"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"visitproof/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

// CheckFunc reports nil when the dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Handler provides health check endpoints.
type Handler struct {
	startTime    time.Time
	environment  string
	checkTimeout time.Duration

	mu     sync.RWMutex
	checks map[string]check
}

type check struct {
	fn       CheckFunc
	optional bool
}

func New(environment string) *Handler {
	return &Handler{
		startTime:    time.Now(),
		environment:  environment,
		checkTimeout: 2 * time.Second,
		checks:       make(map[string]check),
	}
}

// RegisterCheck adds a dependency the service cannot serve without. A
// failing check makes the readiness probe return 503.
func (h *Handler) RegisterCheck(name string, fn CheckFunc) {
	h.register(name, check{fn: fn})
}

// RegisterOptionalCheck adds a dependency the service can degrade around,
// such as the catalog cache. Failures are reported but keep the probe at 200.
func (h *Handler) RegisterOptionalCheck(name string, fn CheckFunc) {
	h.register(name, check{fn: fn, optional: true})
}

func (h *Handler) register(name string, c check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

// Register mounts health check routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

// HandleLiveness returns 200 whenever the process is serving.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

// ReadinessResponse status is "ready", "degraded" (an optional check failed)
// or "not_ready".
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs the registered checks concurrently, each under its own
// timeout, so one slow dependency cannot stall the probe past checkTimeout.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		results  = make(map[string]string, len(checks))
		degraded bool
		down     bool
	)
	for name, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
			defer cancel()
			err := c.fn(ctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				results[name] = "up"
			case c.optional:
				results[name] = "degraded: " + err.Error()
				degraded = true
			default:
				results[name] = "down: " + err.Error()
				down = true
			}
		}()
	}
	wg.Wait()

	response := ReadinessResponse{Status: "ready", Checks: results}
	switch {
	case down:
		response.Status = "not_ready"
		httputil.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	case degraded:
		response.Status = "degraded"
	}
	httputil.WriteJSON(w, http.StatusOK, response)
}

type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HandleStatus returns version and uptime information.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
