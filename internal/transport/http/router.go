// Package httptransport assembles the service's HTTP surface: the auth-link
// endpoints plus health and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"linkgate/internal/linktoken/handler"
	"linkgate/internal/platform/metrics"
	"linkgate/internal/platform/middleware"
	"linkgate/pkg/platform/httputil"
)

// HealthCheck probes one backing dependency for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewRouter wires middleware, the auth endpoints, and the operational routes.
func NewRouter(h *handler.Handler, logger *slog.Logger, m *metrics.Metrics, checks ...HealthCheck) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(m))

	h.Register(r)

	r.Get("/healthz", handleHealth(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func handleHealth(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				deps[c.Name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[c.Name] = "ok"
		}

		httputil.WriteJSON(w, status, map[string]any{
			"status":       healthWord(status),
			"dependencies": deps,
		})
	}
}

func healthWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
