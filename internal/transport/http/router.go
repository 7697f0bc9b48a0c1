// Package httptransport assembles the HTTP surface: the field endpoints
// guards hit from devices, the token-guarded reporting endpoints, and the
// operational routes.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil/internal/platform/metrics"
	"vigil/internal/platform/middleware"
)

const (
	requestTimeout = 30 * time.Second
	healthTimeout  = 2 * time.Second
)

// Registrar mounts one domain handler's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one backing dependency for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps carries everything the router needs from main.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	JWT     middleware.JWTValidator

	// Field handlers authenticate per call (site code + national ID + PIN)
	// and are reachable without a bearer token.
	Field []Registrar
	// Reporting handlers require an operator token.
	Reporting []Registrar

	Health []HealthCheck
}

// NewRouter wires the middleware stack and mounts every handler group.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.LatencyMiddleware(d.Metrics))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", healthHandler(d.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		for _, h := range d.Field {
			h.Register(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.JWT, d.Logger))
		for _, h := range d.Reporting {
			h.Register(r)
		}
	})

	return r
}

// healthHandler reports each dependency's probe result. Any failure turns
// the endpoint 503 so orchestrators stop routing traffic here.
func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				deps[hc.Name] = err.Error()
				continue
			}
			deps[hc.Name] = "ok"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
