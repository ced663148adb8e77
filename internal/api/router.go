package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds all component checks run by GET /health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(s.instrument)
	r.Use(s.recoverPanics)
	r.Use(s.cors)
	r.Use(limitBody)
	r.Use(middleware.StripSlashes)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, ErrCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Prometheus exposition
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)

			r.Route("/{userID}", func(r chi.Router) {
				r.Get("/", s.handleGetUser)
				r.Put("/", s.handleUpdateUser)
				r.Patch("/", s.handleUpdateUser)
				r.Delete("/", s.handleDeleteUser)
			})
		})

		r.Route("/houses", func(r chi.Router) {
			r.Get("/", s.handleListHouses)
			r.Post("/", s.handleCreateHouse)

			r.Route("/{houseID}", func(r chi.Router) {
				r.Get("/", s.handleGetHouse)
				r.Put("/", s.handleUpdateHouse)
				r.Patch("/", s.handleUpdateHouse)
				r.Delete("/", s.handleDeleteHouse)

				r.Post("/floors", s.handleCreateFloor)
				r.Route("/floors/{floorID}", func(r chi.Router) {
					r.Get("/", s.handleGetFloor)
					r.Put("/", s.handleUpdateFloor)
					r.Patch("/", s.handleUpdateFloor)
					r.Delete("/", s.handleDeleteFloor)

					r.Post("/rooms", s.handleCreateRoom)
					r.Route("/rooms/{roomID}", func(r chi.Router) {
						r.Get("/", s.handleGetRoom)
						r.Put("/", s.handleUpdateRoom)
						r.Patch("/", s.handleUpdateRoom)
						r.Delete("/", s.handleDeleteRoom)

						r.Post("/devices", s.handleCreateDevice)
						r.Route("/devices/{deviceID}", func(r chi.Router) {
							r.Get("/", s.handleGetDevice)
							r.Put("/", s.handleUpdateDevice)
							r.Patch("/", s.handleUpdateDevice)
							r.Delete("/", s.handleDeleteDevice)
						})
					})
				})
			})
		})

		r.Get("/devices/{deviceID}/latest", s.handleGetLatest)
		r.Get("/audit", s.handleListAuditLogs)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status along with the result of
// every registered component check. Any failing check turns the response
// into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.healthChecks))
	for name := range s.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.healthChecks[name].HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
