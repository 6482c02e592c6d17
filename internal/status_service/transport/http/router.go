package http

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/middleware"
)

const (
	defaultRequestTimeout = 30 * time.Second
	healthCheckTimeout    = 2 * time.Second
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouterConfig holds everything NewRouter mounts.
type RouterConfig struct {
	Statuses *StatusHandler
	Realtime *RealtimeHandler
	Verifier *middleware.TokenVerifier

	// AdminRole guards the write endpoints.
	AdminRole string
	// Idempotency wraps POST /statuses when set.
	Idempotency func(http.Handler) http.Handler
	// RequestTimeout bounds the CRUD endpoints. Realtime streams are exempt.
	RequestTimeout time.Duration
	HealthChecks   map[string]HealthCheck

	Logger *slog.Logger
}

// NewRouter builds the chi router for the status service.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/health", healthHandler(cfg.HealthChecks, cfg.Logger))
	r.Handle("/metrics", promhttp.Handler())

	authMW := middleware.AuthMiddleware(cfg.Verifier, cfg.Logger)
	requireAdmin := middleware.RequireRole(cfg.AdminRole, cfg.Logger)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(authMW)

		v1.Route("/statuses", func(sr chi.Router) {
			sr.Use(chimiddleware.Timeout(cfg.RequestTimeout))

			sr.Get("/", cfg.Statuses.ListStatuses)
			sr.Get("/{id}", cfg.Statuses.GetStatus)

			sr.Group(func(admin chi.Router) {
				admin.Use(requireAdmin)
				if cfg.Idempotency != nil {
					admin.With(cfg.Idempotency).Post("/", cfg.Statuses.CreateStatus)
				} else {
					admin.Post("/", cfg.Statuses.CreateStatus)
				}
				admin.Patch("/{id}", cfg.Statuses.UpdateStatus)
				admin.Delete("/{id}", cfg.Statuses.DeleteStatus)
			})
		})

		v1.Route("/realtime", func(rr chi.Router) {
			rr.Get("/ws", cfg.Realtime.ServeWebSocket)
			rr.Get("/sse", cfg.Realtime.ServeSSE)
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := HealthResponseDTO{Status: "ok"}
		code := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.WarnContext(ctx, "Health check failed", "check", name, "error", err)
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, code, resp)
	}
}
