/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in the access log
  2. Logger:     zap access log (RequestLogger)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       The checklist pages are served from another origin

ROUTE GROUPS:
  /healthz              Liveness
  /reports/*            Store contract used by the engine's HTTP client
  /api/types/*          Repository operations per report type
  /api/scenarios/*      Demo data
  /api/monitor/*        Missing-report sweeps

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// Store contract
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.ListReports)
		r.Post("/", h.CreateReport)
		r.Get("/{id}", h.GetReport)
		r.Put("/{id}", h.UpdateReport)
		r.Delete("/{id}", h.DeleteReport)
	})

	r.Route("/api", func(r chi.Router) {
		// Repository routes
		r.Route("/types", func(r chi.Router) {
			r.Get("/", h.ListTypes)
			r.Route("/{type}", func(r chi.Router) {
				r.Get("/calendar", h.GetCalendar)
				r.Get("/latest", h.GetLatest)
				r.Get("/exists", h.CheckExists)
				r.Post("/save", h.SaveReport)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetStore)
		})

		// Monitor routes
		r.Route("/monitor", func(r chi.Router) {
			r.Get("/missing", h.GetMissingReports)
			r.Post("/run", h.RunMonitor)
		})
	})

	return r
}

// RequestLogger logs one line per request with zap.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
