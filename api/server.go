/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. Logger:     zap request logging plus Prometheus request metrics
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for a front desk UI

ROUTE GROUPS:
  /healthz              Liveness
  /metrics              Prometheus scrape endpoint
  /api/catalog          Catalog
  /api/courses          Availability
  /api/students/*       Student lookups
  /api/receipts/*       Receipt checks
  /api/registrations    Registration workflow
  /api/edits            Edit workflow
  /api/reports/*        Administrative reports

SECURITY NOTE:
  No authentication middleware. The server is meant to bind locally on the
  front desk machine.

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

	"github.com/warp/enrollment-engine/metrics"
)

// NewRouter creates a new router with all routes configured.
// rec may be nil, in which case /metrics answers 503.
func NewRouter(h *Handler, rec *metrics.Recorder, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger, rec))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", rec.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.GetCatalog)
		r.Get("/courses", h.ListCourses)
		r.Get("/students/enrollments", h.GetEnrollments)
		r.Get("/receipts/{id}", h.GetReceipt)
		r.Post("/registrations", h.Register)
		r.Post("/edits", h.EditEnrollments)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/occupancy", h.OccupancyReport)
			r.Get("/students", h.StudentsReport)
		})
	})

	return r
}

// requestLogger logs every request with zap and records it in rec.
func requestLogger(l *zap.Logger, rec *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			latency := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", latency),
				zap.String("ip", r.RemoteAddr),
			}
			if reqID := middleware.GetReqID(r.Context()); reqID != "" {
				fields = append(fields, zap.String("request_id", reqID))
			}
			l.Info("http_request", fields...)

			if rec != nil {
				rec.ObserveHTTPRequest(r.Method, route, status, latency)
			}
		})
	}
}
