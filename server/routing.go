package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/buzzsnip/buzzsnip/logger"
)

// routes builds the chi router with every API endpoint
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.HandleListSchedules)
			r.Post("/", s.HandleCreateSchedule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetSchedule)
				r.Put("/", s.HandleUpdateSchedule)
				r.Delete("/", s.HandleDeleteSchedule)
				r.Patch("/status", s.HandleScheduleStatus)
				r.Post("/run", s.HandleRunSchedule)
			})
		})

		r.Post("/generate", s.HandleGenerate)
		r.Post("/generate-audio", s.HandleGenerateAudio)
		r.Post("/generate-face", s.HandleGenerateFace)
		r.Post("/generate-video", s.HandleGenerateVideo)

		r.Get("/jobs", s.HandleListJobs)
		r.Get("/jobs/{id}", s.HandleGetJob)

		r.Get("/admin/status", s.HandleAdminStatus)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws/jobs", s.hub.ServeWS)

	return r
}

// requestLogger logs method, path, status, duration and remote address per request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		ctx := logger.WithRequestID(r.Context(), reqID)
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []interface{}{
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldHTTPStatus, status,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
			logger.FieldRemote, r.RemoteAddr,
		}
		log := logger.LoggerFromContext(ctx, s.logger)
		switch {
		case status >= http.StatusInternalServerError:
			log.Warnw("HTTP request", fields...)
		case r.URL.Path == "/metrics" || r.URL.Path == "/api/health":
			log.Debugw("HTTP request", fields...)
		default:
			log.Infow("HTTP request", fields...)
		}
	})
}

// corsMiddleware sets CORS headers for allowed origins and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, s.deps.AllowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed matches origin against the configured prefixes, so any port
// of an allowed host passes. "*" allows everything.
func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.HasPrefix(origin, a) {
			return true
		}
	}
	return false
}
