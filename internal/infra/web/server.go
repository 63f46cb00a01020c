package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"deckreview-pipeline/internal/domain/ports/repository"
	"deckreview-pipeline/internal/usecase"
)

// Server exposes the orchestrator's HTTP surface: public status reads, the
// worker callback, worker heartbeats, and the admin queue-manager endpoints.
type Server struct {
	queueUC  usecase.QueueUseCase
	pipeline usecase.PipelineUseCase
	servers  repository.ServerRepository
	apiKey   string
	log      *zerolog.Logger
}

func NewServer(
	queueUC usecase.QueueUseCase,
	pipeline usecase.PipelineUseCase,
	servers repository.ServerRepository,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "Web").Logger()
	return &Server{
		queueUC:  queueUC,
		pipeline: pipeline,
		servers:  servers,
		apiKey:   apiKey,
		log:      &l,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(traceID)
	r.Use(recoverer(s.log))
	r.Use(requestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks", s.enqueueHandler)
		r.Get("/documents/{documentID}/status", s.statusHandler)
		r.Get("/documents/{documentID}/progress", s.progressHandler)
		r.Post("/callbacks/processing", s.callbackHandler)
		r.Post("/workers/{serverID}/heartbeat", s.heartbeatHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/tasks", s.adminListTasksHandler)
			r.Post("/documents/{documentID}/requeue", s.adminRequeueHandler)
			r.Post("/tasks/reset-stuck", s.adminResetStuckHandler)
			r.Post("/tasks/retry-failed", s.adminRetryFailedHandler)
		})
	})

	return r
}

// authMiddleware provides simple Bearer token authentication for the admin API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
