package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/aristath/trading-planner/internal/di"
)

// Version is the planner server's reported version.
const Version = "1.0.0"

// Server is the coordinator's HTTP surface.
type Server struct {
	container *di.Container
	router    chi.Router
	http      *http.Server
	log       zerolog.Logger
}

// New creates the server and registers routes.
func New(container *di.Container, log zerolog.Logger) *Server {
	s := &Server{
		container: container,
		log:       log.With().Str("component", "server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/plan", s.handleCreatePlan)
		r.Post("/opportunities/identify", s.handleIdentifyOpportunities)
		r.Post("/sequences/generate", s.handleGenerateSequences)
	})

	s.router = r
	return s
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", port).Msg("Planner server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth reports service health: breaker states, cache stats, and
// process resource usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	for name, state := range s.container.Breakers.AllStates() {
		checks["circuit_breaker:"+name] = string(state)
	}

	cacheStats := s.container.Cache.Stats()
	checks["cache"] = fmt.Sprintf("recommendations=%d analytics=%d", cacheStats.RecommendationTotal, cacheStats.AnalyticsTotal)
	checks["evaluators"] = fmt.Sprintf("%d configured", len(s.container.Evaluators))

	if vm, err := mem.VirtualMemory(); err == nil {
		checks["memory"] = fmt.Sprintf("%.1f%% used", vm.UsedPercent)
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			checks["cpu"] = fmt.Sprintf("%.1f%%", cpu)
		}
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Healthy: true,
		Version: Version,
		Status:  "ok",
		Checks:  checks,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
