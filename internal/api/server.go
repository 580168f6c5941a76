package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pixelclass/render-judge/internal/broadcast"
	"github.com/pixelclass/render-judge/internal/config"
	"github.com/pixelclass/render-judge/internal/game"
	"github.com/pixelclass/render-judge/internal/levels"
	"github.com/pixelclass/render-judge/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config      config.ServerConfig
	router      *chi.Mux
	game        *game.Game
	catalog     *levels.Loader
	broadcaster *broadcast.Broadcaster
	repo        storage.Repository
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	g *game.Game,
	catalog *levels.Loader,
	broadcaster *broadcast.Broadcaster,
	repo storage.Repository,
) *Server {
	s := &Server{
		config:      cfg,
		game:        g,
		catalog:     catalog,
		broadcaster: broadcaster,
		repo:        repo,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// Rendering contexts and UI result streams connect here; websockets
	// bypass the chi timeout middleware on purpose.
	r.Get("/ws/render", s.handleRenderWS)
	r.Get("/ws/results", s.handleResultsWS)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/score/totals", s.handleTotals)

		r.Route("/levels", func(r chi.Router) {
			r.Get("/", s.handleListLevels)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetLevel)
				r.Post("/activate", s.handleActivateLevel)
				r.Post("/code", s.handleSubmitCode)
				r.Post("/reset", s.handleResetLevel)
				r.Get("/score", s.handleLevelScore)
				r.Get("/drawn", s.handleLevelDrawn)

				r.Get("/scenarios/{id}/result", s.handleScenarioResult)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
