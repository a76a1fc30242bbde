package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aura-assist/gateway/internal/audit"
	"github.com/aura-assist/gateway/internal/handlers"
	"github.com/aura-assist/gateway/internal/services"
)

// HTTPServer wraps the login API server and router.
type HTTPServer struct {
	httpServer *http.Server
	router     *chi.Mux
}

// NewHTTPServer constructs the login API server with basic middleware.
func NewHTTPServer(port int, users *services.UserService, recorder audit.Recorder) *HTTPServer {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		handlers.AuthRouter(r, users, recorder)
	})

	if port == 0 {
		port = 8080
	}

	return &HTTPServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router: router,
	}
}

// Router exposes the chi router for route registration.
func (s *HTTPServer) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *HTTPServer) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
