package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/auth"
	"github.com/taskboard/apiserver/internal/handlers"
	"github.com/taskboard/apiserver/internal/services"
)

const (
	defaultPort    = 8080
	requestTimeout = 60 * time.Second
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
	closers    []func() error
}

// New opens the configured store and event backend and builds the router.
// It fails when the signing secret is missing or too short.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokens(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET: %w", err)
	}

	repo, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	publisher, closeEvents, err := OpenPublisher(ctx, cfg)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("open %s events backend: %w", cfg.EventsBackend, err)
	}

	accounts := services.NewAccountService(repo, publisher, logger)
	router := NewRouter(accounts, tokens, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = defaultPort
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		logger:     logger,
		closers:    []func() error{closeEvents, closeStore},
	}, nil
}

// NewRouter builds the HTTP routes over the account service.
func NewRouter(accounts *services.AccountService, tokens *auth.Tokens, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.AccessLog(logger),
		handlers.Recoverer(logger),
		middleware.Timeout(requestTimeout),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/healthz", handlers.Healthz)
	handlers.AuthRouter(router, accounts, tokens, logger)
	router.Route("/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, accounts, handlers.RequireAuth(tokens), logger)
	})
	return router
}

// Router exposes the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the event backend and store.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	for _, closeFn := range s.closers {
		if closeErr := closeFn(); closeErr != nil {
			s.logger.Warn("failed to close resource", "error", closeErr)
		}
	}
	return err
}
