// Package server is the composition root: it opens the database, builds
// the services and handlers, and mounts them on a chi router.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → sqlstore.DB (pool + migrations)
//	  → UserService / AuthService / HealthService
//	  → UserHandler / AuthHandler / HealthHandler
//	  → chi routes
//
// Each layer only receives what it needs: services get a unit-of-work
// factory, handlers get services, nothing but this package sees config.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/miniapp-auth/internal/auth"
	"github.com/sakif/miniapp-auth/internal/config"
	"github.com/sakif/miniapp-auth/internal/handler"
	"github.com/sakif/miniapp-auth/internal/middleware"
	"github.com/sakif/miniapp-auth/internal/repository/sqlstore"
	"github.com/sakif/miniapp-auth/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the router and the database pool. The pool is closed when
// Start returns or when Close is called.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqlstore.DB
}

// New opens the database, applies pending migrations and wires all routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqlstore.Open(ctx, cfg.DatabaseDSN(), sqlstore.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		QueryTimeout: cfg.Database.QueryTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware and handlers.
//
// ROUTES:
//
//	POST   /auth/telegram  → exchange init data for a session cookie (rate limited)
//	POST   /auth/logout    → clear the session cookie
//	GET    /user/me        → caller's profile (session required)
//	DELETE /user/me        → delete caller's profile (session required)
//	GET    /health         → database probe (rate limited)
//	GET    /docs           → API reference page
//	GET    /openapi.json   → OpenAPI document
//
// MIDDLEWARE ORDER:
//  1. RequestID, RealIP: tag the request; RealIP only with TRUSTED_PROXY,
//     otherwise clients are keyed by socket address
//  2. Logger, Recoverer: log every request, turn panics into 500
//  3. CORS: answer preflights before authentication sees them
//  4. Authenticate: everything outside the public paths needs a session
func (s *Server) setupRoutes() error {
	cfg := s.config

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:    cfg.JWT.Secret,
		Algorithm: cfg.JWT.Algorithm,
		Issuer:    cfg.JWT.Issuer,
		TTL:       cfg.JWT.TTL(),
	})
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	validator, err := auth.NewTelegramValidator(auth.TelegramConfig{
		BotToken:    cfg.Telegram.BotToken,
		Environment: cfg.Environment,
		MaxAge:      cfg.Telegram.InitDataTTL,
	})
	if err != nil {
		return fmt.Errorf("creating init data validator: %w", err)
	}
	if !cfg.IsProduction() {
		s.logger.Warn("development mode: init data is not verified, every login is the development user")
	}

	userService := service.NewUserService(s.db.NewUnitOfWork, s.logger)
	authService := service.NewAuthService(validator, userService, tokens, s.logger)
	healthService := service.NewHealthService(s.db, cfg.HealthDBTimeout, s.logger)

	cookies := handler.CookiePolicyFor(cfg.Environment)
	authHandler := handler.NewAuthHandler(authService, cfg.Environment, s.logger)
	userHandler := handler.NewUserHandler(userService, cookies, s.logger)
	healthHandler := handler.NewHealthHandler(healthService, s.logger)
	docsHandler, err := handler.NewDocsHandler(s.logger)
	if err != nil {
		return fmt.Errorf("creating docs handler: %w", err)
	}

	// Separate buckets per endpoint: a login does not eat the health budget.
	loginLimiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	healthLimiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	publicPaths := append([]string{"/auth/logout"}, auth.DefaultPublicPaths...)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	if cfg.TrustedProxy {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	if cfg.AllowedOrigin != "" {
		s.router.Use(middleware.CORS(cfg.AllowedOrigin))
	}
	s.router.Use(auth.Authenticate(tokens, s.logger, publicPaths...))

	// === Routes ===
	s.router.Route("/auth", func(r chi.Router) {
		r.With(loginLimiter.Middleware).Post("/telegram", authHandler.HandleTelegramLogin)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/user", func(r chi.Router) {
		r.Get("/me", userHandler.HandleMe)
		r.Delete("/me", userHandler.HandleDeleteMe)
	})

	s.router.With(healthLimiter.Middleware).Get("/health", healthHandler.HandleHealth)

	s.router.Get("/docs", docsHandler.HandleDocs)
	s.router.Get("/openapi.json", docsHandler.HandleOpenAPI)

	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the database pool.
func (s *Server) Close() error { return s.db.Close() }

// Start serves HTTP until SIGINT/SIGTERM, then drains in-flight requests
// for up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("environment", s.config.Environment),
			slog.String("database", string(s.db.Dialect())),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
