// Package server wires storage, services, handlers and routes together and
// runs the HTTP server.
//
// WHY SEPARATE FROM main.go?
// Tests build a Server from a Config and drive Handler() with httptest,
// without opening a port or reading the environment.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → repository.Store (sqlite or postgres)
//	              → services (auth, ad views, competitions, rewards)
//	              → handlers → chi routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/auth"
	"github.com/sakif/ad-rewards/internal/config"
	"github.com/sakif/ad-rewards/internal/handler"
	"github.com/sakif/ad-rewards/internal/middleware"
	"github.com/sakif/ad-rewards/internal/repository"
	"github.com/sakif/ad-rewards/internal/repository/postgres"
	sqliteRepo "github.com/sakif/ad-rewards/internal/repository/sqlite"
	"github.com/sakif/ad-rewards/internal/service"
)

// Server represents the HTTP server and everything it owns. The store is
// closed when Start returns.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store

	competitions *service.CompetitionService
}

// New opens the store, builds the services and routes, and makes sure the
// current week's competition exists.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		store.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, created, err := s.competitions.EnsureWeeklyCompetition(ctx)
	switch {
	case err == nil:
		logger.Info("weekly competition ready",
			slog.String("competitionID", c.ID),
			slog.String("name", c.Name),
			slog.Bool("created", created),
		)
	case errors.Is(err, apperror.ErrNotFound):
		// This week's competition was ended early; the next one opens on
		// the reset day.
		logger.Info("no active competition this week")
	default:
		store.Close()
		return nil, err
	}

	return s, nil
}

func openStore(cfg *config.Config) (repository.Store, error) {
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		db, err := postgres.New(ctx, postgres.Config{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
		})
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// setupRoutes configures middleware and every route.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns the ID the logger prints
//  2. RealIP: client IP from proxy headers
//  3. Recoverer: a panic becomes a 500 instead of a crash
//  4. Logger: one line per request
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.SessionTTL.Duration)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	competitions, err := service.NewCompetitionService(s.store, service.CompetitionConfig{
		ResetDay: s.config.ResetWeekday(),
		Location: s.config.Location(),
		MinAds:   s.config.LeaderboardMinAds,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("creating competition service: %w", err)
	}
	s.competitions = competitions

	authService := service.NewAuthService(s.store, tokens, auth.NewPasswordService(), s.config.AdminUsers, s.logger)
	adViews := service.NewAdViewService(s.store, competitions, s.logger)
	rewards := service.NewRewardService(s.store, s.store, s.config.QualificationThreshold, s.logger)

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	authHandler := handler.NewAuthHandler(authService, github, s.config.CookieSecure, s.logger)
	adViewHandler := handler.NewAdViewHandler(adViews, s.logger)
	rewardHandler := handler.NewRewardHandler(rewards, s.logger)
	competitionHandler := handler.NewCompetitionHandler(competitions, s.logger)
	adminHandler := handler.NewAdminHandler(authService, rewards, competitions, s.logger)

	if github != nil {
		s.router.Route("/auth/github", func(r chi.Router) {
			r.Get("/login", authHandler.HandleGitHubLogin)
			r.Get("/callback", authHandler.HandleGitHubCallback)
		})
	}

	s.router.Route("/api", func(r chi.Router) {
		// Public
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.With(auth.OptionalAuth(tokens)).Post("/logout", authHandler.HandleLogout)
		r.Get("/competition", competitionHandler.HandleCurrent)
		r.Get("/leaderboard", competitionHandler.HandleLeaderboard)

		// Signed in
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/user", authHandler.HandleUser)
			r.Post("/ad-views", adViewHandler.HandleCreate)
			r.Get("/ad-views", adViewHandler.HandleList)
			r.Get("/progress", rewardHandler.HandleProgress)
			r.Post("/rewards", rewardHandler.HandleClaim)
			r.Get("/rewards", rewardHandler.HandleGet)
			r.Get("/competition/me", competitionHandler.HandleStanding)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/qualified-users", adminHandler.HandleQualifiedUsers)
				r.Post("/rewards/{userID}/paid", adminHandler.HandleMarkPaid)
				r.Post("/competitions/{id}/end", adminHandler.HandleEndCompetition)
				r.Post("/competitions/{id}/reconcile", adminHandler.HandleReconcile)
			})
		})
	})

	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store. Start calls it on the way out.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully:
// stop accepting connections, give in-flight requests 30 seconds, close
// the store.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		backend := "sqlite"
		if s.config.DatabaseURL != "" {
			backend = "postgres"
		}
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", backend),
			slog.Bool("github", s.config.GitHubEnabled()),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
