// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects the store, the cache,
// services, handlers, middleware and routes. It decides
//   - which URL patterns map to which handler functions
//   - what middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → sqlstore.DB + cache.Cache → services → handlers → chi routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/routes), rather than scattered across the codebase.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/readyforms/readyforms-api/internal/auth"
	"github.com/readyforms/readyforms-api/internal/cache"
	"github.com/readyforms/readyforms-api/internal/config"
	"github.com/readyforms/readyforms-api/internal/handler"
	"github.com/readyforms/readyforms-api/internal/middleware"
	"github.com/readyforms/readyforms-api/internal/repository/sqlstore"
	"github.com/readyforms/readyforms-api/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database pool and the Redis client. Start closes both
// after the HTTP server has drained, so no request sees a closed pool.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqlstore.DB
	closers []func() error
}

// New opens the database (running migrations), connects the stats cache
// and builds the router.
//
// The stats cache is Redis when redis.addr is set. If Redis cannot be
// reached at startup the server still starts with caching disabled:
// statistics are then computed on every request, which is slower but
// correct.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	db, err := OpenDatabase(ctx, dialect, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var statsCache cache.Cache = cache.Nop{}
	var closers []func() error
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("redis unavailable, statistics will not be cached",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()),
			)
		} else {
			statsCache = redisCache
			closers = append(closers, redisCache.Close)
		}
	}

	s, err := newServer(cfg, logger, db, statsCache, auth.NewPasswordService())
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		db.Close()
		return nil, err
	}
	s.closers = closers
	return s, nil
}

// OpenDatabase opens the store and runs migrations. For a file-backed
// SQLite database the parent directory is created first (like `mkdir -p`).
func OpenDatabase(ctx context.Context, dialect sqlstore.Dialect, dsn string) (*sqlstore.DB, error) {
	if dialect == sqlstore.SQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
	}
	db, err := sqlstore.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// newServer wires an already opened store. Tests call it with an
// in-memory database and a cheap bcrypt cost.
func newServer(
	cfg config.Config,
	logger *slog.Logger,
	db *sqlstore.DB,
	statsCache cache.Cache,
	passwords *auth.PasswordService,
) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	if err := s.routes(statsCache, passwords); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// routes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns a unique ID to each request (for tracing)
//  2. RealIP: extracts the client IP from proxy headers (rate limiting uses it)
//  3. Logger and Metrics: observe the final status of every request
//  4. Recoverer: turns panics into 500s, inside the observers so they see it
//  5. CORS: answers preflight requests before any auth check
func (s *Server) routes(statsCache cache.Cache, passwords *auth.PasswordService) error {
	cfg := s.config
	logger := s.logger
	db := s.db

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	authn := auth.NewAuthenticator(tokens, db, logger)

	// === Services ===
	// The store implements every repository interface; each service gets
	// only the ones it needs.
	analyticsService := service.NewAnalyticsService(db, db, statsCache, cfg.StatsCacheTTL, logger)
	authService := service.NewAuthService(db, tokens, passwords, logger)
	userService := service.NewUserService(db, analyticsService, logger)
	topicService := service.NewTopicService(db, logger)
	templateService := service.NewTemplateService(db, db, db, db, analyticsService, logger)
	responseService := service.NewResponseService(db, db, analyticsService, logger)
	commentService := service.NewCommentService(db, db, logger)
	likeService := service.NewLikeService(db, db, logger)
	tagService := service.NewTagService(db, logger)

	// === Handlers ===
	var github *auth.GitHubProvider
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}
	authHandler := handler.NewAuthHandler(authService, github, handler.AuthHandlerConfig{
		TokenTTL:      tokens.TTL(),
		SecureCookies: cfg.Auth.SecureCookies,
		RedirectURL:   cfg.GitHub.RedirectURL,
	}, logger)
	userHandler := handler.NewUserHandler(userService, logger)
	topicHandler := handler.NewTopicHandler(topicService, logger)
	tagHandler := handler.NewTagHandler(tagService, logger)
	templateHandler := handler.NewTemplateHandler(templateService, analyticsService, logger)
	responseHandler := handler.NewFormResponseHandler(responseService, logger)
	commentHandler := handler.NewCommentHandler(commentService, logger)
	likeHandler := handler.NewLikeHandler(likeService, logger)

	limiter := middleware.NewRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst)

	// === Global Middleware ===
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"ETag"},
			AllowCredentials: true,
		}).Handler)
	}

	// === Operational ===
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// === GitHub OAuth (browser redirects, not JSON) ===
	if github != nil {
		r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	// === API ===
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limiter.Handler)
				r.Post("/register", authHandler.HandleRegister)
				r.Post("/login", authHandler.HandleLogin)
				r.Post("/logout", authHandler.HandleLogout)
			})
			r.With(authn.RequireAuth).Get("/me", authHandler.HandleMe)
		})

		r.Get("/topics", topicHandler.HandleList)
		r.Group(func(r chi.Router) {
			r.Use(authn.RequireAuth, auth.RequireAdmin)
			r.Post("/topics", topicHandler.HandleCreate)
			r.Put("/topics/{id}", topicHandler.HandleUpdate)
			r.Delete("/topics/{id}", topicHandler.HandleDelete)
		})

		r.Get("/tags", tagHandler.HandleList)

		r.Route("/templates", func(r chi.Router) {
			r.With(authn.OptionalAuth).Get("/", templateHandler.HandleList)
			r.With(authn.RequireAuth).Post("/", templateHandler.HandleCreate)

			r.Route("/{id}", func(r chi.Router) {
				// Public templates can be read anonymously.
				r.Group(func(r chi.Router) {
					r.Use(authn.OptionalAuth)
					r.Get("/", templateHandler.HandleGet)
					r.Get("/comments", commentHandler.HandleList)
				})
				r.Group(func(r chi.Router) {
					r.Use(authn.RequireAuth)
					r.Put("/", templateHandler.HandleUpdate)
					r.Delete("/", templateHandler.HandleDelete)
					r.Get("/stats", templateHandler.HandleStats)
					r.Post("/comments", commentHandler.HandleAdd)
					r.Post("/like", likeHandler.HandleLike)
					r.Delete("/like", likeHandler.HandleUnlike)
					r.Get("/responses", responseHandler.HandleListForTemplate)
					r.Post("/responses", responseHandler.HandleSubmit)
				})
			})
		})

		r.Route("/responses", func(r chi.Router) {
			r.Use(authn.RequireAuth)
			r.Get("/mine", responseHandler.HandleListMine)
			r.Get("/{id}", responseHandler.HandleGet)
			r.Put("/{id}", responseHandler.HandleUpdate)
			r.Delete("/{id}", responseHandler.HandleDelete)
		})

		r.With(authn.RequireAuth).Delete("/comments/{id}", commentHandler.HandleDelete)

		r.Route("/admin", func(r chi.Router) {
			r.Use(authn.RequireAuth, auth.RequireAdmin)
			r.Get("/users", userHandler.HandleList)
			r.Put("/users/{id}", userHandler.HandleUpdate)
			r.Delete("/users/{id}", userHandler.HandleDelete)
		})
	})

	return nil
}

// handleHealth reports whether the database answers within two seconds.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, body := http.StatusOK, map[string]string{"status": "ok", "database": s.db.Dialect().String()}
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Close releases the database pool and the cache client.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Start runs the HTTP server until SIGINT/SIGTERM and then shuts down
// gracefully:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Close the database pool and the cache client
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.db.Dialect().String()),
			slog.Bool("githubLogin", s.config.GitHub.Enabled()),
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
