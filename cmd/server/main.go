// Training Desk - gated natural-language access to employee training data.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/trainingdesk/internal/agent"
	"github.com/ashureev/trainingdesk/internal/api"
	"github.com/ashureev/trainingdesk/internal/config"
	"github.com/ashureev/trainingdesk/internal/identity"
	"github.com/ashureev/trainingdesk/internal/locale"
	"github.com/ashureev/trainingdesk/internal/middleware"
	"github.com/ashureev/trainingdesk/internal/oracle"
	"github.com/ashureev/trainingdesk/internal/query"
	"github.com/ashureev/trainingdesk/internal/session"
	"github.com/ashureev/trainingdesk/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "oracle", cfg.Oracle.Provider)

	dir, err := store.NewSQLiteDirectory(cfg.DBPath, store.Options{
		Timeout: cfg.StoreTimeout,
		MaxRows: cfg.MaxResultRows,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dir.Close(); closeErr != nil {
			slog.Error("Failed to close directory", "error", closeErr)
		}
	}()
	slog.Info("Employee directory opened read-only", "path", cfg.DBPath)

	o, releaseOracle, err := oracle.New(ctx, cfg.Oracle, logger)
	if err != nil {
		return err
	}
	defer releaseOracle()

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return err
	}

	catalog := locale.Default()
	sessions := session.NewStore(cfg.SessionTTL)
	resolver := identity.NewResolver(o, dir, catalog, cfg.Oracle.Timeout)
	pipeline := query.NewPipeline(o, dir, sessions, catalog, query.Options{
		PrivilegedDivision: cfg.PrivilegedDivision,
		HistoryTurns:       cfg.HistoryTurns,
		OracleTimeout:      cfg.Oracle.Timeout,
		StoreTimeout:       cfg.StoreTimeout,
	})
	svc := agent.NewService(resolver, pipeline, sessions, catalog, conversationLogger)
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation logger", "error", closeErr)
		}
	}()

	limiter := agent.NewRateLimiter(cfg.RateLimitPerMinute)
	origins := cfg.AllowedOrigins()
	agentHandler := agent.NewHandler(svc, sessions, limiter, origins)
	healthHandler := api.NewHealthHandler(dir, o)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.ClientIP(cfg.TrustProxy))
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(origins))

	healthHandler.RegisterHealth(r)
	agentHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("Session sweeper started", "session_ttl", cfg.SessionTTL)
		return sessions.Run(gctx, time.Minute)
	})
	g.Go(func() error {
		return limiter.Run(gctx, 5*time.Minute)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
