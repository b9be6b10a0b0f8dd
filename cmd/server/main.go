// Package main is the entrypoint for the IdeaHub API gateway.
package main

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

	"github.com/kiranshivaraju/ideahub/internal/api"
	"github.com/kiranshivaraju/ideahub/internal/api/handler"
	mw "github.com/kiranshivaraju/ideahub/internal/api/middleware"
	"github.com/kiranshivaraju/ideahub/internal/api/response"
	"github.com/kiranshivaraju/ideahub/internal/auth"
	"github.com/kiranshivaraju/ideahub/internal/cache"
	"github.com/kiranshivaraju/ideahub/internal/config"
	"github.com/kiranshivaraju/ideahub/internal/idea"
	"github.com/kiranshivaraju/ideahub/internal/ratelimit"
	"github.com/kiranshivaraju/ideahub/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	pruneInterval   = time.Hour
	janitorInterval = 5 * time.Minute
)

func main() {
	slog.SetDefault(newLogger(slog.LevelInfo))

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("config loaded", "env", cfg.Server.Env, "rate_limit_backend", cfg.RateLimit.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Server.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	pgStore := store.NewPostgresStore(pool)

	// 4. Cache and rate-limit counter
	c, counter, closeCache, err := newBackends(ctx, cfg, pgStore)
	if err != nil {
		return err
	}
	defer closeCache()

	if cfg.RateLimit.Backend == config.BackendPostgres {
		ratelimit.StartPruner(ctx, pgStore, pruneInterval)
	}

	// 5. Build router with dependencies
	authn := auth.NewAuthenticator(pgStore, cfg.Auth.KeyPrefix, auth.WithCache(c, cfg.Auth.CacheTTL))

	var throttle *ratelimit.IPThrottle
	if cfg.RateLimit.IPRate > 0 {
		throttle = ratelimit.NewIPThrottle(cfg.RateLimit.IPRate, cfg.RateLimit.IPBurst)
		throttle.StartJanitor(ctx, janitorInterval)
	}

	deps := api.Dependencies{
		Auth:       mw.NewAuth(authn),
		RateLimit:  mw.NewRateLimit(ratelimit.NewLimiter(counter), "ideas"),
		IPThrottle: mw.ThrottleIP(throttle),
		CORSOrigin: cfg.Server.CORSOrigin,

		Ideas:         handler.NewIdeas(idea.NewService(pgStore), cfg.Server.MaxBodyBytes),
		HealthHandler: healthHandler(pgStore, c),
	}

	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newBackends picks the auth cache and rate-limit counter for the configured
// backend. Only the redis backend talks to Redis; the others keep the auth
// cache in process.
func newBackends(ctx context.Context, cfg *config.Config, s store.Store) (cache.Cache, ratelimit.Counter, func(), error) {
	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create redis cache: %w", err)
		}
		if err := redisCache.Ping(ctx); err != nil {
			redisCache.Close()
			return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		closer := func() {
			if err := redisCache.Close(); err != nil {
				slog.Warn("close redis", "error", err)
			}
		}
		return redisCache, ratelimit.NewCacheCounter(redisCache), closer, nil

	case config.BackendPostgres:
		return cache.NewMemoryCache(), ratelimit.NewStoreCounter(s), func() {}, nil

	default:
		mem := cache.NewMemoryCache()
		slog.Warn("in-memory rate limiting only holds for a single instance")
		return mem, ratelimit.NewCacheCounter(mem), func() {}, nil
	}
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		var details []string
		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
			details = append(details, "database: degraded")
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
			details = append(details, "cache: degraded")
		}

		if len(details) > 0 {
			response.Error(w, http.StatusServiceUnavailable, "One or more services degraded", details)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
