// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dashtv/streaming-gateway/internal/admin"
	"github.com/dashtv/streaming-gateway/internal/bandwidth"
	"github.com/dashtv/streaming-gateway/internal/billing"
	"github.com/dashtv/streaming-gateway/internal/cache"
	"github.com/dashtv/streaming-gateway/internal/config"
	"github.com/dashtv/streaming-gateway/internal/core"
	"github.com/dashtv/streaming-gateway/internal/filelock"
	"github.com/dashtv/streaming-gateway/internal/health"
	"github.com/dashtv/streaming-gateway/internal/live"
	"github.com/dashtv/streaming-gateway/internal/middleware"
	"github.com/dashtv/streaming-gateway/internal/provider"
	"github.com/dashtv/streaming-gateway/internal/proxy"
	"github.com/dashtv/streaming-gateway/internal/server"
	"github.com/dashtv/streaming-gateway/internal/user"
	"github.com/dashtv/streaming-gateway/internal/vod"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis client ready", "pool_size", cfg.Redis.PoolSize)

	cacheStore := cache.NewStore(redis.Client, cfg.Cache)

	locks := filelock.New()

	userStore := user.NewStore(cfg.Data, locks)
	if err := userStore.Load(ctx); err != nil {
		return err
	}
	logger.Info("user store loaded",
		"users_file", cfg.Data.UsersFile,
		"transactions_file", cfg.Data.TransactionsFile,
	)

	resolver := provider.NewClient(cfg.Upstream, cacheStore)
	manifestProxy := proxy.New(resolver, cfg.Upstream)
	optimizer := bandwidth.NewOptimizer(cacheStore)

	billingZone, err := time.LoadLocation(cfg.Billing.Timezone)
	if err != nil {
		logger.Warn("invalid billing timezone, using local",
			"timezone", cfg.Billing.Timezone,
			"error", err,
		)
		billingZone = time.Local
	}

	scheduler := billing.NewScheduler(userStore, billingZone)
	if cfg.Billing.Enabled {
		scheduler.Start(ctx)
	} else {
		logger.Info("billing scheduler disabled")
	}

	liveHandler := live.NewHandler(resolver, manifestProxy, optimizer, cacheStore)
	vodHandler := vod.NewHandler(resolver, optimizer)
	userHandler := user.NewHandler(userStore)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		Store:      userStore,
		Scheduler:  scheduler,
		Optimizer:  optimizer,
		Locks:      locks,
		RedisStats: redis.PoolStats,
	})

	healthHandler := health.NewHandler(cacheStore, locks, scheduler, cfg.Data)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			KeyFunc:  middleware.KeyByUser,
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	healthHandler.RegisterRoutes(router)

	authenticator := middleware.RequireAuth(userStore)
	adminOnly := middleware.RequireAdminKey(cfg.Admin.KeyHash)
	tieredLimit := middleware.TieredRateLimiter(redis.Client)

	liveGates := []func(http.Handler) http.Handler{
		authenticator,
		middleware.RequirePackageAccess(userStore, "live"),
		tieredLimit,
	}
	movieGates := []func(http.Handler) http.Handler{
		authenticator,
		middleware.RequirePackageAccess(userStore, "movies"),
		tieredLimit,
	}
	seriesGates := []func(http.Handler) http.Handler{
		authenticator,
		middleware.RequirePackageAccess(userStore, "series"),
		tieredLimit,
	}

	router.Route("/api", func(r chi.Router) {
		liveHandler.RegisterRoutes(r, liveGates...)
		vodHandler.RegisterRoutes(r, movieGates, seriesGates)
		userHandler.RegisterRoutes(r, authenticator)
		adminHandler.RegisterRoutes(r, adminOnly)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	scheduler.Stop()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
