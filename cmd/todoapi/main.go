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

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/todo-api/internal/app"
	"github.com/odyssey-erp/todo-api/internal/auth"
	"github.com/odyssey-erp/todo-api/internal/observability"
	"github.com/odyssey-erp/todo-api/internal/platform/cache"
	"github.com/odyssey-erp/todo-api/internal/todos"
	"github.com/odyssey-erp/todo-api/internal/users"
	"github.com/odyssey-erp/todo-api/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("open stores", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer stores.Close()

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: cfg.TokenSecret,
		TTL:    cfg.TokenTTL,
		Issuer: cfg.TokenIssuer,
	})
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	userService, err := users.NewService(stores.Users, auth.NewPasswordHasher(cfg.BcryptCost), tokens,
		users.ServiceConfig{MinPasswordLength: cfg.PasswordMinLength})
	if err != nil {
		logger.Error("init user service", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	gate := users.NewGate(userService, logger, metrics)
	usersHandler := users.NewHandler(logger, userService, gate,
		users.CookieConfig{Secure: cfg.IsProduction(), TTL: cfg.TokenTTL}, metrics)
	todosHandler := todos.NewHandler(logger, todos.NewService(stores.Todos), gate.Require)

	checks := map[string]func(context.Context) error{"store": stores.Ping}

	var jobHandler *jobs.Handler
	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, job endpoints disabled", slog.Any("error", err))
	} else {
		defer closeRedis(logger, redisClient)
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }

		inspector := asynq.NewInspector(cfg.RedisOptions().QueueOpt())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		UsersHandler: usersHandler,
		TodosHandler: todosHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
		Checks:       checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}

func closeRedis(logger *slog.Logger, client *redis.Client) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
