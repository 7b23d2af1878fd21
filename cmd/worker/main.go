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
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/todo-api/internal/app"
	"github.com/odyssey-erp/todo-api/internal/auth"
	"github.com/odyssey-erp/todo-api/internal/observability"
	"github.com/odyssey-erp/todo-api/internal/users"
	"github.com/odyssey-erp/todo-api/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	if cfg.StoreDriver == app.StoreMemory {
		logger.Error("worker needs a shared store, memory driver is process-local")
		os.Exit(1)
	}

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
	pruneJob := jobs.NewTokensPruneJob(userService, logger, metrics)
	pruneTask, err := jobs.NewTokensPruneTask("scheduled")
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpt := cfg.RedisOptions().QueueOpt()
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpt,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTokensPrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.TokenPruneCron, Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := jobs.NewClient(redisOpt)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	if info, err := client.EnqueueTokensPrune(ctx, "startup"); err != nil {
		logger.Warn("enqueue startup prune", slog.Any("error", err))
	} else {
		logger.Info("enqueued startup prune", slog.String("task_id", info.ID))
	}
	if err := client.Close(); err != nil {
		logger.Warn("job client close", slog.Any("error", err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.WorkerMetricsAddr != "" {
		server := metrics.Server(cfg.WorkerMetricsAddr)
		g.Go(func() error {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
